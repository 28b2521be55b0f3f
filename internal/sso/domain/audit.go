package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// AuditType names the operation an audit record belongs to. Types the
// service records itself use the "sso." prefix, custom types from callers
// may not.
type AuditType string

const AuditTypePrefix = "sso."

const (
	AuditServiceList   AuditType = "sso.service.list"
	AuditServiceCreate AuditType = "sso.service.create"
	AuditServiceRead   AuditType = "sso.service.read"
	AuditServiceUpdate AuditType = "sso.service.update"
	AuditServiceDelete AuditType = "sso.service.delete"

	AuditKeyList   AuditType = "sso.key.list"
	AuditKeyCreate AuditType = "sso.key.create"
	AuditKeyRead   AuditType = "sso.key.read"
	AuditKeyUpdate AuditType = "sso.key.update"
	AuditKeyDelete AuditType = "sso.key.delete"

	AuditUserList   AuditType = "sso.user.list"
	AuditUserCreate AuditType = "sso.user.create"
	AuditUserRead   AuditType = "sso.user.read"
	AuditUserUpdate AuditType = "sso.user.update"
	AuditUserDelete AuditType = "sso.user.delete"

	AuditAuditList   AuditType = "sso.audit.list"
	AuditAuditCreate AuditType = "sso.audit.create"
	AuditAuditRead   AuditType = "sso.audit.read"
	AuditAuditUpdate AuditType = "sso.audit.update"

	AuditLocalLogin                AuditType = "sso.auth.local.login"
	AuditLocalRegister             AuditType = "sso.auth.local.register"
	AuditLocalRegisterConfirm      AuditType = "sso.auth.local.register_confirm"
	AuditLocalRegisterRevoke       AuditType = "sso.auth.local.register_revoke"
	AuditLocalResetPassword        AuditType = "sso.auth.local.reset_password"
	AuditLocalResetPasswordConfirm AuditType = "sso.auth.local.reset_password_confirm"
	AuditLocalResetPasswordRevoke  AuditType = "sso.auth.local.reset_password_revoke"
	AuditLocalUpdateEmail          AuditType = "sso.auth.local.update_email"
	AuditLocalUpdateEmailRevoke    AuditType = "sso.auth.local.update_email_revoke"
	AuditLocalUpdatePassword       AuditType = "sso.auth.local.update_password"
	AuditLocalUpdatePasswordRevoke AuditType = "sso.auth.local.update_password_revoke"
	AuditOAuth2URL                 AuditType = "sso.auth.oauth2.url"
	AuditOAuth2Callback            AuditType = "sso.auth.oauth2.callback"
	AuditKeyVerify                 AuditType = "sso.auth.key.verify"
	AuditKeyRevoke                 AuditType = "sso.auth.key.revoke"
	AuditTokenVerify               AuditType = "sso.auth.token.verify"
	AuditTokenRefresh              AuditType = "sso.auth.token.refresh"
	AuditTokenRevoke               AuditType = "sso.auth.token.revoke"
	AuditTotpVerify                AuditType = "sso.auth.totp"
	AuditCsrfCreate                AuditType = "sso.auth.csrf.create"
	AuditCsrfVerify                AuditType = "sso.auth.csrf.verify"
)

// Reserved reports whether t uses the prefix kept for built-in types.
func (t AuditType) Reserved() bool { return strings.HasPrefix(string(t), AuditTypePrefix) }

// AuditMeta is the request information attached to every record.
type AuditMeta struct {
	UserAgent string
	Remote    string
	Forwarded string
}

type Audit struct {
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time
	Meta      AuditMeta
	Type      string
	Subject   string
	Data      json.RawMessage
	KeyID     string // Key that made the request
	ServiceID string
	UserID    string
	UserKeyID string // User key involved in the operation, if any
}

type AuditCreate struct {
	Meta      AuditMeta
	Type      string
	Subject   string
	Data      json.RawMessage
	KeyID     string
	ServiceID string
	UserID    string
	UserKeyID string
}

type AuditUpdate struct {
	Subject *string
	Data    json.RawMessage
}

// AuditListQuery pages through records ordered by ID, which follows
// creation order. With AfterID the page is ascending, otherwise descending.
type AuditListQuery struct {
	AfterID   string
	BeforeID  string
	CreatedGE *time.Time
	CreatedLE *time.Time
	Limit     int
}

// AuditListFilter matches records where every non-empty field matches one
// of its values.
type AuditListFilter struct {
	IDs        []string
	Types      []string
	Subjects   []string
	ServiceIDs []string
	UserIDs    []string
}
