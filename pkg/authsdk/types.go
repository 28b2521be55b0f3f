package authsdk

import (
	"encoding/json"
	"time"
)

// ============================================================================
// Envelopes
// ============================================================================

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	// Error is the error kind (e.g., "unauthorised", "bad_request")
	Error string `json:"error"`

	// ErrorDescription is a coarse, human-readable description
	ErrorDescription string `json:"error_description"`
}

// ListResponse wraps every list endpoint.
type ListResponse[T any] struct {
	Data []T `json:"data"`
}

// AuditRef names the audit record written by an operation. Operations that
// accept a custom audit record return its id here.
type AuditRef struct {
	Audit string `json:"audit,omitempty"`
}

// ============================================================================
// Health
// ============================================================================

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime"`
	Version string        `json:"version"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}

// HealthChecks reports each dependency the readiness check pings.
type HealthChecks struct {
	Store string `json:"store"`
	Csrf  string `json:"csrf,omitempty"`
}

// ============================================================================
// Services
// ============================================================================

type Service struct {
	ID                 string            `json:"id"`
	Name               string            `json:"name"`
	URL                string            `json:"url"`
	Enabled            bool              `json:"enabled"`
	UserAllowRegister  bool              `json:"user_allow_register"`
	UserEmailText      string            `json:"user_email_text"`
	LocalURL           string            `json:"local_url"`
	OAuth2RedirectURLs map[string]string `json:"oauth2_redirect_urls"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

type ServiceCreateRequest struct {
	Name               string            `json:"name"`
	URL                string            `json:"url"`
	Enabled            bool              `json:"enabled"`
	UserAllowRegister  bool              `json:"user_allow_register"`
	UserEmailText      string            `json:"user_email_text"`
	LocalURL           string            `json:"local_url"`
	OAuth2RedirectURLs map[string]string `json:"oauth2_redirect_urls,omitempty"`
}

// ServiceUpdateRequest leaves nil fields untouched. A non-nil redirect map
// replaces the stored one.
type ServiceUpdateRequest struct {
	Name               *string           `json:"name,omitempty"`
	URL                *string           `json:"url,omitempty"`
	Enabled            *bool             `json:"enabled,omitempty"`
	UserAllowRegister  *bool             `json:"user_allow_register,omitempty"`
	UserEmailText      *string           `json:"user_email_text,omitempty"`
	LocalURL           *string           `json:"local_url,omitempty"`
	OAuth2RedirectURLs map[string]string `json:"oauth2_redirect_urls,omitempty"`
}

// ============================================================================
// Keys
// ============================================================================

// Key types.
const (
	KeyTypeKey   = "key"
	KeyTypeToken = "token"
	KeyTypeTotp  = "totp"
)

type Key struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Enabled   bool      `json:"enabled"`
	Revoked   bool      `json:"revoked"`
	ServiceID string    `json:"service_id,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// KeyWithValue is only ever returned by key create. The value cannot be
// read back.
type KeyWithValue struct {
	Key
	Value   string `json:"value"`
	TotpURL string `json:"totp_url,omitempty"`
}

type KeyCreateRequest struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	ServiceID string `json:"service_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
}

// KeyUpdateRequest cannot unrevoke a key; revoked only moves to true.
type KeyUpdateRequest struct {
	Name    *string `json:"name,omitempty"`
	Enabled *bool   `json:"enabled,omitempty"`
	Revoked *bool   `json:"revoked,omitempty"`
}

// ============================================================================
// Users
// ============================================================================

type User struct {
	ID                    string    `json:"id"`
	ServiceID             string    `json:"service_id"`
	Name                  string    `json:"name"`
	Email                 string    `json:"email"`
	Locale                string    `json:"locale"`
	Timezone              string    `json:"timezone"`
	PasswordAllowReset    bool      `json:"password_allow_reset"`
	PasswordRequireUpdate bool      `json:"password_require_update"`
	Enabled               bool      `json:"enabled"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

type UserCreateRequest struct {
	ServiceID             string `json:"service_id,omitempty"`
	Name                  string `json:"name"`
	Email                 string `json:"email"`
	Locale                string `json:"locale,omitempty"`
	Timezone              string `json:"timezone,omitempty"`
	Password              string `json:"password,omitempty"`
	PasswordAllowReset    bool   `json:"password_allow_reset"`
	PasswordRequireUpdate bool   `json:"password_require_update"`
	Enabled               bool   `json:"enabled"`
}

type UserUpdateRequest struct {
	Name                  *string `json:"name,omitempty"`
	Email                 *string `json:"email,omitempty"`
	Locale                *string `json:"locale,omitempty"`
	Timezone              *string `json:"timezone,omitempty"`
	Password              *string `json:"password,omitempty"`
	PasswordAllowReset    *bool   `json:"password_allow_reset,omitempty"`
	PasswordRequireUpdate *bool   `json:"password_require_update,omitempty"`
	Enabled               *bool   `json:"enabled,omitempty"`
}

// ============================================================================
// Audit
// ============================================================================

type Audit struct {
	ID        string          `json:"id"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	UserAgent string          `json:"user_agent"`
	Remote    string          `json:"remote"`
	Forwarded string          `json:"forwarded,omitempty"`
	Type      string          `json:"type"`
	Subject   string          `json:"subject,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	KeyID     string          `json:"key_id,omitempty"`
	ServiceID string          `json:"service_id,omitempty"`
	UserID    string          `json:"user_id,omitempty"`
	UserKeyID string          `json:"user_key_id,omitempty"`
}

// AuditCreateRequest is a custom record. Types starting with "sso." are
// reserved.
type AuditCreateRequest struct {
	Type    string          `json:"type"`
	Subject string          `json:"subject,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type AuditUpdateRequest struct {
	Subject *string         `json:"subject,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// AuditListQuery pages and filters audit records. Repeated filter values
// match any of them.
type AuditListQuery struct {
	AfterID    string
	BeforeID   string
	CreatedGE  *time.Time
	CreatedLE  *time.Time
	Limit      int
	IDs        []string
	Types      []string
	Subjects   []string
	ServiceIDs []string
	UserIDs    []string
}

// ============================================================================
// Tokens
// ============================================================================

// Token is a signed token and its lifetime in seconds.
type Token struct {
	Token   string `json:"token"`
	Expires int64  `json:"expires"`
}

type UserToken struct {
	User    User  `json:"user"`
	Access  Token `json:"access"`
	Refresh Token `json:"refresh"`
}

type UserTokenAccess struct {
	User   User  `json:"user"`
	Access Token `json:"access"`
	AuditRef
}

type UserTokenRefresh struct {
	UserToken
	AuditRef
}

// TokenRequest carries a token and an optional custom audit record written
// alongside the operation.
type TokenRequest struct {
	Token string              `json:"token"`
	Audit *AuditCreateRequest `json:"audit,omitempty"`
}

// ============================================================================
// Local authentication
// ============================================================================

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Locale   string `json:"locale,omitempty"`
	Timezone string `json:"timezone,omitempty"`
}

// ConfirmRequest completes a register or reset password flow. Password is
// optional for register confirm.
type ConfirmRequest struct {
	Token              string `json:"token"`
	Password           string `json:"password,omitempty"`
	PasswordAllowReset *bool  `json:"password_allow_reset,omitempty"`
}

type ResetPasswordRequest struct {
	Email string `json:"email"`
}

type UpdateEmailRequest struct {
	UserID   string `json:"user_id"`
	Password string `json:"password"`
	NewEmail string `json:"new_email"`
}

type UpdatePasswordRequest struct {
	UserID      string `json:"user_id"`
	Password    string `json:"password"`
	NewPassword string `json:"new_password"`
}

// ============================================================================
// User keys, TOTP and CSRF
// ============================================================================

type KeyRequest struct {
	Key   string              `json:"key"`
	Audit *AuditCreateRequest `json:"audit,omitempty"`
}

type UserKey struct {
	User User `json:"user"`
	Key  Key  `json:"key"`
	AuditRef
}

type TotpRequest struct {
	UserID string `json:"user_id"`
	Code   string `json:"code"`
}

type Csrf struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	ServiceID string    `json:"service_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

type CsrfVerifyRequest struct {
	Key string `json:"key"`
}

// ============================================================================
// OAuth2
// ============================================================================

type OAuth2URLResponse struct {
	URL string `json:"url"`
}

type OAuth2CallbackRequest struct {
	Code  string `json:"code"`
	State string `json:"state"`
}
