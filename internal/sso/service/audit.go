package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/aussiebroadwan/sso/internal/sso/domain"
	"github.com/aussiebroadwan/sso/internal/sso/metrics"
	"github.com/aussiebroadwan/sso/internal/sso/store"
	"github.com/aussiebroadwan/sso/pkg/idx"
	"github.com/aussiebroadwan/sso/pkg/slogx"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 1000
)

// AuditEntry accumulates who did what while an operation runs. Operations
// fill it in as they resolve the key, user and user key, then hand it to
// AuditRecorder.Outcome.
type AuditEntry struct {
	Meta      domain.AuditMeta
	Type      domain.AuditType
	Subject   string
	KeyID     string
	ServiceID string
	UserID    string
	UserKeyID string

	// Data is stored when the operation succeeds.
	Data any
}

func NewAuditEntry(meta domain.AuditMeta, t domain.AuditType) *AuditEntry {
	return &AuditEntry{Meta: meta, Type: t}
}

// SetCaller attributes the entry to the authenticated key.
func (e *AuditEntry) SetCaller(c Caller) {
	e.KeyID = c.Key.ID
	e.ServiceID = c.Key.ServiceID
	if c.Key.UserID != "" {
		e.UserID = c.Key.UserID
	}
}

func (e *AuditEntry) SetUser(u domain.User)   { e.UserID = u.ID }
func (e *AuditEntry) SetUserKey(k domain.Key) { e.UserKeyID = k.ID }

type auditError struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// Diff is the field level change set stored for update operations. Each
// change is a [field, previous, current] triple.
type Diff [][3]any

func (d Diff) MarshalJSON() ([]byte, error) {
	data := [][3]any(d)
	if data == nil {
		data = [][3]any{}
	}
	return json.Marshal(struct {
		Type string   `json:"type"`
		Data [][3]any `json:"data"`
	}{"diff", data})
}

func diffField[T comparable](d *Diff, field string, prev, cur T) {
	if prev != cur {
		*d = append(*d, [3]any{field, prev, cur})
	}
}

// AuditRecorder appends audit records. A failed write fails the operation
// that triggered it.
type AuditRecorder struct {
	Store   store.Store
	Metrics *metrics.Metrics
	Now     func() time.Time
}

func (r *AuditRecorder) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

// Record appends one record.
func (r *AuditRecorder) Record(ctx context.Context, c domain.AuditCreate) (domain.Audit, error) {
	now := r.now()
	a := domain.Audit{
		ID:        idx.NewAt(now).String(),
		CreatedAt: now,
		UpdatedAt: now,
		Meta:      c.Meta,
		Type:      c.Type,
		Subject:   c.Subject,
		Data:      c.Data,
		KeyID:     c.KeyID,
		ServiceID: c.ServiceID,
		UserID:    c.UserID,
		UserKeyID: c.UserKeyID,
	}
	if len(a.Data) == 0 {
		a.Data = json.RawMessage(`{}`)
	}

	if err := r.Store.Audits().CreateAudit(ctx, a); err != nil {
		return domain.Audit{}, fmt.Errorf("create audit: %w", err)
	}
	return a, nil
}

// Outcome records e with the result of its operation and returns opErr
// unchanged. When the operation succeeded but the record could not be
// written, the write error is returned instead.
func (r *AuditRecorder) Outcome(ctx context.Context, e *AuditEntry, opErr error) error {
	var (
		data json.RawMessage
		err  error
	)
	if opErr != nil {
		data, err = json.Marshal(auditError{Type: "error", Error: errorText(opErr)})
	} else if e.Data != nil {
		data, err = json.Marshal(e.Data)
	}
	if err != nil {
		return errors.Join(opErr, err)
	}

	_, err = r.Record(ctx, domain.AuditCreate{
		Meta:      e.Meta,
		Type:      string(e.Type),
		Subject:   e.Subject,
		Data:      data,
		KeyID:     e.KeyID,
		ServiceID: e.ServiceID,
		UserID:    e.UserID,
		UserKeyID: e.UserKeyID,
	})
	if err != nil {
		slogx.FromContext(ctx).Error("failed to write audit record",
			slog.String("type", string(e.Type)),
			slog.Any("error", err),
		)
		r.Metrics.Audit(string(e.Type), true)
		return errors.Join(opErr, err)
	}

	r.Metrics.Audit(string(e.Type), opErr != nil)
	return opErr
}

// errorText prefixes internal errors so every stored error reads
// "<kind>: <message>".
func errorText(err error) string {
	if Kind(err) != nil {
		return err.Error()
	}
	return "internal: " + err.Error()
}

// clampLimit applies the default and maximum page size.
func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	}
	return limit
}

// AuditCustom is a caller defined record, written through the audit API or
// alongside a revoke.
type AuditCustom struct {
	Type    string
	Subject string
	Data    json.RawMessage
}

func (c AuditCustom) validate() error {
	if c.Type == "" {
		return badRequest("audit type required")
	}
	if domain.AuditType(c.Type).Reserved() {
		return badRequest("audit type prefix is reserved")
	}
	if len(c.Data) > 0 && !json.Valid(c.Data) {
		return badRequest("audit data must be json")
	}
	return nil
}

// recordCustom writes c attributed to the same caller and user as e.
func (r *AuditRecorder) recordCustom(ctx context.Context, e *AuditEntry, c AuditCustom) (domain.Audit, error) {
	if err := c.validate(); err != nil {
		return domain.Audit{}, err
	}
	return r.Record(ctx, domain.AuditCreate{
		Meta:      e.Meta,
		Type:      c.Type,
		Subject:   c.Subject,
		Data:      c.Data,
		KeyID:     e.KeyID,
		ServiceID: e.ServiceID,
		UserID:    e.UserID,
		UserKeyID: e.UserKeyID,
	})
}

// AuditService exposes the audit trail to services and root.
type AuditService struct {
	Base
}

// List returns records matching q and f. Service callers only see their own
// service's records.
func (s *AuditService) List(
	ctx context.Context,
	meta domain.AuditMeta,
	keyValue string,
	q domain.AuditListQuery,
	f domain.AuditListFilter,
) (out []domain.Audit, err error) {
	e := NewAuditEntry(meta, domain.AuditAuditList)
	defer func() { err = s.Audit.Outcome(ctx, e, err) }()

	c, err := s.authServiceOrRoot(ctx, e, keyValue)
	if err != nil {
		return nil, err
	}
	if q.AfterID != "" && q.BeforeID != "" {
		return nil, badRequest("after and before are exclusive")
	}
	q.Limit = clampLimit(q.Limit)

	out, err = s.Store.Audits().ListAudits(ctx, q, f, c.ServiceMask())
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *AuditService) Create(
	ctx context.Context,
	meta domain.AuditMeta,
	keyValue string,
	req AuditCustom,
) (out domain.Audit, err error) {
	e := NewAuditEntry(meta, domain.AuditAuditCreate)
	defer func() { err = s.Audit.Outcome(ctx, e, err) }()

	if _, err := s.authServiceOrRoot(ctx, e, keyValue); err != nil {
		return domain.Audit{}, err
	}

	out, err = s.Audit.recordCustom(ctx, e, req)
	if err != nil {
		return domain.Audit{}, err
	}
	e.Subject = out.ID
	return out, nil
}

func (s *AuditService) Read(
	ctx context.Context,
	meta domain.AuditMeta,
	keyValue, id string,
) (out domain.Audit, err error) {
	e := NewAuditEntry(meta, domain.AuditAuditRead)
	e.Subject = id
	defer func() { err = s.Audit.Outcome(ctx, e, err) }()

	c, err := s.authServiceOrRoot(ctx, e, keyValue)
	if err != nil {
		return domain.Audit{}, err
	}

	out, err = s.Store.Audits().GetAudit(ctx, id, c.ServiceMask())
	return out, storeErr(err, "audit not found")
}

// Update replaces the subject and/or data of a record. Records written by
// the service itself cannot be changed.
func (s *AuditService) Update(
	ctx context.Context,
	meta domain.AuditMeta,
	keyValue, id string,
	u domain.AuditUpdate,
) (out domain.Audit, err error) {
	e := NewAuditEntry(meta, domain.AuditAuditUpdate)
	e.Subject = id
	defer func() { err = s.Audit.Outcome(ctx, e, err) }()

	c, err := s.authServiceOrRoot(ctx, e, keyValue)
	if err != nil {
		return domain.Audit{}, err
	}
	if len(u.Data) > 0 && !json.Valid(u.Data) {
		return domain.Audit{}, badRequest("audit data must be json")
	}

	prev, err := s.Store.Audits().GetAudit(ctx, id, c.ServiceMask())
	if err != nil {
		return domain.Audit{}, storeErr(err, "audit not found")
	}
	if domain.AuditType(prev.Type).Reserved() {
		return domain.Audit{}, badRequest("built in audit records are immutable")
	}

	out, err = s.Store.Audits().UpdateAudit(ctx, id, c.ServiceMask(), u)
	if err != nil {
		return domain.Audit{}, storeErr(err, "audit not found")
	}

	var d Diff
	diffField(&d, "subject", prev.Subject, out.Subject)
	diffField(&d, "data", string(prev.Data), string(out.Data))
	e.Data = d
	return out, nil
}

func serviceDiff(prev, cur domain.Service) Diff {
	var d Diff
	diffField(&d, "name", prev.Name, cur.Name)
	diffField(&d, "url", prev.URL, cur.URL)
	diffField(&d, "enabled", prev.Enabled, cur.Enabled)
	diffField(&d, "user_allow_register", prev.UserAllowRegister, cur.UserAllowRegister)
	diffField(&d, "user_email_text", prev.UserEmailText, cur.UserEmailText)
	diffField(&d, "local_url", prev.LocalURL, cur.LocalURL)
	if !maps.Equal(prev.OAuth2RedirectURLs, cur.OAuth2RedirectURLs) {
		d = append(d, [3]any{"oauth2_redirect_urls", prev.OAuth2RedirectURLs, cur.OAuth2RedirectURLs})
	}
	return d
}

func keyDiff(prev, cur domain.Key) Diff {
	var d Diff
	diffField(&d, "name", prev.Name, cur.Name)
	diffField(&d, "enabled", prev.Enabled, cur.Enabled)
	diffField(&d, "revoked", prev.Revoked, cur.Revoked)
	return d
}

func userDiff(prev, cur domain.User) Diff {
	var d Diff
	diffField(&d, "name", prev.Name, cur.Name)
	diffField(&d, "email", prev.Email, cur.Email)
	diffField(&d, "locale", prev.Locale, cur.Locale)
	diffField(&d, "timezone", prev.Timezone, cur.Timezone)
	// Hashes never reach the audit trail.
	if prev.PasswordHash != cur.PasswordHash {
		d = append(d, [3]any{"password", "redacted", "redacted"})
	}
	diffField(&d, "password_allow_reset", prev.PasswordAllowReset, cur.PasswordAllowReset)
	diffField(&d, "password_require_update", prev.PasswordRequireUpdate, cur.PasswordRequireUpdate)
	diffField(&d, "enabled", prev.Enabled, cur.Enabled)
	return d
}
