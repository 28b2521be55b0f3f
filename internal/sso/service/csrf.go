package service

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/sso/internal/sso/domain"
	"github.com/aussiebroadwan/sso/internal/sso/store"
	"github.com/aussiebroadwan/sso/pkg/cryptox"
)

const (
	DefaultCsrfExpires = time.Hour
	MaxCsrfExpires     = 24 * time.Hour
)

// CsrfStore hands out single-use entries. An entry is gone once consumed,
// and an expired entry reads exactly like a missing one.
type CsrfStore struct {
	Store store.Store
	Now   func() time.Time
}

func (c *CsrfStore) now() time.Time {
	if c.Now != nil {
		return c.Now().UTC()
	}
	return time.Now().UTC()
}

// Create stores value under key for ttl. A taken key is a conflict, never
// overwritten.
func (c *CsrfStore) Create(
	ctx context.Context,
	serviceID, key, value string,
	ttl time.Duration,
) (domain.Csrf, error) {
	now := c.now().Truncate(time.Millisecond)
	entry := domain.Csrf{
		Key:       key,
		Value:     value,
		ServiceID: serviceID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := c.Store.Csrf().CreateCsrf(ctx, entry); err != nil {
		return domain.Csrf{}, storeErr(err, "csrf key exists")
	}
	return entry, nil
}

// Generate creates an entry with a random key and value.
func (c *CsrfStore) Generate(ctx context.Context, serviceID string, ttl time.Duration) (domain.Csrf, error) {
	key, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return domain.Csrf{}, err
	}
	value, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return domain.Csrf{}, err
	}
	return c.Create(ctx, serviceID, key, value, ttl)
}

// Consume reads and deletes the entry in one step. Of any number of
// concurrent calls for one key, at most one gets ok.
func (c *CsrfStore) Consume(ctx context.Context, key string) (entry domain.Csrf, ok bool, err error) {
	entry, err = c.Store.Csrf().ConsumeCsrf(ctx, key, c.now())
	if errors.Is(err, store.ErrNotFound) {
		return domain.Csrf{}, false, nil
	}
	if err != nil {
		return domain.Csrf{}, false, err
	}
	return entry, true, nil
}

// VerifyService rejects an entry created for another service.
func VerifyService(entry domain.Csrf, serviceID string) error {
	if entry.ServiceID != serviceID {
		return badRequest("csrf service mismatch")
	}
	return nil
}

// ConsumeFor consumes key on behalf of service. A missing, used, expired or
// foreign entry is a bad request.
func (c *CsrfStore) ConsumeFor(ctx context.Context, serviceID, key string) (domain.Csrf, error) {
	if key == "" {
		return domain.Csrf{}, badRequest("csrf key required")
	}
	entry, ok, err := c.Consume(ctx, key)
	if err != nil {
		return domain.Csrf{}, err
	}
	if !ok {
		return domain.Csrf{}, badRequest("csrf not found or used")
	}
	if err := VerifyService(entry, serviceID); err != nil {
		return domain.Csrf{}, err
	}
	return entry, nil
}

// CsrfCreate creates an entry the calling service can use for its own
// anti-replay checks. A nil expiry uses DefaultCsrfExpires.
func (s *AuthService) CsrfCreate(
	ctx context.Context,
	meta domain.AuditMeta,
	keyValue string,
	expiresS *int64,
) (out domain.Csrf, err error) {
	e := NewAuditEntry(meta, domain.AuditCsrfCreate)
	defer func() { err = s.Audit.Outcome(ctx, e, err) }()

	service, err := s.authService(ctx, e, keyValue)
	if err != nil {
		return domain.Csrf{}, err
	}

	ttl := DefaultCsrfExpires
	if expiresS != nil {
		if *expiresS < 0 || *expiresS > int64(MaxCsrfExpires/time.Second) {
			return domain.Csrf{}, badRequest("csrf expiry out of range")
		}
		ttl = time.Duration(*expiresS) * time.Second
	}

	out, err = s.Csrf.Generate(ctx, service.ID, ttl)
	if err != nil {
		return domain.Csrf{}, err
	}
	return out, nil
}

// CsrfVerify consumes an entry created by CsrfCreate.
func (s *AuthService) CsrfVerify(
	ctx context.Context,
	meta domain.AuditMeta,
	keyValue, key string,
) (err error) {
	e := NewAuditEntry(meta, domain.AuditCsrfVerify)
	defer func() { err = s.Audit.Outcome(ctx, e, err) }()

	service, err := s.authService(ctx, e, keyValue)
	if err != nil {
		return err
	}

	_, err = s.Csrf.ConsumeFor(ctx, service.ID, key)
	return err
}
