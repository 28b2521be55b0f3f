package service

import (
	"context"
	"time"

	"github.com/aussiebroadwan/sso/internal/sso/domain"
	"github.com/aussiebroadwan/sso/internal/sso/store"
)

// Base holds the collaborators shared by every audited operation.
type Base struct {
	Store store.Store
	Auth  *KeyAuth
	Audit *AuditRecorder

	// Now defaults to time.Now.
	Now func() time.Time
}

func (b *Base) now() time.Time {
	if b.Now != nil {
		return b.Now().UTC()
	}
	return time.Now().UTC()
}

func (b *Base) authService(ctx context.Context, e *AuditEntry, keyValue string) (domain.Service, error) {
	c, err := b.Auth.AuthenticateService(ctx, keyValue)
	e.SetCaller(c)
	if err != nil {
		return domain.Service{}, err
	}
	return *c.Service, nil
}

func (b *Base) authRoot(ctx context.Context, e *AuditEntry, keyValue string) (Caller, error) {
	c, err := b.Auth.AuthenticateRoot(ctx, keyValue)
	e.SetCaller(c)
	return c, err
}

func (b *Base) authServiceOrRoot(ctx context.Context, e *AuditEntry, keyValue string) (Caller, error) {
	c, err := b.Auth.AuthenticateServiceOrRoot(ctx, keyValue)
	e.SetCaller(c)
	return c, err
}

// readUser loads a user of service by id. Checked reads also require the
// user to be enabled. Failures are bad_request so existence never leaks.
func (b *Base) readUser(
	ctx context.Context,
	e *AuditEntry,
	service domain.Service,
	userID string,
	checked bool,
) (domain.User, error) {
	if userID == "" {
		return domain.User{}, badRequest("user id required")
	}
	user, err := b.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return domain.User{}, asBadRequest(storeErr(err, "user not found"))
	}
	// Users of other services do not exist as far as the caller knows.
	if user.ServiceID != service.ID {
		return domain.User{}, badRequest("user not found")
	}
	e.SetUser(user)
	if checked && !user.Enabled {
		return domain.User{}, badRequest("user disabled")
	}
	return user, nil
}

func (b *Base) readUserByEmail(
	ctx context.Context,
	e *AuditEntry,
	service domain.Service,
	email string,
) (domain.User, error) {
	email, err := normaliseEmail(email)
	if err != nil {
		return domain.User{}, err
	}
	user, err := b.Store.Users().GetUserByEmail(ctx, service.ID, email)
	if err != nil {
		return domain.User{}, asBadRequest(storeErr(err, "user not found"))
	}
	e.SetUser(user)
	if !user.Enabled {
		return domain.User{}, badRequest("user disabled")
	}
	return user, nil
}

// readUserKey loads the newest usable key of type t owned by user.
func (b *Base) readUserKey(
	ctx context.Context,
	e *AuditEntry,
	user domain.User,
	t domain.KeyType,
) (domain.Key, error) {
	key, err := b.Store.Keys().GetUserKey(ctx, user.ServiceID, user.ID, t)
	if err != nil {
		return domain.Key{}, asBadRequest(storeErr(err, "user key not found"))
	}
	e.SetUserKey(key)
	return key, nil
}

// readTokenKey loads the Token key a token claims to be signed by. Checked
// reads also require the key to be usable; revoke flows read unchecked so a
// disabled key can still have its tokens revoked.
func (b *Base) readTokenKey(
	ctx context.Context,
	e *AuditEntry,
	user domain.User,
	keyID string,
	checked bool,
) (domain.Key, error) {
	key, err := b.Store.Keys().GetKeyByID(ctx, keyID)
	if err != nil {
		return domain.Key{}, asBadRequest(storeErr(err, "user key not found"))
	}
	if key.UserID != user.ID || key.ServiceID != user.ServiceID || key.Type != domain.KeyTypeToken {
		return domain.Key{}, badRequest("user key not found")
	}
	e.SetUserKey(key)
	if checked && !key.Usable() {
		return domain.Key{}, badRequest("user key disabled or revoked")
	}
	return key, nil
}
