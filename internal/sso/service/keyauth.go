package service

import (
	"context"
	"errors"

	"github.com/aussiebroadwan/sso/internal/sso/domain"
	"github.com/aussiebroadwan/sso/internal/sso/store"
	"github.com/aussiebroadwan/sso/pkg/cryptox"
)

// Caller is whoever a key value authenticated as.
type Caller struct {
	Key     domain.Key
	Service *domain.Service // nil for root keys
	User    *domain.User    // set for user keys
}

// ServiceMask is the service the caller is limited to, empty for root.
func (c Caller) ServiceMask() string { return c.Key.ServiceID }

// KeyAuth resolves opaque key values to callers.
type KeyAuth struct {
	Store store.Store
}

// Authenticate resolves value and checks the key, its service and its user
// are all enabled. A zero required type accepts any key type.
//
// The returned Caller holds whatever was resolved even when err is not nil,
// so failed attempts can still be attributed in the audit trail.
func (a *KeyAuth) Authenticate(ctx context.Context, value string, required domain.KeyType) (Caller, error) {
	var c Caller
	if value == "" {
		return c, unauthorised("key missing")
	}

	key, err := a.Store.Keys().GetKeyByValueHash(ctx, cryptox.FingerprintToken(value))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c, unauthorised("key not found")
		}
		return c, err
	}
	c.Key = key

	switch {
	case key.Revoked:
		return c, unauthorised("key revoked")
	case !key.Enabled:
		return c, unauthorised("key disabled")
	case required != 0 && key.Type != required:
		return c, unauthorised("key type mismatch")
	}

	if key.ServiceID != "" {
		service, err := a.Store.Services().GetServiceByID(ctx, key.ServiceID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return c, unauthorised("service not found")
			}
			return c, err
		}
		c.Service = &service
		if !service.Enabled {
			return c, unauthorised("service disabled")
		}
	}

	if key.UserID != "" {
		user, err := a.Store.Users().GetUserByID(ctx, key.UserID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return c, unauthorised("user not found")
			}
			return c, err
		}
		c.User = &user
		if !user.Enabled {
			return c, unauthorised("user disabled")
		}
	}

	return c, nil
}

// AuthenticateService requires a service key: one with a service and no user.
func (a *KeyAuth) AuthenticateService(ctx context.Context, value string) (Caller, error) {
	c, err := a.Authenticate(ctx, value, 0)
	if err != nil {
		return c, err
	}
	if !c.Key.IsService() {
		return c, unauthorised("service key required")
	}
	return c, nil
}

// AuthenticateRoot requires a root key.
func (a *KeyAuth) AuthenticateRoot(ctx context.Context, value string) (Caller, error) {
	c, err := a.Authenticate(ctx, value, 0)
	if err != nil {
		return c, err
	}
	if !c.Key.IsRoot() {
		return c, unauthorised("root key required")
	}
	return c, nil
}

// AuthenticateServiceOrRoot accepts a service or root key. Caller.Service is
// nil for root.
func (a *KeyAuth) AuthenticateServiceOrRoot(ctx context.Context, value string) (Caller, error) {
	c, err := a.Authenticate(ctx, value, 0)
	if err != nil {
		return c, err
	}
	if c.Key.IsUser() {
		return c, unauthorised("service or root key required")
	}
	return c, nil
}
