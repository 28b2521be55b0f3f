package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/sso/internal/sso/domain"
)

func TestAuthenticate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	svc, svcKey := h.newService(t, "bartab")
	auth := h.auth.Auth

	c, err := auth.AuthenticateService(ctx, svcKey)
	require.NoError(t, err)
	require.Equal(t, svc.ID, c.Service.ID)
	require.Equal(t, svc.ID, c.ServiceMask())

	c, err = auth.AuthenticateRoot(ctx, h.rootKey)
	require.NoError(t, err)
	require.Nil(t, c.Service)
	require.Empty(t, c.ServiceMask())

	_, err = auth.AuthenticateServiceOrRoot(ctx, h.rootKey)
	require.NoError(t, err)
	_, err = auth.AuthenticateServiceOrRoot(ctx, svcKey)
	require.NoError(t, err)

	tests := []struct {
		name string
		fn   func() error
	}{
		{"missing", func() error { _, err := auth.AuthenticateService(ctx, ""); return err }},
		{"unknown", func() error { _, err := auth.AuthenticateService(ctx, "nope"); return err }},
		{"root as service", func() error { _, err := auth.AuthenticateService(ctx, h.rootKey); return err }},
		{"service as root", func() error { _, err := auth.AuthenticateRoot(ctx, svcKey); return err }},
		{"type mismatch", func() error { _, err := auth.Authenticate(ctx, svcKey, domain.KeyTypeTotp); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.ErrorIs(t, tt.fn(), ErrUnauthorised)
		})
	}
}

func TestAuthenticateRevokedKey(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	svc, _ := h.newService(t, "bartab")

	for _, enabled := range []bool{true, false} {
		k, err := newKey(&svc, nil, domain.KeyTypeKey, "revoked", h.clock.Now())
		require.NoError(t, err)
		k.Enabled = enabled
		k.Revoked = true
		require.NoError(t, h.store.Keys().CreateKey(ctx, k.Key))

		c, err := h.auth.Auth.Authenticate(ctx, k.Value, 0)
		require.ErrorIs(t, err, ErrUnauthorised)
		require.Equal(t, k.ID, c.Key.ID, "failed callers are still attributed")
	}
}

func TestAuthenticateDisabledService(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	svc, svcKey := h.newService(t, "bartab")

	no := false
	_, err := h.admin.ServiceUpdate(ctx, h.meta, h.rootKey, svc.ID, domain.ServiceUpdate{Enabled: &no})
	require.NoError(t, err)

	_, err = h.auth.Auth.AuthenticateService(ctx, svcKey)
	require.ErrorIs(t, err, ErrUnauthorised)

	// The failed attempt is audited against the key.
	_, err = h.auth.CsrfCreate(ctx, h.meta, svcKey, nil)
	require.ErrorIs(t, err, ErrUnauthorised)
	a := h.lastAudit(t, domain.AuditCsrfCreate)
	require.Equal(t, svc.ID, a.ServiceID)
	require.Contains(t, auditErrorText(t, a), "unauthorised: service disabled")
}
