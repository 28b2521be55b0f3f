package service

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/sso/internal/sso/domain"
	"github.com/aussiebroadwan/sso/pkg/jwtx"
)

func TestTokenEncodeDecode(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	svc, svcKey := h.newService(t, "bartab")
	user, key := h.newUser(t, svcKey, "a@example.com", "password1")
	engine := h.auth.Tokens

	kinds := []jwtx.Kind{jwtx.KindRefresh, jwtx.KindRegister, jwtx.KindResetPassword, jwtx.KindRevoke}
	for _, kind := range kinds {
		t.Run(kind.String(), func(t *testing.T) {
			tok, err := engine.Encode(ctx, kind, svc, user, key, time.Hour, "")
			require.NoError(t, err)
			require.Equal(t, int64(3600), tok.Expires)

			userID, keyID, err := DecodeUnsafe(tok.Token, svc.ID)
			require.NoError(t, err)
			require.Equal(t, user.ID, userID)
			require.Equal(t, key.ID, keyID)

			claims, err := jwtx.ParseUnverified(tok.Token)
			require.NoError(t, err)
			csrfKey, err := engine.Decode(kind, svc, user, key, tok.Token)
			require.NoError(t, err)
			require.NotEmpty(t, csrfKey)
			require.Equal(t, claims.CSRFKey, csrfKey)
		})
	}

	t.Run("access tokens carry no csrf", func(t *testing.T) {
		tok, err := engine.Encode(ctx, jwtx.KindAccess, svc, user, key, time.Hour, "")
		require.NoError(t, err)
		csrfKey, err := engine.Decode(jwtx.KindAccess, svc, user, key, tok.Token)
		require.NoError(t, err)
		require.Empty(t, csrfKey)
	})
}

func TestTokenDecodeRejects(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	svc, svcKey := h.newService(t, "bartab")
	other, _ := h.newService(t, "other")
	user, key := h.newUser(t, svcKey, "a@example.com", "password1")
	_, otherKey := h.newUser(t, svcKey, "b@example.com", "password1")
	engine := h.auth.Tokens

	tok, err := engine.Encode(ctx, jwtx.KindRefresh, svc, user, key, time.Minute, "")
	require.NoError(t, err)

	t.Run("wrong kind", func(t *testing.T) {
		_, err := engine.Decode(jwtx.KindAccess, svc, user, key, tok.Token)
		require.ErrorIs(t, err, ErrBadRequest)
	})

	t.Run("wrong service", func(t *testing.T) {
		_, err := engine.Decode(jwtx.KindRefresh, other, user, key, tok.Token)
		require.ErrorIs(t, err, ErrBadRequest)

		_, _, err = DecodeUnsafe(tok.Token, other.ID)
		require.ErrorIs(t, err, ErrBadRequest)
	})

	t.Run("signed by another key", func(t *testing.T) {
		_, err := engine.Decode(jwtx.KindRefresh, svc, user, otherKey, tok.Token)
		require.ErrorIs(t, err, ErrBadRequest)
	})

	t.Run("garbage", func(t *testing.T) {
		_, _, err := DecodeUnsafe("not.a.token", svc.ID)
		require.ErrorIs(t, err, ErrBadRequest)
	})

	t.Run("alg none", func(t *testing.T) {
		claims := jwtx.NewClaims(jwtx.KindRefresh, svc.ID, user.ID, key.ID, "csrf", time.Hour, h.clock.Now())
		unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = engine.Decode(jwtx.KindRefresh, svc, user, key, unsigned)
		require.ErrorIs(t, err, ErrBadRequest)
	})

	t.Run("expired", func(t *testing.T) {
		h.clock.Advance(time.Minute)
		_, err := engine.Decode(jwtx.KindRefresh, svc, user, key, tok.Token)
		require.ErrorIs(t, err, ErrBadRequest)
	})
}

func TestLoginRefreshScenario(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	svc, _ := h.newService(t, "bartab")

	// K1 is a Token type key of the service itself.
	k1, err := newKey(&svc, nil, domain.KeyTypeToken, "k1", h.clock.Now())
	require.NoError(t, err)
	require.NoError(t, h.store.Keys().CreateKey(ctx, k1.Key))

	hash, err := h.auth.Pool.HashPassword(ctx, "pw")
	require.NoError(t, err)
	user := domain.User{
		ID: newID(), ServiceID: svc.ID, Name: "U", Email: "a@example.com",
		PasswordHash: hash, Enabled: true,
	}
	require.NoError(t, h.store.Users().CreateUser(ctx, user))
	_, err = h.admin.KeyCreate(ctx, h.meta, h.rootKey, KeyCreateRequest{
		Name: "k2", Type: domain.KeyTypeToken, ServiceID: svc.ID, UserID: user.ID,
	})
	require.NoError(t, err)

	ut, err := h.auth.Login(ctx, h.meta, k1.Value, LoginRequest{Email: "a@example.com", Password: "pw"})
	require.NoError(t, err)
	require.Equal(t, user.ID, ut.User.ID)
	require.NotEmpty(t, ut.Access.Token)
	require.NotEmpty(t, ut.Refresh.Token)

	verified, _, err := h.auth.TokenVerify(ctx, h.meta, k1.Value, TokenRequest{Token: ut.Access.Token})
	require.NoError(t, err)
	require.Equal(t, user.ID, verified.User.ID)

	refreshed, _, err := h.auth.TokenRefresh(ctx, h.meta, k1.Value, TokenRequest{Token: ut.Refresh.Token})
	require.NoError(t, err)
	require.NotEqual(t, ut.Refresh.Token, refreshed.Refresh.Token)

	_, _, err = h.auth.TokenRefresh(ctx, h.meta, k1.Value, TokenRequest{Token: ut.Refresh.Token})
	require.ErrorIs(t, err, ErrBadRequest)

	// The refresh token issued by the refresh still works once.
	_, _, err = h.auth.TokenRefresh(ctx, h.meta, k1.Value, TokenRequest{Token: refreshed.Refresh.Token})
	require.NoError(t, err)
}

func TestLoginRejects(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, svcKey := h.newService(t, "bartab")
	user, _ := h.newUser(t, svcKey, "a@example.com", "password1")

	tests := []struct {
		name  string
		key   string
		email string
		pw    string
		want  error
	}{
		{"no key", "", "a@example.com", "password1", ErrUnauthorised},
		{"root key", h.rootKey, "a@example.com", "password1", ErrUnauthorised},
		{"unknown email", svcKey, "nobody@example.com", "password1", ErrBadRequest},
		{"wrong password", svcKey, "a@example.com", "password2", ErrBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.auth.Login(ctx, h.meta, tt.key, LoginRequest{Email: tt.email, Password: tt.pw})
			require.ErrorIs(t, err, tt.want)
		})
	}

	t.Run("password update required", func(t *testing.T) {
		require := require.New(t)
		yes := true
		_, err := h.admin.UserUpdate(ctx, h.meta, svcKey, user.ID, UserUpdateRequest{
			UserUpdate: domain.UserUpdate{PasswordRequireUpdate: &yes},
		})
		require.NoError(err)

		_, err = h.auth.Login(ctx, h.meta, svcKey, LoginRequest{Email: "a@example.com", Password: "password1"})
		require.ErrorIs(err, ErrForbidden)
	})
}

func TestTokenRevoke(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, svcKey := h.newService(t, "bartab")
	h.newUser(t, svcKey, "a@example.com", "password1")

	ut, err := h.auth.Login(ctx, h.meta, svcKey, LoginRequest{Email: "a@example.com", Password: "password1"})
	require.NoError(t, err)

	auditID, err := h.auth.TokenRevoke(ctx, h.meta, svcKey, TokenRequest{
		Token: ut.Refresh.Token,
		Audit: &AuditCustom{Type: "bartab.logout", Subject: "session-1"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, auditID)

	custom, err := h.store.Audits().GetAudit(ctx, auditID, "")
	require.NoError(t, err)
	require.Equal(t, "bartab.logout", custom.Type)

	_, _, err = h.auth.TokenRefresh(ctx, h.meta, svcKey, TokenRequest{Token: ut.Refresh.Token})
	require.ErrorIs(t, err, ErrBadRequest)

	_, err = h.auth.TokenRevoke(ctx, h.meta, svcKey, TokenRequest{
		Token: ut.Access.Token,
		Audit: &AuditCustom{Type: "sso.fake"},
	})
	require.ErrorIs(t, err, ErrBadRequest)
}
