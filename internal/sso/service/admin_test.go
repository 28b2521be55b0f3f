package service

import (
	"context"
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/sso/internal/sso/domain"
)

func TestServiceAdminRequiresRoot(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	svc, svcKey := h.newService(t, "bartab")

	_, err := h.admin.ServiceList(ctx, h.meta, svcKey, "", 0)
	require.ErrorIs(t, err, ErrUnauthorised)
	_, err = h.admin.ServiceRead(ctx, h.meta, svcKey, svc.ID)
	require.ErrorIs(t, err, ErrUnauthorised)

	list, err := h.admin.ServiceList(ctx, h.meta, h.rootKey, "", 0)
	require.NoError(t, err)
	require.Len(t, list, 1)

	_, err = h.admin.ServiceCreate(ctx, h.meta, h.rootKey, domain.Service{Name: "x", URL: "ftp://x"})
	require.ErrorIs(t, err, ErrBadRequest)

	_, err = h.admin.ServiceCreate(ctx, h.meta, h.rootKey, domain.Service{
		Name: "x", URL: "https://x.test",
		OAuth2RedirectURLs: map[string]string{"myspace": "https://x.test/cb"},
	})
	require.ErrorIs(t, err, ErrBadRequest)
}

func TestServiceUpdateRecordsDiff(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	svc, _ := h.newService(t, "bartab")

	name := "bartab2"
	out, err := h.admin.ServiceUpdate(ctx, h.meta, h.rootKey, svc.ID, domain.ServiceUpdate{Name: &name})
	require.NoError(t, err)
	require.Equal(t, "bartab2", out.Name)

	a := h.lastAudit(t, domain.AuditServiceUpdate)
	require.Equal(t, svc.ID, a.Subject)
	require.JSONEq(t, `{"type":"diff","data":[["name","bartab","bartab2"]]}`, string(a.Data))
}

func TestServiceDeleteCascades(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	svc, svcKey := h.newService(t, "bartab")
	user, _ := h.newUser(t, svcKey, "a@example.com", "password1")

	require.NoError(t, h.admin.ServiceDelete(ctx, h.meta, h.rootKey, svc.ID))

	_, err := h.store.Users().GetUserByID(ctx, user.ID)
	require.Error(t, err)
	_, err = h.auth.Auth.AuthenticateService(ctx, svcKey)
	require.ErrorIs(t, err, ErrUnauthorised)

	err = h.admin.ServiceDelete(ctx, h.meta, h.rootKey, svc.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestKeyCreateRules(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	svc, svcKey := h.newService(t, "bartab")
	other, otherKey := h.newService(t, "other")
	user, _ := h.newUser(t, svcKey, "a@example.com", "password1")

	tests := []struct {
		name   string
		caller string
		req    KeyCreateRequest
		want   error
	}{
		{"service creates service key", svcKey, KeyCreateRequest{Name: "k", Type: domain.KeyTypeKey}, ErrForbidden},
		{"service creates key for foreign user", otherKey, KeyCreateRequest{Name: "k", Type: domain.KeyTypeKey, UserID: user.ID}, ErrBadRequest},
		{"token key without user", h.rootKey, KeyCreateRequest{Name: "k", Type: domain.KeyTypeToken, ServiceID: svc.ID}, ErrBadRequest},
		{"user key without service", h.rootKey, KeyCreateRequest{Name: "k", Type: domain.KeyTypeKey, UserID: user.ID}, ErrBadRequest},
		{"missing name", h.rootKey, KeyCreateRequest{Type: domain.KeyTypeKey}, ErrBadRequest},
		{"bad type", h.rootKey, KeyCreateRequest{Name: "k"}, ErrBadRequest},
		{"unknown service", h.rootKey, KeyCreateRequest{Name: "k", Type: domain.KeyTypeKey, ServiceID: newID()}, ErrBadRequest},
		{"service creates user key", svcKey, KeyCreateRequest{Name: "k", Type: domain.KeyTypeKey, UserID: user.ID}, nil},
		{"root creates root key", h.rootKey, KeyCreateRequest{Name: "k", Type: domain.KeyTypeKey}, nil},
		{"root creates service key", h.rootKey, KeyCreateRequest{Name: "k", Type: domain.KeyTypeKey, ServiceID: other.ID}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := h.admin.KeyCreate(ctx, h.meta, tt.caller, tt.req)
			if tt.want != nil {
				require.ErrorIs(t, err, tt.want)
				return
			}
			require.NoError(t, err)
			require.NotEmpty(t, out.Value)
			require.True(t, out.Enabled)

			// Only the fingerprint is stored.
			stored, err := h.store.Keys().GetKeyByID(ctx, out.ID)
			require.NoError(t, err)
			require.NotEqual(t, out.Value, stored.ValueHash)
		})
	}
}

func TestKeyAdminIsMasked(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, svcKey := h.newService(t, "bartab")
	_, otherKey := h.newService(t, "other")
	_, key := h.newUser(t, svcKey, "a@example.com", "password1")

	_, err := h.admin.KeyRead(ctx, h.meta, otherKey, key.ID)
	require.ErrorIs(t, err, ErrNotFound)
	err = h.admin.KeyDelete(ctx, h.meta, otherKey, key.ID)
	require.ErrorIs(t, err, ErrNotFound)

	keys, err := h.admin.KeyList(ctx, h.meta, otherKey, domain.KeyFilter{})
	require.NoError(t, err)
	for _, k := range keys {
		require.NotEqual(t, key.ID, k.ID)
	}

	got, err := h.admin.KeyRead(ctx, h.meta, svcKey, key.ID)
	require.NoError(t, err)
	require.Equal(t, key.ID, got.ID)
}

func TestKeyUpdateCannotUnrevoke(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, svcKey := h.newService(t, "bartab")
	_, key := h.newUser(t, svcKey, "a@example.com", "password1")

	yes, no := true, false
	out, err := h.admin.KeyUpdate(ctx, h.meta, svcKey, key.ID, domain.KeyUpdate{Revoked: &yes})
	require.NoError(t, err)
	require.True(t, out.Revoked)

	out, err = h.admin.KeyUpdate(ctx, h.meta, svcKey, key.ID, domain.KeyUpdate{Revoked: &no, Enabled: &yes})
	require.NoError(t, err)
	require.True(t, out.Revoked)

	// Revoked token keys no longer sign in.
	_, err = h.auth.Login(ctx, h.meta, svcKey, LoginRequest{Email: "a@example.com", Password: "password1"})
	require.ErrorIs(t, err, ErrBadRequest)
}

func TestAdminTimestampsFollowClock(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.clock.Advance(-72 * time.Hour)
	created := h.clock.Now()

	svc, svcKey := h.newService(t, "bartab")
	user, key := h.newUser(t, svcKey, "a@example.com", "password1")

	gotSvc, err := h.admin.ServiceRead(ctx, h.meta, h.rootKey, svc.ID)
	require.NoError(t, err)
	require.True(t, created.Equal(gotSvc.CreatedAt), "service created_at %s", gotSvc.CreatedAt)

	gotUser, err := h.admin.UserRead(ctx, h.meta, svcKey, user.ID)
	require.NoError(t, err)
	require.True(t, created.Equal(gotUser.CreatedAt), "user created_at %s", gotUser.CreatedAt)

	gotKey, err := h.admin.KeyRead(ctx, h.meta, svcKey, key.ID)
	require.NoError(t, err)
	require.True(t, created.Equal(gotKey.CreatedAt), "key created_at %s", gotKey.CreatedAt)
	require.True(t, created.Equal(gotKey.UpdatedAt), "key updated_at %s", gotKey.UpdatedAt)

	h.clock.Advance(time.Hour)
	name := "renamed"
	_, err = h.admin.KeyUpdate(ctx, h.meta, svcKey, key.ID, domain.KeyUpdate{Name: &name})
	require.NoError(t, err)

	gotKey, err = h.admin.KeyRead(ctx, h.meta, svcKey, key.ID)
	require.NoError(t, err)
	require.True(t, created.Equal(gotKey.CreatedAt))
	require.True(t, h.clock.Now().Equal(gotKey.UpdatedAt), "key updated_at %s", gotKey.UpdatedAt)
}

func TestUserAdmin(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	svc, svcKey := h.newService(t, "bartab")
	_, otherKey := h.newService(t, "other")

	_, err := h.admin.UserCreate(ctx, h.meta, h.rootKey, UserCreateRequest{Name: "Dave", Email: "a@example.com"})
	require.ErrorIs(t, err, ErrBadRequest, "root must name a service")

	user, err := h.admin.UserCreate(ctx, h.meta, h.rootKey, UserCreateRequest{
		ServiceID: svc.ID, Name: "Dave", Email: "a@example.com", Enabled: true,
	})
	require.NoError(t, err)
	require.False(t, user.HasPassword())

	_, err = h.admin.UserCreate(ctx, h.meta, svcKey, UserCreateRequest{Name: "Dave", Email: "A@example.com"})
	require.ErrorIs(t, err, ErrConflict)

	_, err = h.admin.UserRead(ctx, h.meta, otherKey, user.ID)
	require.ErrorIs(t, err, ErrNotFound)

	users, err := h.admin.UserList(ctx, h.meta, svcKey, domain.UserFilter{Email: "A@Example.com"})
	require.NoError(t, err)
	require.Len(t, users, 1)

	pw := "password1"
	_, err = h.admin.UserUpdate(ctx, h.meta, svcKey, user.ID, UserUpdateRequest{Password: &pw})
	require.NoError(t, err)
	a := h.lastAudit(t, domain.AuditUserUpdate)
	require.JSONEq(t, `{"type":"diff","data":[["password","redacted","redacted"]]}`, string(a.Data))
	require.NotContains(t, string(a.Data), "argon2")

	require.NoError(t, h.admin.UserDelete(ctx, h.meta, svcKey, user.ID))
	_, err = h.admin.UserRead(ctx, h.meta, svcKey, user.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestTotpVerify(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, svcKey := h.newService(t, "bartab")
	user, _ := h.newUser(t, svcKey, "a@example.com", "password1")

	err := h.auth.TotpVerify(ctx, h.meta, svcKey, TotpRequest{UserID: user.ID, Code: "123456"})
	require.ErrorIs(t, err, ErrBadRequest, "no totp key yet")

	k, err := h.admin.KeyCreate(ctx, h.meta, svcKey, KeyCreateRequest{Name: "phone", Type: domain.KeyTypeTotp, UserID: user.ID})
	require.NoError(t, err)
	require.NotEmpty(t, k.TotpURL)

	enrolled, err := otp.NewKeyFromURL(k.TotpURL)
	require.NoError(t, err)
	require.Equal(t, "bartab", enrolled.Issuer())

	code, err := totp.GenerateCode(enrolled.Secret(), h.clock.Now())
	require.NoError(t, err)
	require.NoError(t, h.auth.TotpVerify(ctx, h.meta, svcKey, TotpRequest{UserID: user.ID, Code: code}))

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	err = h.auth.TotpVerify(ctx, h.meta, svcKey, TotpRequest{UserID: user.ID, Code: wrong})
	require.ErrorIs(t, err, ErrBadRequest)
}

func TestKeyVerifyAndRevoke(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, svcKey := h.newService(t, "bartab")
	_, otherKey := h.newService(t, "other")
	user, _ := h.newUser(t, svcKey, "a@example.com", "password1")

	k, err := h.admin.KeyCreate(ctx, h.meta, svcKey, KeyCreateRequest{Name: "api", Type: domain.KeyTypeKey, UserID: user.ID})
	require.NoError(t, err)

	uk, _, err := h.auth.KeyVerify(ctx, h.meta, svcKey, KeyRequest{Key: k.Value})
	require.NoError(t, err)
	require.Equal(t, user.ID, uk.User.ID)
	require.Equal(t, k.ID, uk.Key.ID)

	_, _, err = h.auth.KeyVerify(ctx, h.meta, otherKey, KeyRequest{Key: k.Value})
	require.ErrorIs(t, err, ErrBadRequest)

	_, err = h.auth.KeyRevoke(ctx, h.meta, svcKey, KeyRequest{Key: k.Value})
	require.NoError(t, err)
	a := h.lastAudit(t, domain.AuditKeyRevoke)
	require.JSONEq(t, `{"type":"diff","data":[["revoked",false,true]]}`, string(a.Data))

	_, _, err = h.auth.KeyVerify(ctx, h.meta, svcKey, KeyRequest{Key: k.Value})
	require.ErrorIs(t, err, ErrBadRequest)

	_, err = h.auth.KeyRevoke(ctx, h.meta, svcKey, KeyRequest{Key: k.Value})
	require.NoError(t, err)
}

func TestEnsureRootKeyOnce(t *testing.T) {
	h := newHarness(t)
	_, created, err := h.admin.EnsureRootKey(context.Background(), nil)
	require.NoError(t, err)
	require.False(t, created)
}
