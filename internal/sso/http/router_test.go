package http_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"

	ssohttp "github.com/aussiebroadwan/sso/internal/sso/http"
	"github.com/aussiebroadwan/sso/internal/sso/metrics"
	"github.com/aussiebroadwan/sso/internal/sso/service"
	"github.com/aussiebroadwan/sso/internal/sso/store/drivers/sqlite"
	"github.com/aussiebroadwan/sso/pkg/authsdk"
	"github.com/aussiebroadwan/sso/pkg/cryptox"
	"github.com/aussiebroadwan/sso/pkg/httpx"
)

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "sso-http")
	if err != nil {
		panic(err)
	}
	cryptox.SetPepperPath(filepath.Join(dir, "pepper"))

	code := m.Run()
	os.RemoveAll(dir)
	os.Exit(code)
}

type mailbox struct {
	mu   sync.Mutex
	sent []service.Mail
}

func (m *mailbox) Send(_ context.Context, mail service.Mail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, mail)
	return nil
}

// token returns the token from the link of the newest mail.
func (m *mailbox) token(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.sent, "no mail sent")
	u, err := url.Parse(m.sent[len(m.sent)-1].Link)
	require.NoError(t, err)
	return u.Query().Get("token")
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

type testServer struct {
	URL     string
	rootKey string
	mail    *mailbox
}

func (s *testServer) client(key string) *authsdk.Client {
	return authsdk.NewClient(s.URL, key)
}

type serverOption func(*serverOptions)

type serverOptions struct {
	limits httpx.RateLimits
	csrf   ssohttp.Pinger
}

func withLimits(l httpx.RateLimits) serverOption {
	return func(o *serverOptions) { o.limits = l }
}

func withCsrfPinger(p ssohttp.Pinger) serverOption {
	return func(o *serverOptions) { o.csrf = p }
}

func newTestServer(t *testing.T, opts ...serverOption) *testServer {
	t.Helper()

	o := serverOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	m := metrics.New()
	keyAuth := &service.KeyAuth{Store: st}
	base := service.Base{
		Store: st,
		Auth:  keyAuth,
		Audit: &service.AuditRecorder{Store: st, Metrics: m},
	}
	csrf := &service.CsrfStore{Store: st}
	pool := service.NewPool(2)
	mail := &mailbox{}

	admin := &service.AdminService{Base: base, Pool: pool}
	logger := slog.New(slog.DiscardHandler)

	router := ssohttp.NewRouter("test", st, o.csrf, m, o.limits, logger)
	router.KeyAuth = keyAuth
	router.AdminService = admin
	router.AuditService = &service.AuditService{Base: base}
	router.AuthService = &service.AuthService{
		Base:      base,
		Csrf:      csrf,
		Tokens:    &service.TokenEngine{Csrf: csrf},
		Pool:      pool,
		Mailer:    mail,
		Providers: map[string]*service.Provider{},
	}
	router.ApplyRoutes()

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	root, _, err := admin.EnsureRootKey(context.Background(), logger)
	require.NoError(t, err)

	return &testServer{URL: srv.URL, rootKey: root.Value, mail: mail}
}

// newService creates a service through the API and returns a client using
// one of its keys.
func (s *testServer) newService(t *testing.T, name string) (*authsdk.Service, *authsdk.Client) {
	t.Helper()
	ctx := t.Context()
	root := s.client(s.rootKey)

	svc, err := root.CreateService(ctx, authsdk.ServiceCreateRequest{
		Name:              name,
		URL:               "https://" + name + ".test",
		Enabled:           true,
		UserAllowRegister: true,
		LocalURL:          "https://" + name + ".test/auth",
	})
	require.NoError(t, err)

	key, err := root.CreateKey(ctx, authsdk.KeyCreateRequest{
		Name:      name + " key",
		Type:      authsdk.KeyTypeKey,
		ServiceID: svc.ID,
	})
	require.NoError(t, err)
	require.NotEmpty(t, key.Value)
	return svc, s.client(key.Value)
}

// newUser creates an enabled user with a password and a token key.
func newUser(t *testing.T, c *authsdk.Client, email, password string) *authsdk.User {
	t.Helper()
	ctx := t.Context()

	user, err := c.CreateUser(ctx, authsdk.UserCreateRequest{
		Name:               "Dave",
		Email:              email,
		Password:           password,
		PasswordAllowReset: true,
		Enabled:            true,
	})
	require.NoError(t, err)

	_, err = c.CreateKey(ctx, authsdk.KeyCreateRequest{
		Name:   "token",
		Type:   authsdk.KeyTypeToken,
		UserID: user.ID,
	})
	require.NoError(t, err)
	return user
}

func TestHealthEndpoints(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		s := newTestServer(t)
		c := s.client("")

		live, err := c.GetLiveness(t.Context())
		require.NoError(t, err)
		require.Equal(t, "ok", live.Status)
		require.Equal(t, "test", live.Version)

		ready, err := c.GetReadiness(t.Context())
		require.NoError(t, err)
		require.Equal(t, "ok", ready.Status)
		require.NotNil(t, ready.Checks)
		require.Equal(t, "ok", ready.Checks.Store)
		require.Empty(t, ready.Checks.Csrf)
	})

	t.Run("csrf store down", func(t *testing.T) {
		s := newTestServer(t, withCsrfPinger(failingPinger{}))

		resp, err := http.Get(s.URL + "/readyz")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.Contains(t, string(body), `"status":"degraded"`)
		require.Contains(t, string(body), "connection refused")
	})
}

func TestKeyRequired(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		key  string
		want error
	}{
		{name: "missing", key: "", want: authsdk.ErrUnauthorised},
		{name: "unknown", key: "not-a-key", want: authsdk.ErrUnauthorised},
		{name: "root", key: s.rootKey, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.client(tt.key).ListServices(t.Context(), authsdk.Page{})
			if tt.want == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestAdminCRUD(t *testing.T) {
	s := newTestServer(t)
	ctx := t.Context()
	root := s.client(s.rootKey)
	svc, c := s.newService(t, "bartab")

	t.Run("service key cannot manage services", func(t *testing.T) {
		_, err := c.ListServices(ctx, authsdk.Page{})
		require.ErrorIs(t, err, authsdk.ErrUnauthorised)
	})

	t.Run("service update", func(t *testing.T) {
		name := "bartab-2"
		got, err := root.UpdateService(ctx, svc.ID, authsdk.ServiceUpdateRequest{Name: &name})
		require.NoError(t, err)
		require.Equal(t, name, got.Name)
		require.Equal(t, svc.URL, got.URL)
	})

	t.Run("user lifecycle", func(t *testing.T) {
		user := newUser(t, c, "Dave@Example.com", "correct horse")
		require.Equal(t, "dave@example.com", user.Email)
		require.Equal(t, svc.ID, user.ServiceID)

		users, err := c.ListUsers(ctx, authsdk.UserListQuery{})
		require.NoError(t, err)
		require.Len(t, users, 1)

		disabled := false
		got, err := c.UpdateUser(ctx, user.ID, authsdk.UserUpdateRequest{Enabled: &disabled})
		require.NoError(t, err)
		require.False(t, got.Enabled)

		require.NoError(t, c.DeleteUser(ctx, user.ID))
		_, err = c.GetUser(ctx, user.ID)
		require.ErrorIs(t, err, authsdk.ErrNotFound)
	})

	t.Run("duplicate email conflicts", func(t *testing.T) {
		newUser(t, c, "sam@example.com", "correct horse")
		_, err := c.CreateUser(ctx, authsdk.UserCreateRequest{
			Name:    "Sam",
			Email:   "SAM@example.com",
			Enabled: true,
		})
		require.ErrorIs(t, err, authsdk.ErrConflict)
	})

	t.Run("invalid body", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodPost, s.URL+"/v1/users", strings.NewReader("{"))
		require.NoError(t, err)
		req.Header.Set("Authorization", c.Key)
		req.Header.Set("Content-Type", "application/json")

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("audit trail", func(t *testing.T) {
		created, err := c.CreateAudit(ctx, authsdk.AuditCreateRequest{
			Type:    "bartab:order",
			Subject: "order-1",
			Data:    []byte(`{"total":12}`),
		})
		require.NoError(t, err)
		require.Equal(t, svc.ID, created.ServiceID)

		subject := "order-2"
		updated, err := c.UpdateAudit(ctx, created.ID, authsdk.AuditUpdateRequest{Subject: &subject})
		require.NoError(t, err)
		require.Equal(t, subject, updated.Subject)

		list, err := c.ListAudit(ctx, authsdk.AuditListQuery{Types: []string{"bartab:order"}})
		require.NoError(t, err)
		require.Len(t, list, 1)
		require.Equal(t, created.ID, list[0].ID)
	})
}

func TestLocalLoginAndTokens(t *testing.T) {
	s := newTestServer(t)
	ctx := t.Context()
	_, c := s.newService(t, "bartab")
	user := newUser(t, c, "dave@example.com", "correct horse")

	_, err := c.Login(ctx, authsdk.LoginRequest{Email: "dave@example.com", Password: "wrong horse"})
	require.ErrorIs(t, err, authsdk.ErrBadRequest)

	tokens, err := c.Login(ctx, authsdk.LoginRequest{Email: "dave@example.com", Password: "correct horse"})
	require.NoError(t, err)
	require.Equal(t, user.ID, tokens.User.ID)
	require.NotEmpty(t, tokens.Access.Token)
	require.NotEmpty(t, tokens.Refresh.Token)
	require.Positive(t, tokens.Access.Expires)

	access, err := c.VerifyToken(ctx, authsdk.TokenRequest{
		Token: tokens.Access.Token,
		Audit: &authsdk.AuditCreateRequest{Type: "bartab:view", Subject: "menu"},
	})
	require.NoError(t, err)
	require.Equal(t, user.ID, access.User.ID)
	require.NotEmpty(t, access.Audit)

	t.Run("access token is not a refresh token", func(t *testing.T) {
		_, err := c.RefreshToken(ctx, authsdk.TokenRequest{Token: tokens.Access.Token})
		require.ErrorIs(t, err, authsdk.ErrBadRequest)
	})

	refreshed, err := c.RefreshToken(ctx, authsdk.TokenRequest{Token: tokens.Refresh.Token})
	require.NoError(t, err)
	require.NotEqual(t, tokens.Refresh.Token, refreshed.Refresh.Token)

	t.Run("refresh token is single use", func(t *testing.T) {
		_, err := c.RefreshToken(ctx, authsdk.TokenRequest{Token: tokens.Refresh.Token})
		require.ErrorIs(t, err, authsdk.ErrBadRequest)
	})

	t.Run("revoked refresh token cannot be redeemed", func(t *testing.T) {
		_, err := c.RevokeToken(ctx, authsdk.TokenRequest{Token: refreshed.Refresh.Token})
		require.NoError(t, err)

		_, err = c.RefreshToken(ctx, authsdk.TokenRequest{Token: refreshed.Refresh.Token})
		require.ErrorIs(t, err, authsdk.ErrBadRequest)
	})

	t.Run("other service cannot verify", func(t *testing.T) {
		_, other := s.newService(t, "kitchen")
		_, err := other.VerifyToken(ctx, authsdk.TokenRequest{Token: refreshed.Access.Token})
		require.Error(t, err)
	})
}

func TestRegisterFlow(t *testing.T) {
	s := newTestServer(t)
	ctx := t.Context()
	_, c := s.newService(t, "bartab")

	require.NoError(t, c.Register(ctx, authsdk.RegisterRequest{Name: "Dave", Email: "dave@example.com"}))
	token := s.mail.token(t)
	require.NotEmpty(t, token)

	require.NoError(t, c.RegisterConfirm(ctx, authsdk.ConfirmRequest{
		Token:    token,
		Password: "correct horse",
	}))

	// Register tokens are single use.
	err := c.RegisterConfirm(ctx, authsdk.ConfirmRequest{Token: token, Password: "correct horse"})
	require.ErrorIs(t, err, authsdk.ErrBadRequest)

	users, err := c.ListUsers(ctx, authsdk.UserListQuery{Email: "dave@example.com"})
	require.NoError(t, err)
	require.Len(t, users, 1)
	require.True(t, users[0].Enabled)
}

func TestCsrfEndpoints(t *testing.T) {
	s := newTestServer(t)
	ctx := t.Context()
	_, c := s.newService(t, "bartab")
	_, other := s.newService(t, "kitchen")

	entry, err := c.CreateCsrf(ctx, nil)
	require.NoError(t, err)
	require.WithinDuration(t, time.Now().Add(time.Hour), entry.ExpiresAt, time.Minute)

	require.NoError(t, c.VerifyCsrf(ctx, entry.Key))
	require.ErrorIs(t, c.VerifyCsrf(ctx, entry.Key), authsdk.ErrBadRequest)

	// A verify by another service fails and still uses the entry up.
	foreign, err := c.CreateCsrf(ctx, nil)
	require.NoError(t, err)
	require.ErrorIs(t, other.VerifyCsrf(ctx, foreign.Key), authsdk.ErrBadRequest)
	require.ErrorIs(t, c.VerifyCsrf(ctx, foreign.Key), authsdk.ErrBadRequest)

	tooLong := int64(48 * time.Hour / time.Second)
	_, err = c.CreateCsrf(ctx, &tooLong)
	require.ErrorIs(t, err, authsdk.ErrBadRequest)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	_, c := s.newService(t, "bartab")

	get := func(key string) (*http.Response, string) {
		req, err := http.NewRequest(http.MethodGet, s.URL+"/v1/metrics", nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+key)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp, string(body)
	}

	resp, _ := get(c.Key)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body := get(s.rootKey)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body, `sso_http_requests_total{code="201",method="POST",route="POST /v1/services"}`)
	require.Contains(t, body, `sso_audit_records_total{status="ok",type="sso.service.create"}`)
}

func TestCredentialRateLimit(t *testing.T) {
	limits := httpx.RateLimits{
		Strict: httpx.PerMinute(2),
	}
	s := newTestServer(t, withLimits(limits))
	_, c := s.newService(t, "bartab")

	login := authsdk.LoginRequest{Email: "nobody@example.com", Password: "whatever"}
	for range 2 {
		_, err := c.Login(t.Context(), login)
		require.ErrorIs(t, err, authsdk.ErrBadRequest)
	}

	_, err := c.Login(t.Context(), login)
	var apiErr *authsdk.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	require.Equal(t, authsdk.ErrorCodeRateLimitExceeded, apiErr.Code)
}

func TestUserKeyEndpoints(t *testing.T) {
	s := newTestServer(t)
	ctx := t.Context()
	_, c := s.newService(t, "bartab")
	user := newUser(t, c, "dave@example.com", "correct horse")

	t.Run("api key", func(t *testing.T) {
		key, err := c.CreateKey(ctx, authsdk.KeyCreateRequest{
			Name:   "cli",
			Type:   authsdk.KeyTypeKey,
			UserID: user.ID,
		})
		require.NoError(t, err)

		got, err := c.VerifyKey(ctx, authsdk.KeyRequest{Key: key.Value})
		require.NoError(t, err)
		require.Equal(t, user.ID, got.User.ID)
		require.Equal(t, key.ID, got.Key.ID)

		_, err = c.RevokeKey(ctx, authsdk.KeyRequest{Key: key.Value})
		require.NoError(t, err)

		_, err = c.VerifyKey(ctx, authsdk.KeyRequest{Key: key.Value})
		require.ErrorIs(t, err, authsdk.ErrBadRequest)
	})

	t.Run("totp", func(t *testing.T) {
		err := c.VerifyTotp(ctx, authsdk.TotpRequest{UserID: user.ID, Code: "123456"})
		require.ErrorIs(t, err, authsdk.ErrBadRequest)

		key, err := c.CreateKey(ctx, authsdk.KeyCreateRequest{
			Name:   "phone",
			Type:   authsdk.KeyTypeTotp,
			UserID: user.ID,
		})
		require.NoError(t, err)
		require.NotEmpty(t, key.TotpURL)

		enrolled, err := otp.NewKeyFromURL(key.TotpURL)
		require.NoError(t, err)
		code, err := totp.GenerateCode(enrolled.Secret(), time.Now())
		require.NoError(t, err)

		require.NoError(t, c.VerifyTotp(ctx, authsdk.TotpRequest{UserID: user.ID, Code: code}))
	})
}

func TestOAuth2UnknownProvider(t *testing.T) {
	s := newTestServer(t)
	_, c := s.newService(t, "bartab")

	_, err := c.OAuth2URL(t.Context(), "github")
	require.ErrorIs(t, err, authsdk.ErrBadRequest)
}
