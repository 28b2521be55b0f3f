package service

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/sso/internal/sso/domain"
	"github.com/aussiebroadwan/sso/internal/sso/metrics"
	"github.com/aussiebroadwan/sso/internal/sso/store"
	"github.com/aussiebroadwan/sso/internal/sso/store/drivers/sqlite"
	"github.com/aussiebroadwan/sso/pkg/cryptox"
	"github.com/aussiebroadwan/sso/pkg/idx"
)

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "sso-service")
	if err != nil {
		panic(err)
	}
	cryptox.SetPepperPath(filepath.Join(dir, "pepper"))

	code := m.Run()
	os.RemoveAll(dir)
	os.Exit(code)
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type captureMailer struct {
	mu   sync.Mutex
	sent []Mail
	err  error
}

func (m *captureMailer) Send(_ context.Context, mail Mail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, mail)
	return nil
}

func (m *captureMailer) last(t *testing.T) Mail {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.sent, "no mail sent")
	return m.sent[len(m.sent)-1]
}

func (m *captureMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type harness struct {
	store   store.Store
	clock   *clock
	mail    *captureMailer
	metrics *metrics.Metrics

	auth   *AuthService
	admin  *AdminService
	audits *AuditService

	meta    domain.AuditMeta
	rootKey string
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	clk := &clock{t: time.Now().UTC().Truncate(time.Second)}
	m := metrics.New()
	base := Base{
		Store: st,
		Auth:  &KeyAuth{Store: st},
		Audit: &AuditRecorder{Store: st, Metrics: m, Now: clk.Now},
		Now:   clk.Now,
	}
	csrf := &CsrfStore{Store: st, Now: clk.Now}
	pool := NewPool(2)
	mail := &captureMailer{}

	h := &harness{
		store:   st,
		clock:   clk,
		mail:    mail,
		metrics: m,
		auth: &AuthService{
			Base:      base,
			Csrf:      csrf,
			Tokens:    &TokenEngine{Csrf: csrf, Now: clk.Now},
			Pool:      pool,
			Mailer:    mail,
			Providers: map[string]*Provider{},
		},
		admin:  &AdminService{Base: base, Pool: pool},
		audits: &AuditService{Base: base},
		meta:   domain.AuditMeta{UserAgent: "go-test", Remote: "127.0.0.1"},
	}

	root, created, err := h.admin.EnsureRootKey(context.Background(), slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	require.True(t, created)
	h.rootKey = root.Value
	return h
}

// newService creates an enabled service through the admin API and returns
// it with the value of a service key.
func (h *harness) newService(t *testing.T, name string) (domain.Service, string) {
	t.Helper()
	ctx := context.Background()

	svc, err := h.admin.ServiceCreate(ctx, h.meta, h.rootKey, domain.Service{
		Name:              name,
		URL:               "https://" + name + ".test",
		Enabled:           true,
		UserAllowRegister: true,
		LocalURL:          "https://" + name + ".test/auth",
		OAuth2RedirectURLs: map[string]string{
			ProviderGitHub: "https://" + name + ".test/oauth2/github",
		},
	})
	require.NoError(t, err)

	key, err := h.admin.KeyCreate(ctx, h.meta, h.rootKey, KeyCreateRequest{
		Name:      name + " key",
		Type:      domain.KeyTypeKey,
		ServiceID: svc.ID,
	})
	require.NoError(t, err)
	return svc, key.Value
}

// newUser creates an enabled user with password and a Token key.
func (h *harness) newUser(t *testing.T, serviceKey, email, password string) (domain.User, domain.Key) {
	t.Helper()
	ctx := context.Background()

	user, err := h.admin.UserCreate(ctx, h.meta, serviceKey, UserCreateRequest{
		Name:               "Dave",
		Email:              email,
		Password:           password,
		PasswordAllowReset: true,
		Enabled:            true,
	})
	require.NoError(t, err)

	key, err := h.admin.KeyCreate(ctx, h.meta, serviceKey, KeyCreateRequest{
		Name:   "token",
		Type:   domain.KeyTypeToken,
		UserID: user.ID,
	})
	require.NoError(t, err)
	return user, key.Key
}

// audits returns the records of type t, newest first.
func (h *harness) auditsOf(t *testing.T, at domain.AuditType) []domain.Audit {
	t.Helper()
	out, err := h.store.Audits().ListAudits(context.Background(),
		domain.AuditListQuery{Limit: MaxListLimit},
		domain.AuditListFilter{Types: []string{string(at)}},
		"",
	)
	require.NoError(t, err)
	return out
}

func (h *harness) lastAudit(t *testing.T, at domain.AuditType) domain.Audit {
	t.Helper()
	out := h.auditsOf(t, at)
	require.NotEmpty(t, out, "no %s audit", at)
	return out[0]
}

func newID() string { return idx.New().String() }
