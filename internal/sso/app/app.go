package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/errgroup"

	httpapi "github.com/aussiebroadwan/sso/internal/sso/http"
	"github.com/aussiebroadwan/sso/internal/sso/metrics"
	"github.com/aussiebroadwan/sso/internal/sso/service"
	"github.com/aussiebroadwan/sso/internal/sso/store"
	"github.com/aussiebroadwan/sso/internal/sso/store/drivers/postgres"
	"github.com/aussiebroadwan/sso/internal/sso/store/drivers/redis"
	"github.com/aussiebroadwan/sso/internal/sso/store/drivers/sqlite"
	"github.com/aussiebroadwan/sso/pkg/cryptox"
	"github.com/aussiebroadwan/sso/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"
)

// Application encapsulates the SSO service with all its dependencies.
type Application struct {
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	// Core dependencies
	db   store.Store
	csrf *redis.CsrfStore // nil unless SSO_REDIS_URL is set

	// Services
	authService         *service.AuthService
	adminService        *service.AdminService
	auditService        *service.AuditService
	housekeepingService *service.HousekeepingService

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized.
func New(ctx context.Context, cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "sso",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
		metrics: metrics.New(),
	}

	cryptox.SetPepperPath(app.cfg.PepperFile)
	cryptox.SetMasterKeyPath(app.cfg.MasterKeyPath)
	if err := cryptox.LoadPepper(); err != nil {
		return nil, fmt.Errorf("failed to load pepper: %w", err)
	}
	if err := cryptox.LoadMasterKey(); err != nil {
		return nil, fmt.Errorf("failed to load master key: %w", err)
	}

	if err := app.initStore(ctx); err != nil {
		return nil, err
	}

	providers, err := app.initProviders(ctx)
	if err != nil {
		_ = app.Close()
		return nil, err
	}

	app.initServices(providers)
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until ctx is done, a shutdown
// signal arrives, or the server fails.
func (app *Application) Run(ctx context.Context) error {
	if _, _, err := app.adminService.EnsureRootKey(ctx, app.logger); err != nil {
		return err
	}

	app.housekeepingService.Start()

	app.logger.Info("sso service starting", "port", app.cfg.Port, "version", BuildVersion)

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(sigCtx)
	g.Go(func() error {
		if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		app.logger.Info("shutdown requested", "cause", context.Cause(gctx))
		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// Shutdown gracefully shuts down the application.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down sso service...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	if err := app.Close(); err != nil {
		app.logger.Error("error closing stores", "error", err)
		return err
	}

	app.logger.Info("sso service stopped")
	return nil
}

// Close releases the store and the Redis client.
func (app *Application) Close() error {
	var errs []error
	if app.csrf != nil {
		errs = append(errs, app.csrf.Close())
	}
	if app.db != nil {
		errs = append(errs, app.db.Close())
	}
	return errors.Join(errs...)
}

// CreateRootKey adds a root key and returns its value. Used to recover
// access when every root key is lost.
func (app *Application) CreateRootKey(ctx context.Context, name string) (string, error) {
	key, err := app.adminService.CreateRootKey(ctx, name)
	if err != nil {
		return "", err
	}
	app.logger.Info("root key created", "key_id", key.ID, "name", key.Name)
	return key.Value, nil
}

// retry runs op with exponential backoff until it succeeds or the start-up
// timeout passes.
func retry[T any](ctx context.Context, app *Application, what string, op backoff.Operation[T]) (T, error) {
	return backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(app.cfg.StartupTimeout),
		backoff.WithNotify(func(err error, d time.Duration) {
			app.logger.Warn(what+" not ready, retrying", "error", err, "retry_in", d)
		}),
	)
}

// initStore opens the configured store, applies migrations and, when Redis
// is configured, moves CSRF entries there.
func (app *Application) initStore(ctx context.Context) error {
	db, err := retry(ctx, app, "store", func() (store.Store, error) {
		return app.openStore(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}
	app.logger.Info("database migrations applied successfully", "driver", app.cfg.StoreDriver)
	app.db = db

	if app.cfg.RedisURL == "" {
		return nil
	}
	csrf, err := retry(ctx, app, "redis", func() (*redis.CsrfStore, error) {
		return redis.NewCsrfStore(ctx, redis.Config{
			URL:       app.cfg.RedisURL,
			KeyPrefix: app.cfg.RedisKeyPrefix,
		})
	})
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	app.csrf = csrf
	app.db = store.WithCsrf(db, csrf)
	app.logger.Info("csrf entries stored in redis")
	return nil
}

func (app *Application) openStore(ctx context.Context) (store.Store, error) {
	switch app.cfg.StoreDriver {
	case DriverPostgres:
		db, err := postgres.Connect(ctx, app.cfg.DatabaseURL, postgres.PoolConfig{
			MaxConns: app.cfg.DatabaseMaxConns,
		})
		if err != nil {
			return nil, err
		}
		return db, nil
	case DriverSQLite:
		dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", app.cfg.DatabaseFile)
		db, err := sqlite.NewStore(dsn)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		return db, nil
	default:
		return nil, backoff.Permanent(fmt.Errorf("unknown store driver %q", app.cfg.StoreDriver))
	}
}

// initProviders builds the OAuth2 providers that have credentials.
func (app *Application) initProviders(ctx context.Context) (map[string]*service.Provider, error) {
	providers := map[string]*service.Provider{}

	if app.cfg.GitHub.Enabled() {
		providers[service.ProviderGitHub] = service.GitHubProvider(providerConfig(app.cfg.GitHub))
	}
	if app.cfg.Microsoft.Enabled() {
		providers[service.ProviderMicrosoft] = service.MicrosoftProvider(providerConfig(app.cfg.Microsoft))
	}
	if app.cfg.OIDC.Enabled() {
		p, err := retry(ctx, app, "oidc issuer", func() (*service.Provider, error) {
			return service.OIDCProvider(ctx, app.cfg.OIDCIssuer, providerConfig(app.cfg.OIDC))
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize oidc provider: %w", err)
		}
		providers[service.ProviderOIDC] = p
	}

	for name := range providers {
		app.logger.Info("oauth2 provider enabled", "provider", name)
	}
	return providers, nil
}

func providerConfig(c ProviderConfig) service.ProviderConfig {
	return service.ProviderConfig{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Scopes:       c.Scopes,
	}
}

// initServices initializes all business logic services.
func (app *Application) initServices(providers map[string]*service.Provider) {
	base := service.Base{
		Store: app.db,
		Auth:  &service.KeyAuth{Store: app.db},
		Audit: &service.AuditRecorder{Store: app.db, Metrics: app.metrics},
	}
	csrf := &service.CsrfStore{Store: app.db}
	pool := service.NewPool(app.cfg.PasswordWorkers)

	app.authService = &service.AuthService{
		Base: base,
		Csrf: csrf,
		Tokens: &service.TokenEngine{
			Csrf:       csrf,
			AccessTTL:  app.cfg.AccessTTL,
			RefreshTTL: app.cfg.RefreshTTL,
			RevokeTTL:  app.cfg.RevokeTTL,
		},
		Pool:      pool,
		Mailer:    service.LogMailer{},
		Providers: providers,
	}
	app.adminService = &service.AdminService{Base: base, Pool: pool}
	app.auditService = &service.AuditService{Base: base}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
}

// initHTTP initializes the HTTP router and server.
func (app *Application) initHTTP() {
	var csrf httpapi.Pinger
	if app.csrf != nil {
		csrf = app.csrf
	}

	router := httpapi.NewRouter(
		BuildVersion,
		app.db,
		csrf,
		app.metrics,
		app.cfg.RateLimit.Limits(),
		app.logger,
	)

	router.KeyAuth = app.authService.Auth
	router.AuthService = app.authService
	router.AdminService = app.adminService
	router.AuditService = app.auditService
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
