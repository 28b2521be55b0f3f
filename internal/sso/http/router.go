package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/sso/internal/sso/metrics"
	"github.com/aussiebroadwan/sso/internal/sso/service"
	"github.com/aussiebroadwan/sso/internal/sso/store"
	"github.com/aussiebroadwan/sso/pkg/httpx"
	"github.com/aussiebroadwan/sso/pkg/slogx"

	_ "github.com/aussiebroadwan/sso/api/sso" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	buildVersion string
	startTime    time.Time
	logger       *slog.Logger
	limits       httpx.RateLimits

	store   store.Store
	csrf    Pinger
	metrics *metrics.Metrics

	KeyAuth      *service.KeyAuth
	AuthService  *service.AuthService
	AdminService *service.AdminService
	AuditService *service.AuditService
}

// NewRouter builds a router with the default middleware chain. csrf is the
// external CSRF store checked by /readyz and may be nil.
func NewRouter(
	buildVersion string,
	st store.Store,
	csrf Pinger,
	m *metrics.Metrics,
	limits httpx.RateLimits,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		buildVersion: buildVersion,
		startTime:    time.Now(),
		logger:       logger,
		limits:       limits,
		store:        st,
		csrf:         csrf,
		metrics:      m,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
		countRequests(r.metrics),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerSystem()
	r.registerServices()
	r.registerKeys()
	r.registerUsers()
	r.registerAudit()
	r.registerLocal()
	r.registerTokens()
	r.registerProviders()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			AussieBroadWAN Single Sign-On API
//	@version		0.1.0
//	@description	Multi-tenant authentication service. Every call is made by a service with its key;
//	@description	users never talk to this API directly.
//	@description
//	@description				Tokens are HS256 JWTs signed with a per-user secret, so disabling a user or
//	@description				their token key ends every outstanding token.
//
//	@contact.name				AussieBroadWAN Team
//	@contact.url				https://github.com/aussiebroadwan/sso
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	KeyAuth
//	@in							header
//	@name						Authorization
//	@description				Root or service key value, bare or as "Bearer {key}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

// keyed chains h behind RequireKey and a per-key rate limit.
func keyed(h http.HandlerFunc, limit httpx.RateLimitConfig) http.Handler {
	return httpx.Chain(h,
		httpx.RequireKey(),
		httpx.RateLimitByKey(limit),
	)
}

// credential chains h behind RequireKey and a per-IP rate limit. Used where
// the body carries a user's secret, so guessing is limited per client.
func credential(h http.HandlerFunc, limit httpx.RateLimitConfig) http.Handler {
	return httpx.Chain(h,
		httpx.RateLimitByIP(limit),
		httpx.RequireKey(),
	)
}

func (r *Router) registerSystem() {
	// Health check endpoints - lenient rate limits (monitoring systems may poll frequently)
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(r.limits.Lenient),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store, r.csrf),
			httpx.RateLimitByIP(r.limits.Lenient),
		),
	)
	r.Mux.Handle("GET /v1/metrics", keyed(MetricsHandler(r.KeyAuth, r.metrics), r.limits.Moderate))
}

func (r *Router) registerServices() {
	h := &ServicesHandler{Admin: r.AdminService}

	r.Mux.Handle("GET /v1/services", keyed(h.HandleList, r.limits.Moderate))
	r.Mux.Handle("POST /v1/services", keyed(h.HandleCreate, r.limits.Moderate))
	r.Mux.Handle("GET /v1/services/{id}", keyed(h.HandleRead, r.limits.Moderate))
	r.Mux.Handle("PATCH /v1/services/{id}", keyed(h.HandleUpdate, r.limits.Moderate))
	r.Mux.Handle("DELETE /v1/services/{id}", keyed(h.HandleDelete, r.limits.Moderate))
}

func (r *Router) registerKeys() {
	h := &KeysHandler{Admin: r.AdminService}

	r.Mux.Handle("GET /v1/keys", keyed(h.HandleList, r.limits.Moderate))
	r.Mux.Handle("POST /v1/keys", keyed(h.HandleCreate, r.limits.Moderate))
	r.Mux.Handle("GET /v1/keys/{id}", keyed(h.HandleRead, r.limits.Moderate))
	r.Mux.Handle("PATCH /v1/keys/{id}", keyed(h.HandleUpdate, r.limits.Moderate))
	r.Mux.Handle("DELETE /v1/keys/{id}", keyed(h.HandleDelete, r.limits.Moderate))
}

func (r *Router) registerUsers() {
	h := &UsersHandler{Admin: r.AdminService}

	r.Mux.Handle("GET /v1/users", keyed(h.HandleList, r.limits.Moderate))
	r.Mux.Handle("POST /v1/users", keyed(h.HandleCreate, r.limits.Moderate))
	r.Mux.Handle("GET /v1/users/{id}", keyed(h.HandleRead, r.limits.Moderate))
	r.Mux.Handle("PATCH /v1/users/{id}", keyed(h.HandleUpdate, r.limits.Moderate))
	r.Mux.Handle("DELETE /v1/users/{id}", keyed(h.HandleDelete, r.limits.Moderate))
}

func (r *Router) registerAudit() {
	h := &AuditHandler{Audit: r.AuditService}

	r.Mux.Handle("GET /v1/audit", keyed(h.HandleList, r.limits.Moderate))
	r.Mux.Handle("POST /v1/audit", keyed(h.HandleCreate, r.limits.Moderate))
	r.Mux.Handle("GET /v1/audit/{id}", keyed(h.HandleRead, r.limits.Moderate))
	r.Mux.Handle("PATCH /v1/audit/{id}", keyed(h.HandleUpdate, r.limits.Moderate))
}

func (r *Router) registerLocal() {
	h := &AuthHandler{Auth: r.AuthService}

	// Password and mail endpoints - strict by IP (brute force and mail flooding)
	r.Mux.Handle("POST /v1/auth/local/login", credential(h.HandleLogin, r.limits.Strict))
	r.Mux.Handle("POST /v1/auth/local/register", credential(h.HandleRegister, r.limits.Strict))
	r.Mux.Handle("POST /v1/auth/local/reset-password", credential(h.HandleResetPassword, r.limits.Strict))
	r.Mux.Handle("POST /v1/auth/local/update-password", credential(h.HandleUpdatePassword, r.limits.Strict))

	// Token redemption - moderate by key
	r.Mux.Handle("POST /v1/auth/local/register/confirm", keyed(h.HandleRegisterConfirm, r.limits.Moderate))
	r.Mux.Handle("POST /v1/auth/local/reset-password/confirm", keyed(h.HandleResetPasswordConfirm, r.limits.Moderate))
	r.Mux.Handle("POST /v1/auth/local/update-email", keyed(h.HandleUpdateEmail, r.limits.Moderate))

	r.Mux.Handle("POST /v1/auth/local/register/revoke",
		keyed(revokeHandler(r.AuthService.RegisterRevoke), r.limits.Moderate))
	r.Mux.Handle("POST /v1/auth/local/reset-password/revoke",
		keyed(revokeHandler(r.AuthService.ResetPasswordRevoke), r.limits.Moderate))
	r.Mux.Handle("POST /v1/auth/local/update-email/revoke",
		keyed(revokeHandler(r.AuthService.UpdateEmailRevoke), r.limits.Moderate))
	r.Mux.Handle("POST /v1/auth/local/update-password/revoke",
		keyed(revokeHandler(r.AuthService.UpdatePasswordRevoke), r.limits.Moderate))
}

func (r *Router) registerTokens() {
	h := &AuthHandler{Auth: r.AuthService}

	// Verification runs on every downstream request - public limit by key
	r.Mux.Handle("POST /v1/auth/token/verify", keyed(h.HandleTokenVerify, r.limits.Public))
	r.Mux.Handle("POST /v1/auth/key/verify", keyed(h.HandleKeyVerify, r.limits.Public))

	r.Mux.Handle("POST /v1/auth/token/refresh", keyed(h.HandleTokenRefresh, r.limits.Moderate))
	r.Mux.Handle("POST /v1/auth/token/revoke", keyed(h.HandleTokenRevoke, r.limits.Moderate))
	r.Mux.Handle("POST /v1/auth/key/revoke", keyed(h.HandleKeyRevoke, r.limits.Moderate))

	// POST /totp - strict by IP (six digit codes)
	r.Mux.Handle("POST /v1/auth/totp", credential(h.HandleTotpVerify, r.limits.Strict))

	r.Mux.Handle("GET /v1/auth/csrf", keyed(h.HandleCsrfCreate, r.limits.Public))
	r.Mux.Handle("POST /v1/auth/csrf", keyed(h.HandleCsrfVerify, r.limits.Public))
}

func (r *Router) registerProviders() {
	h := &AuthHandler{Auth: r.AuthService}

	r.Mux.Handle("GET /v1/auth/provider/{provider}/oauth2", keyed(h.HandleOAuth2URL, r.limits.Moderate))
	r.Mux.Handle("POST /v1/auth/provider/{provider}/oauth2", credential(h.HandleOAuth2Callback, r.limits.Strict))
}
