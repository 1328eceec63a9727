package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/shield/internal/auth/authn"
	"github.com/aussiebroadwan/shield/pkg/httpx"
	"github.com/aussiebroadwan/shield/pkg/jwtx"
	"github.com/aussiebroadwan/shield/pkg/slogx"
)

// RouterConfig holds the HTTP settings that are not part of the auth
// configuration.
type RouterConfig struct {
	BuildVersion string
	Cookies      CookieConfig

	// JWKSKeyset is the keyset published at /.well-known/jwks.json.
	JWKSKeyset string

	// MaxJWTTTL caps the lifetime of tokens issued by POST /v1/jwt.
	MaxJWTTTL time.Duration

	// AuthLimit throttles the login and registration endpoints per client IP.
	AuthLimit httpx.RateLimitConfig
}

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	manager   *authn.Manager
	codec     *jwtx.Codec
	cookies   CookieConfig
	filters   *Filters
	cfg       RouterConfig
	startTime time.Time
	logger    *slog.Logger
}

func NewRouter(manager *authn.Manager, codec *jwtx.Codec, cfg RouterConfig, logger *slog.Logger) *Router {
	if cfg.JWKSKeyset == "" {
		cfg.JWKSKeyset = manager.Config().JWTKeyset
	}
	if cfg.MaxJWTTTL <= 0 {
		cfg.MaxJWTTTL = jwtx.DefaultTTL
	}
	if cfg.AuthLimit.RequestsPerWindow == 0 {
		cfg.AuthLimit = httpx.AuthLimit
	}

	r := &Router{
		Mux:     http.NewServeMux(),
		manager: manager,
		codec:   codec,
		cookies: cfg.Cookies.withDefaults(),
		filters: &Filters{
			Manager:   manager,
			Throttler: httpx.NewThrottler(cfg.AuthLimit),
		},
		cfg:       cfg,
		startTime: time.Now(),
		logger:    logger,
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
		r.withAuth,
	}

	return r
}

// Filters exposes the route guards for handlers mounted outside the router.
func (r *Router) Filters() *Filters { return r.filters }

func (r *Router) ApplyRoutes() {
	r.registerLogin()
	r.registerTokens()
	r.registerAccount()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerLogin() {
	h := &LoginHandler{router: r}
	rates := r.filters.AuthRates()

	r.Mux.Handle("POST /v1/login", httpx.Chain(http.HandlerFunc(h.HandleLogin), rates))
	r.Mux.Handle("POST /v1/login/action", httpx.Chain(http.HandlerFunc(h.HandleAction), rates))
	r.Mux.Handle("POST /v1/login/magic-link", httpx.Chain(http.HandlerFunc(h.HandleMagicLinkRequest), rates))
	r.Mux.Handle("GET /v1/login/magic-link/verify", httpx.Chain(http.HandlerFunc(h.HandleMagicLinkVerify), rates))
	r.Mux.Handle("POST /v1/logout", http.HandlerFunc(h.HandleLogout))
	r.Mux.Handle("POST /v1/register", httpx.Chain(http.HandlerFunc(h.HandleRegister), rates))
}

func (r *Router) registerTokens() {
	h := &TokensHandler{router: r}
	anyAuth := r.filters.ChainAuth(authn.SessionAlias, authn.JWTAlias)

	r.Mux.Handle("POST /v1/tokens", httpx.Chain(http.HandlerFunc(h.HandleCreate),
		anyAuth,
		r.filters.ForcePasswordReset(),
	))
	r.Mux.Handle("DELETE /v1/tokens", httpx.Chain(http.HandlerFunc(h.HandleRevoke),
		anyAuth,
	))
	r.Mux.Handle("POST /v1/jwt", httpx.Chain(http.HandlerFunc(h.HandleIssueJWT),
		r.filters.SessionAuth(),
		r.filters.ForcePasswordReset(),
	))
}

func (r *Router) registerAccount() {
	h := &MeHandler{}
	r.Mux.Handle("GET /v1/me", httpx.Chain(h,
		r.filters.ChainAuth(authn.SessionAlias, authn.TokensAlias, authn.HMACAlias, authn.JWTAlias),
	))
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez", LivezHandler(r.startTime, r.cfg.BuildVersion))
	r.Mux.Handle("GET /.well-known/jwks.json", JWKSHandler(r.codec, r.cfg.JWKSKeyset))
}
