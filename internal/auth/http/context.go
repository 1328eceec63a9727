package http

import (
	"context"
	"net/http"
	"time"

	"github.com/aussiebroadwan/shield/internal/auth/authn"
	"github.com/aussiebroadwan/shield/pkg/httpx"
)

type ctxKey struct{}

// WithAuth stores the request's auth facade in ctx.
func WithAuth(ctx context.Context, a *authn.Auth) context.Context {
	return context.WithValue(ctx, ctxKey{}, a)
}

// AuthFrom returns the auth facade attached by the router, or nil.
func AuthFrom(ctx context.Context) *authn.Auth {
	a, _ := ctx.Value(ctxKey{}).(*authn.Auth)
	return a
}

// CookieConfig names and scopes the session cookies.
type CookieConfig struct {
	Session  string
	Remember string
	Secure   bool
	Domain   string
}

func (c CookieConfig) withDefaults() CookieConfig {
	if c.Session == "" {
		c.Session = "shield_session"
	}
	if c.Remember == "" {
		c.Remember = "shield_remember"
	}
	return c
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

// requestInfo collects what the authenticators read from a request. The
// body is left out; only HMAC authentication needs it.
func (rt *Router) requestInfo(r *http.Request) authn.RequestInfo {
	return authn.RequestInfo{
		IP:            httpx.ClientIP(r),
		UserAgent:     r.UserAgent(),
		SessionID:     cookieValue(r, rt.cookies.Session),
		RememberToken: cookieValue(r, rt.cookies.Remember),
		Authorization: r.Header.Get("Authorization"),
	}
}

// withAuth attaches a fresh auth facade to every request.
func (rt *Router) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a := rt.manager.Begin(rt.requestInfo(r))
		next.ServeHTTP(w, r.WithContext(WithAuth(r.Context(), a)))
	})
}

func (rt *Router) setCookie(w http.ResponseWriter, name, value string, ttl time.Duration) {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   rt.cookies.Domain,
		Secure:   rt.cookies.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	if ttl > 0 {
		c.MaxAge = int(ttl.Seconds())
	} else {
		c.MaxAge = -1
	}
	http.SetCookie(w, c)
}

// writeSessionCookies hands the session and any new remember-me token back
// to the client.
func (rt *Router) writeSessionCookies(w http.ResponseWriter, a *authn.Auth) {
	cfg := rt.manager.Config()
	if carrier, ok := authn.As[authn.SessionCarrier](a); ok && carrier.SessionID() != "" {
		rt.setCookie(w, rt.cookies.Session, carrier.SessionID(), cfg.SessionLifetime)
	}
	if rm, ok := authn.As[authn.RememberMeCapable](a); ok && rm.RememberCookie() != "" {
		rt.setCookie(w, rt.cookies.Remember, rm.RememberCookie(), cfg.RememberLength)
	}
}

func (rt *Router) clearSessionCookies(w http.ResponseWriter) {
	rt.setCookie(w, rt.cookies.Session, "", 0)
	rt.setCookie(w, rt.cookies.Remember, "", 0)
}
