package http

import (
	"bytes"
	"io"
	"net/http"
	"slices"

	"github.com/aussiebroadwan/shield/internal/auth/authn"
	"github.com/aussiebroadwan/shield/pkg/authsdk"
	"github.com/aussiebroadwan/shield/pkg/httpx"
	"github.com/aussiebroadwan/shield/pkg/slogx"
)

// maxSignedBody bounds the body read for HMAC verification.
const maxSignedBody = 1 << 20

// Filters are the middlewares guarding routes. Authentication filters must
// run inside the router, which attaches the auth facade.
type Filters struct {
	Manager   *authn.Manager
	Throttler *httpx.Throttler
}

func (f *Filters) SessionAuth() httpx.Middleware { return f.ChainAuth(authn.SessionAlias) }
func (f *Filters) TokenAuth() httpx.Middleware   { return f.ChainAuth(authn.TokensAlias) }
func (f *Filters) HMACAuth() httpx.Middleware    { return f.ChainAuth(authn.HMACAlias) }
func (f *Filters) JWTAuth() httpx.Middleware     { return f.ChainAuth(authn.JWTAlias) }

// ChainAuth tries each authenticator in order and lets the request through
// on the first that recognises it.
func (f *Filters) ChainAuth(aliases ...string) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			a := AuthFrom(ctx)
			if a == nil {
				authsdk.ErrServerError.WriteError(w)
				return
			}

			// Signed requests need the body, which is read once and put back.
			if slices.Contains(aliases, authn.HMACAlias) {
				if _, ok := httpx.SchemeCredentials(r, authn.HMACScheme); ok {
					body, err := io.ReadAll(io.LimitReader(r.Body, maxSignedBody))
					if err != nil {
						authsdk.ErrInvalidRequest.WriteError(w)
						return
					}
					r.Body = io.NopCloser(bytes.NewReader(body))
					info := a.Request()
					info.Body = body
					a = f.Manager.Begin(info)
					ctx = WithAuth(ctx, a)
				}
			}

			for _, alias := range aliases {
				if _, err := a.Use(alias); err != nil {
					slogx.FromContext(ctx).Error("auth filter misconfigured", "alias", alias, "error", err)
					authsdk.ErrServerError.WriteError(w)
					return
				}
				if a.LoggedIn(ctx) {
					ctx = slogx.With(ctx, "user_id", a.ID(), "auth", alias)
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
			}
			authsdk.ErrUnauthenticated.WriteError(w)
		})
	}
}

// RequireGroup admits users in any of groups.
func (f *Filters) RequireGroup(groups ...string) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			subject := AuthFrom(ctx).Access()
			if subject == nil {
				authsdk.ErrUnauthenticated.WriteError(w)
				return
			}
			in, err := subject.InGroup(ctx, groups...)
			if err != nil {
				slogx.FromContext(ctx).Error("group check failed", "error", err)
				authsdk.ErrServerError.WriteError(w)
				return
			}
			if !in {
				authsdk.ErrForbidden.WriteError(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequirePermission admits users holding permission. Requests made with a
// scoped token also need the token to grant it.
func (f *Filters) RequirePermission(permission string) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			a := AuthFrom(ctx)
			subject := a.Access()
			if subject == nil {
				authsdk.ErrUnauthenticated.WriteError(w)
				return
			}
			if scoped, ok := authn.As[authn.TokenScoped](a); ok && scoped.CurrentToken() != nil && !scoped.TokenCan(permission) {
				authsdk.ErrInsufficientScope.WriteError(w)
				return
			}
			can, err := subject.Can(ctx, permission)
			if err != nil {
				slogx.FromContext(ctx).Error("permission check failed", "permission", permission, "error", err)
				authsdk.ErrServerError.WriteError(w)
				return
			}
			if !can {
				authsdk.ErrForbidden.WriteError(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ForcePasswordReset blocks users whose password is flagged for reset.
func (f *Filters) ForcePasswordReset() httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			id := AuthFrom(ctx).ID()
			if id == "" {
				next.ServeHTTP(w, r)
				return
			}
			required, err := f.Manager.Users().RequiresPasswordReset(ctx, id)
			if err != nil {
				slogx.FromContext(ctx).Error("password reset check failed", "error", err)
				authsdk.ErrServerError.WriteError(w)
				return
			}
			if required {
				authsdk.ErrPasswordResetRequired.WriteError(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AuthRates throttles authentication endpoints per client IP.
func (f *Filters) AuthRates() httpx.Middleware {
	return f.Throttler.Middleware(httpx.ClientIP)
}
