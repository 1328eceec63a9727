package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/aussiebroadwan/shield/internal/auth/authn"
	"github.com/aussiebroadwan/shield/internal/auth/store"
	"github.com/aussiebroadwan/shield/pkg/authsdk"
	"github.com/aussiebroadwan/shield/pkg/httpx"
	"github.com/aussiebroadwan/shield/pkg/jwtx"
	"github.com/aussiebroadwan/shield/pkg/slogx"
)

// TokensHandler manages the caller's access tokens and issues JWTs.
type TokensHandler struct {
	router *Router
}

// HandleCreate mints an access token. The raw token is only ever returned
// here.
func (h *TokensHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req authsdk.CreateTokenRequest
	if err := httpx.DecodeJSON(r, &req); err != nil || strings.TrimSpace(req.Name) == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	user := AuthFrom(ctx).User()
	raw, ident, err := h.router.manager.AccessTokens().Generate(ctx, user, strings.TrimSpace(req.Name), req.Scopes)
	if err != nil {
		log.Error("create access token failed", "error", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	log.Info("access token created", "token_id", ident.ID, "name", ident.Name)
	httpx.WriteJSON(w, http.StatusCreated, authsdk.TokenResponse{
		ID:     ident.ID,
		Name:   ident.Name,
		Token:  raw,
		Scopes: ident.Scopes,
	})
}

// HandleRevoke deletes one access token by id, or all of them.
func (h *TokensHandler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req authsdk.RevokeTokenRequest
	if err := httpx.DecodeJSON(r, &req); err != nil || (req.ID == "" && !req.All) {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	tokens := h.router.manager.AccessTokens()
	user := AuthFrom(ctx).User()

	var err error
	if req.All {
		err = tokens.RevokeAll(ctx, user)
	} else {
		err = tokens.Revoke(ctx, user, req.ID)
	}
	if errors.Is(err, store.ErrNotFound) {
		authsdk.ErrNotFound.WriteError(w)
		return
	}
	if err != nil {
		log.Error("revoke access token failed", "error", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleIssueJWT signs a JWT for the session user. The lifetime is capped
// by the router configuration.
func (h *TokensHandler) HandleIssueJWT(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req authsdk.JWTRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil || req.TTL < 0 {
			authsdk.ErrInvalidRequest.WriteError(w)
			return
		}
	}

	ttl := h.router.cfg.MaxJWTTTL
	if req.TTL > 0 && req.TTL < int(ttl.Seconds()) {
		ttl = time.Duration(req.TTL) * time.Second
	}

	// The session user is the subject; the JWT authenticator does the signing.
	issuer := h.router.manager.Begin(authn.RequestInfo{})
	if _, err := issuer.Use(authn.JWTAlias); err != nil {
		log.Error("jwt authenticator unavailable", "error", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}
	signer, ok := authn.As[authn.TokenIssuer](issuer)
	if !ok {
		authsdk.ErrServerError.WriteError(w)
		return
	}

	token, err := signer.IssueToken(ctx, AuthFrom(ctx).User(), jwtx.Claims{}, ttl)
	if err != nil {
		log.Error("issue jwt failed", "error", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.JWTResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(ttl.Seconds()),
	})
}
