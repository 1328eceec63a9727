package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/shield/internal/auth/authn"
	"github.com/aussiebroadwan/shield/internal/auth/domain"
	"github.com/aussiebroadwan/shield/internal/auth/password"
	"github.com/aussiebroadwan/shield/internal/auth/store"
	"github.com/aussiebroadwan/shield/pkg/authsdk"
	"github.com/aussiebroadwan/shield/pkg/httpx"
	"github.com/aussiebroadwan/shield/pkg/slogx"
)

// LoginHandler serves the interactive login flows, all backed by the
// session authenticator.
type LoginHandler struct {
	router *Router
}

// sessionAuth returns the request's facade switched to the session
// authenticator.
func (h *LoginHandler) sessionAuth(r *http.Request) (*authn.Auth, error) {
	return AuthFrom(r.Context()).Use(authn.SessionAlias)
}

// HandleLogin checks an identifier and password. A configured second
// factor answers 202 with the pending action instead of a user.
func (h *LoginHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req authsdk.LoginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	a, err := h.sessionAuth(r)
	if err != nil {
		log.Error("session authenticator unavailable", "error", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	res, err := a.Authenticate(ctx, authn.Credentials{
		Email:    req.Email,
		Username: req.Username,
		Password: req.Password,
		Remember: req.Remember,
	})
	if err != nil {
		log.Error("login failed", "error", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	h.writeLoginResult(w, r, a, res)
}

// HandleAction verifies the code for the session's pending action.
func (h *LoginHandler) HandleAction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req authsdk.ActionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil || req.Code == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	a, err := h.sessionAuth(r)
	if err != nil {
		log.Error("session authenticator unavailable", "error", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}
	actions, ok := authn.As[authn.ActionCapable](a)
	if !ok {
		authsdk.ErrNoPendingAction.WriteError(w)
		return
	}

	res, err := actions.VerifyAction(ctx, req.Code)
	if errors.Is(err, authn.ErrNoPendingAction) {
		authsdk.ErrNoPendingAction.WriteError(w)
		return
	}
	if err != nil {
		log.Error("verify action failed", "error", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	h.writeLoginResult(w, r, a, res)
}

// HandleMagicLinkRequest mails a login link. Unknown and blocked accounts
// get the same empty answer as a sent link.
func (h *LoginHandler) HandleMagicLinkRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req authsdk.MagicLinkRequest
	if err := httpx.DecodeJSON(r, &req); err != nil || req.Email == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	res, err := h.router.manager.MagicLinks().Request(ctx, req.Email)
	if err != nil {
		log.Error("magic link request failed", "error", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}
	if res.Reason() == authn.MailDeliveryFailed {
		resultError(res).WriteError(w)
		return
	}
	if !res.OK() {
		log.Info("magic link not sent", "reason", res.Reason().Code())
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleMagicLinkVerify consumes the link token and starts a session.
func (h *LoginHandler) HandleMagicLinkVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	a := AuthFrom(ctx)
	res, err := a.VerifyMagicLink(ctx, r.URL.Query().Get("token"))
	if err != nil {
		slogx.FromContext(ctx).Error("magic link verify failed", "error", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	h.writeLoginResult(w, r, a, res)
}

// HandleLogout ends the session and forgets the remember-me token.
func (h *LoginHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	a, err := h.sessionAuth(r)
	if err != nil {
		log.Error("session authenticator unavailable", "error", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}
	if a.LoggedIn(ctx) {
		if rm, ok := authn.As[authn.RememberMeCapable](a); ok {
			if err := rm.Forget(ctx); err != nil {
				log.Warn("forget remember-me token failed", "error", err)
			}
		}
	}
	if err := a.Logout(ctx); err != nil {
		log.Error("logout failed", "error", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	h.router.clearSessionCookies(w)
	w.WriteHeader(http.StatusNoContent)
}

// HandleRegister creates an account and logs it in. When activation is
// required the session instead waits on the emailed activation code.
func (h *LoginHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req authsdk.RegisterRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	// 1. Create the account
	user, err := h.router.manager.Users().Register(ctx, authn.NewUser{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	var weak *password.WeakPasswordError
	switch {
	case errors.As(err, &weak):
		apiErr := authsdk.NewAPIError(http.StatusUnprocessableEntity, authsdk.ErrorCodeWeakPassword, weak.Suggestion)
		apiErr.Kind = string(weak.Kind)
		apiErr.WriteError(w)
		return
	case errors.Is(err, authn.ErrMissingIdentifier):
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	case errors.Is(err, store.ErrAlreadyExists):
		authsdk.ErrAlreadyExists.WriteError(w)
		return
	case err != nil:
		log.Error("register failed", "error", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	a, err := h.sessionAuth(r)
	if err != nil {
		log.Error("session authenticator unavailable", "error", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	// 2. Inactive accounts wait on the activation code
	if !user.Active {
		actions, ok := authn.As[authn.ActionCapable](a)
		if !ok {
			authsdk.ErrServerError.WriteError(w)
			return
		}
		res, err := actions.StartAction(ctx, &user, domain.EmailActivate)
		if err != nil {
			log.Error("start activation failed", "error", err)
			authsdk.ErrServerError.WriteError(w)
			return
		}
		h.writeLoginResult(w, r, a, res)
		return
	}

	// 3. Otherwise log straight in
	if err := a.Authenticator().Login(ctx, &user); err != nil {
		log.Error("login after register failed", "error", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}
	h.router.writeSessionCookies(w, a)
	body, err := userResponse(ctx, a, &user)
	if err != nil {
		log.Error("load user access failed", "error", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, authsdk.LoginResponse{User: body})
}

// writeLoginResult turns an authentication result into the login response.
func (h *LoginHandler) writeLoginResult(w http.ResponseWriter, r *http.Request, a *authn.Auth, res authn.Result) {
	ctx := r.Context()

	if res.Reason() == authn.ActionPending {
		h.router.writeSessionCookies(w, a)
		pending, _ := res.Extra().(domain.IdentityType)
		httpx.WriteJSON(w, http.StatusAccepted, authsdk.LoginResponse{Pending: string(pending)})
		return
	}
	if !res.OK() {
		resultError(res).WriteError(w)
		return
	}

	h.router.writeSessionCookies(w, a)
	body, err := userResponse(ctx, a, res.User())
	if err != nil {
		slogx.FromContext(ctx).Error("load user access failed", "error", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.LoginResponse{User: body})
}
