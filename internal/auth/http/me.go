package http

import (
	"context"
	"net/http"

	"github.com/aussiebroadwan/shield/internal/auth/authn"
	"github.com/aussiebroadwan/shield/internal/auth/domain"
	"github.com/aussiebroadwan/shield/pkg/authsdk"
	"github.com/aussiebroadwan/shield/pkg/httpx"
	"github.com/aussiebroadwan/shield/pkg/slogx"
)

// MeHandler returns the authenticated user with groups and permissions.
type MeHandler struct{}

func (h *MeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	a := AuthFrom(ctx)

	body, err := userResponse(ctx, a, a.User())
	if err != nil {
		slogx.FromContext(ctx).Error("load user access failed", "error", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, body)
}

func userResponse(ctx context.Context, a *authn.Auth, u *domain.User) (*authsdk.UserResponse, error) {
	resp := &authsdk.UserResponse{
		ID:         u.ID,
		Username:   u.Username,
		Email:      u.Email,
		Active:     u.Active,
		LastActive: u.LastActive,
	}

	subject := a.Access()
	if subject == nil || subject.UserID() != u.ID {
		return resp, nil
	}
	groups, err := subject.Groups(ctx)
	if err != nil {
		return nil, err
	}
	perms, err := subject.Permissions(ctx)
	if err != nil {
		return nil, err
	}
	resp.Groups, resp.Permissions = groups, perms
	return resp, nil
}
