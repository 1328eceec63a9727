package authn

import (
	"context"

	"github.com/aussiebroadwan/shield/internal/auth/domain"
	"github.com/aussiebroadwan/shield/pkg/slogx"
)

// recordLogin stores an attempt when login recording is enabled. Failures are
// logged and swallowed.
func (m *Manager) recordLogin(ctx context.Context, req RequestInfo, idType, identifier, userID string, success bool) {
	if !m.cfg.RecordLogins {
		return
	}
	attempt := domain.LoginAttempt{
		IDType:     idType,
		Identifier: identifier,
		UserID:     userID,
		IPAddress:  req.IP,
		UserAgent:  req.UserAgent,
		Success:    success,
		CreatedAt:  m.deps.Clock.Now(),
	}
	if err := m.deps.Store.Logins().Record(ctx, attempt); err != nil {
		slogx.FromContext(ctx).Warn("failed to record login", "id_type", idType, "error", err)
	}
}

// touchActive updates the user's last-active date when enabled, best effort.
func (m *Manager) touchActive(ctx context.Context, user *domain.User) {
	if !m.cfg.RecordActiveDate {
		return
	}
	now := m.deps.Clock.Now()
	if err := m.deps.Store.Users().TouchLastActive(ctx, user.ID, now); err != nil {
		slogx.FromContext(ctx).Warn("failed to update last active", "user_id", user.ID, "error", err)
		return
	}
	user.LastActive = &now
}

// gate blocks banned and inactive users.
func gate(user *domain.User) (Result, bool) {
	if user.IsBanned() {
		return Failure(UserBanned, user.BanMessage()), false
	}
	if !user.Active {
		return Failure(UserInactive, nil), false
	}
	return Result{}, true
}
