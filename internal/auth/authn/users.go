package authn

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aussiebroadwan/shield/internal/auth/authz"
	"github.com/aussiebroadwan/shield/internal/auth/domain"
	"github.com/aussiebroadwan/shield/internal/auth/password"
	"github.com/aussiebroadwan/shield/internal/auth/session"
	"github.com/aussiebroadwan/shield/internal/auth/store"
	"github.com/aussiebroadwan/shield/pkg/idx"
	"github.com/aussiebroadwan/shield/pkg/slogx"
	"github.com/jonboulle/clockwork"
)

var ErrMissingIdentifier = errors.New("authn: email or username required")

// NewUser is the input to Register.
type NewUser struct {
	Username string
	Email    string
	Password string
}

// Users manages accounts and their password identity.
type Users struct {
	Store      store.Store
	Passwords  *password.Engine
	Sessions   session.Store
	Authorizer *authz.Authorizer
	Clock      clockwork.Clock

	// RequireActivation registers users inactive.
	RequireActivation bool
}

// Find looks a user up by email when identifier contains '@', otherwise by
// username.
func (s *Users) Find(ctx context.Context, identifier string) (domain.User, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return domain.User{}, store.ErrNotFound
	}
	if strings.Contains(identifier, "@") {
		return s.Store.Users().GetByEmail(ctx, normalizeEmail(identifier))
	}
	return s.Store.Users().GetByUsername(ctx, identifier)
}

func (s *Users) Get(ctx context.Context, id string) (domain.User, error) {
	return s.Store.Users().GetByID(ctx, id)
}

// Register creates a user with a password identity and the default group.
// Weak passwords are rejected with a *password.WeakPasswordError before
// anything is written.
func (s *Users) Register(ctx context.Context, in NewUser) (domain.User, error) {
	log := slogx.FromContext(ctx)

	// 1. Normalise and validate input
	in.Email = normalizeEmail(in.Email)
	in.Username = strings.TrimSpace(in.Username)
	if in.Email == "" && in.Username == "" {
		return domain.User{}, ErrMissingIdentifier
	}

	now := s.Clock.Now()
	user := domain.User{
		ID:        idx.New().String(),
		Username:  in.Username,
		Email:     in.Email,
		Active:    !s.RequireActivation,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Passwords.Validate(ctx, in.Password, &user); err != nil {
		return domain.User{}, err
	}

	// 2. Hash outside the transaction
	hash, err := s.Passwords.Hash(in.Password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}

	// 3. Persist user, identity and default group together
	defaultGroup := s.Authorizer.Config().DefaultGroup
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().Create(ctx, user); err != nil {
			return err
		}
		if err := tx.Identities().Create(ctx, passwordIdentity(&user, hash, now)); err != nil {
			return err
		}
		if defaultGroup != "" {
			return tx.Groups().Add(ctx, user.ID, defaultGroup)
		}
		return nil
	})
	if err != nil {
		return domain.User{}, fmt.Errorf("register user: %w", err)
	}

	log.Info("user registered", "user_id", user.ID, "active", user.Active)
	return user, nil
}

func passwordIdentity(user *domain.User, hash string, now time.Time) domain.Identity {
	secret := user.Email
	if secret == "" {
		secret = user.Username
	}
	return domain.Identity{
		ID:        idx.New().String(),
		UserID:    user.ID,
		Type:      domain.EmailPassword,
		Secret:    secret,
		Secret2:   hash,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s *Users) Activate(ctx context.Context, userID string) error {
	return s.Store.Users().SetActive(ctx, userID, true)
}

func (s *Users) Deactivate(ctx context.Context, userID string) error {
	return s.Store.Users().SetActive(ctx, userID, false)
}

// Ban blocks the user from authenticating and ends their sessions and
// remember-me tokens.
func (s *Users) Ban(ctx context.Context, userID, message string) error {
	if err := s.Store.Users().SetStatus(ctx, userID, domain.StatusBanned, message); err != nil {
		return fmt.Errorf("ban user: %w", err)
	}
	if err := s.Sessions.DeleteForUser(ctx, userID); err != nil {
		return fmt.Errorf("end sessions: %w", err)
	}
	return s.Store.RememberTokens().DeleteForUser(ctx, userID)
}

func (s *Users) Unban(ctx context.Context, userID string) error {
	return s.Store.Users().SetStatus(ctx, userID, "", "")
}

// SetPassword validates and stores a new password, clearing any forced reset
// and revoking remember-me tokens. A user without a password identity gets
// one.
func (s *Users) SetPassword(ctx context.Context, user *domain.User, pw string) error {
	if err := s.Passwords.Validate(ctx, pw, user); err != nil {
		return err
	}
	hash, err := s.Passwords.Hash(pw)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	now := s.Clock.Now()
	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		// Replace drops any force_reset flag with the old row.
		if err := tx.Identities().DeleteByType(ctx, user.ID, domain.EmailPassword); err != nil {
			return err
		}
		if err := tx.Identities().Create(ctx, passwordIdentity(user, hash, now)); err != nil {
			return err
		}
		return tx.RememberTokens().DeleteForUser(ctx, user.ID)
	})
}

// ForcePasswordReset flags the user's password so the next request through
// the reset filter is redirected to change it.
func (s *Users) ForcePasswordReset(ctx context.Context, userID string) error {
	return s.Store.Identities().SetForceReset(ctx, userID, true)
}

// RequiresPasswordReset reports whether the user's password is flagged.
func (s *Users) RequiresPasswordReset(ctx context.Context, userID string) (bool, error) {
	id, err := s.Store.Identities().GetByType(ctx, userID, domain.EmailPassword)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return id.ForceReset, nil
}

func (s *Users) TouchLastActive(ctx context.Context, userID string) error {
	return s.Store.Users().TouchLastActive(ctx, userID, s.Clock.Now())
}

// Delete removes the user with every identity, membership and session.
func (s *Users) Delete(ctx context.Context, userID string) error {
	if err := s.Sessions.DeleteForUser(ctx, userID); err != nil {
		return err
	}
	return s.Store.Users().Delete(ctx, userID)
}

func (s *Users) List(ctx context.Context) ([]domain.User, error) {
	return s.Store.Users().List(ctx)
}
