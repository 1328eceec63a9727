package authn

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/shield/internal/auth/domain"
	"github.com/aussiebroadwan/shield/internal/auth/password"
	"github.com/aussiebroadwan/shield/internal/auth/store"
	"github.com/aussiebroadwan/shield/pkg/cryptox"
	"github.com/aussiebroadwan/shield/pkg/idx"
	"github.com/jonboulle/clockwork"
)

const (
	// MaxCodeAttempts bounds retries when a generated code collides with an
	// existing one of the same type.
	MaxCodeAttempts = 5
	CodeDigits      = 6
)

// Identities manages the credentials attached to users.
type Identities struct {
	Store     store.Store
	Passwords *password.Engine
	Clock     clockwork.Clock
}

// IdentityOption customises an identity before it is stored.
type IdentityOption func(*domain.Identity)

// WithName labels the identity, e.g. a token name.
func WithName(name string) IdentityOption {
	return func(i *domain.Identity) { i.Name = name }
}

// WithSecret2 sets the secondary secret (password hash, sealed HMAC secret).
func WithSecret2(secret2 string) IdentityOption {
	return func(i *domain.Identity) { i.Secret2 = secret2 }
}

func WithScopes(scopes ...string) IdentityOption {
	return func(i *domain.Identity) { i.Scopes = scopes }
}

// WithExpiry sets an absolute expiry.
func WithExpiry(at time.Time) IdentityOption {
	return func(i *domain.Identity) { i.Expires = &at }
}

func (s *Identities) build(user *domain.User, typ domain.IdentityType, secret string, opts []IdentityOption) domain.Identity {
	now := s.Clock.Now()
	id := domain.Identity{
		ID:        idx.New().String(),
		UserID:    user.ID,
		Type:      typ,
		Secret:    secret,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, opt := range opts {
		opt(&id)
	}
	return id
}

// CreateIdentity inserts a new identity. store.ErrAlreadyExists is returned
// when (type, secret) is taken.
func (s *Identities) CreateIdentity(ctx context.Context, user *domain.User, typ domain.IdentityType, secret string, opts ...IdentityOption) (domain.Identity, error) {
	if !typ.Valid() {
		return domain.Identity{}, fmt.Errorf("%w: identity type %q", ErrConfiguration, typ)
	}
	id := s.build(user, typ, secret, opts)
	if err := s.Store.Identities().Create(ctx, id); err != nil {
		return domain.Identity{}, fmt.Errorf("create %s identity: %w", typ, err)
	}
	return id, nil
}

// Replace deletes the user's identities of typ and inserts a new one in a
// single transaction.
func (s *Identities) Replace(ctx context.Context, user *domain.User, typ domain.IdentityType, secret string, opts ...IdentityOption) (domain.Identity, error) {
	if !typ.Valid() {
		return domain.Identity{}, fmt.Errorf("%w: identity type %q", ErrConfiguration, typ)
	}
	id := s.build(user, typ, secret, opts)
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Identities().DeleteByType(ctx, user.ID, typ); err != nil {
			return err
		}
		return tx.Identities().Create(ctx, id)
	})
	if err != nil {
		return domain.Identity{}, fmt.Errorf("replace %s identity: %w", typ, err)
	}
	return id, nil
}

// CreateCode issues a fresh numeric code identity of typ, replacing any
// previous one. A collision with another user's live code retries with a
// new code, up to MaxCodeAttempts times.
func (s *Identities) CreateCode(ctx context.Context, user *domain.User, typ domain.IdentityType, ttl time.Duration) (domain.Identity, error) {
	var lastErr error
	for range MaxCodeAttempts {
		code, err := cryptox.RandomNumericCode(CodeDigits, false)
		if err != nil {
			return domain.Identity{}, err
		}
		id, err := s.Replace(ctx, user, typ, code, WithExpiry(s.Clock.Now().Add(ttl)))
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, store.ErrAlreadyExists) {
			return domain.Identity{}, err
		}
		lastErr = err
	}
	return domain.Identity{}, lastErr
}

// GetIdentityByType returns the newest identity of typ for the user.
func (s *Identities) GetIdentityByType(ctx context.Context, user *domain.User, typ domain.IdentityType) (domain.Identity, error) {
	return s.Store.Identities().GetByType(ctx, user.ID, typ)
}

func (s *Identities) GetAllByType(ctx context.Context, user *domain.User, typ domain.IdentityType) ([]domain.Identity, error) {
	return s.Store.Identities().ListByType(ctx, user.ID, typ)
}

func (s *Identities) DeleteIdentitiesByType(ctx context.Context, user *domain.User, typ domain.IdentityType) error {
	return s.Store.Identities().DeleteByType(ctx, user.ID, typ)
}

// VerifySecret compares a presented secret against the stored one in
// constant time. Password identities are checked by the password engine.
func (s *Identities) VerifySecret(typ domain.IdentityType, candidate, stored string) bool {
	switch {
	case typ == domain.EmailPassword:
		ok, err := s.Passwords.Verify(candidate, stored)
		return err == nil && ok
	case typ.HashedSecret():
		return cryptox.EqualFingerprint(candidate, stored)
	default:
		return cryptox.ConstantTimeEqual(candidate, stored)
	}
}
