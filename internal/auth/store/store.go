package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/shield/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite, postgres)
// implement this. Repositories are exposed as methods so a Tx-scoped Store
// can hand out the same repositories bound to the transaction, and so nested
// transactions are refused rather than silently flattened.
type Store interface {
	Users() Users
	Identities() Identities
	Groups() Memberships
	Permissions() Memberships
	Logins() Logins
	RememberTokens() RememberTokens

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise it is committed.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	GetByID(ctx context.Context, id string) (domain.User, error)
	GetByEmail(ctx context.Context, email string) (domain.User, error)
	GetByUsername(ctx context.Context, username string) (domain.User, error)

	// Create inserts a new user (id is provided by the caller via ULID).
	// ErrAlreadyExists is returned when the email or username is taken.
	Create(ctx context.Context, u domain.User) error

	SetActive(ctx context.Context, id string, active bool) error

	// SetStatus sets status and status_message; status "" clears a ban.
	SetStatus(ctx context.Context, id, status, message string) error

	TouchLastActive(ctx context.Context, id string, at time.Time) error

	// Delete cascades to identities, memberships and remember tokens.
	Delete(ctx context.Context, id string) error

	List(ctx context.Context) ([]domain.User, error)
}

type Identities interface {
	// Create inserts an identity. ErrAlreadyExists is returned on a
	// (type, secret) collision.
	Create(ctx context.Context, id domain.Identity) error

	// GetByType returns the newest identity of typ for the user.
	GetByType(ctx context.Context, userID string, typ domain.IdentityType) (domain.Identity, error)
	ListByType(ctx context.Context, userID string, typ domain.IdentityType) ([]domain.Identity, error)
	GetBySecret(ctx context.Context, typ domain.IdentityType, secret string) (domain.Identity, error)

	// Consume deletes the identity and returns the deleted row in a single
	// statement. Of two concurrent callers only one gets the row; the other
	// gets ErrNotFound.
	Consume(ctx context.Context, id string) (domain.Identity, error)

	// ConsumeBySecret is Consume keyed by (type, secret).
	ConsumeBySecret(ctx context.Context, typ domain.IdentityType, secret string) (domain.Identity, error)

	DeleteByType(ctx context.Context, userID string, typ domain.IdentityType) error

	// DeleteByID removes one identity owned by userID. ErrNotFound is returned
	// when no such identity belongs to the user.
	DeleteByID(ctx context.Context, userID, id string) error

	UpdateSecret2(ctx context.Context, id, secret2 string) error

	// SetForceReset flags the user's password identity.
	SetForceReset(ctx context.Context, userID string, force bool) error

	// Touch records last use of an identity.
	Touch(ctx context.Context, id string, at time.Time, ip string) error

	// Advance sets last use to at only when the stored value is unset or
	// earlier, returning ErrNotFound otherwise.
	Advance(ctx context.Context, id string, at time.Time) error

	// DeleteExpired purges identities whose expiry is at or before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Memberships is a set of names per user, used for both groups and direct
// permissions. Add and Remove are idempotent per name.
type Memberships interface {
	List(ctx context.Context, userID string) ([]string, error)
	Add(ctx context.Context, userID string, names ...string) error
	Remove(ctx context.Context, userID string, names ...string) error
}

type Logins interface {
	Record(ctx context.Context, a domain.LoginAttempt) error

	// ListForUser returns the newest attempts first.
	ListForUser(ctx context.Context, userID string, limit int) ([]domain.LoginAttempt, error)

	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

type RememberTokens interface {
	Create(ctx context.Context, t domain.RememberToken) error
	GetBySelector(ctx context.Context, selector string) (domain.RememberToken, error)
	DeleteBySelector(ctx context.Context, selector string) error
	DeleteForUser(ctx context.Context, userID string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
