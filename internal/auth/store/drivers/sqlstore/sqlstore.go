// Package sqlstore implements store.Store on top of sqlx. The sqlite and
// postgres drivers share these repositories and differ only in their Dialect
// and migrations.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/aussiebroadwan/shield/internal/auth/store"
)

// Dialect captures the driver specific bits the repositories need.
type Dialect struct {
	// IsUniqueViolation reports whether err is a unique constraint failure.
	IsUniqueViolation func(err error) bool
}

// Store is a store.Store over a *sqlx.DB. Drivers embed it and provide
// ApplyMigrations.
type Store struct {
	db      *sqlx.DB
	dialect Dialect
	migrate func() error
}

// New wraps db. migrate is called by ApplyMigrations and may be nil.
func New(db *sqlx.DB, d Dialect, migrate func() error) *Store {
	return &Store{db: db, dialect: d, migrate: migrate}
}

// DB exposes the underlying handle for drivers and tests.
func (s *Store) DB() *sqlx.DB { return s.db }

func (s *Store) ApplyMigrations() error {
	if s.migrate == nil {
		return nil
	}
	return s.migrate()
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Tx starts a read/write transaction and returns a Tx-scoped Store.
func (s *Store) Tx(ctx context.Context) (store.Tx, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &txStore{tx: tx, dialect: s.dialect}, nil
}

// WithTx executes fn within a transaction, automatically handling commit/rollback.
func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := s.Tx(ctx)
	if err != nil {
		return err
	}

	// safe to call even after commit
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) Users() store.Users           { return &usersRepo{q: s.db, d: s.dialect} }
func (s *Store) Identities() store.Identities { return &identitiesRepo{q: s.db, d: s.dialect} }
func (s *Store) Groups() store.Memberships    { return groupsRepo(s.db) }
func (s *Store) Permissions() store.Memberships {
	return permissionsRepo(s.db)
}
func (s *Store) Logins() store.Logins { return &loginsRepo{q: s.db} }
func (s *Store) RememberTokens() store.RememberTokens {
	return &rememberRepo{q: s.db, d: s.dialect}
}

type txStore struct {
	tx      *sqlx.Tx
	dialect Dialect
}

func (t *txStore) Commit() error   { return t.tx.Commit() }
func (t *txStore) Rollback() error { return t.tx.Rollback() }

// Close is a no-op; the caller commits or rolls back and the outer DB stays open.
func (t *txStore) Close() error { return nil }

func (t *txStore) Ping(context.Context) error { return nil }

func (t *txStore) Tx(context.Context) (store.Tx, error) {
	return nil, sql.ErrTxDone
}

func (t *txStore) WithTx(context.Context, func(tx store.Tx) error) error {
	return sql.ErrTxDone
}

// ApplyMigrations is a no-op; migrations run before any transaction starts.
func (t *txStore) ApplyMigrations() error { return nil }

func (t *txStore) Users() store.Users           { return &usersRepo{q: t.tx, d: t.dialect} }
func (t *txStore) Identities() store.Identities { return &identitiesRepo{q: t.tx, d: t.dialect} }
func (t *txStore) Groups() store.Memberships    { return groupsRepo(t.tx) }
func (t *txStore) Permissions() store.Memberships {
	return permissionsRepo(t.tx)
}
func (t *txStore) Logins() store.Logins { return &loginsRepo{q: t.tx} }
func (t *txStore) RememberTokens() store.RememberTokens {
	return &rememberRepo{q: t.tx, d: t.dialect}
}

func mapNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

func (d Dialect) mapInsert(err error) error {
	if err != nil && d.IsUniqueViolation != nil && d.IsUniqueViolation(err) {
		return store.ErrAlreadyExists
	}
	return err
}

// requireAffected turns a zero-row update or delete into ErrNotFound.
func requireAffected(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// utc normalises times before they are written so stored values compare
// correctly as text on sqlite.
func utc(t time.Time) time.Time { return t.UTC() }

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

func joinScopes(scopes []string) string { return strings.Join(scopes, " ") }

func splitScopes(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return strings.Fields(s)
}
