package sqlstore

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/aussiebroadwan/shield/internal/auth/domain"
)

type rememberRow struct {
	ID              string    `db:"id"`
	Selector        string    `db:"selector"`
	HashedValidator string    `db:"hashed_validator"`
	UserID          string    `db:"user_id"`
	Expires         time.Time `db:"expires"`
	CreatedAt       time.Time `db:"created_at"`
}

type rememberRepo struct {
	q sqlx.ExtContext
	d Dialect
}

func (r *rememberRepo) Create(ctx context.Context, t domain.RememberToken) error {
	created := t.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := r.q.ExecContext(ctx, r.q.Rebind(`
		INSERT INTO auth_remember_tokens (id, selector, hashed_validator, user_id, expires, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`),
		t.ID, t.Selector, t.HashedValidator, t.UserID, utc(t.Expires), utc(created),
	)
	return r.d.mapInsert(err)
}

func (r *rememberRepo) GetBySelector(ctx context.Context, selector string) (domain.RememberToken, error) {
	var row rememberRow
	query := r.q.Rebind(`SELECT id, selector, hashed_validator, user_id, expires, created_at
		FROM auth_remember_tokens WHERE selector = ?`)
	if err := sqlx.GetContext(ctx, r.q, &row, query, selector); err != nil {
		return domain.RememberToken{}, mapNotFound(err)
	}
	return domain.RememberToken(row), nil
}

func (r *rememberRepo) DeleteBySelector(ctx context.Context, selector string) error {
	_, err := r.q.ExecContext(ctx, r.q.Rebind(`DELETE FROM auth_remember_tokens WHERE selector = ?`), selector)
	return err
}

func (r *rememberRepo) DeleteForUser(ctx context.Context, userID string) error {
	_, err := r.q.ExecContext(ctx, r.q.Rebind(`DELETE FROM auth_remember_tokens WHERE user_id = ?`), userID)
	return err
}

func (r *rememberRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.q.ExecContext(ctx, r.q.Rebind(`DELETE FROM auth_remember_tokens WHERE expires <= ?`), utc(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
