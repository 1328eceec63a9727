package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/aussiebroadwan/shield/internal/auth/domain"
)

const userColumns = `id, username, email, active, status, status_message, last_active, created_at, updated_at`

type userRow struct {
	ID            string         `db:"id"`
	Username      sql.NullString `db:"username"`
	Email         sql.NullString `db:"email"`
	Active        bool           `db:"active"`
	Status        string         `db:"status"`
	StatusMessage string         `db:"status_message"`
	LastActive    *time.Time     `db:"last_active"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

func (r userRow) domain() domain.User {
	return domain.User{
		ID:            r.ID,
		Username:      r.Username.String,
		Email:         r.Email.String,
		Active:        r.Active,
		Status:        r.Status,
		StatusMessage: r.StatusMessage,
		LastActive:    r.LastActive,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

type usersRepo struct {
	q sqlx.ExtContext
	d Dialect
}

func (r *usersRepo) getBy(ctx context.Context, column, value string) (domain.User, error) {
	var row userRow
	query := r.q.Rebind(`SELECT ` + userColumns + ` FROM users WHERE ` + column + ` = ?`)
	if err := sqlx.GetContext(ctx, r.q, &row, query, value); err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return row.domain(), nil
}

func (r *usersRepo) GetByID(ctx context.Context, id string) (domain.User, error) {
	return r.getBy(ctx, "id", id)
}

func (r *usersRepo) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	return r.getBy(ctx, "email", email)
}

func (r *usersRepo) GetByUsername(ctx context.Context, username string) (domain.User, error) {
	return r.getBy(ctx, "username", username)
}

func (r *usersRepo) Create(ctx context.Context, u domain.User) error {
	created := u.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := r.q.ExecContext(ctx, r.q.Rebind(`
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		u.ID, nullString(u.Username), nullString(u.Email), u.Active, u.Status, u.StatusMessage,
		utcPtr(u.LastActive), utc(created), utc(created),
	)
	return r.d.mapInsert(err)
}

func (r *usersRepo) SetActive(ctx context.Context, id string, active bool) error {
	return requireAffected(r.q.ExecContext(ctx,
		r.q.Rebind(`UPDATE users SET active = ?, updated_at = ? WHERE id = ?`),
		active, utc(time.Now()), id,
	))
}

func (r *usersRepo) SetStatus(ctx context.Context, id, status, message string) error {
	return requireAffected(r.q.ExecContext(ctx,
		r.q.Rebind(`UPDATE users SET status = ?, status_message = ?, updated_at = ? WHERE id = ?`),
		status, message, utc(time.Now()), id,
	))
}

func (r *usersRepo) TouchLastActive(ctx context.Context, id string, at time.Time) error {
	return requireAffected(r.q.ExecContext(ctx,
		r.q.Rebind(`UPDATE users SET last_active = ? WHERE id = ?`),
		utc(at), id,
	))
}

func (r *usersRepo) Delete(ctx context.Context, id string) error {
	return requireAffected(r.q.ExecContext(ctx, r.q.Rebind(`DELETE FROM users WHERE id = ?`), id))
}

func (r *usersRepo) List(ctx context.Context) ([]domain.User, error) {
	var rows []userRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, `SELECT `+userColumns+` FROM users ORDER BY created_at, id`); err != nil {
		return nil, err
	}
	out := make([]domain.User, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.domain())
	}
	return out, nil
}
