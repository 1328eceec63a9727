package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/aussiebroadwan/shield/internal/auth/domain"
)

type loginRow struct {
	ID         int64          `db:"id"`
	IDType     string         `db:"id_type"`
	Identifier string         `db:"identifier"`
	UserID     sql.NullString `db:"user_id"`
	IPAddress  string         `db:"ip_address"`
	UserAgent  string         `db:"user_agent"`
	Success    bool           `db:"success"`
	CreatedAt  time.Time      `db:"created_at"`
}

type loginsRepo struct {
	q sqlx.ExtContext
}

func (r *loginsRepo) Record(ctx context.Context, a domain.LoginAttempt) error {
	created := a.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := r.q.ExecContext(ctx, r.q.Rebind(`
		INSERT INTO auth_logins (id_type, identifier, user_id, ip_address, user_agent, success, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		a.IDType, a.Identifier, nullString(a.UserID), a.IPAddress, a.UserAgent, a.Success, utc(created),
	)
	return err
}

func (r *loginsRepo) ListForUser(ctx context.Context, userID string, limit int) ([]domain.LoginAttempt, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []loginRow
	query := r.q.Rebind(`SELECT id, id_type, identifier, user_id, ip_address, user_agent, success, created_at
		FROM auth_logins WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`)
	if err := sqlx.SelectContext(ctx, r.q, &rows, query, userID, limit); err != nil {
		return nil, err
	}
	out := make([]domain.LoginAttempt, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.LoginAttempt{
			ID:         row.ID,
			IDType:     row.IDType,
			Identifier: row.Identifier,
			UserID:     row.UserID.String,
			IPAddress:  row.IPAddress,
			UserAgent:  row.UserAgent,
			Success:    row.Success,
			CreatedAt:  row.CreatedAt,
		})
	}
	return out, nil
}

func (r *loginsRepo) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.q.ExecContext(ctx, r.q.Rebind(`DELETE FROM auth_logins WHERE created_at < ?`), utc(before))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
