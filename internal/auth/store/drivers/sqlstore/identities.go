package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/aussiebroadwan/shield/internal/auth/domain"
)

const identityColumns = `id, user_id, type, name, secret, secret2, scopes, last_used_ip, expires, force_reset, last_used_at, created_at, updated_at`

type identityRow struct {
	ID         string         `db:"id"`
	UserID     string         `db:"user_id"`
	Type       string         `db:"type"`
	Name       string         `db:"name"`
	Secret     string         `db:"secret"`
	Secret2    sql.NullString `db:"secret2"`
	Scopes     string         `db:"scopes"`
	LastUsedIP sql.NullString `db:"last_used_ip"`
	Expires    *time.Time     `db:"expires"`
	ForceReset bool           `db:"force_reset"`
	LastUsedAt *time.Time     `db:"last_used_at"`
	CreatedAt  time.Time      `db:"created_at"`
	UpdatedAt  time.Time      `db:"updated_at"`
}

func (r identityRow) domain() domain.Identity {
	return domain.Identity{
		ID:         r.ID,
		UserID:     r.UserID,
		Type:       domain.IdentityType(r.Type),
		Name:       r.Name,
		Secret:     r.Secret,
		Secret2:    r.Secret2.String,
		Scopes:     splitScopes(r.Scopes),
		LastUsedIP: r.LastUsedIP.String,
		Expires:    r.Expires,
		ForceReset: r.ForceReset,
		LastUsedAt: r.LastUsedAt,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

type identitiesRepo struct {
	q sqlx.ExtContext
	d Dialect
}

func (r *identitiesRepo) Create(ctx context.Context, id domain.Identity) error {
	created := id.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := r.q.ExecContext(ctx, r.q.Rebind(`
		INSERT INTO auth_identities (`+identityColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		id.ID, id.UserID, string(id.Type), id.Name, id.Secret, nullString(id.Secret2),
		joinScopes(id.Scopes), nullString(id.LastUsedIP), utcPtr(id.Expires), id.ForceReset,
		utcPtr(id.LastUsedAt), utc(created), utc(created),
	)
	return r.d.mapInsert(err)
}

func (r *identitiesRepo) GetByType(ctx context.Context, userID string, typ domain.IdentityType) (domain.Identity, error) {
	var row identityRow
	query := r.q.Rebind(`SELECT ` + identityColumns + ` FROM auth_identities
		WHERE user_id = ? AND type = ? ORDER BY created_at DESC, id DESC LIMIT 1`)
	if err := sqlx.GetContext(ctx, r.q, &row, query, userID, string(typ)); err != nil {
		return domain.Identity{}, mapNotFound(err)
	}
	return row.domain(), nil
}

func (r *identitiesRepo) ListByType(ctx context.Context, userID string, typ domain.IdentityType) ([]domain.Identity, error) {
	var rows []identityRow
	query := r.q.Rebind(`SELECT ` + identityColumns + ` FROM auth_identities
		WHERE user_id = ? AND type = ? ORDER BY created_at, id`)
	if err := sqlx.SelectContext(ctx, r.q, &rows, query, userID, string(typ)); err != nil {
		return nil, err
	}
	out := make([]domain.Identity, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.domain())
	}
	return out, nil
}

func (r *identitiesRepo) GetBySecret(ctx context.Context, typ domain.IdentityType, secret string) (domain.Identity, error) {
	var row identityRow
	query := r.q.Rebind(`SELECT ` + identityColumns + ` FROM auth_identities WHERE type = ? AND secret = ?`)
	if err := sqlx.GetContext(ctx, r.q, &row, query, string(typ), secret); err != nil {
		return domain.Identity{}, mapNotFound(err)
	}
	return row.domain(), nil
}

func (r *identitiesRepo) Consume(ctx context.Context, id string) (domain.Identity, error) {
	var row identityRow
	query := r.q.Rebind(`DELETE FROM auth_identities WHERE id = ? RETURNING ` + identityColumns)
	if err := sqlx.GetContext(ctx, r.q, &row, query, id); err != nil {
		return domain.Identity{}, mapNotFound(err)
	}
	return row.domain(), nil
}

func (r *identitiesRepo) ConsumeBySecret(ctx context.Context, typ domain.IdentityType, secret string) (domain.Identity, error) {
	var row identityRow
	query := r.q.Rebind(`DELETE FROM auth_identities WHERE type = ? AND secret = ? RETURNING ` + identityColumns)
	if err := sqlx.GetContext(ctx, r.q, &row, query, string(typ), secret); err != nil {
		return domain.Identity{}, mapNotFound(err)
	}
	return row.domain(), nil
}

func (r *identitiesRepo) DeleteByType(ctx context.Context, userID string, typ domain.IdentityType) error {
	_, err := r.q.ExecContext(ctx,
		r.q.Rebind(`DELETE FROM auth_identities WHERE user_id = ? AND type = ?`),
		userID, string(typ),
	)
	return err
}

func (r *identitiesRepo) DeleteByID(ctx context.Context, userID, id string) error {
	return requireAffected(r.q.ExecContext(ctx,
		r.q.Rebind(`DELETE FROM auth_identities WHERE user_id = ? AND id = ?`),
		userID, id,
	))
}

func (r *identitiesRepo) UpdateSecret2(ctx context.Context, id, secret2 string) error {
	return requireAffected(r.q.ExecContext(ctx,
		r.q.Rebind(`UPDATE auth_identities SET secret2 = ?, updated_at = ? WHERE id = ?`),
		nullString(secret2), utc(time.Now()), id,
	))
}

func (r *identitiesRepo) SetForceReset(ctx context.Context, userID string, force bool) error {
	return requireAffected(r.q.ExecContext(ctx,
		r.q.Rebind(`UPDATE auth_identities SET force_reset = ?, updated_at = ? WHERE user_id = ? AND type = ?`),
		force, utc(time.Now()), userID, string(domain.EmailPassword),
	))
}

func (r *identitiesRepo) Touch(ctx context.Context, id string, at time.Time, ip string) error {
	return requireAffected(r.q.ExecContext(ctx,
		r.q.Rebind(`UPDATE auth_identities SET last_used_at = ?, last_used_ip = ? WHERE id = ?`),
		utc(at), nullString(ip), id,
	))
}

func (r *identitiesRepo) Advance(ctx context.Context, id string, at time.Time) error {
	return requireAffected(r.q.ExecContext(ctx,
		r.q.Rebind(`UPDATE auth_identities SET last_used_at = ?
			WHERE id = ? AND (last_used_at IS NULL OR last_used_at < ?)`),
		utc(at), id, utc(at),
	))
}

func (r *identitiesRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.q.ExecContext(ctx,
		r.q.Rebind(`DELETE FROM auth_identities WHERE expires IS NOT NULL AND expires <= ?`),
		utc(now),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
