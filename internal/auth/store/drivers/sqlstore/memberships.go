package sqlstore

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// membershipsRepo backs both auth_groups_users and auth_permissions_users.
// The (user_id, name) primary key makes Add idempotent.
type membershipsRepo struct {
	q      sqlx.ExtContext
	table  string
	column string
}

func groupsRepo(q sqlx.ExtContext) *membershipsRepo {
	return &membershipsRepo{q: q, table: "auth_groups_users", column: "group_name"}
}

func permissionsRepo(q sqlx.ExtContext) *membershipsRepo {
	return &membershipsRepo{q: q, table: "auth_permissions_users", column: "permission"}
}

func (r *membershipsRepo) List(ctx context.Context, userID string) ([]string, error) {
	var names []string
	query := r.q.Rebind(`SELECT ` + r.column + ` FROM ` + r.table + ` WHERE user_id = ? ORDER BY ` + r.column)
	if err := sqlx.SelectContext(ctx, r.q, &names, query, userID); err != nil {
		return nil, err
	}
	return names, nil
}

func (r *membershipsRepo) Add(ctx context.Context, userID string, names ...string) error {
	query := r.q.Rebind(`INSERT INTO ` + r.table + ` (user_id, ` + r.column + `) VALUES (?, ?)
		ON CONFLICT (user_id, ` + r.column + `) DO NOTHING`)
	for _, name := range names {
		if _, err := r.q.ExecContext(ctx, query, userID, name); err != nil {
			return err
		}
	}
	return nil
}

func (r *membershipsRepo) Remove(ctx context.Context, userID string, names ...string) error {
	if len(names) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`DELETE FROM `+r.table+` WHERE user_id = ? AND `+r.column+` IN (?)`, userID, names)
	if err != nil {
		return err
	}
	_, err = r.q.ExecContext(ctx, r.q.Rebind(query), args...)
	return err
}
