package postgres

import (
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/aussiebroadwan/shield/internal/auth/store/drivers/sqlstore"
)

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// Store is the postgres implementation of store.Store.
type Store struct {
	*sqlstore.Store
}

// NewStore opens a lib/pq connection pool for dsn.
func NewStore(dsn string) (*Store, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	s := &Store{}
	s.Store = sqlstore.New(db, sqlstore.Dialect{IsUniqueViolation: isUniqueViolation}, s.migrate)
	return s, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
