// Package postgres backs the gate stores with PostgreSQL through the pgx
// database/sql driver. Unlike the sqlite stores it needs no write worker:
// the conditional updates are atomic per statement.
package postgres

import (
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/BrandonDHaskell/Portunus/gate/internal/gate/store"
)

type Store struct {
	db *sql.DB
}

var (
	_ store.SensorRegistry   = (*Store)(nil)
	_ store.UserStore        = (*Store)(nil)
	_ store.AccessEventStore = (*Store)(nil)
	_ store.CommandStore     = (*Store)(nil)
)

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func fromMs(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func timePtr(ms sql.NullInt64) *time.Time {
	if !ms.Valid {
		return nil
	}
	t := fromMs(ms.Int64)
	return &t
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func nullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
