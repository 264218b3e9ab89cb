package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	dbpkg "github.com/BrandonDHaskell/Portunus/gate/internal/db"
	"github.com/BrandonDHaskell/Portunus/gate/internal/gate/store"
	"github.com/BrandonDHaskell/Portunus/gate/internal/gate/types"
)

// Registry is the sqlite-backed credential and identity registry. It
// implements store.SensorRegistry and store.UserStore.
type Registry struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewRegistry(db *sql.DB, writer *dbpkg.Worker) *Registry {
	return &Registry{db: db, writer: writer}
}

func (r *Registry) FindByCode(ctx context.Context, code string) (store.SensorRecord, error) {
	code = types.NormalizeCode(code)
	if code == "" {
		return store.SensorRecord{}, store.ErrNotFound
	}

	var (
		rec          store.SensorRecord
		status, kind string
		registeredBy sql.NullInt64
		alias        sql.NullString
		issuedMs     int64
		revokedMs    sql.NullInt64
		tower        sql.NullString
		floor        sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx, `
SELECT s.sensor_id, s.code, s.status, s.kind, s.department_id, s.registered_by,
       s.alias, s.issued_at_ms, s.revoked_at_ms,
       d.number, d.tower, d.condominium, d.floor
FROM sensors s
JOIN departments d ON d.department_id = s.department_id
WHERE s.code = ?;
`, code).Scan(
		&rec.ID, &rec.Code, &status, &kind, &rec.DepartmentID, &registeredBy,
		&alias, &issuedMs, &revokedMs,
		&rec.Department.Number, &tower, &rec.Department.Condominium, &floor,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return store.SensorRecord{}, store.ErrNotFound
	}
	if err != nil {
		return store.SensorRecord{}, fmt.Errorf("FindByCode query: %w", err)
	}

	rec.Status = types.SensorStatus(status)
	rec.Kind = types.SensorKind(kind)
	rec.RegisteredBy = int64Ptr(registeredBy)
	rec.Alias = alias.String
	rec.IssuedAt = fromMs(issuedMs)
	rec.RevokedAt = timePtr(revokedMs)
	rec.Department.ID = rec.DepartmentID
	rec.Department.Tower = tower.String
	if floor.Valid {
		f := int(floor.Int64)
		rec.Department.Floor = &f
	}
	return rec, nil
}

func (r *Registry) Register(ctx context.Context, rec store.SensorRecord) (int64, error) {
	rec.Code = types.NormalizeCode(rec.Code)
	if rec.Code == "" {
		return 0, fmt.Errorf("register sensor: empty code")
	}
	if rec.Status == "" {
		rec.Status = types.SensorActive
	}
	if rec.Kind == "" {
		rec.Kind = types.SensorCard
	}
	if rec.IssuedAt.IsZero() {
		rec.IssuedAt = time.Now().UTC()
	}

	var revokedMs any
	if rec.RevokedAt != nil {
		revokedMs = rec.RevokedAt.UTC().UnixMilli()
	} else if store.Revokes(rec.Status) {
		revokedMs = rec.IssuedAt.UTC().UnixMilli()
	}
	var id int64
	err := r.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var one int
		err := tx.QueryRowContext(ctx,
			`SELECT 1 FROM departments WHERE department_id = ?;`, rec.DepartmentID,
		).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("register sensor: department %d: %w", rec.DepartmentID, store.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("register sensor department lookup: %w", err)
		}

		issuedMs := rec.IssuedAt.UTC().UnixMilli()
		res, err := tx.ExecContext(ctx, `
INSERT INTO sensors(code, status, kind, department_id, registered_by, alias,
                    issued_at_ms, revoked_at_ms, updated_at_ms)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);
`, rec.Code, string(rec.Status), string(rec.Kind), rec.DepartmentID, nullableInt64(rec.RegisteredBy),
			nullableString(rec.Alias), issuedMs, revokedMs, issuedMs)
		if err != nil {
			if isUniqueViolation(err) {
				return store.ErrConflict
			}
			return fmt.Errorf("register sensor insert: %w", err)
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (r *Registry) SetStatus(ctx context.Context, id int64, status types.SensorStatus, at time.Time) error {
	if at.IsZero() {
		at = time.Now().UTC()
	}
	atMs := at.UTC().UnixMilli()

	return r.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var (
			res sql.Result
			err error
		)
		switch {
		case store.Revokes(status):
			res, err = tx.ExecContext(ctx, `
UPDATE sensors SET status = ?, revoked_at_ms = ?, updated_at_ms = ? WHERE sensor_id = ?;
`, string(status), atMs, atMs, id)
		case status == types.SensorActive:
			res, err = tx.ExecContext(ctx, `
UPDATE sensors SET status = ?, revoked_at_ms = NULL, updated_at_ms = ? WHERE sensor_id = ?;
`, string(status), atMs, id)
		default:
			res, err = tx.ExecContext(ctx, `
UPDATE sensors SET status = ?, updated_at_ms = ? WHERE sensor_id = ?;
`, string(status), atMs, id)
		}
		if err != nil {
			return fmt.Errorf("SetStatus update: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("SetStatus rows: %w", err)
		}
		if n == 0 {
			return store.ErrNotFound
		}
		return nil
	})
}

func (r *Registry) FindUser(ctx context.Context, id int64) (store.UserRecord, error) {
	var (
		u            store.UserRecord
		role, status string
		deptID       sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx, `
SELECT user_id, name, department_id, role, status FROM users WHERE user_id = ?;
`, id).Scan(&u.ID, &u.Name, &deptID, &role, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return store.UserRecord{}, store.ErrNotFound
	}
	if err != nil {
		return store.UserRecord{}, fmt.Errorf("FindUser query: %w", err)
	}
	u.DepartmentID = int64Ptr(deptID)
	u.Role = types.UserRole(role)
	u.Status = types.UserStatus(status)
	return u, nil
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}
