package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/BrandonDHaskell/Portunus/gate/internal/gate/store"
	"github.com/BrandonDHaskell/Portunus/gate/internal/gate/types"
)

func (s *Store) FindByCode(ctx context.Context, code string) (store.SensorRecord, error) {
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
	err := s.db.QueryRowContext(ctx, `
		select s.sensor_id, s.code, s.status, s.kind, s.department_id, s.registered_by,
		       s.alias, s.issued_at_ms, s.revoked_at_ms,
		       d.number, d.tower, d.condominium, d.floor
		from sensors s
		join departments d on d.department_id = s.department_id
		where s.code = $1
	`, code).Scan(
		&rec.ID, &rec.Code, &status, &kind, &rec.DepartmentID, &registeredBy,
		&alias, &issuedMs, &revokedMs,
		&rec.Department.Number, &tower, &rec.Department.Condominium, &floor,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return store.SensorRecord{}, store.ErrNotFound
	}
	if err != nil {
		return store.SensorRecord{}, fmt.Errorf("find sensor: %w", err)
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

func (s *Store) Register(ctx context.Context, rec store.SensorRecord) (int64, error) {
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
	issuedMs := rec.IssuedAt.UTC().UnixMilli()

	var revoked sql.NullInt64
	switch {
	case rec.RevokedAt != nil:
		revoked = sql.NullInt64{Int64: rec.RevokedAt.UTC().UnixMilli(), Valid: true}
	case store.Revokes(rec.Status):
		revoked = sql.NullInt64{Int64: issuedMs, Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var one int
	err = tx.QueryRowContext(ctx, `select 1 from departments where department_id = $1`, rec.DepartmentID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("register sensor: department %d: %w", rec.DepartmentID, store.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("register sensor department lookup: %w", err)
	}

	var id int64
	err = tx.QueryRowContext(ctx, `
		insert into sensors(code, status, kind, department_id, registered_by, alias,
		                    issued_at_ms, revoked_at_ms, updated_at_ms)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $7)
		returning sensor_id
	`, rec.Code, string(rec.Status), string(rec.Kind), rec.DepartmentID,
		nullInt64(rec.RegisteredBy), nullString(rec.Alias), issuedMs, revoked,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, store.ErrConflict
		}
		return 0, fmt.Errorf("register sensor insert: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

func (s *Store) SetStatus(ctx context.Context, id int64, status types.SensorStatus, at time.Time) error {
	if at.IsZero() {
		at = time.Now().UTC()
	}
	atMs := at.UTC().UnixMilli()

	// revoked_at_ms follows the status: stamped on LOST/BLOCKED, cleared on
	// ACTIVE, left alone otherwise.
	res, err := s.db.ExecContext(ctx, `
		update sensors
		set status = $1,
		    revoked_at_ms = case
		        when $1 in ('LOST', 'BLOCKED') then $2
		        when $1 = 'ACTIVE' then null
		        else revoked_at_ms
		    end,
		    updated_at_ms = $2
		where sensor_id = $3
	`, string(status), atMs, id)
	if err != nil {
		return fmt.Errorf("set sensor status: %w", err)
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

func (s *Store) FindUser(ctx context.Context, id int64) (store.UserRecord, error) {
	var (
		u            store.UserRecord
		role, status string
		deptID       sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
		select user_id, name, department_id, role, status from users where user_id = $1
	`, id).Scan(&u.ID, &u.Name, &deptID, &role, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return store.UserRecord{}, store.ErrNotFound
	}
	if err != nil {
		return store.UserRecord{}, fmt.Errorf("find user: %w", err)
	}
	u.DepartmentID = int64Ptr(deptID)
	u.Role = types.UserRole(role)
	u.Status = types.UserStatus(status)
	return u, nil
}
