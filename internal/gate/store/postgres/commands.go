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

const commandColumns = `command_id, command, user_id, department_id, status, created_at_ms, executed_at_ms, ttl_seconds`

func (s *Store) InsertCommand(ctx context.Context, rec store.CommandRecord) (int64, error) {
	if rec.Status == "" {
		rec.Status = types.CommandPending
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	var id int64
	err := s.db.QueryRowContext(ctx, `
		insert into remote_commands(command, user_id, department_id, status, created_at_ms, ttl_seconds)
		values ($1, $2, $3, $4, $5, $6)
		returning command_id
	`, string(rec.Command), rec.UserID, rec.DepartmentID, string(rec.Status),
		rec.CreatedAt.UTC().UnixMilli(), rec.TTLSeconds,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert command: %w", err)
	}
	return id, nil
}

func (s *Store) LatestPending(ctx context.Context) (store.CommandRecord, error) {
	rec, err := scanCommand(s.db.QueryRowContext(ctx, `
		select `+commandColumns+`
		from remote_commands
		where status = 'PENDING'
		order by created_at_ms desc, command_id desc
		limit 1
	`))
	if err != nil {
		return store.CommandRecord{}, fmt.Errorf("latest pending: %w", err)
	}
	return rec, nil
}

func (s *Store) TransitionCommand(ctx context.Context, id int64, to types.CommandStatus, at time.Time) (bool, error) {
	var executed sql.NullInt64
	if to == types.CommandExecuted {
		executed = sql.NullInt64{Int64: at.UTC().UnixMilli(), Valid: true}
	}
	res, err := s.db.ExecContext(ctx, `
		update remote_commands
		set status = $1, executed_at_ms = coalesce($2::bigint, executed_at_ms)
		where command_id = $3 and status = 'PENDING'
	`, string(to), executed, id)
	if err != nil {
		return false, fmt.Errorf("transition command: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *Store) GetCommand(ctx context.Context, id int64) (store.CommandRecord, error) {
	rec, err := scanCommand(s.db.QueryRowContext(ctx, `
		select `+commandColumns+` from remote_commands where command_id = $1
	`, id))
	if err != nil {
		return store.CommandRecord{}, fmt.Errorf("get command: %w", err)
	}
	return rec, nil
}

func (s *Store) ExpirePending(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		update remote_commands
		set status = 'EXPIRED'
		where status = 'PENDING' and created_at_ms + ttl_seconds * 1000 < $1
	`, now.UTC().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("expire pending: %w", err)
	}
	return res.RowsAffected()
}

func scanCommand(row *sql.Row) (store.CommandRecord, error) {
	var (
		rec             store.CommandRecord
		command, status string
		createdMs       int64
		executedMs      sql.NullInt64
	)
	err := row.Scan(&rec.ID, &command, &rec.UserID, &rec.DepartmentID, &status,
		&createdMs, &executedMs, &rec.TTLSeconds)
	if errors.Is(err, sql.ErrNoRows) {
		return store.CommandRecord{}, store.ErrNotFound
	}
	if err != nil {
		return store.CommandRecord{}, err
	}
	rec.Command = types.CommandVerb(command)
	rec.Status = types.CommandStatus(status)
	rec.CreatedAt = fromMs(createdMs)
	rec.ExecutedAt = timePtr(executedMs)
	return rec, nil
}
