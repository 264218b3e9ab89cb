package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	dbpkg "github.com/BrandonDHaskell/Portunus/gate/internal/db"
	"github.com/BrandonDHaskell/Portunus/gate/internal/gate/store"
	"github.com/BrandonDHaskell/Portunus/gate/internal/gate/types"
)

// CommandStore is the sqlite-backed remote command queue. Reads go straight
// to the pool; every write runs on the Worker so transitions are applied
// one at a time.
type CommandStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewCommandStore(db *sql.DB, writer *dbpkg.Worker) *CommandStore {
	return &CommandStore{db: db, writer: writer}
}

const commandColumns = `command_id, command, user_id, department_id, status,
       created_at_ms, executed_at_ms, ttl_seconds`

func (s *CommandStore) InsertCommand(ctx context.Context, rec store.CommandRecord) (int64, error) {
	if rec.Status == "" {
		rec.Status = types.CommandPending
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	var id int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
INSERT INTO remote_commands(command, user_id, department_id, status, created_at_ms, ttl_seconds)
VALUES (?, ?, ?, ?, ?, ?);
`, string(rec.Command), rec.UserID, rec.DepartmentID, string(rec.Status),
			rec.CreatedAt.UTC().UnixMilli(), rec.TTLSeconds)
		if err != nil {
			return fmt.Errorf("InsertCommand: %w", err)
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (s *CommandStore) LatestPending(ctx context.Context) (store.CommandRecord, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT `+commandColumns+`
FROM remote_commands
WHERE status = 'PENDING'
ORDER BY created_at_ms DESC, command_id DESC
LIMIT 1;
`)
	rec, err := scanCommand(row)
	if err != nil {
		return store.CommandRecord{}, fmt.Errorf("LatestPending: %w", err)
	}
	return rec, nil
}

func (s *CommandStore) TransitionCommand(ctx context.Context, id int64, to types.CommandStatus, at time.Time) (bool, error) {
	var executedMs any
	if to == types.CommandExecuted {
		executedMs = at.UTC().UnixMilli()
	}

	var won bool
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
UPDATE remote_commands
SET status = ?, executed_at_ms = COALESCE(?, executed_at_ms)
WHERE command_id = ? AND status = 'PENDING';
`, string(to), executedMs, id)
		if err != nil {
			return fmt.Errorf("TransitionCommand update: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("TransitionCommand rows: %w", err)
		}
		won = n == 1
		return nil
	})
	return won, err
}

func (s *CommandStore) GetCommand(ctx context.Context, id int64) (store.CommandRecord, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT `+commandColumns+`
FROM remote_commands
WHERE command_id = ?;
`, id)
	rec, err := scanCommand(row)
	if err != nil {
		return store.CommandRecord{}, fmt.Errorf("GetCommand: %w", err)
	}
	return rec, nil
}

func (s *CommandStore) ExpirePending(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
UPDATE remote_commands
SET status = 'EXPIRED'
WHERE status = 'PENDING' AND created_at_ms + ttl_seconds * 1000 < ?;
`, now.UTC().UnixMilli())
		if err != nil {
			return fmt.Errorf("ExpirePending update: %w", err)
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
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
