package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	dbpkg "github.com/BrandonDHaskell/Portunus/gate/internal/db"
	"github.com/BrandonDHaskell/Portunus/gate/internal/gate/store"
)

type AccessEventStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewAccessEventStore(db *sql.DB, writer *dbpkg.Worker) *AccessEventStore {
	return &AccessEventStore{db: db, writer: writer}
}

func (s *AccessEventStore) RecordEvent(ctx context.Context, rec store.AccessEventRecord) error {
	if rec.OccurredAt.IsZero() {
		rec.OccurredAt = time.Now().UTC()
	}
	occurredMs := rec.OccurredAt.UTC().UnixMilli()

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO access_events(
  sensor_id, user_id, department_id, kind, outcome, code, detail, occurred_at_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?);
`,
			nullableInt64(rec.SensorID), nullableInt64(rec.UserID), nullableInt64(rec.DepartmentID),
			string(rec.Kind), string(rec.Outcome), nullableString(rec.Code), nullableString(rec.Detail),
			occurredMs,
		); err != nil {
			return fmt.Errorf("RecordEvent insert: %w", err)
		}
		return nil
	})
}
