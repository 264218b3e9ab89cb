package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/BrandonDHaskell/Portunus/gate/internal/gate/store"
)

func (s *Store) RecordEvent(ctx context.Context, rec store.AccessEventRecord) error {
	if rec.OccurredAt.IsZero() {
		rec.OccurredAt = time.Now().UTC()
	}
	if _, err := s.db.ExecContext(ctx, `
		insert into access_events(sensor_id, user_id, department_id, kind, outcome, code, detail, occurred_at_ms)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		nullInt64(rec.SensorID), nullInt64(rec.UserID), nullInt64(rec.DepartmentID),
		string(rec.Kind), string(rec.Outcome), nullString(rec.Code), nullString(rec.Detail),
		rec.OccurredAt.UTC().UnixMilli(),
	); err != nil {
		return fmt.Errorf("record event: %w", err)
	}
	return nil
}
