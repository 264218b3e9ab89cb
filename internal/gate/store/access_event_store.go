package store

import (
	"context"
	"time"

	"github.com/BrandonDHaskell/Portunus/gate/internal/gate/types"
)

// AccessEventRecord captures one access attempt or manual command. Sensor,
// user and department are nil when the presented code matched nothing;
// Code keeps the credential as presented so history survives deletion of
// the sensor row.
type AccessEventRecord struct {
	SensorID     *int64
	UserID       *int64
	DepartmentID *int64
	Kind         types.EventKind
	Outcome      types.Outcome
	Code         string
	Detail       string
	OccurredAt   time.Time
}

// AccessEventStore persists access events as an append-only audit log.
type AccessEventStore interface {
	RecordEvent(ctx context.Context, rec AccessEventRecord) error
}
