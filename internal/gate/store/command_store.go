package store

import (
	"context"
	"time"

	"github.com/BrandonDHaskell/Portunus/gate/internal/gate/types"
)

// CommandRecord is a remote OPEN/CLOSE instruction awaiting the controller.
type CommandRecord struct {
	ID           int64
	Command      types.CommandVerb
	UserID       int64
	DepartmentID int64
	Status       types.CommandStatus
	CreatedAt    time.Time
	ExecutedAt   *time.Time
	TTLSeconds   int
}

// Expired reports whether more than TTLSeconds have elapsed since creation.
func (c CommandRecord) Expired(now time.Time) bool {
	return now.Sub(c.CreatedAt) > time.Duration(c.TTLSeconds)*time.Second
}

// CommandStore persists the remote command queue.
//
// TransitionCommand moves a command out of PENDING. It is a single
// conditional update guarded by status = PENDING and reports false when
// another caller got there first. ExecutedAt is stamped only for EXECUTED.
type CommandStore interface {
	InsertCommand(ctx context.Context, rec CommandRecord) (int64, error)
	LatestPending(ctx context.Context) (CommandRecord, error)
	TransitionCommand(ctx context.Context, id int64, to types.CommandStatus, at time.Time) (bool, error)
	GetCommand(ctx context.Context, id int64) (CommandRecord, error)

	// ExpirePending marks every PENDING command whose TTL has elapsed at
	// now as EXPIRED and returns how many rows changed.
	ExpirePending(ctx context.Context, now time.Time) (int64, error)
}
