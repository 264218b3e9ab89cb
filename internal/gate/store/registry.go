package store

import (
	"context"
	"fmt"
	"time"

	"github.com/BrandonDHaskell/Portunus/gate/internal/gate/types"
)

type DepartmentRecord struct {
	ID          int64
	Number      string
	Tower       string // optional
	Condominium string
	Floor       *int
}

// Label renders the department the way residents refer to it, e.g.
// "101 - Torre A".
func (d DepartmentRecord) Label() string {
	if d.Tower == "" {
		return d.Number
	}
	return fmt.Sprintf("%s - %s", d.Number, d.Tower)
}

// SensorRecord is a credential as held by the registry, joined with its
// owning department.
type SensorRecord struct {
	ID           int64
	Code         string // normalized, see types.NormalizeCode
	Status       types.SensorStatus
	Kind         types.SensorKind
	DepartmentID int64
	RegisteredBy *int64
	Alias        string
	IssuedAt     time.Time
	RevokedAt    *time.Time

	Department DepartmentRecord
}

// SensorStore is the read side of the credential registry. The access
// core never writes through it.
type SensorStore interface {
	FindByCode(ctx context.Context, code string) (SensorRecord, error)
}

// SensorRegistry adds the administrative writes used by seeding and
// tooling. Register normalizes the code and returns ErrConflict on a
// duplicate; SetStatus stamps RevokedAt when the status becomes LOST or
// BLOCKED and clears it on ACTIVE.
type SensorRegistry interface {
	SensorStore
	Register(ctx context.Context, rec SensorRecord) (int64, error)
	SetStatus(ctx context.Context, id int64, status types.SensorStatus, at time.Time) error
}

// Revokes reports whether moving a sensor to status stamps a revocation time.
func Revokes(status types.SensorStatus) bool {
	return status == types.SensorLost || status == types.SensorBlocked
}
