package store

import (
	"context"

	"github.com/BrandonDHaskell/Portunus/gate/internal/gate/types"
)

// UserRecord is the identity collaborator's view of an account.
type UserRecord struct {
	ID           int64
	Name         string
	DepartmentID *int64
	Role         types.UserRole
	Status       types.UserStatus
}

type UserStore interface {
	FindUser(ctx context.Context, id int64) (UserRecord, error)
}
