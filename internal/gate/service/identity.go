package service

import (
	"context"
	"errors"

	"github.com/BrandonDHaskell/Portunus/gate/internal/gate/store"
	"github.com/BrandonDHaskell/Portunus/gate/internal/gate/types"
)

// Caller is an authenticated user resolved to the fields the gate needs.
type Caller struct {
	ID           int64
	Name         string
	DepartmentID int64
	Role         types.UserRole
}

// IdentityResolver turns a user id taken from a verified token into a
// Caller, applying the account checks every user-facing operation shares.
type IdentityResolver struct {
	users store.UserStore
}

func NewIdentityResolver(users store.UserStore) *IdentityResolver {
	return &IdentityResolver{users: users}
}

// Resolve returns ErrNotAuthorized when the user is unknown, not ACTIVE,
// or not attached to a department.
func (r *IdentityResolver) Resolve(ctx context.Context, userID int64) (Caller, error) {
	u, err := r.users.FindUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return Caller{}, ErrNotAuthorized
	}
	if err != nil {
		return Caller{}, err
	}
	if u.Status != types.UserActive || u.DepartmentID == nil {
		return Caller{}, ErrNotAuthorized
	}
	return Caller{
		ID:           u.ID,
		Name:         u.Name,
		DepartmentID: *u.DepartmentID,
		Role:         u.Role,
	}, nil
}

// CanSee reports whether the caller may read a record owned by departmentID.
func (c Caller) CanSee(departmentID int64) bool {
	return c.Role == types.RoleAdmin || c.DepartmentID == departmentID
}
