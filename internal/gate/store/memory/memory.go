package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/BrandonDHaskell/Portunus/gate/internal/gate/store"
	"github.com/BrandonDHaskell/Portunus/gate/internal/gate/types"
)

// Registry holds departments, users and sensors in memory. It implements
// store.SensorRegistry and store.UserStore and is intended for tests and
// dev environments.
type Registry struct {
	mu          sync.RWMutex
	nextID      int64
	departments map[int64]store.DepartmentRecord
	sensors     map[int64]store.SensorRecord
	byCode      map[string]int64
	users       map[int64]store.UserRecord
}

func NewRegistry() *Registry {
	return &Registry{
		departments: make(map[int64]store.DepartmentRecord),
		sensors:     make(map[int64]store.SensorRecord),
		byCode:      make(map[string]int64),
		users:       make(map[int64]store.UserRecord),
	}
}

func (r *Registry) AddDepartment(d store.DepartmentRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.departments[d.ID] = d
}

func (r *Registry) AddUser(u store.UserRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.ID] = u
}

func (r *Registry) FindByCode(_ context.Context, code string) (store.SensorRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byCode[types.NormalizeCode(code)]
	if !ok {
		return store.SensorRecord{}, store.ErrNotFound
	}
	rec := r.sensors[id]
	rec.Department = r.departments[rec.DepartmentID]
	return rec, nil
}

func (r *Registry) Register(_ context.Context, rec store.SensorRecord) (int64, error) {
	rec.Code = types.NormalizeCode(rec.Code)
	if rec.Code == "" {
		return 0, fmt.Errorf("register sensor: empty code")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.departments[rec.DepartmentID]; !ok {
		return 0, fmt.Errorf("register sensor: department %d: %w", rec.DepartmentID, store.ErrNotFound)
	}
	if _, dup := r.byCode[rec.Code]; dup {
		return 0, store.ErrConflict
	}

	r.nextID++
	rec.ID = r.nextID
	if rec.Status == "" {
		rec.Status = types.SensorActive
	}
	if rec.Kind == "" {
		rec.Kind = types.SensorCard
	}
	if rec.IssuedAt.IsZero() {
		rec.IssuedAt = time.Now().UTC()
	}
	rec.Department = store.DepartmentRecord{}

	r.sensors[rec.ID] = rec
	r.byCode[rec.Code] = rec.ID
	return rec.ID, nil
}

func (r *Registry) SetStatus(_ context.Context, id int64, status types.SensorStatus, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.sensors[id]
	if !ok {
		return store.ErrNotFound
	}
	rec.Status = status
	switch {
	case store.Revokes(status):
		t := at.UTC()
		rec.RevokedAt = &t
	case status == types.SensorActive:
		rec.RevokedAt = nil
	}
	r.sensors[id] = rec
	return nil
}

func (r *Registry) FindUser(_ context.Context, id int64) (store.UserRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return store.UserRecord{}, store.ErrNotFound
	}
	return u, nil
}
