package memory

import (
	"context"
	"sync"
	"time"

	"github.com/BrandonDHaskell/Portunus/gate/internal/gate/store"
	"github.com/BrandonDHaskell/Portunus/gate/internal/gate/types"
)

// CommandStore is an in-memory remote command queue. A single mutex makes
// every transition a compare-and-set on status.
type CommandStore struct {
	mu   sync.Mutex
	rows []store.CommandRecord // rows[i].ID == i+1
}

func NewCommandStore() *CommandStore {
	return &CommandStore{}
}

func (s *CommandStore) InsertCommand(_ context.Context, rec store.CommandRecord) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec.ID = int64(len(s.rows) + 1)
	if rec.Status == "" {
		rec.Status = types.CommandPending
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	s.rows = append(s.rows, rec)
	return rec.ID, nil
}

func (s *CommandStore) LatestPending(_ context.Context) (store.CommandRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		best  store.CommandRecord
		found bool
	)
	for _, r := range s.rows {
		if r.Status != types.CommandPending {
			continue
		}
		if !found || r.CreatedAt.After(best.CreatedAt) ||
			(r.CreatedAt.Equal(best.CreatedAt) && r.ID > best.ID) {
			best, found = r, true
		}
	}
	if !found {
		return store.CommandRecord{}, store.ErrNotFound
	}
	return best, nil
}

func (s *CommandStore) TransitionCommand(_ context.Context, id int64, to types.CommandStatus, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id < 1 || id > int64(len(s.rows)) {
		return false, nil
	}
	r := &s.rows[id-1]
	if r.Status != types.CommandPending {
		return false, nil
	}
	r.Status = to
	if to == types.CommandExecuted {
		t := at.UTC()
		r.ExecutedAt = &t
	}
	return true, nil
}

func (s *CommandStore) GetCommand(_ context.Context, id int64) (store.CommandRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id < 1 || id > int64(len(s.rows)) {
		return store.CommandRecord{}, store.ErrNotFound
	}
	return s.rows[id-1], nil
}

func (s *CommandStore) ExpirePending(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for i := range s.rows {
		if s.rows[i].Status == types.CommandPending && s.rows[i].Expired(now) {
			s.rows[i].Status = types.CommandExpired
			n++
		}
	}
	return n, nil
}
