package service_test

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/BrandonDHaskell/Portunus/gate/internal/clock"
	"github.com/BrandonDHaskell/Portunus/gate/internal/gate/barrier"
	"github.com/BrandonDHaskell/Portunus/gate/internal/gate/service"
	"github.com/BrandonDHaskell/Portunus/gate/internal/gate/store"
	"github.com/BrandonDHaskell/Portunus/gate/internal/gate/store/memory"
	"github.com/BrandonDHaskell/Portunus/gate/internal/gate/types"
)

var epoch = time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC)

func silentLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func int64p(v int64) *int64 { return &v }

// fixture is a fully wired in-memory gate: registry seeded like the dev
// database, a fake clock and a real barrier.
type fixture struct {
	clock    *clock.FakeClock
	registry *memory.Registry
	events   *memory.AccessEventStore
	commands *memory.CommandStore
	barrier  *barrier.Barrier
	metrics  *recordingMetrics
	sensorID map[string]int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	f := &fixture{
		clock:    clock.Fake(epoch),
		registry: memory.NewRegistry(),
		events:   memory.NewAccessEventStore(),
		commands: memory.NewCommandStore(),
		metrics:  &recordingMetrics{},
		sensorID: make(map[string]int64),
	}
	f.barrier = barrier.New(f.clock, 10*time.Second, silentLogger())
	t.Cleanup(f.barrier.Shutdown)

	f.registry.AddDepartment(store.DepartmentRecord{ID: 1, Number: "101", Tower: "Torre A", Condominium: "Condominio Los Pinos"})
	f.registry.AddDepartment(store.DepartmentRecord{ID: 2, Number: "202", Tower: "Torre A", Condominium: "Condominio Los Pinos"})
	f.registry.AddDepartment(store.DepartmentRecord{ID: 3, Number: "303", Condominium: "Condominio Los Pinos"})

	f.registry.AddUser(store.UserRecord{ID: 1, Name: "Juan Pérez", DepartmentID: int64p(1), Role: types.RoleOperator, Status: types.UserActive})
	f.registry.AddUser(store.UserRecord{ID: 2, Name: "María González", DepartmentID: int64p(2), Role: types.RoleOperator, Status: types.UserActive})
	f.registry.AddUser(store.UserRecord{ID: 3, Name: "Admin Demo", DepartmentID: int64p(1), Role: types.RoleAdmin, Status: types.UserActive})
	f.registry.AddUser(store.UserRecord{ID: 4, Name: "Sin Depto", Role: types.RoleOperator, Status: types.UserActive})
	f.registry.AddUser(store.UserRecord{ID: 5, Name: "Inactivo", DepartmentID: int64p(2), Role: types.RoleOperator, Status: types.UserInactive})
	f.registry.AddUser(store.UserRecord{ID: 7, Name: "Pedro Soto", DepartmentID: int64p(1), Role: types.RoleOperator, Status: types.UserActive})

	for _, s := range []store.SensorRecord{
		{Code: "A1:B2:C3:D4", Status: types.SensorActive, Kind: types.SensorCard, DepartmentID: 1, RegisteredBy: int64p(1), Alias: "Tarjeta Principal - Depto 101"},
		{Code: "E5:F6:G7:H8", Status: types.SensorActive, Kind: types.SensorKeyfob, DepartmentID: 3},
		{Code: "AA:BB:CC:DD", Status: types.SensorInactive, Kind: types.SensorCard, DepartmentID: 2},
		{Code: "11:22:33:44", Status: types.SensorBlocked, Kind: types.SensorKeyfob, DepartmentID: 2},
		{Code: "55:66:77:88", Status: types.SensorLost, Kind: types.SensorCard, DepartmentID: 2, Alias: "Llavero perdido"},
	} {
		id, err := f.registry.Register(ctx, s)
		if err != nil {
			t.Fatalf("register %s: %v", s.Code, err)
		}
		f.sensorID[s.Code] = id
	}
	return f
}

func (f *fixture) accessService(events store.AccessEventStore) *service.AccessService {
	if events == nil {
		events = f.events
	}
	return service.NewAccessService(f.registry, events, f.barrier, f.clock, silentLogger(), f.metrics)
}

func (f *fixture) commandService(events store.AccessEventStore) *service.CommandService {
	if events == nil {
		events = f.events
	}
	return service.NewCommandService(service.CommandServiceConfig{
		Commands: f.commands,
		Events:   events,
		Identity: service.NewIdentityResolver(f.registry),
		Barrier:  f.barrier,
		Clock:    f.clock,
		Logger:   silentLogger(),
		Metrics:  f.metrics,
	})
}

// failingEventStore rejects every write.
type failingEventStore struct{}

func (failingEventStore) RecordEvent(context.Context, store.AccessEventRecord) error {
	return errors.New("disk full")
}

// failingSensorStore fails every lookup.
type failingSensorStore struct{}

func (failingSensorStore) FindByCode(context.Context, string) (store.SensorRecord, error) {
	return store.SensorRecord{}, errors.New("connection refused")
}

// failingCommandStore fails inserts and delegates everything else.
type failingCommandStore struct {
	store.CommandStore
}

func (failingCommandStore) InsertCommand(context.Context, store.CommandRecord) (int64, error) {
	return 0, errors.New("connection refused")
}

type recordingMetrics struct {
	mu         sync.Mutex
	decisions  map[types.EventKind]int
	eventFails int
	enqueued   int
	claimed    map[types.CommandStatus]int
	swept      int64
}

func (m *recordingMetrics) AccessDecision(kind types.EventKind, _ bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.decisions == nil {
		m.decisions = make(map[types.EventKind]int)
	}
	m.decisions[kind]++
}

func (m *recordingMetrics) EventWriteFailed(types.EventKind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.eventFails++
}

func (m *recordingMetrics) CommandEnqueued(types.CommandVerb) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enqueued++
}

func (m *recordingMetrics) CommandClaimed(status types.CommandStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.claimed == nil {
		m.claimed = make(map[types.CommandStatus]int)
	}
	m.claimed[status]++
}

func (m *recordingMetrics) CommandsSwept(n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.swept += n
}
