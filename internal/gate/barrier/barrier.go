// Package barrier tracks the gate's physical state and owns its auto-close
// timer.
package barrier

import (
	"errors"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/BrandonDHaskell/Portunus/gate/internal/clock"
	"github.com/BrandonDHaskell/Portunus/gate/internal/gate/types"
)

// DefaultAutoClose is how long the barrier stays open without a new trigger.
const DefaultAutoClose = 10 * time.Second

// ErrShutdown is returned by Open and Close after Shutdown.
var ErrShutdown = errors.New("barrier: shut down")

// Snapshot is a point-in-time view of the barrier.
//
// OpenSince and AutoCloseAt are set only while Status is OPEN.
type Snapshot struct {
	Status      types.BarrierStatus
	LastUpdate  time.Time
	LastEvent   *types.EventKind
	Department  *int64
	User        *int64
	OpenSince   *time.Time
	AutoCloseAt *time.Time
}

// SecondsOpen is whole seconds elapsed since the barrier opened, or nil
// when it is closed.
func (s Snapshot) SecondsOpen(now time.Time) *int64 {
	if s.Status != types.BarrierOpen || s.OpenSince == nil {
		return nil
	}
	secs := int64(now.Sub(*s.OpenSince) / time.Second)
	if secs < 0 {
		secs = 0
	}
	return &secs
}

// Transition describes one state change, reported to the observer.
type Transition struct {
	From types.BarrierStatus
	To   types.BarrierStatus
	Kind types.EventKind
	At   time.Time
}

type Option func(*Barrier)

// WithObserver registers fn to be called after every transition. fn runs
// with the barrier's lock held and must not call back into the Barrier.
func WithObserver(fn func(Transition)) Option {
	return func(b *Barrier) { b.observer = fn }
}

// Barrier is the gate's state machine. All reads and writes serialize on
// one mutex; at most one auto-close timer is outstanding. Each armed timer
// carries a generation number and a callback whose generation is stale is
// a no-op, so Close never races a timer that already started firing.
type Barrier struct {
	clock     clock.Clock
	autoClose time.Duration
	logger    *log.Logger
	observer  func(Transition)

	mu       sync.Mutex
	state    Snapshot
	timer    *clock.Timer
	gen      uint64
	shutdown bool
}

// New returns a CLOSED barrier. autoClose <= 0 selects DefaultAutoClose.
func New(clk clock.Clock, autoClose time.Duration, logger *log.Logger, opts ...Option) *Barrier {
	if autoClose <= 0 {
		autoClose = DefaultAutoClose
	}
	b := &Barrier{
		clock:     clk,
		autoClose: autoClose,
		logger:    logger,
		state: Snapshot{
			Status:     types.BarrierClosed,
			LastUpdate: clk.Now().UTC(),
		},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// AutoCloseAfter reports the configured auto-close duration.
func (b *Barrier) AutoCloseAfter() time.Duration { return b.autoClose }

// Open moves the barrier to OPEN and (re)arms the auto-close timer from
// now. Opening an already open barrier restarts the timer.
func (b *Barrier) Open(kind types.EventKind, department, user *int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.shutdown {
		return ErrShutdown
	}

	now := b.clock.Now().UTC()
	from := b.state.Status
	deadline := now.Add(b.autoClose)

	b.state = Snapshot{
		Status:      types.BarrierOpen,
		LastUpdate:  now,
		LastEvent:   eventPtr(kind),
		Department:  copyID(department),
		User:        copyID(user),
		OpenSince:   &now,
		AutoCloseAt: &deadline,
	}
	b.arm()
	b.notify(from, kind, now)

	b.logger.Printf("barrier: OPEN event=%s department=%s user=%s auto_close_at=%s",
		kind, fmtID(department), fmtID(user), deadline.Format(time.RFC3339))
	return nil
}

// Close cancels any pending auto-close and moves the barrier to CLOSED.
func (b *Barrier) Close(kind types.EventKind, department, user *int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.shutdown {
		return ErrShutdown
	}

	now := b.clock.Now().UTC()
	from := b.state.Status
	b.disarm()
	b.state = Snapshot{
		Status:     types.BarrierClosed,
		LastUpdate: now,
		LastEvent:  eventPtr(kind),
		Department: copyID(department),
		User:       copyID(user),
	}
	b.notify(from, kind, now)

	b.logger.Printf("barrier: CLOSED event=%s department=%s user=%s", kind, fmtID(department), fmtID(user))
	return nil
}

// Status returns the current state without mutating it. When the
// auto-close deadline has passed but the timer callback has not run yet,
// the returned view is the one the callback is about to produce.
func (b *Barrier) Status() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.state
	if s.Status == types.BarrierOpen && s.AutoCloseAt != nil {
		if now := b.clock.Now(); !now.Before(*s.AutoCloseAt) {
			s = autoClosed(s, *s.AutoCloseAt)
		}
	}
	return s
}

// Shutdown cancels the auto-close timer and closes the barrier for good.
// Later Open and Close calls return ErrShutdown.
func (b *Barrier) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.shutdown {
		return
	}
	b.disarm()
	b.shutdown = true
	if b.state.Status == types.BarrierOpen {
		b.state.Status = types.BarrierClosed
		b.state.LastUpdate = b.clock.Now().UTC()
		b.state.OpenSince = nil
		b.state.AutoCloseAt = nil
	}
}

// arm replaces any outstanding timer with a fresh one. Caller holds mu.
func (b *Barrier) arm() {
	b.disarm()
	gen := b.gen
	b.timer = b.clock.AfterFunc(b.autoClose, func() { b.fire(gen) })
}

// disarm stops the outstanding timer and bumps the generation so a
// callback already in flight sees itself as stale. Caller holds mu.
func (b *Barrier) disarm() {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.gen++
}

func (b *Barrier) fire(gen uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if gen != b.gen || b.shutdown || b.state.Status != types.BarrierOpen {
		return
	}
	at := b.clock.Now().UTC()
	b.state = autoClosed(b.state, at)
	b.timer = nil
	b.notify(types.BarrierOpen, types.EventAutoClose, at)

	b.logger.Printf("barrier: CLOSED event=%s after=%s", types.EventAutoClose, b.autoClose)
}

func (b *Barrier) notify(from types.BarrierStatus, kind types.EventKind, at time.Time) {
	if b.observer != nil {
		b.observer(Transition{From: from, To: b.state.Status, Kind: kind, At: at})
	}
}

// autoClosed keeps the department and user of the opening trigger.
func autoClosed(s Snapshot, at time.Time) Snapshot {
	s.Status = types.BarrierClosed
	s.LastUpdate = at.UTC()
	s.LastEvent = eventPtr(types.EventAutoClose)
	s.OpenSince = nil
	s.AutoCloseAt = nil
	return s
}

func eventPtr(k types.EventKind) *types.EventKind {
	if k == "" {
		return nil
	}
	return &k
}

func copyID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func fmtID(id *int64) string {
	if id == nil {
		return "-"
	}
	return strconv.FormatInt(*id, 10)
}
