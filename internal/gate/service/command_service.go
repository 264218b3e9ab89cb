package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/BrandonDHaskell/Portunus/gate/internal/clock"
	"github.com/BrandonDHaskell/Portunus/gate/internal/gate/store"
	"github.com/BrandonDHaskell/Portunus/gate/internal/gate/types"
)

// DefaultCommandTTL is how long a remote command waits for the controller.
const DefaultCommandTTL = 30 * time.Second

// maxClaimAttempts bounds how often ClaimNext re-selects after losing a
// transition race to another poller.
const maxClaimAttempts = 3

type CommandService struct {
	commands store.CommandStore
	events   store.AccessEventStore
	identity *IdentityResolver
	barrier  BarrierControl
	clock    clock.Clock
	ttl      time.Duration
	logger   *log.Logger
	metrics  Metrics
}

type CommandServiceConfig struct {
	Commands store.CommandStore
	Events   store.AccessEventStore
	Identity *IdentityResolver
	Barrier  BarrierControl
	Clock    clock.Clock

	// TTL applied by the manual endpoints. Defaults to DefaultCommandTTL.
	TTL time.Duration

	Logger  *log.Logger
	Metrics Metrics
}

func NewCommandService(cfg CommandServiceConfig) *CommandService {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultCommandTTL
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	return &CommandService{
		commands: cfg.Commands,
		events:   cfg.Events,
		identity: cfg.Identity,
		barrier:  cfg.Barrier,
		clock:    clk,
		ttl:      ttl,
		logger:   cfg.Logger,
		metrics:  metricsOrNop(cfg.Metrics),
	}
}

// Enqueue inserts a PENDING command and returns its id. ttl <= 0 selects
// the service default. Older PENDING commands are left as they are; the
// controller only ever receives the newest one.
func (s *CommandService) Enqueue(ctx context.Context, verb types.CommandVerb, userID, departmentID int64, ttl time.Duration) (int64, error) {
	if verb != types.CommandOpen && verb != types.CommandClose {
		return 0, fmt.Errorf("enqueue: unknown command %q", verb)
	}
	if ttl <= 0 {
		ttl = s.ttl
	}

	id, err := s.commands.InsertCommand(ctx, store.CommandRecord{
		Command:      verb,
		UserID:       userID,
		DepartmentID: departmentID,
		Status:       types.CommandPending,
		CreatedAt:    s.clock.Now().UTC(),
		TTLSeconds:   int(ttl / time.Second),
	})
	if err != nil {
		return 0, fmt.Errorf("enqueue %s: %w", verb, err)
	}
	s.metrics.CommandEnqueued(verb)
	return id, nil
}

// ClaimNext is the controller poll. It looks at the newest PENDING command
// only: if that command has outlived its TTL it is marked EXPIRED and nil
// is returned, otherwise it is marked EXECUTED and its verb returned. Each
// transition is a compare-and-set on PENDING, so a command is delivered to
// at most one poller.
func (s *CommandService) ClaimNext(ctx context.Context) (*types.CommandVerb, error) {
	for attempt := 0; attempt < maxClaimAttempts; attempt++ {
		rec, err := s.commands.LatestPending(ctx)
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("claim: %w", err)
		}

		now := s.clock.Now().UTC()
		to := types.CommandExecuted
		if rec.Expired(now) {
			to = types.CommandExpired
		}

		won, err := s.commands.TransitionCommand(ctx, rec.ID, to, now)
		if err != nil {
			return nil, fmt.Errorf("claim %d: %w", rec.ID, err)
		}
		if !won {
			continue
		}

		s.metrics.CommandClaimed(to)
		if to == types.CommandExpired {
			s.logger.Printf("command: id=%d %s expired after %s", rec.ID, rec.Command, now.Sub(rec.CreatedAt).Truncate(time.Millisecond))
			return nil, nil
		}
		s.logger.Printf("command: id=%d %s delivered", rec.ID, rec.Command)
		verb := rec.Command
		return &verb, nil
	}
	return nil, nil
}

// ManualOpen enqueues an OPEN on behalf of a resident and opens the
// barrier straight away.
func (s *CommandService) ManualOpen(ctx context.Context, userID int64) (types.ManualCommandResponse, error) {
	return s.manual(ctx, userID, types.CommandOpen)
}

// ManualClose enqueues a CLOSE on behalf of a resident and closes the
// barrier straight away.
func (s *CommandService) ManualClose(ctx context.Context, userID int64) (types.ManualCommandResponse, error) {
	return s.manual(ctx, userID, types.CommandClose)
}

// manual runs enqueue, event append and barrier update in that order. Only
// the enqueue is fatal; a failed event append after it is logged and the
// request still succeeds.
func (s *CommandService) manual(ctx context.Context, userID int64, verb types.CommandVerb) (types.ManualCommandResponse, error) {
	caller, err := s.identity.Resolve(ctx, userID)
	if err != nil {
		return types.ManualCommandResponse{}, err
	}

	id, err := s.Enqueue(ctx, verb, caller.ID, caller.DepartmentID, s.ttl)
	if err != nil {
		return types.ManualCommandResponse{}, err
	}

	kind, detail, message := types.EventManualOpen, "Manual open from app - User: ", "Open command sent"
	if verb == types.CommandClose {
		kind, detail, message = types.EventManualClose, "Manual close from app - User: ", "Close command sent"
	}

	appendEvent(ctx, s.events, store.AccessEventRecord{
		UserID:       &caller.ID,
		DepartmentID: &caller.DepartmentID,
		Kind:         kind,
		Outcome:      types.OutcomeGranted,
		Detail:       detail + caller.Name,
		OccurredAt:   s.clock.Now().UTC(),
	}, s.logger, s.metrics)

	if verb == types.CommandOpen {
		err = s.barrier.Open(kind, &caller.DepartmentID, &caller.ID)
	} else {
		err = s.barrier.Close(kind, &caller.DepartmentID, &caller.ID)
	}
	if err != nil {
		s.logger.Printf("command: barrier update failed id=%d: %v", id, err)
	}

	s.logger.Printf("command: id=%d %s by user=%d department=%d", id, verb, caller.ID, caller.DepartmentID)
	return types.ManualCommandResponse{
		OK:        true,
		Message:   message,
		User:      caller.Name,
		CommandID: id,
	}, nil
}

// Get returns one command. The caller is authenticated first, then the
// command's existence is checked (ErrNotFound), then ownership
// (ErrForbidden). Admins may read any department's commands.
func (s *CommandService) Get(ctx context.Context, userID, commandID int64) (store.CommandRecord, error) {
	caller, err := s.identity.Resolve(ctx, userID)
	if err != nil {
		return store.CommandRecord{}, err
	}

	rec, err := s.commands.GetCommand(ctx, commandID)
	if errors.Is(err, store.ErrNotFound) {
		return store.CommandRecord{}, ErrNotFound
	}
	if err != nil {
		return store.CommandRecord{}, fmt.Errorf("get command %d: %w", commandID, err)
	}

	if !caller.CanSee(rec.DepartmentID) {
		return store.CommandRecord{}, ErrForbidden
	}
	return rec, nil
}
