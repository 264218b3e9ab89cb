package service

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/BrandonDHaskell/Portunus/gate/internal/clock"
	"github.com/BrandonDHaskell/Portunus/gate/internal/gate/store"
)

// CommandSweeper periodically marks PENDING commands that outlived their
// TTL as EXPIRED. Polls already expire the newest command they look at;
// the sweeper catches the older ones a burst of requests leaves behind.
//
// An interval of 0 disables sweeping entirely.
type CommandSweeper struct {
	store    store.CommandStore
	clock    clock.Clock
	interval time.Duration
	logger   *log.Logger
	metrics  Metrics

	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// NewCommandSweeper creates a sweeper but does not start it.
func NewCommandSweeper(s store.CommandStore, clk clock.Clock, interval time.Duration, logger *log.Logger, metrics Metrics) *CommandSweeper {
	return &CommandSweeper{
		store:    s,
		clock:    clk,
		interval: interval,
		logger:   logger,
		metrics:  metricsOrNop(metrics),
		done:     make(chan struct{}),
	}
}

// Start runs one sweep immediately, then repeats every interval until ctx
// is cancelled or Stop is called.
func (p *CommandSweeper) Start(ctx context.Context) {
	if p.interval <= 0 {
		p.logger.Printf("command sweeper disabled (interval=0)")
		close(p.done)
		return
	}

	ctx, p.cancel = context.WithCancel(ctx)
	ticker := p.clock.NewTicker(p.interval)

	go p.loop(ctx, ticker)

	p.logger.Printf("command sweeper started (interval=%s)", p.interval)
}

// Stop signals the sweeper to exit and waits for it. Safe to call twice.
func (p *CommandSweeper) Stop() {
	p.stopOnce.Do(func() {
		if p.cancel != nil {
			p.cancel()
		}
	})
	<-p.done
}

func (p *CommandSweeper) loop(ctx context.Context, ticker *clock.Ticker) {
	defer close(p.done)
	defer ticker.Stop()

	p.Sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Sweep(ctx)
		}
	}
}

// Sweep runs a single expiry pass and returns how many commands expired.
func (p *CommandSweeper) Sweep(ctx context.Context) int64 {
	now := p.clock.Now().UTC()
	n, err := p.store.ExpirePending(ctx, now)
	if err != nil {
		p.logger.Printf("command sweep error: %v", err)
		return 0
	}
	if n > 0 {
		p.metrics.CommandsSwept(n)
		p.logger.Printf("command sweep: expired %d pending commands", n)
	}
	return n
}
