package service

import "github.com/BrandonDHaskell/Portunus/gate/internal/gate/types"

// Metrics receives counters from the services. internal/obs provides the
// Prometheus implementation; a nil Metrics is replaced by a no-op.
type Metrics interface {
	AccessDecision(kind types.EventKind, granted bool)
	EventWriteFailed(kind types.EventKind)
	CommandEnqueued(verb types.CommandVerb)
	CommandClaimed(status types.CommandStatus)
	CommandsSwept(n int64)
}

type nopMetrics struct{}

func (nopMetrics) AccessDecision(types.EventKind, bool) {}
func (nopMetrics) EventWriteFailed(types.EventKind) {}
func (nopMetrics) CommandEnqueued(types.CommandVerb) {}
func (nopMetrics) CommandClaimed(types.CommandStatus) {}
func (nopMetrics) CommandsSwept(int64) {}

func metricsOrNop(m Metrics) Metrics {
	if m == nil {
		return nopMetrics{}
	}
	return m
}
