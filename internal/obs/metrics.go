// Package obs holds the gate's Prometheus metrics.
package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/BrandonDHaskell/Portunus/gate/internal/gate/barrier"
	"github.com/BrandonDHaskell/Portunus/gate/internal/gate/types"
)

const namespace = "gate"

// Metrics implements service.Metrics and instruments HTTP and the barrier.
// Each instance registers on its own registry so tests can build as many
// as they like.
type Metrics struct {
	registry *prometheus.Registry

	accessDecisions    *prometheus.CounterVec
	eventWriteFailures *prometheus.CounterVec
	commandsEnqueued   *prometheus.CounterVec
	commandsClaimed    *prometheus.CounterVec
	commandsSwept      prometheus.Counter
	barrierTransitions *prometheus.CounterVec
	barrierOpen        prometheus.Gauge

	httpInFlight        prometheus.Gauge
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		accessDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "access_decisions_total",
			Help:      "Credential validations by event kind and outcome.",
		}, []string{"kind", "outcome"}),
		eventWriteFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "access_event_write_failures_total",
			Help:      "Access events that could not be appended to the audit log.",
		}, []string{"kind"}),
		commandsEnqueued: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_enqueued_total",
			Help:      "Remote commands enqueued by verb.",
		}, []string{"command"}),
		commandsClaimed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_claimed_total",
			Help:      "Remote commands moved out of PENDING by a poll.",
		}, []string{"status"}),
		commandsSwept: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_swept_total",
			Help:      "Stale PENDING commands expired by the sweeper.",
		}),
		barrierTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "barrier_transitions_total",
			Help:      "Barrier state changes by target status and trigger.",
		}, []string{"status", "event"}),
		barrierOpen: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "barrier_open",
			Help:      "1 while the barrier is open.",
		}),
		httpInFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_in_flight_requests",
			Help:      "In-flight HTTP requests.",
		}),
		httpRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		httpRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latencies in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) AccessDecision(kind types.EventKind, granted bool) {
	outcome := types.OutcomeDenied
	if granted {
		outcome = types.OutcomeGranted
	}
	m.accessDecisions.WithLabelValues(string(kind), string(outcome)).Inc()
}

func (m *Metrics) EventWriteFailed(kind types.EventKind) {
	m.eventWriteFailures.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) CommandEnqueued(verb types.CommandVerb) {
	m.commandsEnqueued.WithLabelValues(string(verb)).Inc()
}

func (m *Metrics) CommandClaimed(status types.CommandStatus) {
	m.commandsClaimed.WithLabelValues(string(status)).Inc()
}

func (m *Metrics) CommandsSwept(n int64) {
	m.commandsSwept.Add(float64(n))
}

// ObserveBarrier is a barrier.WithObserver callback.
func (m *Metrics) ObserveBarrier(tr barrier.Transition) {
	m.barrierTransitions.WithLabelValues(string(tr.To), string(tr.Kind)).Inc()
	if tr.To == types.BarrierOpen {
		m.barrierOpen.Set(1)
	} else {
		m.barrierOpen.Set(0)
	}
}

// Instrument wraps next with request count, latency and in-flight metrics.
// route should be the mux pattern, not the raw path, to keep label
// cardinality bounded.
func (m *Metrics) Instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.httpInFlight.Inc()
		defer m.httpInFlight.Dec()

		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		status := strconv.Itoa(sw.code)
		m.httpRequestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
		m.httpRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
