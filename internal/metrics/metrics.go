// Package metrics exposes saga and reconciler counters in the Prometheus
// text format.
package metrics

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	initOnce sync.Once
	registry *prometheus.Registry

	sagaStepTotal    *prometheus.CounterVec
	sagaStepDuration *prometheus.HistogramVec
	sagaTotal        *prometheus.CounterVec
	reconcileRuns    *prometheus.CounterVec
	pendingSagas     prometheus.Gauge
	lockWait         prometheus.Histogram
	eventsPublished  *prometheus.CounterVec
)

func ensureInit() {
	initOnce.Do(func() {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)

		sagaStepTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "maintenance_saga_step_total",
			Help: "Saga step executions by kind, step and outcome.",
		}, []string{"kind", "step", "outcome"})
		sagaStepDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "maintenance_saga_step_duration_seconds",
			Help:    "Saga step latency including retries.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind", "step"})
		sagaTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "maintenance_saga_total",
			Help: "Sagas reaching a state, by kind.",
		}, []string{"kind", "state"})
		reconcileRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "maintenance_saga_reconcile_total",
			Help: "Sagas examined by the reconciler, by result.",
		}, []string{"result"})
		pendingSagas = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "maintenance_saga_pending",
			Help: "PENDING sagas seen by the last reconciler pass.",
		})
		lockWait = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "drone_lock_wait_seconds",
			Help:    "Time spent waiting for the per-drone lock.",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		})
		eventsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "maintenance_events_published_total",
			Help: "Maintenance events handed to the broker, by outcome.",
		}, []string{"outcome"})

		registry.MustRegister(sagaStepTotal, sagaStepDuration, sagaTotal, reconcileRuns, pendingSagas, lockWait, eventsPublished)
	})
}

func label(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return "unknown"
	}
	return s
}

// RecordSagaStep counts one step execution.
func RecordSagaStep(kind, step string, err error, d time.Duration) {
	ensureInit()
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	sagaStepTotal.WithLabelValues(label(kind), step, outcome).Inc()
	sagaStepDuration.WithLabelValues(label(kind), step).Observe(d.Seconds())
}

// RecordSaga counts a saga reaching state.
func RecordSaga(kind, state string) {
	ensureInit()
	sagaTotal.WithLabelValues(label(kind), label(state)).Inc()
}

// RecordReconcile counts a saga examined by the reconciler.
func RecordReconcile(result string) {
	ensureInit()
	reconcileRuns.WithLabelValues(label(result)).Inc()
}

// SetPendingSagas records the backlog size seen by a reconciler pass.
func SetPendingSagas(n int) {
	ensureInit()
	pendingSagas.Set(float64(n))
}

// RecordLockWait observes the time spent acquiring a drone lock.
func RecordLockWait(d time.Duration) {
	ensureInit()
	lockWait.Observe(d.Seconds())
}

// RecordEventPublished counts a publish attempt.
func RecordEventPublished(err error) {
	ensureInit()
	if err != nil {
		eventsPublished.WithLabelValues("error").Inc()
		return
	}
	eventsPublished.WithLabelValues("ok").Inc()
}

// Handler serves the registry.
func Handler() http.Handler {
	ensureInit()
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
