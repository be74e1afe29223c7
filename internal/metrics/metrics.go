package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	lifecycleOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "interpctl",
			Subsystem: "lifecycle",
			Name:      "operations_total",
			Help:      "Lifecycle operations by kind and result.",
		}, []string{"op", "group", "result"},
	)
	lifecycleDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "interpctl",
			Subsystem: "lifecycle",
			Name:      "duration_seconds",
			Help:      "Wall time spent in a lifecycle operation, including lock and poll waits.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"op", "group"},
	)
	lifecycleTimeouts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "interpctl",
			Subsystem: "lifecycle",
			Name:      "timeouts_total",
			Help:      "Lifecycle operations that gave up waiting.",
		}, []string{"op", "group"},
	)
	probes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "interpctl",
			Subsystem: "probe",
			Name:      "results_total",
			Help:      "Liveness probe outcomes per marker file or run directory.",
		}, []string{"result"},
	)
	runningProcesses = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "interpctl",
			Subsystem: "interpreter",
			Name:      "running_processes",
			Help:      "Interpreter processes currently launched by this daemon per group.",
		}, []string{"group"},
	)
)

// Probe results.
const (
	ProbeAlive          = "alive"
	ProbeDead           = "dead"
	ProbeNoPID          = "no_pid"
	ProbeFailed         = "probe_failed"
	ProbeDirUnavailable = "dir_unavailable"
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{lifecycleOps, lifecycleDuration, lifecycleTimeouts, probes, runningProcesses}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// HandlerFor serves metrics from a specific gatherer.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func ObserveOperation(op, group, result string, seconds float64) {
	if regOK.Load() {
		lifecycleOps.WithLabelValues(op, group, result).Inc()
		lifecycleDuration.WithLabelValues(op, group).Observe(seconds)
	}
}

func IncTimeout(op, group string) {
	if regOK.Load() {
		lifecycleTimeouts.WithLabelValues(op, group).Inc()
	}
}

func IncProbe(result string) {
	if regOK.Load() {
		probes.WithLabelValues(result).Inc()
	}
}

func AddRunningProcesses(group string, delta int) {
	if regOK.Load() {
		runningProcesses.WithLabelValues(group).Add(float64(delta))
	}
}
