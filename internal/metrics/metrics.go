// Package metrics bundles the Prometheus collectors of a comparison run.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Metrics bundles Prometheus collectors for dealerdiff. All helpers are safe
// to call on a nil *Metrics.
type Metrics struct {
	Registry           *prometheus.Registry
	ExtractionsTotal   *prometheus.CounterVec
	MismatchesTotal    *prometheus.CounterVec
	SessionRecreations prometheus.Counter
	RunDuration        prometheus.Histogram
	RunsTotal          *prometheus.CounterVec
	LastSuccessfulRun  prometheus.Gauge
}

// New constructs and registers all metrics on a dedicated registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	extractions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dealerdiff_extractions_total",
			Help: "Total number of extractions by source and outcome.",
		},
		[]string{"source", "outcome"},
	)
	mismatches := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dealerdiff_mismatches_total",
			Help: "Total number of mismatching rows by section kind.",
		},
		[]string{"kind"},
	)
	recreations := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dealerdiff_session_recreations_total",
			Help: "Total number of browser sessions replaced after they died.",
		},
	)
	runDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dealerdiff_run_duration_seconds",
			Help:    "Duration of complete comparison runs.",
			Buckets: []float64{30, 60, 120, 300, 600, 1200, 2400},
		},
	)
	runs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dealerdiff_runs_total",
			Help: "Total number of comparison runs by status.",
		},
		[]string{"status"},
	)
	lastSuccess := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dealerdiff_last_successful_run_timestamp_seconds",
			Help: "Unix time of the last run that produced a report.",
		},
	)

	registry.MustRegister(extractions, mismatches, recreations, runDuration, runs, lastSuccess)

	return &Metrics{
		Registry:           registry,
		ExtractionsTotal:   extractions,
		MismatchesTotal:    mismatches,
		SessionRecreations: recreations,
		RunDuration:        runDuration,
		RunsTotal:          runs,
		LastSuccessfulRun:  lastSuccess,
	}
}

// IncExtraction counts one extraction of source.
func (m *Metrics) IncExtraction(source string, ok bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	m.ExtractionsTotal.WithLabelValues(source, outcome).Inc()
}

// AddMismatches adds n mismatching rows of kind.
func (m *Metrics) AddMismatches(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.MismatchesTotal.WithLabelValues(kind).Add(float64(n))
}

// IncRecreation counts a replaced browser session.
func (m *Metrics) IncRecreation() {
	if m == nil {
		return
	}
	m.SessionRecreations.Inc()
}

// ObserveRun records a finished run. Successful runs also update the last
// success timestamp.
func (m *Metrics) ObserveRun(start time.Time, err error) {
	if m == nil {
		return
	}
	m.RunDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		m.RunsTotal.WithLabelValues("failed").Inc()
		return
	}
	m.RunsTotal.WithLabelValues("ok").Inc()
	m.LastSuccessfulRun.SetToCurrentTime()
}

// Push sends all metrics to the Pushgateway at url.
func (m *Metrics) Push(ctx context.Context, url, job string) error {
	if m == nil || url == "" {
		return nil
	}
	if err := push.New(url, job).Gatherer(m.Registry).PushContext(ctx); err != nil {
		return fmt.Errorf("error while pushing metrics to %s: %w", url, err)
	}
	return nil
}
