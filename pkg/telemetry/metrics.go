package telemetry

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Metrics provides Prometheus metrics for a mio run. A nil *Metrics or one
// built from a disabled config records nothing.
type Metrics struct {
	config MetricsConfig

	// Engine metrics
	phaseGroups   *prometheus.CounterVec
	phaseErrors   *prometheus.CounterVec
	phaseDuration *prometheus.HistogramVec

	// IP metrics
	ipsDiscovered    *prometheus.CounterVec
	resolutionRounds prometheus.Counter
	remoteInstalls   *prometheus.CounterVec

	// Scheduler metrics
	jobsDispatched *prometheus.CounterVec
	jobDuration    *prometheus.HistogramVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	m := &Metrics{
		config:   cfg,
		registry: prometheus.NewRegistry(),

		phaseGroups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "phase_groups_total",
				Help:      "Total number of phase groups executed",
			},
			[]string{"group"},
		),
		phaseErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "phase_errors_total",
				Help:      "Total number of phases that finished with an error",
			},
			[]string{"phase"},
		),
		phaseDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "phase_group_duration_seconds",
				Help:      "Duration of phase groups in seconds",
				Buckets:   buckets,
			},
			[]string{"group"},
		),
		ipsDiscovered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ips_discovered_total",
				Help:      "Total number of IPs discovered on disk",
			},
			[]string{"location"},
		),
		resolutionRounds: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resolution_rounds_total",
				Help:      "Total number of dependency resolution rounds",
			},
		),
		remoteInstalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "remote_installs_total",
				Help:      "Total number of IPs fetched from the marketplace",
			},
			[]string{"status"},
		),
		jobsDispatched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobs_dispatched_total",
				Help:      "Total number of jobs dispatched to a scheduler",
			},
			[]string{"scheduler", "status"},
		),
		jobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "job_duration_seconds",
				Help:      "Duration of scheduler jobs in seconds",
				Buckets:   buckets,
			},
			[]string{"scheduler"},
		),
	}

	collectors := []prometheus.Collector{
		m.phaseGroups,
		m.phaseErrors,
		m.phaseDuration,
		m.ipsDiscovered,
		m.resolutionRounds,
		m.remoteInstalls,
		m.jobsDispatched,
		m.jobDuration,
	}
	for _, c := range collectors {
		if err := m.registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metric: %w", err)
		}
	}

	return m, nil
}

func (m *Metrics) enabled() bool {
	return m != nil && m.registry != nil
}

// RecordPhaseGroup records a completed phase group.
func (m *Metrics) RecordPhaseGroup(group string, duration time.Duration) {
	if !m.enabled() {
		return
	}
	m.phaseGroups.WithLabelValues(group).Inc()
	m.phaseDuration.WithLabelValues(group).Observe(duration.Seconds())
}

// RecordPhaseError records a phase that finished with an error.
func (m *Metrics) RecordPhaseError(phase string) {
	if !m.enabled() {
		return
	}
	m.phaseErrors.WithLabelValues(phase).Inc()
}

// RecordIPsDiscovered adds n to the discovered IPs of a location (local, global, installed).
func (m *Metrics) RecordIPsDiscovered(location string, n int) {
	if !m.enabled() {
		return
	}
	m.ipsDiscovered.WithLabelValues(location).Add(float64(n))
}

// RecordResolutionRound records one pass of the dependency resolver.
func (m *Metrics) RecordResolutionRound() {
	if !m.enabled() {
		return
	}
	m.resolutionRounds.Inc()
}

// RecordRemoteInstall records one marketplace fetch.
func (m *Metrics) RecordRemoteInstall(status string) {
	if !m.enabled() {
		return
	}
	m.remoteInstalls.WithLabelValues(status).Inc()
}

// RecordJob records one scheduler job.
func (m *Metrics) RecordJob(scheduler, status string, duration time.Duration) {
	if !m.enabled() {
		return
	}
	m.jobsDispatched.WithLabelValues(scheduler, status).Inc()
	m.jobDuration.WithLabelValues(scheduler).Observe(duration.Seconds())
}

// Registry returns the underlying registry, nil when disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// CounterValue returns the current value of a counter series, mostly for tests.
func (m *Metrics) CounterValue(name string, labels ...string) float64 {
	if !m.enabled() {
		return 0
	}
	var c prometheus.Counter
	var err error
	switch name {
	case "phase_groups_total":
		c, err = m.phaseGroups.GetMetricWithLabelValues(labels...)
	case "phase_errors_total":
		c, err = m.phaseErrors.GetMetricWithLabelValues(labels...)
	case "ips_discovered_total":
		c, err = m.ipsDiscovered.GetMetricWithLabelValues(labels...)
	case "resolution_rounds_total":
		c = m.resolutionRounds
	case "remote_installs_total":
		c, err = m.remoteInstalls.GetMetricWithLabelValues(labels...)
	case "jobs_dispatched_total":
		c, err = m.jobsDispatched.GetMetricWithLabelValues(labels...)
	default:
		return 0
	}
	if err != nil {
		return 0
	}
	var out dto.Metric
	if err := c.Write(&out); err != nil {
		return 0
	}
	return out.GetCounter().GetValue()
}

// WriteTextfile writes all metrics to path in the Prometheus text format.
func (m *Metrics) WriteTextfile(path string) error {
	if !m.enabled() || path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
