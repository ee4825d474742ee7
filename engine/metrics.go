package engine

import (
	"time"

	"github.com/micromdm/nanoheal/workflow"

	"github.com/prometheus/client_golang/prometheus"
)

var stageDurationBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}

// Metrics holds the Prometheus instruments of the engine.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	RunsTriggeredTotal *prometheus.CounterVec
	RunsFinishedTotal  *prometheus.CounterVec
	RunsActive         prometheus.Gauge
	StageDuration      *prometheus.HistogramVec
	RetriesTotal       *prometheus.CounterVec
}

// InitMetrics creates and registers the engine metric instruments with reg.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RunsTriggeredTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nanoheal_runs_triggered_total",
			Help: "Total number of triggered remediation runs.",
		}, []string{"workflow_type"}),
		RunsFinishedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nanoheal_runs_finished_total",
			Help: "Total number of remediation runs that reached a terminal status.",
		}, []string{"workflow_type", "status"}),
		RunsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nanoheal_runs_active",
			Help: "Number of remediation runs currently executing.",
		}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nanoheal_stage_duration_seconds",
			Help:    "Decision stage duration in seconds.",
			Buckets: stageDurationBuckets,
		}, []string{"stage"}),
		RetriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nanoheal_retries_total",
			Help: "Total number of remediation retry cycles after a failed verification.",
		}, []string{"workflow_type"}),
	}

	reg.MustRegister(
		m.RunsTriggeredTotal,
		m.RunsFinishedTotal,
		m.RunsActive,
		m.StageDuration,
		m.RetriesTotal,
	)

	// zero-valued series for every workflow type
	for _, t := range workflow.Types() {
		m.RunsTriggeredTotal.WithLabelValues(string(t))
		m.RetriesTotal.WithLabelValues(string(t))
	}

	return m
}

func (m *Metrics) triggered(t workflow.Type) {
	if m == nil {
		return
	}
	m.RunsTriggeredTotal.WithLabelValues(string(t)).Inc()
}

func (m *Metrics) start() {
	if m == nil {
		return
	}
	m.RunsActive.Inc()
}

func (m *Metrics) finish(t workflow.Type, status workflow.Status) {
	if m == nil {
		return
	}
	m.RunsActive.Dec()
	m.RunsFinishedTotal.WithLabelValues(string(t), string(status)).Inc()
}

func (m *Metrics) observeStage(name string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(name).Observe(d.Seconds())
}

func (m *Metrics) retry(t workflow.Type) {
	if m == nil {
		return
	}
	m.RetriesTotal.WithLabelValues(string(t)).Inc()
}
