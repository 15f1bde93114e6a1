// Package ops exposes the control plane's health and metrics surface
// (spec.md §4.1, §7): Prometheus counters/gauges/histograms over task
// lifecycle events plus the Registry's windowed ops/telemetry summaries.
package ops

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zhc_tasks_total",
			Help: "Total number of tasks reaching a terminal or near-terminal status, by status",
		},
		[]string{"status"},
	)

	PolicyBlocksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zhc_policy_blocks_total",
			Help: "Total number of policy-evaluator blocks, by reason",
		},
		[]string{"reason"},
	)

	ApprovalLatencySeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "zhc_approval_latency_seconds",
			Help:    "Time between an approval request and its decision",
			Buckets: []float64{1, 5, 15, 30, 60, 300, 900, 1800, 3600, 14400},
		},
	)

	// GatePassRate is registered but not set anywhere in this module, so
	// it always reports 0.
	GatePassRate = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "zhc_gate_pass_rate",
			Help: "Fraction of artifact gate evaluations that passed, over the most recent window",
		},
	)

	DispatchDurationMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "zhc_dispatch_duration_ms",
			Help:    "Worker invocation duration in milliseconds",
			Buckets: []float64{100, 500, 1000, 5000, 15000, 30000, 60000, 180000, 600000},
		},
	)

	IdempotencyConflictsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "zhc_idempotency_conflicts_total",
			Help: "Total number of begin_idempotency calls that returned a conflict",
		},
	)

	// IncidentRecoveryRate is registered but not set anywhere in this
	// module, so it always reports 0.
	IncidentRecoveryRate = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "zhc_incident_recovery_rate",
			Help: "Fraction of poll_error episodes followed by poll_recovered, over the most recent window",
		},
	)
)

func init() {
	prometheus.MustRegister(
		TasksTotal,
		PolicyBlocksTotal,
		ApprovalLatencySeconds,
		GatePassRate,
		DispatchDurationMs,
		IdempotencyConflictsTotal,
		IncidentRecoveryRate,
	)
}

// Handler returns the Prometheus scrape endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer times an operation for later histogram observation.
type Timer struct {
	start time.Time
}

func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

func (t *Timer) ElapsedMs() float64 {
	return float64(time.Since(t.start).Microseconds()) / 1000.0
}

// RecordTaskStatus increments the tasks_total counter for status.
func RecordTaskStatus(status string) {
	TasksTotal.WithLabelValues(status).Inc()
}

// RecordPolicyBlock increments the policy_blocks_total counter for reason.
func RecordPolicyBlock(reason string) {
	PolicyBlocksTotal.WithLabelValues(reason).Inc()
}

// RecordApprovalLatency observes an approval's request-to-decision latency.
func RecordApprovalLatency(d time.Duration) {
	ApprovalLatencySeconds.Observe(d.Seconds())
}

// RecordDispatchDuration observes a worker invocation's wall-clock duration.
func RecordDispatchDuration(ms float64) {
	DispatchDurationMs.Observe(ms)
}

// RecordIdempotencyConflict increments the idempotency conflict counter.
func RecordIdempotencyConflict() {
	IdempotencyConflictsTotal.Inc()
}
