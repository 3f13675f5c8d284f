// Package metrics provides Prometheus metrics for the anti-cheat pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Manager manages all Prometheus metrics for the pipeline.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	registry         prometheus.Registerer

	// Verification outcomes
	sessionsVerified *prometheus.CounterVec
	fraudScore       prometheus.Histogram
	verifyLatency    prometheus.Histogram
	auditListSize    prometheus.Gauge

	// Detection
	suspiciousActivities     *prometheus.CounterVec
	inputsValidated          prometheus.Counter
	inputsRejected           *prometheus.CounterVec
	reconstructionViolations *prometheus.CounterVec
	crossSessionFlags        *prometheus.CounterVec

	// Submission intake
	submissionsDuplicate prometheus.Counter
	queueSize            prometheus.Gauge
	queueCapacity        prometheus.Gauge
	queueUtilization     prometheus.Gauge

	// Workers and stores
	workerActive      prometheus.Gauge
	workerLatency     prometheus.Histogram
	workerErrors      prometheus.Counter
	profilesTracked   prometheus.Gauge
	sessionsRetained  prometheus.Gauge
	fingerprintsTaken prometheus.Counter
}

// Global metrics manager instance backed by a dedicated registry so that
// embedders do not inherit the default Go collectors.
var globalManager *Manager             //nolint:gochecknoglobals // singleton metrics manager
var registry = prometheus.NewRegistry() //nolint:gochecknoglobals // singleton metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithRegistry(registry))
}

// NewManager creates a metrics manager with the given options applied.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "arcadeguard",
		subsystem:        "pipeline",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	factory := promauto.With(m.registry)

	m.sessionsVerified = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "sessions_verified_total",
		Help: "Verified sessions by verdict outcome.",
	}, []string{"outcome"})

	m.fraudScore = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name:    "fraud_score",
		Help:    "Fraud score distribution across verdicts.",
		Buckets: []float64{0, 0.1, 0.2, 0.3, 0.5, 0.7, 1.0, 1.5, 2.0, 3.0},
	})

	m.verifyLatency = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name:    "verification_latency_ms",
		Help:    "Latency of a full verification pass in milliseconds.",
		Buckets: m.histogramBuckets,
	})

	m.auditListSize = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "audit_list_size",
		Help: "Sessions currently queued for manual review.",
	})

	m.suspiciousActivities = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "suspicious_activities_total",
		Help: "Suspicious activities recorded, by category.",
	}, []string{"category"})

	m.inputsValidated = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "inputs_validated_total",
		Help: "Input actions accepted by the input validator.",
	})

	m.inputsRejected = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "inputs_rejected_total",
		Help: "Input actions rejected, by reason.",
	}, []string{"reason"})

	m.reconstructionViolations = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "reconstruction_violations_total",
		Help: "Reconstruction violations found server-side, by category.",
	}, []string{"category"})

	m.crossSessionFlags = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "cross_session_flags_total",
		Help: "Cross-session anomalies flagged, by category.",
	}, []string{"category"})

	m.submissionsDuplicate = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "submissions_duplicate_total",
		Help: "Session submissions skipped as duplicates.",
	})

	m.queueSize = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "queue_size",
		Help: "Submissions currently queued for verification.",
	})

	m.queueCapacity = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "queue_capacity",
		Help: "Configured capacity of the submission queue.",
	})

	m.queueUtilization = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "queue_utilization",
		Help: "Submission queue utilization ratio.",
	})

	m.workerActive = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "worker_active_count",
		Help: "Verification workers currently running.",
	})

	m.workerLatency = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name:    "worker_processing_latency_ms",
		Help:    "End-to-end worker processing latency in milliseconds.",
		Buckets: m.histogramBuckets,
	})

	m.workerErrors = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "worker_errors_total",
		Help: "Worker processing errors.",
	})

	m.profilesTracked = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "profiles_tracked",
		Help: "Player profiles held by the profile store.",
	})

	m.sessionsRetained = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "sessions_retained",
		Help: "Historical sessions retained across all player ring buffers.",
	})

	m.fingerprintsTaken = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "fingerprints_taken_total",
		Help: "Periodic state fingerprints computed client-side.",
	})
}

// Handler returns an http.Handler serving the pipeline registry, for
// embedders that expose a metrics endpoint.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// Package-level helpers recording against the global manager.

// RecordSessionVerified records a completed verification with its outcome.
func RecordSessionVerified(valid bool) {
	outcome := "valid"
	if !valid {
		outcome = "invalid"
	}
	globalManager.sessionsVerified.WithLabelValues(outcome).Inc()
}

// ObserveFraudScore records the fraud score of a verdict.
func ObserveFraudScore(score float64) {
	globalManager.fraudScore.Observe(score)
}

// ObserveVerificationLatency records one verification pass duration.
func ObserveVerificationLatency(ms float64) {
	globalManager.verifyLatency.Observe(ms)
}

// UpdateAuditListSize sets the current audit list length.
func UpdateAuditListSize(n int) {
	globalManager.auditListSize.Set(float64(n))
}

// RecordSuspiciousActivity counts one suspicious activity by category.
func RecordSuspiciousActivity(category string) {
	globalManager.suspiciousActivities.WithLabelValues(category).Inc()
}

// RecordInputValidated counts one accepted input action.
func RecordInputValidated() {
	globalManager.inputsValidated.Inc()
}

// RecordInputRejected counts one rejected input action by reason.
func RecordInputRejected(reason string) {
	globalManager.inputsRejected.WithLabelValues(reason).Inc()
}

// RecordReconstructionViolation counts one reconstruction violation.
func RecordReconstructionViolation(category string) {
	globalManager.reconstructionViolations.WithLabelValues(category).Inc()
}

// RecordCrossSessionFlag counts one cross-session anomaly by category.
func RecordCrossSessionFlag(category string) {
	globalManager.crossSessionFlags.WithLabelValues(category).Inc()
}

// RecordDuplicateSubmission counts a submission skipped as a duplicate.
func RecordDuplicateSubmission() {
	globalManager.submissionsDuplicate.Inc()
}

// UpdateQueueSize sets the current submission queue length.
func UpdateQueueSize(n int) {
	globalManager.queueSize.Set(float64(n))
}

// UpdateQueueCapacity sets the configured queue capacity.
func UpdateQueueCapacity(n int) {
	globalManager.queueCapacity.Set(float64(n))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(ratio float64) {
	globalManager.queueUtilization.Set(ratio)
}

// UpdateWorkerActiveCount sets the number of running workers.
func UpdateWorkerActiveCount(n int) {
	globalManager.workerActive.Set(float64(n))
}

// RecordWorkerProcessingLatency records one worker pass duration.
func RecordWorkerProcessingLatency(ms float64) {
	globalManager.workerLatency.Observe(ms)
}

// RecordWorkerError counts one worker processing error.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// UpdateProfilesTracked sets the number of player profiles in the store.
func UpdateProfilesTracked(n int) {
	globalManager.profilesTracked.Set(float64(n))
}

// UpdateSessionsRetained sets the total retained session history count.
func UpdateSessionsRetained(n int) {
	globalManager.sessionsRetained.Set(float64(n))
}

// RecordFingerprintTaken counts one periodic state fingerprint.
func RecordFingerprintTaken() {
	globalManager.fingerprintsTaken.Inc()
}
