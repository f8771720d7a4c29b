package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SessionMetrics records audio session manager activity
type SessionMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	stalledOperations *prometheus.CounterVec
	running           *prometheus.GaugeVec
	pitch             *prometheus.GaugeVec
	pitchChanges      prometheus.Histogram
}

// NewSessionMetrics creates and registers session metrics
func NewSessionMetrics(registry prometheus.Registerer) (*SessionMetrics, error) {
	m := &SessionMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *SessionMetrics) initMetrics() {
	m.operationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicechanger_session_operations_total",
			Help: "Total number of session operations by outcome",
		},
		[]string{"manager_id", "operation", "status"}, // status: success, error, noop
	)

	m.operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "voicechanger_session_operation_duration_seconds",
			Help:    "Time spent in engine operations, including queueing behind earlier ones",
			Buckets: prometheus.ExponentialBuckets(BucketStart100us, BucketFactor2, BucketCount12),
		},
		[]string{"operation"},
	)

	m.stalledOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicechanger_session_stalled_operations_total",
			Help: "Engine operations that exceeded the configured operation timeout",
		},
		[]string{"manager_id", "operation"},
	)

	m.running = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "voicechanger_session_running",
			Help: "Whether the session holds a live engine handle (1) or not (0)",
		},
		[]string{"manager_id"},
	)

	m.pitch = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "voicechanger_session_pitch_factor",
			Help: "Current pitch factor of a running session",
		},
		[]string{"manager_id"},
	)

	m.pitchChanges = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "voicechanger_session_pitch_factor_changes",
		Help:    "Distribution of pitch factors applied to running sessions",
		Buckets: prometheus.LinearBuckets(BucketPitchLinearStart, BucketPitchLinearWidth, BucketPitchLinearCount),
	})
}

// RecordOperation counts one completed operation and observes its duration
func (m *SessionMetrics) RecordOperation(managerID, operation, result string, duration time.Duration) {
	m.operationsTotal.WithLabelValues(managerID, operation, result).Inc()
	if result != StatusNoop {
		m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	}
}

// RecordStall counts an operation that outlived the watchdog timeout
func (m *SessionMetrics) RecordStall(managerID, operation string) {
	m.stalledOperations.WithLabelValues(managerID, operation).Inc()
}

// SetRunning updates the running gauge
func (m *SessionMetrics) SetRunning(managerID string, running bool) {
	if running {
		m.running.WithLabelValues(managerID).Set(1)
		return
	}
	m.running.WithLabelValues(managerID).Set(0)
	m.pitch.DeleteLabelValues(managerID)
}

// SetPitch updates the pitch gauge
func (m *SessionMetrics) SetPitch(managerID string, pitch float32) {
	m.pitch.WithLabelValues(managerID).Set(float64(pitch))
	m.pitchChanges.Observe(float64(pitch))
}

// Describe implements the prometheus.Collector interface.
func (m *SessionMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.operationsTotal.Describe(ch)
	m.operationDuration.Describe(ch)
	m.stalledOperations.Describe(ch)
	m.running.Describe(ch)
	m.pitch.Describe(ch)
	m.pitchChanges.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *SessionMetrics) Collect(ch chan<- prometheus.Metric) {
	m.operationsTotal.Collect(ch)
	m.operationDuration.Collect(ch)
	m.stalledOperations.Collect(ch)
	m.running.Collect(ch)
	m.pitch.Collect(ch)
	m.pitchChanges.Collect(ch)
}
