package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MQTTMetrics contains all Prometheus metrics related to the MQTT bridge.
type MQTTMetrics struct {
	ConnectionStatus  prometheus.Gauge
	MessagesPublished prometheus.Counter
	CommandsReceived  *prometheus.CounterVec
	Errors            *prometheus.CounterVec
	LastConnectTime   prometheus.Gauge
	PublishLatency    prometheus.Histogram
}

// NewMQTTMetrics creates a new instance of MQTTMetrics.
// It returns an error if metric registration fails.
func NewMQTTMetrics(registry prometheus.Registerer) (*MQTTMetrics, error) {
	m := &MQTTMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

// initMetrics initializes all metrics for MQTTMetrics.
func (m *MQTTMetrics) initMetrics() {
	m.ConnectionStatus = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "voicechanger_mqtt_connection_status",
		Help: "Current MQTT connection status (1 for connected, 0 for disconnected)",
	})

	m.MessagesPublished = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "voicechanger_mqtt_messages_published_total",
		Help: "Total number of session state messages published",
	})

	m.CommandsReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "voicechanger_mqtt_commands_total",
		Help: "Total number of commands received by outcome",
	}, []string{"command", "status"}) // status: success, error, rejected, rate_limited

	m.Errors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "voicechanger_mqtt_errors_total",
		Help: "Total number of MQTT errors encountered",
	}, []string{"operation"})

	m.LastConnectTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "voicechanger_mqtt_last_connect_time_seconds",
		Help: "Timestamp of the last successful MQTT connection",
	})

	m.PublishLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "voicechanger_mqtt_publish_latency_seconds",
		Help:    "Latency of MQTT publish operations in seconds",
		Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount10),
	})
}

// UpdateConnectionStatus updates the MQTT connection status and last connect time.
func (m *MQTTMetrics) UpdateConnectionStatus(connected bool) {
	if connected {
		m.ConnectionStatus.Set(1)
		m.LastConnectTime.SetToCurrentTime()
	} else {
		m.ConnectionStatus.Set(0)
	}
}

// RecordCommand counts a received command
func (m *MQTTMetrics) RecordCommand(command, status string) {
	m.CommandsReceived.WithLabelValues(command, status).Inc()
}

// RecordError counts an MQTT error for operation
func (m *MQTTMetrics) RecordError(operation string) {
	m.Errors.WithLabelValues(operation).Inc()
}

// StartPublishTimer starts a timer for measuring publish latency.
func (m *MQTTMetrics) StartPublishTimer() *PublishTimer {
	return &PublishTimer{
		startTime: time.Now(),
		metrics:   m,
	}
}

// PublishTimer is a helper struct for measuring publish latency.
type PublishTimer struct {
	startTime time.Time
	metrics   *MQTTMetrics
}

// ObserveDuration stops the timer, records the duration and counts the message.
func (pt *PublishTimer) ObserveDuration() {
	pt.metrics.PublishLatency.Observe(time.Since(pt.startTime).Seconds())
	pt.metrics.MessagesPublished.Inc()
}

// Collect implements the prometheus.Collector interface.
func (m *MQTTMetrics) Collect(ch chan<- prometheus.Metric) {
	ch <- m.ConnectionStatus
	ch <- m.MessagesPublished
	m.CommandsReceived.Collect(ch)
	m.Errors.Collect(ch)
	ch <- m.LastConnectTime
	ch <- m.PublishLatency
}

// Describe implements the prometheus.Collector interface.
func (m *MQTTMetrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.ConnectionStatus.Desc()
	ch <- m.MessagesPublished.Desc()
	m.CommandsReceived.Describe(ch)
	m.Errors.Describe(ch)
	ch <- m.LastConnectTime.Desc()
	ch <- m.PublishLatency.Desc()
}
