package metrics

import "github.com/prometheus/client_golang/prometheus"

// VoiceMetrics tracks the ring buffer between capture and playback
type VoiceMetrics struct {
	overflows    prometheus.Counter
	underruns    prometheus.Counter
	droppedBytes prometheus.Counter
	voicePaths   prometheus.Gauge
}

// NewVoiceMetrics creates and registers voice path metrics
func NewVoiceMetrics(registry prometheus.Registerer) (*VoiceMetrics, error) {
	m := &VoiceMetrics{
		overflows: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "voicechanger_voice_buffer_overflows_total",
			Help: "Capture blocks that did not fit in the playback ring buffer",
		}),
		underruns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "voicechanger_voice_buffer_underruns_total",
			Help: "Playback blocks padded with silence",
		}),
		droppedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "voicechanger_voice_buffer_dropped_bytes_total",
			Help: "Captured audio bytes dropped on overflow",
		}),
		voicePaths: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "voicechanger_voice_paths_active",
			Help: "Number of running voice paths",
		}),
	}
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordOverflow counts a capture block that was partly or fully dropped
func (m *VoiceMetrics) RecordOverflow(droppedBytes int) {
	m.overflows.Inc()
	m.droppedBytes.Add(float64(droppedBytes))
}

// RecordUnderrun counts a playback block padded with silence
func (m *VoiceMetrics) RecordUnderrun() {
	m.underruns.Inc()
}

// SetActive sets the number of running voice paths
func (m *VoiceMetrics) SetActive(n int) {
	m.voicePaths.Set(float64(n))
}

// Describe implements the prometheus.Collector interface.
func (m *VoiceMetrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.overflows.Desc()
	ch <- m.underruns.Desc()
	ch <- m.droppedBytes.Desc()
	ch <- m.voicePaths.Desc()
}

// Collect implements the prometheus.Collector interface.
func (m *VoiceMetrics) Collect(ch chan<- prometheus.Metric) {
	ch <- m.overflows
	ch <- m.underruns
	ch <- m.droppedBytes
	ch <- m.voicePaths
}
