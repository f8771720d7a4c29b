package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/voicechanger/internal/errors"
)

func TestSessionMetrics(t *testing.T) {
	t.Parallel()

	m, err := NewSessionMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.RecordOperation("a", "start", StatusSuccess, 2*time.Millisecond)
	m.RecordOperation("a", "start", StatusNoop, 0)
	m.RecordOperation("a", "stop", StatusError, time.Millisecond)
	m.RecordStall("a", "stop")

	assert.InDelta(t, 1, testutil.ToFloat64(m.operationsTotal.WithLabelValues("a", "start", StatusSuccess)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.operationsTotal.WithLabelValues("a", "start", StatusNoop)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.stalledOperations.WithLabelValues("a", "stop")), 0)
	assert.Equal(t, 2, testutil.CollectAndCount(m.operationDuration), "noop operations are not timed")

	m.SetRunning("a", true)
	m.SetPitch("a", 1.5)
	assert.InDelta(t, 1, testutil.ToFloat64(m.running.WithLabelValues("a")), 0)
	assert.InDelta(t, 1.5, testutil.ToFloat64(m.pitch.WithLabelValues("a")), 1e-6)

	m.SetRunning("a", false)
	assert.InDelta(t, 0, testutil.ToFloat64(m.running.WithLabelValues("a")), 0)
	assert.Equal(t, 0, testutil.CollectAndCount(m.pitch), "pitch is dropped when idle")
}

func TestSessionMetrics_DuplicateRegistration(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	_, err := NewSessionMetrics(registry)
	require.NoError(t, err)
	_, err = NewSessionMetrics(registry)
	assert.Error(t, err)
}

func TestVoiceMetrics(t *testing.T) {
	t.Parallel()

	m, err := NewVoiceMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.RecordOverflow(384)
	m.RecordOverflow(16)
	m.RecordUnderrun()
	m.SetActive(1)

	assert.InDelta(t, 2, testutil.ToFloat64(m.overflows), 0)
	assert.InDelta(t, 400, testutil.ToFloat64(m.droppedBytes), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.underruns), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.voicePaths), 0)
}

func TestMQTTMetrics(t *testing.T) {
	t.Parallel()

	m, err := NewMQTTMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.UpdateConnectionStatus(true)
	assert.InDelta(t, 1, testutil.ToFloat64(m.ConnectionStatus), 0)
	assert.Positive(t, testutil.ToFloat64(m.LastConnectTime))

	m.RecordCommand("start", StatusSuccess)
	m.RecordError("publish")
	m.StartPublishTimer().ObserveDuration()

	assert.InDelta(t, 1, testutil.ToFloat64(m.CommandsReceived.WithLabelValues("start", StatusSuccess)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Errors.WithLabelValues("publish")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.MessagesPublished), 0)

	m.UpdateConnectionStatus(false)
	assert.InDelta(t, 0, testutil.ToFloat64(m.ConnectionStatus), 0)
}

func TestHTTPMetrics(t *testing.T) {
	t.Parallel()

	m, err := NewHTTPMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.RecordRequest("PUT", "/api/v1/session/pitch", 400, time.Millisecond)
	assert.InDelta(t, 1, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("PUT", "/api/v1/session/pitch", "400")), 0)
}

func TestErrorMetricsObserve(t *testing.T) {
	t.Parallel()

	m, err := NewErrorMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.Observe(&errors.EnhancedError{Component: "session", Category: errors.CategoryAudioEngine})
	m.Observe(&errors.EnhancedError{Component: "session", Category: errors.CategoryAudioEngine})

	assert.InDelta(t, 2, testutil.ToFloat64(m.errorsTotal.WithLabelValues("session", string(errors.CategoryAudioEngine))), 0)
}

// TestErrorMetricsHook mutates the global hook list and is not parallel
func TestErrorMetricsHook(t *testing.T) {
	m, err := NewErrorMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.InstallHook()
	t.Cleanup(errors.ClearErrorHooks)

	_ = errors.Newf("device vanished").
		Component("engine").
		Category(errors.CategoryAudioDevice).
		Build()

	assert.InDelta(t, 1, testutil.ToFloat64(m.errorsTotal.WithLabelValues("engine", string(errors.CategoryAudioDevice))), 0)
}
