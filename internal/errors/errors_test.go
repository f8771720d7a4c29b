package errors

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockReporter records reported errors
type mockReporter struct {
	enabled bool

	mu       sync.Mutex
	reported []*EnhancedError
}

func (m *mockReporter) IsEnabled() bool {
	return m.enabled
}

func (m *mockReporter) ReportError(err *EnhancedError) {
	_ = scrubMessageForPrivacy(err.Error())
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reported = append(m.reported, err)
	err.MarkReported()
}

func (m *mockReporter) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.reported)
}

// Tests that touch the global reporter or hooks must not run in parallel.

func TestFastPathNoTelemetry(t *testing.T) {
	SetTelemetryReporter(nil)
	ClearErrorHooks()

	ee := New(fmt.Errorf("test error")).Build()

	assert.Equal(t, "test error", ee.Error())
	assert.Equal(t, ComponentUnknown, ee.Component)
	assert.Equal(t, CategoryGeneric, ee.Category)
	assert.False(t, ee.IsReported())
	assert.WithinDuration(t, time.Now(), ee.Timestamp, time.Second)
}

func TestBuilderSetsFields(t *testing.T) {
	t.Parallel()

	base := NewStd("stop returned 0")
	ee := New(base).
		Component("session").
		Category(CategoryAudioEngine).
		Priority(PriorityHigh).
		Context("handle", uint64(7)).
		Timing("stop", 1500*time.Millisecond).
		Build()

	assert.Equal(t, "session", ee.Component)
	assert.Equal(t, CategoryAudioEngine, ee.Category)
	assert.Equal(t, PriorityHigh, ee.Priority)

	ctx := ee.GetContext()
	assert.Equal(t, uint64(7), ctx["handle"])
	assert.Equal(t, "stop", ctx["operation"])
	assert.Equal(t, int64(1500), ctx["duration_ms"])

	// GetContext returns a copy
	ctx["handle"] = uint64(8)
	assert.Equal(t, uint64(7), ee.Context["handle"])
}

func TestPriorityFallsBackToMedium(t *testing.T) {
	t.Parallel()

	ee := New(NewStd("x")).Priority("urgent").Build()
	assert.Equal(t, PriorityMedium, ee.Priority)

	ee = New(NewStd("x")).Priority("").Build()
	assert.Empty(t, ee.Priority)
}

func TestIsAndAsThroughWrapper(t *testing.T) {
	t.Parallel()

	sentinel := NewStd("engine failure")
	ee := New(fmt.Errorf("init: %w", sentinel)).
		Component("session").
		Category(CategoryAudioEngine).
		Build()

	wrapped := fmt.Errorf("controller: %w", ee)

	assert.True(t, Is(wrapped, sentinel))
	assert.True(t, IsCategory(wrapped, CategoryAudioEngine))
	assert.False(t, IsCategory(wrapped, CategoryValidation))

	var target *EnhancedError
	require.True(t, As(wrapped, &target))
	assert.Equal(t, "session", target.Component)
	assert.Equal(t, sentinel, Unwrap(Unwrap(target)))

	// Enhanced errors compare by category
	other := New(NewStd("different")).Category(CategoryAudioEngine).Build()
	assert.True(t, Is(ee, other))
	assert.False(t, Is(ee, ValidationError("bad")))
}

type categorized struct{}

func (categorized) Error() string                { return "categorized" }
func (categorized) ErrorCategory() ErrorCategory { return CategoryTimeout }

func TestCategoryDetectedFromWrappedError(t *testing.T) {
	t.Parallel()

	ee := New(fmt.Errorf("op: %w", categorized{})).Build()
	assert.Equal(t, CategoryTimeout, ee.Category)
}

func TestNilErrorMessage(t *testing.T) {
	t.Parallel()

	ee := New(nil).Category(CategoryState).Build()
	assert.Equal(t, "state", ee.Error())

	ee = New(nil).Context("error", "custom message").Build()
	assert.Equal(t, "custom message", ee.Error())
}

func TestJoin(t *testing.T) {
	t.Parallel()

	a, b := NewStd("a"), NewStd("b")
	joined := Join(a, b)
	assert.True(t, Is(joined, a))
	assert.True(t, Is(joined, b))
}

func TestErrorHooksAndReporter(t *testing.T) {
	SetTelemetryReporter(nil)
	ClearErrorHooks()
	t.Cleanup(func() {
		SetTelemetryReporter(nil)
		ClearErrorHooks()
	})

	var seen []ErrorCategory
	AddErrorHook(func(ee *EnhancedError) {
		seen = append(seen, ee.Category)
	})
	AddErrorHook(nil)

	_ = New(NewStd("one")).Category(CategoryAudioEngine).Build()
	_ = New(NewStd("two")).Category(CategoryTimeout).Build()
	assert.Equal(t, []ErrorCategory{CategoryAudioEngine, CategoryTimeout}, seen)

	reporter := &mockReporter{enabled: true}
	SetTelemetryReporter(reporter)
	ee := New(NewStd("three")).Build()
	assert.Equal(t, 1, reporter.count())
	assert.True(t, ee.IsReported())

	// A disabled reporter receives nothing
	ClearErrorHooks()
	disabled := &mockReporter{enabled: false}
	SetTelemetryReporter(disabled)
	_ = New(NewStd("four")).Build()
	assert.Equal(t, 0, disabled.count())
	assert.False(t, hasActiveReporting.Load())
}

func TestGenerateErrorTitle(t *testing.T) {
	t.Parallel()

	ee := New(NewStd("x")).
		Component("session").
		Category(CategoryAudioEngine).
		Context("operation", "engine_stop").
		Build()
	assert.Equal(t, "Session Audio Engine Error Engine Stop", generateErrorTitle(ee))
}

func TestBasicURLScrub(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected string
		absent   []string
	}{
		{
			name:     "url query",
			input:    "Error at https://api.example.com?api_key=secret123&token=abc",
			expected: "Error at https://api.example.com?[REDACTED]",
		},
		{
			name:   "api key outside url",
			input:  "Config error: api_key=secret123 is invalid",
			absent: []string{"secret123"},
		},
		{
			name:   "tokens",
			input:  "Auth failed with token=abc123 and auth=xyz789",
			absent: []string{"abc123", "xyz789"},
		},
		{
			name:   "mqtt password",
			input:  "connect failed password=hunter2",
			absent: []string{"hunter2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := basicURLScrub(tt.input)
			if tt.expected != "" {
				assert.Equal(t, tt.expected, got)
			}
			for _, s := range tt.absent {
				assert.NotContains(t, got, s)
			}
		})
	}
}
