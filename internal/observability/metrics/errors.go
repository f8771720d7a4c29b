package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tphakala/voicechanger/internal/errors"
)

// ErrorMetrics counts enhanced errors as they are built
type ErrorMetrics struct {
	errorsTotal *prometheus.CounterVec
}

// NewErrorMetrics creates and registers error metrics
func NewErrorMetrics(registry prometheus.Registerer) (*ErrorMetrics, error) {
	m := &ErrorMetrics{
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voicechanger_errors_total",
			Help: "Total number of errors by component and category",
		}, []string{"component", "category"}),
	}
	if err := registry.Register(m.errorsTotal); err != nil {
		return nil, err
	}
	return m, nil
}

// Observe counts ee; it has the errors.ErrorHook signature
func (m *ErrorMetrics) Observe(ee *errors.EnhancedError) {
	m.errorsTotal.WithLabelValues(ee.Component, string(ee.Category)).Inc()
}

// InstallHook registers Observe as a global error hook
func (m *ErrorMetrics) InstallHook() {
	errors.AddErrorHook(m.Observe)
}
