package session

import (
	"fmt"

	"github.com/tphakala/voicechanger/internal/engine"
	"github.com/tphakala/voicechanger/internal/errors"
)

// Sentinel errors returned by Manager operations
var (
	// ErrEngineInit is matched by errors returned when the engine fails to initialize
	ErrEngineInit = errors.NewStd("audio engine failed to initialize")
	// ErrEngineStop is matched by errors returned when the engine fails to stop
	ErrEngineStop = errors.NewStd("audio engine failed to stop")
	// ErrClosed is returned by operations on a closed manager
	ErrClosed = errors.NewStd("session manager is closed")
)

// EngineInitError reports an engine init call that returned no handle
type EngineInitError struct {
	Wavelength float32
}

func (e *EngineInitError) Error() string {
	return fmt.Sprintf("%s with wavelength %.2f ms", ErrEngineInit, e.Wavelength)
}

// Is matches ErrEngineInit
func (e *EngineInitError) Is(target error) bool {
	return target == ErrEngineInit
}

// EngineStopError reports an engine stop call that returned a zero status.
// The handle is still live.
type EngineStopError struct {
	Handle engine.Handle
}

func (e *EngineStopError) Error() string {
	return fmt.Sprintf("%s for handle %d", ErrEngineStop, e.Handle)
}

// Is matches ErrEngineStop
func (e *EngineStopError) Is(target error) bool {
	return target == ErrEngineStop
}

func (m *Manager) engineError(err error, operation string) error {
	return errors.New(err).
		Component(componentSession).
		Category(errors.CategoryAudioEngine).
		Context("operation", operation).
		Context("manager_id", m.id).
		Build()
}
