// Package engine defines the native audio engine boundary used by the
// session manager and provides the malgo-backed implementation.
//
// The Engine contract is handle based: Init returns an opaque non-zero
// handle or NoHandle on failure, and Stop returns a non-zero status on
// success or zero when the engine could not release the handle. An Engine
// is not required to be safe for concurrent use; callers serialize access.
package engine

import "github.com/tphakala/voicechanger/internal/logger"

// Handle identifies a live engine instance
type Handle uint64

// NoHandle is returned by Init on failure and marks the absence of a handle
const NoHandle Handle = 0

// Engine is the native audio engine used by a session
type Engine interface {
	// Init creates and starts an instance using wavelength in milliseconds.
	// It returns NoHandle on failure.
	Init(wavelength float32) Handle

	// SetPitch updates the pitch factor of a live instance. The result on a
	// stale handle is undefined.
	SetPitch(h Handle, factor float32)

	// Stop stops and releases an instance. Zero means the stop failed and
	// the handle is still live.
	Stop(h Handle) int64
}

// GetLogger returns the engine package logger
func GetLogger() logger.Logger {
	return logger.Global().Module("engine")
}
