// Package session owns the audio engine handle for one voice changer session.
//
// A Manager runs a single worker goroutine. Every operation is submitted to
// the worker as a task and executed in arrival order, so the engine is never
// called concurrently and the handle is only ever touched by the worker.
// Callers wait for the result with their own context; abandoning the wait
// does not cancel a task that has already been queued.
package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/voicechanger/internal/engine"
	"github.com/tphakala/voicechanger/internal/errors"
	"github.com/tphakala/voicechanger/internal/logger"
)

const componentSession = "session"

// DefaultPitch is the pitch factor of a freshly started session
const DefaultPitch float32 = 1.0

// Operation names used in logs, metrics and error context
const (
	OpStart    = "start"
	OpSetPitch = "set_pitch"
	OpStop     = "stop"
	OpSnapshot = "snapshot"
	OpClose    = "close"
)

// Operation results reported to the Recorder
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// Phase is the observable lifecycle phase of a session
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseStarting Phase = "starting"
	PhaseRunning  Phase = "running"
	PhaseStopping Phase = "stopping"
	PhaseClosed   Phase = "closed"
)

// Snapshot is a consistent view of the session state
type Snapshot struct {
	ManagerID string        `json:"manager_id"`
	Phase     Phase         `json:"phase"`
	Handle    engine.Handle `json:"handle"`
	Pitch     float32       `json:"pitch"`
}

// Running reports whether the snapshot holds a live handle
func (s Snapshot) Running() bool {
	return s.Handle != engine.NoHandle
}

// state is either idle or running
type state interface {
	isState()
}

type idle struct{}

type running struct {
	handle engine.Handle
	pitch  float32
}

func (idle) isState()    {}
func (running) isState() {}

// worker is the state owned by the worker goroutine
type worker struct {
	state state
}

type task struct {
	op     string
	fn     func(w *worker) (result string, err error)
	result chan error
}

// Manager serializes access to one engine handle
type Manager struct {
	id        string
	engine    engine.Engine
	log       logger.Logger
	metrics   Recorder
	opTimeout time.Duration

	tasks    chan task
	closeReq chan struct{}
	done     chan struct{}

	phase     atomic.Value // Phase
	closeOnce sync.Once
	closeErr  error
}

// Option configures a Manager
type Option func(*Manager)

// WithLogger sets the manager logger
func WithLogger(l logger.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// WithRecorder sets the metrics recorder
func WithRecorder(r Recorder) Option {
	return func(m *Manager) {
		if r != nil {
			m.metrics = r
		}
	}
}

// WithOperationTimeout arms a watchdog for each engine operation. An
// operation running longer than d is logged and counted as stalled but is
// left to complete. Zero disables the watchdog.
func WithOperationTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.opTimeout = max(d, 0)
	}
}

// WithID sets the manager ID used in logs and metric labels
func WithID(id string) Option {
	return func(m *Manager) {
		if id != "" {
			m.id = id
		}
	}
}

// New creates a manager for eng and starts its worker
func New(eng engine.Engine, opts ...Option) (*Manager, error) {
	if eng == nil {
		return nil, errors.Newf("session manager requires an engine").
			Component(componentSession).
			Category(errors.CategoryValidation).
			Build()
	}

	m := &Manager{
		id:       uuid.NewString(),
		engine:   eng,
		log:      GetLogger(),
		metrics:  noopRecorder{},
		tasks:    make(chan task),
		closeReq: make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.With(logger.String("manager_id", m.id))
	m.setPhase(PhaseIdle)

	go m.run()

	m.log.Debug("session manager created", logger.Duration("operation_timeout", m.opTimeout))
	return m, nil
}

// ID returns the manager ID
func (m *Manager) ID() string {
	return m.id
}

// Phase returns the current phase without waiting for the worker
func (m *Manager) Phase() Phase {
	return m.phase.Load().(Phase)
}

func (m *Manager) setPhase(p Phase) {
	m.phase.Store(p)
}

// Start initializes the engine with wavelength in milliseconds. It is a
// no-op when a handle is already held. An engine failure is returned as an
// error matching ErrEngineInit and the session stays idle.
func (m *Manager) Start(ctx context.Context, wavelength float32) error {
	return m.submit(ctx, OpStart, func(w *worker) (string, error) {
		if _, ok := w.state.(running); ok {
			m.log.Debug("start ignored, session already running")
			return ResultNoop, nil
		}

		m.setPhase(PhaseStarting)
		h := m.engine.Init(wavelength)
		if h == engine.NoHandle {
			m.setPhase(PhaseIdle)
			err := m.engineError(&EngineInitError{Wavelength: wavelength}, OpStart)
			m.log.Error("engine failed to initialize",
				logger.Float32("wavelength", wavelength),
				logger.Error(err))
			return ResultError, err
		}

		w.state = running{handle: h, pitch: DefaultPitch}
		m.setPhase(PhaseRunning)
		m.metrics.SetRunning(m.id, true)
		m.metrics.SetPitch(m.id, DefaultPitch)
		m.log.Info("session started",
			logger.Uint64("handle", uint64(h)),
			logger.Float32("wavelength", wavelength))
		return ResultSuccess, nil
	})
}

// SetPitch forwards factor to the engine while running. It is a silent
// no-op when idle. The factor is not range checked.
func (m *Manager) SetPitch(ctx context.Context, factor float32) error {
	return m.submit(ctx, OpSetPitch, func(w *worker) (string, error) {
		r, ok := w.state.(running)
		if !ok {
			m.log.Trace("pitch change dropped, session idle", logger.Float32("pitch", factor))
			return ResultNoop, nil
		}

		m.engine.SetPitch(r.handle, factor)
		r.pitch = factor
		w.state = r
		m.metrics.SetPitch(m.id, factor)
		m.log.Debug("pitch updated", logger.Float32("pitch", factor))
		return ResultSuccess, nil
	})
}

// Stop stops the engine while running. It is a silent no-op when idle. An
// engine failure is returned as an error matching ErrEngineStop and the
// handle is kept so the stop can be retried.
func (m *Manager) Stop(ctx context.Context) error {
	return m.submit(ctx, OpStop, m.stop)
}

// Snapshot returns the session state as seen by the worker
func (m *Manager) Snapshot(ctx context.Context) (Snapshot, error) {
	out := make(chan Snapshot, 1)
	err := m.submit(ctx, OpSnapshot, func(w *worker) (string, error) {
		snap := Snapshot{ManagerID: m.id, Phase: m.Phase()}
		if r, ok := w.state.(running); ok {
			snap.Handle = r.handle
			snap.Pitch = r.pitch
		}
		out <- snap
		return ResultSuccess, nil
	})
	if err != nil {
		return Snapshot{}, err
	}
	return <-out, nil
}

// Close stops a held handle with a single attempt and terminates the worker.
// Operations after Close return ErrClosed. Close is idempotent and returns
// the result of the first call.
func (m *Manager) Close(ctx context.Context) error {
	m.closeOnce.Do(func() {
		close(m.closeReq)
	})
	select {
	case <-m.done:
		return m.closeErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once the worker has exited
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

func (m *Manager) stop(w *worker) (string, error) {
	r, ok := w.state.(running)
	if !ok {
		m.log.Trace("stop ignored, session idle")
		return ResultNoop, nil
	}

	m.setPhase(PhaseStopping)
	if status := m.engine.Stop(r.handle); status == 0 {
		m.setPhase(PhaseRunning)
		err := m.engineError(&EngineStopError{Handle: r.handle}, OpStop)
		m.log.Error("engine failed to stop, handle retained",
			logger.Uint64("handle", uint64(r.handle)),
			logger.Error(err))
		return ResultError, err
	}

	w.state = idle{}
	m.setPhase(PhaseIdle)
	m.metrics.SetRunning(m.id, false)
	m.log.Info("session stopped", logger.Uint64("handle", uint64(r.handle)))
	return ResultSuccess, nil
}

// submit queues fn on the worker and waits for its result
func (m *Manager) submit(ctx context.Context, op string, fn func(w *worker) (string, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t := task{op: op, fn: fn, result: make(chan error, 1)}
	select {
	case m.tasks <- t:
	case <-m.closeReq:
		return ErrClosed
	case <-m.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-t.result:
		return err
	case <-ctx.Done():
		m.log.Debug("caller stopped waiting, operation continues", logger.String("operation", op))
		return ctx.Err()
	}
}

// run is the worker loop
func (m *Manager) run() {
	defer close(m.done)

	w := &worker{state: idle{}}
	for {
		select {
		case t := <-m.tasks:
			t.result <- m.execute(w, t.op, t.fn)
		case <-m.closeReq:
			m.shutdown(w)
			return
		}
	}
}

// execute runs one task under the watchdog and records its outcome
func (m *Manager) execute(w *worker, op string, fn func(w *worker) (string, error)) error {
	if op == OpSnapshot {
		_, err := fn(w)
		return err
	}

	start := time.Now()
	if m.opTimeout > 0 {
		timeout := m.opTimeout
		watchdog := time.AfterFunc(timeout, func() {
			m.metrics.RecordStall(m.id, op)
			m.log.Warn("engine operation exceeded timeout, still waiting",
				logger.String("operation", op),
				logger.Duration("timeout", timeout))
		})
		defer watchdog.Stop()
	}

	result, err := fn(w)
	m.metrics.RecordOperation(m.id, op, result, time.Since(start))
	return err
}

// shutdown performs the final stop and marks the manager closed
func (m *Manager) shutdown(w *worker) {
	if _, ok := w.state.(running); ok {
		if err := m.execute(w, OpClose, m.stop); err != nil {
			m.closeErr = err
			m.log.Error("session closed with a live engine handle", logger.Error(err))
		}
	}
	m.setPhase(PhaseClosed)
	m.metrics.SetRunning(m.id, false)
	m.log.Debug("session manager closed")
}

// GetLogger returns the session package logger
func GetLogger() logger.Logger {
	return logger.Global().Module(componentSession)
}
