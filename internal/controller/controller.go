// Package controller turns user intents into session operations and keeps
// the observable running flag and pitch value.
//
// State is derived from outcomes only: running becomes true after a start
// succeeds and false after a stop succeeds. Every operation, blocking or not,
// runs on one intent goroutine, so state updates follow the order in which
// the session executed them. The session is created only once capture
// permission has been granted; without it every intent is inert.
package controller

import (
	"context"
	"math"
	"slices"
	"sync"

	"github.com/tphakala/voicechanger/internal/errors"
	"github.com/tphakala/voicechanger/internal/logger"
)

const componentController = "controller"

// Default pitch range of the slider
const (
	DefaultMinPitch   float32 = 0.5
	DefaultMaxPitch   float32 = 2.0
	DefaultPitch      float32 = 1.0
	DefaultWavelength float32 = 4.0

	intentQueueSize = 64
)

// ErrPermissionDenied is returned by operations when capture permission was refused
var ErrPermissionDenied = errors.NewStd("audio capture permission denied")

// ErrClosed is returned by operations after Close
var ErrClosed = errors.NewStd("controller is closed")

// Session is the subset of the session manager used by the controller
type Session interface {
	Start(ctx context.Context, wavelength float32) error
	SetPitch(ctx context.Context, factor float32) error
	Stop(ctx context.Context) error
	Close(ctx context.Context) error
}

// SessionFactory creates the session once permission has been granted
type SessionFactory func() (Session, error)

// State is the observable controller state
type State struct {
	Permission bool    `json:"permission"`
	Running    bool    `json:"running"`
	Pitch      float32 `json:"pitch"`
	LastError  string  `json:"last_error,omitempty"`
}

// Config holds controller parameters
type Config struct {
	Wavelength float32
	MinPitch   float32
	MaxPitch   float32
}

func (c *Config) applyDefaults() {
	if c.Wavelength == 0 {
		c.Wavelength = DefaultWavelength
	}
	if c.MinPitch == 0 {
		c.MinPitch = DefaultMinPitch
	}
	if c.MaxPitch == 0 {
		c.MaxPitch = DefaultMaxPitch
	}
}

// Option configures a Controller
type Option func(*Controller)

// WithLogger sets the controller logger
func WithLogger(l logger.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}

// WithConfig sets the wavelength and pitch range
func WithConfig(cfg Config) Option {
	return func(c *Controller) {
		c.config = cfg
	}
}

type intent struct {
	name string
	run  func(ctx context.Context) error
	// done receives the outcome of blocking calls, nil for fire-and-forget intents
	done chan error
}

// Controller owns the session and the state shown to the user
type Controller struct {
	config  Config
	log     logger.Logger
	session Session

	mu        sync.Mutex
	state     State
	listeners []func(State)

	// queueMu guards closed and sends on intents
	queueMu sync.RWMutex
	closed  bool
	intents chan intent
	ctx     context.Context
	cancel  context.CancelFunc
	loop    sync.WaitGroup
}

// New requests capture permission and creates the session when it is
// granted. A denial is not an error: the controller is returned inert.
func New(ctx context.Context, gate PermissionGate, factory SessionFactory, opts ...Option) (*Controller, error) {
	c := &Controller{
		log:     GetLogger(),
		intents: make(chan intent, intentQueueSize),
		state:   State{Pitch: DefaultPitch},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.config.applyDefaults()
	if c.config.MinPitch >= c.config.MaxPitch {
		return nil, errors.Newf("invalid pitch range [%.2f, %.2f]", c.config.MinPitch, c.config.MaxPitch).
			Component(componentController).
			Category(errors.CategoryValidation).
			Build()
	}

	granted, err := gate.Request(ctx)
	if err != nil {
		c.log.Warn("capture permission request failed, treating as denied", logger.Error(err))
	}
	if !granted {
		c.log.Warn("audio capture permission denied, voice changer disabled")
		c.ctx, c.cancel = context.WithCancel(context.Background())
		return c, nil
	}

	session, err := factory()
	if err != nil {
		return nil, errors.New(err).
			Component(componentController).
			Category(errors.CategoryAudioEngine).
			Context("operation", "create_session").
			Build()
	}
	c.session = session
	c.state.Permission = true

	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.loop.Go(c.runIntents)
	return c, nil
}

// State returns the current observable state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OnStateChange registers fn to be called after every state change
func (c *Controller) OnStateChange(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// ClampPitch limits v to the configured pitch range
func (c *Controller) ClampPitch(v float32) float32 {
	if math.IsNaN(float64(v)) {
		return DefaultPitch
	}
	return float32(math.Min(math.Max(float64(v), float64(c.config.MinPitch)), float64(c.config.MaxPitch)))
}

// PitchRange returns the accepted pitch range
func (c *Controller) PitchRange() (minPitch, maxPitch float32) {
	return c.config.MinPitch, c.config.MaxPitch
}

// Start starts the session and waits for the outcome. If ctx ends first the
// queued start still runs and its outcome still updates the state.
func (c *Controller) Start(ctx context.Context) error {
	return c.submit(ctx, "start", c.start)
}

func (c *Controller) start(ctx context.Context) error {
	if err := c.session.Start(ctx, c.config.Wavelength); err != nil {
		c.recordFailure("start", err)
		return err
	}
	c.update(func(s *State) {
		if !s.Running {
			s.Pitch = DefaultPitch
		}
		s.Running = true
		s.LastError = ""
	})
	return nil
}

// Stop stops the session and waits for the outcome
func (c *Controller) Stop(ctx context.Context) error {
	return c.submit(ctx, "stop", c.stop)
}

func (c *Controller) stop(ctx context.Context) error {
	if err := c.session.Stop(ctx); err != nil {
		c.recordFailure("stop", err)
		return err
	}
	c.update(func(s *State) {
		s.Running = false
		s.LastError = ""
	})
	return nil
}

// SetPitch clamps v to the pitch range, forwards it and returns the value used
func (c *Controller) SetPitch(ctx context.Context, v float32) (float32, error) {
	err := c.submit(ctx, "set_pitch", func(ctx context.Context) error {
		_, err := c.setPitch(ctx, v)
		return err
	})
	if errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrClosed) {
		return 0, err
	}
	return c.ClampPitch(v), err
}

func (c *Controller) setPitch(ctx context.Context, v float32) (float32, error) {
	clamped := c.ClampPitch(v)
	if clamped != v {
		c.log.Debug("pitch clamped to slider range",
			logger.Float32("requested", v),
			logger.Float32("pitch", clamped))
	}
	if err := c.session.SetPitch(ctx, clamped); err != nil {
		c.recordFailure("set_pitch", err)
		return clamped, err
	}
	c.update(func(s *State) {
		if s.Running {
			s.Pitch = clamped
		}
	})
	return clamped, nil
}

// OnStartRequested queues a start without blocking
func (c *Controller) OnStartRequested() {
	c.enqueue(intent{name: "start", run: c.start})
}

// OnStopRequested queues a stop without blocking
func (c *Controller) OnStopRequested() {
	c.enqueue(intent{name: "stop", run: c.stop})
}

// OnPitchSliderChanged queues a pitch change without blocking
func (c *Controller) OnPitchSliderChanged(v float32) {
	c.enqueue(intent{
		name: "set_pitch",
		run: func(ctx context.Context) error {
			_, err := c.setPitch(ctx, v)
			return err
		},
	})
}

// OnPause stops the session when the application goes to the background
func (c *Controller) OnPause() {
	c.enqueue(intent{name: "pause", run: c.stop})
}

// Close waits for queued intents, then closes the session, which stops a
// running voice path.
func (c *Controller) Close(ctx context.Context) error {
	c.queueMu.Lock()
	if c.closed {
		c.queueMu.Unlock()
		return nil
	}
	c.closed = true
	close(c.intents)
	c.queueMu.Unlock()

	done := make(chan struct{})
	go func() {
		c.loop.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		c.cancel()
		<-done
	}
	c.cancel()

	if c.session == nil {
		return nil
	}
	if err := c.session.Close(ctx); err != nil {
		c.recordFailure("close", err)
		return err
	}
	c.update(func(s *State) {
		s.Running = false
	})
	return nil
}

// usable reports why operations cannot run, if they cannot
func (c *Controller) usable() error {
	if c.session == nil {
		return ErrPermissionDenied
	}
	c.queueMu.RLock()
	defer c.queueMu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	return nil
}

// submit queues run behind earlier intents and waits for its outcome or ctx
func (c *Controller) submit(ctx context.Context, name string, run func(context.Context) error) error {
	if err := c.usable(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	done := make(chan error, 1)
	c.queueMu.RLock()
	if c.closed {
		c.queueMu.RUnlock()
		return ErrClosed
	}
	select {
	case c.intents <- intent{name: name, run: run, done: done}:
	case <-ctx.Done():
		c.queueMu.RUnlock()
		return ctx.Err()
	}
	c.queueMu.RUnlock()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) enqueue(in intent) {
	if c.session == nil {
		c.log.Debug("intent ignored without capture permission", logger.String("intent", in.name))
		return
	}
	c.queueMu.RLock()
	defer c.queueMu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.intents <- in:
	default:
		c.log.Warn("intent queue full, dropping intent", logger.String("intent", in.name))
	}
}

// runIntents executes queued intents in order. It is the only goroutine
// calling the session before Close.
func (c *Controller) runIntents() {
	for in := range c.intents {
		err := in.run(c.ctx)
		if in.done != nil {
			in.done <- err
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			c.log.Debug("intent failed", logger.String("intent", in.name), logger.Error(err))
		}
	}
}

func (c *Controller) recordFailure(operation string, err error) {
	c.log.Warn("session operation failed",
		logger.String("operation", operation),
		logger.Error(err))
	c.update(func(s *State) {
		s.LastError = err.Error()
	})
}

// update applies fn to the state and notifies listeners outside the lock
func (c *Controller) update(fn func(*State)) {
	c.mu.Lock()
	fn(&c.state)
	state := c.state
	listeners := slices.Clone(c.listeners)
	c.mu.Unlock()

	for _, l := range listeners {
		l(state)
	}
}

// GetLogger returns the controller package logger
func GetLogger() logger.Logger {
	return logger.Global().Module(componentController)
}
