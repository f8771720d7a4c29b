// Package enginetest provides a scriptable in-memory engine.Engine for tests.
package enginetest

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/tphakala/voicechanger/internal/engine"
)

// Operation names recorded in Call.Op
const (
	OpInit     = "init"
	OpSetPitch = "setPitch"
	OpStop     = "stop"
)

// Call records one engine invocation
type Call struct {
	Op         string
	Handle     engine.Handle
	Wavelength float32
	Factor     float32
}

// Engine is a fake engine. Init results and stop statuses are taken from
// scripted queues; when a queue is empty Init hands out sequential handles
// and Stop succeeds.
type Engine struct {
	mu          sync.Mutex
	initResults []engine.Handle
	stopResults []int64
	calls       []Call
	live        map[engine.Handle]bool
	nextHandle  engine.Handle
	delay       time.Duration

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

var _ engine.Engine = (*Engine)(nil)

// New returns a fake engine with no scripted results
func New() *Engine {
	return &Engine{live: make(map[engine.Handle]bool), nextHandle: 100}
}

// QueueInit scripts the next Init results
func (e *Engine) QueueInit(handles ...engine.Handle) *Engine {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.initResults = append(e.initResults, handles...)
	return e
}

// QueueStop scripts the next Stop statuses
func (e *Engine) QueueStop(statuses ...int64) *Engine {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopResults = append(e.stopResults, statuses...)
	return e
}

// SetDelay makes every call sleep for d, simulating a blocking native call
func (e *Engine) SetDelay(d time.Duration) *Engine {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.delay = d
	return e
}

// Init implements engine.Engine
func (e *Engine) Init(wavelength float32) engine.Handle {
	defer e.enter()()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, Call{Op: OpInit, Wavelength: wavelength})

	var h engine.Handle
	if len(e.initResults) > 0 {
		h = e.initResults[0]
		e.initResults = e.initResults[1:]
	} else {
		e.nextHandle++
		h = e.nextHandle
	}
	if h != engine.NoHandle {
		e.live[h] = true
	}
	return h
}

// SetPitch implements engine.Engine
func (e *Engine) SetPitch(h engine.Handle, factor float32) {
	defer e.enter()()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, Call{Op: OpSetPitch, Handle: h, Factor: factor})
}

// Stop implements engine.Engine
func (e *Engine) Stop(h engine.Handle) int64 {
	defer e.enter()()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, Call{Op: OpStop, Handle: h})

	status := int64(1)
	if len(e.stopResults) > 0 {
		status = e.stopResults[0]
		e.stopResults = e.stopResults[1:]
	}
	if status != 0 {
		delete(e.live, h)
	}
	return status
}

// enter tracks concurrent calls and applies the configured delay
func (e *Engine) enter() func() {
	n := e.inFlight.Add(1)
	for {
		peak := e.maxInFlight.Load()
		if n <= peak || e.maxInFlight.CompareAndSwap(peak, n) {
			break
		}
	}

	e.mu.Lock()
	delay := e.delay
	e.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	return func() { e.inFlight.Add(-1) }
}

// Calls returns a copy of every recorded call in order
func (e *Engine) Calls() []Call {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Call(nil), e.calls...)
}

// Count returns how many calls of op were made
func (e *Engine) Count(op string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, c := range e.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Live returns the handles initialized and not yet successfully stopped
func (e *Engine) Live() []engine.Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	handles := make([]engine.Handle, 0, len(e.live))
	for h := range e.live {
		handles = append(handles, h)
	}
	return handles
}

// MaxConcurrent returns the highest number of calls that overlapped
func (e *Engine) MaxConcurrent() int {
	return int(e.maxInFlight.Load())
}
