package session_test

import (
	"context"
	"io"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/voicechanger/internal/engine"
	"github.com/tphakala/voicechanger/internal/engine/enginetest"
	"github.com/tphakala/voicechanger/internal/errors"
	"github.com/tphakala/voicechanger/internal/logger"
	"github.com/tphakala/voicechanger/internal/session"
)

const testWavelength float32 = 4.0

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func quietLogger() logger.Logger {
	return logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC)
}

func newManager(t *testing.T, eng engine.Engine, opts ...session.Option) *session.Manager {
	t.Helper()
	opts = append([]session.Option{session.WithLogger(quietLogger())}, opts...)
	m, err := session.New(eng, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = m.Close(context.Background())
	})
	return m
}

func TestNew_RequiresEngine(t *testing.T) {
	t.Parallel()

	_, err := session.New(nil)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestScenario_StartSetPitchStop(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	fake := enginetest.New().QueueInit(42).QueueStop(1)
	m := newManager(t, fake)

	require.NoError(t, m.Start(ctx, testWavelength))
	snap, err := m.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, engine.Handle(42), snap.Handle)
	assert.Equal(t, session.PhaseRunning, snap.Phase)
	assert.InDelta(t, 1.0, snap.Pitch, 0)

	require.NoError(t, m.SetPitch(ctx, 1.5))
	require.NoError(t, m.Stop(ctx))

	snap, err = m.Snapshot(ctx)
	require.NoError(t, err)
	assert.False(t, snap.Running())
	assert.Equal(t, session.PhaseIdle, snap.Phase)

	assert.Equal(t, []enginetest.Call{
		{Op: enginetest.OpInit, Wavelength: testWavelength},
		{Op: enginetest.OpSetPitch, Handle: 42, Factor: 1.5},
		{Op: enginetest.OpStop, Handle: 42},
	}, fake.Calls())
}

func TestScenario_InitFailure(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	fake := enginetest.New().QueueInit(engine.NoHandle)
	m := newManager(t, fake)

	err := m.Start(ctx, testWavelength)
	require.Error(t, err)
	require.ErrorIs(t, err, session.ErrEngineInit)

	var initErr *session.EngineInitError
	require.ErrorAs(t, err, &initErr)
	assert.InDelta(t, testWavelength, initErr.Wavelength, 0)

	require.NoError(t, m.SetPitch(ctx, 1.2))

	snap, err := m.Snapshot(ctx)
	require.NoError(t, err)
	assert.False(t, snap.Running())
	assert.Equal(t, 1, fake.Count(enginetest.OpInit))
	assert.Zero(t, fake.Count(enginetest.OpSetPitch))
}

func TestScenario_StopFailureThenRetry(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	fake := enginetest.New().QueueInit(7).QueueStop(0, 1)
	m := newManager(t, fake)

	require.NoError(t, m.Start(ctx, testWavelength))

	err := m.Stop(ctx)
	require.ErrorIs(t, err, session.ErrEngineStop)
	var stopErr *session.EngineStopError
	require.ErrorAs(t, err, &stopErr)
	assert.Equal(t, engine.Handle(7), stopErr.Handle)

	snap, err := m.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, engine.Handle(7), snap.Handle, "failed stop keeps the handle")
	assert.Equal(t, session.PhaseRunning, snap.Phase)

	require.NoError(t, m.Stop(ctx))
	snap, err = m.Snapshot(ctx)
	require.NoError(t, err)
	assert.False(t, snap.Running())

	assert.Equal(t, []enginetest.Call{
		{Op: enginetest.OpInit, Wavelength: testWavelength},
		{Op: enginetest.OpStop, Handle: 7},
		{Op: enginetest.OpStop, Handle: 7},
	}, fake.Calls())
}

func TestStart_IdempotentWhileRunning(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	fake := enginetest.New()
	m := newManager(t, fake)

	require.NoError(t, m.Start(ctx, testWavelength))
	require.NoError(t, m.SetPitch(ctx, 0.8))
	require.NoError(t, m.Start(ctx, 9))

	snap, err := m.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, fake.Count(enginetest.OpInit))
	assert.InDelta(t, 0.8, snap.Pitch, 1e-6, "a redundant start keeps the current pitch")
}

func TestStart_ResetsPitchOnRestart(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	m := newManager(t, enginetest.New())

	require.NoError(t, m.Start(ctx, testWavelength))
	require.NoError(t, m.SetPitch(ctx, 1.7))
	require.NoError(t, m.Stop(ctx))
	require.NoError(t, m.Start(ctx, testWavelength))

	snap, err := m.Snapshot(ctx)
	require.NoError(t, err)
	assert.InDelta(t, session.DefaultPitch, snap.Pitch, 0)
}

func TestIdleOperationsSkipEngine(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	fake := enginetest.New()
	m := newManager(t, fake)

	require.NoError(t, m.Stop(ctx))
	require.NoError(t, m.SetPitch(ctx, 1.5))
	require.NoError(t, m.SetPitch(ctx, 99))
	require.NoError(t, m.Stop(ctx))

	assert.Empty(t, fake.Calls())
}

func TestSetPitch_NoRangeValidation(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	fake := enginetest.New().QueueInit(3)
	m := newManager(t, fake)

	require.NoError(t, m.Start(ctx, testWavelength))
	require.NoError(t, m.SetPitch(ctx, 7.5))
	require.NoError(t, m.SetPitch(ctx, -1))

	calls := fake.Calls()
	require.Len(t, calls, 3)
	assert.InDelta(t, 7.5, calls[1].Factor, 0)
	assert.InDelta(t, -1, calls[2].Factor, 0)
}

func TestEngineErrorsAreEnhanced(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	fake := enginetest.New().QueueInit(engine.NoHandle)
	m := newManager(t, fake, session.WithID("mgr-1"))

	err := m.Start(ctx, testWavelength)
	require.Error(t, err)

	var ee *errors.EnhancedError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "session", ee.Component)
	assert.Equal(t, errors.CategoryAudioEngine, ee.Category)
	assert.Equal(t, "mgr-1", ee.GetContext()["manager_id"])
	assert.Equal(t, session.OpStart, ee.GetContext()["operation"])
}

func TestSequentialCallsCompleteInOrder(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	fake := enginetest.New().QueueInit(5)
	m := newManager(t, fake)

	require.NoError(t, m.Start(ctx, testWavelength))
	for _, p := range []float32{0.6, 0.9, 1.2, 1.8} {
		require.NoError(t, m.SetPitch(ctx, p))
	}
	require.NoError(t, m.Stop(ctx))

	var ops []string
	var factors []float32
	for _, c := range fake.Calls() {
		ops = append(ops, c.Op)
		if c.Op == enginetest.OpSetPitch {
			factors = append(factors, c.Factor)
		}
	}
	assert.Equal(t, []string{"init", "setPitch", "setPitch", "setPitch", "setPitch", "stop"}, ops)
	assert.Equal(t, []float32{0.6, 0.9, 1.2, 1.8}, factors)
}

func TestConcurrentCallersNeverOverlap(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	fake := enginetest.New().SetDelay(2 * time.Millisecond)
	m := newManager(t, fake)

	var wg sync.WaitGroup
	for i := range 16 {
		wg.Go(func() {
			for j := range 5 {
				switch (i + j) % 3 {
				case 0:
					assert.NoError(t, m.Start(ctx, testWavelength))
				case 1:
					assert.NoError(t, m.SetPitch(ctx, 1.1))
				default:
					assert.NoError(t, m.Stop(ctx))
				}
			}
		})
	}
	wg.Wait()

	assert.Equal(t, 1, fake.MaxConcurrent(), "engine calls overlapped")

	snap, err := m.Snapshot(ctx)
	require.NoError(t, err)
	if snap.Running() {
		assert.Equal(t, []engine.Handle{snap.Handle}, fake.Live())
	} else {
		assert.Empty(t, fake.Live())
	}
}

// model mirrors the expected handle bookkeeping of a manager
type model struct {
	handle engine.Handle
	pitch  float32
}

func TestRandomOperationSequencesMatchModel(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	for seed := range uint64(20) {
		rng := rand.New(rand.NewPCG(seed, 99))
		fake := enginetest.New()
		m := newManager(t, fake)

		var want model
		next := engine.Handle(1)
		for range 60 {
			switch rng.IntN(3) {
			case 0:
				if want.handle != engine.NoHandle {
					require.NoError(t, m.Start(ctx, testWavelength))
					continue
				}
				if rng.IntN(4) == 0 {
					fake.QueueInit(engine.NoHandle)
					require.ErrorIs(t, m.Start(ctx, testWavelength), session.ErrEngineInit)
					continue
				}
				fake.QueueInit(next)
				require.NoError(t, m.Start(ctx, testWavelength))
				want = model{handle: next, pitch: session.DefaultPitch}
				next++
			case 1:
				p := 0.5 + rng.Float32()*1.5
				require.NoError(t, m.SetPitch(ctx, p))
				if want.handle != engine.NoHandle {
					want.pitch = p
				}
			default:
				if want.handle == engine.NoHandle {
					require.NoError(t, m.Stop(ctx))
					continue
				}
				if rng.IntN(4) == 0 {
					fake.QueueStop(0)
					require.ErrorIs(t, m.Stop(ctx), session.ErrEngineStop)
					continue
				}
				require.NoError(t, m.Stop(ctx))
				want = model{}
			}

			snap, err := m.Snapshot(ctx)
			require.NoError(t, err)
			require.Equal(t, want.handle, snap.Handle, "seed %d", seed)
			if want.handle != engine.NoHandle {
				require.InDelta(t, want.pitch, snap.Pitch, 0, "seed %d", seed)
			}
		}
	}
}

func TestCallerCancellationDoesNotAbortQueuedTask(t *testing.T) {
	t.Parallel()

	fake := enginetest.New().QueueInit(11).SetDelay(100 * time.Millisecond)
	m := newManager(t, fake)

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Millisecond)
	defer cancel()
	err := m.Start(ctx, testWavelength)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	snap, err := m.Snapshot(t.Context())
	require.NoError(t, err)
	assert.Equal(t, engine.Handle(11), snap.Handle, "the start task ran to completion")
	assert.Equal(t, 1, fake.Count(enginetest.OpInit))
}

func TestCanceledContextIsNotQueued(t *testing.T) {
	t.Parallel()

	fake := enginetest.New()
	m := newManager(t, fake)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	require.ErrorIs(t, m.Start(ctx, testWavelength), context.Canceled)

	_, err := m.Snapshot(t.Context())
	require.NoError(t, err)
	assert.Empty(t, fake.Calls())
}

func TestPhaseReportsInFlightStart(t *testing.T) {
	t.Parallel()

	fake := enginetest.New().SetDelay(80 * time.Millisecond)
	m := newManager(t, fake)
	assert.Equal(t, session.PhaseIdle, m.Phase())

	errc := make(chan error, 1)
	go func() { errc <- m.Start(t.Context(), testWavelength) }()

	assert.Eventually(t, func() bool { return m.Phase() == session.PhaseStarting },
		time.Second, time.Millisecond)
	require.NoError(t, <-errc)
	assert.Equal(t, session.PhaseRunning, m.Phase())
}

func TestClose_StopsHeldHandle(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	fake := enginetest.New().QueueInit(21)
	m := newManager(t, fake)

	require.NoError(t, m.Start(ctx, testWavelength))
	require.NoError(t, m.Close(ctx))

	assert.Empty(t, fake.Live())
	assert.Equal(t, 1, fake.Count(enginetest.OpStop))
	assert.Equal(t, session.PhaseClosed, m.Phase())

	require.ErrorIs(t, m.Start(ctx, testWavelength), session.ErrClosed)
	require.ErrorIs(t, m.SetPitch(ctx, 1), session.ErrClosed)
	require.ErrorIs(t, m.Stop(ctx), session.ErrClosed)
	_, err := m.Snapshot(ctx)
	require.ErrorIs(t, err, session.ErrClosed)

	require.NoError(t, m.Close(ctx), "close is idempotent")
	assert.Equal(t, 1, fake.Count(enginetest.OpStop))
}

func TestClose_IdleSkipsEngine(t *testing.T) {
	t.Parallel()

	fake := enginetest.New()
	m := newManager(t, fake)

	require.NoError(t, m.Close(t.Context()))
	<-m.Done()
	assert.Empty(t, fake.Calls())
}

func TestClose_ReportsFailedFinalStop(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	fake := enginetest.New().QueueInit(8).QueueStop(0)
	m := newManager(t, fake)

	require.NoError(t, m.Start(ctx, testWavelength))
	err := m.Close(ctx)
	require.ErrorIs(t, err, session.ErrEngineStop)
	assert.Equal(t, 1, fake.Count(enginetest.OpStop), "close makes a single stop attempt")
	assert.ErrorIs(t, m.Close(ctx), session.ErrEngineStop)
}
