package run

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/voicechanger/internal/controller"
	"github.com/tphakala/voicechanger/internal/engine/enginetest"
	"github.com/tphakala/voicechanger/internal/logger"
	"github.com/tphakala/voicechanger/internal/session"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func quietLogger() logger.Logger {
	return logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC)
}

func newTestController(t *testing.T, fake *enginetest.Engine, gate controller.PermissionGate) *controller.Controller {
	t.Helper()
	factory := func() (controller.Session, error) {
		m, err := session.New(fake, session.WithLogger(quietLogger()))
		if err != nil {
			return nil, err
		}
		return m, nil
	}
	c, err := controller.New(t.Context(), gate, factory, controller.WithLogger(quietLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c
}

func TestConsole_Script(t *testing.T) {
	t.Parallel()

	fake := enginetest.New().QueueInit(7)
	ctrl := newTestController(t, fake, controller.AlwaysGranted)

	script := strings.Join([]string{
		"help",
		"pitch 1.2",
		"start",
		"pitch 3",
		"status",
		"bogus",
		"",
		"stop",
	}, "\n")
	var out bytes.Buffer
	require.NoError(t, newConsole(strings.NewReader(script), &out, ctrl).Run(t.Context()))

	text := out.String()
	assert.Contains(t, text, "pitch <v>")
	assert.Contains(t, text, "not running, pitch 1.20 ignored")
	assert.Contains(t, text, "started, pitch 1.00")
	assert.Contains(t, text, "pitch 2.00")
	assert.Contains(t, text, "permission=true running=true pitch=2.00 range=[0.50, 2.00]")
	assert.Contains(t, text, `unknown command "bogus"`)
	assert.Contains(t, text, "stopped")

	assert.Equal(t, []enginetest.Call{
		{Op: enginetest.OpInit, Wavelength: controller.DefaultWavelength},
		{Op: enginetest.OpSetPitch, Handle: 7, Factor: 2.0},
		{Op: enginetest.OpStop, Handle: 7},
	}, fake.Calls())
}

func TestConsole_QuitStopsReading(t *testing.T) {
	t.Parallel()

	fake := enginetest.New()
	ctrl := newTestController(t, fake, controller.AlwaysGranted)

	var out bytes.Buffer
	err := newConsole(strings.NewReader("quit\nstart\n"), &out, ctrl).Run(t.Context())
	require.ErrorIs(t, err, errQuit)
	assert.Zero(t, fake.Count(enginetest.OpInit))
}

func TestConsole_PermissionDenied(t *testing.T) {
	t.Parallel()

	denied := controller.PermissionFunc(func(context.Context) (bool, error) { return false, nil })
	fake := enginetest.New()
	ctrl := newTestController(t, fake, denied)

	var out bytes.Buffer
	require.NoError(t, newConsole(strings.NewReader("start\nstatus\n"), &out, ctrl).Run(t.Context()))

	assert.Contains(t, out.String(), "start failed: audio capture permission denied")
	assert.Contains(t, out.String(), "permission=false running=false")
	assert.Zero(t, fake.Count(enginetest.OpInit))
}

func TestConsole_ReturnsOnCancel(t *testing.T) {
	t.Parallel()

	pr, pw := io.Pipe()
	t.Cleanup(func() { _ = pw.Close() })

	ctrl := newTestController(t, enginetest.New(), controller.AlwaysGranted)
	ctx, cancel := context.WithCancel(t.Context())
	errc := make(chan error, 1)
	go func() { errc <- newConsole(pr, io.Discard, ctrl).Run(ctx) }()

	cancel()
	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("console did not return after cancel")
	}
}
