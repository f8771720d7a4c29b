package engine

import (
	"encoding/binary"
	"io"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/voicechanger/internal/dsp"
	"github.com/tphakala/voicechanger/internal/logger"
)

const testRate = 8000

func newTestVoice(t *testing.T, ringSize int) *voicePath {
	t.Helper()
	shifter, err := dsp.NewShifter(testRate, 4)
	require.NoError(t, err)
	return newVoicePath(shifter, ringSize, logger.NewSlogLogger(io.Discard, logger.LogLevelInfo, time.UTC), noopRecorder{})
}

func encode(samples []float32) []byte {
	b := make([]byte, len(samples)*bytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(b[i*bytesPerSample:], math.Float32bits(s))
	}
	return b
}

func decode(b []byte) []float32 {
	s := make([]float32, len(b)/bytesPerSample)
	for i := range s {
		s[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*bytesPerSample:]))
	}
	return s
}

func sine(n int) []float32 {
	x := make([]float32, n)
	for i := range x {
		x[i] = float32(0.8 * math.Sin(2*math.Pi*220*float64(i)/testRate))
	}
	return x
}

func TestVoicePath_InitialPitchIsUnity(t *testing.T) {
	t.Parallel()

	v := newTestVoice(t, 4096)
	assert.InDelta(t, 1.0, v.currentPitch(), 0)
	assert.InDelta(t, 1.0, v.shifter.PitchRatio(), 0)
}

func TestVoicePath_CaptureMatchesShifterOutput(t *testing.T) {
	t.Parallel()

	v := newTestVoice(t, 1<<16)
	v.setPitch(1.5)

	reference, err := dsp.NewShifter(testRate, 4)
	require.NoError(t, err)
	require.NoError(t, reference.SetPitchRatio(1.5))

	input := sine(96 * 20)
	want := make([]float32, len(input))
	for start := 0; start < len(input); start += 96 {
		v.onCapture(encode(input[start : start+96]))
		reference.Process(input[start:start+96], want[start:start+96])
	}

	out := make([]byte, len(input)*bytesPerSample)
	v.onPlayback(out)
	assert.Equal(t, want, decode(out))
	assert.Zero(t, v.stats().Underruns)
	assert.InDelta(t, 1.5, v.shifter.PitchRatio(), 0)
}

func TestVoicePath_UnderrunPlaysSilence(t *testing.T) {
	t.Parallel()

	v := newTestVoice(t, 4096)
	v.onCapture(encode(make([]float32, 8)))

	out := make([]byte, 64*bytesPerSample)
	for i := range out {
		out[i] = 0xff
	}
	v.onPlayback(out)

	assert.Equal(t, make([]float32, 64), decode(out))
	assert.Equal(t, uint64(1), v.stats().Underruns)
}

func TestVoicePath_OverrunDropsSamples(t *testing.T) {
	t.Parallel()

	ringSize := 96 * bytesPerSample * 2
	v := newTestVoice(t, ringSize)
	block := encode(sine(96))

	for range 3 {
		v.onCapture(block)
	}

	stats := v.stats()
	assert.Equal(t, uint64(1), stats.Overruns)
	assert.Equal(t, uint64(len(block)), stats.DroppedBytes)
	assert.Equal(t, ringSize, stats.Buffered)
}

func TestVoicePath_UnsupportedPitchKeepsPreviousRatio(t *testing.T) {
	t.Parallel()

	v := newTestVoice(t, 4096)
	v.setPitch(0.75)
	v.onCapture(encode(make([]float32, 96)))
	require.InDelta(t, 0.75, v.shifter.PitchRatio(), 0)

	v.setPitch(float32(math.NaN()))
	v.onCapture(encode(make([]float32, 96)))
	assert.InDelta(t, 0.75, v.shifter.PitchRatio(), 0)
}

func TestVoicePath_IgnoresPartialSample(t *testing.T) {
	t.Parallel()

	v := newTestVoice(t, 4096)
	v.onCapture([]byte{1, 2, 3})
	assert.Zero(t, v.stats().Buffered)
}
