package dsp

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSampleRate = 8000
	testWavelength = 4.0 // 32 samples at 8 kHz
)

func newTestShifter(t *testing.T) *Shifter {
	t.Helper()
	s, err := NewShifter(testSampleRate, testWavelength)
	require.NoError(t, err)
	return s
}

// processChunked runs input through s in blocks of chunk samples
func processChunked(s *Shifter, input []float32, chunk int) []float32 {
	out := make([]float32, len(input))
	for start := 0; start < len(input); start += chunk {
		end := min(start+chunk, len(input))
		s.Process(input[start:end], out[start:end])
	}
	return out
}

// periodicSignal returns a harmonic signal whose period is exactly period samples
func periodicSignal(n, period int) []float32 {
	x := make([]float32, n)
	for i := range x {
		phase := 2 * math.Pi * float64(i) / float64(period)
		x[i] = float32(math.Sin(phase) + 0.5*math.Sin(2*phase+0.3) + 0.25*math.Sin(3*phase+1))
	}
	return x
}

func TestNewShifter_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		sampleRate float64
		wavelength float64
	}{
		{"zero sample rate", 0, 4},
		{"nan sample rate", math.NaN(), 4},
		{"zero wavelength", 48000, 0},
		{"negative wavelength", 48000, -1},
		{"wavelength too long", 48000, 80},
		{"period below two samples", 8000, 0.1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewShifter(tt.sampleRate, tt.wavelength)
			assert.Error(t, err)
		})
	}
}

func TestNewShifter_DerivedValues(t *testing.T) {
	t.Parallel()

	s, err := NewShifter(48000, 4)
	require.NoError(t, err)

	assert.InDelta(t, 48000.0, s.SampleRate(), 0)
	assert.Equal(t, 192, s.Period())
	assert.Equal(t, 3*192+1, s.Latency())
	assert.InDelta(t, 1.0, s.PitchRatio(), 0)
}

func TestSetPitchRatio(t *testing.T) {
	t.Parallel()

	s := newTestShifter(t)

	require.NoError(t, s.SetPitchRatio(0.5))
	assert.InDelta(t, 0.5, s.PitchRatio(), 0)
	require.NoError(t, s.SetPitchRatio(MaxPitchRatio))

	for _, bad := range []float64{0, -1, 0.1, 5, math.NaN(), math.Inf(1)} {
		assert.Error(t, s.SetPitchRatio(bad), "ratio %v", bad)
	}
	assert.InDelta(t, MaxPitchRatio, s.PitchRatio(), 0, "rejected ratios leave the previous value")
}

func TestProcess_UnityRatioDelaysInput(t *testing.T) {
	t.Parallel()

	s := newTestShifter(t)
	rng := rand.New(rand.NewPCG(1, 2))

	input := make([]float32, 4000)
	for i := range input {
		input[i] = rng.Float32()*2 - 1
	}
	out := processChunked(s, input, 96)

	lat := s.Latency()
	for i := range lat {
		require.Zero(t, out[i], "sample %d precedes the latency", i)
	}
	for i := lat + s.Period(); i < len(out); i++ {
		require.InDelta(t, input[i-lat], out[i], 1e-5, "sample %d", i)
	}
}

func TestProcess_ChunkSizeIndependent(t *testing.T) {
	t.Parallel()

	input := periodicSignal(3000, 37)

	a := newTestShifter(t)
	require.NoError(t, a.SetPitchRatio(1.3))
	b := newTestShifter(t)
	require.NoError(t, b.SetPitchRatio(1.3))

	outA := processChunked(a, input, 96)
	outB := processChunked(b, input, 13)

	for i := range outA {
		require.InDelta(t, outA[i], outB[i], 1e-6, "sample %d", i)
	}
}

func TestProcess_ShiftsPeriod(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		ratio     float64
		outPeriod int
	}{
		{"octave up", 2.0, 16},
		{"octave down", 0.5, 64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := newTestShifter(t)
			require.NoError(t, s.SetPitchRatio(tt.ratio))

			p := s.Period()
			out := processChunked(s, periodicSignal(40*p, p), 96)

			from := s.Latency() + 4*p
			to := s.Latency() + 20*p

			var energy float64
			for i := from; i < to; i++ {
				require.InDelta(t, out[i], out[i+tt.outPeriod], 1e-4, "sample %d", i)
				energy += float64(out[i]) * float64(out[i])
			}
			rms := math.Sqrt(energy / float64(to-from))
			assert.Greater(t, rms, 0.05)
		})
	}
}

func TestProcess_InPlaceAndBoundedMemory(t *testing.T) {
	t.Parallel()

	s := newTestShifter(t)
	require.NoError(t, s.SetPitchRatio(0.8))

	buf := make([]float32, 96)
	for range 2000 {
		for i := range buf {
			buf[i] = 0.5
		}
		s.Process(buf, buf)
	}

	limit := 4*s.Latency() + len(buf)
	assert.LessOrEqual(t, len(s.input), limit)
	assert.LessOrEqual(t, len(s.acc), limit)
}

func TestProcess_MismatchedLengths(t *testing.T) {
	t.Parallel()

	s := newTestShifter(t)
	out := make([]float32, 10)
	s.Process(make([]float32, 20), out)
	assert.Equal(t, int64(10), s.written)

	s.Process(nil, out)
	assert.Equal(t, int64(10), s.written)
}

func TestReset(t *testing.T) {
	t.Parallel()

	s := newTestShifter(t)
	require.NoError(t, s.SetPitchRatio(1.5))
	processChunked(s, periodicSignal(1000, 20), 96)

	s.Reset()
	assert.Empty(t, s.input)
	assert.Empty(t, s.acc)
	assert.Equal(t, int64(0), s.written)
	assert.InDelta(t, 1.5, s.PitchRatio(), 0)
}

func BenchmarkProcess(b *testing.B) {
	s, err := NewShifter(48000, 4)
	require.NoError(b, err)
	require.NoError(b, s.SetPitchRatio(1.5))

	buf := periodicSignal(96, 50)
	b.ReportAllocs()
	for b.Loop() {
		s.Process(buf, buf)
	}
}
