// Package dsp implements the streaming pitch shifter used on the voice path.
//
// Shifter is a fixed-period TD-PSOLA: the input is cut into Hann-windowed
// grains two periods long, centred on analysis marks one period apart, and
// the grains are overlap-added at synthesis marks spaced period/ratio apart.
// Time scale is preserved, so each synthesis mark reuses the nearest analysis
// mark. The shifter is mono and block-based with a constant latency.
package dsp

import (
	"fmt"
	"math"
)

const (
	defaultPitchRatio = 1.0

	// MinPitchRatio and MaxPitchRatio bound SetPitchRatio
	MinPitchRatio = 0.25
	MaxPitchRatio = 4.0

	minPeriodSamples = 2
	// maxWavelengthMs keeps grains below the range where the shifter smears speech
	maxWavelengthMs = 50.0
)

// Shifter is a streaming pitch shifter. It is not safe for concurrent use;
// the audio callback owns it.
type Shifter struct {
	sampleRate float64
	period     int
	ratio      float64
	latency    int
	window     []float32

	input     []float32 // input history, input[0] is absolute sample inputBase
	inputBase int64
	acc       []float32 // overlap-add accumulator, acc[0] is absolute sample accBase
	accBase   int64

	nextMark float64 // next synthesis mark, absolute output time
	written  int64   // total input samples received
	emitted  int64   // total output samples produced
}

// NewShifter creates a shifter whose grain period is wavelengthMs at sampleRate
func NewShifter(sampleRate, wavelengthMs float64) (*Shifter, error) {
	if !isFinitePositive(sampleRate) {
		return nil, fmt.Errorf("pitch shifter sample rate must be positive and finite: %f", sampleRate)
	}
	if !isFinitePositive(wavelengthMs) || wavelengthMs > maxWavelengthMs {
		return nil, fmt.Errorf("pitch shifter wavelength must be in (0, %.0f] ms: %f", maxWavelengthMs, wavelengthMs)
	}

	period := int(math.Round(wavelengthMs * sampleRate / 1000))
	if period < minPeriodSamples {
		return nil, fmt.Errorf("pitch shifter wavelength %.3f ms is shorter than %d samples at %.0f Hz",
			wavelengthMs, minPeriodSamples, sampleRate)
	}

	s := &Shifter{
		sampleRate: sampleRate,
		period:     period,
		ratio:      defaultPitchRatio,
		// A grain can only be placed once the input reaches its analysis
		// mark plus one period; this delay covers the worst case.
		latency: 3*period + 1,
		window:  hann(2 * period),
	}
	s.Reset()
	return s, nil
}

// SampleRate returns the sample rate in Hz
func (s *Shifter) SampleRate() float64 { return s.sampleRate }

// Period returns the grain period in samples
func (s *Shifter) Period() int { return s.period }

// Latency returns the constant input-to-output delay in samples
func (s *Shifter) Latency() int { return s.latency }

// PitchRatio returns the pitch ratio
func (s *Shifter) PitchRatio() float64 { return s.ratio }

// SetPitchRatio updates the pitch ratio: 2.0 is one octave up, 0.5 one octave down
func (s *Shifter) SetPitchRatio(ratio float64) error {
	if !isFinitePositive(ratio) || ratio < MinPitchRatio || ratio > MaxPitchRatio {
		return fmt.Errorf("pitch shifter ratio must be in [%.2f, %.2f]: %f", MinPitchRatio, MaxPitchRatio, ratio)
	}
	s.ratio = ratio
	return nil
}

// Reset clears all buffered audio. The pitch ratio is kept.
func (s *Shifter) Reset() {
	s.input = s.input[:0]
	s.inputBase = 0
	s.acc = s.acc[:0]
	s.accBase = 0
	s.nextMark = float64(s.period)
	s.written = 0
	s.emitted = 0
}

// Process consumes in and writes the same number of samples to out.
// out may alias in. Only min(len(in), len(out)) samples are processed.
func (s *Shifter) Process(in, out []float32) {
	n := min(len(in), len(out))
	if n == 0 {
		return
	}

	s.input = append(s.input, in[:n]...)
	s.written += int64(n)
	s.placeGrains()

	lat := int64(s.latency)
	for i := range n {
		var v float32
		if idx := s.emitted - lat - s.accBase; idx >= 0 && idx < int64(len(s.acc)) {
			v = s.acc[idx]
		}
		out[i] = v
		s.emitted++
	}

	s.compact()
}

// placeGrains overlap-adds every grain whose analysis window is fully available
func (s *Shifter) placeGrains() {
	p := int64(s.period)
	scale := float32(1 / s.ratio)

	for {
		mark := int64(math.Round(s.nextMark/float64(p))) * p
		if mark+p > s.written {
			return
		}
		center := int64(math.Round(s.nextMark))
		s.growAcc(center + p)

		for j := range 2 * p {
			src := mark - p + j - s.inputBase
			dst := center - p + j - s.accBase
			if src < 0 || dst < 0 {
				continue
			}
			s.acc[dst] += s.input[src] * s.window[j] * scale
		}

		s.nextMark += float64(p) / s.ratio
	}
}

// growAcc extends the accumulator with zeros up to absolute index end
func (s *Shifter) growAcc(end int64) {
	for int64(len(s.acc)) < end-s.accBase {
		s.acc = append(s.acc, 0)
	}
}

// compact drops emitted output and input no future grain can reach
func (s *Shifter) compact() {
	if drop := s.emitted - int64(s.latency) - s.accBase; drop > 0 {
		if drop >= int64(len(s.acc)) {
			s.acc = s.acc[:0]
		} else {
			s.acc = s.acc[:copy(s.acc, s.acc[drop:])]
		}
		s.accBase += drop
	}

	p := int64(s.period)
	keepFrom := int64(math.Round(s.nextMark/float64(p)))*p - 2*p
	if drop := keepFrom - s.inputBase; drop > 0 {
		drop = min(drop, int64(len(s.input)))
		s.input = s.input[:copy(s.input, s.input[drop:])]
		s.inputBase += drop
	}
}

// hann returns a periodic Hann window; copies spaced n/2 apart sum to one
func hann(n int) []float32 {
	w := make([]float32, n)
	for i := range w {
		w[i] = float32(0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n)))
	}
	return w
}

func isFinitePositive(v float64) bool {
	return v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}
