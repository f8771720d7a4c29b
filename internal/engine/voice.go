package engine

import (
	"encoding/binary"
	"math"
	"sync/atomic"

	"github.com/smallnest/ringbuffer"

	"github.com/tphakala/voicechanger/internal/dsp"
	"github.com/tphakala/voicechanger/internal/errors"
	"github.com/tphakala/voicechanger/internal/logger"
)

const (
	bytesPerSample = 4 // mono f32
	initialPitch   = float32(1.0)

	// overrunLogInterval rate limits the dropped sample warning
	overrunLogInterval = 64
)

// voicePath carries audio from the capture callback through the pitch
// shifter into a ring buffer drained by the playback callback. The capture
// and playback callbacks run on separate audio threads.
type voicePath struct {
	shifter *dsp.Shifter
	ring    *ringbuffer.RingBuffer
	log     logger.Logger
	metrics Recorder

	pitch   atomic.Uint32 // float32 bits, written by SetPitch
	applied uint32        // float32 bits last applied to the shifter, capture thread only

	samples []float32 // capture thread scratch
	encoded []byte    // capture thread scratch

	droppedBytes atomic.Uint64
	overruns     atomic.Uint64
	underruns    atomic.Uint64
}

func newVoicePath(shifter *dsp.Shifter, ringSize int, log logger.Logger, metrics Recorder) *voicePath {
	v := &voicePath{
		shifter: shifter,
		ring:    ringbuffer.New(ringSize),
		log:     log,
		metrics: metrics,
		applied: math.Float32bits(initialPitch),
	}
	v.pitch.Store(math.Float32bits(initialPitch))
	return v
}

func (v *voicePath) setPitch(factor float32) {
	v.pitch.Store(math.Float32bits(factor))
}

func (v *voicePath) currentPitch() float32 {
	return math.Float32frombits(v.pitch.Load())
}

// onCapture shifts one block of captured samples and queues it for playback
func (v *voicePath) onCapture(in []byte) {
	n := len(in) / bytesPerSample
	if n == 0 {
		return
	}
	v.applyPitch()

	if cap(v.samples) < n {
		v.samples = make([]float32, n)
		v.encoded = make([]byte, n*bytesPerSample)
	}
	samples := v.samples[:n]
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(in[i*bytesPerSample:]))
	}

	v.shifter.Process(samples, samples)

	out := v.encoded[:n*bytesPerSample]
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[i*bytesPerSample:], math.Float32bits(s))
	}

	written, err := v.ring.Write(out)
	if written == len(out) && err == nil {
		return
	}
	// Samples that do not fit are dropped; playback is behind capture
	dropped := uint64(len(out) - written)
	v.droppedBytes.Add(dropped)
	v.metrics.RecordOverflow(len(out) - written)
	if count := v.overruns.Add(1); count%overrunLogInterval == 1 {
		fields := []logger.Field{
			logger.Uint64("dropped_samples", dropped/bytesPerSample),
			logger.Uint64("overruns", count),
			logger.Int("ring_free", v.ring.Free()),
		}
		if err != nil && !errors.Is(err, ringbuffer.ErrIsFull) {
			fields = append(fields, logger.Error(err))
		}
		v.log.Warn("voice ring buffer full, dropping captured samples", fields...)
	}
}

// applyPitch moves a changed pitch factor onto the shifter
func (v *voicePath) applyPitch() {
	bits := v.pitch.Load()
	if bits == v.applied {
		return
	}
	p := math.Float32frombits(bits)
	if err := v.shifter.SetPitchRatio(float64(p)); err != nil {
		v.log.Warn("ignoring unsupported pitch factor",
			logger.Float32("pitch", p),
			logger.Error(err))
	}
	// Remembered even when rejected so the warning is logged once
	v.applied = bits
}

// onPlayback fills out from the ring buffer, padding with silence on underrun
func (v *voicePath) onPlayback(out []byte) {
	n, err := v.ring.Read(out)
	if err != nil && !errors.Is(err, ringbuffer.ErrIsEmpty) {
		v.log.Debug("voice ring buffer read failed", logger.Error(err))
	}
	if n < len(out) {
		clear(out[n:])
		v.underruns.Add(1)
		v.metrics.RecordUnderrun()
	}
}

// Recorder receives voice path metrics. Methods are called from audio
// callbacks and must not block.
type Recorder interface {
	RecordOverflow(droppedBytes int)
	RecordUnderrun()
	SetActive(n int)
}

type noopRecorder struct{}

func (noopRecorder) RecordOverflow(int) {}
func (noopRecorder) RecordUnderrun()    {}
func (noopRecorder) SetActive(int)      {}

// Stats is a point-in-time view of voice path counters
type Stats struct {
	Pitch        float32
	DroppedBytes uint64
	Overruns     uint64
	Underruns    uint64
	Buffered     int
}

func (v *voicePath) stats() Stats {
	return Stats{
		Pitch:        v.currentPitch(),
		DroppedBytes: v.droppedBytes.Load(),
		Overruns:     v.overruns.Load(),
		Underruns:    v.underruns.Load(),
		Buffered:     v.ring.Length(),
	}
}
