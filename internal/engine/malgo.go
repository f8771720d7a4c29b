package engine

import (
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/tphakala/voicechanger/internal/dsp"
	"github.com/tphakala/voicechanger/internal/errors"
	"github.com/tphakala/voicechanger/internal/logger"
)

const componentEngine = "engine"

// Config configures the malgo engine
type Config struct {
	SampleRate      uint32
	FramesPerBuffer uint32
	RingBufferSize  int
	CaptureDevice   string
	PlaybackDevice  string
	Backend         string
}

// Defaults match a low latency mono voice path
const (
	DefaultSampleRate      = 48000
	DefaultFramesPerBuffer = 96
	DefaultRingBufferSize  = 4096 * 8
)

func (c *Config) applyDefaults() {
	if c.SampleRate == 0 {
		c.SampleRate = DefaultSampleRate
	}
	if c.FramesPerBuffer == 0 {
		c.FramesPerBuffer = DefaultFramesPerBuffer
	}
	if c.RingBufferSize == 0 {
		c.RingBufferSize = DefaultRingBufferSize
	}
}

// Option configures a MalgoEngine
type Option func(*MalgoEngine)

// WithLogger sets the engine logger
func WithLogger(l logger.Logger) Option {
	return func(e *MalgoEngine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithRecorder sets the voice path metrics recorder
func WithRecorder(r Recorder) Option {
	return func(e *MalgoEngine) {
		if r != nil {
			e.metrics = r
		}
	}
}

// MalgoEngine implements Engine on top of miniaudio. Each handle owns a
// capture device, a playback device and the voice path between them.
type MalgoEngine struct {
	config  Config
	log     logger.Logger
	metrics Recorder

	ctx       *malgo.AllocatedContext
	instances *registry[*instance]
	closeOnce sync.Once
}

var _ Engine = (*MalgoEngine)(nil)

// instance is one running voice path and its devices
type instance struct {
	voice    *voicePath
	capture  *malgo.Device
	playback *malgo.Device

	captureStopped  bool
	playbackStopped bool
}

// NewMalgoEngine initializes the audio context for the configured backend
func NewMalgoEngine(cfg Config, opts ...Option) (*MalgoEngine, error) {
	cfg.applyDefaults()
	e := &MalgoEngine{
		config:    cfg,
		log:       GetLogger(),
		metrics:   noopRecorder{},
		instances: newRegistry[*instance](),
	}
	for _, opt := range opts {
		opt(e)
	}

	backends, err := resolveBackends(cfg.Backend)
	if err != nil {
		return nil, errors.New(err).
			Component(componentEngine).
			Category(errors.CategoryConfiguration).
			Context("backend", cfg.Backend).
			Build()
	}

	ctx, err := malgo.InitContext(backends, malgo.ContextConfig{}, func(message string) {
		e.log.Debug("miniaudio", logger.String("message", message))
	})
	if err != nil {
		return nil, errors.New(err).
			Component(componentEngine).
			Category(errors.CategoryAudioDevice).
			Context("operation", "init_context").
			Context("backend", cfg.Backend).
			Build()
	}
	e.ctx = ctx
	return e, nil
}

// Init opens the capture and playback devices and starts the voice path
func (e *MalgoEngine) Init(wavelength float32) Handle {
	inst, err := e.open(wavelength)
	if err != nil {
		e.log.Error("failed to start voice path",
			logger.Float32("wavelength", wavelength),
			logger.Error(err))
		return NoHandle
	}
	h := e.instances.add(inst)
	e.metrics.SetActive(e.instances.len())
	e.log.Info("voice path started",
		logger.Uint64("handle", uint64(h)),
		logger.Float32("wavelength", wavelength),
		logger.Int("period_samples", inst.voice.shifter.Period()),
		logger.Int("latency_samples", inst.voice.shifter.Latency()))
	return h
}

// SetPitch stores the pitch factor read by the capture callback
func (e *MalgoEngine) SetPitch(h Handle, factor float32) {
	inst, ok := e.instances.get(h)
	if !ok {
		e.log.Debug("pitch change for unknown handle ignored", logger.Uint64("handle", uint64(h)))
		return
	}
	inst.voice.setPitch(factor)
}

// Stop stops and releases the capture device, then the playback device.
// A failure leaves the handle live so the stop can be retried.
func (e *MalgoEngine) Stop(h Handle) int64 {
	inst, ok := e.instances.get(h)
	if !ok {
		e.log.Warn("stop for unknown handle", logger.Uint64("handle", uint64(h)))
		return 0
	}
	if err := inst.close(); err != nil {
		e.log.Error("failed to stop voice path",
			logger.Uint64("handle", uint64(h)),
			logger.Error(err))
		return 0
	}
	e.instances.remove(h)
	e.metrics.SetActive(e.instances.len())

	stats := inst.voice.stats()
	e.log.Info("voice path stopped",
		logger.Uint64("handle", uint64(h)),
		logger.Uint64("overruns", stats.Overruns),
		logger.Uint64("underruns", stats.Underruns))
	return 1
}

// Stats returns the voice path counters of a live handle
func (e *MalgoEngine) Stats(h Handle) (Stats, bool) {
	inst, ok := e.instances.get(h)
	if !ok {
		return Stats{}, false
	}
	return inst.voice.stats(), true
}

// ProbeCapture opens and releases the capture device. It fails when the
// device is missing or access to it is denied.
func (e *MalgoEngine) ProbeCapture() error {
	device, err := e.initDevice(malgo.Capture, e.config.CaptureDevice, malgo.DeviceCallbacks{
		Data: func(_, _ []byte, _ uint32) {},
	})
	if err != nil {
		return err
	}
	device.Uninit()
	return nil
}

// Close releases any instance still live and the audio context
func (e *MalgoEngine) Close() error {
	var errs []error
	e.closeOnce.Do(func() {
		for h, inst := range e.instances.drain() {
			if err := inst.close(); err != nil {
				errs = append(errs, err)
				continue
			}
			e.log.Warn("released voice path left running at shutdown", logger.Uint64("handle", uint64(h)))
		}
		if err := e.ctx.Uninit(); err != nil {
			errs = append(errs, err)
		}
		e.ctx.Free()
	})
	return errors.Join(errs...)
}

func (e *MalgoEngine) open(wavelength float32) (*instance, error) {
	shifter, err := dsp.NewShifter(float64(e.config.SampleRate), float64(wavelength))
	if err != nil {
		return nil, errors.New(err).
			Component(componentEngine).
			Category(errors.CategoryValidation).
			Context("wavelength", wavelength).
			Build()
	}

	inst := &instance{
		voice: newVoicePath(shifter, e.config.RingBufferSize, e.log, e.metrics),
	}

	inst.playback, err = e.initDevice(malgo.Playback, e.config.PlaybackDevice, malgo.DeviceCallbacks{
		Data: func(out, _ []byte, _ uint32) { inst.voice.onPlayback(out) },
	})
	if err != nil {
		return nil, err
	}
	inst.capture, err = e.initDevice(malgo.Capture, e.config.CaptureDevice, malgo.DeviceCallbacks{
		Data: func(_, in []byte, _ uint32) { inst.voice.onCapture(in) },
	})
	if err != nil {
		inst.playback.Uninit()
		return nil, err
	}

	// Playback first so the ring buffer is drained from the first capture block
	if err := inst.playback.Start(); err != nil {
		inst.release()
		return nil, deviceError(err, malgo.Playback, "start_device")
	}
	if err := inst.capture.Start(); err != nil {
		_ = inst.playback.Stop()
		inst.release()
		return nil, deviceError(err, malgo.Capture, "start_device")
	}
	return inst, nil
}

func (e *MalgoEngine) initDevice(kind malgo.DeviceType, name string, callbacks malgo.DeviceCallbacks) (*malgo.Device, error) {
	info, err := e.findDevice(kind, name)
	if err != nil {
		return nil, err
	}

	deviceConfig := malgo.DefaultDeviceConfig(kind)
	deviceConfig.SampleRate = e.config.SampleRate
	deviceConfig.PeriodSizeInFrames = e.config.FramesPerBuffer
	deviceConfig.Alsa.NoMMap = 1
	if kind == malgo.Playback {
		deviceConfig.Playback.Format = malgo.FormatF32
		deviceConfig.Playback.Channels = 1
		deviceConfig.Playback.DeviceID = info.ID.Pointer()
	} else {
		deviceConfig.Capture.Format = malgo.FormatF32
		deviceConfig.Capture.Channels = 1
		deviceConfig.Capture.DeviceID = info.ID.Pointer()
	}

	device, err := malgo.InitDevice(e.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return nil, errors.New(err).
			Component(componentEngine).
			Category(errors.CategoryAudioDevice).
			Context("operation", "init_device").
			Context("kind", kindName(kind)).
			Context("device_name", info.Name()).
			Build()
	}
	return device, nil
}

// close stops and releases input before output. Steps that succeeded are
// not repeated when close is retried after a failure.
func (i *instance) close() error {
	if i.capture != nil {
		if !i.captureStopped {
			if err := i.capture.Stop(); err != nil {
				return deviceError(err, malgo.Capture, "stop_device")
			}
			i.captureStopped = true
		}
		i.capture.Uninit()
		i.capture = nil
	}
	if i.playback != nil {
		if !i.playbackStopped {
			if err := i.playback.Stop(); err != nil {
				return deviceError(err, malgo.Playback, "stop_device")
			}
			i.playbackStopped = true
		}
		i.playback.Uninit()
		i.playback = nil
	}
	return nil
}

// release frees devices that never started
func (i *instance) release() {
	if i.capture != nil {
		i.capture.Uninit()
		i.capture = nil
	}
	if i.playback != nil {
		i.playback.Uninit()
		i.playback = nil
	}
}

func deviceError(err error, kind malgo.DeviceType, operation string) error {
	return errors.New(err).
		Component(componentEngine).
		Category(errors.CategoryAudioDevice).
		Context("operation", operation).
		Context("kind", kindName(kind)).
		Build()
}
