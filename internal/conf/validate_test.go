package conf

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSettings() *Settings {
	return &Settings{
		Engine: EngineSettings{
			Wavelength:      DefaultWavelength,
			SampleRate:      DefaultSampleRate,
			FramesPerBuffer: DefaultFramesPerBuffer,
			RingBufferSize:  DefaultRingBufferSize,
			Backend:         "auto",
		},
		Session:    SessionSettings{OperationTimeout: DefaultOperationTimeout},
		Controller: ControllerSettings{MinPitch: DefaultMinPitch, MaxPitch: DefaultMaxPitch},
		API:        APISettings{Listen: DefaultAPIListen},
		MQTT:       MQTTSettings{Topic: DefaultMQTTTopic, CommandRate: DefaultMQTTCommandRate},
	}
}

func TestValidateSettings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr string
	}{
		{"defaults", func(*Settings) {}, ""},
		{"wavelength too small", func(s *Settings) { s.Engine.Wavelength = 0.1 }, "engine.wavelength"},
		{"wavelength too large", func(s *Settings) { s.Engine.Wavelength = 100 }, "engine.wavelength"},
		{"sample rate", func(s *Settings) { s.Engine.SampleRate = 4000 }, "engine.samplerate"},
		{"zero frames", func(s *Settings) { s.Engine.FramesPerBuffer = 0 }, "engine.framesperbuffer"},
		{"ring smaller than two periods", func(s *Settings) { s.Engine.RingBufferSize = 700 }, "engine.ringbuffersize"},
		{"unknown backend", func(s *Settings) { s.Engine.Backend = "oss" }, "engine.backend"},
		{"backend is case insensitive", func(s *Settings) { s.Engine.Backend = "ALSA" }, ""},
		{"negative timeout", func(s *Settings) { s.Session.OperationTimeout = -time.Second }, "session.operationtimeout"},
		{"zero min pitch", func(s *Settings) { s.Controller.MinPitch = 0 }, "controller.minpitch"},
		{"inverted pitch range", func(s *Settings) { s.Controller.MaxPitch = 0.4 }, "controller.maxpitch"},
		{"api bad listen", func(s *Settings) { s.API.Enabled = true; s.API.Listen = "8089" }, "api.listen"},
		{"api disabled ignores listen", func(s *Settings) { s.API.Listen = "garbage" }, ""},
		{"mqtt missing broker", func(s *Settings) { s.MQTT.Enabled = true }, "mqtt.broker"},
		{"mqtt wildcard topic", func(s *Settings) {
			s.MQTT.Enabled = true
			s.MQTT.Broker = "tcp://localhost:1883"
			s.MQTT.Topic = "voice/#"
		}, "wildcards"},
		{"sentry without dsn", func(s *Settings) { s.Sentry.Enabled = true }, "sentry.dsn"},
		{"sentry sample rate", func(s *Settings) {
			s.Sentry.Enabled = true
			s.Sentry.DSN = "https://key@sentry.example/1"
			s.Sentry.SampleRate = 2
		}, "sentry.samplerate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := validSettings()
			tt.mutate(s)
			err := ValidateSettings(s)

			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestEnvValidators(t *testing.T) {
	t.Parallel()

	assert.NoError(t, validateEnvBool("true"))
	assert.Error(t, validateEnvBool("yes please"))
	assert.NoError(t, validateEnvPositiveFloat("4.5"))
	assert.Error(t, validateEnvPositiveFloat("-1"))
	assert.NoError(t, validateEnvPositiveInt("96"))
	assert.Error(t, validateEnvPositiveInt("0"))
	assert.NoError(t, validateEnvBackend("CoreAudio"))
	assert.Error(t, validateEnvBackend("oss"))
	assert.NoError(t, validateEnvListen(":8089"))
	assert.Error(t, validateEnvListen("8089"))
	assert.NoError(t, validateEnvBrokerURL("ssl://broker:8883"))
	assert.Error(t, validateEnvBrokerURL("broker"))
}
