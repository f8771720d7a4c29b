// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"

	"github.com/tphakala/voicechanger/internal/logger"
)

// Default engine and controller values
const (
	DefaultWavelength       = 4.0
	DefaultSampleRate       = 48000
	DefaultFramesPerBuffer  = 96
	DefaultRingBufferSize   = 32768
	DefaultOperationTimeout = 5 * time.Second
	DefaultMinPitch         = 0.5
	DefaultMaxPitch         = 2.0
	DefaultAPIListen        = "127.0.0.1:8089"
	DefaultMQTTTopic        = "voicechanger"
	DefaultMQTTCommandRate  = 5.0
)

// setDefaultConfig sets default values for every configuration key
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("engine.wavelength", DefaultWavelength)
	viper.SetDefault("engine.samplerate", DefaultSampleRate)
	viper.SetDefault("engine.framesperbuffer", DefaultFramesPerBuffer)
	viper.SetDefault("engine.ringbuffersize", DefaultRingBufferSize)
	viper.SetDefault("engine.capturedevice", "")
	viper.SetDefault("engine.playbackdevice", "")
	viper.SetDefault("engine.backend", "auto")

	viper.SetDefault("session.operationtimeout", DefaultOperationTimeout)

	viper.SetDefault("controller.minpitch", DefaultMinPitch)
	viper.SetDefault("controller.maxpitch", DefaultMaxPitch)

	viper.SetDefault("api.enabled", false)
	viper.SetDefault("api.listen", DefaultAPIListen)
	viper.SetDefault("api.allowedorigins", []string{})
	viper.SetDefault("api.token", "")
	viper.SetDefault("api.tokenfile", "")
	viper.SetDefault("api.loopbackbypass", false)

	viper.SetDefault("metrics.enabled", true)

	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("mqtt.topic", DefaultMQTTTopic)
	viper.SetDefault("mqtt.clientid", "")
	viper.SetDefault("mqtt.username", "")
	viper.SetDefault("mqtt.password", "")
	viper.SetDefault("mqtt.passwordfile", "")
	viper.SetDefault("mqtt.retain", true)
	viper.SetDefault("mqtt.commandrate", DefaultMQTTCommandRate)
	viper.SetDefault("mqtt.homeassistant.enabled", false)
	viper.SetDefault("mqtt.homeassistant.discoveryprefix", "homeassistant")
	viper.SetDefault("mqtt.homeassistant.devicename", "Voice Changer")

	viper.SetDefault("sentry.enabled", false)
	viper.SetDefault("sentry.dsn", "")
	viper.SetDefault("sentry.environment", "production")
	viper.SetDefault("sentry.samplerate", 1.0)

	viper.SetDefault("logging.defaultlevel", logger.DefaultLogLevel)
	viper.SetDefault("logging.timezone", "Local")
	viper.SetDefault("logging.console.enabled", logger.DefaultConsoleEnabled)
	viper.SetDefault("logging.console.level", logger.DefaultLogLevel)
	viper.SetDefault("logging.fileoutput.enabled", logger.DefaultFileEnabled)
	viper.SetDefault("logging.fileoutput.path", logger.DefaultLogPath)
	viper.SetDefault("logging.fileoutput.level", logger.DefaultLogLevel)
}
