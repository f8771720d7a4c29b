// env.go - Environment variable configuration and validation
package conf

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// envBinding holds metadata for environment variable bindings
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

// getEnvBindings returns all environment variable bindings with validation
func getEnvBindings() []envBinding {
	return []envBinding{
		{"debug", envPrefix + "_DEBUG", validateEnvBool},

		// Engine
		{"engine.wavelength", envPrefix + "_ENGINE_WAVELENGTH", validateEnvPositiveFloat},
		{"engine.samplerate", envPrefix + "_ENGINE_SAMPLERATE", validateEnvPositiveInt},
		{"engine.framesperbuffer", envPrefix + "_ENGINE_FRAMESPERBUFFER", validateEnvPositiveInt},
		{"engine.ringbuffersize", envPrefix + "_ENGINE_RINGBUFFERSIZE", validateEnvPositiveInt},
		{"engine.capturedevice", envPrefix + "_ENGINE_CAPTUREDEVICE", nil},
		{"engine.playbackdevice", envPrefix + "_ENGINE_PLAYBACKDEVICE", nil},
		{"engine.backend", envPrefix + "_ENGINE_BACKEND", validateEnvBackend},

		// Session
		{"session.operationtimeout", envPrefix + "_SESSION_OPERATIONTIMEOUT", nil},

		// API
		{"api.enabled", envPrefix + "_API_ENABLED", validateEnvBool},
		{"api.listen", envPrefix + "_API_LISTEN", validateEnvListen},
		{"api.token", envPrefix + "_API_TOKEN", nil},
		{"api.tokenfile", envPrefix + "_API_TOKENFILE", nil},
		{"metrics.enabled", envPrefix + "_METRICS_ENABLED", validateEnvBool},

		// MQTT
		{"mqtt.enabled", envPrefix + "_MQTT_ENABLED", validateEnvBool},
		{"mqtt.broker", envPrefix + "_MQTT_BROKER", validateEnvBrokerURL},
		{"mqtt.topic", envPrefix + "_MQTT_TOPIC", nil},
		{"mqtt.username", envPrefix + "_MQTT_USERNAME", nil},
		{"mqtt.password", envPrefix + "_MQTT_PASSWORD", nil},
		{"mqtt.passwordfile", envPrefix + "_MQTT_PASSWORDFILE", nil},

		// Sentry
		{"sentry.enabled", envPrefix + "_SENTRY_ENABLED", validateEnvBool},
		{"sentry.dsn", envPrefix + "_SENTRY_DSN", nil},
	}
}

// bindEnvVars sets up environment variable bindings with validation
func bindEnvVars() error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := viper.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("Failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate == nil {
			continue
		}
		if envValue := os.Getenv(binding.EnvVar); envValue != "" {
			if err := binding.Validate(envValue); err != nil {
				warnings = append(warnings, fmt.Sprintf("Invalid %s value '%s': %v", binding.EnvVar, envValue, err))
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}

	return nil
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("must be true or false")
	}
	return nil
}

func validateEnvPositiveFloat(value string) error {
	f, err := strconv.ParseFloat(value, 32)
	if err != nil || f <= 0 {
		return fmt.Errorf("must be a positive number")
	}
	return nil
}

func validateEnvPositiveInt(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return fmt.Errorf("must be a positive integer")
	}
	return nil
}

func validateEnvBackend(value string) error {
	if !slices.Contains(SupportedBackends, strings.ToLower(value)) {
		return fmt.Errorf("must be one of %s", strings.Join(SupportedBackends, ", "))
	}
	return nil
}

func validateEnvListen(value string) error {
	if _, _, err := net.SplitHostPort(value); err != nil {
		return fmt.Errorf("must be host:port: %w", err)
	}
	return nil
}

func validateEnvBrokerURL(value string) error {
	u, err := url.Parse(value)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("must be a URL like tcp://host:1883")
	}
	return nil
}

// configureEnvironmentVariables sets up environment variable support for Viper
func configureEnvironmentVariables() error {
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	return bindEnvVars()
}
