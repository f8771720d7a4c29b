// Package conf provides configuration management for the voice changer.
package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/voicechanger/internal/errors"
	"github.com/tphakala/voicechanger/internal/logger"
	"github.com/tphakala/voicechanger/internal/secrets"
)

const (
	appName   = "voicechanger"
	envPrefix = "VOICECHANGER"

	osWindows = "windows"
)

// EngineSettings contains settings for the native voice path
type EngineSettings struct {
	Wavelength      float32 `yaml:"wavelength"`      // pitch shifter grain period in milliseconds
	SampleRate      uint32  `yaml:"samplerate"`      // capture and playback sample rate in Hz
	FramesPerBuffer uint32  `yaml:"framesperbuffer"` // frames per device callback
	RingBufferSize  int     `yaml:"ringbuffersize"`  // bytes between capture and playback
	CaptureDevice   string  `yaml:"capturedevice"`   // capture device name, empty for system default
	PlaybackDevice  string  `yaml:"playbackdevice"`  // playback device name, empty for system default
	Backend         string  `yaml:"backend"`         // audio backend, empty or "auto" for platform default
}

// SessionSettings contains audio session manager settings
type SessionSettings struct {
	OperationTimeout time.Duration `yaml:"operationtimeout"` // stalled native call warning threshold, 0 disables
}

// ControllerSettings contains the pitch slider domain
type ControllerSettings struct {
	MinPitch float32 `yaml:"minpitch"`
	MaxPitch float32 `yaml:"maxpitch"`
}

// APISettings contains HTTP control API settings
type APISettings struct {
	Enabled        bool     `yaml:"enabled"`
	Listen         string   `yaml:"listen"`         // host:port
	AllowedOrigins []string `yaml:"allowedorigins"` // CORS origins, empty allows any
	Token          string   `yaml:"token"`          // bearer token for session routes, empty disables auth
	TokenFile      string   `yaml:"tokenfile"`      // file holding the token, overrides token
	LoopbackBypass bool     `yaml:"loopbackbypass"` // loopback clients need no token
}

// MetricsSettings contains Prometheus settings
type MetricsSettings struct {
	Enabled bool `yaml:"enabled"` // serve /metrics on the API listener
}

// MQTTSettings contains settings for the MQTT bridge
type MQTTSettings struct {
	Enabled      bool    `yaml:"enabled"`
	Broker       string  `yaml:"broker"`       // e.g. tcp://localhost:1883
	Topic        string  `yaml:"topic"`        // base topic, state goes to <topic>/state
	ClientID     string  `yaml:"clientid"`     // empty generates one
	Username     string  `yaml:"username"`
	Password     string  `yaml:"password"`
	PasswordFile string  `yaml:"passwordfile"` // file holding the password, overrides password
	Retain       bool    `yaml:"retain"`       // retain state messages
	CommandRate  float64 `yaml:"commandrate"`  // max inbound commands per second

	HomeAssistant HomeAssistantSettings `yaml:"homeassistant"`
}

// HomeAssistantSettings contains Home Assistant MQTT discovery settings
type HomeAssistantSettings struct {
	Enabled         bool   `yaml:"enabled"`
	DiscoveryPrefix string `yaml:"discoveryprefix"` // default homeassistant
	DeviceName      string `yaml:"devicename"`
}

// SentrySettings contains error telemetry settings
type SentrySettings struct {
	Enabled     bool    `yaml:"enabled"`
	DSN         string  `yaml:"dsn"`
	Environment string  `yaml:"environment"`
	SampleRate  float64 `yaml:"samplerate"`
}

// Settings contains all configuration options for the voice changer
type Settings struct {
	Debug bool `yaml:"debug"`

	Engine     EngineSettings       `yaml:"engine"`
	Session    SessionSettings      `yaml:"session"`
	Controller ControllerSettings   `yaml:"controller"`
	API        APISettings          `yaml:"api"`
	Metrics    MetricsSettings      `yaml:"metrics"`
	MQTT       MQTTSettings         `yaml:"mqtt"`
	Sentry     SentrySettings       `yaml:"sentry"`
	Logging    logger.LoggingConfig `yaml:"logging"`
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads defaults, the config file and environment variables into Settings.
// An empty configFile searches the default config paths.
func Load(configFile string) (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	if err := initViper(configFile); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("operation", "unmarshal").
			Build()
	}

	if err := resolveSecrets(settings); err != nil {
		return nil, err
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// resolveSecrets replaces credentials with the contents of their secret
// files and expands ${VAR} references
func resolveSecrets(settings *Settings) error {
	fields := []struct {
		name     string
		filePath string
		value    *string
	}{
		{"api.token", settings.API.TokenFile, &settings.API.Token},
		{"mqtt.password", settings.MQTT.PasswordFile, &settings.MQTT.Password},
		{"sentry.dsn", "", &settings.Sentry.DSN},
	}
	for _, f := range fields {
		resolved, err := secrets.Resolve(f.filePath, *f.value)
		if err != nil {
			return errors.New(err).
				Component("conf").
				Category(errors.CategoryConfiguration).
				Context("operation", "resolve_secret").
				Context("setting", f.name).
				Build()
		}
		*f.value = resolved
	}
	return nil
}

// initViper registers defaults and environment bindings and reads the config file
func initViper(configFile string) error {
	setDefaultConfig()

	if err := configureEnvironmentVariables(); err != nil {
		// Invalid env values are reported but the remaining config still loads
		GetLogger().Warn("environment variable issues", logger.Error(err))
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")

		configPaths, err := GetDefaultConfigPaths()
		if err != nil {
			return fmt.Errorf("error getting default config paths: %w", err)
		}
		for _, path := range configPaths {
			viper.AddConfigPath(path)
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			GetLogger().Info("no config file found, using defaults and environment")
			return nil
		}
		return errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("operation", "read_config").
			Context("config_file", configFile).
			Build()
	}

	GetLogger().Debug("config file loaded", logger.String("path", viper.ConfigFileUsed()))
	return nil
}

// GetDefaultConfigPaths returns the config search paths for the current OS
func GetDefaultConfigPaths() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategorySystem).
			Context("operation", "get_home_directory").
			Build()
	}

	if runtime.GOOS == osWindows {
		return []string{
			".",
			filepath.Join(homeDir, "AppData", "Roaming", appName),
		}, nil
	}

	return []string{
		".",
		filepath.Join(homeDir, ".config", appName),
		filepath.Join("/etc", appName),
	}, nil
}

// GetSettings returns the most recently loaded settings, or nil before Load
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// Redacted returns a copy of the settings with credentials masked
func (s *Settings) Redacted() Settings {
	c := *s
	if c.MQTT.Password != "" {
		c.MQTT.Password = "[REDACTED]"
	}
	if c.API.Token != "" {
		c.API.Token = "[REDACTED]"
	}
	if c.Sentry.DSN != "" {
		c.Sentry.DSN = "[REDACTED]"
	}
	return c
}

// ToYAML renders the settings as YAML
func (s *Settings) ToYAML() ([]byte, error) {
	data, err := yaml.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("error marshaling settings to YAML: %w", err)
	}
	return data, nil
}

// SaveYAMLConfig writes settings to configPath atomically.
// The file is rewritten, comments are not preserved.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := settings.ToYAML()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer func() { _ = os.Remove(tempFileName) }()

	if _, err := tempFile.Write(yamlData); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	if err := os.Rename(tempFileName, configPath); err != nil {
		return fmt.Errorf("error replacing config file: %w", err)
	}

	return nil
}
