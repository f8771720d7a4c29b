package api

import (
	"time"

	"github.com/tphakala/voicechanger/internal/conf"
	"github.com/tphakala/voicechanger/internal/errors"
)

// Default constants for the HTTP server.
const (
	DefaultReadTimeout     = 10 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 5 * time.Second
	DefaultRequestTimeout  = 10 * time.Second
	DefaultBodyLimit       = "16K"
)

// Config holds the HTTP server configuration.
type Config struct {
	Listen         string   // host:port to bind
	AllowedOrigins []string // CORS allowed origins

	// Token protects the session routes, empty disables authentication
	Token          string
	LoopbackBypass bool // loopback clients need no token

	// Timeouts
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	RequestTimeout  time.Duration // how long a request waits for the session

	BodyLimit string // e.g. "16K"
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Listen:          conf.DefaultAPIListen,
		AllowedOrigins:  []string{"*"},
		ReadTimeout:     DefaultReadTimeout,
		WriteTimeout:    DefaultWriteTimeout,
		IdleTimeout:     DefaultIdleTimeout,
		ShutdownTimeout: DefaultShutdownTimeout,
		RequestTimeout:  DefaultRequestTimeout,
		BodyLimit:       DefaultBodyLimit,
	}
}

// ConfigFromSettings creates a Config from the application settings.
// The request timeout covers a stalled native call plus queueing.
func ConfigFromSettings(settings *conf.Settings) Config {
	cfg := DefaultConfig()
	if settings.API.Listen != "" {
		cfg.Listen = settings.API.Listen
	}
	if len(settings.API.AllowedOrigins) > 0 {
		cfg.AllowedOrigins = settings.API.AllowedOrigins
	}
	cfg.Token = settings.API.Token
	cfg.LoopbackBypass = settings.API.LoopbackBypass
	if t := 2 * settings.Session.OperationTimeout; t > cfg.RequestTimeout {
		cfg.RequestTimeout = t
	}
	return cfg
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var problem string
	switch {
	case c.Listen == "":
		problem = "listen address is required"
	case c.ReadTimeout <= 0:
		problem = "read timeout must be positive"
	case c.WriteTimeout <= 0:
		problem = "write timeout must be positive"
	case c.RequestTimeout <= 0:
		problem = "request timeout must be positive"
	default:
		return nil
	}
	return errors.Newf("invalid API configuration: %s", problem).
		Component(componentAPI).
		Category(errors.CategoryConfiguration).
		Context("listen", c.Listen).
		Build()
}
