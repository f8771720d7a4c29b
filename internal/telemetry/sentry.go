// Package telemetry provides opt-in, privacy-filtered error reporting to Sentry.
package telemetry

import (
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/tphakala/voicechanger/internal/conf"
	"github.com/tphakala/voicechanger/internal/errors"
	"github.com/tphakala/voicechanger/internal/logger"
	"github.com/tphakala/voicechanger/internal/privacy"
)

const componentTelemetry = "telemetry"

// flushTimeout bounds how long Close waits for queued events
const flushTimeout = 2 * time.Second

var sentryInitialized atomic.Bool

// PlatformInfo holds privacy-safe platform information for telemetry
type PlatformInfo struct {
	OS           string `json:"os"`
	Architecture string `json:"arch"`
	NumCPU       int    `json:"num_cpu"`
	GoVersion    string `json:"go_version"`
}

// collectPlatformInfo gathers privacy-safe platform information for telemetry
func collectPlatformInfo() PlatformInfo {
	return PlatformInfo{
		OS:           runtime.GOOS,
		Architecture: runtime.GOARCH,
		NumCPU:       runtime.NumCPU(),
		GoVersion:    runtime.Version(),
	}
}

// InitSentry initializes the Sentry SDK and routes enhanced errors to it.
// Nothing is initialized unless telemetry is explicitly enabled.
func InitSentry(settings *conf.SentrySettings, version string) error {
	log := GetLogger()
	if !settings.Enabled {
		log.Debug("Sentry telemetry is disabled (opt-in required)")
		return nil
	}

	return initSentry(settings, version, nil)
}

// initSentry accepts a transport so tests can capture events
func initSentry(settings *conf.SentrySettings, version string, transport sentry.Transport) error {
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              settings.DSN,
		SampleRate:       settings.SampleRate,
		AttachStacktrace: false,
		Environment:      settings.Environment,
		ServerName:       "",
		Release:          fmt.Sprintf("voicechanger@%s", version),
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			return applyPrivacyFilters(event)
		},
		Transport: transport,
	})
	if err != nil {
		return errors.New(err).
			Component(componentTelemetry).
			Category(errors.CategoryConfiguration).
			Context("operation", "sentry_init").
			Build()
	}

	platform := collectPlatformInfo()
	sentry.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("os", platform.OS)
		scope.SetTag("arch", platform.Architecture)
		scope.SetTag("go_version", platform.GoVersion)
		scope.SetContext("platform", map[string]any{
			"num_cpu": platform.NumCPU,
		})
	})

	errors.SetTelemetryReporter(errors.NewSentryReporter(true))
	sentryInitialized.Store(true)

	GetLogger().Info("Sentry telemetry initialized",
		logger.String("environment", settings.Environment),
		logger.String("release", version))
	return nil
}

// IsEnabled reports whether Sentry was initialized
func IsEnabled() bool {
	return sentryInitialized.Load()
}

// Close flushes pending events and detaches the error reporter
func Close() {
	if !sentryInitialized.Swap(false) {
		return
	}
	errors.SetTelemetryReporter(nil)
	if !sentry.Flush(flushTimeout) {
		GetLogger().Warn("timed out flushing telemetry events")
	}
}

// applyPrivacyFilters applies privacy filters to a Sentry event
func applyPrivacyFilters(event *sentry.Event) *sentry.Event {
	event.User = sentry.User{}
	event.ServerName = ""
	event.Message = privacy.ScrubMessage(event.Message)
	for i := range event.Exception {
		event.Exception[i].Value = privacy.ScrubMessage(event.Exception[i].Value)
	}

	if event.Contexts != nil {
		delete(event.Contexts, "device")
		delete(event.Contexts, "os")
		delete(event.Contexts, "runtime")
	}

	for k := range event.Extra {
		if k != "error_type" && k != "component" {
			delete(event.Extra, k)
		}
	}

	if event.Tags != nil {
		delete(event.Tags, "server_name")
		delete(event.Tags, "hostname")
	}

	return event
}

// GetLogger returns the telemetry package logger
func GetLogger() logger.Logger {
	return logger.Global().Module(componentTelemetry)
}
