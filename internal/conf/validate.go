// conf/validate.go

package conf

import (
	"fmt"
	"net"
	"net/url"
	"slices"
	"strings"
)

// SupportedBackends lists the accepted engine.backend values
var SupportedBackends = []string{"", "auto", "alsa", "pulseaudio", "jack", "wasapi", "dsound", "coreaudio", "null"}

// Engine parameter limits
const (
	minWavelength      = 0.5  // ms
	maxWavelength      = 50.0 // ms
	minSampleRate      = 8000
	maxSampleRate      = 192000
	maxFramesPerBuffer = 8192
	bytesPerFrame      = 4 // mono float32
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	validators := []func(*Settings) error{
		func(s *Settings) error { return validateEngineSettings(&s.Engine) },
		func(s *Settings) error { return validateSessionSettings(&s.Session) },
		func(s *Settings) error { return validateControllerSettings(&s.Controller) },
		func(s *Settings) error { return validateAPISettings(&s.API) },
		func(s *Settings) error { return validateMQTTSettings(&s.MQTT) },
		func(s *Settings) error { return validateSentrySettings(&s.Sentry) },
	}

	for _, validate := range validators {
		if err := validate(settings); err != nil {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateEngineSettings(s *EngineSettings) error {
	var errs []string

	if s.Wavelength < minWavelength || s.Wavelength > maxWavelength {
		errs = append(errs, fmt.Sprintf("engine.wavelength must be between %.1f and %.1f ms, got %v", minWavelength, maxWavelength, s.Wavelength))
	}
	if s.SampleRate < minSampleRate || s.SampleRate > maxSampleRate {
		errs = append(errs, fmt.Sprintf("engine.samplerate must be between %d and %d, got %d", minSampleRate, maxSampleRate, s.SampleRate))
	}
	if s.FramesPerBuffer == 0 || s.FramesPerBuffer > maxFramesPerBuffer {
		errs = append(errs, fmt.Sprintf("engine.framesperbuffer must be between 1 and %d, got %d", maxFramesPerBuffer, s.FramesPerBuffer))
	}
	// Room for at least two device periods in flight
	if minRing := int(s.FramesPerBuffer) * bytesPerFrame * 2; s.RingBufferSize < minRing {
		errs = append(errs, fmt.Sprintf("engine.ringbuffersize must be at least %d bytes, got %d", minRing, s.RingBufferSize))
	}
	if !slices.Contains(SupportedBackends, strings.ToLower(s.Backend)) {
		errs = append(errs, fmt.Sprintf("engine.backend %q is not supported", s.Backend))
	}

	return joinErrors(errs)
}

func validateSessionSettings(s *SessionSettings) error {
	if s.OperationTimeout < 0 {
		return fmt.Errorf("session.operationtimeout must not be negative")
	}
	return nil
}

func validateControllerSettings(s *ControllerSettings) error {
	if s.MinPitch <= 0 {
		return fmt.Errorf("controller.minpitch must be positive, got %v", s.MinPitch)
	}
	if s.MaxPitch <= s.MinPitch {
		return fmt.Errorf("controller.maxpitch (%v) must be greater than controller.minpitch (%v)", s.MaxPitch, s.MinPitch)
	}
	return nil
}

func validateAPISettings(s *APISettings) error {
	if !s.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(s.Listen); err != nil {
		return fmt.Errorf("api.listen %q is not a valid host:port: %w", s.Listen, err)
	}
	return nil
}

func validateMQTTSettings(s *MQTTSettings) error {
	if !s.Enabled {
		return nil
	}

	var errs []string
	if u, err := url.Parse(s.Broker); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Sprintf("mqtt.broker %q must be a URL like tcp://host:1883", s.Broker))
	}
	if s.Topic == "" {
		errs = append(errs, "mqtt.topic is required")
	} else if strings.ContainsAny(s.Topic, "+#") {
		errs = append(errs, fmt.Sprintf("mqtt.topic %q must not contain wildcards", s.Topic))
	}
	if s.CommandRate <= 0 {
		errs = append(errs, "mqtt.commandrate must be positive")
	}

	return joinErrors(errs)
}

func validateSentrySettings(s *SentrySettings) error {
	if !s.Enabled {
		return nil
	}
	if s.DSN == "" {
		return fmt.Errorf("sentry.dsn is required when sentry is enabled")
	}
	if s.SampleRate < 0 || s.SampleRate > 1 {
		return fmt.Errorf("sentry.samplerate must be between 0 and 1, got %v", s.SampleRate)
	}
	return nil
}

func joinErrors(errs []string) error {
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%s", strings.Join(errs, "; "))
}
