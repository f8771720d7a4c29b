// discovery.go: Home Assistant MQTT auto-discovery implementation.
// See: https://www.home-assistant.io/integrations/mqtt/#mqtt-discovery
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/tphakala/voicechanger/internal/logger"
)

// Entity type constants to avoid magic strings
const (
	EntityStatus = "status"
	EntitySwitch = "running"
	EntityPitch  = "pitch"
)

// deviceIDPrefix is the standard prefix for all voice changer device identifiers
const deviceIDPrefix = "voicechanger"

// pitchStep is the slider step exposed to Home Assistant
const pitchStep = 0.05

// idSanitizer replaces invalid characters in IDs with underscores.
// Home Assistant requires IDs to contain only [a-zA-Z0-9_-].
var idSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// SanitizeID ensures the ID contains only valid characters for MQTT topics and HA entity IDs.
func SanitizeID(id string) string {
	sanitized := idSanitizer.ReplaceAllString(id, "_")
	for strings.Contains(sanitized, "__") {
		sanitized = strings.ReplaceAll(sanitized, "__", "_")
	}
	sanitized = strings.Trim(sanitized, "_")
	if sanitized == "" {
		sanitized = "unknown"
	}
	return sanitized
}

// DiscoveryPayload represents a Home Assistant MQTT discovery message.
type DiscoveryPayload struct {
	Name                string           `json:"name"`
	UniqueID            string           `json:"unique_id"`
	StateTopic          string           `json:"state_topic"`
	ValueTemplate       string           `json:"value_template,omitempty"`
	CommandTopic        string           `json:"command_topic,omitempty"`
	CommandTemplate     string           `json:"command_template,omitempty"`
	PayloadOn           string           `json:"payload_on,omitempty"`
	PayloadOff          string           `json:"payload_off,omitempty"`
	StateOn             string           `json:"state_on,omitempty"`
	StateOff            string           `json:"state_off,omitempty"`
	Min                 float32          `json:"min,omitempty"`
	Max                 float32          `json:"max,omitempty"`
	Step                float32          `json:"step,omitempty"`
	Mode                string           `json:"mode,omitempty"`
	DeviceClass         string           `json:"device_class,omitempty"`
	Icon                string           `json:"icon,omitempty"`
	EntityCategory      string           `json:"entity_category,omitempty"`
	PayloadAvailable    string           `json:"payload_available,omitempty"`
	PayloadNotAvailable string           `json:"payload_not_available,omitempty"`
	AvailabilityTopic   string           `json:"availability_topic,omitempty"`
	Device              DiscoveryDevice  `json:"device"`
	Origin              *DiscoveryOrigin `json:"origin,omitempty"`
}

// DiscoveryDevice represents the device information in a discovery payload.
type DiscoveryDevice struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
	SWVersion    string   `json:"sw_version,omitempty"`
}

// DiscoveryOrigin provides information about the software creating the discovery message.
type DiscoveryOrigin struct {
	Name      string `json:"name"`
	SWVersion string `json:"sw_version,omitempty"`
}

// DiscoveryConfig holds configuration for generating discovery payloads.
type DiscoveryConfig struct {
	DiscoveryPrefix string // Home Assistant discovery topic prefix (default: homeassistant)
	BaseTopic       string // Base MQTT topic for state messages
	DeviceName      string // Device name shown in Home Assistant
	NodeID          string // Node identifier, typically the MQTT client ID
	Version         string // Software version
	MinPitch        float32
	MaxPitch        float32
}

// Publisher handles publishing Home Assistant discovery messages.
type Publisher struct {
	client Client
	config DiscoveryConfig
}

// NewDiscoveryPublisher creates a new discovery publisher.
func NewDiscoveryPublisher(client Client, config *DiscoveryConfig) *Publisher {
	return &Publisher{
		client: client,
		config: *config,
	}
}

// PublishDiscovery publishes the status sensor, the run switch and the pitch number.
func (p *Publisher) PublishDiscovery(ctx context.Context) error {
	log := GetLogger()
	log.Info("publishing Home Assistant discovery messages",
		logger.String("discovery_prefix", p.config.DiscoveryPrefix))

	nodeID := SanitizeID(p.config.NodeID)
	deviceID := p.deviceID(nodeID)
	device := DiscoveryDevice{
		Identifiers:  []string{deviceID},
		Name:         p.config.DeviceName,
		Manufacturer: "voicechanger",
		Model:        "Pitch Shifter",
		SWVersion:    p.config.Version,
	}
	availability := AvailabilityTopic(p.config.BaseTopic)
	state := StateTopic(p.config.BaseTopic)
	command := CommandTopic(p.config.BaseTopic)

	entities := []struct {
		component string
		entity    string
		payload   DiscoveryPayload
	}{
		{"binary_sensor", EntityStatus, DiscoveryPayload{
			Name:                "Status",
			UniqueID:            deviceID + "_status",
			StateTopic:          availability,
			DeviceClass:         "connectivity",
			EntityCategory:      "diagnostic",
			PayloadOn:           PayloadOnline,
			PayloadOff:          PayloadOffline,
			PayloadAvailable:    PayloadOnline,
			PayloadNotAvailable: PayloadOffline,
		}},
		{"switch", EntitySwitch, DiscoveryPayload{
			Name:              "Voice Changer",
			UniqueID:          deviceID + "_running",
			StateTopic:        state,
			ValueTemplate:     "{{ 'ON' if value_json.running else 'OFF' }}",
			CommandTopic:      command,
			PayloadOn:         CommandStart,
			PayloadOff:        CommandStop,
			StateOn:           "ON",
			StateOff:          "OFF",
			Icon:              "mdi:account-voice",
			AvailabilityTopic: availability,
		}},
		{"number", EntityPitch, DiscoveryPayload{
			Name:              "Pitch",
			UniqueID:          deviceID + "_pitch",
			StateTopic:        state,
			ValueTemplate:     "{{ value_json.pitch }}",
			CommandTopic:      command,
			CommandTemplate:   CommandPitch + " {{ value }}",
			Min:               p.config.MinPitch,
			Max:               p.config.MaxPitch,
			Step:              pitchStep,
			Mode:              "slider",
			Icon:              "mdi:tune-vertical",
			AvailabilityTopic: availability,
		}},
	}

	for _, e := range entities {
		payload := e.payload
		payload.Device = device
		payload.Origin = p.defaultOrigin()
		if err := p.publishPayload(ctx, p.getEntityTopic(e.component, nodeID, e.entity), &payload); err != nil {
			log.Error("failed to publish discovery",
				logger.String("entity", e.entity),
				logger.Error(err))
			return err
		}
	}

	log.Info("Home Assistant discovery messages published")
	return nil
}

// publishPayload marshals and publishes a discovery payload.
func (p *Publisher) publishPayload(ctx context.Context, topic string, payload *DiscoveryPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal discovery payload: %w", err)
	}

	GetLogger().Debug("publishing discovery message",
		logger.String("topic", topic),
		logger.Int("payload_size", len(data)))

	// Discovery messages must be retained
	return p.client.PublishWithRetain(ctx, topic, string(data), true)
}

// getEntityTopic constructs the MQTT discovery topic for an entity.
func (p *Publisher) getEntityTopic(component, nodeID, entity string) string {
	return fmt.Sprintf("%s/%s/%s/%s/config", p.config.DiscoveryPrefix, component, nodeID, entity)
}

// defaultOrigin returns the standard origin block for discovery payloads.
func (p *Publisher) defaultOrigin() *DiscoveryOrigin {
	return &DiscoveryOrigin{
		Name:      "voicechanger",
		SWVersion: p.config.Version,
	}
}

func (p *Publisher) deviceID(nodeID string) string {
	return fmt.Sprintf("%s_%s", deviceIDPrefix, nodeID)
}

// RemoveDiscovery publishes empty payloads to remove all discovery entries.
func (p *Publisher) RemoveDiscovery(ctx context.Context) error {
	log := GetLogger()
	log.Info("removing Home Assistant discovery messages")

	nodeID := SanitizeID(p.config.NodeID)
	for _, e := range []struct{ component, entity string }{
		{"binary_sensor", EntityStatus},
		{"switch", EntitySwitch},
		{"number", EntityPitch},
	} {
		topic := p.getEntityTopic(e.component, nodeID, e.entity)
		if err := p.client.PublishWithRetain(ctx, topic, "", true); err != nil {
			log.Warn("failed to remove discovery",
				logger.String("topic", topic),
				logger.Error(err))
		}
	}
	return nil
}
