package mqtt

import (
	"encoding/json"
	"time"

	"github.com/tphakala/voicechanger/internal/controller"
)

// Availability payloads published to <topic>/status
const (
	PayloadOnline  = "online"
	PayloadOffline = "offline"
)

// StateDTO is the retained JSON document published to <topic>/state.
// Field names are part of the MQTT contract used by automations.
type StateDTO struct {
	Permission bool      `json:"permission"`
	Running    bool      `json:"running"`
	Pitch      float32   `json:"pitch"`
	MinPitch   float32   `json:"min_pitch"`
	MaxPitch   float32   `json:"max_pitch"`
	LastError  string    `json:"last_error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewStateDTO creates a StateDTO from the controller state.
func NewStateDTO(s controller.State, minPitch, maxPitch float32) StateDTO {
	return StateDTO{
		Permission: s.Permission,
		Running:    s.Running,
		Pitch:      s.Pitch,
		MinPitch:   minPitch,
		MaxPitch:   maxPitch,
		LastError:  s.LastError,
		Timestamp:  time.Now().UTC(),
	}
}

// Marshal renders the DTO as JSON.
func (d StateDTO) Marshal() (string, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// StateTopic returns the topic receiving the retained session state.
func StateTopic(base string) string {
	return base + "/state"
}

// CommandTopic returns the topic the bridge accepts commands on.
func CommandTopic(base string) string {
	return base + "/set"
}

// AvailabilityTopic returns the online/offline topic.
func AvailabilityTopic(base string) string {
	return base + "/status"
}
