package engine

import (
	"encoding/hex"
	"strings"

	"github.com/gen2brain/malgo"

	"github.com/tphakala/voicechanger/internal/errors"
)

// DeviceInfo describes an audio device visible to the engine
type DeviceInfo struct {
	Kind      string `json:"kind" yaml:"kind"`
	Index     int    `json:"index" yaml:"index"`
	Name      string `json:"name" yaml:"name"`
	ID        string `json:"id" yaml:"id"`
	IsDefault bool   `json:"default" yaml:"default"`
}

// Device kinds
const (
	KindCapture  = "capture"
	KindPlayback = "playback"
)

// Devices lists capture devices followed by playback devices
func (e *MalgoEngine) Devices() ([]DeviceInfo, error) {
	var result []DeviceInfo
	for _, kind := range []malgo.DeviceType{malgo.Capture, malgo.Playback} {
		infos, err := e.ctx.Devices(kind)
		if err != nil {
			return nil, errors.New(err).
				Component(componentEngine).
				Category(errors.CategoryAudioDevice).
				Context("operation", "enumerate_devices").
				Context("kind", kindName(kind)).
				Build()
		}
		for i := range infos {
			result = append(result, DeviceInfo{
				Kind:      kindName(kind),
				Index:     i,
				Name:      infos[i].Name(),
				ID:        decodeDeviceID(infos[i].ID.String()),
				IsDefault: infos[i].IsDefault == 1,
			})
		}
	}
	return result, nil
}

// findDevice picks the configured device, or the default when want is empty
func (e *MalgoEngine) findDevice(kind malgo.DeviceType, want string) (*malgo.DeviceInfo, error) {
	infos, err := e.ctx.Devices(kind)
	if err != nil {
		return nil, errors.New(err).
			Component(componentEngine).
			Category(errors.CategoryAudioDevice).
			Context("operation", "enumerate_devices").
			Context("kind", kindName(kind)).
			Build()
	}
	if len(infos) == 0 {
		return nil, errors.Newf("no %s devices available", kindName(kind)).
			Component(componentEngine).
			Category(errors.CategoryAudioDevice).
			Context("kind", kindName(kind)).
			Build()
	}

	if want == "" || want == "default" {
		for i := range infos {
			if infos[i].IsDefault == 1 {
				return &infos[i], nil
			}
		}
		return &infos[0], nil
	}

	for i := range infos {
		if matchesDevice(decodeDeviceID(infos[i].ID.String()), infos[i].Name(), want) {
			return &infos[i], nil
		}
	}
	return nil, errors.Newf("%s device %q not found", kindName(kind), want).
		Component(componentEngine).
		Category(errors.CategoryAudioDevice).
		Context("kind", kindName(kind)).
		Context("device_name", want).
		Build()
}

// matchesDevice reports whether a device matches the configured name or ID
func matchesDevice(decodedID, name, want string) bool {
	return decodedID == want || strings.Contains(name, want)
}

// decodeDeviceID turns the hex device ID reported by miniaudio into text.
// IDs that are not hex encoded text are returned unchanged.
func decodeDeviceID(id string) string {
	raw, err := hex.DecodeString(id)
	if err != nil {
		return id
	}
	// Backends pad IDs with NUL bytes
	return strings.TrimRight(string(raw), "\x00")
}

func kindName(kind malgo.DeviceType) string {
	if kind == malgo.Playback {
		return KindPlayback
	}
	return KindCapture
}
