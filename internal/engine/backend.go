package engine

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/gen2brain/malgo"
)

// Backend names accepted in configuration
const (
	BackendAuto       = "auto"
	BackendAlsa       = "alsa"
	BackendPulseAudio = "pulseaudio"
	BackendJack       = "jack"
	BackendWasapi     = "wasapi"
	BackendDSound     = "dsound"
	BackendCoreAudio  = "coreaudio"
	BackendNull       = "null"
)

var backendsByName = map[string]malgo.Backend{
	BackendAlsa:       malgo.BackendAlsa,
	BackendPulseAudio: malgo.BackendPulseaudio,
	BackendJack:       malgo.BackendJack,
	BackendWasapi:     malgo.BackendWasapi,
	BackendDSound:     malgo.BackendDsound,
	BackendCoreAudio:  malgo.BackendCoreaudio,
	BackendNull:       malgo.BackendNull,
}

// resolveBackends maps a configured backend name to the malgo backend list.
// A nil list lets miniaudio pick, except on Linux where ALSA is preferred.
func resolveBackends(name string) ([]malgo.Backend, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || name == BackendAuto {
		if runtime.GOOS == "linux" {
			return []malgo.Backend{malgo.BackendAlsa}, nil
		}
		return nil, nil
	}
	backend, ok := backendsByName[name]
	if !ok {
		return nil, fmt.Errorf("unsupported audio backend %q", name)
	}
	return []malgo.Backend{backend}, nil
}
