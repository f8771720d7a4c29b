package mqtt

import (
	"encoding/json"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/tphakala/voicechanger/internal/errors"
)

// Command names accepted on the command topic
const (
	CommandStart = "start"
	CommandStop  = "stop"
	CommandPitch = "pitch"
)

// Command is a parsed inbound command
type Command struct {
	Name  string
	Pitch float32
}

// commandJSON is the JSON form of a command, e.g. {"pitch": 1.5} or {"running": true}
type commandJSON struct {
	Running *bool    `json:"running"`
	Pitch   *float32 `json:"pitch"`
}

// ParseCommand parses a command payload. Accepted forms:
//
//	start | on
//	stop | off
//	pitch <v> | pitch=<v>
//	{"running": true|false}
//	{"pitch": <v>}
func ParseCommand(payload []byte) (Command, error) {
	text := strings.TrimSpace(string(payload))
	if strings.HasPrefix(text, "{") {
		return parseJSONCommand(text)
	}

	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return r == ' ' || r == '=' || r == '\t'
	})
	if len(fields) == 0 {
		return Command{}, commandError("empty command", text)
	}

	switch fields[0] {
	case CommandStart, "on":
		if len(fields) == 1 {
			return Command{Name: CommandStart}, nil
		}
	case CommandStop, "off":
		if len(fields) == 1 {
			return Command{Name: CommandStop}, nil
		}
	case CommandPitch:
		if len(fields) != 2 {
			return Command{}, commandError("pitch requires one value", text)
		}
		v, err := strconv.ParseFloat(fields[1], 32)
		if err != nil {
			return Command{}, commandError("invalid pitch value", text)
		}
		return Command{Name: CommandPitch, Pitch: float32(v)}, nil
	}
	return Command{}, commandError("unknown command", text)
}

func parseJSONCommand(text string) (Command, error) {
	var c commandJSON
	if err := json.Unmarshal([]byte(text), &c); err != nil {
		return Command{}, commandError("malformed JSON command", text)
	}
	switch {
	case c.Pitch != nil && c.Running == nil:
		return Command{Name: CommandPitch, Pitch: *c.Pitch}, nil
	case c.Running != nil && c.Pitch == nil:
		if *c.Running {
			return Command{Name: CommandStart}, nil
		}
		return Command{Name: CommandStop}, nil
	}
	return Command{}, commandError("JSON command needs exactly one of running or pitch", text)
}

func commandError(msg, payload string) error {
	return commandErrorWithLimit(msg, payload, 64)
}

// commandErrorWithLimit keeps at most limit bytes of payload, cut on a rune boundary
func commandErrorWithLimit(msg, payload string, limit int) error {
	if len(payload) > limit {
		n := limit
		for n > 0 && !utf8.RuneStart(payload[n]) {
			n--
		}
		payload = payload[:n]
	}
	return errors.Newf("%s", msg).
		Component(componentMQTT).
		Category(errors.CategoryValidation).
		Context("payload", payload).
		Build()
}
