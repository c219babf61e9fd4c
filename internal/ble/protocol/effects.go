package protocol

import (
	"fmt"
	"strings"
)

// Effect is a built-in animation stored in the controller firmware.
type Effect struct {
	Name string
	Code byte
}

// effects is the firmware effect table. Codes are not contiguous per family.
var effects = [...]Effect{
	{"jump_red_green_blue", 0x87},
	{"jump_red_green_blue_yellow_cyan_magenta_white", 0x88},

	{"crossfade_red", 0x8b},
	{"crossfade_green", 0x8c},
	{"crossfade_blue", 0x8d},
	{"crossfade_yellow", 0x8e},
	{"crossfade_cyan", 0x8f},
	{"crossfade_magenta", 0x90},
	{"crossfade_white", 0x91},
	{"crossfade_red_green", 0x92},
	{"crossfade_red_blue", 0x93},
	{"crossfade_green_blue", 0x94},
	{"crossfade_red_green_blue", 0x89},
	{"crossfade_red_green_blue_yellow_cyan_magenta_white", 0x8a},

	{"blink_red", 0x96},
	{"blink_green", 0x97},
	{"blink_blue", 0x98},
	{"blink_yellow", 0x99},
	{"blink_cyan", 0x9a},
	{"blink_magenta", 0x9b},
	{"blink_white", 0x9c},
	{"blink_red_green_blue_yellow_cyan_magenta_white", 0x95},
}

// effectAliases are the short names offered on the command line.
var effectAliases = map[string]string{
	"rainbow":       "crossfade_red_green_blue_yellow_cyan_magenta_white",
	"jump":          "jump_red_green_blue",
	"jump_all":      "jump_red_green_blue_yellow_cyan_magenta_white",
	"crossfade_rgb": "crossfade_red_green_blue",
	"blink":         "blink_red_green_blue_yellow_cyan_magenta_white",
}

var effectsByName = func() map[string]byte {
	m := make(map[string]byte, len(effects))
	for _, e := range effects {
		m[e.Name] = e.Code
	}
	return m
}()

// LookupEffect resolves an effect name or alias to its protocol code.
// Names are matched case-insensitively and "-" is accepted for "_".
func LookupEffect(name string) (byte, error) {
	key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_")
	if full, ok := effectAliases[key]; ok {
		key = full
	}
	code, ok := effectsByName[key]
	if !ok {
		return 0, fmt.Errorf("protocol: %w: %q", ErrUnknownEffect, name)
	}
	return code, nil
}

// EffectName returns the table name for code.
func EffectName(code byte) (string, bool) {
	for _, e := range effects {
		if e.Code == code {
			return e.Name, true
		}
	}
	return "", false
}

// Effects returns a copy of the effect table in table order.
func Effects() []Effect {
	out := make([]Effect, len(effects))
	copy(out, effects[:])
	return out
}
