// Package theme defines the light/dark/system display preference and the pure
// rules that turn it into the mode actually shown.
package theme

import "strings"

// StorageKey is the single slot in the preference store holding the user's choice.
const StorageKey = "blogd-theme"

// DOM contract on the root element.
const (
	DarkClass     = "dark"
	ModeAttribute = "data-mode"
)

// Preference is the user's stated intent. It is the only persisted value.
type Preference string

const (
	System Preference = "system"
	Dark   Preference = "dark"
	Light  Preference = "light"
)

// Cycle is the fixed order the switch walks through.
var Cycle = [...]Preference{System, Dark, Light}

// ParsePreference maps stored text to a Preference. Anything unknown,
// including the empty string, reads as System.
func ParsePreference(s string) Preference {
	switch p := Preference(s); p {
	case System, Dark, Light:
		return p
	default:
		return System
	}
}

// Valid reports whether p is one of the three allowed values.
func (p Preference) Valid() bool {
	return p == System || p == Dark || p == Light
}

// Next returns the value after p in the cycle. Invalid values restart at System's successor.
func (p Preference) Next() Preference {
	for i, c := range Cycle {
		if c == p {
			return Cycle[(i+1)%len(Cycle)]
		}
	}
	return System.Next()
}

func (p Preference) String() string { return string(p) }

// Resolved is the visual mode shown on screen. Derived, never stored.
type Resolved string

const (
	ResolvedDark  Resolved = "dark"
	ResolvedLight Resolved = "light"
)

func (r Resolved) String() string { return string(r) }

// Signal is the operating environment's reported color scheme. SignalUnknown
// means the platform could not answer the query.
type Signal int

const (
	SignalUnknown Signal = iota
	SignalLight
	SignalDark
)

// ParseSignal reads "dark"/"light" as sent by the client runtime, or the
// quoted form of the Sec-CH-Prefers-Color-Scheme header. Anything else is
// SignalUnknown.
func ParseSignal(s string) Signal {
	switch strings.Trim(strings.TrimSpace(s), `"`) {
	case "dark":
		return SignalDark
	case "light":
		return SignalLight
	default:
		return SignalUnknown
	}
}

func (s Signal) String() string {
	switch s {
	case SignalDark:
		return "dark"
	case SignalLight:
		return "light"
	default:
		return "unknown"
	}
}

// Resolve computes the visual mode. An unknown system signal falls back to light.
func Resolve(p Preference, s Signal) Resolved {
	switch p {
	case Dark:
		return ResolvedDark
	case Light:
		return ResolvedLight
	}
	if s == SignalDark {
		return ResolvedDark
	}
	return ResolvedLight
}
