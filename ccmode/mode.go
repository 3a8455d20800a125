// Copyright 2025 Nonvolatile Inc. d/b/a Confident Security
//
// Licensed under the Functional Source License, Version 1.1,
// ALv2 Future License, the terms and conditions of which are
// set forth in the "LICENSE" file included in the root directory
// of this code repository (the "License"); you may not use this
// file except in compliance with the License. You may obtain
// a copy of the License at
//
// https://fsl.software/FSL-1.1-ALv2.template.md
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ccmode

import "fmt"

// Mode is the confidential computing posture of a GPU.
type Mode string

const (
	// ModeOff disables confidential computing.
	ModeOff Mode = "off"
	// ModeOn enables confidential computing for production.
	ModeOn Mode = "on"
	// ModeDevTools enables confidential computing with debug tooling access.
	ModeDevTools Mode = "devtools"
	// ModeUnknown reports a settings combination this tool never produces,
	// for devices configured by other means. The low-level settings remain
	// fully reportable even when no named mode matches them.
	ModeUnknown Mode = "unknown"
)

// ParseMode parses a user-supplied mode choice. Unknown is not a valid
// target: it exists only to report foreign register combinations.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeOff, ModeOn, ModeDevTools:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("invalid CC mode %q, choose off, on or devtools", s)
	}
}

// Settings are the lower-level knobs that take effect upon the next reset. A
// named Mode is shorthand for one fixed combination of these.
type Settings struct {
	Enable                   bool
	EnableDevtools           bool
	EnableBar0Decoupler      bool
	EnableAllowInbandControl bool
}

// Pending settings register bit layout.
const (
	settingEnable              = 1 << 0
	settingEnableDevtools      = 1 << 1
	settingEnableBar0Decoupler = 1 << 2
	settingAllowInbandControl  = 1 << 3
)

// SettingsForMode returns the canonical knob combination for a named mode.
func SettingsForMode(m Mode) (Settings, error) {
	switch m {
	case ModeOff:
		return Settings{}, nil
	case ModeOn:
		return Settings{Enable: true, EnableBar0Decoupler: true}, nil
	case ModeDevTools:
		return Settings{Enable: true, EnableDevtools: true, EnableAllowInbandControl: true}, nil
	default:
		return Settings{}, fmt.Errorf("no canonical settings for mode %q", m)
	}
}

// Mode maps a knob combination back to its named mode, or ModeUnknown for
// combinations this tool never stages.
func (s Settings) Mode() Mode {
	for _, m := range []Mode{ModeOff, ModeOn, ModeDevTools} {
		canonical, _ := SettingsForMode(m)
		if s == canonical {
			return m
		}
	}
	return ModeUnknown
}

func (s Settings) bits() uint32 {
	var v uint32
	if s.Enable {
		v |= settingEnable
	}
	if s.EnableDevtools {
		v |= settingEnableDevtools
	}
	if s.EnableBar0Decoupler {
		v |= settingEnableBar0Decoupler
	}
	if s.EnableAllowInbandControl {
		v |= settingAllowInbandControl
	}
	return v
}

func settingsFromBits(v uint32) Settings {
	return Settings{
		Enable:                   v&settingEnable != 0,
		EnableDevtools:           v&settingEnableDevtools != 0,
		EnableBar0Decoupler:      v&settingEnableBar0Decoupler != 0,
		EnableAllowInbandControl: v&settingAllowInbandControl != 0,
	}
}

// Map lists knobs by name for display, in the order the hardware documents
// them.
func (s Settings) Map() []Knob {
	return []Knob{
		{"enable", s.Enable},
		{"enable-devtools", s.EnableDevtools},
		{"enable-bar0-decoupler", s.EnableBar0Decoupler},
		{"enable-allow-inband-control", s.EnableAllowInbandControl},
	}
}

// Knob is one named low-level setting and its staged value.
type Knob struct {
	Name  string
	Value bool
}

// State pairs the mode the device currently operates under with the mode
// staged to take effect after the next reset.
type State struct {
	Active  Mode
	Pending Mode
}
