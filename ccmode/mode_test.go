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

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	for _, valid := range []string{"off", "on", "devtools"} {
		mode, err := ParseMode(valid)
		require.NoError(t, err)
		assert.Equal(t, Mode(valid), mode)
	}

	for _, invalid := range []string{"", "On", "dev-tools", "unknown"} {
		_, err := ParseMode(invalid)
		assert.Error(t, err, "mode %q", invalid)
	}
}

func TestSettingsModeRoundTrip(t *testing.T) {
	for _, m := range []Mode{ModeOff, ModeOn, ModeDevTools} {
		settings, err := SettingsForMode(m)
		require.NoError(t, err)
		assert.Equal(t, m, settings.Mode())
		assert.Equal(t, settings, settingsFromBits(settings.bits()))
	}

	_, err := SettingsForMode(ModeUnknown)
	assert.Error(t, err)
}

func TestForeignSettingsReportUnknownMode(t *testing.T) {
	// Devtools without enable is a combination this tool never stages.
	foreign := Settings{EnableDevtools: true}
	assert.Equal(t, ModeUnknown, foreign.Mode())

	// The knobs stay fully reportable even when no named mode matches.
	knobs := foreign.Map()
	require.Len(t, knobs, 4)
	assert.Equal(t, "enable-devtools", knobs[1].Name)
	assert.True(t, knobs[1].Value)
}

func TestDecodeActiveMode(t *testing.T) {
	assert.Equal(t, ModeOff, decodeActiveMode(0x0))
	assert.Equal(t, ModeOn, decodeActiveMode(0x1))
	assert.Equal(t, ModeDevTools, decodeActiveMode(0x3))
	assert.Equal(t, ModeUnknown, decodeActiveMode(0x2))
	// Bits above the mode field are ignored.
	assert.Equal(t, ModeOn, decodeActiveMode(0xff00_0001))
}
