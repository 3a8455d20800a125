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
	"context"
	"fmt"
	"testing"

	"github.com/confidentsecurity/gpuadmin/pcidev"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type regWrite struct {
	Offset uint32
	Val    uint32
}

// fakeGPU is an in-memory Transport holding one device's register file. It
// behaves like the hardware: pulling the device makes every access fail, and
// a reset re-runs boot with whatever is staged in the pending bank.
type fakeGPU struct {
	info       pcidev.Info
	present    bool
	regs       map[uint32]uint32
	writes     []regWrite
	resetCount int
	onReset    func(g *fakeGPU)
}

func newFakeGPU() *fakeGPU {
	return &fakeGPU{
		info:    pcidev.Info{BDF: "0000:01:00.0", VendorID: 0x10de, DeviceID: 0x2331, Name: "H100 PCIe"},
		present: true,
		regs:    map[uint32]uint32{RegBoot0: 0x8a000000},
	}
}

func (g *fakeGPU) device() pcidev.Device {
	return pcidev.Device{
		Index:    0,
		BDF:      g.info.BDF,
		Name:     g.info.Name,
		VendorID: g.info.VendorID,
		DeviceID: g.info.DeviceID,
	}
}

func (g *fakeGPU) Discover(ctx context.Context) ([]pcidev.Info, error) {
	if !g.present {
		return []pcidev.Info{}, nil
	}
	return []pcidev.Info{g.info}, nil
}

func (g *fakeGPU) Read32(ctx context.Context, bdf string, offset uint32) (uint32, error) {
	if !g.present || bdf != g.info.BDF {
		return 0, fmt.Errorf("%w: %s", pcidev.ErrDeviceUnavailable, bdf)
	}
	return g.regs[offset], nil
}

func (g *fakeGPU) Write32(ctx context.Context, bdf string, offset uint32, val uint32) error {
	if !g.present || bdf != g.info.BDF {
		return fmt.Errorf("%w: %s", pcidev.ErrDeviceUnavailable, bdf)
	}
	g.regs[offset] = val
	g.writes = append(g.writes, regWrite{Offset: offset, Val: val})
	if offset == regPMCEnable && val == 0xffffffff {
		g.reset()
	}
	return nil
}

func (g *fakeGPU) Reset(ctx context.Context, bdf string) error {
	if !g.present || bdf != g.info.BDF {
		return fmt.Errorf("%w: %s", pcidev.ErrDeviceUnavailable, bdf)
	}
	g.reset()
	return nil
}

func (g *fakeGPU) reset() {
	g.resetCount++
	if g.onReset != nil {
		g.onReset(g)
	}
}

// adoptPending is an onReset hook that activates whatever is staged, the way
// a healthy device does.
func adoptPending(g *fakeGPU) {
	switch settingsFromBits(g.regs[RegCCPending]).Mode() {
	case ModeOff:
		g.regs[RegCCActive] = 0x0
	case ModeOn:
		g.regs[RegCCActive] = 0x1
	case ModeDevTools:
		g.regs[RegCCActive] = 0x3
	}
}

func (g *fakeGPU) writesTo(offset uint32) []regWrite {
	var out []regWrite
	for _, w := range g.writes {
		if w.Offset == offset {
			out = append(out, w)
		}
	}
	return out
}

func TestQueryActiveMode(t *testing.T) {
	g := newFakeGPU()
	g.regs[RegCCActive] = 0x1
	client := NewClient(g)

	mode, err := client.QueryActiveMode(context.Background(), g.device())
	require.NoError(t, err)
	assert.Equal(t, ModeOn, mode)
}

func TestSetModeStagesWithoutActivating(t *testing.T) {
	g := newFakeGPU()
	client := NewClient(g)
	ctx := context.Background()
	d := g.device()

	require.NoError(t, client.SetMode(ctx, d, ModeOn))

	// The pending bank now carries the canonical combination for "on".
	settings, err := client.QuerySettings(ctx, d)
	require.NoError(t, err)
	want, _ := SettingsForMode(ModeOn)
	assert.Equal(t, want, settings)

	// The active mode register was never written; activation is reset-only.
	assert.Empty(t, g.writesTo(RegCCActive))
	active, err := client.QueryActiveMode(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, ModeOff, active)

	state, err := client.QueryState(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, State{Active: ModeOff, Pending: ModeOn}, state)
}

func TestSetModeIsIdempotent(t *testing.T) {
	g := newFakeGPU()
	client := NewClient(g)
	ctx := context.Background()
	d := g.device()

	require.NoError(t, client.SetMode(ctx, d, ModeDevTools))
	stateAfterFirst, err := client.QueryState(ctx, d)
	require.NoError(t, err)
	writesAfterFirst := len(g.writesTo(RegCCPending))

	// Staging the same mode again is a no-op, not an error.
	require.NoError(t, client.SetMode(ctx, d, ModeDevTools))
	stateAfterSecond, err := client.QueryState(ctx, d)
	require.NoError(t, err)

	assert.Equal(t, stateAfterFirst, stateAfterSecond)
	assert.Equal(t, writesAfterFirst, len(g.writesTo(RegCCPending)))
}

func TestOperationsOnVanishedDevice(t *testing.T) {
	g := newFakeGPU()
	client := NewClient(g)
	ctx := context.Background()
	d := g.device()

	g.present = false

	_, err := client.QueryActiveMode(ctx, d)
	assert.ErrorIs(t, err, pcidev.ErrDeviceUnavailable)
	_, err = client.QuerySettings(ctx, d)
	assert.ErrorIs(t, err, pcidev.ErrDeviceUnavailable)
	err = client.SetMode(ctx, d, ModeOn)
	assert.ErrorIs(t, err, pcidev.ErrDeviceUnavailable)
}

func TestOperationsOnUnsupportedDevice(t *testing.T) {
	g := newFakeGPU()
	// A Turing T4: real NVIDIA silicon, wrong generation.
	g.info.DeviceID = 0x1eb8
	g.info.Name = "Tesla T4"
	client := NewClient(g)

	_, err := client.QueryActiveMode(context.Background(), g.device())
	assert.ErrorIs(t, err, ErrUnsupportedDevice)

	err = client.SetMode(context.Background(), g.device(), ModeOn)
	assert.ErrorIs(t, err, ErrUnsupportedDevice)
}

func TestDeviceReadingAllOnesIsUnavailable(t *testing.T) {
	g := newFakeGPU()
	g.regs[RegBoot0] = 0xffffffff
	client := NewClient(g)

	_, err := client.QueryActiveMode(context.Background(), g.device())
	assert.ErrorIs(t, err, pcidev.ErrDeviceUnavailable)
}

func TestQuerySettingsReportsForeignCombination(t *testing.T) {
	g := newFakeGPU()
	// Configured outside this tool: devtools bit without enable.
	g.regs[RegCCPending] = settingEnableDevtools
	client := NewClient(g)

	settings, err := client.QuerySettings(context.Background(), g.device())
	require.NoError(t, err)
	assert.Equal(t, ModeUnknown, settings.Mode())
	assert.True(t, settings.EnableDevtools)
	assert.False(t, settings.Enable)
}
