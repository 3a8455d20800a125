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
	"log/slog"

	"github.com/confidentsecurity/gpuadmin/pcidev"
)

// BAR0 register offsets. Boot 0 is the first register of the card's master
// control space and reads back 0xffffffff when the device has fallen off the
// bus.
const (
	RegBoot0 = 0x0
	// RegCCActive holds the mode the device currently operates under. Low
	// bits: 0x0 off, 0x1 on, 0x3 on with devtools.
	RegCCActive = 0x001182cc
	// RegCCPending holds the staged knobs that take effect on next reset.
	RegCCPending = 0x001182d0
)

const badBoot0 = 0xffffffff

const activeModeMask = 0x3

// Client speaks the CC-mode register protocol against one selected device at
// a time. It holds no device state: every operation re-validates the device
// through the transport before touching its registers, because another
// process or a physical event can change the hardware between calls.
type Client struct {
	t pcidev.Transport
}

func NewClient(t pcidev.Transport) *Client {
	return &Client{t: t}
}

// validate confirms the device is still present at its BDF with the same
// identity, is a generation this tool supports, and answers on BAR0. Called
// at the top of every operation.
func (c *Client) validate(ctx context.Context, d pcidev.Device) error {
	cur, err := pcidev.Refresh(ctx, c.t, d)
	if err != nil {
		return err
	}

	if !cur.Supported() {
		return fmt.Errorf("%w: %s [%04x:%04x]", ErrUnsupportedDevice, cur.BDF, cur.VendorID, cur.DeviceID)
	}

	boot, err := c.t.Read32(ctx, d.BDF, RegBoot0)
	if err != nil {
		return fmt.Errorf("read boot register of %s: %w", d.BDF, err)
	}
	if boot == badBoot0 {
		return fmt.Errorf("%w: %s reads all-ones, device not responding", pcidev.ErrDeviceUnavailable, d.BDF)
	}

	return nil
}

// QueryActiveMode reads the mode the device is operating under right now.
func (c *Client) QueryActiveMode(ctx context.Context, d pcidev.Device) (Mode, error) {
	if err := c.validate(ctx, d); err != nil {
		return "", err
	}

	raw, err := c.t.Read32(ctx, d.BDF, RegCCActive)
	if err != nil {
		return "", fmt.Errorf("read active CC mode of %s: %w", d.BDF, err)
	}

	return decodeActiveMode(raw), nil
}

func decodeActiveMode(raw uint32) Mode {
	switch raw & activeModeMask {
	case 0x0:
		return ModeOff
	case 0x1:
		return ModeOn
	case 0x3:
		return ModeDevTools
	default:
		return ModeUnknown
	}
}

// QuerySettings reads the full pending knob set, whether or not it matches a
// named mode.
func (c *Client) QuerySettings(ctx context.Context, d pcidev.Device) (Settings, error) {
	if err := c.validate(ctx, d); err != nil {
		return Settings{}, err
	}
	return c.readSettings(ctx, d)
}

func (c *Client) readSettings(ctx context.Context, d pcidev.Device) (Settings, error) {
	raw, err := c.t.Read32(ctx, d.BDF, RegCCPending)
	if err != nil {
		return Settings{}, fmt.Errorf("read pending CC settings of %s: %w", d.BDF, err)
	}
	return settingsFromBits(raw), nil
}

// QueryState reads the active mode and the mode implied by the pending
// settings in one pass.
func (c *Client) QueryState(ctx context.Context, d pcidev.Device) (State, error) {
	if err := c.validate(ctx, d); err != nil {
		return State{}, err
	}

	rawActive, err := c.t.Read32(ctx, d.BDF, RegCCActive)
	if err != nil {
		return State{}, fmt.Errorf("read active CC mode of %s: %w", d.BDF, err)
	}
	pending, err := c.readSettings(ctx, d)
	if err != nil {
		return State{}, err
	}

	return State{Active: decodeActiveMode(rawActive), Pending: pending.Mode()}, nil
}

// SetMode stages the register values for target into the pending bank. It is
// staging only: the active mode register is never written, and the new mode
// takes effect only after a reset. Staging a value already staged is a no-op,
// not an error.
func (c *Client) SetMode(ctx context.Context, d pcidev.Device, target Mode) error {
	want, err := SettingsForMode(target)
	if err != nil {
		return err
	}

	if err := c.validate(ctx, d); err != nil {
		return err
	}

	current, err := c.readSettings(ctx, d)
	if err != nil {
		return err
	}
	if current == want {
		slog.Debug("CC settings already staged", "device", d.BDF, "mode", target)
		return nil
	}

	if err := c.t.Write32(ctx, d.BDF, RegCCPending, want.bits()); err != nil {
		return fmt.Errorf("write pending CC settings of %s: %w", d.BDF, err)
	}

	slog.Info("staged CC mode, reset required to activate", "device", d.BDF, "mode", target)
	return nil
}
