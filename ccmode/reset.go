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
	"errors"
	"fmt"
	"log/slog"

	"github.com/cenkalti/backoff/v4"
	"github.com/confidentsecurity/gpuadmin/pcidev"
)

// Strategy picks which primitive triggers the reset. The polling and
// verification that follow are shared.
type Strategy string

const (
	// OSReset asks the host's device-management layer for a function-level
	// reset through the transport's reset trigger.
	OSReset Strategy = "os"
	// ToolReset issues the reset sequence directly through the device's own
	// registers.
	ToolReset Strategy = "tool"
)

// regPMCEnable gates the card's engines; cycling it is the tool-mediated
// reset sequence.
const regPMCEnable = 0x200

// ResetState is where a reset operation currently stands.
type ResetState string

const (
	StateIdle                  ResetState = "idle"
	StateResetRequested        ResetState = "reset-requested"
	StateAwaitingReenumeration ResetState = "awaiting-reenumeration"
	StateVerified              ResetState = "verified"
	StateTimedOut              ResetState = "timed-out"
	StateFailed                ResetState = "failed"
)

// Orchestrator commits staged CC settings by resetting the device and
// verifying the mode it comes back with. At most one reset is attempted per
// invocation; none of the failure outcomes are retried automatically.
type Orchestrator struct {
	t      pcidev.Transport
	client *Client
	cfg    Config
	state  ResetState
}

func NewOrchestrator(t pcidev.Transport, client *Client, cfg Config) *Orchestrator {
	return &Orchestrator{t: t, client: client, cfg: cfg, state: StateIdle}
}

// State reports where the most recent reset operation ended up.
func (o *Orchestrator) State() ResetState {
	return o.state
}

func (o *Orchestrator) transition(s ResetState, d pcidev.Device) {
	o.state = s
	slog.Debug("reset state", "device", d.BDF, "state", s)
}

// CommitPending activates the staged pending settings: it records the staged
// mode, triggers exactly one reset via the chosen strategy, waits for the
// device to re-enumerate, and verifies the active mode equals what was
// staged. This is the one blocking operation in the pipeline.
func (o *Orchestrator) CommitPending(ctx context.Context, d pcidev.Device, strategy Strategy) error {
	pending, err := o.client.QuerySettings(ctx, d)
	if err != nil {
		return fmt.Errorf("read staged settings before reset: %w", err)
	}
	staged := pending.Mode()
	if staged == ModeUnknown {
		// Nothing to verify the reset against; surface instead of resetting
		// into an unverifiable state.
		return fmt.Errorf("%w on %s: %+v", ErrUnknownPending, d.BDF, pending)
	}

	slog.Info("resetting device to activate staged CC mode",
		"device", d.BDF, "strategy", strategy, "staged_mode", staged)

	o.transition(StateResetRequested, d)
	if err := o.triggerReset(ctx, d, strategy); err != nil {
		o.transition(StateFailed, d)
		return fmt.Errorf("trigger %s reset of %s: %w", strategy, d.BDF, err)
	}

	o.transition(StateAwaitingReenumeration, d)
	if err := o.awaitReenumeration(ctx, d); err != nil {
		if errors.Is(err, ErrResetTimeout) {
			o.transition(StateTimedOut, d)
		} else {
			o.transition(StateFailed, d)
		}
		return err
	}

	active, err := o.client.QueryActiveMode(ctx, d)
	if err != nil {
		o.transition(StateFailed, d)
		return fmt.Errorf("verify mode after reset of %s: %w", d.BDF, err)
	}
	if active != staged {
		o.transition(StateFailed, d)
		return fmt.Errorf("%w: %s is %q, staged %q", ErrActivationMismatch, d.BDF, active, staged)
	}

	o.transition(StateVerified, d)
	slog.Info("CC mode active", "device", d.BDF, "mode", active)
	return nil
}

func (o *Orchestrator) triggerReset(ctx context.Context, d pcidev.Device, strategy Strategy) error {
	switch strategy {
	case OSReset:
		return o.t.Reset(ctx, d.BDF)
	case ToolReset:
		// Cycle the engine-enable register: gate everything off, then back
		// on. The card re-runs its boot sequence and picks up the pending
		// settings bank.
		if err := o.t.Write32(ctx, d.BDF, regPMCEnable, 0x0); err != nil {
			return err
		}
		return o.t.Write32(ctx, d.BDF, regPMCEnable, 0xffffffff)
	default:
		return fmt.Errorf("unknown reset strategy %q", strategy)
	}
}

// awaitReenumeration polls until the device answers again at its BDF or the
// configured timeout elapses. A device mid-reset being absent or reading
// all-ones is expected; only privilege errors abort the wait early.
func (o *Orchestrator) awaitReenumeration(ctx context.Context, d pcidev.Device) error {
	interval := o.cfg.PollInterval
	if interval <= 0 {
		interval = DefaultConfig().PollInterval
	}
	attempts := uint64(o.cfg.Timeout / interval)
	if attempts == 0 {
		attempts = 1
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(interval), attempts), ctx)

	err := backoff.Retry(func() error {
		_, err := pcidev.Refresh(ctx, o.t, d)
		if err != nil {
			return err
		}
		boot, err := o.t.Read32(ctx, d.BDF, RegBoot0)
		if err != nil {
			if errors.Is(err, pcidev.ErrAccessDenied) {
				return backoff.Permanent(err)
			}
			return err
		}
		if boot == badBoot0 {
			return fmt.Errorf("device %s still reads all-ones", d.BDF)
		}
		return nil
	}, policy)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, pcidev.ErrAccessDenied) {
			return err
		}
		return fmt.Errorf("%w: %s after %s", ErrResetTimeout, d.BDF, o.cfg.Timeout)
	}

	return nil
}
