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

package pcidev

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
)

// Enumerate performs a fresh scan and returns all candidate GPUs in BDF
// order, with indices assigned for this pass. Hardware state can change
// between calls, so results are never cached; callers re-enumerate instead of
// trusting an old list.
func Enumerate(ctx context.Context, t Transport) ([]Device, error) {
	infos, err := t.Discover(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerate devices: %w", err)
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].BDF < infos[j].BDF })

	devices := make([]Device, 0, len(infos))
	for i, info := range infos {
		devices = append(devices, Device{
			Index:    i,
			BDF:      info.BDF,
			Name:     info.Name,
			VendorID: info.VendorID,
			DeviceID: info.DeviceID,
		})
	}

	slog.Debug("enumerated devices", "count", len(devices))
	return devices, nil
}

// Refresh re-enumerates and returns the device currently at d's BDF, or
// ErrDeviceUnavailable when it vanished or the slot now holds different
// hardware. A Device is a capability valid at time of use, not a cached
// guarantee.
func Refresh(ctx context.Context, t Transport, d Device) (Device, error) {
	devices, err := Enumerate(ctx, t)
	if err != nil {
		return Device{}, err
	}
	for _, cur := range devices {
		if cur.BDF != d.BDF {
			continue
		}
		if cur.VendorID != d.VendorID || cur.DeviceID != d.DeviceID {
			return Device{}, fmt.Errorf("%w: %s now holds %04x:%04x, expected %04x:%04x",
				ErrDeviceUnavailable, d.BDF, cur.VendorID, cur.DeviceID, d.VendorID, d.DeviceID)
		}
		return cur, nil
	}
	return Device{}, fmt.Errorf("%w: %s no longer enumerated", ErrDeviceUnavailable, d.BDF)
}
