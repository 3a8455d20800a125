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

// Package nvmlname resolves GPU marketing names through NVML when the driver
// is loaded. Register-level enumeration does not depend on it: after a CC
// mode switch the driver is often not attached yet, so callers fall back to
// the built-in device-ID table when NVML is unavailable.
package nvmlname

import (
	"fmt"

	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

// Namer implements pcidev.Namer on top of a live NVML session.
type Namer struct{}

// New initializes NVML. Returns an error when no driver is loaded, which
// callers treat as "no namer available" rather than fatal.
func New() (*Namer, error) {
	if ret := nvml.Init(); ret != nvml.SUCCESS {
		return nil, fmt.Errorf("nvml init: %s", nvml.ErrorString(ret))
	}
	return &Namer{}, nil
}

// NameByBDF resolves the marketing name of the device at the given PCI
// address, if NVML knows it.
func (n *Namer) NameByBDF(bdf string) (string, bool) {
	dev, ret := nvml.DeviceGetHandleByPciBusId(bdf)
	if ret != nvml.SUCCESS {
		return "", false
	}
	name, ret := dev.GetName()
	if ret != nvml.SUCCESS {
		return "", false
	}
	return name, true
}

// Shutdown releases the NVML session.
func (n *Namer) Shutdown() {
	_ = nvml.Shutdown()
}
