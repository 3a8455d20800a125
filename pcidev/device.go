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
	"fmt"
	"regexp"
)

const NvidiaVendorID = 0x10de

// hopperDeviceNames maps the PCI device IDs of the GPU generation this tool
// supports to their marketing names. Devices outside this table are refused
// rather than silently operated on.
var hopperDeviceNames = map[uint16]string{
	0x2330: "H100 SXM5 80GB",
	0x2331: "H100 PCIe",
	0x2339: "H100 NVL",
	0x2322: "H800 PCIe",
	0x2324: "H800 SXM5",
	0x2342: "GH200 120GB",
}

// Device identifies one enumerated GPU. Index is its ordinal position within
// a single enumeration pass and is only stable for that pass; BDF is the
// canonical domain:bus:device.function address.
type Device struct {
	Index    int
	BDF      string
	Name     string
	VendorID uint16
	DeviceID uint16
}

func (d Device) String() string {
	return fmt.Sprintf("GPU %d %s %s [%04x:%04x]", d.Index, d.BDF, d.Name, d.VendorID, d.DeviceID)
}

// Supported reports whether the device belongs to the GPU generation this
// tool knows how to drive.
func (d Device) Supported() bool {
	if d.VendorID != NvidiaVendorID {
		return false
	}
	_, ok := hopperDeviceNames[d.DeviceID]
	return ok
}

var bdfPattern = regexp.MustCompile(`^[0-9a-f]{4}:[0-9a-f]{2}:[0-9a-f]{2}\.[0-7]$`)

// ValidateBDF validates that an address is in canonical
// domain:bus:device.function form, e.g. "0000:01:00.0".
func ValidateBDF(bdf string) bool {
	return bdfPattern.MatchString(bdf)
}
