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

import "errors"

var (
	// ErrScanUnavailable is returned when the sysfs PCI tree itself cannot be
	// read. This is distinct from a scan that finds zero devices.
	ErrScanUnavailable = errors.New("PCI device scan unavailable")

	// ErrIndexOutOfRange is returned when a device index selects outside the
	// enumerated list.
	ErrIndexOutOfRange = errors.New("device index out of range")

	// ErrNoMatch is returned when a BDF or name substring matches no device.
	ErrNoMatch = errors.New("no device matches")

	// ErrAmbiguous is returned when a BDF substring matches more than one
	// device. A BDF denotes one physical slot and must select unambiguously.
	ErrAmbiguous = errors.New("selection matches multiple devices")

	// ErrAmbiguousDefault is returned when no criterion was given and more
	// than one device is present.
	ErrAmbiguousDefault = errors.New("multiple devices present, select one explicitly")

	// ErrDeviceUnavailable is returned when a device disappeared, or its slot
	// was reassigned, between selection and use.
	ErrDeviceUnavailable = errors.New("device unavailable")

	// ErrAccessDenied is returned when register access requires privileges the
	// process does not have.
	ErrAccessDenied = errors.New("register access denied")

	// ErrInvalidBDF is returned when a PCI address is not in
	// domain:bus:device.function form.
	ErrInvalidBDF = errors.New("invalid PCI address format")
)
