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

import "errors"

var (
	// ErrUnsupportedDevice is returned for devices outside the GPU generation
	// this tool is scoped to. The tool refuses to operate rather than
	// silently no-op against unknown register layouts.
	ErrUnsupportedDevice = errors.New("device generation not supported")

	// ErrDeviceRequired is returned when an operation needs a device but the
	// caller selected none.
	ErrDeviceRequired = errors.New("operation requires a device but none was selected")

	// ErrActivationMismatch is returned when a reset completed but the device
	// came back with an active mode different from the staged pending mode.
	// This is surfaced, never retried: re-resetting a trust-boundary device
	// without operator confirmation is unsafe.
	ErrActivationMismatch = errors.New("active mode after reset does not match staged mode")

	// ErrResetTimeout is returned when the device did not re-enumerate within
	// the reset timeout. The previously active mode is still authoritative;
	// the reset is not assumed to have succeeded.
	ErrResetTimeout = errors.New("device did not re-enumerate after reset")

	// ErrUnknownPending is returned when a reset is requested while the
	// pending settings do not correspond to any named mode, so there is no
	// mode to verify the reset against.
	ErrUnknownPending = errors.New("pending settings do not map to a named CC mode")
)
