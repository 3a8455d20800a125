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

import "time"

// Config bounds the reset orchestrator's wait for re-enumeration.
type Config struct {
	// PollInterval is how often to probe for the device while it resets.
	PollInterval time.Duration `yaml:"poll_interval"`
	// Timeout is the total time to wait for the device to come back before
	// reporting the reset as timed out.
	Timeout time.Duration `yaml:"timeout"`
}

func DefaultConfig() Config {
	return Config{
		PollInterval: 500 * time.Millisecond,
		// An H100 function-level reset plus firmware boot lands well under
		// this in practice.
		Timeout: 30 * time.Second,
	}
}
