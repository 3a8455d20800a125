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
	"errors"
	"fmt"
	"strings"
)

// DefaultIndex is the sentinel meaning "no index was given". It selects the
// only device when exactly one exists and is an error otherwise.
const DefaultIndex = -1

// Criterion is how the caller names the device it wants. Exactly one of the
// fields may be set per invocation; zero values mean "not set" (Index uses
// DefaultIndex as its zero).
type Criterion struct {
	// Index selects by ordinal position in the enumerated list.
	Index int64
	// BDF selects by a case-sensitive substring of the PCI address. Must
	// match exactly one device.
	BDF string
	// Name selects by a case-sensitive substring of the device name. If
	// several identical cards match, the first in enumeration order wins.
	Name string
	// None means no device: operations that need one fail instead.
	None bool
}

// DefaultCriterion returns a criterion with nothing selected yet.
func DefaultCriterion() Criterion {
	return Criterion{Index: DefaultIndex}
}

// Validate rejects criteria with more than one selection method set.
func (c Criterion) Validate() error {
	set := 0
	if c.Index != DefaultIndex {
		set++
	}
	if c.BDF != "" {
		set++
	}
	if c.Name != "" {
		set++
	}
	if c.None {
		set++
	}
	if set > 1 {
		return errors.New("device selection methods are mutually exclusive")
	}
	return nil
}

// Select resolves a criterion against an enumerated device list into exactly
// one device, or nil when the criterion is None. Ambiguity is never silent:
// the only tie-break is the documented first-match rule for name substrings,
// where identical cards are expected to collide.
func Select(c Criterion, devices []Device) (*Device, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	switch {
	case c.None:
		return nil, nil

	case c.BDF != "":
		var matches []Device
		for _, d := range devices {
			if strings.Contains(d.BDF, c.BDF) {
				matches = append(matches, d)
			}
		}
		switch len(matches) {
		case 0:
			return nil, fmt.Errorf("%w: BDF substring %q", ErrNoMatch, c.BDF)
		case 1:
			return &matches[0], nil
		default:
			return nil, fmt.Errorf("%w: BDF substring %q matches %d devices", ErrAmbiguous, c.BDF, len(matches))
		}

	case c.Name != "":
		for _, d := range devices {
			if strings.Contains(d.Name, c.Name) {
				first := d
				return &first, nil
			}
		}
		return nil, fmt.Errorf("%w: name substring %q", ErrNoMatch, c.Name)

	case c.Index != DefaultIndex:
		if c.Index < 0 || c.Index >= int64(len(devices)) {
			return nil, fmt.Errorf("%w: index %d with %d devices", ErrIndexOutOfRange, c.Index, len(devices))
		}
		d := devices[c.Index]
		return &d, nil

	default:
		// No explicit selection: only unambiguous with a single device.
		if len(devices) == 1 {
			d := devices[0]
			return &d, nil
		}
		return nil, fmt.Errorf("%w: %d devices enumerated", ErrAmbiguousDefault, len(devices))
	}
}
