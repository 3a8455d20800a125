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
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unsafe"

	"golang.org/x/sys/unix"
)

// DefaultSysfsRoot is where the kernel exposes PCI devices.
const DefaultSysfsRoot = "/sys/bus/pci/devices"

// Info is the identity tuple the transport reports for a discovered device.
type Info struct {
	BDF      string
	VendorID uint16
	DeviceID uint16
	Name     string
}

// Transport is the raw register-level capability everything above builds on:
// device discovery, whole-register read/write scoped to one BDF, and a reset
// trigger. Every write is a single whole-register transaction; a write either
// lands in full or fails.
type Transport interface {
	Discover(ctx context.Context) ([]Info, error)
	Read32(ctx context.Context, bdf string, offset uint32) (uint32, error)
	Write32(ctx context.Context, bdf string, offset uint32, val uint32) error
	Reset(ctx context.Context, bdf string) error
}

// Namer resolves a marketing name for a device by its BDF. The second return
// is false when the namer has nothing better than the caller's fallback.
type Namer interface {
	NameByBDF(bdf string) (string, bool)
}

// SysfsTransport implements Transport against the host's sysfs PCI tree,
// mapping the device's BAR0 through resource0 for register access.
type SysfsTransport struct {
	root  string
	namer Namer
}

// Option configures a SysfsTransport.
type Option func(*SysfsTransport)

// WithRoot overrides the sysfs PCI devices directory. Used by tests.
func WithRoot(root string) Option {
	return func(t *SysfsTransport) {
		t.root = root
	}
}

// WithNamer sets a Namer used to enrich device names beyond the built-in
// device-ID table.
func WithNamer(n Namer) Option {
	return func(t *SysfsTransport) {
		t.namer = n
	}
}

// NewSysfsTransport creates a transport over the host sysfs PCI tree.
func NewSysfsTransport(opts ...Option) *SysfsTransport {
	t := &SysfsTransport{root: DefaultSysfsRoot}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *SysfsTransport) Discover(ctx context.Context) ([]Info, error) {
	entries, err := os.ReadDir(t.root)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrScanUnavailable, t.root, err)
	}

	infos := []Info{}
	for _, entry := range entries {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		bdf := entry.Name()
		if !ValidateBDF(bdf) {
			continue
		}

		vendor, err := t.readSysfsHex(bdf, "vendor")
		if err != nil {
			continue
		}
		if vendor != NvidiaVendorID {
			continue
		}

		device, err := t.readSysfsHex(bdf, "device")
		if err != nil {
			continue
		}

		class, err := t.readSysfsHex(bdf, "class")
		if err != nil {
			continue
		}
		// Class 0x03xxxx is a display controller; skip NVIDIA audio
		// functions, USB controllers and the like on the same card.
		if class>>16 != 0x03 {
			continue
		}

		infos = append(infos, Info{
			BDF:      bdf,
			VendorID: uint16(vendor),
			DeviceID: uint16(device),
			Name:     t.deviceName(bdf, uint16(device)),
		})
	}

	return infos, nil
}

func (t *SysfsTransport) deviceName(bdf string, deviceID uint16) string {
	if t.namer != nil {
		if name, ok := t.namer.NameByBDF(bdf); ok {
			return name
		}
	}
	if name, ok := hopperDeviceNames[deviceID]; ok {
		return name
	}
	return fmt.Sprintf("NVIDIA device %04x", deviceID)
}

func (t *SysfsTransport) readSysfsHex(bdf, file string) (uint32, error) {
	raw, err := os.ReadFile(filepath.Join(t.root, bdf, file))
	if err != nil {
		return 0, err
	}
	s := strings.TrimPrefix(strings.TrimSpace(string(raw)), "0x")
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("parse %s of %s: %w", file, bdf, err)
	}
	return uint32(v), nil
}

func (t *SysfsTransport) Read32(ctx context.Context, bdf string, offset uint32) (uint32, error) {
	var val uint32
	err := t.withRegister(bdf, offset, func(reg *uint32) {
		val = *reg
	})
	return val, err
}

func (t *SysfsTransport) Write32(ctx context.Context, bdf string, offset uint32, val uint32) error {
	return t.withRegister(bdf, offset, func(reg *uint32) {
		*reg = val
	})
}

// withRegister maps the page of BAR0 covering offset, runs fn against the
// register, and unmaps. The mapping is per-call so a device that vanishes
// between operations never leaves a stale mapping behind, and fn performs a
// single aligned 32-bit access, which is the transaction granularity BAR0
// MMIO guarantees.
func (t *SysfsTransport) withRegister(bdf string, offset uint32, fn func(reg *uint32)) error {
	if !ValidateBDF(bdf) {
		return fmt.Errorf("%w: %q", ErrInvalidBDF, bdf)
	}
	if offset%4 != 0 {
		return fmt.Errorf("register offset %#x is not 32-bit aligned", offset)
	}

	path := filepath.Join(t.root, bdf, "resource0")
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return t.wrapAccessErr(bdf, err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return t.wrapAccessErr(bdf, err)
	}
	if int64(offset)+4 > fi.Size() {
		return fmt.Errorf("register offset %#x beyond BAR0 of %s (size %#x)", offset, bdf, fi.Size())
	}

	pageSize := uint32(unix.Getpagesize())
	base := offset &^ (pageSize - 1)
	length := int(offset - base + 4)

	mem, err := unix.Mmap(int(f.Fd()), int64(base), length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return t.wrapAccessErr(bdf, fmt.Errorf("mmap BAR0: %w", err))
	}
	defer unix.Munmap(mem)

	fn((*uint32)(unsafe.Pointer(&mem[offset-base])))
	return nil
}

func (t *SysfsTransport) Reset(ctx context.Context, bdf string) error {
	if !ValidateBDF(bdf) {
		return fmt.Errorf("%w: %q", ErrInvalidBDF, bdf)
	}
	path := filepath.Join(t.root, bdf, "reset")
	if err := os.WriteFile(path, []byte("1"), 0200); err != nil {
		return t.wrapAccessErr(bdf, err)
	}
	return nil
}

func (t *SysfsTransport) wrapAccessErr(bdf string, err error) error {
	switch {
	case os.IsNotExist(err):
		return fmt.Errorf("%w: %s: %w", ErrDeviceUnavailable, bdf, err)
	case os.IsPermission(err):
		return fmt.Errorf("%w: %s: %w", ErrAccessDenied, bdf, err)
	default:
		return fmt.Errorf("device %s: %w", bdf, err)
	}
}
