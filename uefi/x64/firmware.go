// Copyright (c) The go-kernel authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build tamago && amd64

package x64

import (
	"errors"

	"github.com/usbarmory/go-kernel/handoff"
	"github.com/usbarmory/go-kernel/memmap"
	"github.com/usbarmory/go-kernel/uefi"
)

// Firmware exposes the EFI Boot Services required by the kernel boot
// handoff.
type Firmware struct {
	Boot *uefi.BootServices
}

// LocateGraphics returns the EFI Graphics Output Protocol current mode.
func (fw *Firmware) LocateGraphics() (*handoff.Graphics, error) {
	gop, err := fw.Boot.GetGraphicsOutput()

	if err != nil {
		return nil, err
	}

	return gop.Graphics()
}

// GetMemoryMap calls EFI_BOOT_SERVICES.GetMemoryMap().
func (fw *Firmware) GetMemoryMap(buf []byte) (*memmap.Snapshot, error) {
	return fw.Boot.GetMemoryMap(buf)
}

// AllocatePages allocates the argument physical range as loader data.
func (fw *Firmware) AllocatePages(addr uint64, size int) error {
	return fw.Boot.AllocatePages(uefi.AllocateAddress, memmap.EfiLoaderData, size, addr)
}

// ExitBootServices calls EFI_BOOT_SERVICES.ExitBootServices().
func (fw *Firmware) ExitBootServices(imageHandle uint64, mapKey uint64) error {
	return fw.Boot.ExitBootServices(imageHandle, mapKey)
}

// NewFirmware returns the boot handoff firmware interface, it is only valid
// after the package initialization located the EFI System Table.
func NewFirmware() (*Firmware, error) {
	if UEFI.Boot == nil {
		return nil, errors.New("EFI Boot Services unavailable")
	}

	return &Firmware{Boot: UEFI.Boot}, nil
}

// Memory provides access to identity mapped physical memory.
type Memory struct{}

// Slice returns the memory backing the argument physical range.
func (Memory) Slice(addr uint64, size int) ([]byte, error) {
	return uefi.Slice(addr, size)
}
