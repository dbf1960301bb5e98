// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build tamago && amd64

package uefi

import (
	"github.com/usbarmory/go-kernel/memmap"
)

// EFI Boot Services offset for AllocatePages
const allocatePages = 0x28

// EFI_ALLOCATE_TYPE
const (
	AllocateAnyPages = iota
	AllocateMaxAddress
	AllocateAddress
	MaxAllocateType
)

// AllocatePages calls EFI_BOOT_SERVICES.AllocatePages().
func (s *BootServices) AllocatePages(allocateType int, memoryType memmap.Type, size int, physicalAddress uint64) error {
	pages := (uint64(size) + memmap.PageSize - 1) / memmap.PageSize

	status := callService(s.base+allocatePages,
		[]uint64{
			uint64(allocateType),
			uint64(memoryType),
			pages,
			ptrval(&physicalAddress),
		},
	)

	return parseStatus(status)
}
