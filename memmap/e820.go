// Copyright (c) The go-kernel authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package memmap

import (
	"github.com/u-root/u-root/pkg/boot/bzimage"
)

// Advanced Configuration and Power Interface Specification (ACPI)
// Version 6.0 - Table 15-312 Address Range Types12
const AddressRangePersistentMemory = 7

// E820 converts an EFI Memory Map entry to an x86 E820 one, reflecting memory
// ownership after exiting EFI Boot Services.
func (d *Descriptor) E820() bzimage.E820Entry {
	e := bzimage.E820Entry{
		Addr: d.PhysicalStart,
		Size: d.Size(),
	}

	// Unified Extensible Firmware Interface (UEFI) Specification
	// Version 2.10 - Table 7.10: Memory Type Usage after ExitBootServices()
	switch d.Type {
	case EfiLoaderCode, EfiLoaderData, EfiBootServicesCode, EfiBootServicesData, EfiConventionalMemory:
		e.MemType = bzimage.RAM
	case EfiPersistentMemory:
		e.MemType = AddressRangePersistentMemory
	case EfiACPIReclaimMemory:
		e.MemType = bzimage.ACPI
	case EfiACPIMemoryNVS:
		e.MemType = bzimage.NVS
	default:
		e.MemType = bzimage.Reserved
	}

	return e
}

// E820 returns the memory map as x86 E820 entries, adjacent entries of the
// same type are merged.
func (s *Snapshot) E820() (m []bzimage.E820Entry, err error) {
	err = s.Walk(func(d *Descriptor) bool {
		e := d.E820()

		if n := len(m); n > 0 {
			last := &m[n-1]

			if last.MemType == e.MemType && last.Addr+last.Size == e.Addr {
				last.Size += e.Size
				return true
			}
		}

		m = append(m, e)

		return true
	})

	return
}
