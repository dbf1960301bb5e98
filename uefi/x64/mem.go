// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build tamago && amd64

package x64

import (
	"log"
	"runtime"
	_ "unsafe"

	"github.com/usbarmory/go-kernel/memmap"
	"github.com/usbarmory/go-kernel/uefi"
)

//go:linkname _unused runtime.ramStart
var _unused uint64 = 0x00100000 // overridden in x64.s

//go:linkname RamSize runtime.ramSize
var RamSize uint64 = 0x2c000000 // 704MB

// allocateHeap reserves the runtime heap, which follows the loaded image, as
// loader data so that it is never reported as usable by the memory map.
func allocateHeap() {
	var heapStart uint64

	buf := make([]byte, memmap.DefaultStride*memmap.MaxEntries)
	m, err := UEFI.Boot.GetMemoryMap(buf)

	if err != nil {
		log.Printf("WARNING: could not get memory map, %v", err)
		return
	}

	ramStart, ramEnd := runtime.MemRegion()

	// locate runtime heap offset within UEFI memory allocation
	m.Walk(func(d *memmap.Descriptor) bool {
		if d.Type == memmap.EfiLoaderCode && d.PhysicalStart == uint64(ramStart) {
			heapStart = d.PhysicalEnd()
			return false
		}

		return true
	})

	if heapStart == 0 {
		log.Printf("WARNING: could not find heap offset")
		return
	}

	log.Printf("allocating memory range %#08x - %#08x", heapStart, ramEnd)

	if err := UEFI.Boot.AllocatePages(
		uefi.AllocateAddress,
		memmap.EfiLoaderData,
		int(uint64(ramEnd)-heapStart),
		heapStart,
	); err != nil {
		log.Printf("WARNING: could not allocate heap at %#x, %v", heapStart, err)
	}
}

// RuntimeRegion returns the physical range reserved for the Go runtime.
func RuntimeRegion() (start uint64, end uint64) {
	s, e := runtime.MemRegion()
	return uint64(s), uint64(e)
}
