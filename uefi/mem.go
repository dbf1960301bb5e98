// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build tamago && amd64

package uefi

import (
	"errors"
	"runtime"

	"github.com/usbarmory/go-kernel/memmap"
)

// EFI Boot Services offset for GetMemoryMap
const getMemoryMap = 0x38

// GetMemoryMap calls EFI_BOOT_SERVICES.GetMemoryMap() over the argument
// buffer, its full capacity is offered to the firmware on every call.
//
// The returned snapshot descriptors are spaced by the stride reported by the
// firmware, which can exceed the nominal descriptor size.
func (s *BootServices) GetMemoryMap(buf []byte) (m *memmap.Snapshot, err error) {
	var mapKey uint64
	var descriptorSize uint64
	var descriptorVersion uint32

	buf = buf[:cap(buf)]

	if len(buf) == 0 {
		return nil, errors.New("invalid memory map buffer")
	}

	mapSize := uint64(len(buf))

	status := callService(s.base+getMemoryMap,
		[]uint64{
			ptrval(&mapSize),
			ptrval(&buf[0]),
			ptrval(&mapKey),
			ptrval(&descriptorSize),
			ptrval(&descriptorVersion),
		},
	)

	runtime.KeepAlive(buf)

	if err = parseStatus(status); err != nil {
		return
	}

	if mapSize > uint64(len(buf)) {
		return nil, parseStatus(EFI_BUFFER_TOO_SMALL)
	}

	return memmap.NewSnapshot(buf, int(mapSize), int(descriptorSize), mapKey, descriptorVersion)
}
