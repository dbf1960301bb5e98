// Copyright (c) The go-boot authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build tamago && amd64

package uefi

// EFI Boot Services offset for LocateProtocol
const locateProtocol = 0x140

// LocateProtocol calls EFI_BOOT_SERVICES.LocateProtocol().
func (s *BootServices) LocateProtocol(guid GUID) (addr uint64, err error) {
	status := callService(s.base+locateProtocol,
		[]uint64{
			ptrval(&guid),
			0,
			ptrval(&addr),
		},
	)

	return addr, parseStatus(status)
}
