// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build tamago && amd64

package uefi

// EFI Boot Services offset for ExitBootServices
const exitBootServices = 0xe8

// ExitBootServices calls EFI_BOOT_SERVICES.ExitBootServices(), the mapKey
// must belong to the most recently retrieved memory map.
//
// On success no further Boot Services call is permitted, including console
// output.
func (s *BootServices) ExitBootServices(imageHandle uint64, mapKey uint64) (err error) {
	status := callService(s.base+exitBootServices,
		[]uint64{
			imageHandle,
			mapKey,
		},
	)

	return parseStatus(status)
}
