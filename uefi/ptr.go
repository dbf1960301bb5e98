// Copyright (c) The go-kernel authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

import (
	"unsafe"
)

// firmware structures alignment
const align = 8

// pinned holds the last pointer passed to the firmware, storing it in a
// package variable forces every ptrval argument to be heap allocated.
var pinned unsafe.Pointer

// ptrval returns the address of ptr as a callService argument.
//
// Firmware out-parameters are plain integers to the Go runtime: a stack
// allocated variable would be left behind if the goroutine stack moves, which
// can happen in the callService prologue, with the firmware then accessing
// freed memory. The referenced variable therefore always escapes to the heap,
// which is never moved.
func ptrval(ptr any) uint64 {
	var p unsafe.Pointer

	switch v := ptr.(type) {
	case *uint64:
		p = unsafe.Pointer(v)
	case *uint32:
		p = unsafe.Pointer(v)
	case *byte:
		p = unsafe.Pointer(v)
	case *GUID:
		p = unsafe.Pointer(v)
	default:
		panic("internal error, invalid ptrval")
	}

	pinned = p

	return uint64(uintptr(p))
}

// alignSize rounds size up to the firmware structures alignment.
func alignSize(size int) int {
	return (size + align - 1) &^ (align - 1)
}
