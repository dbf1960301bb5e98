// Copyright (c) The go-kernel authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
)

// GUID represents an EFI GUID in its in-memory layout, as passed to
// EFI_BOOT_SERVICES.LocateProtocol().
//
// The registry format (xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx) lists the first
// three fields most significant byte first, while the firmware stores them
// little-endian.
type GUID [16]byte

// registry format field lengths, in hex digits
var guidFields = [5]int{8, 4, 4, 4, 12}

// ParseGUID converts a GUID from its registry format.
func ParseGUID(s string) (g GUID, err error) {
	var raw []byte

	fields := strings.Split(s, "-")

	if len(fields) != len(guidFields) {
		return GUID{}, fmt.Errorf("invalid GUID format: %q", s)
	}

	for i, f := range fields {
		if len(f) != guidFields[i] {
			return GUID{}, fmt.Errorf("invalid GUID format: %q", s)
		}
	}

	if raw, err = hex.DecodeString(strings.Join(fields, "")); err != nil {
		return GUID{}, fmt.Errorf("invalid GUID format: %q, %v", s, err)
	}

	binary.LittleEndian.PutUint32(g[0:4], binary.BigEndian.Uint32(raw[0:4]))
	binary.LittleEndian.PutUint16(g[4:6], binary.BigEndian.Uint16(raw[4:6]))
	binary.LittleEndian.PutUint16(g[6:8], binary.BigEndian.Uint16(raw[6:8]))
	copy(g[8:], raw[8:])

	return
}

// MustParseGUID is like ParseGUID but panics on error, it is meant for
// protocol GUID declarations.
func MustParseGUID(s string) GUID {
	g, err := ParseGUID(s)

	if err != nil {
		panic(err)
	}

	return g
}
