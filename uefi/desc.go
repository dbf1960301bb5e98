// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build tamago && amd64

package uefi

import (
	"bytes"
	"encoding/binary"
	"errors"

	"github.com/usbarmory/tamago/dma"
)

func marshalBinary(data any) (buf []byte, err error) {
	b := new(bytes.Buffer)
	err = binary.Write(b, binary.LittleEndian, data)
	return b.Bytes(), err
}

func unmarshalBinary(buf []byte, data any) (err error) {
	_, err = binary.Decode(buf, binary.LittleEndian, data)
	return
}

// Slice returns the memory backing a firmware owned physical range.
func Slice(addr uint64, size int) (buf []byte, err error) {
	if addr == 0 || size <= 0 {
		return nil, errors.New("invalid address")
	}

	r, err := dma.NewRegion(uint(addr), alignSize(size), true)

	if err != nil {
		return
	}

	_, buf = r.Reserve(size, 0)

	return
}

// decode reads a firmware structure located at addr.
func decode(data any, addr uint64) (err error) {
	t, err := marshalBinary(data)

	if err != nil {
		return
	}

	buf, err := Slice(addr, len(t))

	if err != nil {
		return
	}

	return unmarshalBinary(buf, data)
}
