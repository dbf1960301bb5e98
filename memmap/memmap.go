// Copyright (c) The go-kernel authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package memmap implements parsing of the Unified Extensible Firmware
// Interface (UEFI) memory map following the specifications at:
//
//	https://uefi.org/specs/UEFI/2.10/07_Services_Boot_Services.html#efi-boot-services-getmemorymap
//
// The memory map is held as an opaque byte buffer, descriptors are decoded on
// access using the stride reported by the firmware.
package memmap

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// PageSize represents the EFI page size in bytes
const PageSize = 4096 // 4 KiB

// DescriptorSize represents the nominal size of a version 1
// EFI_MEMORY_DESCRIPTOR, firmware strides are allowed to exceed it.
const DescriptorSize = 40

// Stride used by firmware implementations seen in practice, used to size
// memory map buffers.
const DefaultStride = 48

// MaxEntries represents the default memory map buffer capacity in descriptors.
const MaxEntries = 1000

var (
	ErrInvalidStride = errors.New("invalid descriptor size")
	ErrInvalidSize   = errors.New("invalid memory map size")
	ErrOutOfRange    = errors.New("descriptor index out of range")
)

// Descriptor represents an EFI Memory Descriptor.
type Descriptor struct {
	Type          Type
	PhysicalStart uint64
	VirtualStart  uint64
	NumberOfPages uint64
	Attribute     uint64
}

// PhysicalEnd returns the descriptor physical end address.
func (d *Descriptor) PhysicalEnd() uint64 {
	return d.PhysicalStart + d.NumberOfPages*PageSize
}

// Size returns the descriptor size in bytes.
func (d *Descriptor) Size() uint64 {
	return d.NumberOfPages * PageSize
}

// Usable reports whether the region is free for use by the kernel.
func (d *Descriptor) Usable() bool {
	return d.Type == EfiConventionalMemory
}

// MarshalBinary implements the [encoding.BinaryMarshaler] interface, it
// returns the nominal descriptor layout.
func (d *Descriptor) MarshalBinary() (buf []byte, err error) {
	buf = make([]byte, DescriptorSize)

	binary.LittleEndian.PutUint32(buf[0:], uint32(d.Type))
	binary.LittleEndian.PutUint64(buf[8:], d.PhysicalStart)
	binary.LittleEndian.PutUint64(buf[16:], d.VirtualStart)
	binary.LittleEndian.PutUint64(buf[24:], d.NumberOfPages)
	binary.LittleEndian.PutUint64(buf[32:], d.Attribute)

	return
}

// UnmarshalBinary implements the [encoding.BinaryUnmarshaler] interface, only
// the nominal descriptor layout is consumed.
func (d *Descriptor) UnmarshalBinary(buf []byte) (err error) {
	if len(buf) < DescriptorSize {
		return fmt.Errorf("short descriptor (%d bytes)", len(buf))
	}

	d.Type = Type(binary.LittleEndian.Uint32(buf[0:]))
	d.PhysicalStart = binary.LittleEndian.Uint64(buf[8:])
	d.VirtualStart = binary.LittleEndian.Uint64(buf[16:])
	d.NumberOfPages = binary.LittleEndian.Uint64(buf[24:])
	d.Attribute = binary.LittleEndian.Uint64(buf[32:])

	return
}

// Snapshot represents an EFI Memory Map as captured from
// EFI_BOOT_SERVICES.GetMemoryMap().
type Snapshot struct {
	// Buffer holds the raw descriptors, its capacity is fixed by the
	// caller and it is never grown.
	Buffer []byte

	// Size is the number of valid bytes in Buffer.
	Size int

	// DescriptorSize is the stride between descriptors.
	DescriptorSize int

	// Key identifies the memory map generation, it is required to exit
	// boot services.
	Key uint64

	// Version is the descriptor version.
	Version uint32
}

// NewSnapshot returns a snapshot over the argument buffer, which must hold
// at least size bytes of descriptors spaced by stride.
func NewSnapshot(buf []byte, size int, stride int, key uint64, version uint32) (s *Snapshot, err error) {
	s = &Snapshot{
		Buffer:         buf,
		Size:           size,
		DescriptorSize: stride,
		Key:            key,
		Version:        version,
	}

	if err = s.Validate(); err != nil {
		return nil, err
	}

	return
}

// Validate checks the snapshot geometry.
func (s *Snapshot) Validate() error {
	if s.DescriptorSize < DescriptorSize {
		return fmt.Errorf("%w (%d)", ErrInvalidStride, s.DescriptorSize)
	}

	if s.Size < 0 || s.Size > len(s.Buffer) {
		return fmt.Errorf("%w (%d > %d)", ErrInvalidSize, s.Size, len(s.Buffer))
	}

	return nil
}

// Len returns the number of descriptors.
func (s *Snapshot) Len() int {
	if s.DescriptorSize < DescriptorSize {
		return 0
	}

	return s.Size / s.DescriptorSize
}

// Descriptor decodes the i-th descriptor.
func (s *Snapshot) Descriptor(i int) (d *Descriptor, err error) {
	if i < 0 || i >= s.Len() {
		return nil, ErrOutOfRange
	}

	off := i * s.DescriptorSize
	d = &Descriptor{}

	if err = d.UnmarshalBinary(s.Buffer[off : off+s.DescriptorSize]); err != nil {
		return nil, err
	}

	return
}

// Walk calls fn for each descriptor in memory map order, it stops at the
// first decoding error or when fn returns false.
func (s *Snapshot) Walk(fn func(d *Descriptor) bool) (err error) {
	var d *Descriptor

	for i := 0; i < s.Len(); i++ {
		if d, err = s.Descriptor(i); err != nil {
			return
		}

		if !fn(d) {
			break
		}
	}

	return
}

// Descriptors returns all decoded descriptors.
func (s *Snapshot) Descriptors() (m []*Descriptor, err error) {
	err = s.Walk(func(d *Descriptor) bool {
		m = append(m, d)
		return true
	})

	return
}

// UsableBytes returns the total size of usable regions.
func (s *Snapshot) UsableBytes() (n uint64) {
	s.Walk(func(d *Descriptor) bool {
		if d.Usable() {
			n += d.Size()
		}
		return true
	})

	return
}
