// Copyright (c) The go-kernel authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package memmap

import (
	"errors"
	"testing"

	"github.com/u-root/u-root/pkg/boot/bzimage"
)

var testMap = []Descriptor{
	{Type: EfiConventionalMemory, PhysicalStart: 0, NumberOfPages: 256},
	{Type: EfiReservedMemoryType, PhysicalStart: 256 * PageSize, NumberOfPages: 16},
	{Type: EfiConventionalMemory, PhysicalStart: 272 * PageSize, NumberOfPages: 100},
}

func snapshot(t *testing.T, stride int, pad byte) *Snapshot {
	buf := make([]byte, stride*MaxEntries)

	for i := range buf {
		buf[i] = pad
	}

	n, err := Encode(buf, stride, testMap...)

	if err != nil {
		t.Fatal(err)
	}

	s, err := NewSnapshot(buf, n, stride, 0x1234, 1)

	if err != nil {
		t.Fatal(err)
	}

	return s
}

func TestSnapshotStride(t *testing.T) {
	for _, stride := range []int{DescriptorSize, DefaultStride, 64, 136} {
		// padding filled with bytes that would decode as a usable
		// descriptor if misread
		s := snapshot(t, stride, byte(EfiConventionalMemory))

		if s.Len() != len(testMap) {
			t.Fatalf("stride %d: got %d descriptors, want %d", stride, s.Len(), len(testMap))
		}

		m, err := s.Descriptors()

		if err != nil {
			t.Fatal(err)
		}

		for i, d := range m {
			if *d != testMap[i] {
				t.Errorf("stride %d: descriptor %d mismatch, %+v != %+v", stride, i, *d, testMap[i])
			}
		}
	}
}

func TestSnapshotInvalidStride(t *testing.T) {
	buf := make([]byte, 1024)

	if _, err := NewSnapshot(buf, 120, 24, 0, 1); !errors.Is(err, ErrInvalidStride) {
		t.Fatalf("expected ErrInvalidStride, got %v", err)
	}

	if _, err := NewSnapshot(buf, 2048, DefaultStride, 0, 1); !errors.Is(err, ErrInvalidSize) {
		t.Fatalf("expected ErrInvalidSize, got %v", err)
	}
}

func TestSnapshotTrailingBytes(t *testing.T) {
	s := snapshot(t, DefaultStride, 0)

	// a partial descriptor is not counted
	s.Size += DefaultStride / 2

	if s.Len() != len(testMap) {
		t.Fatalf("got %d descriptors, want %d", s.Len(), len(testMap))
	}

	if _, err := s.Descriptor(len(testMap)); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
}

func TestUsableBytes(t *testing.T) {
	s := snapshot(t, DefaultStride, 0)

	if n := s.UsableBytes(); n != 356*PageSize {
		t.Fatalf("got %d usable bytes, want %d", n, 356*PageSize)
	}
}

func TestE820(t *testing.T) {
	s := snapshot(t, DefaultStride, 0)

	m, err := s.E820()

	if err != nil {
		t.Fatal(err)
	}

	if len(m) != 3 {
		t.Fatalf("got %d entries, want 3", len(m))
	}

	if m[0].MemType != bzimage.RAM || m[1].MemType != bzimage.Reserved || m[2].MemType != bzimage.RAM {
		t.Fatalf("unexpected entry types %+v", m)
	}

	if m[1].Addr != 256*PageSize || m[1].Size != 16*PageSize {
		t.Fatalf("unexpected reserved entry %+v", m[1])
	}
}

func TestE820Merge(t *testing.T) {
	buf := make([]byte, 4*DefaultStride)

	n, _ := Encode(buf, DefaultStride,
		Descriptor{Type: EfiBootServicesCode, PhysicalStart: 0, NumberOfPages: 1},
		Descriptor{Type: EfiConventionalMemory, PhysicalStart: PageSize, NumberOfPages: 3},
		Descriptor{Type: EfiACPIMemoryNVS, PhysicalStart: 4 * PageSize, NumberOfPages: 1},
	)

	s, err := NewSnapshot(buf, n, DefaultStride, 0, 1)

	if err != nil {
		t.Fatal(err)
	}

	m, _ := s.E820()

	if len(m) != 2 || m[0].Size != 4*PageSize || m[1].MemType != bzimage.NVS {
		t.Fatalf("unexpected merged map %+v", m)
	}
}

func TestTypeString(t *testing.T) {
	if s := EfiConventionalMemory.String(); s != "Conventional" {
		t.Errorf("got %q", s)
	}

	if s := Type(0x70000000).String(); s != "Type(0x70000000)" {
		t.Errorf("got %q", s)
	}
}
