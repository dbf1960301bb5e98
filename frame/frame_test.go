// Copyright (c) The go-kernel authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package frame

import (
	"errors"
	"math"
	"testing"

	"github.com/usbarmory/go-kernel/memmap"
)

const (
	pageSize = memmap.PageSize
	limit    = 4 << 30
)

var testMap = []memmap.Descriptor{
	{Type: memmap.EfiConventionalMemory, PhysicalStart: 0, NumberOfPages: 256},
	{Type: memmap.EfiReservedMemoryType, PhysicalStart: 256 * pageSize, NumberOfPages: 16},
	{Type: memmap.EfiConventionalMemory, PhysicalStart: 272 * pageSize, NumberOfPages: 100},
}

func snapshot(t *testing.T, stride int, descs ...memmap.Descriptor) *memmap.Snapshot {
	buf := make([]byte, stride*(len(descs)+1))

	// padding which decodes as usable memory if misread
	for i := range buf {
		buf[i] = byte(memmap.EfiConventionalMemory)
	}

	n, err := memmap.Encode(buf, stride, descs...)

	if err != nil {
		t.Fatal(err)
	}

	s, err := memmap.NewSnapshot(buf, n, stride, 1, 1)

	if err != nil {
		t.Fatal(err)
	}

	return s
}

func build(t *testing.T, s *memmap.Snapshot) *Allocator {
	a, err := Build(s, make([]byte, DefaultStorageSize), limit)

	if err != nil {
		t.Fatal(err)
	}

	return a
}

func TestCoverage(t *testing.T) {
	a := build(t, snapshot(t, memmap.DefaultStride, testMap...))

	if a.Frames() != 372 {
		t.Fatalf("got %d frames, want 372", a.Frames())
	}

	if n := a.FreeFrames(); n != 356 {
		t.Fatalf("got %d free frames, want 356", n)
	}

	n := 0

	for {
		f, ok := a.Allocate()

		if !ok {
			break
		}

		if i := f.Index(); i >= 256 && i < 272 {
			t.Fatalf("allocated reserved frame %d", i)
		}

		n++
	}

	if n != 356 {
		t.Fatalf("allocated %d frames, want 356", n)
	}

	if _, ok := a.Allocate(); ok {
		t.Fatal("allocation succeeded after exhaustion")
	}
}

func TestExclusivity(t *testing.T) {
	a := build(t, snapshot(t, memmap.DefaultStride, testMap...))
	seen := make(map[Frame]bool)

	var last Frame

	for i := 0; i < 300; i++ {
		f, ok := a.Allocate()

		if !ok {
			t.Fatalf("allocation %d failed", i)
		}

		if seen[f] {
			t.Fatalf("frame %s returned twice", f)
		}

		if i > 0 && f <= last {
			t.Fatalf("frame %s not ascending after %s", f, last)
		}

		if f.Address()%pageSize != 0 {
			t.Fatalf("frame %s not aligned", f)
		}

		seen[f] = true
		last = f
	}
}

func TestStrideIndependence(t *testing.T) {
	for _, stride := range []int{memmap.DescriptorSize, memmap.DefaultStride, 80} {
		s := snapshot(t, stride, testMap...)

		if s.Len() != len(testMap) {
			t.Fatalf("stride %d: walked %d descriptors, want %d", stride, s.Len(), len(testMap))
		}

		a := build(t, s)

		if n := a.FreeFrames(); n != 356 {
			t.Fatalf("stride %d: got %d free frames, want 356", stride, n)
		}
	}
}

func TestLimit(t *testing.T) {
	s := snapshot(t, memmap.DefaultStride,
		memmap.Descriptor{Type: memmap.EfiConventionalMemory, PhysicalStart: 0, NumberOfPages: 16},
		memmap.Descriptor{Type: memmap.EfiConventionalMemory, PhysicalStart: 32 * pageSize, NumberOfPages: 64},
	)

	// second region ends beyond the limit
	a, err := Build(s, make([]byte, 64), 64*pageSize)

	if err != nil {
		t.Fatal(err)
	}

	if a.Frames() != 16 || a.FreeFrames() != 16 {
		t.Fatalf("got %d frames (%d free), want 16", a.Frames(), a.FreeFrames())
	}

	if a.Limit() != 16*pageSize {
		t.Fatalf("got limit %#x", a.Limit())
	}
}

func TestStorageTooSmall(t *testing.T) {
	s := snapshot(t, memmap.DefaultStride, testMap...)

	// 372 frames need 47 bytes
	if _, err := Build(s, make([]byte, 46), limit); !errors.Is(err, ErrStorageTooSmall) {
		t.Fatalf("expected ErrStorageTooSmall, got %v", err)
	}

	if _, err := Build(s, make([]byte, 47), limit); err != nil {
		t.Fatal(err)
	}
}

func TestMarkUsed(t *testing.T) {
	a := build(t, snapshot(t, memmap.DefaultStride, testMap...))

	// partial pages are rounded outwards
	a.MarkUsed(pageSize/2, 2*pageSize)

	if n := a.FreeFrames(); n != 353 {
		t.Fatalf("got %d free frames, want 353", n)
	}

	f, _ := a.Allocate()

	if f.Index() != 3 {
		t.Fatalf("got frame %d, want 3", f.Index())
	}

	// beyond tracked memory
	a.MarkUsed(1<<40, pageSize)
	a.MarkUsed(math.MaxUint64-pageSize, 2*pageSize)

	if n := a.FreeFrames(); n != 352 {
		t.Fatalf("got %d free frames, want 352", n)
	}
}

func TestMarkUsedWrap(t *testing.T) {
	a := build(t, snapshot(t, memmap.DefaultStride, testMap...))

	// start+size overflows, the range extends to the end of tracked memory
	a.MarkUsed(a.Limit()-2*pageSize, math.MaxUint64)

	if n := a.FreeFrames(); n != 354 {
		t.Fatalf("got %d free frames, want 354", n)
	}

	for i := a.Frames() - 2; i < a.Frames(); i++ {
		if !a.test(i) {
			t.Fatalf("frame %d not marked", i)
		}
	}

	a.MarkUsed(0, 0)

	if n := a.FreeFrames(); n != 354 {
		t.Fatalf("empty range marked frames, got %d free", n)
	}
}

func TestFree(t *testing.T) {
	a := build(t, snapshot(t, memmap.DefaultStride, testMap...))

	f, _ := a.Allocate()

	for _, tt := range []struct {
		frame Frame
		want  FreeResult
	}{
		{f, Freed},
		{f, DoubleFreeRejected},
		{Frame(260 * pageSize), NotOwned},
		{Frame(1 << 40), NotOwned},
		{Frame(pageSize + 1), NotOwned},
	} {
		if got := a.Free(tt.frame); got != tt.want {
			t.Errorf("Free(%s) = %s, want %s", tt.frame, got, tt.want)
		}
	}

	// released frames are handed out again by the ascending scan
	if g, _ := a.Allocate(); g != f {
		t.Fatalf("got frame %s, want %s", g, f)
	}
}
