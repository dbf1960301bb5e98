// Copyright (c) The go-kernel authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package heap

import (
	"errors"
	"testing"
)

func newHeap(t *testing.T) *Heap {
	r := Region{Start: DefaultStart, Size: DefaultSize}
	h, err := New(r, make([]byte, r.Size))

	if err != nil {
		t.Fatal(err)
	}

	return h
}

func TestNewInvalid(t *testing.T) {
	for _, tt := range []struct {
		r    Region
		mem  int
		want error
	}{
		{Region{Start: DefaultStart, Size: 0}, 0, ErrInvalidSize},
		{Region{Start: DefaultStart, Size: 4096}, 1024, ErrInvalidSize},
		{Region{Start: DefaultStart + 1, Size: 4096}, 4096, ErrInvalidAddress},
	} {
		if _, err := New(tt.r, make([]byte, tt.mem)); !errors.Is(err, tt.want) {
			t.Errorf("New(%v): expected %v, got %v", tt.r, tt.want, err)
		}
	}
}

func TestLiveness(t *testing.T) {
	h := newHeap(t)
	sizes := []int{1, 16, 100, 4096, 333, 8192, 24, 65536}

	total := 0
	seen := make(map[uint64]bool)

	for _, size := range sizes {
		total += size

		if total >= DefaultSize {
			t.Fatal("invalid test sizes")
		}

		addr, buf, err := h.Alloc(size, 0)

		if err != nil {
			t.Fatalf("Alloc(%d): %v", size, err)
		}

		if len(buf) != size {
			t.Fatalf("Alloc(%d): got %d bytes", size, len(buf))
		}

		if addr%Alignment != 0 || addr < DefaultStart || addr+uint64(size) > DefaultStart+DefaultSize {
			t.Fatalf("Alloc(%d): invalid address %#x", size, addr)
		}

		if seen[addr] {
			t.Fatalf("Alloc(%d): address %#x returned twice", size, addr)
		}

		seen[addr] = true

		for i := range buf {
			buf[i] = byte(size)
		}
	}

	if len(h.UsedBlocks()) != len(sizes) {
		t.Fatalf("got %d used blocks", len(h.UsedBlocks()))
	}
}

func TestOversizedRequest(t *testing.T) {
	h := newHeap(t)

	if _, _, err := h.Alloc(64, 0); err != nil {
		t.Fatal(err)
	}

	free := h.FreeBlocks()

	if _, _, err := h.Alloc(DefaultSize+1, 0); !errors.Is(err, ErrOutOfMemory) {
		t.Fatalf("expected ErrOutOfMemory, got %v", err)
	}

	after := h.FreeBlocks()

	if len(free) != len(after) {
		t.Fatalf("free list changed, %v != %v", free, after)
	}

	for addr, size := range free {
		if after[addr] != size {
			t.Fatalf("free list changed, %v != %v", free, after)
		}
	}

	if _, _, err := h.Alloc(1024, 0); err != nil {
		t.Fatalf("allocation after failure: %v", err)
	}
}

func TestFreeCoalesce(t *testing.T) {
	h := newHeap(t)

	a, _, _ := h.Alloc(1024, 0)
	b, _, _ := h.Alloc(1024, 0)
	c, _, _ := h.Alloc(1024, 0)

	for _, addr := range []uint64{a, c, b} {
		if err := h.Free(addr); err != nil {
			t.Fatal(err)
		}
	}

	free := h.FreeBlocks()

	if len(free) != 1 || free[DefaultStart] != DefaultSize {
		t.Fatalf("free list not merged, %v", free)
	}

	if h.Available() != DefaultSize {
		t.Fatalf("got %d available bytes", h.Available())
	}

	// the whole heap is allocatable again
	if _, _, err := h.Alloc(DefaultSize, 0); err != nil {
		t.Fatal(err)
	}
}

func TestFreeInvalid(t *testing.T) {
	h := newHeap(t)

	addr, _, _ := h.Alloc(32, 0)

	if err := h.Free(addr + 16); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected ErrInvalidAddress, got %v", err)
	}

	if err := h.Free(addr); err != nil {
		t.Fatal(err)
	}

	if err := h.Free(addr); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("double free: expected ErrInvalidAddress, got %v", err)
	}
}

func TestAlign(t *testing.T) {
	h := newHeap(t)

	h.Alloc(16, 0)

	addr, _, err := h.Alloc(100, 4096)

	if err != nil {
		t.Fatal(err)
	}

	if addr%4096 != 0 {
		t.Fatalf("address %#x not aligned", addr)
	}

	// leading padding stays allocatable
	pad, _, err := h.Alloc(64, 0)

	if err != nil {
		t.Fatal(err)
	}

	if pad >= addr {
		t.Fatalf("padding not reused, got %#x", pad)
	}

	if _, _, err := h.Alloc(16, 24); !errors.Is(err, ErrInvalidSize) {
		t.Fatalf("expected ErrInvalidSize, got %v", err)
	}
}

func TestDefault(t *testing.T) {
	if _, _, err := Alloc(16, 0); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}

	r := Region{Start: DefaultStart, Size: DefaultSize}

	if err := Init(r, make([]byte, r.Size)); err != nil {
		t.Fatal(err)
	}

	defer func() {
		defaultHeap = nil
	}()

	if err := Init(r, make([]byte, r.Size)); !errors.Is(err, ErrInitialized) {
		t.Fatalf("expected ErrInitialized, got %v", err)
	}

	addr, _, err := Alloc(128, 0)

	if err != nil {
		t.Fatal(err)
	}

	if err := Free(addr); err != nil {
		t.Fatal(err)
	}

	if Default().Region() != r {
		t.Fatalf("unexpected region %v", Default().Region())
	}
}
