// Copyright (c) The go-kernel authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package frame implements a bitmap allocator for 4 KiB physical page frames,
// initialized from the firmware memory map captured before exiting EFI Boot
// Services.
//
// The allocator is not safe for concurrent use, it is meant to be owned by a
// single execution context.
package frame

import (
	"errors"
	"fmt"

	"github.com/usbarmory/go-kernel/memmap"
)

// Size represents the frame size in bytes.
const Size = memmap.PageSize

// DefaultStorageSize represents the default bitmap storage size, covering
// 3.125 GiB of physical memory.
const DefaultStorageSize = 100 * 1024

var (
	ErrStorageTooSmall = errors.New("bitmap storage too small")
	ErrNoMemory        = errors.New("no usable memory")
)

// Frame represents the physical address of a 4 KiB page frame.
type Frame uint64

// Index returns the frame index.
func (f Frame) Index() int {
	return int(f / Size)
}

// Address returns the frame physical address.
func (f Frame) Address() uint64 {
	return uint64(f)
}

func (f Frame) String() string {
	return fmt.Sprintf("%#010x", uint64(f))
}

// FreeResult represents the outcome of a frame release.
type FreeResult int

const (
	// Freed indicates that the frame is allocatable again.
	Freed FreeResult = iota
	// DoubleFreeRejected indicates that the frame was not in use.
	DoubleFreeRejected
	// NotOwned indicates that the frame does not belong to a usable
	// region tracked by the allocator.
	NotOwned
)

func (r FreeResult) String() string {
	switch r {
	case Freed:
		return "freed"
	case DoubleFreeRejected:
		return "double free rejected"
	case NotOwned:
		return "not owned"
	}

	return fmt.Sprintf("FreeResult(%d)", int(r))
}

// Allocator represents a physical frame bitmap allocator, a set bit marks a
// frame which is not allocatable (reserved by firmware or already in use).
type Allocator struct {
	bitmap     []byte
	frameCount int

	memoryMap *memmap.Snapshot
}

// Build initializes a frame allocator over the argument bitmap storage from
// the usable regions of the memory map. Only memory below limit is tracked.
//
// The storage must hold at least one bit per frame, it is not grown.
func Build(m *memmap.Snapshot, storage []byte, limit uint64) (a *Allocator, err error) {
	var maxAddr uint64

	if err = m.Validate(); err != nil {
		return
	}

	// highest descriptor end address within limit
	m.Walk(func(d *memmap.Descriptor) bool {
		if end := d.PhysicalEnd(); end <= limit && end > maxAddr {
			maxAddr = end
		}
		return true
	})

	frameCount := int(maxAddr / Size)
	need := (frameCount + 7) / 8

	if need > len(storage) {
		return nil, fmt.Errorf("%w, needed: %d, available: %d", ErrStorageTooSmall, need, len(storage))
	}

	a = &Allocator{
		bitmap:     storage[:need],
		frameCount: frameCount,
		memoryMap:  m,
	}

	for i := range a.bitmap {
		a.bitmap[i] = 0xff
	}

	m.Walk(func(d *memmap.Descriptor) bool {
		if !d.Usable() {
			return true
		}

		start := int(d.PhysicalStart / Size)
		end := start + int(d.NumberOfPages)

		for i := start; i < end && i < frameCount; i++ {
			a.clear(i)
		}

		return true
	})

	return
}

func (a *Allocator) test(i int) bool {
	return a.bitmap[i/8]&(1<<(i%8)) != 0
}

func (a *Allocator) set(i int) {
	a.bitmap[i/8] |= 1 << (i % 8)
}

func (a *Allocator) clear(i int) {
	a.bitmap[i/8] &^= 1 << (i % 8)
}

// Frames returns the number of frames covered by the bitmap.
func (a *Allocator) Frames() int {
	return a.frameCount
}

// Limit returns the physical address above the highest tracked frame.
func (a *Allocator) Limit() uint64 {
	return uint64(a.frameCount) * Size
}

// FreeFrames returns the number of allocatable frames.
func (a *Allocator) FreeFrames() (n int) {
	for i := 0; i < a.frameCount; i++ {
		if !a.test(i) {
			n++
		}
	}

	return
}

// Allocate returns the lowest free frame and marks it as used, false is
// returned when no free frame remains.
func (a *Allocator) Allocate() (Frame, bool) {
	for i, b := range a.bitmap {
		if b == 0xff {
			continue
		}

		for j := i * 8; j < (i+1)*8 && j < a.frameCount; j++ {
			if !a.test(j) {
				a.set(j)
				return Frame(uint64(j) * Size), true
			}
		}
	}

	return 0, false
}

// MarkUsed marks the frames spanning the argument physical range as not
// allocatable, ranges beyond the tracked memory are ignored.
func (a *Allocator) MarkUsed(start uint64, size uint64) {
	limit := a.Limit()

	if start >= limit || size == 0 {
		return
	}

	// clamp before rounding, start+size can wrap
	end := limit

	if size < limit-start {
		end = start + size
	}

	first := int(start / Size)
	last := int((end + Size - 1) / Size)

	for i := first; i < last; i++ {
		a.set(i)
	}
}

func (a *Allocator) usable(i int) (usable bool) {
	addr := uint64(i) * Size

	a.memoryMap.Walk(func(d *memmap.Descriptor) bool {
		if d.Usable() && addr >= d.PhysicalStart && addr < d.PhysicalEnd() {
			usable = true
		}
		return !usable
	})

	return
}

// Free releases a frame previously returned by Allocate.
func (a *Allocator) Free(f Frame) FreeResult {
	i := f.Index()

	if uint64(f)%Size != 0 || i >= a.frameCount || !a.usable(i) {
		return NotOwned
	}

	if !a.test(i) {
		return DoubleFreeRejected
	}

	a.clear(i)

	return Freed
}
