// Copyright (c) The go-kernel authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package heap implements a first-fit free-list allocator over a fixed,
// identity mapped, memory range.
//
// Allocations are tracked in address ordered free and used block lists,
// released blocks are merged with their free neighbours.
package heap

import (
	"container/list"
	"errors"
	"fmt"
	"sync"
)

// Alignment represents the minimum allocation alignment.
const Alignment = 16

// Default heap range
const (
	DefaultStart = 0x00800000 // 8 MiB
	DefaultSize  = 100 * 1024 // 100 KiB
)

var (
	ErrInitialized    = errors.New("heap already initialized")
	ErrNotInitialized = errors.New("heap not initialized")
	ErrOutOfMemory    = errors.New("out of memory")
	ErrInvalidSize    = errors.New("invalid size")
	ErrInvalidAddress = errors.New("invalid address")
)

// Region represents a heap memory range.
type Region struct {
	Start uint64
	Size  int
}

// End returns the first address beyond the region.
func (r Region) End() uint64 {
	return r.Start + uint64(r.Size)
}

func (r Region) String() string {
	return fmt.Sprintf("%#08x-%#08x", r.Start, r.End())
}

type block struct {
	addr uint64
	size int
}

func (b *block) end() uint64 {
	return b.addr + uint64(b.size)
}

// Heap represents a free-list allocator instance.
type Heap struct {
	sync.Mutex

	region Region
	mem    []byte

	freeBlocks *list.List
	usedBlocks map[uint64]*block
}

// New initializes a heap over the argument region, mem is the region backing
// memory and must be at least Region.Size bytes long.
func New(r Region, mem []byte) (h *Heap, err error) {
	switch {
	case r.Size <= 0:
		return nil, fmt.Errorf("%w (%d)", ErrInvalidSize, r.Size)
	case len(mem) < r.Size:
		return nil, fmt.Errorf("%w, backing memory too small (%d < %d)", ErrInvalidSize, len(mem), r.Size)
	case r.Start%Alignment != 0:
		return nil, fmt.Errorf("%w, unaligned start %#x", ErrInvalidAddress, r.Start)
	case r.End() < r.Start:
		return nil, fmt.Errorf("%w, region overflow", ErrInvalidAddress)
	}

	h = &Heap{
		region:     r,
		mem:        mem[:r.Size],
		freeBlocks: list.New(),
		usedBlocks: make(map[uint64]*block),
	}

	h.freeBlocks.PushFront(&block{
		addr: r.Start,
		size: r.Size,
	})

	return
}

// Region returns the heap memory range.
func (h *Heap) Region() Region {
	return h.region
}

func roundUp(n uint64, align uint64) uint64 {
	return (n + align - 1) &^ (align - 1)
}

// Alloc reserves size bytes with the argument alignment (a power of two, 0
// selects the minimum alignment), returning the allocation address and its
// backing memory. On failure the heap state is left unchanged.
func (h *Heap) Alloc(size int, align int) (addr uint64, buf []byte, err error) {
	if size <= 0 {
		return 0, nil, fmt.Errorf("%w (%d)", ErrInvalidSize, size)
	}

	if align < Alignment {
		align = Alignment
	}

	if align&(align-1) != 0 {
		return 0, nil, fmt.Errorf("%w, alignment %d", ErrInvalidSize, align)
	}

	h.Lock()
	defer h.Unlock()

	n := int(roundUp(uint64(size), Alignment))

	for e := h.freeBlocks.Front(); e != nil; e = e.Next() {
		b := e.Value.(*block)
		start := roundUp(b.addr, uint64(align))

		if start+uint64(n) > b.end() {
			continue
		}

		h.split(e, start, n)

		off := start - h.region.Start
		buf = h.mem[off : off+uint64(size) : off+uint64(n)]

		return start, buf, nil
	}

	return 0, nil, fmt.Errorf("%w, %d bytes requested", ErrOutOfMemory, size)
}

// split carves [start, start+n) out of the free block at e.
func (h *Heap) split(e *list.Element, start uint64, n int) {
	b := e.Value.(*block)
	end := start + uint64(n)

	if end < b.end() {
		h.freeBlocks.InsertAfter(&block{addr: end, size: int(b.end() - end)}, e)
	}

	if start > b.addr {
		b.size = int(start - b.addr)
	} else {
		h.freeBlocks.Remove(e)
	}

	h.usedBlocks[start] = &block{addr: start, size: n}
}

// Free releases an allocation returned by Alloc.
func (h *Heap) Free(addr uint64) error {
	h.Lock()
	defer h.Unlock()

	b, ok := h.usedBlocks[addr]

	if !ok {
		return fmt.Errorf("%w (%#x)", ErrInvalidAddress, addr)
	}

	delete(h.usedBlocks, addr)

	var next *list.Element

	for e := h.freeBlocks.Front(); e != nil; e = e.Next() {
		if e.Value.(*block).addr > b.addr {
			next = e
			break
		}
	}

	var e *list.Element

	if next == nil {
		e = h.freeBlocks.PushBack(b)
	} else {
		e = h.freeBlocks.InsertBefore(b, next)
	}

	h.defrag(e)

	return nil
}

// defrag merges the free block at e with adjacent free blocks.
func (h *Heap) defrag(e *list.Element) {
	b := e.Value.(*block)

	if next := e.Next(); next != nil {
		if n := next.Value.(*block); b.end() == n.addr {
			b.size += n.size
			h.freeBlocks.Remove(next)
		}
	}

	if prev := e.Prev(); prev != nil {
		if p := prev.Value.(*block); p.end() == b.addr {
			p.size += b.size
			h.freeBlocks.Remove(e)
		}
	}
}

// FreeBlocks returns the free blocks as a map of address to size.
func (h *Heap) FreeBlocks() map[uint64]int {
	h.Lock()
	defer h.Unlock()

	m := make(map[uint64]int)

	for e := h.freeBlocks.Front(); e != nil; e = e.Next() {
		b := e.Value.(*block)
		m[b.addr] = b.size
	}

	return m
}

// UsedBlocks returns the allocated blocks as a map of address to size.
func (h *Heap) UsedBlocks() map[uint64]int {
	h.Lock()
	defer h.Unlock()

	m := make(map[uint64]int)

	for addr, b := range h.usedBlocks {
		m[addr] = b.size
	}

	return m
}

// Available returns the total free bytes.
func (h *Heap) Available() (n int) {
	for _, size := range h.FreeBlocks() {
		n += size
	}

	return
}
