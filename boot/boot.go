// Copyright (c) The go-kernel authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package boot implements the kernel boot sequence, which takes ownership of
// physical memory from the UEFI firmware.
//
// The sequence is fixed: the graphics output is located while firmware
// services are available, the low physical memory is identity mapped, boot
// services are terminated with the latest memory map and finally the frame
// and heap allocators are initialized from that memory map.
package boot

import (
	"errors"
	"fmt"
	"log"

	"github.com/usbarmory/go-kernel/frame"
	"github.com/usbarmory/go-kernel/handoff"
	"github.com/usbarmory/go-kernel/heap"
	"github.com/usbarmory/go-kernel/memmap"
	"github.com/usbarmory/go-kernel/paging"
)

var ErrConfig = errors.New("invalid boot configuration")

// Config represents the boot memory layout.
type Config struct {
	// Gigabytes is the size of the identity mapped range.
	Gigabytes int

	// Limit is the highest physical address tracked by the frame
	// allocator, 0 selects the identity mapped range limit.
	Limit uint64

	// Heap is the kernel heap range, it must lie within the identity
	// mapped range.
	Heap heap.Region

	// BitmapSize is the frame allocator bitmap storage size.
	BitmapSize int

	// MemoryMapSize is the firmware memory map buffer size.
	MemoryMapSize int

	// Exited, when set, is invoked as soon as boot services are
	// terminated, before any further logging takes place.
	Exited func()
}

// DefaultConfig represents the default boot memory layout.
var DefaultConfig = Config{
	Gigabytes:     paging.DefaultGigabytes,
	Heap:          heap.Region{Start: heap.DefaultStart, Size: heap.DefaultSize},
	BitmapSize:    frame.DefaultStorageSize,
	MemoryMapSize: memmap.DefaultStride * memmap.MaxEntries,
}

// Memory represents access to identity mapped physical memory.
type Memory interface {
	// Slice returns the memory backing the argument physical range.
	Slice(addr uint64, size int) ([]byte, error)
}

// Kernel represents the memory state handed over by the boot sequence.
type Kernel struct {
	// Graphics is the boot graphics output mode
	Graphics *handoff.Graphics
	// Framebuffer is the graphics output frame buffer
	Framebuffer *handoff.Framebuffer

	// Memory is the memory map in effect after boot services exit
	Memory *memmap.Snapshot
	// Attempts is the number of exit requests issued to the firmware
	Attempts int

	// Pages is the installed identity map
	Pages *paging.IdentityMap
	// Frames is the physical frame allocator
	Frames *frame.Allocator
	// Heap is the kernel heap
	Heap *heap.Heap
}

// Validate checks the configuration invariants.
func (c *Config) Validate() error {
	if c.Gigabytes < 1 || c.Gigabytes > 512 {
		return fmt.Errorf("%w, unsupported identity map size (%d GiB)", ErrConfig, c.Gigabytes)
	}

	mapped := uint64(c.Gigabytes) * paging.HugePageSize

	if c.Limit > mapped {
		return fmt.Errorf("%w, frame limit %#x beyond mapped range (%#x)", ErrConfig, c.Limit, mapped)
	}

	if c.Heap.Size <= 0 || c.Heap.End() > mapped || c.Heap.End() < c.Heap.Start {
		return fmt.Errorf("%w, heap %v outside mapped range (%#x)", ErrConfig, c.Heap, mapped)
	}

	if c.BitmapSize <= 0 {
		return fmt.Errorf("%w, invalid bitmap size (%d)", ErrConfig, c.BitmapSize)
	}

	if c.MemoryMapSize < memmap.DescriptorSize {
		return fmt.Errorf("%w, invalid memory map size (%d)", ErrConfig, c.MemoryMapSize)
	}

	return nil
}

// Run executes the boot sequence. On success firmware services are no longer
// available.
func Run(cfg Config, fw handoff.Firmware, imageHandle uint64, cpu paging.CR3Loader, mem Memory) (k *Kernel, err error) {
	if err = cfg.Validate(); err != nil {
		return
	}

	k = &Kernel{}

	b := &handoff.Bridge{
		Firmware:    fw,
		ImageHandle: imageHandle,
		Buffer:      make([]byte, cfg.MemoryMapSize),
	}

	if k.Graphics, err = b.LocateGraphics(); err != nil {
		return nil, err
	}

	log.Printf("graphics output %dx%d at %#x", k.Graphics.HorizontalResolution, k.Graphics.VerticalResolution, k.Graphics.FrameBufferBase)

	if k.Pages, err = paging.New(paging.NewPageTable(), paging.NewPageTable(), cfg.Gigabytes); err != nil {
		return nil, err
	}

	k.Pages.Install(cpu)

	log.Printf("identity mapped %#x bytes (PML4 at %#x)", k.Pages.Limit(), k.Pages.PML4.Address())

	log.Printf("allocating memory range %v", cfg.Heap)

	if err = b.Reserve(cfg.Heap.Start, cfg.Heap.Size); err != nil {
		log.Printf("could not reserve heap range, %v", err)
	}

	log.Printf("exiting EFI boot services")

	if k.Memory, err = b.ExitBootServices(); err != nil {
		return nil, err
	}

	if cfg.Exited != nil {
		cfg.Exited()
	}

	k.Attempts = b.Attempts()

	log.Printf("exited EFI boot services after %d attempt(s), %d memory map entries", k.Attempts, k.Memory.Len())

	limit := cfg.Limit

	if limit == 0 {
		limit = k.Pages.Limit()
	}

	if k.Frames, err = frame.Build(k.Memory, make([]byte, cfg.BitmapSize), limit); err != nil {
		return nil, err
	}

	k.Frames.MarkUsed(cfg.Heap.Start, uint64(cfg.Heap.Size))

	log.Printf("frame allocator: %d frames, %d free", k.Frames.Frames(), k.Frames.FreeFrames())

	arena, err := mem.Slice(cfg.Heap.Start, cfg.Heap.Size)

	if err != nil {
		return nil, fmt.Errorf("could not map heap, %w", err)
	}

	if err = heap.Init(cfg.Heap, arena); err != nil {
		return nil, err
	}

	k.Heap = heap.Default()

	if k.Graphics.FrameBufferSize == 0 {
		return
	}

	if fb, err := mem.Slice(k.Graphics.FrameBufferBase, int(k.Graphics.FrameBufferSize)); err != nil {
		log.Printf("could not map frame buffer, %v", err)
	} else if k.Framebuffer, err = k.Graphics.Framebuffer(fb); err != nil {
		log.Printf("invalid frame buffer, %v", err)
	}

	return
}
