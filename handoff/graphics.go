// Copyright (c) The go-kernel authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package handoff

import (
	"errors"
	"unsafe"
)

// Graphics represents the EFI Graphics Output Protocol mode in use at boot.
type Graphics struct {
	HorizontalResolution uint32
	VerticalResolution   uint32
	PixelsPerScanLine    uint32

	FrameBufferBase uint64
	FrameBufferSize uint64
}

// Framebuffer represents a linear 32-bit per pixel frame buffer, consumed by
// drawing routines.
type Framebuffer struct {
	Pixels []uint32

	Width  int
	Height int
	Stride int
}

// Framebuffer returns the frame buffer over mem, which must map
// FrameBufferSize bytes starting at FrameBufferBase.
func (g *Graphics) Framebuffer(mem []byte) (fb *Framebuffer, err error) {
	if uint64(len(mem)) < g.FrameBufferSize || g.FrameBufferSize < 4 {
		return nil, errors.New("invalid frame buffer memory")
	}

	fb = &Framebuffer{
		Pixels: unsafe.Slice((*uint32)(unsafe.Pointer(&mem[0])), g.FrameBufferSize/4),
		Width:  int(g.HorizontalResolution),
		Height: int(g.VerticalResolution),
		Stride: int(g.PixelsPerScanLine),
	}

	if fb.Stride == 0 {
		fb.Stride = fb.Width
	}

	return
}
