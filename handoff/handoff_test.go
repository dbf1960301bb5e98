// Copyright (c) The go-kernel authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package handoff

import (
	"errors"
	"testing"

	"github.com/usbarmory/go-kernel/memmap"
)

const testImage = 0xcafe

var testMap = []memmap.Descriptor{
	{Type: memmap.EfiLoaderCode, PhysicalStart: 0, NumberOfPages: 16},
	{Type: memmap.EfiConventionalMemory, PhysicalStart: 16 * memmap.PageSize, NumberOfPages: 1024},
}

// testFirmware emulates boot services whose memory map key changes after
// every rejected exit request, up to reject times.
type testFirmware struct {
	key    uint64
	reject int

	graphics *Graphics
	mapErr   error

	exited      bool
	calls       int
	afterExit   int
	exitCalls   int
	allocated   []uint64
	imageHandle uint64
}

func (fw *testFirmware) call() {
	fw.calls++

	if fw.exited {
		fw.afterExit++
	}
}

func (fw *testFirmware) LocateGraphics() (*Graphics, error) {
	fw.call()

	if fw.graphics == nil {
		return nil, errors.New("EFI_NOT_FOUND")
	}

	return fw.graphics, nil
}

func (fw *testFirmware) GetMemoryMap(buf []byte) (*memmap.Snapshot, error) {
	fw.call()

	if fw.mapErr != nil {
		return nil, fw.mapErr
	}

	n, err := memmap.Encode(buf, memmap.DefaultStride, testMap...)

	if err != nil {
		return nil, err
	}

	return memmap.NewSnapshot(buf, n, memmap.DefaultStride, fw.key, 1)
}

func (fw *testFirmware) AllocatePages(addr uint64, size int) error {
	fw.call()
	fw.allocated = append(fw.allocated, addr)
	return nil
}

func (fw *testFirmware) ExitBootServices(imageHandle uint64, mapKey uint64) error {
	fw.call()
	fw.exitCalls++
	fw.imageHandle = imageHandle

	if fw.reject > 0 || mapKey != fw.key {
		fw.reject--
		// firmware activity invalidates the current map
		fw.key++
		return errors.New("EFI_INVALID_PARAMETER")
	}

	fw.exited = true

	return nil
}

func TestExitStaleKey(t *testing.T) {
	fw := &testFirmware{key: 1, reject: 1}
	b := NewBridge(fw, testImage)

	var transitions []State

	b.Observer = func(from State, to State) {
		transitions = append(transitions, to)
	}

	s, err := b.ExitBootServices()

	if err != nil {
		t.Fatal(err)
	}

	if b.Attempts() != 2 || fw.exitCalls != 2 {
		t.Fatalf("got %d attempts (%d firmware calls), want 2", b.Attempts(), fw.exitCalls)
	}

	if s.Key != 2 || b.Snapshot() != s {
		t.Fatalf("final snapshot key %d, want 2", s.Key)
	}

	if fw.imageHandle != testImage {
		t.Fatalf("got image handle %#x", fw.imageHandle)
	}

	want := []State{MapCaptured, ExitRequested, StaleRejected, MapCaptured, ExitRequested, ExitAccepted}

	if len(transitions) != len(want) {
		t.Fatalf("got transitions %v, want %v", transitions, want)
	}

	for i := range want {
		if transitions[i] != want[i] {
			t.Fatalf("got transitions %v, want %v", transitions, want)
		}
	}

	// no firmware service is reachable after exit
	if _, err := b.LocateGraphics(); !errors.Is(err, ErrServicesExited) {
		t.Fatalf("expected ErrServicesExited, got %v", err)
	}

	if _, err := b.CaptureMemoryMap(); !errors.Is(err, ErrServicesExited) {
		t.Fatalf("expected ErrServicesExited, got %v", err)
	}

	if _, err := b.ExitBootServices(); !errors.Is(err, ErrServicesExited) {
		t.Fatalf("expected ErrServicesExited, got %v", err)
	}

	if err := b.Reserve(0x800000, 4096); !errors.Is(err, ErrServicesExited) {
		t.Fatalf("expected ErrServicesExited, got %v", err)
	}

	if fw.afterExit != 0 {
		t.Fatalf("%d firmware calls after exit", fw.afterExit)
	}
}

func TestExitFirstAttempt(t *testing.T) {
	fw := &testFirmware{key: 7}
	b := NewBridge(fw, testImage)

	if b.State() != Idle {
		t.Fatalf("initial state %v", b.State())
	}

	s, err := b.ExitBootServices()

	if err != nil {
		t.Fatal(err)
	}

	if b.Attempts() != 1 || !b.Exited() || b.State() != ExitAccepted {
		t.Fatalf("got %d attempts, state %v", b.Attempts(), b.State())
	}

	if s.Len() != len(testMap) || s.UsableBytes() != 1024*memmap.PageSize {
		t.Fatalf("unexpected snapshot, %d entries", s.Len())
	}
}

func TestExitManyRejections(t *testing.T) {
	fw := &testFirmware{reject: 9}
	b := NewBridge(fw, testImage)

	if _, err := b.ExitBootServices(); err != nil {
		t.Fatal(err)
	}

	if b.Attempts() != 10 {
		t.Fatalf("got %d attempts, want 10", b.Attempts())
	}
}

func TestMemoryMapError(t *testing.T) {
	fw := &testFirmware{mapErr: errors.New("EFI_BUFFER_TOO_SMALL")}
	b := NewBridge(fw, testImage)

	if _, err := b.ExitBootServices(); !errors.Is(err, ErrMemoryMap) {
		t.Fatalf("expected ErrMemoryMap, got %v", err)
	}

	if fw.exitCalls != 0 || b.Exited() {
		t.Fatal("exit requested without memory map")
	}
}

func TestLocateGraphics(t *testing.T) {
	fw := &testFirmware{}
	b := NewBridge(fw, testImage)

	if _, err := b.LocateGraphics(); !errors.Is(err, ErrProtocolNotFound) {
		t.Fatalf("expected ErrProtocolNotFound, got %v", err)
	}

	fw.graphics = &Graphics{
		HorizontalResolution: 800,
		VerticalResolution:   600,
		PixelsPerScanLine:    832,
		FrameBufferBase:      0x80000000,
		FrameBufferSize:      832 * 600 * 4,
	}

	g, err := b.LocateGraphics()

	if err != nil {
		t.Fatal(err)
	}

	fb, err := g.Framebuffer(make([]byte, g.FrameBufferSize))

	if err != nil {
		t.Fatal(err)
	}

	if fb.Width != 800 || fb.Height != 600 || fb.Stride != 832 || len(fb.Pixels) != 832*600 {
		t.Fatalf("unexpected frame buffer %dx%d (%d)", fb.Width, fb.Height, fb.Stride)
	}

	if _, err := g.Framebuffer(make([]byte, 16)); err == nil {
		t.Fatal("expected error with short frame buffer memory")
	}
}

func TestStateString(t *testing.T) {
	if s := StaleRejected.String(); s != "stale map rejected" {
		t.Fatalf("got %q", s)
	}

	if s := State(42).String(); s != "State(42)" {
		t.Fatalf("got %q", s)
	}
}
