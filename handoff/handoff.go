// Copyright (c) The go-kernel authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package handoff implements the transfer of memory ownership from the
// Unified Extensible Firmware Interface (UEFI) Boot Services to the kernel.
//
// The firmware only honors EFI_BOOT_SERVICES.ExitBootServices() when presented
// with the key of the most recently retrieved memory map, the Bridge therefore
// recaptures the memory map before each exit attempt until one is accepted.
// After that no firmware service can be invoked.
package handoff

import (
	"errors"
	"fmt"

	"github.com/usbarmory/go-kernel/memmap"
)

var (
	ErrProtocolNotFound = errors.New("could not locate graphics output protocol")
	ErrMemoryMap        = errors.New("could not get memory map")
	ErrServicesExited   = errors.New("EFI Boot Services unavailable")
)

// Firmware represents the EFI Boot Services used during the handoff.
type Firmware interface {
	// LocateGraphics returns the EFI Graphics Output Protocol current
	// mode.
	LocateGraphics() (*Graphics, error)

	// GetMemoryMap fills buf with the current memory map, buf capacity is
	// passed as the map size.
	GetMemoryMap(buf []byte) (*memmap.Snapshot, error)

	// AllocatePages reserves the argument physical range as loader data.
	AllocatePages(addr uint64, size int) error

	// ExitBootServices terminates boot services, mapKey must match the
	// current memory map.
	ExitBootServices(imageHandle uint64, mapKey uint64) error
}

// State represents the exit handshake state.
type State int

// Handshake states
const (
	Idle State = iota
	MapCaptured
	ExitRequested
	ExitAccepted
	StaleRejected
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case MapCaptured:
		return "map captured"
	case ExitRequested:
		return "exit requested"
	case ExitAccepted:
		return "exit accepted"
	case StaleRejected:
		return "stale map rejected"
	}

	return fmt.Sprintf("State(%d)", int(s))
}

// Bridge represents the firmware side of the kernel boot handoff.
type Bridge struct {
	// Firmware provides the boot services
	Firmware Firmware

	// ImageHandle is the UEFI image handle passed at entry
	ImageHandle uint64

	// Buffer holds the memory map, it is reused by every capture
	Buffer []byte

	// Observer, when set, is invoked on each handshake state transition.
	Observer func(from State, to State)

	state    State
	attempts int
	snapshot *memmap.Snapshot
}

// NewBridge returns a Bridge with a memory map buffer of the default
// capacity.
func NewBridge(fw Firmware, imageHandle uint64) *Bridge {
	return &Bridge{
		Firmware:    fw,
		ImageHandle: imageHandle,
		Buffer:      make([]byte, memmap.DefaultStride*memmap.MaxEntries),
	}
}

func (b *Bridge) transition(to State) {
	from := b.state
	b.state = to

	if b.Observer != nil {
		b.Observer(from, to)
	}
}

// State returns the current handshake state.
func (b *Bridge) State() State {
	return b.state
}

// Exited reports whether boot services have been terminated.
func (b *Bridge) Exited() bool {
	return b.state == ExitAccepted
}

// Attempts returns the number of exit requests issued to the firmware.
func (b *Bridge) Attempts() int {
	return b.attempts
}

// Snapshot returns the last captured memory map, after a successful exit this
// is the memory map in effect for the remaining kernel life.
func (b *Bridge) Snapshot() *memmap.Snapshot {
	return b.snapshot
}

// LocateGraphics returns the graphics output device, any firmware failure is
// reported as ErrProtocolNotFound.
func (b *Bridge) LocateGraphics() (g *Graphics, err error) {
	if b.Exited() {
		return nil, ErrServicesExited
	}

	if g, err = b.Firmware.LocateGraphics(); err != nil {
		return nil, fmt.Errorf("%w, %v", ErrProtocolNotFound, err)
	}

	return
}

// Reserve allocates the argument physical range from the firmware so that it
// is reported as in use by the memory map.
func (b *Bridge) Reserve(addr uint64, size int) error {
	if b.Exited() {
		return ErrServicesExited
	}

	return b.Firmware.AllocatePages(addr, size)
}

// CaptureMemoryMap retrieves the current memory map into the bridge buffer,
// any firmware failure is reported as ErrMemoryMap.
func (b *Bridge) CaptureMemoryMap() (s *memmap.Snapshot, err error) {
	if b.Exited() {
		return nil, ErrServicesExited
	}

	if s, err = b.Firmware.GetMemoryMap(b.Buffer[:cap(b.Buffer)]); err != nil {
		return nil, fmt.Errorf("%w, %v", ErrMemoryMap, err)
	}

	if err = s.Validate(); err != nil {
		return nil, fmt.Errorf("%w, %v", ErrMemoryMap, err)
	}

	b.snapshot = s
	b.transition(MapCaptured)

	return
}

// ExitBootServices terminates EFI Boot Services, the memory map is recaptured
// before every attempt and attempts are repeated until the firmware accepts
// one.
//
// On success the firmware services must not be used again, the returned
// snapshot describes memory ownership from this point on.
func (b *Bridge) ExitBootServices() (s *memmap.Snapshot, err error) {
	if b.Exited() {
		return nil, ErrServicesExited
	}

	for {
		if s, err = b.CaptureMemoryMap(); err != nil {
			return
		}

		b.transition(ExitRequested)
		b.attempts++

		if err = b.Firmware.ExitBootServices(b.ImageHandle, s.Key); err == nil {
			b.transition(ExitAccepted)
			return
		}

		b.transition(StaleRejected)
	}
}
