// Copyright (c) The go-kernel authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package paging implements a flat identity mapping of the low physical
// address space on x86-64, using 1 GiB pages referenced by a single Page
// Directory Pointer Table.
//
// The identity mapping is the only address space used after exiting EFI Boot
// Services: every virtual address below the mapped limit equals its physical
// counterpart, any other access faults with no recovery.
package paging

import (
	"errors"
	"fmt"
	"unsafe"
)

const (
	// PageSize represents the page table size and alignment.
	PageSize = 4096
	// HugePageSize represents the size of a PDPT large page.
	HugePageSize = 1 << 30

	// entries per table
	tableSize = 512

	// DefaultGigabytes represents the default mapped range in GiB.
	DefaultGigabytes = 4
)

// Page table entry flags
const (
	Present  Entry = 1 << 0
	Writable Entry = 1 << 1
	Huge     Entry = 1 << 7

	flagsMask   Entry = 0xfff | 1<<63
	addressMask Entry = ((1 << 52) - 1) &^ 0xfff
)

var (
	ErrNotMapped  = errors.New("address not mapped")
	ErrUnaligned  = errors.New("page table not aligned")
	ErrInvalidMap = errors.New("invalid mapping size")
)

// Entry represents a page table entry.
type Entry uint64

// Address returns the physical address referenced by the entry.
func (e Entry) Address() uint64 {
	return uint64(e & addressMask)
}

// Flags returns the entry flags.
func (e Entry) Flags() Entry {
	return e & flagsMask
}

// PageTable represents the hardware layout of a page table.
type PageTable [tableSize]Entry

// Address returns the table address, which equals its physical address
// under the identity mapping.
func (t *PageTable) Address() uint64 {
	return uint64(uintptr(unsafe.Pointer(t)))
}

// NewPageTable returns a zeroed, page aligned, page table.
func NewPageTable() *PageTable {
	buf := make([]byte, 2*PageSize)
	off := 0

	if r := int(uintptr(unsafe.Pointer(&buf[0])) % PageSize); r != 0 {
		off = PageSize - r
	}

	return (*PageTable)(unsafe.Pointer(&buf[off]))
}

// CR3Loader represents the processor control register holding the physical
// address of the active top-level page table.
type CR3Loader interface {
	LoadCR3(addr uint64)
}

// IdentityMap represents a two-level identity mapping of [0, Gigabytes GiB).
type IdentityMap struct {
	// PML4 is the top-level table, only its first entry is populated.
	PML4 *PageTable
	// PDPT holds one 1 GiB page descriptor per mapped gigabyte.
	PDPT *PageTable
	// Gigabytes is the number of mapped 1 GiB pages.
	Gigabytes int

	installed bool
}

// New returns an identity mapping over the argument tables, which must be
// page aligned.
func New(pml4 *PageTable, pdpt *PageTable, gigabytes int) (m *IdentityMap, err error) {
	if gigabytes < 1 || gigabytes > tableSize {
		return nil, fmt.Errorf("%w (%d GiB)", ErrInvalidMap, gigabytes)
	}

	for _, t := range []*PageTable{pml4, pdpt} {
		if t == nil || t.Address()%PageSize != 0 {
			return nil, ErrUnaligned
		}
	}

	return &IdentityMap{
		PML4:      pml4,
		PDPT:      pdpt,
		Gigabytes: gigabytes,
	}, nil
}

// Limit returns the first address beyond the mapped range.
func (m *IdentityMap) Limit() uint64 {
	return uint64(m.Gigabytes) * HugePageSize
}

// Contains reports whether the argument range lies within the mapped range.
func (m *IdentityMap) Contains(start uint64, size uint64) bool {
	end := start + size
	return end >= start && end <= m.Limit()
}

// Build populates the page tables, any previous entry is cleared.
func (m *IdentityMap) Build() {
	*m.PML4 = PageTable{}
	*m.PDPT = PageTable{}

	for i := 0; i < m.Gigabytes; i++ {
		m.PDPT[i] = Entry(uint64(i)*HugePageSize) | Present | Writable | Huge
	}

	m.PML4[0] = Entry(m.PDPT.Address()) | Present | Writable
}

// Install builds the page tables and activates them, the caller code, data
// and stack must lie within the mapped range.
func (m *IdentityMap) Install(cpu CR3Loader) {
	m.Build()
	cpu.LoadCR3(m.PML4.Address())
	m.installed = true
}

// Installed reports whether Install has been called.
func (m *IdentityMap) Installed() bool {
	return m.installed
}

func (m *IdentityMap) table(addr uint64) *PageTable {
	switch addr {
	case m.PML4.Address():
		return m.PML4
	case m.PDPT.Address():
		return m.PDPT
	}

	return nil
}

// Translate walks the page tables to resolve a virtual address into its
// physical counterpart.
func (m *IdentityMap) Translate(v uint64) (uint64, error) {
	// non-canonical or beyond the first PML4 entry
	if v>>39 != 0 {
		return 0, fmt.Errorf("%w (%#x)", ErrNotMapped, v)
	}

	pml4e := m.PML4[(v>>39)&(tableSize-1)]

	if pml4e&Present == 0 {
		return 0, fmt.Errorf("%w (%#x)", ErrNotMapped, v)
	}

	pdpt := m.table(pml4e.Address())

	if pdpt == nil {
		return 0, fmt.Errorf("invalid PDPT reference %#x", pml4e.Address())
	}

	pdpte := pdpt[(v>>30)&(tableSize-1)]

	if pdpte&Present == 0 || pdpte&Huge == 0 {
		return 0, fmt.Errorf("%w (%#x)", ErrNotMapped, v)
	}

	return pdpte.Address()&^(HugePageSize-1) | v&(HugePageSize-1), nil
}
