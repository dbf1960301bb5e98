// Copyright (c) The go-kernel authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package paging

// defined in cr3_amd64.s
func loadCR3(addr uint64)

// Register represents the x86-64 CR3 control register.
type Register struct{}

// LoadCR3 writes the argument page table address to CR3, flushing all
// non-global TLB entries.
func (Register) LoadCR3(addr uint64) {
	loadCR3(addr)
}
