// Copyright (c) The go-kernel authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package heap

import (
	"sync"
)

var (
	mu          sync.Mutex
	defaultHeap *Heap
)

// Init initializes the global kernel heap, it can only be called once.
func Init(r Region, mem []byte) (err error) {
	mu.Lock()
	defer mu.Unlock()

	if defaultHeap != nil {
		return ErrInitialized
	}

	defaultHeap, err = New(r, mem)

	return
}

// Default returns the global kernel heap, nil before Init.
func Default() *Heap {
	mu.Lock()
	defer mu.Unlock()

	return defaultHeap
}

// Alloc reserves memory from the global kernel heap.
func Alloc(size int, align int) (addr uint64, buf []byte, err error) {
	h := Default()

	if h == nil {
		return 0, nil, ErrNotInitialized
	}

	return h.Alloc(size, align)
}

// Free releases memory to the global kernel heap.
func Free(addr uint64) error {
	h := Default()

	if h == nil {
		return ErrNotInitialized
	}

	return h.Free(addr)
}
