// Copyright (c) The go-kernel authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package memmap

import (
	"fmt"
)

// Encode serializes descriptors spaced by stride into buf, as firmware does
// when filling a memory map, and returns the number of bytes written. Padding
// bytes between descriptors are left untouched.
func Encode(buf []byte, stride int, descs ...Descriptor) (n int, err error) {
	if stride < DescriptorSize {
		return 0, fmt.Errorf("%w (%d)", ErrInvalidStride, stride)
	}

	if need := stride * len(descs); need > len(buf) {
		return 0, fmt.Errorf("%w (%d > %d)", ErrInvalidSize, need, len(buf))
	}

	for _, d := range descs {
		b, _ := d.MarshalBinary()
		copy(buf[n:], b)
		n += stride
	}

	return
}
