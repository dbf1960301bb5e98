// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build tamago && amd64

package uefi

// EFI ConOut offset for OutputString
const outputString = 0x08

// Console represents an EFI Simple Text Output protocol instance, it is only
// valid until Boot Services are terminated.
type Console struct {
	// ForceLine controls whether line feeds (LF) should be supplemented
	// with a carriage return (CR).
	ForceLine bool

	// EFI Simple Text Output protocol instance, a zero value disables
	// output.
	Out uint64
}

// Output calls EFI_SIMPLE_TEXT_OUTPUT_PROTOCOL.OutputString() with an UTF-16
// string.
func (c *Console) Output(p []byte) (status uint64) {
	if c.Out == 0 || len(p) == 0 {
		return
	}

	if len(p) < 2 || p[len(p)-2] != 0x00 || p[len(p)-1] != 0x00 {
		p = append(p, 0x00, 0x00)
	}

	return callService(c.Out+outputString,
		[]uint64{
			c.Out,
			ptrval(&p[0]),
		},
	)
}

// Detach disables the console, it must be invoked once Boot Services are
// terminated as its protocol instance is no longer valid.
func (c *Console) Detach() {
	c.Out = 0
}
