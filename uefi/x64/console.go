// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build tamago && amd64

package x64

import (
	_ "unsafe"

	"github.com/usbarmory/go-kernel/uefi"
)

// Console represents the early UEFI services console for pre UEFI.Init()
// standard output.
var Console = &uefi.Console{
	ForceLine: true,
}

// detached is set once Boot Services are terminated, the runtime standard
// output is then moved to the serial port.
var detached bool

// char is the UTF-16 printk buffer, it is statically allocated as printk
// must not allocate.
var char [4]byte

//go:linkname printk runtime.printk
func printk(c byte) {
	if detached {
		UART0.Tx(c)
		return
	}

	if Console.Out == 0 {
		Console.Out = conOut
	}

	char[0] = c
	Console.Output(char[:])

	if c == 0x0a && Console.ForceLine { // LF
		char[0] = 0x0d // CR
		Console.Output(char[:])
	}
}
