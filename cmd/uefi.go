// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build tamago && amd64

package cmd

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"log"
	"regexp"
	"unicode/utf16"

	"github.com/usbarmory/go-kernel/shell"
	"github.com/usbarmory/go-kernel/uefi"
	"github.com/usbarmory/go-kernel/uefi/x64"
)

const maxVendorSize = 32

func init() {
	shell.Add(shell.Cmd{
		Name: "uefi",
		Help: "UEFI information",
		Fn:   uefiCmd,
	})

	shell.Add(shell.Cmd{
		Name:    "reset",
		Args:    1,
		Pattern: regexp.MustCompile(`^reset(?: (cold|warm))?$`),
		Help:    "EFI_RUNTIME_SERVICES.ResetSystem()",
		Syntax:  "(cold|warm)?",
		Fn:      resetCmd,
	})

	shell.Add(shell.Cmd{
		Name: "shutdown",
		Help: "shutdown system",
		Fn:   shutdownCmd,
	})
}

func uefiCmd(_ *shell.Interface, _ []string) (res string, err error) {
	var buf bytes.Buffer
	var s []uint16

	t := x64.UEFI.SystemTable

	if t == nil {
		return "", fmt.Errorf("EFI System Table unavailable")
	}

	if b, err := uefi.Slice(t.FirmwareVendor, maxVendorSize); err == nil {
		for i := 0; i < maxVendorSize; i += 2 {
			if b[i] == 0x00 && b[i+1] == 0 {
				break
			}

			s = append(s, binary.LittleEndian.Uint16(b[i:i+2]))
		}
	}

	fmt.Fprintf(&buf, "Firmware Vendor ....: %s\n", string(utf16.Decode(s)))
	fmt.Fprintf(&buf, "Firmware Revision ..: %#x\n", t.FirmwareRevision)
	fmt.Fprintf(&buf, "Runtime Services ...: %#x\n", t.RuntimeServices)
	fmt.Fprintf(&buf, "Boot Services ......: %#x (terminated)\n", t.BootServices)
	fmt.Fprintf(&buf, "Configuration Tables: %d @ %#x", t.NumberOfTableEntries, t.ConfigurationTable)

	return buf.String(), nil
}

func resetCmd(_ *shell.Interface, arg []string) (_ string, err error) {
	var resetType int

	switch arg[0] {
	case "cold":
		resetType = uefi.EfiResetCold
	case "warm", "":
		resetType = uefi.EfiResetWarm
	case "shutdown":
		resetType = uefi.EfiResetShutdown
	}

	log.Printf("performing system reset type %d", resetType)
	err = x64.UEFI.Runtime.ResetSystem(resetType)

	return
}

func shutdownCmd(_ *shell.Interface, _ []string) (_ string, err error) {
	return resetCmd(nil, []string{"shutdown"})
}
