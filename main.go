// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build tamago && amd64

package main

import (
	"fmt"
	"log"
	"runtime"

	"github.com/usbarmory/go-kernel/boot"
	"github.com/usbarmory/go-kernel/cmd"
	"github.com/usbarmory/go-kernel/handoff"
	"github.com/usbarmory/go-kernel/paging"
	"github.com/usbarmory/go-kernel/shell"
	"github.com/usbarmory/go-kernel/uefi/x64"
)

// Build information
var (
	Revision string
	Build    string
)

func init() {
	log.SetFlags(0)

	cmd.Revision = Revision
	cmd.Build = Build
}

func main() {
	log.Printf("%s/%s (%s) • %s %s", runtime.GOOS, runtime.GOARCH, runtime.Version(), Revision, Build)

	fw, err := x64.NewFirmware()

	if err != nil {
		x64.Fatal(err)
	}

	cfg := boot.DefaultConfig
	cfg.Exited = x64.Detach

	k, err := boot.Run(cfg, fw, x64.UEFI.ImageHandle(), paging.Register{}, x64.Memory{})

	if err != nil {
		x64.Fatal(err)
	}

	cmd.Kernel = k

	if k.Framebuffer != nil {
		blank(k.Framebuffer)
	}

	iface := &shell.Interface{
		Banner:     fmt.Sprintf("%s/%s (%s) • UEFI • %s", runtime.GOOS, runtime.GOARCH, runtime.Version(), Revision),
		ReadWriter: x64.UART0,
	}

	// the kernel never returns to the firmware
	for {
		iface.Start()
	}
}

// blank paints the frame buffer black.
func blank(fb *handoff.Framebuffer) {
	for i := range fb.Pixels {
		fb.Pixels[i] = 0
	}
}
