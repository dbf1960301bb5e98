// Copyright (c) The go-kernel authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/usbarmory/go-kernel/boot"
	"github.com/usbarmory/go-kernel/frame"
	"github.com/usbarmory/go-kernel/memmap"
	"github.com/usbarmory/go-kernel/shell"
)

// Kernel represents the memory state handed over by the boot sequence, it is
// set once before starting the console.
var Kernel *boot.Kernel

var errNoKernel = errors.New("boot sequence not completed")

func init() {
	shell.Add(shell.Cmd{
		Name: "memmap",
		Help: "memory map at EFI Boot Services exit",
		Fn:   memmapCmd,
	})

	shell.Add(shell.Cmd{
		Name: "e820",
		Help: "memory map in E820 format",
		Fn:   e820Cmd,
	})

	shell.Add(shell.Cmd{
		Name: "frames",
		Help: "frame allocator status",
		Fn:   framesCmd,
	})

	shell.Add(shell.Cmd{
		Name: "frame",
		Help: "allocate a physical frame",
		Fn:   frameCmd,
	})

	shell.Add(shell.Cmd{
		Name:    "release",
		Args:    1,
		Pattern: regexp.MustCompile(`^release ([[:xdigit:]]+)$`),
		Syntax:  "<hex address>",
		Help:    "release a physical frame",
		Fn:      releaseCmd,
	})

	shell.Add(shell.Cmd{
		Name:    "heap",
		Args:    1,
		Pattern: regexp.MustCompile(`^heap(?: (free|used))?$`),
		Syntax:  "(free|used)?",
		Help:    "show kernel heap allocation",
		Fn:      heapCmd,
	})

	shell.Add(shell.Cmd{
		Name:    "malloc",
		Args:    2,
		Pattern: regexp.MustCompile(`^malloc (\d+)(?: (\d+))?$`),
		Syntax:  "<size> (align)?",
		Help:    "allocate kernel heap memory",
		Fn:      mallocCmd,
	})

	shell.Add(shell.Cmd{
		Name:    "mfree",
		Args:    1,
		Pattern: regexp.MustCompile(`^mfree ([[:xdigit:]]+)$`),
		Syntax:  "<hex address>",
		Help:    "release kernel heap memory",
		Fn:      mfreeCmd,
	})

	shell.Add(shell.Cmd{
		Name:    "translate",
		Args:    1,
		Pattern: regexp.MustCompile(`^translate ([[:xdigit:]]+)$`),
		Syntax:  "<hex address>",
		Help:    "translate virtual to physical address",
		Fn:      translateCmd,
	})

	shell.Add(shell.Cmd{
		Name: "handoff",
		Help: "boot handoff summary",
		Fn:   handoffCmd,
	})
}

func parseAddress(s string) (uint64, error) {
	addr, err := strconv.ParseUint(s, 16, 64)

	if err != nil {
		return 0, fmt.Errorf("invalid address, %v", err)
	}

	return addr, nil
}

func memmapCmd(_ *shell.Interface, _ []string) (res string, err error) {
	var buf bytes.Buffer

	if Kernel == nil {
		return "", errNoKernel
	}

	fmt.Fprintf(&buf, "%-24s %-16s %-16s %-8s %s\n", "Type", "Start", "End", "Pages", "Attributes")

	err = Kernel.Memory.Walk(func(d *memmap.Descriptor) bool {
		fmt.Fprintf(&buf, "%-24s %016x %016x %8d %016x\n",
			d.Type, d.PhysicalStart, d.PhysicalEnd()-1, d.NumberOfPages, d.Attribute)
		return true
	})

	fmt.Fprintf(&buf, "%d entries (stride %d), %d usable bytes", Kernel.Memory.Len(), Kernel.Memory.DescriptorSize, Kernel.Memory.UsableBytes())

	return buf.String(), err
}

func e820Cmd(_ *shell.Interface, _ []string) (res string, err error) {
	var buf bytes.Buffer

	if Kernel == nil {
		return "", errNoKernel
	}

	entries, err := Kernel.Memory.E820()

	if err != nil {
		return
	}

	for _, e := range entries {
		fmt.Fprintf(&buf, "%016x-%016x %v\n", e.Addr, e.Addr+e.Size-1, e.MemType)
	}

	return strings.TrimSuffix(buf.String(), "\n"), nil
}

func framesCmd(_ *shell.Interface, _ []string) (string, error) {
	var buf bytes.Buffer

	if Kernel == nil {
		return "", errNoKernel
	}

	a := Kernel.Frames

	fmt.Fprintf(&buf, "Frames ......: %d (%#x)\n", a.Frames(), a.Limit())
	fmt.Fprintf(&buf, "Free ........: %d (%d KiB)", a.FreeFrames(), a.FreeFrames()*frame.Size/1024)

	return buf.String(), nil
}

func frameCmd(_ *shell.Interface, _ []string) (string, error) {
	if Kernel == nil {
		return "", errNoKernel
	}

	f, ok := Kernel.Frames.Allocate()

	if !ok {
		return "", frame.ErrNoMemory
	}

	return f.String(), nil
}

func releaseCmd(_ *shell.Interface, arg []string) (string, error) {
	if Kernel == nil {
		return "", errNoKernel
	}

	addr, err := parseAddress(arg[0])

	if err != nil {
		return "", err
	}

	return Kernel.Frames.Free(frame.Frame(addr)).String(), nil
}

func heapCmd(_ *shell.Interface, arg []string) (string, error) {
	var res []string

	if Kernel == nil || Kernel.Heap == nil {
		return "", errNoKernel
	}

	dump := func(blocks map[uint64]int, tag string) string {
		var r []string
		var t int

		for addr, n := range blocks {
			t += n
			r = append(r, fmt.Sprintf("%#08x-%#08x %10d", addr, addr+uint64(n), n))
		}

		sort.Strings(r)
		r = append(r, fmt.Sprintf("%21s %10d bytes %s", "", t, tag))

		return strings.Join(r, "\n")
	}

	if arg[0] == "" || arg[0] == "free" {
		if blocks := Kernel.Heap.FreeBlocks(); len(blocks) > 0 {
			res = append(res, dump(blocks, "free"))
		}
	}

	if arg[0] == "" || arg[0] == "used" {
		if blocks := Kernel.Heap.UsedBlocks(); len(blocks) > 0 {
			res = append(res, dump(blocks, "used"))
		}
	}

	return strings.Join(res, "\n"), nil
}

func mallocCmd(_ *shell.Interface, arg []string) (string, error) {
	var align int

	if Kernel == nil || Kernel.Heap == nil {
		return "", errNoKernel
	}

	size, err := strconv.Atoi(arg[0])

	if err != nil {
		return "", fmt.Errorf("invalid size, %v", err)
	}

	if arg[1] != "" {
		if align, err = strconv.Atoi(arg[1]); err != nil {
			return "", fmt.Errorf("invalid alignment, %v", err)
		}
	}

	addr, _, err := Kernel.Heap.Alloc(size, align)

	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%#08x", addr), nil
}

func mfreeCmd(_ *shell.Interface, arg []string) (string, error) {
	if Kernel == nil || Kernel.Heap == nil {
		return "", errNoKernel
	}

	addr, err := parseAddress(arg[0])

	if err != nil {
		return "", err
	}

	return "", Kernel.Heap.Free(addr)
}

func translateCmd(_ *shell.Interface, arg []string) (string, error) {
	if Kernel == nil {
		return "", errNoKernel
	}

	addr, err := parseAddress(arg[0])

	if err != nil {
		return "", err
	}

	phys, err := Kernel.Pages.Translate(addr)

	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%#016x -> %#016x", addr, phys), nil
}

func handoffCmd(_ *shell.Interface, _ []string) (string, error) {
	var buf bytes.Buffer

	if Kernel == nil {
		return "", errNoKernel
	}

	fmt.Fprintf(&buf, "Exit attempts: %d\n", Kernel.Attempts)
	fmt.Fprintf(&buf, "Map key .....: %#x\n", Kernel.Memory.Key)
	fmt.Fprintf(&buf, "Identity map : %#x bytes (PML4 %#x)\n", Kernel.Pages.Limit(), Kernel.Pages.PML4.Address())

	if Kernel.Heap != nil {
		fmt.Fprintf(&buf, "Heap ........: %v (%d bytes free)\n", Kernel.Heap.Region(), Kernel.Heap.Available())
	}

	if g := Kernel.Graphics; g != nil {
		fmt.Fprintf(&buf, "Frame buffer : %dx%d @ %#x", g.HorizontalResolution, g.VerticalResolution, g.FrameBufferBase)
	}

	return strings.TrimSuffix(buf.String(), "\n"), nil
}
