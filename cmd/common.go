// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package cmd implements the kernel console commands.
package cmd

import (
	"bytes"
	"fmt"
	"io"
	"runtime"
	"runtime/debug"
	"runtime/pprof"
	"time"

	"github.com/hako/durafmt"

	"github.com/usbarmory/go-kernel/shell"
)

// Build information, set by main.
var (
	Revision string
	Build    string
)

func init() {
	shell.Add(shell.Cmd{
		Name: "build",
		Help: "build information",
		Fn:   buildInfoCmd,
	})

	shell.Add(shell.Cmd{
		Name: "exit",
		Help: "close session",
		Fn:   exitCmd,
	})

	shell.Add(shell.Cmd{
		Name: "stack",
		Help: "goroutine stack trace (current)",
		Fn:   stackCmd,
	})

	shell.Add(shell.Cmd{
		Name: "stackall",
		Help: "goroutine stack trace (all)",
		Fn:   stackallCmd,
	})
}

func buildInfoCmd(_ *shell.Interface, _ []string) (string, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Revision ....: %s\n", Revision)
	fmt.Fprintf(&buf, "Build .......: %s\n", Build)

	if bi, ok := debug.ReadBuildInfo(); ok {
		buf.WriteString(bi.String())
	}

	return buf.String(), nil
}

func exitCmd(_ *shell.Interface, _ []string) (string, error) {
	return fmt.Sprintf("Goodbye from %s/%s", runtime.GOOS, runtime.GOARCH), io.EOF
}

func stackCmd(_ *shell.Interface, _ []string) (string, error) {
	return string(debug.Stack()), nil
}

func stackallCmd(_ *shell.Interface, _ []string) (string, error) {
	buf := new(bytes.Buffer)
	pprof.Lookup("goroutine").WriteTo(buf, 1)

	return buf.String(), nil
}

func formatUptime(ns int64) string {
	return durafmt.Parse(time.Duration(ns) * time.Nanosecond).LimitFirstN(3).String()
}
