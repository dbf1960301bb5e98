// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package shell

import (
	"bytes"
	"fmt"
	"regexp"
	"sort"
	"sync"
	"text/tabwriter"
)

// CmdFn represents a command handler.
type CmdFn func(iface *Interface, arg []string) (res string, err error)

// Cmd represents a shell command.
type Cmd struct {
	// Name is the command name, matched verbatim when Pattern is nil.
	Name string
	// Args is the number of Pattern submatches passed to Fn.
	Args int
	// Pattern is the command regular expression.
	Pattern *regexp.Regexp
	// Syntax is the argument syntax shown in help.
	Syntax string
	// Help is the command description.
	Help string
	// Fn is the command handler.
	Fn CmdFn
}

var (
	mu   sync.Mutex
	cmds = make(map[string]*Cmd)
)

// Add registers a terminal command, a previous command with the same name is
// replaced.
func Add(cmd Cmd) {
	mu.Lock()
	defer mu.Unlock()

	cmds[cmd.Name] = &cmd
}

// Commands returns the registered commands sorted by name.
func Commands() (c []*Cmd) {
	mu.Lock()
	defer mu.Unlock()

	for _, cmd := range cmds {
		c = append(c, cmd)
	}

	sort.Slice(c, func(i, j int) bool {
		return c[i].Name < c[j].Name
	})

	return
}

// Help returns the registered commands help.
func (iface *Interface) Help(_ []string) (string, error) {
	var buf bytes.Buffer

	t := tabwriter.NewWriter(&buf, 16, 8, 0, '\t', tabwriter.TabIndent)

	for _, cmd := range Commands() {
		fmt.Fprintf(t, "%s\t%s\t # %s\n", cmd.Name, cmd.Syntax, cmd.Help)
	}

	t.Flush()

	return buf.String(), nil
}

// HelpCmd is the help command handler.
func HelpCmd(iface *Interface, arg []string) (string, error) {
	return iface.Help(arg)
}
