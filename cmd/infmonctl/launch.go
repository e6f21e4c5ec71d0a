// Copyright 2018 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/google/subcommands"

	"github.com/newappfirst/infmon/pkg/ptrace"
)

// launchCmd implements subcommands.Command for "launch".
type launchCmd struct {
	disableASLR bool
	workingDir  string
}

func (*launchCmd) Name() string     { return "launch" }
func (*launchCmd) Synopsis() string { return "start a new inferior under trace" }
func (*launchCmd) Usage() string {
	return `launch [flags] <path> [args...] - fork, trace, and exec path
`
}

func (c *launchCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.disableASLR, "disable-aslr", false, "clear the child's ASLR personality bit before exec")
	f.StringVar(&c.workingDir, "chdir", "", "working directory for the inferior")
}

func (c *launchCmd) Execute(_ context.Context, f *flag.FlagSet, extra ...any) subcommands.ExitStatus {
	if f.NArg() == 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	cfg, _ := extra[0].(*Config)
	aslrFlagSet := false
	f.Visit(func(fl *flag.Flag) {
		if fl.Name == "disable-aslr" {
			aslrFlagSet = true
		}
	})
	if cfg != nil && cfg.DisableASLR && !aslrFlagSet {
		c.disableASLR = true
	}
	workingDir := c.workingDir
	if workingDir == "" && cfg != nil {
		workingDir = cfg.WorkingDir
	}

	sink := newConsoleSink()
	m, err := ptrace.Launch(ptrace.LaunchArgs{
		Path:        f.Arg(0),
		Argv:        f.Args(),
		Envp:        os.Environ(),
		WorkingDir:  workingDir,
		DisableASLR: c.disableASLR,
		Sink:        sink,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "infmonctl: launch: %v\n", err)
		return subcommands.ExitFailure
	}
	sink.attach(m)
	defer m.Close()

	if master := m.PTYMaster(); master >= 0 {
		go copyPTY(os.Stdout, master)
	}

	sink.wait()
	return subcommands.ExitSuccess
}

// copyPTY relays the inferior's pseudo-terminal output to w until the
// master side is closed, which happens when the Monitor tears down.
func copyPTY(w io.Writer, masterFD int) {
	f := os.NewFile(uintptr(masterFD), "pty-master")
	io.Copy(w, f)
}
