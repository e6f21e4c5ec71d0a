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
	"os"
	"strconv"

	"github.com/google/subcommands"

	"github.com/newappfirst/infmon/pkg/ptrace"
)

// attachCmd implements subcommands.Command for "attach".
type attachCmd struct{}

func (*attachCmd) Name() string     { return "attach" }
func (*attachCmd) Synopsis() string { return "attach to a running process" }
func (*attachCmd) Usage() string {
	return `attach <pid> - attach to every task of an already-running process
`
}

func (*attachCmd) SetFlags(*flag.FlagSet) {}

func (*attachCmd) Execute(_ context.Context, f *flag.FlagSet, extra ...any) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	pid, err := strconv.ParseInt(f.Arg(0), 10, 32)
	if err != nil {
		fmt.Fprintf(os.Stderr, "infmonctl: attach: invalid pid %q: %v\n", f.Arg(0), err)
		return subcommands.ExitUsageError
	}

	sink := newConsoleSink()
	m, err := ptrace.Attach(int32(pid), sink)
	if err != nil {
		fmt.Fprintf(os.Stderr, "infmonctl: attach: %v\n", err)
		return subcommands.ExitFailure
	}
	sink.attach(m)
	defer m.DetachAll()

	sink.wait()
	return subcommands.ExitSuccess
}
