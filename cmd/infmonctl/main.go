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

// Command infmonctl is a minimal trace front-end over the inferior process
// monitor: it can launch a fresh program under trace or attach to one
// already running, narrating every lifecycle event to stdout.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
)

func main() {
	configPath := flag.String("config", "", "path to an infmonctl TOML config file")
	flag.Parse()

	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")
	subcommands.Register(&launchCmd{}, "")
	subcommands.Register(&attachCmd{}, "")

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "infmonctl: %v\n", err)
		os.Exit(2)
	}

	os.Exit(int(subcommands.Execute(context.Background(), cfg)))
}
