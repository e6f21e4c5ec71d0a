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
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/newappfirst/infmon/internal/log"
)

// Config is infmonctl's on-disk configuration, loaded once at startup from
// the file named by -config (no file is read when -config is empty, the
// default; a named file that does not exist is silently skipped).
type Config struct {
	// LogCategories lists the diagnostic categories to enable in addition
	// to whatever INFMON_LOG_CATEGORIES already requested.
	LogCategories []string `toml:"log_categories"`

	// DisableASLR is the default for launch's -disable-aslr flag when the
	// flag itself is left unset.
	DisableASLR bool `toml:"disable_aslr"`

	// WorkingDir is the default working directory for launched inferiors.
	WorkingDir string `toml:"working_dir"`
}

func defaultConfig() *Config {
	return &Config{}
}

// loadConfig reads path as TOML into a Config. A missing file is not an
// error: infmonctl runs fine with defaults.
func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	for _, c := range cfg.LogCategories {
		log.Enable(log.Category(c))
	}
	return cfg, nil
}
