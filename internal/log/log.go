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

// Package log provides the monitor's categorized diagnostic logging.
//
// The monitor honors four independent categories (trace-syscall, memory,
// registers, process), each with a short (bounded) and long (full) verbosity
// variant, per the monitor's logging design. Category gates are read at call
// time so a caller can toggle them without reconstructing a logger.
package log

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Category names a logging category honored by the monitor.
type Category string

// The categories defined by the monitor's logging design.
const (
	Trace     Category = "trace-syscall"
	Memory    Category = "memory"
	Registers Category = "registers"
	Process   Category = "process"
)

// ShortBudget is the number of bytes dumped by a "short" verbosity log of a
// memory or register transfer before it is elided.
const ShortBudget = 32

var (
	mu         sync.RWMutex
	enabled    = map[Category]bool{}
	baseLogger = logrus.New()
)

func init() {
	baseLogger.SetOutput(os.Stderr)
	baseLogger.SetLevel(logrus.InfoLevel)
	if v := os.Getenv("INFMON_LOG_CATEGORIES"); v != "" {
		for _, c := range strings.Split(v, ",") {
			Enable(Category(strings.TrimSpace(c)))
		}
	}
}

// Enable turns on logging for category c.
func Enable(c Category) {
	mu.Lock()
	defer mu.Unlock()
	enabled[c] = true
}

// Disable turns off logging for category c.
func Disable(c Category) {
	mu.Lock()
	defer mu.Unlock()
	delete(enabled, c)
}

// Enabled reports whether category c is currently active.
func Enabled(c Category) bool {
	mu.RLock()
	defer mu.RUnlock()
	return enabled[c]
}

// Infof logs a formatted message under category c if it is enabled.
func Infof(c Category, format string, args ...any) {
	if !Enabled(c) {
		return
	}
	baseLogger.WithField("category", string(c)).Infof(format, args...)
}

// Warningf logs a formatted warning unconditionally, under no category; a
// wrapper over a broken tracee deserves to surface regardless of category
// toggles.
func Warningf(format string, args ...any) {
	baseLogger.Warnf(format, args...)
}

// ShortBytes renders buf for "short" verbosity logging: the full hex dump
// when buf fits within ShortBudget, otherwise a truncated marker. Category
// loggers should prefer this over LongBytes for large memory transfers.
func ShortBytes(buf []byte) string {
	if len(buf) <= ShortBudget {
		return fmt.Sprintf("% x", buf)
	}
	return fmt.Sprintf("% x...(%d bytes total)", buf[:ShortBudget], len(buf))
}

// LongBytes renders the full contents of buf as hex, unconditionally.
func LongBytes(buf []byte) string {
	return fmt.Sprintf("% x", buf)
}
