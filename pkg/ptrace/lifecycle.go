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

//go:build linux
// +build linux

package ptrace

import (
	"fmt"

	"github.com/newappfirst/infmon/internal/log"
)

// DetachAll detaches every live task of the thread-group, in no particular
// order, and tears the Monitor down. The kernel does
// not offer an atomic "detach the whole group" request, so callers racing a
// clone against DetachAll can still observe ESRCH for an individual tid;
// that case is swallowed since the task is, by definition, no longer ours
// to detach.
func (m *Monitor) DetachAll() error {
	m.threadsMu.Lock()
	tids := m.threads.tids()
	m.threadsMu.Unlock()

	var firstErr error
	for _, tid := range tids {
		if err := m.Detach(tid); err != nil {
			if IsVanished(err) {
				continue
			}
			log.Warningf("detaching tid %d: %v", tid, err)
			if firstErr == nil {
				firstErr = fmt.Errorf("detaching tid %d: %w", tid, err)
			}
			continue
		}
		m.threadsMu.Lock()
		m.threads.remove(tid)
		m.threadsMu.Unlock()
	}

	if err := m.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
