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
	"os"
	"strconv"

	"golang.org/x/sys/unix"

	"github.com/newappfirst/infmon/internal/log"
)

// Attach takes over an already-running process. pid must name a
// thread-group leader greater than 1; attaching to init is refused
// outright rather than left to fail deep inside the bootstrap sequence.
// Every task currently live in the thread-group is enumerated and
// individually PTRACE_ATTACHed, and the enumeration is
// repeated until a pass finds no new tasks: a task can clone a sibling
// between our readdir and our attach, and that sibling must be caught
// before Attach returns.
func Attach(pid int32, sink Sink) (*Monitor, error) {
	if pid <= 1 {
		return nil, fmt.Errorf("ptrace: refusing to attach to pid %d", pid)
	}

	m := newMonitor(sink)
	m.start()

	var bootErr error
	m.runOnOwner(func() {
		bootErr = attachAll(m, pid)
	})
	if bootErr != nil {
		m.funnel.stop()
		return nil, bootErr
	}

	m.pid = pid
	m.startWaitTask()
	m.sink.SendMessage(ProcessMessage{Kind: MsgTrace, PID: m.pid})

	return m, nil
}

// attachAll runs on the owner task. It loops enumerate/attach/wait until a
// full pass over /proc/<pid>/task adds no new tid.
func attachAll(m *Monitor, pid int32) error {
	for {
		tasks, err := listTasks(pid)
		if err != nil {
			return err
		}
		if len(tasks) == 0 {
			return fmt.Errorf("ptrace: no tasks found for pid %d", pid)
		}

		addedAny := false
		for _, tid := range tasks {
			m.threadsMu.Lock()
			_, known := m.threads.get(tid)
			m.threadsMu.Unlock()
			if known {
				continue
			}

			if err := attachOne(m, tid); err != nil {
				if err == unix.ESRCH {
					continue // vanished between readdir and attach
				}
				return fmt.Errorf("attaching to tid %d: %w", tid, err)
			}
			addedAny = true
		}
		if !addedAny {
			return nil
		}
	}
}

// attachOne PTRACE_ATTACHes a single task, waits for the resulting SIGSTOP,
// installs the default trace options, and records its handle.
func attachOne(m *Monitor, tid int32) error {
	if _, err := trace(ptraceAttach, tid, 0, 0); err != nil {
		return unwrapErrno(err)
	}

	var status unix.WaitStatus
	for {
		waited, err := unix.Wait4(int(tid), &status, 0, nil)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return err
		}
		if int32(waited) == tid {
			break
		}
	}
	if !status.Stopped() {
		return fmt.Errorf("ptrace: tid %d did not stop after PTRACE_ATTACH: status=%#x", tid, status)
	}

	if _, err := trace(ptraceSetOptions, tid, 0, defaultTraceOptions); err != nil {
		return err
	}

	m.threadsMu.Lock()
	m.threads.add(tid)
	m.initialStopSeen[tid] = true
	m.threadsMu.Unlock()

	m.sink.CreateNewPOSIXThread(tid)

	log.Infof(log.Process, "attached to tid %d", tid)
	return nil
}

// listTasks reads /proc/<pid>/task for the set of tids currently belonging
// to pid's thread-group.
func listTasks(pid int32) ([]int32, error) {
	dir := fmt.Sprintf("/proc/%d/task", pid)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("ptrace: pid %d does not exist", pid)
		}
		return nil, err
	}

	tids := make([]int32, 0, len(entries))
	for _, e := range entries {
		tid, err := strconv.ParseInt(e.Name(), 10, 32)
		if err != nil {
			continue
		}
		tids = append(tids, int32(tid))
	}
	return tids, nil
}

func unwrapErrno(err error) error {
	if kerr, ok := err.(*KernelError); ok {
		return kerr.Errno
	}
	return err
}
