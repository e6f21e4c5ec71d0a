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
	"os"
	"os/signal"
	"runtime"

	"golang.org/x/sys/unix"

	"github.com/newappfirst/infmon/internal/log"
)

// waitSignal is the private signal used to kick the wait task out of its
// blocking wait4 call during teardown. It is never installed with a
// handler that auto-restarts the interrupted syscall: registering it with
// signal.Notify (rather than leaving it at its default, process-killing
// disposition) is exactly what makes the Wait4 below return EINTR instead
// of going unnoticed or taking the process down.
const waitSignal = unix.SIGUSR1

func init() {
	signal.Notify(make(chan os.Signal, 1), waitSignal)
}

// startWaitTask starts the wait task (C4) and blocks until it has locked
// its OS thread and is ready to wait on the process group.
func (m *Monitor) startWaitTask() {
	ready := make(chan struct{})
	go m.waitLoop(ready)
	<-ready
}

// waitLoop blocks on wait4 targeting the tracee's process group, classifies
// every (pid, status) it observes, and forwards the result to m.sink. It
// terminates when the thread-group leader exits or teardown is requested.
func (m *Monitor) waitLoop(ready chan struct{}) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(m.waitDone)

	// Recorded before ready is closed so Close (which only runs after
	// startWaitTask has returned) always sees a valid tid to signal.
	m.waitTaskTID = int32(unix.Gettid())
	close(ready)

	pgid := -int(m.pid)
	var status unix.WaitStatus
	for {
		select {
		case <-m.waitStop:
			return
		default:
		}

		waited, err := unix.Wait4(pgid, &status, unix.WALL, nil)
		if err != nil {
			if err == unix.EINTR {
				// Either a spurious interrupt or Close's directed
				// waitSignal; the top-of-loop select sorts out which.
				continue
			}
			if err == unix.ECHILD {
				// No tasks left to wait on; the group is gone.
				return
			}
			log.Warningf("wait task: wait4 failed: %v", err)
			return
		}

		if m.classify(int32(waited), status) {
			return
		}
	}
}

// stopSingleThread quiesces one thread without halting the others (spec.md
// §4.5). It sends a directed SIGSTOP (thread-group kill, falling back to a
// plain kill if tgkill is unavailable), then drains events until target's
// own SIGSTOP, Limbo, or Exit is observed. Events for other threads are
// classified and forwarded to the Sink as the wait loop would; this
// function does not resume those threads.
func (m *Monitor) stopSingleThread(target int32) error {
	err := unix.Tgkill(int(m.pid), int(target), unix.SIGSTOP)
	if err == unix.ENOSYS {
		err = unix.Kill(int(target), unix.SIGSTOP)
	}
	if err != nil {
		if err == unix.ESRCH {
			return nil // already gone; not our problem to report
		}
		return err
	}

	m.threadsMu.Lock()
	if h, ok := m.threads.get(target); ok {
		h.deliveredStop = true
	}
	m.threadsMu.Unlock()

	var status unix.WaitStatus
	for {
		waited, werr := unix.Wait4(-int(m.pid), &status, unix.WALL, nil)
		if werr != nil {
			return werr
		}
		final := m.classify(int32(waited), status)
		if final {
			return nil
		}
		if int32(waited) == target && (status.Exited() || status.Signaled() ||
			status.StopSignal() == unix.SIGSTOP || status.TrapCause() == ptraceEventExit) {
			return nil
		}
	}
}
