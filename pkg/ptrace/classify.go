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
	"encoding/binary"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/newappfirst/infmon/internal/log"
)

// siginfo_t field offsets common to every Linux architecture this package
// targets: si_signo, si_errno and si_code are the first three 4-byte fields
// (so si_code sits at offset 8), and the fault-address/sender-pid union
// member starts at offset 16 once
// the leading si_signo/si_errno/si_code/pad have been accounted for.
const (
	siginfoSignoOff = 0
	siginfoCodeOff  = 8
	siginfoUnionOff = 16
)

// Both architectures this package supports (amd64, arm64) are
// little-endian, so the siginfo_t fields are decoded with a fixed byte
// order rather than binary.NativeEndian.
func siginfoSigno(buf [128]byte) int32 {
	return int32(binary.LittleEndian.Uint32(buf[siginfoSignoOff:]))
}

func siginfoCode(buf [128]byte) int32 {
	return int32(binary.LittleEndian.Uint32(buf[siginfoCodeOff:]))
}

// siginfoAddr reads the _sigfault.si_addr / _kill.si_pid union member,
// which share the same offset across the kernel's siginfo_t variants this
// classifier distinguishes between by signal number.
func siginfoAddr(buf [128]byte) uint64 {
	return binary.LittleEndian.Uint64(buf[siginfoUnionOff:])
}

func siginfoSenderPID(buf [128]byte) int32 {
	return int32(binary.LittleEndian.Uint32(buf[siginfoUnionOff:]))
}

// classify handles one (pid, status) wake-up from the wait task. It returns
// true when the wait task should stop monitoring entirely (the
// thread-group leader has exited).
func (m *Monitor) classify(pid int32, status unix.WaitStatus) bool {
	switch {
	case status.Exited():
		return m.handleExit(pid, int32(status.ExitStatus()))
	case status.Signaled():
		return m.handleExit(pid, 128+int32(status.Signal()))
	case status.Stopped():
		return m.handleStopped(pid, status)
	default:
		return false
	}
}

func (m *Monitor) handleExit(pid int32, code int32) bool {
	m.sink.SendMessage(ProcessMessage{Kind: MsgExit, PID: pid, Status: code})
	m.threadsMu.Lock()
	m.threads.remove(pid)
	delete(m.initialStopSeen, pid)
	m.threadsMu.Unlock()
	return pid == m.pid
}

func (m *Monitor) handleStopped(pid int32, status unix.WaitStatus) bool {
	siginfo, ok, errno := m.GetSignalInfo(pid)
	if !ok {
		if errno == unix.EINVAL {
			// Group-stop: every task of the thread-group is stopped
			// awaiting SIGCONT. Re-inject the stop signal and keep
			// going; this is never surfaced to the Sink.
			m.Resume(pid, int32(status.StopSignal()))
			return false
		}
		if pid == m.pid {
			return m.handleExit(pid, 0)
		}
		return false
	}

	signo := siginfoSigno(siginfo)
	if signo != int32(unix.SIGTRAP) {
		return m.handleNonTrapSignal(pid, signo, siginfo)
	}
	return m.handleTrap(pid, siginfo)
}

// handleTrap implements the trap classifier table in spec.md §4.5.
func (m *Monitor) handleTrap(pid int32, siginfo [128]byte) bool {
	code := siginfoCode(siginfo)

	switch {
	case code == int32(unix.SIGTRAP)|(ptraceEventClone<<8):
		child, ok := m.GetEventMessage(pid)
		if !ok {
			log.Warningf("classify: GETEVENTMSG failed for clone trap on %d", pid)
			return false
		}
		m.handleNewThread(pid, int32(child))

	case code == int32(unix.SIGTRAP)|(ptraceEventExec<<8):
		m.sink.SendMessage(ProcessMessage{Kind: MsgExec, PID: pid})

	case code == int32(unix.SIGTRAP)|(ptraceEventExit<<8):
		exitCode, ok := m.GetEventMessage(pid)
		if !ok {
			log.Warningf("classify: GETEVENTMSG failed for exit trap on %d", pid)
			return false
		}
		m.threadsMu.Lock()
		if h, found := m.threads.get(pid); found {
			h.inLimbo = true
		}
		m.threadsMu.Unlock()
		m.sink.SendMessage(ProcessMessage{Kind: MsgLimbo, PID: pid, Status: int32(exitCode)})

	case code == 0 || code == trapTrace:
		m.sink.SendMessage(ProcessMessage{Kind: MsgTrace, PID: pid})

	case code == siKernel || code == trapBrkpt:
		m.sink.SendMessage(ProcessMessage{Kind: MsgBreak, PID: pid})

	case code == trapHWBkpt:
		m.sink.SendMessage(ProcessMessage{Kind: MsgWatch, PID: pid, FaultAddr: siginfoAddr(siginfo)})

	case code == int32(unix.SIGTRAP), code == int32(unix.SIGTRAP)|0x80:
		// System-call-stop: absorb silently.
		m.Resume(pid, noSignal)

	default:
		panic(fmt.Sprintf("ptrace: unrecognized SIGTRAP si_code %#x for tid %d", code, pid))
	}
	return false
}

// handleNonTrapSignal implements the non-Trap branch of spec.md §4.5's
// Stopped case.
func (m *Monitor) handleNonTrapSignal(pid int32, signo int32, siginfo [128]byte) bool {
	code := siginfoCode(siginfo)
	userOrigin := code == siUser || code == siTKill

	if signo == int32(unix.SIGSTOP) {
		// Whatever else this SIGSTOP means, it satisfies clone
		// reconciliation (spec.md Property 6) for this tid.
		m.threadsMu.Lock()
		wasInitial := !m.initialStopSeen[pid]
		m.initialStopSeen[pid] = true
		m.threadsMu.Unlock()
		if wasInitial {
			m.sink.AddThreadForInitialStopIfNeeded(pid)
		}
	}

	if userOrigin {
		if siginfoSenderPID(siginfo) == int32(os.Getpid()) {
			m.sink.SendMessage(ProcessMessage{Kind: MsgSignalDelivered, PID: pid, Signo: signo})
		} else {
			m.sink.SendMessage(ProcessMessage{Kind: MsgSignal, PID: pid, Signo: signo})
		}
		return false
	}

	switch unix.Signal(signo) {
	case unix.SIGSEGV, unix.SIGILL, unix.SIGFPE, unix.SIGBUS:
		reason := classifyCrash(unix.Signal(signo), code)
		m.sink.SendMessage(ProcessMessage{
			Kind:      MsgCrash,
			PID:       pid,
			Signo:     signo,
			FaultAddr: siginfoAddr(siginfo),
			Reason:    reason,
		})
	default:
		m.sink.SendMessage(ProcessMessage{Kind: MsgSignal, PID: pid, Signo: signo})
	}
	return false
}

// classifyCrash derives a CrashReason from a fault signal's si_code,
// following the kernel's SEGV_MAPERR/SEGV_ACCERR and friends.
func classifyCrash(signo unix.Signal, code int32) CrashReason {
	const (
		segvMapErr = 1
		segvAccErr = 2
		iLLOpc     = 1
		fpeIntDiv  = 1
		busAdrAln  = 1
	)
	switch signo {
	case unix.SIGSEGV:
		switch code {
		case segvMapErr:
			return ReasonReadUnmapped
		case segvAccErr:
			return ReasonWriteUnmapped
		default:
			return ReasonReadUnmapped
		}
	case unix.SIGILL:
		if code == iLLOpc {
			return ReasonIllegalOpcode
		}
		return ReasonIllegalOpcode
	case unix.SIGFPE:
		return ReasonFloatingPoint
	case unix.SIGBUS:
		if code == busAdrAln {
			return ReasonAlignment
		}
		return ReasonAlignment
	default:
		return ReasonUnknown
	}
}

// handleNewThread implements Initial-stop reconciliation (spec.md Property
// 6): a clone-trap and the child's own user-origin SIGSTOP arrive in
// arbitrary order, so the Monitor waits on the child specifically until its
// SIGSTOP is observed before declaring it ready.
func (m *Monitor) handleNewThread(parent, child int32) {
	m.threadsMu.Lock()
	m.threads.add(child)
	alreadySeen := m.initialStopSeen[child]
	m.threadsMu.Unlock()

	m.sink.SendMessage(ProcessMessage{Kind: MsgNewThread, PID: parent, TID: child})
	m.sink.CreateNewPOSIXThread(child)

	if alreadySeen {
		m.sink.AddThreadForInitialStopIfNeeded(child)
		return
	}

	var status unix.WaitStatus
	for {
		waited, err := unix.Wait4(int(child), &status, unix.WALL, nil)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			log.Warningf("classify: waiting on new thread %d: %v", child, err)
			return
		}
		if m.classify(int32(waited), status) {
			return
		}
		m.threadsMu.Lock()
		seen := m.initialStopSeen[child]
		m.threadsMu.Unlock()
		if seen {
			return
		}
	}
}
