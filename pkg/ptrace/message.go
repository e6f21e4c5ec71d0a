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

// MessageKind tags the variant of a ProcessMessage.
type MessageKind int

// The vocabulary crossing the Monitor's output boundary, per spec.md §3.
const (
	MsgExit MessageKind = iota
	MsgLimbo
	MsgTrace
	MsgBreak
	MsgWatch
	MsgCrash
	MsgNewThread
	MsgExec
	MsgSignal
	MsgSignalDelivered
)

func (k MessageKind) String() string {
	switch k {
	case MsgExit:
		return "Exit"
	case MsgLimbo:
		return "Limbo"
	case MsgTrace:
		return "Trace"
	case MsgBreak:
		return "Break"
	case MsgWatch:
		return "Watch"
	case MsgCrash:
		return "Crash"
	case MsgNewThread:
		return "NewThread"
	case MsgExec:
		return "Exec"
	case MsgSignal:
		return "Signal"
	case MsgSignalDelivered:
		return "SignalDelivered"
	default:
		return "Unknown"
	}
}

// CrashReason classifies why a SIGSEGV/SIGILL/SIGFPE/SIGBUS was not of
// user-space origin, derived from the siginfo's si_code.
type CrashReason int

// Crash reasons the classifier can produce. An si_code the classifier does
// not distinguish falls back to its signal's general reason (SIGSEGV:
// ReasonReadUnmapped, SIGILL: ReasonIllegalOpcode, SIGFPE:
// ReasonFloatingPoint, SIGBUS: ReasonAlignment); ReasonUnknown is returned
// only for a signal outside those four.
const (
	ReasonUnknown CrashReason = iota
	ReasonReadUnmapped
	ReasonWriteUnmapped
	ReasonExecUnmapped
	ReasonIllegalOpcode
	ReasonFloatingPoint
	ReasonAlignment
)

func (r CrashReason) String() string {
	switch r {
	case ReasonReadUnmapped:
		return "read-of-unmapped-address"
	case ReasonWriteUnmapped:
		return "write-to-unmapped-address"
	case ReasonExecUnmapped:
		return "exec-of-unmapped-address"
	case ReasonIllegalOpcode:
		return "illegal-opcode"
	case ReasonFloatingPoint:
		return "floating-point-exception"
	case ReasonAlignment:
		return "unaligned-access"
	default:
		return "unknown"
	}
}

// ProcessMessage is the tagged union of lifecycle events the Monitor pushes
// to the upstream Process Object, per spec.md §3. Only the fields relevant
// to Kind are meaningful; the rest are zero.
type ProcessMessage struct {
	Kind MessageKind

	PID  int32
	TID  int32 // NewThread only: the freshly cloned child tid
	Signo int32
	Status int32 // Exit: wait-status exit code. Limbo: pending exit code.

	FaultAddr uint64
	Reason    CrashReason
}

// Sink is the one-way channel the Monitor uses to report lifecycle events
// to the enclosing Process Object (out of scope per spec.md §1 — the
// Monitor only needs to call into it).
type Sink interface {
	// SendMessage delivers msg. It must not block indefinitely; the wait
	// task's ability to keep servicing the inferior depends on this
	// returning promptly.
	SendMessage(msg ProcessMessage)

	// CreateNewPOSIXThread is invoked when the Monitor learns of a new
	// task (at attach, or via a clone event) so the Process Object can
	// instantiate its own per-thread handle.
	CreateNewPOSIXThread(tid int32)

	// AddThreadForInitialStopIfNeeded is invoked once a newly cloned
	// thread's initial SIGSTOP has been reconciled (spec.md Property 6),
	// so the Process Object can mark it ready for scheduling.
	AddThreadForInitialStopIfNeeded(tid int32)
}
