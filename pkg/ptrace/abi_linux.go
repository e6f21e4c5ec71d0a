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

// Request numbers for the ptrace(2) syscall, from linux/ptrace.h and
// asm-generic/ptrace-abi.h. Defined locally rather than pulled from
// golang.org/x/sys/unix so the monitor is not at the mercy of that
// package's request coverage on any given architecture.
const (
	ptraceTraceme     = 0
	ptracePeekText    = 1
	ptracePeekData    = 2
	ptracePeekUser    = 3
	ptracePokeText    = 4
	ptracePokeData    = 5
	ptracePokeUser    = 6
	ptraceCont        = 7
	ptraceKill        = 8
	ptraceSingleStep  = 9
	ptraceGetRegs     = 12
	ptraceSetRegs     = 13
	ptraceGetFPRegs   = 14
	ptraceSetFPRegs   = 15
	ptraceAttach      = 16
	ptraceDetach      = 17
	ptraceSetOptions  = 0x4200
	ptraceGetEventMsg = 0x4201
	ptraceGetSigInfo  = 0x4202
	ptraceSetSigInfo  = 0x4203
	ptraceGetRegSet   = 0x4204
	ptraceSetRegSet   = 0x4205
	ptraceSeize       = 0x4206
	ptraceInterrupt   = 0x4207
	ptraceListen      = 0x4208

	// x86-64 only: read/write the FS/GS segment base directly, used by
	// ReadThreadPointer's 64-bit dialect.
	ptraceArchPrctl = 30
	archGetFS       = 0x1003

	// Legacy 32-bit dialect: fetch a descriptor's base via its GDT index.
	ptraceGetThreadArea = 25
)

// ptrace setoptions bits (linux/ptrace.h).
const (
	ptraceOTraceSysGood  = 1 << 0
	ptraceOTraceFork     = 1 << 1
	ptraceOTraceVFork    = 1 << 2
	ptraceOTraceClone    = 1 << 3
	ptraceOTraceExec     = 1 << 4
	ptraceOTraceVForkDone = 1 << 5
	ptraceOTraceExit     = 1 << 6
	ptraceOExitKill      = 1 << 20
)

// defaultTraceOptions are installed on every tracee per spec.md §6: observe
// clones, suppress the legacy exec SIGTRAP in favor of a typed event, and
// realize Limbo on exit.
const defaultTraceOptions = ptraceOTraceClone | ptraceOTraceExec | ptraceOTraceExit

// PTRACE_EVENT_* values decoded from (status >> 8) when the stop signal is
// SIGTRAP and the high byte is nonzero.
const (
	ptraceEventFork     = 1
	ptraceEventVFork    = 2
	ptraceEventClone    = 3
	ptraceEventExec     = 4
	ptraceEventVForkDone = 5
	ptraceEventExit     = 6
)

// NT_* note types, used as the set-id argument to GETREGSET/SETREGSET.
const (
	ntPRStatus  = 1 // general-purpose registers
	ntFPRegSet  = 2 // floating point registers
	ntARMTLS    = 0x401
	ntARMHWBreak = 0x402
	ntARMHWWatch = 0x403
)

// si_code values relevant to the trap classifier (spec.md §4.5).
const (
	siKernel   = 0x80
	trapBrkpt  = 1
	trapTrace  = 2
	trapHWBkpt = 4
)

// si_code origin bands for non-trap signals: SI_USER and SI_TKILL indicate
// the signal was generated by a userspace kill/tgkill rather than the
// kernel, per spec.md's Stopped/Signal classification.
const (
	siUser  = 0
	siTKill = -6
)
