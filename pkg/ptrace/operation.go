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

import "golang.org/x/sys/unix"

// opKind tags the variant carried by an operation. Modeled as a tagged
// struct rather than an interface hierarchy: the owner task switches on
// kind and every variant's inputs/outputs live in the same value, so a
// round trip through the funnel allocates nothing beyond the operation
// itself.
type opKind int

const (
	opReadMemory opKind = iota
	opWriteMemory
	opReadRegister
	opWriteRegister
	opReadRegisterSet
	opWriteRegisterSet
	opReadGPR
	opWriteGPR
	opReadFPR
	opWriteFPR
	opReadThreadPointer
	opResume
	opSingleStep
	opGetSignalInfo
	opGetEventMessage
	opDetach
	opRun  // internal: run an arbitrary thunk on the owner task (bootstrap only)
	opExit // sentinel: tells the owner task to leave its serve loop
)

// operation is the single polymorphic request type that crosses the funnel.
// Every field below is either an input the caller fills in before
// submission, or an output the owner task fills in before signaling done.
// Operations are stack-allocated by the caller and borrowed by the Monitor
// only for the duration of one funnel round trip.
type operation struct {
	kind opKind

	// Addressing. tid is the kernel task id the request targets; for
	// memory operations the Monitor always issues the request against the
	// owner task's chosen target thread, but the kernel resolves memory by
	// address space, so any live task of the tgid works.
	tid int32

	// Memory operations.
	addr uint64
	buf  []byte

	// Register operations.
	offset uintptr
	setID  uintptr
	value  uint64

	// Resume/SingleStep.
	signal int32

	// Outputs.
	n       int
	value64 uint64
	ok      bool
	siginfo [128]byte
	errno   unix.Errno
	err     error

	// fn is set only for opRun: Launch/Attach's bootstrap sequence must
	// execute on the owner task (the kernel binds trace-request rights to
	// the specific task that forked or attached), so it is dispatched
	// through the funnel like any other operation.
	fn func()
}

// noSignal is passed to Resume/SingleStep to mean "no signal", mirroring the
// external API's signal-number-or-INVALID convention.
const noSignal int32 = -1
