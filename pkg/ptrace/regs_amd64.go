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

//go:build linux && amd64
// +build linux,amd64

package ptrace

import "unsafe"

// hasLegacyRegs is true on amd64: PEEKUSER/POKEUSER and GETREGS/SETREGS are
// available, so offset-based access never needs to fall back to slicing a
// whole register set.
const hasLegacyRegs = true

// gprStructSize is sizeof(struct user_regs_struct) on x86_64: 27 unsigned
// long fields. Offsets at or beyond this index into the floating-point set
// on architectures that lack the legacy path; amd64 doesn't need the
// fallback, but the constant documents the boundary that regs_arm64.go's
// offset fallback uses.
const gprStructSize = 27 * 8

// readRegisterOffset implements ReadRegisterValue's legacy dialect: a
// scalar PEEKUSER at the given byte offset into the kernel's per-thread
// register layout.
func readRegisterOffset(tid int32, offset uintptr) (uint64, error) {
	// The raw PEEKUSER request stores the value through data.
	v := new(uint64)
	if _, err := trace(ptracePeekUser, tid, offset, uintptr(unsafe.Pointer(v))); err != nil {
		return 0, err
	}
	return *v, nil
}

// writeRegisterOffset implements WriteRegisterValue's legacy dialect.
func writeRegisterOffset(tid int32, offset uintptr, value uint64) error {
	_, err := trace(ptracePokeUser, tid, offset, uintptr(value))
	return err
}

// readGPR/writeGPR implement the bulk legacy transfer via GETREGS/SETREGS.
func readGPR(tid int32, buf []byte) error {
	_, err := trace(ptraceGetRegs, tid, 0, uintptr(unsafe.Pointer(&buf[0])))
	return err
}

func writeGPR(tid int32, buf []byte) error {
	_, err := trace(ptraceSetRegs, tid, 0, uintptr(unsafe.Pointer(&buf[0])))
	return err
}

// readFPR/writeFPR implement the bulk legacy transfer via
// GETFPREGS/SETFPREGS.
func readFPR(tid int32, buf []byte) error {
	_, err := trace(ptraceGetFPRegs, tid, 0, uintptr(unsafe.Pointer(&buf[0])))
	return err
}

func writeFPR(tid int32, buf []byte) error {
	_, err := trace(ptraceSetFPRegs, tid, 0, uintptr(unsafe.Pointer(&buf[0])))
	return err
}

// readThreadPointerArch implements ReadThreadPointer's 64-bit general
// dialect: PTRACE_ARCH_PRCTL asking for the FS segment base, the canonical
// x86-64 thread-pointer register.
func readThreadPointerArch(tid int32) (uint64, error) {
	var fsBase uint64
	_, err := trace(ptraceArchPrctl, tid, uintptr(unsafe.Pointer(&fsBase)), archGetFS)
	if err != nil {
		return 0, err
	}
	return fsBase, nil
}
