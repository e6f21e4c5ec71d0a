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

//go:build linux && arm64
// +build linux,arm64

package ptrace

import "fmt"

// hasLegacyRegs is false on arm64: the kernel dropped PEEKUSER/POKEUSER and
// GETREGS/SETREGS for this architecture, so every "offset" or "bulk"
// request is really a GETREGSET/SETREGSET in disguise.
const hasLegacyRegs = false

// gprStructSize is sizeof(struct user_pt_regs) on arm64: 31 general
// registers plus sp, pc, pstate, each 8 bytes. Offsets at or beyond this
// index into the floating-point set.
const gprStructSize = 34 * 8

// readRegisterOffset reads the whole general-purpose set and slices out the
// requested scalar, or the floating-point set if offset is beyond the GPR
// boundary.
func readRegisterOffset(tid int32, offset uintptr) (uint64, error) {
	buf, setID, base := regionFor(offset)
	if _, err := readRegisterSet(tid, setID, buf); err != nil {
		return 0, err
	}
	rel := int(offset) - base
	if rel < 0 || rel+8 > len(buf) {
		return 0, fmt.Errorf("register offset %#x out of range for set %#x", offset, setID)
	}
	return leUint64(buf[rel : rel+8]), nil
}

// writeRegisterOffset reads the owning set, overlays the scalar, writes the
// set back — the same read-modify-write discipline the memory path uses,
// applied to registers.
func writeRegisterOffset(tid int32, offset uintptr, value uint64) error {
	buf, setID, base := regionFor(offset)
	if _, err := readRegisterSet(tid, setID, buf); err != nil {
		return err
	}
	rel := int(offset) - base
	if rel < 0 || rel+8 > len(buf) {
		return fmt.Errorf("register offset %#x out of range for set %#x", offset, setID)
	}
	putLeUint64(buf[rel:rel+8], value)
	_, err := writeRegisterSet(tid, setID, buf)
	return err
}

func regionFor(offset uintptr) (buf []byte, setID uintptr, base int) {
	if int(offset) < gprStructSize {
		return make([]byte, gprStructSize), NTPRStatus, 0
	}
	return make([]byte, fprStructSize), NTFPRegSet, gprStructSize
}

// fprStructSize is sizeof(struct user_fpsimd_state) on arm64: 32 128-bit
// vector registers plus fpsr/fpcr.
const fprStructSize = 32*16 + 8

func readGPR(tid int32, buf []byte) error {
	_, err := readRegisterSet(tid, NTPRStatus, buf)
	return err
}

func writeGPR(tid int32, buf []byte) error {
	_, err := writeRegisterSet(tid, NTPRStatus, buf)
	return err
}

func readFPR(tid int32, buf []byte) error {
	_, err := readRegisterSet(tid, NTFPRegSet, buf)
	return err
}

func writeFPR(tid int32, buf []byte) error {
	_, err := writeRegisterSet(tid, NTFPRegSet, buf)
	return err
}

// readThreadPointerArch implements ReadThreadPointer's structured-register
// dialect: a set-id read with the dedicated TLS set id.
func readThreadPointerArch(tid int32) (uint64, error) {
	buf := make([]byte, 8)
	if _, err := readRegisterSet(tid, NTARMTLS, buf); err != nil {
		return 0, err
	}
	return leUint64(buf), nil
}

func leUint64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func putLeUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v)
		v >>= 8
	}
}
