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

import "github.com/newappfirst/infmon/internal/log"

// Register-set ids usable with ReadRegisterSet/WriteRegisterSet, per the
// ELF core-file NT_* note types the kernel reuses for PTRACE_GETREGSET.
// Callers choose which to pass; the Monitor treats the id as opaque.
const (
	NTPRStatus   = ntPRStatus   // general-purpose registers, all architectures
	NTFPRegSet   = ntFPRegSet   // floating point registers, all architectures
	NTARMTLS     = ntARMTLS     // arm64: thread-local-storage base register
	NTARMHWBreak = ntARMHWBreak // arm64: hardware breakpoint control/address arrays
	NTARMHWWatch = ntARMHWWatch // arm64: hardware watchpoint control/address arrays
)

// readRegisterSet implements ReadRegisterSet: a set-id read via the iovec
// interface.
func readRegisterSet(tid int32, setID uintptr, buf []byte) (int, error) {
	n, err := traceRegSet(ptraceGetRegSet, tid, setID, buf)
	logRegisters("ReadRegisterSet", tid, setID, buf[:n])
	return n, err
}

// writeRegisterSet implements WriteRegisterSet.
func writeRegisterSet(tid int32, setID uintptr, buf []byte) (int, error) {
	logRegisters("WriteRegisterSet", tid, setID, buf)
	return traceRegSet(ptraceSetRegSet, tid, setID, buf)
}

// readGPR/writeGPR/readFPR/writeFPR implement the bulk legacy transfers on
// architectures that still support them (amd64); on architectures that
// don't (arm64), they're implemented in terms of readRegisterSet with the
// NTPRStatus/NTFPRegSet ids, by the arch-specific file for that platform.

func logRegisters(op string, tid int32, setID uintptr, buf []byte) {
	if !log.Enabled(log.Registers) {
		return
	}
	log.Infof(log.Registers, "%s(tid=%d, set=%#x, n=%d): %s", op, tid, setID, len(buf), log.ShortBytes(buf))
}
