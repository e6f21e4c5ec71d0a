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
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/newappfirst/infmon/internal/log"
)

// trace issues a single ptrace(2) request. It is the sole point in the
// package that calls into the kernel trace syscall; every other component
// funnels through this.
//
// RawSyscall6 hands back the errno separately from the return value, so
// failure is judged by errno alone and no errno slot needs clearing. At
// this level the peek requests and GETEVENTMSG store their result through
// the data pointer rather than returning it.
func trace(req uintptr, tid int32, addr, data uintptr) (uintptr, error) {
	ret, _, errno := unix.RawSyscall6(unix.SYS_PTRACE, req, uintptr(tid), addr, data, 0, 0)
	if log.Enabled(log.Trace) {
		log.Infof(log.Trace, "ptrace(%d, tid=%d, addr=%#x, data=%#x) = %#x errno=%v",
			req, tid, addr, data, ret, errno)
	}
	if errno != 0 {
		return ret, &KernelError{Op: requestName(req), Errno: errno}
	}
	return ret, nil
}

// traceRegSet issues PTRACE_GETREGSET/PTRACE_SETREGSET. These two requests
// are special-cased among the trace requests: the kernel expects the
// register-set id passed by value in the address argument (not as a
// pointer), and an iovec describing the destination buffer in the data
// argument.
func traceRegSet(req uintptr, tid int32, setID uintptr, buf []byte) (int, error) {
	iov := unix.Iovec{Len: uint64(len(buf))}
	if len(buf) > 0 {
		iov.Base = &buf[0]
	}
	_, err := trace(req, tid, setID, uintptr(unsafe.Pointer(&iov)))
	if err != nil {
		return 0, err
	}
	return int(iov.Len), nil
}

func requestName(req uintptr) string {
	switch req {
	case ptraceTraceme:
		return "TRACEME"
	case ptracePeekText:
		return "PEEKTEXT"
	case ptracePeekData:
		return "PEEKDATA"
	case ptracePeekUser:
		return "PEEKUSER"
	case ptracePokeText:
		return "POKETEXT"
	case ptracePokeData:
		return "POKEDATA"
	case ptracePokeUser:
		return "POKEUSER"
	case ptraceCont:
		return "CONT"
	case ptraceKill:
		return "KILL"
	case ptraceSingleStep:
		return "SINGLESTEP"
	case ptraceGetRegs:
		return "GETREGS"
	case ptraceSetRegs:
		return "SETREGS"
	case ptraceGetFPRegs:
		return "GETFPREGS"
	case ptraceSetFPRegs:
		return "SETFPREGS"
	case ptraceAttach:
		return "ATTACH"
	case ptraceDetach:
		return "DETACH"
	case ptraceSetOptions:
		return "SETOPTIONS"
	case ptraceGetEventMsg:
		return "GETEVENTMSG"
	case ptraceGetSigInfo:
		return "GETSIGINFO"
	case ptraceGetRegSet:
		return "GETREGSET"
	case ptraceSetRegSet:
		return "SETREGSET"
	case ptraceSeize:
		return "SEIZE"
	case ptraceInterrupt:
		return "INTERRUPT"
	case ptraceArchPrctl:
		return "ARCH_PRCTL"
	case ptraceGetThreadArea:
		return "GET_THREAD_AREA"
	default:
		return "UNKNOWN"
	}
}
