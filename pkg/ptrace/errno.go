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

	"golang.org/x/sys/unix"
)

// KernelError wraps an errno returned by a trace request, giving kernel
// failures a first-class type instead of a bare error string.
type KernelError struct {
	// Op names the trace request that failed (e.g. "PEEKTEXT", "GETREGS").
	Op string
	// Errno is the raw errno captured immediately after the request.
	Errno unix.Errno
}

func (e *KernelError) Error() string {
	return fmt.Sprintf("ptrace %s: %s", e.Op, errnoMnemonic(e.Errno))
}

// Unwrap lets callers match with errors.Is(err, unix.ESRCH) and friends.
func (e *KernelError) Unwrap() error { return e.Errno }

// errnoMnemonic names the handful of errno values the monitor branches on
// explicitly; others fall back to the errno's own string.
func errnoMnemonic(errno unix.Errno) string {
	switch errno {
	case unix.ESRCH:
		return "ESRCH (no such task, or task not stopped)"
	case unix.EINVAL:
		return "EINVAL (invalid request or group-stop)"
	case unix.EBUSY:
		return "EBUSY (debug register in use)"
	case unix.EPERM:
		return "EPERM (not the attaching tracer)"
	case 0:
		return "0 (success)"
	default:
		return errno.Error()
	}
}

// IsVanished reports whether err indicates the target task has already
// exited out from under the caller — the standard "lost the race" errno
// seen on attach and on directed signals.
func IsVanished(err error) bool {
	var kerr *KernelError
	if ke, ok := err.(*KernelError); ok {
		kerr = ke
	} else {
		return false
	}
	return kerr.Errno == unix.ESRCH
}
