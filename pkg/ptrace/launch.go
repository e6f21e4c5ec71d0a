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
	"os"
	"unsafe"

	"github.com/kr/pty"
	"golang.org/x/sys/unix"

	"github.com/newappfirst/infmon/internal/log"
)

// child-side bootstrap failure codes. Each distinct cause exits with its
// own small integer so the parent can report exactly what went wrong
// instead of a generic "exec failed".
const (
	childErrTraceme = 1
	childErrSetsid  = 2
	childErrStdin   = 3
	childErrStdout  = 4
	childErrStderr  = 5
	childErrChdir   = 6
	childErrExec    = 7
)

var childFailureReasons = map[int]string{
	childErrTraceme: "PTRACE_TRACEME failed",
	childErrSetsid:  "setsid failed",
	childErrStdin:   "redirecting stdin failed",
	childErrStdout:  "redirecting stdout failed",
	childErrStderr:  "redirecting stderr failed",
	childErrChdir:   "chdir to working directory failed",
	childErrExec:    "execve failed",
}

// LaunchArgs are the construction arguments for Launch, consumed once by
// the owner task's bootstrap and then discarded.
type LaunchArgs struct {
	// Path is the program to execute; Argv is its argument vector
	// (Argv[0] conventionally mirrors Path).
	Path string
	Argv []string
	Envp []string

	// Stdin/Stdout/Stderr, when non-nil, are dup2'd over the
	// corresponding child descriptor. When nil, the pseudo-terminal
	// slave is used instead.
	Stdin, Stdout, Stderr *os.File

	// WorkingDir is the child's working directory; empty means inherit
	// the caller's.
	WorkingDir string

	// DisableASLR clears the address-space-layout-randomization
	// personality bit for the child before exec.
	DisableASLR bool

	// Sink receives lifecycle events for the new inferior.
	Sink Sink
}

// Launch forks a fresh inferior, traces it from birth, and execs Path. It
// blocks until the child has reached its post-exec stop and the Monitor is
// ready to accept operations.
func Launch(args LaunchArgs) (*Monitor, error) {
	master, slave, err := pty.Open()
	if err != nil {
		return nil, fmt.Errorf("allocating pty: %w", err)
	}

	stdin, stdout, stderr := args.Stdin, args.Stdout, args.Stderr
	if stdin == nil {
		stdin = slave
	}
	if stdout == nil {
		stdout = slave
	}
	if stderr == nil {
		stderr = slave
	}

	m := newMonitor(args.Sink)
	m.start()

	var bootErr error
	m.runOnOwner(func() {
		pid, err := launchChild(args, stdin, stdout, stderr)
		if err != nil {
			bootErr = err
			return
		}

		var status unix.WaitStatus
		if _, err := unix.Wait4(int(pid), &status, 0, nil); err != nil {
			bootErr = fmt.Errorf("waiting for initial stop: %w", err)
			return
		}
		if status.Exited() {
			bootErr = fmt.Errorf("launching %s: %s", args.Path, childFailureString(status.ExitStatus()))
			return
		}
		if !status.Stopped() {
			bootErr = fmt.Errorf("child did not reach a ptrace stop: status=%#x", status)
			return
		}

		if _, err := trace(ptraceSetOptions, pid, 0, defaultTraceOptions); err != nil {
			bootErr = fmt.Errorf("installing default trace options: %w", err)
			return
		}

		m.pid = pid
		m.threadsMu.Lock()
		m.threads.add(pid)
		m.initialStopSeen[pid] = true
		m.threadsMu.Unlock()
	})

	if bootErr != nil {
		master.Close()
		slave.Close()
		m.funnel.stop()
		return nil, bootErr
	}

	slave.Close() // the inferior keeps its own copy via dup2
	if err := unix.SetNonblock(int(master.Fd()), true); err != nil {
		log.Warningf("launch: setting pty master non-blocking: %v", err)
	}
	m.ptyMaster = int(master.Fd())

	m.startWaitTask()
	m.sink.SendMessage(ProcessMessage{Kind: MsgTrace, PID: m.pid})

	return m, nil
}

// launchChild performs the fork/exec. It returns the child's pid once the
// parent side has resumed; the child side never returns (it either execs
// or calls os.Exit with one of the childErr* codes).
func launchChild(args LaunchArgs, stdin, stdout, stderr *os.File) (int32, error) {
	argv0, err := resolvePath(args.Path)
	if err != nil {
		return 0, err
	}

	// clone(SIGCHLD) is fork; arm64 has no separate fork syscall.
	pid, _, errno := unix.RawSyscall(unix.SYS_CLONE, uintptr(unix.SIGCHLD), 0, 0)
	if errno != 0 {
		return 0, fmt.Errorf("fork: %w", errno)
	}
	if pid == 0 {
		runChildAndNeverReturn(argv0, args, stdin, stdout, stderr)
		panic("unreachable")
	}

	return int32(pid), nil
}

// runChildAndNeverReturn executes entirely within the forked child, prior
// to exec. It must not allocate in ways that could deadlock on a
// fork-duplicated malloc lock; every call here is a direct syscall.
func runChildAndNeverReturn(argv0 string, args LaunchArgs, stdin, stdout, stderr *os.File) {
	if _, err := trace(ptraceTraceme, 0, 0, 0); err != nil {
		os.Exit(childErrTraceme)
	}

	if _, _, errno := unix.RawSyscall(unix.SYS_SETSID, 0, 0, 0); errno != 0 {
		os.Exit(childErrSetsid)
	}

	if err := dup2Fd(stdin, 0); err != nil {
		os.Exit(childErrStdin)
	}
	if err := dup2Fd(stdout, 1); err != nil {
		os.Exit(childErrStdout)
	}
	if err := dup2Fd(stderr, 2); err != nil {
		os.Exit(childErrStderr)
	}

	if args.WorkingDir != "" {
		if err := unix.Chdir(args.WorkingDir); err != nil {
			os.Exit(childErrChdir)
		}
	}

	if args.DisableASLR {
		const addrNoRandomize = 0x0040000
		unix.RawSyscall(unix.SYS_PERSONALITY, addrNoRandomize, 0, 0)
	}

	envp := args.Envp
	argv := args.Argv
	if len(argv) == 0 {
		argv = []string{argv0}
	}
	if err := execve(argv0, argv, envp); err != nil {
		os.Exit(childErrExec)
	}
}

func dup2Fd(f *os.File, newFD int) error {
	if int(f.Fd()) == newFD {
		return nil
	}
	return unix.Dup2(int(f.Fd()), newFD)
}

func resolvePath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("launch: empty program path")
	}
	return path, nil
}

// execve invokes the kernel exec syscall directly rather than through
// os/exec, since this runs post-fork in a child whose only remaining job
// is to become the traced program.
func execve(path string, argv, envp []string) error {
	argvp, err := unix.SlicePtrFromStrings(argv)
	if err != nil {
		return err
	}
	envvp, err := unix.SlicePtrFromStrings(envp)
	if err != nil {
		return err
	}
	pathp, err := unix.BytePtrFromString(path)
	if err != nil {
		return err
	}
	_, _, errno := unix.RawSyscall(unix.SYS_EXECVE,
		uintptr(unsafe.Pointer(pathp)),
		uintptr(unsafe.Pointer(&argvp[0])),
		uintptr(unsafe.Pointer(&envvp[0])))
	return errno
}

// childFailureString maps a launchChild-observed exit code back to the
// human-readable reason, for callers surfacing bootstrap failures.
func childFailureString(code int) string {
	if reason, ok := childFailureReasons[code]; ok {
		return reason
	}
	return fmt.Sprintf("child exited with unrecognized code %d", code)
}
