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

// Package ptrace implements the Inferior Process Monitor: a serialized API
// for launching or attaching to a traced child process, reading and writing
// its memory and registers, resuming or single-stepping its threads, and
// observing its lifecycle through a Sink.
//
// Every privileged call funnels through a single dedicated goroutine (the
// owner task) because Linux's trace facility only accepts requests from
// the task that originally attached to or forked the tracee. A second
// dedicated goroutine (the wait task) blocks in wait4 on the tracee's
// process group and classifies what it observes into the ProcessMessage
// vocabulary.
package ptrace

import (
	"fmt"
	"os"
	"runtime"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/newappfirst/infmon/internal/log"
)

// Monitor is the lifetime object described by spec.md §3. It owns the
// inferior's thread-group leader tid, the pty master (when launched), the
// funnel, and the wait task's cancellation.
type Monitor struct {
	pid       int32 // thread-group leader tid
	ptyMaster int   // -1 when attached rather than launched

	funnel *funnel

	threadsMu       sync.Mutex
	threads         *threadSet
	initialStopSeen map[int32]bool

	sink Sink

	waitStop    chan struct{}
	waitDone    chan struct{}
	waitTaskTID int32 // set once by the wait task before it closes its ready channel

	closeOnce sync.Once
}

func init() {
	if runtime.GOARCH != "amd64" && runtime.GOARCH != "arm64" {
		panic("ptrace: monitor requires a 64-bit host architecture")
	}
}

// newMonitor allocates the shared skeleton used by both Launch and Attach.
func newMonitor(sink Sink) *Monitor {
	return &Monitor{
		ptyMaster:       -1,
		funnel:          newFunnel(),
		threads:         newThreadSet(),
		initialStopSeen: make(map[int32]bool),
		sink:            sink,
		waitStop:        make(chan struct{}),
		waitDone:        make(chan struct{}),
	}
}

// start launches the owner task's serve loop and blocks until it is ready
// to accept operations.
func (m *Monitor) start() {
	go m.funnel.serve(m.execute)
	<-m.funnel.ownerReady
}

// runOnOwner executes fn on the owner task and blocks until it returns.
// Used only by the Launch/Attach bootstrap sequence, which must issue its
// fork/PTRACE_ATTACH calls from the same task that will hold trace rights
// for the rest of the Monitor's life.
func (m *Monitor) runOnOwner(fn func()) {
	m.funnel.submit(&operation{kind: opRun, fn: fn})
}

// execute runs on the owner task. It dispatches each operation kind to the
// corresponding C1/C2 primitive and writes the result back into op.
func (m *Monitor) execute(op *operation) {
	switch op.kind {
	case opReadMemory:
		buf, n, err := readMemory(op.tid, op.addr, len(op.buf))
		copy(op.buf, buf)
		op.n, op.err = n, err

	case opWriteMemory:
		n, err := writeMemory(op.tid, op.addr, op.buf)
		op.n, op.err = n, err

	case opReadRegister:
		v, err := readRegisterOffset(op.tid, op.offset)
		op.value64, op.ok = v, err == nil
		op.err = err

	case opWriteRegister:
		err := writeRegisterOffset(op.tid, op.offset, op.value)
		op.ok, op.err = err == nil, err

	case opReadRegisterSet:
		n, err := readRegisterSet(op.tid, op.setID, op.buf)
		op.n, op.ok, op.err = n, err == nil, err

	case opWriteRegisterSet:
		n, err := writeRegisterSet(op.tid, op.setID, op.buf)
		op.n, op.ok, op.err = n, err == nil, err

	case opReadGPR:
		err := readGPR(op.tid, op.buf)
		op.ok, op.err = err == nil, err

	case opWriteGPR:
		err := writeGPR(op.tid, op.buf)
		op.ok, op.err = err == nil, err

	case opReadFPR:
		err := readFPR(op.tid, op.buf)
		op.ok, op.err = err == nil, err

	case opWriteFPR:
		err := writeFPR(op.tid, op.buf)
		op.ok, op.err = err == nil, err

	case opReadThreadPointer:
		v, err := readThreadPointerArch(op.tid)
		op.value64, op.ok, op.err = v, err == nil, err

	case opResume:
		sig := 0
		if op.signal != noSignal {
			sig = int(op.signal)
		}
		_, err := trace(ptraceCont, op.tid, 0, uintptr(sig))
		op.ok, op.err = err == nil, err
		if op.ok {
			m.threadsMu.Lock()
			if h, found := m.threads.get(op.tid); found {
				h.inLimbo = false
				h.deliveredStop = false
			}
			m.threadsMu.Unlock()
		}

	case opSingleStep:
		sig := 0
		if op.signal != noSignal {
			sig = int(op.signal)
		}
		_, err := trace(ptraceSingleStep, op.tid, 0, uintptr(sig))
		op.ok, op.err = err == nil, err

	case opGetSignalInfo:
		_, err := trace(ptraceGetSigInfo, op.tid, 0, uintptr(unsafe.Pointer(&op.siginfo[0])))
		op.ok = err == nil
		if kerr, isK := err.(*KernelError); isK {
			op.errno = kerr.Errno
		}
		op.err = err

	case opGetEventMessage:
		// The kernel stores the event word through data.
		_, err := trace(ptraceGetEventMsg, op.tid, 0, uintptr(unsafe.Pointer(&op.value64)))
		op.ok, op.err = err == nil, err

	case opDetach:
		_, err := trace(ptraceDetach, op.tid, 0, 0)
		op.err = err

	case opRun:
		op.fn()

	default:
		panic(fmt.Sprintf("ptrace: unhandled operation kind %d", op.kind))
	}
}

// ReadMemory reads size bytes from the inferior's address space starting at
// addr, using whichever live task is convenient (memory is per-address-
// space, not per-thread).
func (m *Monitor) ReadMemory(tid int32, addr uint64, size int) ([]byte, int, error) {
	op := &operation{kind: opReadMemory, tid: tid, addr: addr, buf: make([]byte, size)}
	m.funnel.submit(op)
	return op.buf[:op.n], op.n, op.err
}

// WriteMemory writes buf to the inferior's address space starting at addr.
func (m *Monitor) WriteMemory(tid int32, addr uint64, buf []byte) (int, error) {
	op := &operation{kind: opWriteMemory, tid: tid, addr: addr, buf: buf}
	m.funnel.submit(op)
	return op.n, op.err
}

// ReadRegisterValue reads a scalar register at a caller-supplied byte
// offset into the kernel's per-thread register layout. name is accepted
// for symmetry with WriteRegisterValue and diagnostic logging only; the
// Monitor never interprets it.
func (m *Monitor) ReadRegisterValue(tid int32, offset uintptr, name string) (uint64, bool) {
	op := &operation{kind: opReadRegister, tid: tid, offset: offset}
	m.funnel.submit(op)
	if log.Enabled(log.Registers) {
		log.Infof(log.Registers, "ReadRegisterValue(tid=%d, %s@%#x) = %#x ok=%v", tid, name, offset, op.value64, op.ok)
	}
	return op.value64, op.ok
}

// WriteRegisterValue writes value to the scalar register at offset.
func (m *Monitor) WriteRegisterValue(tid int32, offset uintptr, name string, value uint64) bool {
	op := &operation{kind: opWriteRegister, tid: tid, offset: offset, value: value}
	m.funnel.submit(op)
	if log.Enabled(log.Registers) {
		log.Infof(log.Registers, "WriteRegisterValue(tid=%d, %s@%#x, %#x) ok=%v", tid, name, offset, value, op.ok)
	}
	return op.ok
}

// ReadRegisterSet reads the register set identified by setID into buf,
// using the kernel's iovec-based GETREGSET interface.
func (m *Monitor) ReadRegisterSet(tid int32, buf []byte, setID uintptr) bool {
	op := &operation{kind: opReadRegisterSet, tid: tid, buf: buf, setID: setID}
	m.funnel.submit(op)
	return op.ok
}

// WriteRegisterSet writes buf to the register set identified by setID.
func (m *Monitor) WriteRegisterSet(tid int32, buf []byte, setID uintptr) bool {
	op := &operation{kind: opWriteRegisterSet, tid: tid, buf: buf, setID: setID}
	m.funnel.submit(op)
	return op.ok
}

// ReadGPR reads the full general-purpose register set into buf.
func (m *Monitor) ReadGPR(tid int32, buf []byte) bool {
	op := &operation{kind: opReadGPR, tid: tid, buf: buf}
	m.funnel.submit(op)
	return op.ok
}

// WriteGPR writes buf as the full general-purpose register set.
func (m *Monitor) WriteGPR(tid int32, buf []byte) bool {
	op := &operation{kind: opWriteGPR, tid: tid, buf: buf}
	m.funnel.submit(op)
	return op.ok
}

// ReadFPR reads the full floating-point register set into buf.
func (m *Monitor) ReadFPR(tid int32, buf []byte) bool {
	op := &operation{kind: opReadFPR, tid: tid, buf: buf}
	m.funnel.submit(op)
	return op.ok
}

// WriteFPR writes buf as the full floating-point register set.
func (m *Monitor) WriteFPR(tid int32, buf []byte) bool {
	op := &operation{kind: opWriteFPR, tid: tid, buf: buf}
	m.funnel.submit(op)
	return op.ok
}

// ReadThreadPointer reads the thread's TLS base address using the host
// architecture's dialect: PTRACE_ARCH_PRCTL for the FS base on amd64, the
// NT_ARM_TLS register set on arm64. The 32-bit GET_THREAD_AREA dialect is
// not implemented.
func (m *Monitor) ReadThreadPointer(tid int32) (uint64, bool) {
	op := &operation{kind: opReadThreadPointer, tid: tid}
	m.funnel.submit(op)
	return op.value64, op.ok
}

// Resume continues tid, optionally redelivering signal (pass -1 for none).
func (m *Monitor) Resume(tid int32, signal int32) bool {
	op := &operation{kind: opResume, tid: tid, signal: signal}
	m.funnel.submit(op)
	return op.ok
}

// SingleStep executes exactly one instruction on tid.
func (m *Monitor) SingleStep(tid int32, signal int32) bool {
	op := &operation{kind: opSingleStep, tid: tid, signal: signal}
	m.funnel.submit(op)
	return op.ok
}

// GetSignalInfo reads the siginfo_t the kernel has pending for tid's
// current stop. On failure, errno is populated so the caller (the wait
// task, primarily) can distinguish group-stop (EINVAL) from other causes.
func (m *Monitor) GetSignalInfo(tid int32) (siginfo [128]byte, ok bool, errno unix.Errno) {
	op := &operation{kind: opGetSignalInfo, tid: tid}
	m.funnel.submit(op)
	return op.siginfo, op.ok, op.errno
}

// GetEventMessage reads the kernel's per-event auxiliary word for tid's
// most recent trap (the new child tid on clone, the exit code on
// EVENT_EXIT).
func (m *Monitor) GetEventMessage(tid int32) (uint64, bool) {
	op := &operation{kind: opGetEventMessage, tid: tid}
	m.funnel.submit(op)
	return op.value64, op.ok
}

// Detach issues PTRACE_DETACH for tid. The caller sequences detaching a
// whole thread-group; the Monitor does not do so atomically.
func (m *Monitor) Detach(tid int32) error {
	op := &operation{kind: opDetach, tid: tid}
	m.funnel.submit(op)
	return op.err
}

// Kill sends SIGKILL to the tracee's process-group leader.
func (m *Monitor) Kill() error {
	return unix.Kill(int(m.pid), unix.SIGKILL)
}

// PID returns the inferior's thread-group leader id.
func (m *Monitor) PID() int32 { return m.pid }

// PTYMaster returns the pseudo-terminal master descriptor, or -1 if the
// Monitor was constructed via Attach rather than Launch. It is safe to read
// once Launch has returned; the Monitor never writes it thereafter.
func (m *Monitor) PTYMaster() int { return m.ptyMaster }

// Close tears the Monitor down: stops the wait task, enqueues the Exit
// sentinel to the owner task and joins it, and closes the pty master.
// Idempotent.
func (m *Monitor) Close() error {
	m.closeOnce.Do(func() {
		close(m.waitStop)
		// The wait task is almost certainly parked in Wait4 rather than
		// at the top of its loop where waitStop would be noticed, so it
		// has to be kicked out with a directed signal.
		if err := unix.Tgkill(os.Getpid(), int(m.waitTaskTID), waitSignal); err != nil && err != unix.ESRCH {
			log.Warningf("close: signaling wait task %d: %v", m.waitTaskTID, err)
		}
		<-m.waitDone
		m.funnel.stop()
		if m.ptyMaster >= 0 {
			unix.Close(m.ptyMaster)
		}
	})
	return nil
}
