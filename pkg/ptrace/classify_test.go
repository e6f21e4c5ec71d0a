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
	"encoding/binary"
	"os"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"golang.org/x/sys/unix"
)

// fakeSink records every call so tests can assert on the exact sequence
// the classifier produced.
type fakeSink struct {
	messages   []ProcessMessage
	newThreads []int32
	readied    []int32
}

func (s *fakeSink) SendMessage(msg ProcessMessage)         { s.messages = append(s.messages, msg) }
func (s *fakeSink) CreateNewPOSIXThread(tid int32)         { s.newThreads = append(s.newThreads, tid) }
func (s *fakeSink) AddThreadForInitialStopIfNeeded(tid int32) {
	s.readied = append(s.readied, tid)
}

func makeSiginfo(t *testing.T, signo, code int32, unionWord uint64) [128]byte {
	t.Helper()
	var buf [128]byte
	binary.LittleEndian.PutUint32(buf[siginfoSignoOff:], uint32(signo))
	binary.LittleEndian.PutUint32(buf[siginfoCodeOff:], uint32(code))
	binary.LittleEndian.PutUint64(buf[siginfoUnionOff:], unionWord)
	return buf
}

func TestSiginfoAccessors(t *testing.T) {
	buf := makeSiginfo(t, int32(unix.SIGSEGV), 1, 0xdeadbeef)
	if got := siginfoSigno(buf); got != int32(unix.SIGSEGV) {
		t.Errorf("siginfoSigno = %d, want %d", got, unix.SIGSEGV)
	}
	if got := siginfoCode(buf); got != 1 {
		t.Errorf("siginfoCode = %d, want 1", got)
	}
	if got := siginfoAddr(buf); got != 0xdeadbeef {
		t.Errorf("siginfoAddr = %#x, want %#x; dump: %s", got, 0xdeadbeef, spew.Sdump(buf))
	}
}

func TestClassifyCrash(t *testing.T) {
	cases := []struct {
		signo unix.Signal
		code  int32
		want  CrashReason
	}{
		{unix.SIGSEGV, 1, ReasonReadUnmapped},
		{unix.SIGSEGV, 2, ReasonWriteUnmapped},
		{unix.SIGILL, 1, ReasonIllegalOpcode},
		{unix.SIGFPE, 1, ReasonFloatingPoint},
		{unix.SIGBUS, 1, ReasonAlignment},
	}
	for _, c := range cases {
		if got := classifyCrash(c.signo, c.code); got != c.want {
			t.Errorf("classifyCrash(%v, %d) = %v, want %v", c.signo, c.code, got, c.want)
		}
	}
}

func TestHandleExitReportsAndForgetsThread(t *testing.T) {
	sink := &fakeSink{}
	m := newMonitor(sink)
	m.pid = 100
	m.threads.add(100)
	m.initialStopSeen[100] = true

	leaderGone := m.handleExit(100, 7)
	if !leaderGone {
		t.Fatal("handleExit should report true when the thread-group leader exits")
	}
	if len(sink.messages) != 1 || sink.messages[0].Kind != MsgExit || sink.messages[0].Status != 7 {
		t.Fatalf("unexpected messages: %s", spew.Sdump(sink.messages))
	}
	if _, ok := m.threads.get(100); ok {
		t.Fatal("handleExit should remove the thread handle")
	}
	if _, ok := m.initialStopSeen[100]; ok {
		t.Fatal("handleExit should forget initial-stop bookkeeping")
	}
}

func TestHandleExitOfNonLeaderDoesNotStopTheWaitLoop(t *testing.T) {
	sink := &fakeSink{}
	m := newMonitor(sink)
	m.pid = 100
	m.threads.add(200)

	if m.handleExit(200, 0) {
		t.Fatal("handleExit for a non-leader tid should return false")
	}
}

func TestHandleNonTrapSignalUserOriginSelf(t *testing.T) {
	sink := &fakeSink{}
	m := newMonitor(sink)

	buf := makeSiginfo(t, int32(unix.SIGUSR1), siUser, uint64(os.Getpid()))
	m.handleNonTrapSignal(10, int32(unix.SIGUSR1), buf)

	if len(sink.messages) != 1 || sink.messages[0].Kind != MsgSignalDelivered {
		t.Fatalf("expected a single SignalDelivered message, got %s", spew.Sdump(sink.messages))
	}
}

func TestHandleNonTrapSignalUserOriginOther(t *testing.T) {
	sink := &fakeSink{}
	m := newMonitor(sink)

	buf := makeSiginfo(t, int32(unix.SIGTERM), siUser, 123456)
	m.handleNonTrapSignal(10, int32(unix.SIGTERM), buf)

	if len(sink.messages) != 1 || sink.messages[0].Kind != MsgSignal {
		t.Fatalf("expected a single Signal message, got %s", spew.Sdump(sink.messages))
	}
}

func TestHandleNonTrapSignalCrash(t *testing.T) {
	sink := &fakeSink{}
	m := newMonitor(sink)

	buf := makeSiginfo(t, int32(unix.SIGSEGV), 1, 0x1000)
	m.handleNonTrapSignal(10, int32(unix.SIGSEGV), buf)

	if len(sink.messages) != 1 || sink.messages[0].Kind != MsgCrash {
		t.Fatalf("expected a single Crash message, got %s", spew.Sdump(sink.messages))
	}
	if sink.messages[0].Reason != ReasonReadUnmapped {
		t.Errorf("Reason = %v, want %v", sink.messages[0].Reason, ReasonReadUnmapped)
	}
}

// TestHandleNonTrapSignalInitialStopReconciliation exercises spec property
// 6: a SIGSTOP of user origin both satisfies reconciliation and, being
// user-origin, is also reported as a Signal/SignalDelivered message.
func TestHandleNonTrapSignalInitialStopReconciliation(t *testing.T) {
	sink := &fakeSink{}
	m := newMonitor(sink)

	buf := makeSiginfo(t, int32(unix.SIGSTOP), siUser, uint64(os.Getpid()))
	m.handleNonTrapSignal(55, int32(unix.SIGSTOP), buf)

	if len(sink.readied) != 1 || sink.readied[0] != 55 {
		t.Fatalf("expected tid 55 to be marked ready exactly once, got %v", sink.readied)
	}
	if !m.initialStopSeen[55] {
		t.Fatal("initialStopSeen[55] should be set after its SIGSTOP is observed")
	}

	// A second SIGSTOP for the same tid must not re-trigger reconciliation.
	sink.readied = nil
	m.handleNonTrapSignal(55, int32(unix.SIGSTOP), buf)
	if len(sink.readied) != 0 {
		t.Fatalf("reconciliation fired twice for tid 55: %v", sink.readied)
	}
}

func TestHandleTrapTraceAndBreakpoint(t *testing.T) {
	sink := &fakeSink{}
	m := newMonitor(sink)

	m.handleTrap(1, makeSiginfo(t, int32(unix.SIGTRAP), trapTrace, 0))
	m.handleTrap(1, makeSiginfo(t, int32(unix.SIGTRAP), siKernel, 0))
	m.handleTrap(1, makeSiginfo(t, int32(unix.SIGTRAP), trapHWBkpt, 0xcafe))

	if len(sink.messages) != 3 {
		t.Fatalf("expected 3 messages, got %s", spew.Sdump(sink.messages))
	}
	if sink.messages[0].Kind != MsgTrace {
		t.Errorf("message 0 = %v, want Trace", sink.messages[0].Kind)
	}
	if sink.messages[1].Kind != MsgBreak {
		t.Errorf("message 1 = %v, want Break", sink.messages[1].Kind)
	}
	if sink.messages[2].Kind != MsgWatch || sink.messages[2].FaultAddr != 0xcafe {
		t.Errorf("message 2 = %+v, want Watch at 0xcafe", sink.messages[2])
	}
}
