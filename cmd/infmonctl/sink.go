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

package main

import (
	"fmt"
	"sync"

	"github.com/newappfirst/infmon/pkg/ptrace"
)

// consoleSink is infmonctl's Sink: it narrates every ProcessMessage to
// stdout and applies the pass-through policy a bare trace front-end needs
// to keep an inferior alive — resume on anything that isn't a breakpoint,
// watchpoint, or crash, and redeliver every signal except the ones this
// process itself sent.
type consoleSink struct {
	mu      sync.Mutex
	monitor *ptrace.Monitor
	done    chan struct{}
}

func newConsoleSink() *consoleSink {
	return &consoleSink{done: make(chan struct{})}
}

// attach wires the sink to its Monitor. Launch/Attach hand back the Monitor
// only after construction, so the console's auto-resume policy is inert
// for any message that manages to arrive before this call returns.
func (s *consoleSink) attach(m *ptrace.Monitor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.monitor = m
}

func (s *consoleSink) SendMessage(msg ptrace.ProcessMessage) {
	switch msg.Kind {
	case ptrace.MsgExit:
		fmt.Printf("[infmonctl] tid %d exited, status %d\n", msg.PID, msg.Status)
		if msg.PID == s.pid() {
			close(s.done)
		}
		return
	case ptrace.MsgCrash:
		fmt.Printf("[infmonctl] tid %d crashed: signal %d (%s) at %#x\n", msg.PID, msg.Signo, msg.Reason, msg.FaultAddr)
		return
	case ptrace.MsgBreak:
		fmt.Printf("[infmonctl] tid %d hit a breakpoint\n", msg.PID)
		return
	case ptrace.MsgWatch:
		fmt.Printf("[infmonctl] tid %d hit a watchpoint at %#x\n", msg.PID, msg.FaultAddr)
		return
	case ptrace.MsgExec:
		fmt.Printf("[infmonctl] tid %d completed exec\n", msg.PID)
	case ptrace.MsgNewThread:
		fmt.Printf("[infmonctl] tid %d cloned new thread %d\n", msg.PID, msg.TID)
	case ptrace.MsgLimbo:
		fmt.Printf("[infmonctl] tid %d is exiting (status %d)\n", msg.PID, msg.Status)
	case ptrace.MsgSignal:
		fmt.Printf("[infmonctl] tid %d received signal %d\n", msg.PID, msg.Signo)
	case ptrace.MsgSignalDelivered:
		fmt.Printf("[infmonctl] tid %d confirmed delivery of our own signal %d\n", msg.PID, msg.Signo)
	}

	s.mu.Lock()
	m := s.monitor
	s.mu.Unlock()
	if m == nil {
		return
	}

	switch msg.Kind {
	case ptrace.MsgLimbo, ptrace.MsgTrace, ptrace.MsgExec, ptrace.MsgNewThread, ptrace.MsgSignalDelivered:
		m.Resume(msg.PID, -1)
	case ptrace.MsgSignal:
		m.Resume(msg.PID, msg.Signo)
	}
}

func (s *consoleSink) CreateNewPOSIXThread(tid int32) {
	fmt.Printf("[infmonctl] observed new task %d\n", tid)
}

func (s *consoleSink) AddThreadForInitialStopIfNeeded(tid int32) {
	s.mu.Lock()
	m := s.monitor
	s.mu.Unlock()
	if m != nil {
		m.Resume(tid, -1)
	}
}

func (s *consoleSink) pid() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.monitor == nil {
		return 0
	}
	return s.monitor.PID()
}

func (s *consoleSink) wait() { <-s.done }
