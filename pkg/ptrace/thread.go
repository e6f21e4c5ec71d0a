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

// threadHandle tracks what the Monitor itself needs to know about one
// traced task. It never equates pid and tid (spec.md §9's open question):
// every task the Monitor has attached to or observed via clone gets its own
// handle, keyed by tid.
type threadHandle struct {
	tid int32

	// inLimbo is set once an EVENT_EXIT trap has been observed for this
	// tid and cleared by a successful Resume; Detach leaves it as is, and
	// DetachAll drops the whole handle. A thread in limbo is
	// parked pending explicit disposition (spec.md GLOSSARY: Limbo).
	inLimbo bool

	// deliveredStop is set when the Monitor has requested (via
	// stopSingleThread) that this thread quiesce and is waiting to
	// observe its SIGSTOP.
	deliveredStop bool
}

// threadSet is the Monitor's bookkeeping of live threadHandles. It is
// touched by the wait task, by the owner task (bootstrap and Resume) and by
// DetachAll, always under Monitor.threadsMu; threadSet itself does no
// locking.
type threadSet struct {
	byTID map[int32]*threadHandle
}

func newThreadSet() *threadSet {
	return &threadSet{byTID: make(map[int32]*threadHandle)}
}

func (s *threadSet) add(tid int32) *threadHandle {
	if h, ok := s.byTID[tid]; ok {
		return h
	}
	h := &threadHandle{tid: tid}
	s.byTID[tid] = h
	return h
}

func (s *threadSet) get(tid int32) (*threadHandle, bool) {
	h, ok := s.byTID[tid]
	return h, ok
}

func (s *threadSet) remove(tid int32) {
	delete(s.byTID, tid)
}

func (s *threadSet) tids() []int32 {
	out := make([]int32, 0, len(s.byTID))
	for tid := range s.byTID {
		out = append(out, tid)
	}
	return out
}
