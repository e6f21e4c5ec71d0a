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
	"context"
	"runtime"
	"sync"

	"golang.org/x/sync/semaphore"
)

// The kernel's trace facility rejects any request issued by a task other
// than the one that originally attached to (or forked) the tracee. The
// funnel is the mechanism that makes that invisible to callers: every
// privileged operation is marshaled onto a single dedicated goroutine (the
// "owner task") which has locked itself to one OS thread for its entire
// life.
//
// A semaphore.Weighted pair stands in for the two-semaphore rendezvous:
// each is sized 1 and starts fully acquired, so the first Acquire call
// after construction blocks until the counterpart Releases it. This gives
// the same "signal once, wake exactly one waiter" behavior as a POSIX
// semaphore without the spurious-wakeup bookkeeping a condition variable
// would need — and unlike the original C implementation, Acquire's context
// cancellation replaces manual EINTR retry entirely.
type rendezvous struct {
	sem *semaphore.Weighted
}

func newRendezvous() rendezvous {
	r := rendezvous{sem: semaphore.NewWeighted(1)}
	// Consume the only permit so the first wait blocks until signaled.
	_ = r.sem.Acquire(context.Background(), 1)
	return r
}

func (r rendezvous) signal() { r.sem.Release(1) }

func (r rendezvous) wait(ctx context.Context) error {
	// Acquire consumes the permit signal() released, which is itself what
	// restores the "blocks until signaled" invariant for the next round
	// trip — no further bookkeeping needed.
	return r.sem.Acquire(ctx, 1)
}

// funnel is the Operation Funnel (spec.md §4.4). It owns the single
// operation slot, the submission mutex, and the pending/done rendezvous
// semaphores. exactly one operation occupies the slot between its enqueue
// and completion.
type funnel struct {
	submitMu sync.Mutex // at most one pending operation at a time

	pending rendezvous
	done    rendezvous

	slot *operation

	ownerReady chan struct{}
	ownerExit  chan struct{}
}

func newFunnel() *funnel {
	return &funnel{
		pending:    newRendezvous(),
		done:       newRendezvous(),
		ownerReady: make(chan struct{}),
		ownerExit:  make(chan struct{}),
	}
}

// submit hands op to the owner task and blocks until it completes. Callers
// from different goroutines are totally ordered by submitMu acquisition;
// operations from a single caller goroutine complete in program order
// because the mutex is held across the full submit-and-wait (spec.md §5,
// Property 1).
func (f *funnel) submit(op *operation) {
	f.submitMu.Lock()
	defer f.submitMu.Unlock()

	f.slot = op
	f.pending.signal()
	// The context here is background: per spec.md §5 there is no
	// caller-side cancellation once an operation enters the funnel.
	_ = f.done.wait(context.Background())
}

// serve runs on the owner task. It must be started with the calling
// goroutine's OS thread already locked (runtime.LockOSThread), and it never
// returns that thread to the scheduler's free pool until exit is enqueued.
func (f *funnel) serve(execute func(*operation)) {
	runtime.LockOSThread()
	close(f.ownerReady)
	for {
		if err := f.pending.wait(context.Background()); err != nil {
			continue
		}
		op := f.slot
		if op.kind == opExit {
			f.done.signal()
			close(f.ownerExit)
			return
		}
		execute(op)
		f.done.signal()
	}
}

// stop enqueues the Exit sentinel and waits for the owner task to leave its
// serve loop. Using a designated sentinel keeps the serve loop free of a
// separate shutdown-check branch.
func (f *funnel) stop() {
	f.submit(&operation{kind: opExit})
	<-f.ownerExit
}
