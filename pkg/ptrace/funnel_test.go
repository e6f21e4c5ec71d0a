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
	"sync"
	"testing"
	"time"
)

// TestFunnelRendezvousSingleRoundTrip exercises the basic pending/done
// handshake without a real owner task: execute simply stamps the operation
// so the caller can observe that submit() did not return before execute ran.
func TestFunnelRendezvousSingleRoundTrip(t *testing.T) {
	f := newFunnel()
	go f.serve(func(op *operation) {
		op.n = 99
	})
	defer f.stop()

	op := &operation{kind: opReadMemory}
	f.submit(op)
	if op.n != 99 {
		t.Fatalf("submit returned before execute ran: op.n = %d, want 99", op.n)
	}
}

// TestFunnelOrdersOneCallerProgramOrder checks Property 1 from the
// concurrency model: operations submitted by a single goroutine complete in
// the order they were submitted, because submit holds submitMu across the
// full round trip.
func TestFunnelOrdersOneCallerProgramOrder(t *testing.T) {
	f := newFunnel()
	var executed []int
	var mu sync.Mutex
	go f.serve(func(op *operation) {
		mu.Lock()
		executed = append(executed, int(op.offset))
		mu.Unlock()
	})
	defer f.stop()

	for i := 0; i < 20; i++ {
		f.submit(&operation{kind: opReadMemory, offset: uintptr(i)})
	}

	mu.Lock()
	defer mu.Unlock()
	for i, v := range executed {
		if v != i {
			t.Fatalf("executed[%d] = %d, want %d; order was %v", i, v, i, executed)
		}
	}
}

// TestFunnelSerializesConcurrentCallers checks that two goroutines
// submitting concurrently never have overlapping executions: the owner
// task only ever runs one operation's execute callback at a time.
func TestFunnelSerializesConcurrentCallers(t *testing.T) {
	f := newFunnel()

	var mu sync.Mutex
	inFlight := 0
	maxInFlight := 0
	go f.serve(func(op *operation) {
		mu.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		mu.Unlock()

		time.Sleep(time.Millisecond)

		mu.Lock()
		inFlight--
		mu.Unlock()
	})
	defer f.stop()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.submit(&operation{kind: opReadMemory})
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if maxInFlight != 1 {
		t.Fatalf("observed %d concurrent executions, want at most 1", maxInFlight)
	}
}

func TestFunnelStopJoinsOwnerTask(t *testing.T) {
	f := newFunnel()
	go f.serve(func(*operation) {})
	f.stop()

	select {
	case <-f.ownerExit:
	default:
		t.Fatal("stop() should not return before ownerExit is closed")
	}
}
