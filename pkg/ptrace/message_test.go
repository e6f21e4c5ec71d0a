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

import "testing"

func TestMessageKindStringIsTotal(t *testing.T) {
	kinds := []MessageKind{
		MsgExit, MsgLimbo, MsgTrace, MsgBreak, MsgWatch, MsgCrash,
		MsgNewThread, MsgExec, MsgSignal, MsgSignalDelivered,
	}
	seen := map[string]bool{}
	for _, k := range kinds {
		s := k.String()
		if s == "Unknown" {
			t.Errorf("MessageKind %d stringified as Unknown", k)
		}
		if seen[s] {
			t.Errorf("MessageKind %d collides with an earlier kind's string %q", k, s)
		}
		seen[s] = true
	}
}

func TestMessageKindStringUnknown(t *testing.T) {
	var k MessageKind = 999
	if got := k.String(); got != "Unknown" {
		t.Fatalf("String() of an out-of-range MessageKind = %q, want %q", got, "Unknown")
	}
}

func TestCrashReasonStringIsTotal(t *testing.T) {
	reasons := []CrashReason{
		ReasonReadUnmapped, ReasonWriteUnmapped, ReasonExecUnmapped,
		ReasonIllegalOpcode, ReasonFloatingPoint, ReasonAlignment,
	}
	for _, r := range reasons {
		if r.String() == "unknown" {
			t.Errorf("CrashReason %d stringified as unknown", r)
		}
	}
	if ReasonUnknown.String() != "unknown" {
		t.Fatalf("ReasonUnknown.String() = %q, want %q", ReasonUnknown.String(), "unknown")
	}
}
