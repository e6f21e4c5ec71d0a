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

package log

import "testing"

func TestEnableDisable(t *testing.T) {
	Disable(Memory)
	if Enabled(Memory) {
		t.Fatal("Memory should start disabled")
	}

	Enable(Memory)
	if !Enabled(Memory) {
		t.Fatal("Memory should be enabled after Enable")
	}

	Disable(Memory)
	if Enabled(Memory) {
		t.Fatal("Memory should be disabled after Disable")
	}
}

func TestEnabledIsPerCategory(t *testing.T) {
	Enable(Trace)
	defer Disable(Trace)

	if !Enabled(Trace) {
		t.Fatal("Trace should be enabled")
	}
	if Enabled(Registers) {
		t.Fatal("Registers should remain disabled")
	}
}

func TestShortBytesWithinBudget(t *testing.T) {
	buf := []byte{0x01, 0x02, 0x03}
	got := ShortBytes(buf)
	want := "01 02 03"
	if got != want {
		t.Fatalf("ShortBytes(%v) = %q, want %q", buf, got, want)
	}
}

func TestShortBytesTruncatesPastBudget(t *testing.T) {
	buf := make([]byte, ShortBudget+16)
	got := ShortBytes(buf)
	if len(got) == 0 {
		t.Fatal("ShortBytes returned empty string")
	}
	if got == LongBytes(buf) {
		t.Fatal("ShortBytes should truncate a buffer larger than ShortBudget")
	}
}

func TestLongBytesNeverTruncates(t *testing.T) {
	buf := make([]byte, ShortBudget+16)
	for i := range buf {
		buf[i] = byte(i)
	}
	got := LongBytes(buf)
	// Every byte should appear somewhere in the hex dump; spot check the
	// last one, which ShortBytes would have elided.
	last := buf[len(buf)-1]
	wantSuffix := byteToHex(last)
	if len(got) < len(wantSuffix) || got[len(got)-len(wantSuffix):] != wantSuffix {
		t.Fatalf("LongBytes(%v) = %q, missing trailing byte %s", buf, got, wantSuffix)
	}
}

func byteToHex(b byte) string {
	const hex = "0123456789abcdef"
	return string([]byte{hex[b>>4], hex[b&0xf]})
}
