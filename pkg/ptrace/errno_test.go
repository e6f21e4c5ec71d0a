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
	"errors"
	"testing"

	"golang.org/x/sys/unix"
)

func TestKernelErrorUnwrap(t *testing.T) {
	err := &KernelError{Op: "PEEKTEXT", Errno: unix.ESRCH}
	if !errors.Is(err, unix.ESRCH) {
		t.Fatalf("errors.Is(%v, ESRCH) = false, want true", err)
	}
	if errors.Is(err, unix.EINVAL) {
		t.Fatalf("errors.Is(%v, EINVAL) = true, want false", err)
	}
}

func TestKernelErrorMessageNamesTheRequest(t *testing.T) {
	err := &KernelError{Op: "GETREGS", Errno: unix.EPERM}
	got := err.Error()
	if !contains(got, "GETREGS") {
		t.Fatalf("Error() = %q, want it to mention the request name", got)
	}
}

func TestIsVanished(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"esrch wrapped", &KernelError{Op: "CONT", Errno: unix.ESRCH}, true},
		{"eperm wrapped", &KernelError{Op: "CONT", Errno: unix.EPERM}, false},
		{"plain errno", unix.ESRCH, false}, // IsVanished only recognizes *KernelError
		{"nil", nil, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := IsVanished(c.err); got != c.want {
				t.Errorf("IsVanished(%v) = %v, want %v", c.err, got, c.want)
			}
		})
	}
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
