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
	"unsafe"

	"github.com/newappfirst/infmon/internal/log"
)

// wordSize is the host pointer width. spec.md's open question on 32-bit
// hosts with a 64-bit inferior is resolved by requiring a 64-bit host
// outright (the package's init panics on any other architecture); addresses
// and words are always 8 bytes.
const wordSize = 8

// readMemory implements ReadMemory. It must run on the owner task: it is
// called directly from the funnel's execute callback, never from a caller
// goroutine.
func readMemory(tid int32, addr uint64, size int) ([]byte, int, error) {
	out := make([]byte, size)
	n := 0
	for n < size {
		word, err := peekWord(tid, addr+uint64(n))
		if err != nil {
			return out, n, err
		}
		var wbuf [wordSize]byte
		binary.LittleEndian.PutUint64(wbuf[:], word)
		copied := copy(out[n:], wbuf[:])
		n += copied
	}
	logMemory("ReadMemory", addr, out[:n])
	return out, n, nil
}

// writeMemory implements WriteMemory. Aligned full words are poked
// directly; a trailing partial word is preserved via read-modify-write so
// bytes outside the requested range survive untouched (spec.md Property 3).
// The read-modify-write path recurses through peekWord/pokeWord rather than
// bypassing them, keeping every trace call on the owner task.
func writeMemory(tid int32, addr uint64, buf []byte) (int, error) {
	n := 0
	size := len(buf)
	for n < size {
		cur := addr + uint64(n)
		remaining := size - n
		if remaining >= wordSize && cur%wordSize == 0 {
			var wbuf [wordSize]byte
			copy(wbuf[:], buf[n:n+wordSize])
			if err := pokeWord(tid, cur, binary.LittleEndian.Uint64(wbuf[:])); err != nil {
				return n, err
			}
			n += wordSize
			continue
		}

		// Partial (possibly unaligned) word: read the existing word,
		// overlay the requested bytes, write it back.
		wordAddr := cur - (cur % wordSize)
		offsetInWord := int(cur % wordSize)
		existing, err := peekWord(tid, wordAddr)
		if err != nil {
			return n, err
		}
		var wbuf [wordSize]byte
		binary.LittleEndian.PutUint64(wbuf[:], existing)
		copyLen := wordSize - offsetInWord
		if copyLen > remaining {
			copyLen = remaining
		}
		copy(wbuf[offsetInWord:offsetInWord+copyLen], buf[n:n+copyLen])
		if err := pokeWord(tid, wordAddr, binary.LittleEndian.Uint64(wbuf[:])); err != nil {
			return n, err
		}
		n += copyLen
	}
	logMemory("WriteMemory", addr, buf)
	return n, nil
}

// peekWord reads one word. At the raw syscall level PEEKDATA stores the
// word through the data pointer and returns 0.
func peekWord(tid int32, addr uint64) (uint64, error) {
	word := new(uint64)
	if _, err := trace(ptracePeekData, tid, uintptr(addr), uintptr(unsafe.Pointer(word))); err != nil {
		return 0, err
	}
	return *word, nil
}

func pokeWord(tid int32, addr uint64, word uint64) error {
	_, err := trace(ptracePokeData, tid, uintptr(addr), uintptr(word))
	return err
}

func logMemory(op string, addr uint64, buf []byte) {
	if !log.Enabled(log.Memory) {
		return
	}
	log.Infof(log.Memory, "%s(addr=%#x, n=%d): %s", op, addr, len(buf), log.ShortBytes(buf))
}
