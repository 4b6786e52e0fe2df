// Copyright 2019 Michael J. Fromberger. All Rights Reserved.
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

//go:build wasm

// Package guestsdk is C9, the guest-side library a sandboxed application
// links against to reach the host ABI bridge (wasmhost's C8). It compiles
// only under GOOS=wasip1 GOARCH=wasm: the //go:wasmimport declarations
// below name host functions that exist only inside a wazero-hosted guest,
// the Go analogue of the original's `extern "C"` block into wasmlib.
package guestsdk

import "unsafe"

//go:wasmimport env update_state
func updateStateImport(handle uint32)

//go:wasmimport env get_state
func getStateImport() uint32

//go:wasmimport env cas_get
func casGetImport(handle uint32) uint32

//go:wasmimport env cas_put
func casPutImport(srcPtr, length, linksPtr, linksCount uint32) uint32

//go:wasmimport env output
func outputImport(srcPtr, length uint32) uint32

//go:wasmimport env read
func readImport(handle, destPtr, length, offset uint32) uint32

//go:wasmimport env cas_get_links
func casGetLinksImport(handle uint32) uint32

//go:wasmimport env handle_release
func handleReleaseImport(handle uint32)

// KeyHandle is a guest-held reference to a CAS root, opaque to the guest
// beyond its identity and its ability to be passed back across the ABI.
type KeyHandle uint32

// IsZero reports whether h is the reserved "absent" handle returned by
// [GetState] when the application has no prior state.
func (h KeyHandle) IsZero() bool { return h == 0 }

// Release tells the host this handle is no longer needed. Handles not
// released are reclaimed automatically at the end of the invocation, but an
// application processing many CAS nodes in one call should release
// promptly to bound host-side memory.
func (h KeyHandle) Release() { handleReleaseImport(uint32(h)) }

// DataHandle is a guest-held reference to a transient host-owned byte
// buffer, such as the result of [CASGet] or [Links].
type DataHandle uint32

// Release tells the host this handle is no longer needed.
func (h DataHandle) Release() { handleReleaseImport(uint32(h)) }

// GetState returns this application's current state on this device, or
// false if no state has ever been committed.
func GetState() (KeyHandle, bool) {
	h := KeyHandle(getStateImport())
	return h, !h.IsZero()
}

// UpdateState commits key as this application's new state.
func UpdateState(key KeyHandle) { updateStateImport(uint32(key)) }

// CASGet reads the blob key refers to into host memory and returns a
// handle to it. Use [ReadAll] to copy the bytes into the guest.
func CASGet(key KeyHandle) DataHandle { return DataHandle(casGetImport(uint32(key))) }

// CASPut stores data together with its outbound links and returns the
// assigned key.
func CASPut(data []byte, links []KeyHandle) KeyHandle {
	linksPtr, linksLen := ptrLen32(links)
	srcPtr, srcLen := ptrLen(data)
	return KeyHandle(casPutImport(srcPtr, srcLen, linksPtr, linksLen))
}

// Links returns the outbound links of the blob key refers to.
func Links(key KeyHandle) []KeyHandle {
	dh := DataHandle(casGetLinksImport(uint32(key)))
	defer dh.Release()
	raw := ReadAll(dh)
	links := make([]KeyHandle, len(raw)/4)
	for i := range links {
		links[i] = KeyHandle(getLE32(raw[4*i:]))
	}
	return links
}

// Output writes s to the host's log/console stream.
func Output(s string) {
	ptr, length := ptrLen([]byte(s))
	outputImport(ptr, length)
}

// readChunk is the largest single transfer requested per read call; ReadAll
// loops until it has drained the full buffer named by h.
const readChunk = 1 << 16

// ReadAll copies the entirety of the buffer h refers to into a freshly
// allocated guest slice.
func ReadAll(h DataHandle) []byte {
	var out []byte
	buf := make([]byte, readChunk)
	for offset := uint32(0); ; {
		ptr, length := ptrLen(buf)
		n := readImport(uint32(h), ptr, length, offset)
		out = append(out, buf[:n]...)
		offset += n
		if n < uint32(length) {
			return out
		}
	}
}

func ptrLen(b []byte) (ptr, length uint32) {
	if len(b) == 0 {
		return 0, 0
	}
	return uint32(uintptr(unsafe.Pointer(&b[0]))), uint32(len(b))
}

func ptrLen32(h []KeyHandle) (ptr, count uint32) {
	if len(h) == 0 {
		return 0, 0
	}
	return uint32(uintptr(unsafe.Pointer(&h[0]))), uint32(len(h))
}

func getLE32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
