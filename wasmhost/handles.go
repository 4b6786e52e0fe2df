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

// Package wasmhost implements the opaque handle table (C7) and the host
// ABI bridge (C8) that let a sandboxed WASM guest manipulate CAS blobs and
// journal state through a narrow, bounds-checked 32-bit interface.
package wasmhost

import "github.com/creachadair/wasmjournal/journal"

// Handle is the runtime-only value an opaque id stands for during one
// guest invocation: either a reference to a CAS root, or a transient byte
// buffer owned by the host. The unexported marker method seals the set of
// implementations, matching the style of [blob.Store]'s small interfaces.
type Handle interface {
	isHandle()
}

// HandleKey is a handle standing for a [journal.CASKey].
type HandleKey struct{ Key journal.CASKey }

func (HandleKey) isHandle() {}

// HandleData is a handle standing for a transient byte buffer, such as the
// payload returned by cas_get or the encoded link list from
// cas_get_links.
type HandleData struct{ Data []byte }

func (HandleData) isHandle() {}

// HandleManager allocates fresh 32-bit handle identifiers in [1, 2³¹) and
// recycles released ones. Identifier 0 is reserved to mean "absent" at the
// ABI boundary and is never allocated. A HandleManager is scoped to exactly
// one guest invocation; it is not safe for concurrent use, matching the
// single-guest-at-a-time concurrency model of the journal as a whole.
type HandleManager struct {
	next uint32
	free []uint32
	live map[uint32]Handle
}

// NewHandleManager returns an empty handle table.
func NewHandleManager() *HandleManager {
	return &HandleManager{next: 1, live: make(map[uint32]Handle)}
}

// Insert allocates a fresh identifier for h and returns it. Identifiers
// released by a prior call to Release are reused before new ones are
// minted, most-recently-released first.
func (m *HandleManager) Insert(h Handle) uint32 {
	var id uint32
	if n := len(m.free); n > 0 {
		id, m.free = m.free[n-1], m.free[:n-1]
	} else {
		id, m.next = m.next, m.next+1
	}
	m.live[id] = h
	return id
}

// Get returns the handle associated with id, if it is currently live.
func (m *HandleManager) Get(id uint32) (Handle, bool) {
	h, ok := m.live[id]
	return h, ok
}

// Release retires id so a later Insert may reuse it. It reports false if id
// was not live, which the ABI bridge treats as a guest protocol trap —
// double-release is never silently tolerated.
func (m *HandleManager) Release(id uint32) bool {
	if _, ok := m.live[id]; !ok {
		return false
	}
	delete(m.live, id)
	m.free = append(m.free, id)
	return true
}

// Len reports the number of currently live handles.
func (m *HandleManager) Len() int { return len(m.live) }
