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

package journal

import (
	"context"
	"fmt"

	"github.com/creachadair/wasmjournal/blob"
)

// heads implements C4: a mapping (application, device) -> JournalKey, at
// most one row per pair, overwritten (never tombstoned) on each advance.
type heads struct {
	kv blob.KV
}

// headKey returns the storage key for (app, device): the 16 raw bytes of
// the application id followed by the 32 raw bytes of the device public key.
func headKey(app ApplicationId, device DevicePublicKey) string {
	buf := make([]byte, 0, 16+len(device))
	buf = append(buf, app[:]...)
	buf = append(buf, device[:]...)
	return string(buf)
}

// Heads returns a full snapshot of the heads table. Not expected to be
// large; used internally and for diagnostics.
func (h heads) Heads(ctx context.Context) (map[HeadKey]JournalKey, error) {
	out := make(map[HeadKey]JournalKey)
	for raw, err := range h.kv.List(ctx, "") {
		if err != nil {
			return nil, fmt.Errorf("list heads: %w", err)
		}
		if len(raw) != 16+32 {
			return nil, integrityErrorf("malformed heads key", nil)
		}
		var hk HeadKey
		copy(hk.App[:], raw[:16])
		copy(hk.Device[:], raw[16:])

		val, err := h.kv.Get(ctx, raw)
		if err != nil {
			return nil, fmt.Errorf("get head: %w", err)
		}
		var jk JournalKey
		if len(val) != len(jk) {
			return nil, integrityErrorf("malformed head value", nil)
		}
		copy(jk[:], val)
		out[hk] = jk
	}
	return out, nil
}

// UpdateHead installs key as the current head for (app, device),
// overwriting any previous value.
func (h heads) UpdateHead(ctx context.Context, device DevicePublicKey, app ApplicationId, key JournalKey) error {
	err := h.kv.Put(ctx, blob.PutOptions{
		Key:     headKey(app, device),
		Data:    append([]byte(nil), key[:]...),
		Replace: true,
	})
	if err != nil {
		return fmt.Errorf("update head: %w", err)
	}
	return nil
}

// ThisHead looks up the current head for app under device, a convenience
// wrapper used by the journal façade with the host's own device key.
func (h heads) ThisHead(ctx context.Context, app ApplicationId, device DevicePublicKey) (JournalKey, bool, error) {
	val, err := h.kv.Get(ctx, headKey(app, device))
	if blob.IsKeyNotFound(err) {
		return JournalKey{}, false, nil
	} else if err != nil {
		return JournalKey{}, false, fmt.Errorf("get head: %w", err)
	}
	var jk JournalKey
	if len(val) != len(jk) {
		return JournalKey{}, false, integrityErrorf("malformed head value", nil)
	}
	copy(jk[:], val)
	return jk, true, nil
}
