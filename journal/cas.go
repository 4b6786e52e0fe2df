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
	"iter"

	"github.com/creachadair/wasmjournal/blob"
	"github.com/creachadair/wasmjournal/wire"
)

// cas implements C2, the content-addressed store, over a named keyspace of
// the blob backend. Unlike [blob.CASFromKV], which hashes the raw bytes
// handed to CASPut, this store hashes the canonical encoding of {data,
// links} as a unit, so that a blob's outbound links are part of its
// identity.
type cas struct {
	kv blob.KV
}

// CASPut serializes data and links deterministically, hashes that
// serialization, and writes it to storage under insert-or-ignore semantics.
// Re-putting identical (data, links) is a no-op that returns the same key.
func (c cas) CASPut(ctx context.Context, data []byte, links []CASKey) (CASKey, error) {
	enc, err := wire.Marshal(casBlob{Data: data, Links: links})
	if err != nil {
		return CASKey{}, fmt.Errorf("encode cas blob: %w", err)
	}
	key := CASKey(wire.Hash(enc))
	err = c.kv.Put(ctx, blob.PutOptions{
		Key:     string(key[:]),
		Data:    enc,
		Replace: false,
	})
	if blob.IsKeyExists(err) {
		err = nil // dedup hit: the blob with this identity is already stored
	}
	if err != nil {
		return CASKey{}, fmt.Errorf("put cas blob: %w", err)
	}
	return key, nil
}

// CASGet reads the blob stored under key, if any. A false ok with a nil
// error means the key is simply unknown; this is not an error condition.
func (c cas) CASGet(ctx context.Context, key CASKey) (data []byte, links []CASKey, ok bool, err error) {
	raw, err := c.kv.Get(ctx, string(key[:]))
	if blob.IsKeyNotFound(err) {
		return nil, nil, false, nil
	} else if err != nil {
		return nil, nil, false, fmt.Errorf("get cas blob: %w", err)
	}
	var b casBlob
	if err := wire.Unmarshal(raw, &b); err != nil {
		return nil, nil, false, integrityErrorf("decode cas blob "+key.String(), err)
	}
	if got := CASKey(wire.Hash(raw)); got != key {
		return nil, nil, false, integrityErrorf("cas blob hash mismatch for "+key.String(), nil)
	}
	return b.Data, b.Links, true, nil
}

// CASList enumerates every key currently stored in the cas keyspace, for
// debugging and future reachability-based garbage collection.
func (c cas) CASList(ctx context.Context) iter.Seq2[CASKey, error] {
	return func(yield func(CASKey, error) bool) {
		for raw, err := range c.kv.List(ctx, "") {
			if err != nil {
				yield(CASKey{}, err)
				return
			}
			var key CASKey
			copy(key[:], raw)
			if !yield(key, nil) {
				return
			}
		}
	}
}
