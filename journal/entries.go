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
	"crypto/ed25519"
	"fmt"

	"github.com/creachadair/wasmjournal/blob"
	"github.com/creachadair/wasmjournal/wire"
)

// entries implements C3, the signed entry store, over a named keyspace of
// the blob backend.
type entries struct {
	kv blob.KV
}

// Put canonical-serializes entry, signs it with priv, wraps the signature
// and entry bytes in a [signedEnvelope], and writes the envelope under
// insert-or-ignore semantics. The returned JournalKey is the hash of the
// envelope's canonical encoding.
func (e entries) Put(ctx context.Context, entry JournalEntry, priv ed25519.PrivateKey, pub DevicePublicKey) (JournalKey, error) {
	entryBytes, err := wire.Marshal(entry)
	if err != nil {
		return JournalKey{}, fmt.Errorf("encode entry: %w", err)
	}
	sig := ed25519.Sign(priv, entryBytes)

	env := signedEnvelope{
		From:        pub,
		InnerSigned: append(append([]byte(nil), sig...), entryBytes...),
	}
	envBytes, err := wire.Marshal(env)
	if err != nil {
		return JournalKey{}, fmt.Errorf("encode envelope: %w", err)
	}
	key := JournalKey(wire.Hash(envBytes))

	err = e.kv.Put(ctx, blob.PutOptions{
		Key:     string(key[:]),
		Data:    envBytes,
		Replace: false,
	})
	if blob.IsKeyExists(err) {
		err = nil
	}
	if err != nil {
		return JournalKey{}, fmt.Errorf("put entry: %w", err)
	}
	return key, nil
}

// Get reads the envelope stored under key, verifies its signature, and
// returns the entry it covers. A signature or structural failure is always
// reported as an [IntegrityError]; the caller must never receive an entry
// that failed to verify. An absent key reports blob.ErrKeyNotFound.
func (e entries) Get(ctx context.Context, key JournalKey) (JournalEntry, error) {
	raw, err := e.kv.Get(ctx, string(key[:]))
	if err != nil {
		return JournalEntry{}, fmt.Errorf("get entry: %w", err)
	}
	if got := JournalKey(wire.Hash(raw)); got != key {
		return JournalEntry{}, integrityErrorf("entry hash mismatch for "+key.String(), nil)
	}
	var env signedEnvelope
	if err := wire.Unmarshal(raw, &env); err != nil {
		return JournalEntry{}, integrityErrorf("decode envelope "+key.String(), err)
	}
	if len(env.InnerSigned) < ed25519.SignatureSize {
		return JournalEntry{}, integrityErrorf("truncated signed envelope "+key.String(), nil)
	}
	sig, entryBytes := env.InnerSigned[:ed25519.SignatureSize], env.InnerSigned[ed25519.SignatureSize:]
	if !ed25519.Verify(ed25519.PublicKey(env.From[:]), entryBytes, sig) {
		return JournalEntry{}, integrityErrorf("signature verification failed for "+key.String(), nil)
	}
	var entry JournalEntry
	if err := wire.Unmarshal(entryBytes, &entry); err != nil {
		return JournalEntry{}, integrityErrorf("decode entry "+key.String(), err)
	}
	return entry, nil
}
