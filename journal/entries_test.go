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
	"crypto/rand"
	"errors"
	"testing"

	"github.com/creachadair/wasmjournal/blob"
	"github.com/creachadair/wasmjournal/blob/memstore"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
)

func newEntries(t *testing.T) entries {
	t.Helper()
	store := memstore.New()
	kv, err := store.KV(context.Background(), "entries")
	if err != nil {
		t.Fatalf("KV: %v", err)
	}
	return entries{kv: kv}
}

func TestEntriesRoundTrip(t *testing.T) {
	ctx := context.Background()
	e := newEntries(t)

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	var devPub DevicePublicKey
	copy(devPub[:], pub)

	entry := JournalEntry{
		ApplicationId: ApplicationId(uuid.New()),
		NewState:      CASKey{1, 2, 3},
	}
	key, err := e.Put(ctx, entry, priv, devPub)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := e.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if diff := cmp.Diff(entry, got); diff != "" {
		t.Errorf("entry mismatch (-want +got):\n%s", diff)
	}
}

func TestEntriesTamperDetection(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	kv, err := store.KV(ctx, "entries")
	if err != nil {
		t.Fatalf("KV: %v", err)
	}
	e := entries{kv: kv}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	var devPub DevicePublicKey
	copy(devPub[:], pub)

	entry := JournalEntry{ApplicationId: ApplicationId(uuid.New()), NewState: CASKey{9}}
	key, err := e.Put(ctx, entry, priv, devPub)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	raw, err := kv.Get(ctx, string(key[:]))
	if err != nil {
		t.Fatalf("Get raw: %v", err)
	}
	tampered := append([]byte(nil), raw...)
	tampered[len(tampered)-1] ^= 0xff
	if err := kv.Delete(ctx, string(key[:])); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := kv.Put(ctx, blob.PutOptions{Key: string(key[:]), Data: tampered}); err != nil {
		t.Fatalf("Put tampered: %v", err)
	}

	_, err = e.Get(ctx, key)
	var integrity *IntegrityError
	if !errors.As(err, &integrity) {
		t.Errorf("Get after tamper: got %v, want *IntegrityError", err)
	}
}
