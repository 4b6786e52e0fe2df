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

package memstore_test

import (
	"context"
	"testing"

	"github.com/creachadair/wasmjournal/blob"
	"github.com/creachadair/wasmjournal/blob/memstore"
)

func TestKV(t *testing.T) {
	ctx := context.Background()
	m := memstore.NewKV()

	if err := m.Put(ctx, blob.PutOptions{Key: "foo", Data: []byte("bar")}); err != nil {
		t.Fatalf("Put foo: %v", err)
	}
	if err := m.Put(ctx, blob.PutOptions{Key: "foo", Data: []byte("baz")}); !blob.IsKeyExists(err) {
		t.Errorf("Put foo (no replace): got %v, want ErrKeyExists", err)
	}
	if err := m.Put(ctx, blob.PutOptions{Key: "foo", Data: []byte("baz"), Replace: true}); err != nil {
		t.Fatalf("Put foo (replace): %v", err)
	}
	got, err := m.Get(ctx, "foo")
	if err != nil {
		t.Fatalf("Get foo: %v", err)
	}
	if string(got) != "baz" {
		t.Errorf("Get foo: got %q, want %q", got, "baz")
	}
	if _, err := m.Get(ctx, "nonesuch"); !blob.IsKeyNotFound(err) {
		t.Errorf("Get nonesuch: got %v, want ErrKeyNotFound", err)
	}
	if have, err := m.Has(ctx, "foo", "nonesuch"); err != nil {
		t.Fatalf("Has: %v", err)
	} else if !have.Has("foo") || have.Has("nonesuch") {
		t.Errorf("Has: got %v, want {foo}", have)
	}
	if err := m.Delete(ctx, "foo"); err != nil {
		t.Fatalf("Delete foo: %v", err)
	}
	if err := m.Delete(ctx, "foo"); !blob.IsKeyNotFound(err) {
		t.Errorf("Delete foo (again): got %v, want ErrKeyNotFound", err)
	}
}

func TestStore(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()

	cas, err := s.KV(ctx, "cas")
	if err != nil {
		t.Fatalf("KV cas: %v", err)
	}
	heads, err := s.KV(ctx, "heads")
	if err != nil {
		t.Fatalf("KV heads: %v", err)
	}
	if err := cas.Put(ctx, blob.PutOptions{Key: "k", Data: []byte("v")}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := heads.Get(ctx, "k"); !blob.IsKeyNotFound(err) {
		t.Errorf("keyspaces are not disjoint: Get heads[k] = %v, want ErrKeyNotFound", err)
	}

	// Calling KV again with the same name must return the same keyspace.
	cas2, err := s.KV(ctx, "cas")
	if err != nil {
		t.Fatalf("KV cas (again): %v", err)
	}
	if _, err := cas2.Get(ctx, "k"); err != nil {
		t.Errorf("Get k from reopened keyspace: %v", err)
	}
}

func TestList(t *testing.T) {
	ctx := context.Background()
	m := memstore.NewKV()
	for _, key := range []string{"c", "a", "b"} {
		if err := m.Put(ctx, blob.PutOptions{Key: key, Data: []byte(key)}); err != nil {
			t.Fatalf("Put %q: %v", key, err)
		}
	}
	var got []string
	for key, err := range m.List(ctx, "") {
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		got = append(got, key)
	}
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("List: got %v, want %v", got, want)
	}
	for i, key := range want {
		if got[i] != key {
			t.Errorf("List[%d]: got %q, want %q", i, got[i], key)
		}
	}
}
