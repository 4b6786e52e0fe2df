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

// Package memstore implements the [blob.Store] interface using in-memory
// dictionaries, one per keyspace. It backs the "mem:" store address and is
// the default store for unit tests throughout the module.
package memstore

import (
	"context"
	"iter"
	"strings"
	"sync"

	"github.com/creachadair/mds/stree"
	"github.com/creachadair/wasmjournal/blob"
	"github.com/creachadair/wasmjournal/blob/store"
)

func init() {
	if err := store.Default.Register("mem", Opener); err != nil {
		panic(err) // duplicate registration indicates a programming error
	}
}

// Store implements [blob.StoreCloser] using an in-memory dictionary for each
// keyspace. A zero value is not ready for use; construct one with [New].
type Store struct {
	μ   sync.Mutex
	kvs map[string]*KV
}

// New constructs a new, empty Store.
func New() *Store { return &Store{kvs: make(map[string]*KV)} }

// Opener constructs a memstore for use with the [store] registry under the
// "mem" tag. The address is ignored, and an error is never returned.
func Opener(_ context.Context, _ string) (blob.StoreCloser, error) { return New(), nil }

// KV implements part of [blob.Store].
func (s *Store) KV(_ context.Context, name string) (blob.KV, error) {
	s.μ.Lock()
	defer s.μ.Unlock()
	kv, ok := s.kvs[name]
	if !ok {
		kv = NewKV()
		s.kvs[name] = kv
	}
	return kv, nil
}

// CAS implements part of [blob.Store].
func (s *Store) CAS(ctx context.Context, name string) (blob.CAS, error) {
	return blob.CASFromKVError(s.KV(ctx, name))
}

// Sub implements part of [blob.Store]. Each substore has its own, disjoint
// set of keyspaces.
func (s *Store) Sub(_ context.Context, _ string) (blob.Store, error) { return New(), nil }

// Close implements part of [blob.StoreCloser]. This implementation is a no-op.
func (*Store) Close(context.Context) error { return nil }

// KV implements the [blob.KV] interface using an in-memory, ordered
// dictionary. All operations on a KV are safe for concurrent use by
// multiple goroutines.
type KV struct {
	μ sync.Mutex
	m *stree.Tree[entry]
}

type entry struct{ key, val string }

func compareEntries(a, b entry) int { return strings.Compare(a.key, b.key) }

// NewKV constructs a new, empty key-value namespace.
func NewKV() *KV { return &KV{m: stree.New(300, compareEntries)} }

// Get implements part of [blob.KVCore].
func (s *KV) Get(_ context.Context, key string) ([]byte, error) {
	s.μ.Lock()
	defer s.μ.Unlock()
	if e, ok := s.m.Get(entry{key: key}); ok {
		return []byte(e.val), nil
	}
	return nil, blob.KeyNotFound(key)
}

// Has implements part of [blob.KVCore].
func (s *KV) Has(_ context.Context, keys ...string) (blob.KeySet, error) {
	s.μ.Lock()
	defer s.μ.Unlock()
	var have blob.KeySet
	for _, key := range keys {
		if _, ok := s.m.Get(entry{key: key}); ok {
			have.Add(key)
		}
	}
	return have, nil
}

// Put implements part of [blob.KV].
func (s *KV) Put(_ context.Context, opts blob.PutOptions) error {
	s.μ.Lock()
	defer s.μ.Unlock()
	ent := entry{opts.Key, string(opts.Data)}
	if opts.Replace {
		s.m.Replace(ent)
	} else if !s.m.Add(ent) {
		return blob.KeyExists(opts.Key)
	}
	return nil
}

// Delete implements part of [blob.KVCore].
func (s *KV) Delete(_ context.Context, key string) error {
	s.μ.Lock()
	defer s.μ.Unlock()
	if !s.m.Remove(entry{key: key}) {
		return blob.KeyNotFound(key)
	}
	return nil
}

// List implements part of [blob.KVCore].
func (s *KV) List(_ context.Context, start string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		s.μ.Lock()
		keys := make([]string, 0, s.m.Len())
		for e := range s.m.InorderAfter(entry{key: start}) {
			keys = append(keys, e.key)
		}
		s.μ.Unlock()
		for _, key := range keys {
			if !yield(key, nil) {
				return
			}
		}
	}
}

// Len implements part of [blob.KVCore].
func (s *KV) Len(context.Context) (int64, error) {
	s.μ.Lock()
	defer s.μ.Unlock()
	return int64(s.m.Len()), nil
}

// Clear removes all keys and values from s.
func (s *KV) Clear() {
	s.μ.Lock()
	defer s.μ.Unlock()
	s.m.Clear()
}
