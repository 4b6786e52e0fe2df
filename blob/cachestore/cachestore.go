// Copyright 2020 Michael J. Fromberger. All Rights Reserved.
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

// Package cachestore implements a [blob.Store] that wraps the keyspaces of
// an underlying store in an in-memory read-through cache, suitable for
// fronting the cas keyspace of a journal whose blobs are read far more often
// than they are written.
package cachestore

import (
	"context"
	"errors"
	"iter"

	"github.com/creachadair/mds/cache"
	"github.com/creachadair/msync/throttle"
	"github.com/creachadair/wasmjournal/blob"
)

// Store implements the [blob.StoreCloser] interface by delegating to a base
// store and wrapping each derived keyspace in a [KV] cache.
type Store struct {
	base     blob.Store
	maxBytes int
}

// New constructs a Store caching reads from base in memory, up to maxBytes
// of cached blob data per keyspace. It panics if maxBytes < 0.
func New(base blob.Store, maxBytes int) Store {
	if maxBytes < 0 {
		panic("cache size is negative")
	}
	return Store{base: base, maxBytes: maxBytes}
}

// KV implements a method of [blob.Store].
func (s Store) KV(ctx context.Context, name string) (blob.KV, error) {
	kv, err := s.base.KV(ctx, name)
	if err != nil {
		return nil, err
	}
	return NewKV(kv, s.maxBytes), nil
}

// CAS implements a method of [blob.Store].
func (s Store) CAS(ctx context.Context, name string) (blob.CAS, error) {
	return blob.CASFromKVError(s.KV(ctx, name))
}

// Sub implements a method of [blob.Store].
func (s Store) Sub(ctx context.Context, name string) (blob.Store, error) {
	sub, err := s.base.Sub(ctx, name)
	if err != nil {
		return nil, err
	}
	return New(sub, s.maxBytes), nil
}

// Close implements a method of [blob.StoreCloser].
func (s Store) Close(ctx context.Context) error { return blob.CloseStore(ctx, s.base) }

// KV wraps a base [blob.KV] with an in-memory LRU cache of recently read or
// written blobs. Reads for keys not yet cached are coalesced across
// concurrent callers requesting the same key, so a burst of identical
// cas_get calls against a slow backend issues only one underlying Get.
type KV struct {
	base  blob.KV
	cache *cache.Cache[string, []byte]
	get   throttle.Set[string, []byte]
}

// NewKV constructs a cached KV delegating storage operations to base, with
// an LRU capacity of maxBytes bytes of blob data.
func NewKV(base blob.KV, maxBytes int) *KV {
	return &KV{
		base: base,
		cache: cache.New(cache.LRU[string, []byte](int64(maxBytes)).
			WithSize(cache.Length)),
	}
}

// Get implements a method of [blob.KVCore].
func (s *KV) Get(ctx context.Context, key string) ([]byte, error) {
	if data, ok := s.cache.Get(key); ok {
		return data, nil
	}
	return s.get.Call(ctx, key, func(ctx context.Context) ([]byte, error) {
		data, err := s.base.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		s.cache.Put(key, data)
		return data, nil
	})
}

// Has implements a method of [blob.KVCore]. It is not cached, since presence
// is cheap to ask the base store directly and the cache only tracks values.
func (s *KV) Has(ctx context.Context, keys ...string) (blob.KeySet, error) {
	return s.base.Has(ctx, keys...)
}

// Put implements a method of [blob.KV]. A dedup hit (ErrKeyExists on a CAS
// write that does not request replacement) still populates the cache with
// the value the caller already has in hand, the way [journal/cas.go]'s
// CASPut treats its own dedup hits as success.
func (s *KV) Put(ctx context.Context, opts blob.PutOptions) error {
	if err := s.base.Put(ctx, opts); err != nil && !errors.Is(err, blob.ErrKeyExists) {
		return err
	}
	s.cache.Put(opts.Key, opts.Data)
	return nil
}

// Delete implements a method of [blob.KVCore].
func (s *KV) Delete(ctx context.Context, key string) error {
	s.cache.Remove(key)
	return s.base.Delete(ctx, key)
}

// List implements a method of [blob.KVCore] by delegating to the base store.
func (s *KV) List(ctx context.Context, start string) iter.Seq2[string, error] {
	return s.base.List(ctx, start)
}

// Len implements a method of [blob.KVCore] by delegating to the base store.
func (s *KV) Len(ctx context.Context) (int64, error) { return s.base.Len(ctx) }
