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

// Package sqlitekv adapts [github.com/creachadair/sqlitestore], which
// implements the upstream [github.com/creachadair/ffs/blob.Store]
// interface, to this module's local [blob.Store] interface, so the
// journal's settings, cas, entries, and heads keyspaces can all live in one
// sqlite database file with the fsync-on-commit durability that gives the
// blob backend (C1) its crash-atomicity guarantee.
//
// The two interfaces are structurally identical (this module's was copied
// from the same lineage), but Go does not treat identically-shaped
// interfaces from different packages as interchangeable, so every call is
// routed through a thin adapter.
package sqlitekv

import (
	"context"
	"fmt"
	"iter"

	ffsblob "github.com/creachadair/ffs/blob"
	"github.com/creachadair/sqlitestore"

	"github.com/creachadair/wasmjournal/blob"
	"github.com/creachadair/wasmjournal/blob/store"
)

func init() {
	if err := store.Default.Register("sqlite", Opener); err != nil {
		panic(err) // duplicate registration indicates a programming error
	}
}

// Opener opens a sqlite-backed [blob.StoreCloser] at addr (a filesystem
// path), for use with the [store] registry under the "sqlite" tag.
func Opener(ctx context.Context, addr string) (blob.StoreCloser, error) {
	s, err := sqlitestore.Opener(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store %q: %w", addr, err)
	}
	return storeAdapter{s}, nil
}

type storeAdapter struct{ s ffsblob.StoreCloser }

func (a storeAdapter) KV(ctx context.Context, name string) (blob.KV, error) {
	kv, err := a.s.KV(ctx, name)
	if err != nil {
		return nil, err
	}
	return kvAdapter{kv}, nil
}

func (a storeAdapter) CAS(ctx context.Context, name string) (blob.CAS, error) {
	return blob.CASFromKVError(a.KV(ctx, name))
}

func (a storeAdapter) Sub(ctx context.Context, name string) (blob.Store, error) {
	sub, err := a.s.Sub(ctx, name)
	if err != nil {
		return nil, err
	}
	return storeAdapter{sub}, nil
}

func (a storeAdapter) Close(ctx context.Context) error { return a.s.Close(ctx) }

// kvAdapter adapts one upstream [ffsblob.KV] keyspace to this module's
// [blob.KV], translating [blob.PutOptions] and the sentinel key errors at
// the boundary.
type kvAdapter struct{ kv ffsblob.KV }

func (a kvAdapter) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := a.kv.Get(ctx, key)
	return data, translateErr(key, err)
}

func (a kvAdapter) Has(ctx context.Context, keys ...string) (blob.KeySet, error) {
	return a.kv.Has(ctx, keys...)
}

func (a kvAdapter) Put(ctx context.Context, opts blob.PutOptions) error {
	err := a.kv.Put(ctx, ffsblob.PutOptions{
		Key:     opts.Key,
		Data:    opts.Data,
		Replace: opts.Replace,
	})
	return translateErr(opts.Key, err)
}

func (a kvAdapter) Delete(ctx context.Context, key string) error {
	return translateErr(key, a.kv.Delete(ctx, key))
}

func (a kvAdapter) List(ctx context.Context, start string) iter.Seq2[string, error] {
	return a.kv.List(ctx, start)
}

func (a kvAdapter) Len(ctx context.Context) (int64, error) { return a.kv.Len(ctx) }

// translateErr maps an upstream ffsblob sentinel error to this module's
// equivalent, preserving the implicated key. Any other error passes through
// unchanged (it is already a fatal storage error per §7).
func translateErr(key string, err error) error {
	switch {
	case err == nil:
		return nil
	case ffsblob.IsKeyNotFound(err):
		return blob.KeyNotFound(key)
	case ffsblob.IsKeyExists(err):
		return blob.KeyExists(key)
	default:
		return err
	}
}
