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

// Package filestore implements the [blob.KV] interface using files.  The
// store comprises a directory with subdirectories keyed by a prefix of the
// encoded blob key, laid out like a Git local object store — a fitting match
// for a journal whose entries already form a git-shaped DAG.
package filestore

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"iter"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/creachadair/atomicfile"

	"github.com/creachadair/wasmjournal/blob"
	"github.com/creachadair/wasmjournal/blob/hexkey"
	"github.com/creachadair/wasmjournal/blob/store"
)

func init() {
	if err := store.Default.Register("file", Opener); err != nil {
		panic(err) // duplicate registration indicates a programming error
	}
}

// Store implements the [blob.Store] interface using a directory structure
// with one file per stored blob. Keys are encoded in hex and used to
// construct the file and directory names relative to a root directory.
type Store struct {
	key hexkey.Config
}

// New creates a Store associated with the specified root directory, which is
// created if it does not already exist.
func New(dir string) (Store, error) {
	clean := filepath.Clean(dir)
	if err := os.MkdirAll(clean, 0700); err != nil {
		return Store{}, err
	}
	return Store{key: hexkey.Config{Prefix: clean, Shard: 3}}, nil
}

// Opener constructs a filestore from an address comprising a path, for use
// with the [blob/store] registry. The concrete type of the result is
// [Store].
func Opener(_ context.Context, addr string) (blob.StoreCloser, error) {
	return New(strings.TrimPrefix(addr, "//"))
}

func (s Store) mkPath(name string) (string, error) {
	if name == "" {
		return s.key.Prefix, nil // already known to exist
	}
	// Prefix non-empty name with "_" to avert conflict with hex keys.
	p := filepath.Join(s.key.Prefix, "_"+hex.EncodeToString([]byte(name)))
	return p, os.MkdirAll(p, 0700)
}

// KV implements part of the [blob.Store] interface.
func (s Store) KV(_ context.Context, name string) (blob.KV, error) {
	p, err := s.mkPath(name)
	if err != nil {
		return nil, err
	}
	return KV{key: s.key.WithPrefix(p)}, nil
}

// CAS implements part of the [blob.Store] interface.
func (s Store) CAS(ctx context.Context, name string) (blob.CAS, error) {
	return blob.CASFromKVError(s.KV(ctx, name))
}

// Sub implements part of the [blob.Store] interface.
func (s Store) Sub(_ context.Context, name string) (blob.Store, error) {
	p, err := s.mkPath(name)
	if err != nil {
		return nil, err
	}
	return Store{key: s.key.WithPrefix(p)}, nil
}

// Close implements part of the [blob.StoreCloser] interface.
// This implementation always reports nil.
func (Store) Close(context.Context) error { return nil }

// KV implements the [blob.KV] interface using a directory structure with one
// file per stored blob.
type KV struct {
	key hexkey.Config
}

func (s KV) keyPath(key string) string { return s.key.Encode(key) }

// Get implements part of [blob.KVCore].
func (s KV) Get(_ context.Context, key string) ([]byte, error) {
	bits, err := os.ReadFile(s.keyPath(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			err = blob.KeyNotFound(key)
		}
		return nil, fmt.Errorf("key %q: %w", key, err)
	}
	return bits, nil
}

// Has implements part of [blob.KVCore].
func (s KV) Has(_ context.Context, keys ...string) (blob.KeySet, error) {
	var have blob.KeySet
	for _, key := range keys {
		if _, err := os.Stat(s.keyPath(key)); err == nil {
			have.Add(key)
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("key %q: %w", key, err)
		}
	}
	return have, nil
}

// Put implements part of [blob.KV].
func (s KV) Put(_ context.Context, opts blob.PutOptions) error {
	p := s.keyPath(opts.Key)
	if _, err := os.Stat(p); err == nil && !opts.Replace {
		return blob.KeyExists(opts.Key)
	} else if err := os.MkdirAll(filepath.Dir(p), 0700); err != nil {
		return err
	}
	return atomicfile.WriteData(p, opts.Data, 0600)
}

// Delete implements part of [blob.KVCore].
func (s KV) Delete(_ context.Context, key string) error {
	p := s.keyPath(key)
	err := os.Remove(p)
	if os.IsNotExist(err) {
		return blob.KeyNotFound(key)
	}
	return err
}

// List implements part of [blob.KVCore].
func (s KV) List(_ context.Context, start string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		roots, err := listdir(s.Dir())
		if err != nil {
			yield("", err)
			return
		}
		for _, root := range roots {
			cur := filepath.Join(s.Dir(), root)
			keys, err := listdir(cur)
			if err != nil {
				yield("", err)
				return
			}
			for _, tail := range keys {
				key, err := s.key.Decode(path.Join(cur, tail))
				if err != nil || key < start {
					continue // skip non-key files and keys prior to the start
				}
				if !yield(key, nil) {
					return
				}
			}
		}
	}
}

// Len implements part of [blob.KVCore]. It is implemented using List.
func (s KV) Len(ctx context.Context) (int64, error) {
	var nb int64
	for _, err := range s.List(ctx, "") {
		if err != nil {
			return 0, err
		}
		nb++
	}
	return nb, nil
}

// Dir reports the directory path associated with s.
func (s KV) Dir() string { return s.key.Prefix }

func listdir(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	names, err := f.Readdirnames(-1)
	f.Close()
	sort.Strings(names)
	return names, err
}
