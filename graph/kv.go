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

package graph

import (
	"context"

	"github.com/creachadair/wasmjournal/journal"
)

type opKind uint8

const (
	opInsert opKind = 1
	opRemove opKind = 2
	opClear  opKind = 3
)

type kvOp[K comparable, V any] struct {
	Kind  opKind `cbor:"1,keyasint"`
	Key   K      `cbor:"2,keyasint"`
	Value V      `cbor:"3,keyasint"`
}

// KeyValueStore is persistent state represented as a [Log] of insert,
// remove, and clear operations. Only the log's head is persisted (via
// ordinary struct encoding, since inner and wasInit are unexported); the
// in-memory map is transparently rebuilt by replaying the log the first
// time the store is read or written after construction or deserialization.
type KeyValueStore[K comparable, V any] struct {
	Log Log[kvOp[K, V]]

	inner   map[K]V
	wasInit bool
}

// NewKeyValueStore returns an empty store with no persisted history.
func NewKeyValueStore[K comparable, V any]() *KeyValueStore[K, V] {
	return &KeyValueStore[K, V]{}
}

// init rebuilds s.inner from s.Log if it has not already been done. The
// uninitialized flag is purely an implementation detail: callers never
// observe a difference between a freshly constructed store and one that has
// already replayed its log.
func (s *KeyValueStore[K, V]) init(ctx context.Context, j *journal.Journal) error {
	if s.wasInit {
		return nil
	}
	ops, err := s.Log.ForwardList(ctx, j)
	if err != nil {
		return err
	}
	m := make(map[K]V, len(ops))
	for _, op := range ops {
		switch op.Kind {
		case opInsert:
			m[op.Key] = op.Value
		case opRemove:
			delete(m, op.Key)
		case opClear:
			m = make(map[K]V)
		}
	}
	s.inner = m
	s.wasInit = true
	return nil
}

// Get returns the value stored under k, if any.
func (s *KeyValueStore[K, V]) Get(ctx context.Context, j *journal.Journal, k K) (V, bool, error) {
	var zero V
	if err := s.init(ctx, j); err != nil {
		return zero, false, err
	}
	v, ok := s.inner[k]
	return v, ok, nil
}

// Insert appends an insert operation to the log and updates the in-memory
// map, advancing the receiver's log head in place (the log is persistent, so
// this does not mutate any previously observed log head; it does mutate the
// replayed map cache held by the receiver, mirroring the original's internal
// "replay once, mutate thereafter" contract).
func (s *KeyValueStore[K, V]) Insert(ctx context.Context, j *journal.Journal, k K, v V) error {
	if err := s.init(ctx, j); err != nil {
		return err
	}
	newLog, err := s.Log.Push(ctx, j, kvOp[K, V]{Kind: opInsert, Key: k, Value: v})
	if err != nil {
		return err
	}
	s.Log = newLog
	s.inner[k] = v
	return nil
}

// Remove appends a remove operation to the log and updates the in-memory map.
func (s *KeyValueStore[K, V]) Remove(ctx context.Context, j *journal.Journal, k K) error {
	if err := s.init(ctx, j); err != nil {
		return err
	}
	newLog, err := s.Log.Push(ctx, j, kvOp[K, V]{Kind: opRemove, Key: k})
	if err != nil {
		return err
	}
	s.Log = newLog
	delete(s.inner, k)
	return nil
}

// Clear appends a clear operation to the log and empties the in-memory map.
func (s *KeyValueStore[K, V]) Clear(ctx context.Context, j *journal.Journal) error {
	if err := s.init(ctx, j); err != nil {
		return err
	}
	newLog, err := s.Log.Push(ctx, j, kvOp[K, V]{Kind: opClear})
	if err != nil {
		return err
	}
	s.Log = newLog
	s.inner = make(map[K]V)
	return nil
}

// Len reports the number of live entries in the store.
func (s *KeyValueStore[K, V]) Len(ctx context.Context, j *journal.Journal) (int, error) {
	if err := s.init(ctx, j); err != nil {
		return 0, err
	}
	return len(s.inner), nil
}
