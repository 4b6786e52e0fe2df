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

// Package graph implements the typed CAS graph primitives that run on top
// of a [journal.Journal]: a phantom-typed reference to a CAS value, a
// persistent singly-linked log stored entirely in CAS, and a key-value
// store whose persisted form is a log of operations, replayed lazily into
// an in-memory map on first use.
//
// T, K, and V in this package's generic types are implicitly required to
// round-trip through the journal's canonical encoding (see [wire]); Go has
// no type-system way to express "is CBOR (de)serializable", so this is a
// documented contract rather than an enforced one.
package graph

import (
	"context"
	"fmt"

	"github.com/creachadair/wasmjournal/journal"
	"github.com/creachadair/wasmjournal/wire"
)

// CASReferenced is a phantom-typed wrapper around a [journal.CASKey]. It
// carries no data of its own; all it adds over a bare CASKey is the
// compile-time guarantee that Get will decode to T. Two CASReferenced[T]
// values with equal keys are equal.
type CASReferenced[T any] struct {
	Key journal.CASKey
}

// Put canonical-serializes value and stores it, returning a reference to it.
func Put[T any](ctx context.Context, j *journal.Journal, value T) (CASReferenced[T], error) {
	enc, err := wire.Marshal(value)
	if err != nil {
		return CASReferenced[T]{}, fmt.Errorf("encode referenced value: %w", err)
	}
	key, err := j.CASPut(ctx, enc, nil)
	if err != nil {
		return CASReferenced[T]{}, err
	}
	return CASReferenced[T]{Key: key}, nil
}

// Get reads and decodes the value r refers to.
func (r CASReferenced[T]) Get(ctx context.Context, j *journal.Journal) (T, error) {
	var zero T
	data, _, ok, err := j.CASGet(ctx, r.Key)
	if err != nil {
		return zero, err
	}
	if !ok {
		return zero, fmt.Errorf("graph: referenced blob %s not found", r.Key)
	}
	var value T
	if err := wire.Unmarshal(data, &value); err != nil {
		return zero, fmt.Errorf("decode referenced value: %w", err)
	}
	return value, nil
}
