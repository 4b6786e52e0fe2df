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

// Node is one element of a persistent [Log]: a pointer to the previous node
// (absent for the first node ever pushed) and the payload at this position.
type Node[T any] struct {
	Parent *CASReferenced[Node[T]] `cbor:"1,keyasint"`
	Data   T                       `cbor:"2,keyasint"`
}

// Log is a functional singly-linked list stored entirely in CAS. Push
// returns a new Log whose head is a fresh node; the receiver is left
// unchanged, since CAS nodes are immutable and a Log value is just a
// pointer to its head.
type Log[T any] struct {
	Head *CASReferenced[Node[T]]
}

// Push creates a new node wrapping x with its parent set to l's current
// head, stores it, and returns a new Log pointing at it. l itself is not
// modified.
func (l Log[T]) Push(ctx context.Context, j *journal.Journal, x T) (Log[T], error) {
	node := Node[T]{Parent: l.Head, Data: x}
	ref, err := Put(ctx, j, node)
	if err != nil {
		return Log[T]{}, err
	}
	return Log[T]{Head: &ref}, nil
}

// WalkBack streams nodes from head to root, invoking cb with each element's
// data in that order (most recent first). It stops early, returning nil, if
// cb returns false.
func (l Log[T]) WalkBack(ctx context.Context, j *journal.Journal, cb func(T) bool) error {
	cur := l.Head
	for cur != nil {
		node, err := cur.Get(ctx, j)
		if err != nil {
			return err
		}
		if !cb(node.Data) {
			return nil
		}
		cur = node.Parent
	}
	return nil
}

// ForwardList collects every element of l and returns them oldest first.
func (l Log[T]) ForwardList(ctx context.Context, j *journal.Journal) ([]T, error) {
	var reversed []T
	if err := l.WalkBack(ctx, j, func(x T) bool {
		reversed = append(reversed, x)
		return true
	}); err != nil {
		return nil, err
	}
	out := make([]T, len(reversed))
	for i, x := range reversed {
		out[len(reversed)-1-i] = x
	}
	return out, nil
}
