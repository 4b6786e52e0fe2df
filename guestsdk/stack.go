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

//go:build wasm

package guestsdk

// stackNode is one persistent node of a [Stack]: the data at this position
// plus a reference to the node pushed before it, mirroring
// [graph.Node] on the host side of the ABI boundary.
type stackNode[T any] struct {
	Parent *CASReferenced[stackNode[T]] `cbor:"1,keyasint"`
	Data   T                            `cbor:"2,keyasint"`
}

// Stack is a persistent singly-linked list built entirely out of CAS
// handles, the guest-side analogue of the original's wasmlib Stack<T> and
// of [graph.Log] on the host side. Pushing returns a new Stack; the
// receiver is unchanged.
type Stack[T any] struct {
	head *CASReferenced[stackNode[T]]
}

// Push stores x as a new top-of-stack node parented on s's current head and
// returns the resulting Stack.
func (s Stack[T]) Push(x T) (Stack[T], error) {
	ref, err := PutReferenced(stackNode[T]{Parent: s.head, Data: x})
	if err != nil {
		return Stack[T]{}, err
	}
	return Stack[T]{head: &ref}, nil
}

// WalkBackwards visits every element from most to least recently pushed,
// invoking cb with each one. It stops early, without error, if cb returns
// false.
func (s Stack[T]) WalkBackwards(cb func(T) bool) error {
	cur := s.head
	for cur != nil {
		node, err := cur.Get()
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
