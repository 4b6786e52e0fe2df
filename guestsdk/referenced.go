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

import "github.com/creachadair/wasmjournal/wire"

// CASReferenced is the guest-side counterpart of [graph.CASReferenced]: a
// phantom-typed wrapper around a [KeyHandle]. Unlike the host-side version,
// put and get cross the ABI boundary rather than talking to a
// [journal.Journal] directly.
type CASReferenced[T any] struct {
	Key KeyHandle
}

// PutReferenced canonical-serializes value and stores it, returning a
// reference to it.
func PutReferenced[T any](value T) (CASReferenced[T], error) {
	enc, err := wire.Marshal(value)
	if err != nil {
		return CASReferenced[T]{}, err
	}
	return CASReferenced[T]{Key: CASPut(enc, nil)}, nil
}

// Get reads and decodes the value r refers to.
func (r CASReferenced[T]) Get() (T, error) {
	var zero T
	dh := CASGet(r.Key)
	defer dh.Release()
	data := ReadAll(dh)
	var value T
	if err := wire.Unmarshal(data, &value); err != nil {
		return zero, err
	}
	return value, nil
}
