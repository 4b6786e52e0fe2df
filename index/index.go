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

// Package index constructs a Bloom filter over the 32-byte CAS and journal
// keys reachable from a set of heads, for the mark phase of a future
// reachability scan (see the CASList comment in package journal). Unlike a
// map of the same keys, the filter's memory is fixed by the expected key
// count rather than growing with it.
package index

import (
	"math"
	"math/rand"

	"github.com/cespare/xxhash/v2"
)

// An Index holds a Bloom filter over a set of 32-byte keys.
type Index struct {
	numKeys int
	bits    bitVector
	nbits   uint64
	seeds   []uint64
	hash    func([32]byte) uint64
}

// New constructs an empty index with capacity for the specified number of
// keys. A nil opts value is ready for use and provides the defaults
// described on [Options]. New panics if numKeys <= 0.
func New(numKeys int, opts *Options) *Index {
	if numKeys <= 0 {
		panic("index: numKeys must be positive")
	}
	idx := &Index{hash: opts.hashFunc()}
	idx.init(numKeys, opts.falsePositiveRate())
	return idx
}

// Add marks key as reachable.
func (idx *Index) Add(key [32]byte) {
	hash := idx.hash(key)
	for _, seed := range idx.seeds {
		pos := int((hash ^ seed) % idx.nbits)
		idx.bits.Set(pos)
	}
	idx.numKeys++
}

// Has reports whether key was (probably) added to the index. False
// positives are possible; false negatives are not.
func (idx *Index) Has(key [32]byte) bool {
	hash := idx.hash(key)
	for _, seed := range idx.seeds {
		pos := int((hash ^ seed) % idx.nbits)
		if !idx.bits.IsSet(pos) {
			return false
		}
	}
	return true
}

// Stats returns size and capacity statistics for the index.
func (idx *Index) Stats() Stats {
	return Stats{
		NumKeys:    idx.numKeys,
		FilterBits: int(idx.nbits),
		NumHashes:  len(idx.seeds),
	}
}

func (idx *Index) init(n int, p float64) {
	// Optimal bit width m for n elements at false-positive rate p:
	// m = ceil(-n*ln(p) / ln(2)^2).
	m := math.Ceil(-float64(n) * math.Log(p) / (math.Ln2 * math.Ln2))

	// Optimal hash count k for an m-bit filter holding n elements:
	// k = ceil(m*ln(2) / n).
	k := math.Ceil((m * math.Ln2) / float64(n))

	idx.bits = newBitVector(int(m))
	idx.nbits = 64 * uint64(len(idx.bits))
	idx.seeds = make([]uint64, int(k))
	for i := range idx.seeds {
		idx.seeds[i] = rand.Uint64()
	}
}

// Options configures an [Index]. A nil *Options is ready for use.
type Options struct {
	// Hash computes a 64-bit digest of a key. If nil, uses xxhash.Sum64.
	Hash func(key [32]byte) uint64

	// FalsePositiveRate bounds the filter's false-positive rate. A value
	// <= 0 defaults to 0.03; decreasing it increases filter memory.
	FalsePositiveRate float64
}

func (o *Options) hashFunc() func([32]byte) uint64 {
	if o == nil || o.Hash == nil {
		return func(key [32]byte) uint64 { return xxhash.Sum64(key[:]) }
	}
	return o.Hash
}

func (o *Options) falsePositiveRate() float64 {
	if o == nil || o.FalsePositiveRate <= 0 {
		return 0.03
	}
	return o.FalsePositiveRate
}

// Stats record size and capacity statistics for an Index.
type Stats struct {
	NumKeys    int
	FilterBits int
	NumHashes  int
}

type bitVector []uint64

func newBitVector(size int) bitVector  { return make(bitVector, (size+63)/64) }
func (b bitVector) IsSet(pos int) bool { return b[(pos>>6)%len(b)]&(uint64(1)<<(pos&0x3f)) != 0 }
func (b bitVector) Set(pos int)        { b[(pos>>6)%len(b)] |= uint64(1) << (pos & 0x3f) }
