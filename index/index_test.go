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

package index

import (
	"fmt"
	"testing"
)

func key(i int) [32]byte {
	var k [32]byte
	k[0] = byte(i)
	k[1] = byte(i >> 8)
	k[2] = byte(i >> 16)
	return k
}

func TestAddHasNeverFalseNegative(t *testing.T) {
	const n = 500
	idx := New(n, nil)
	for i := 0; i < n; i++ {
		idx.Add(key(i))
	}
	for i := 0; i < n; i++ {
		if !idx.Has(key(i)) {
			t.Errorf("Has(key(%d)) = false, want true (false negative)", i)
		}
	}
}

func TestHasMissingKey(t *testing.T) {
	idx := New(10, nil)
	idx.Add(key(1))
	idx.Add(key(2))
	if idx.Has(key(99)) {
		// A false positive here is possible in principle but vanishingly
		// unlikely for this tiny filter and key set; treat it as a bug.
		t.Error("Has(key(99)) = true for a key never added")
	}
}

func TestFalsePositiveRateBounded(t *testing.T) {
	const n = 2000
	idx := New(n, &Options{FalsePositiveRate: 0.01})
	for i := 0; i < n; i++ {
		idx.Add(key(i))
	}

	falsePositives := 0
	const trials = 5000
	for i := n; i < n+trials; i++ {
		if idx.Has(key(i)) {
			falsePositives++
		}
	}
	rate := float64(falsePositives) / float64(trials)
	// Allow generous headroom over the configured 1% target; this is a
	// statistical check, not an exact bound.
	if rate > 0.05 {
		t.Errorf("observed false-positive rate %.4f, want <= 0.05", rate)
	}
}

func TestStats(t *testing.T) {
	idx := New(100, nil)
	for i := 0; i < 10; i++ {
		idx.Add(key(i))
	}
	st := idx.Stats()
	if st.NumKeys != 10 {
		t.Errorf("Stats().NumKeys = %d, want 10", st.NumKeys)
	}
	if st.FilterBits <= 0 {
		t.Errorf("Stats().FilterBits = %d, want > 0", st.FilterBits)
	}
	if st.NumHashes <= 0 {
		t.Errorf("Stats().NumHashes = %d, want > 0", st.NumHashes)
	}
}

func TestCustomHashFunc(t *testing.T) {
	calls := 0
	idx := New(10, &Options{Hash: func(k [32]byte) uint64 {
		calls++
		return uint64(k[0])
	}})
	idx.Add(key(5))
	if calls == 0 {
		t.Error("custom hash function was never called")
	}
	if !idx.Has(key(5)) {
		t.Error("Has(key(5)) = false with custom hash func, want true")
	}
}

func TestDefaultOptionsNilSafe(t *testing.T) {
	var o *Options
	if o.falsePositiveRate() != 0.03 {
		t.Errorf("nil Options.falsePositiveRate() = %v, want 0.03", o.falsePositiveRate())
	}
	if o.hashFunc() == nil {
		t.Error("nil Options.hashFunc() returned nil")
	}
}

func TestKeyHelperYieldsDistinctKeys(t *testing.T) {
	idx := New(50, nil)
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		idx.Add(key(i))
		seen[fmt.Sprintf("%v", key(i))] = true
	}
	if len(seen) != 50 {
		t.Fatalf("test setup produced %d distinct keys, want 50", len(seen))
	}
}
