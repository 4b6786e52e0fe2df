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

package journal

import (
	"context"
	"fmt"

	"github.com/creachadair/wasmjournal/index"
)

// ReachableSet is the result of a mark-phase scan of the journal: a Bloom
// filter over every entry and CAS key reachable from the current heads,
// suitable for identifying unreferenced rows before a future compaction
// pass. This journal never deletes anything on its own; ReachableSet only
// identifies what a compactor would be free to drop.
type ReachableSet struct {
	idx *index.Index
}

// Has reports whether key is (probably) reachable from some head. False
// positives are possible; false negatives are not.
func (r *ReachableSet) Has(key CASKey) bool { return r.idx.Has([32]byte(key)) }

// HasEntry reports whether an entry key is (probably) reachable.
func (r *ReachableSet) HasEntry(key JournalKey) bool { return r.idx.Has([32]byte(key)) }

// Stats reports the size of the underlying filter, for diagnostics.
func (r *ReachableSet) Stats() index.Stats { return r.idx.Stats() }

// Scan walks every device's head across every application, follows every
// entry's parents (plural: a future merge entry may have more than one)
// back to the roots, and marks every entry and every CAS blob (including
// transitively linked ones) it finds along the way. numKeysHint sizes the
// Bloom filter; it need not be exact, but a filter sized far below the true
// key count inflates the false-positive rate.
//
// Mirrors the mark phase of the teacher's gc subcommand, adapted from
// scanning a file tree to walking the journal's own DAG of entries and CAS
// links.
func (j *Journal) Scan(ctx context.Context, numKeysHint int) (*ReachableSet, error) {
	if numKeysHint <= 0 {
		numKeysHint = 1024
	}
	idx := index.New(numKeysHint, nil)
	rs := &ReachableSet{idx: idx}

	heads, err := j.heads.Heads(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}

	seenEntries := make(map[JournalKey]bool)
	seenBlobs := make(map[CASKey]bool)

	// A worklist (used as a stack, so the walk is depth-first), not a single
	// cur pointer, because an entry
	// may carry more than one parent (reserved for future merge entries);
	// every parent must be walked, not just the first.
	work := make([]JournalKey, 0, len(heads))
	for _, head := range heads {
		work = append(work, head)
	}
	for len(work) > 0 {
		cur := work[len(work)-1]
		work = work[:len(work)-1]
		if seenEntries[cur] {
			continue
		}
		seenEntries[cur] = true
		idx.Add([32]byte(cur))

		entry, err := j.entries.Get(ctx, cur)
		if err != nil {
			return nil, fmt.Errorf("scan: entry %s: %w", cur, err)
		}
		if err := j.markBlob(ctx, entry.NewState, seenBlobs, idx); err != nil {
			return nil, err
		}
		work = append(work, entry.Parents...)
	}
	return rs, nil
}

// markBlob marks key and every blob transitively reachable from it through
// CAS links, skipping any already marked in this scan.
func (j *Journal) markBlob(ctx context.Context, key CASKey, seen map[CASKey]bool, idx *index.Index) error {
	if seen[key] {
		return nil
	}
	seen[key] = true
	idx.Add([32]byte(key))

	_, links, ok, err := j.cas.CASGet(ctx, key)
	if err != nil {
		return fmt.Errorf("scan: blob %s: %w", key, err)
	}
	if !ok {
		return integrityErrorf("scan: missing blob for reachable key "+key.String(), nil)
	}
	for _, link := range links {
		if err := j.markBlob(ctx, link, seen, idx); err != nil {
			return err
		}
	}
	return nil
}
