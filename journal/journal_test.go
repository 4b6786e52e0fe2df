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
	"testing"

	"github.com/creachadair/wasmjournal/blob/memstore"
	"github.com/google/uuid"
)

func newTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := New(context.Background(), memstore.New())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return j
}

func TestCommitSelfHeadMonotonicity(t *testing.T) {
	ctx := context.Background()
	j := newTestJournal(t)
	app := ApplicationId(uuid.New())

	s1 := CASKey{1}
	e1, err := j.CommitSelf(ctx, app, s1)
	if err != nil {
		t.Fatalf("CommitSelf: %v", err)
	}
	got, ok, err := j.GetState(ctx, app)
	if err != nil || !ok {
		t.Fatalf("GetState: %v, ok=%v", err, ok)
	}
	if got != s1 {
		t.Errorf("GetState = %v, want %v", got, s1)
	}

	s2 := CASKey{2}
	e2, err := j.CommitSelf(ctx, app, s2)
	if err != nil {
		t.Fatalf("CommitSelf (2): %v", err)
	}
	got, ok, err = j.GetState(ctx, app)
	if err != nil || !ok {
		t.Fatalf("GetState (2): %v, ok=%v", err, ok)
	}
	if got != s2 {
		t.Errorf("GetState (2) = %v, want %v", got, s2)
	}

	entry2, err := j.entries.Get(ctx, e2)
	if err != nil {
		t.Fatalf("Get entry2: %v", err)
	}
	if len(entry2.Parents) != 1 || entry2.Parents[0] != e1 {
		t.Errorf("entry2.Parents = %v, want [%v]", entry2.Parents, e1)
	}
}

func TestGetStateAbsent(t *testing.T) {
	ctx := context.Background()
	j := newTestJournal(t)
	app := ApplicationId(uuid.New())

	_, ok, err := j.GetState(ctx, app)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if ok {
		t.Error("GetState: expected no head for unseen application")
	}

	hs, err := j.heads.Heads(ctx)
	if err != nil {
		t.Fatalf("Heads: %v", err)
	}
	if len(hs) != 0 {
		t.Errorf("Heads after absent lookup: got %d rows, want 0", len(hs))
	}
}

func TestUpdateStateGetStateTypedRoundTrip(t *testing.T) {
	ctx := context.Background()
	j := newTestJournal(t)
	app := ApplicationId(uuid.New())

	type counter struct {
		N int `cbor:"1,keyasint"`
	}

	if _, _, err := UpdateState(ctx, j, app, counter{N: 1}); err != nil {
		t.Fatalf("UpdateState: %v", err)
	}
	got, _, ok, err := GetStateTyped[counter](ctx, j, app)
	if err != nil {
		t.Fatalf("GetStateTyped: %v", err)
	}
	if !ok || got.N != 1 {
		t.Errorf("GetStateTyped = %+v, ok=%v, want N=1", got, ok)
	}

	if _, _, err := UpdateState(ctx, j, app, counter{N: 2}); err != nil {
		t.Fatalf("UpdateState (2): %v", err)
	}
	got, _, ok, err = GetStateTyped[counter](ctx, j, app)
	if err != nil {
		t.Fatalf("GetStateTyped (2): %v", err)
	}
	if !ok || got.N != 2 {
		t.Errorf("GetStateTyped (2) = %+v, ok=%v, want N=2", got, ok)
	}
}

func TestKeypairPersistsAcrossOpen(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()

	j1, err := New(ctx, store)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	j2, err := New(ctx, store)
	if err != nil {
		t.Fatalf("New (reopen): %v", err)
	}
	if j1.Pubkey() != j2.Pubkey() {
		t.Error("keypair was regenerated on reopen")
	}
}
