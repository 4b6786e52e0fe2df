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

package wasmhost

import (
	"testing"

	"github.com/tetratelabs/wazero/api"
)

// TestScenarioCounterAcrossInvocations exercises the same read-increment-write
// sequence as the guestsdk notepad example, across two separate Bridge
// instances sharing one journal, the way two real guest invocations would.
func TestScenarioCounterAcrossInvocations(t *testing.T) {
	ctx, b, mod, _ := newTestFixture(t)
	mem := mod.Memory()

	// First invocation: no prior state, write [1].
	getStack := make([]uint64, 1)
	b.getState(ctx, mod, getStack)
	if got := api.DecodeU32(getStack[0]); got != 0 {
		t.Fatalf("first invocation get_state = %d, want 0 (no prior state)", got)
	}

	mem.Write(0, []byte{1})
	putStack := []uint64{api.EncodeU32(0), api.EncodeU32(1), api.EncodeU32(0), api.EncodeU32(0)}
	b.casPut(ctx, mod, putStack)
	firstKeyHandle := api.DecodeU32(putStack[0])
	b.updateState(ctx, mod, []uint64{api.EncodeU32(firstKeyHandle)})
	firstKey := b.keyHandle(firstKeyHandle)

	// Second invocation (fresh bridge over the same journal): read [1],
	// write [2], and the head must advance to the second write.
	b2 := newBridge(b.journal, b.app, b.log, b.out)

	getStack2 := make([]uint64, 1)
	b2.getState(ctx, mod, getStack2)
	priorHandle := api.DecodeU32(getStack2[0])
	if priorHandle == 0 {
		t.Fatal("second invocation get_state returned reserved handle 0")
	}
	if got := b2.keyHandle(priorHandle); got != firstKey {
		t.Errorf("second invocation observed key %v, want %v", got, firstKey)
	}

	dataHandleStack := []uint64{api.EncodeU32(priorHandle)}
	b2.casGet(ctx, mod, dataHandleStack)
	dataHandle := api.DecodeU32(dataHandleStack[0])

	readStack := []uint64{api.EncodeU32(dataHandle), api.EncodeU32(4096), api.EncodeU32(1), api.EncodeU32(0)}
	b2.read(ctx, mod, readStack)
	n := api.DecodeU32(readStack[0])
	got, ok := mem.Read(4096, n)
	if !ok || len(got) != 1 || got[0] != 1 {
		t.Fatalf("second invocation read back %v, want [1]", got)
	}

	mem.Write(8, []byte{2})
	putStack2 := []uint64{api.EncodeU32(8), api.EncodeU32(1), api.EncodeU32(0), api.EncodeU32(0)}
	b2.casPut(ctx, mod, putStack2)
	secondKeyHandle := api.DecodeU32(putStack2[0])
	b2.updateState(ctx, mod, []uint64{api.EncodeU32(secondKeyHandle)})

	// The journal's internal parent-chain linkage (that this new head's
	// parent is the first head) is exercised directly by
	// TestCommitSelfHeadMonotonicity in package journal; here we only
	// confirm the externally observable head value advanced to the
	// second write.
	finalKey, ok3, err := b2.journal.GetState(ctx, b2.app)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if !ok3 {
		t.Fatal("GetState reported no state after second commit")
	}
	if got, want := finalKey, b2.keyHandle(secondKeyHandle); got != want {
		t.Errorf("final head = %v, want %v", got, want)
	}
}

// TestScenarioTrapPreservesWrites verifies that CAS writes committed before a
// guest trap remain durable, and that update_state's effect on the
// in-progress head is visible through get_state even though the invocation
// as a whole never returns cleanly. Host-side storage effects are never
// unwound by a trap; only the wazero call frame unwinds.
func TestScenarioTrapPreservesWrites(t *testing.T) {
	ctx, b, mod, _ := newTestFixture(t)
	mem := mod.Memory()

	mem.Write(0, []byte("A"))
	putA := []uint64{api.EncodeU32(0), api.EncodeU32(1), api.EncodeU32(0), api.EncodeU32(0)}
	b.casPut(ctx, mod, putA)
	aHandle := api.DecodeU32(putA[0])
	aKey := b.keyHandle(aHandle)

	mem.Write(1, []byte("B"))
	putB := []uint64{api.EncodeU32(1), api.EncodeU32(1), api.EncodeU32(0), api.EncodeU32(0)}
	b.casPut(ctx, mod, putB)
	bHandle := api.DecodeU32(putB[0])
	bKey := b.keyHandle(bHandle)

	b.updateState(ctx, mod, []uint64{api.EncodeU32(aHandle)})

	func() {
		defer func() { recover() }() // simulate the guest trapping after these writes
		b.handleRelease(ctx, mod, []uint64{api.EncodeU32(999999)})
	}()

	getStack := make([]uint64, 1)
	b.getState(ctx, mod, getStack)
	gotHandle := api.DecodeU32(getStack[0])
	if got := b.keyHandle(gotHandle); got != aKey {
		t.Errorf("post-trap get_state = %v, want %v", got, aKey)
	}

	_, _, ok, err := b.journal.CASGet(ctx, aKey)
	if err != nil || !ok {
		t.Errorf("blob A missing after trap: ok=%v err=%v", ok, err)
	}
	_, _, ok, err = b.journal.CASGet(ctx, bKey)
	if err != nil || !ok {
		t.Errorf("blob B missing after trap: ok=%v err=%v", ok, err)
	}
}
