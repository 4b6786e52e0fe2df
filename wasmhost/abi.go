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
	"context"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/creachadair/wasmjournal/journal"
	"github.com/creachadair/wasmjournal/logctx"
)

// Bridge is C8, the host ABI bridge: the table of host functions bound into
// a guest module's "env" import namespace, backed by one [HandleManager]
// scoped to a single invocation. A Bridge is constructed fresh for each
// [Host.RunInvocation] call, so no handle ever survives an invocation
// boundary (§4.8's per-invocation state machine).
type Bridge struct {
	journal *journal.Journal
	app     journal.ApplicationId
	log     logctx.Logger
	out     io.Writer

	handles *HandleManager
}

func newBridge(j *journal.Journal, app journal.ApplicationId, log logctx.Logger, out io.Writer) *Bridge {
	return &Bridge{journal: j, app: app, log: log, out: out, handles: NewHandleManager()}
}

// Build registers b's host functions into a new host module named "env",
// the namespace the guest ABI requires, and instantiates it against rt.
func (b *Bridge) Build(ctx context.Context, rt wazero.Runtime) (api.Closer, error) {
	i32 := api.ValueTypeI32
	hm := rt.NewHostModuleBuilder("env")

	hm.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(b.updateState), []api.ValueType{i32}, nil).
		Export("update_state")
	hm.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(b.getState), nil, []api.ValueType{i32}).
		Export("get_state")
	hm.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(b.casGet), []api.ValueType{i32}, []api.ValueType{i32}).
		Export("cas_get")
	hm.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(b.casPut), []api.ValueType{i32, i32, i32, i32}, []api.ValueType{i32}).
		Export("cas_put")
	hm.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(b.output), []api.ValueType{i32, i32}, []api.ValueType{i32}).
		Export("output")
	hm.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(b.read), []api.ValueType{i32, i32, i32, i32}, []api.ValueType{i32}).
		Export("read")
	hm.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(b.casGetLinks), []api.ValueType{i32}, []api.ValueType{i32}).
		Export("cas_get_links")
	hm.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(b.handleRelease), []api.ValueType{i32}, nil).
		Export("handle_release")

	return hm.Instantiate(ctx)
}

// keyHandle resolves id to a CAS key, trapping if id is not live or does
// not name a [HandleKey].
func (b *Bridge) keyHandle(id uint32) journal.CASKey {
	h, ok := b.handles.Get(id)
	if !ok {
		trapf("invalid handle %d", id)
	}
	hk, ok := h.(HandleKey)
	if !ok {
		trapf("handle %d is not a key handle", id)
	}
	return hk.Key
}

// dataHandle resolves id to a byte buffer, trapping if id is not live or
// does not name a [HandleData].
func (b *Bridge) dataHandle(id uint32) []byte {
	h, ok := b.handles.Get(id)
	if !ok {
		trapf("invalid handle %d", id)
	}
	hd, ok := h.(HandleData)
	if !ok {
		trapf("handle %d is not a data handle", id)
	}
	return hd.Data
}

func mustRead(mem api.Memory, offset, length uint32) []byte {
	data, ok := mem.Read(offset, length)
	if !ok {
		trapf("memory access out of bounds: offset=%d len=%d", offset, length)
	}
	return data
}

func mustWrite(mem api.Memory, offset uint32, data []byte) {
	if len(data) == 0 {
		return
	}
	if !mem.Write(offset, data) {
		trapf("memory access out of bounds: offset=%d len=%d", offset, len(data))
	}
}

// updateState implements the update_state host function: (handle) -> ().
func (b *Bridge) updateState(ctx context.Context, mod api.Module, stack []uint64) {
	key := b.keyHandle(api.DecodeU32(stack[0]))
	if _, err := b.journal.CommitSelf(ctx, b.app, key); err != nil {
		panic(fmt.Errorf("update_state: %w", err))
	}
	b.log.Debug("update_state", logctx.Fields{"app": b.app.String(), "key": key.String()})
}

// getState implements the get_state host function: () -> handle.
func (b *Bridge) getState(ctx context.Context, mod api.Module, stack []uint64) {
	key, ok, err := b.journal.GetState(ctx, b.app)
	if err != nil {
		panic(fmt.Errorf("get_state: %w", err))
	}
	if !ok {
		stack[0] = api.EncodeU32(0)
		return
	}
	stack[0] = api.EncodeU32(b.handles.Insert(HandleKey{Key: key}))
}

// casGet implements the cas_get host function: (handle) -> handle.
func (b *Bridge) casGet(ctx context.Context, mod api.Module, stack []uint64) {
	key := b.keyHandle(api.DecodeU32(stack[0]))
	data, _, ok, err := b.journal.CASGet(ctx, key)
	if err != nil {
		panic(fmt.Errorf("cas_get: %w", err))
	}
	if !ok {
		panic(fmt.Errorf("cas_get: missing blob for known key %s", key))
	}
	stack[0] = api.EncodeU32(b.handles.Insert(HandleData{Data: data}))
}

// casPut implements the cas_put host function:
// (src_ptr, len, links_ptr, links_count) -> handle.
func (b *Bridge) casPut(ctx context.Context, mod api.Module, stack []uint64) {
	srcPtr := api.DecodeU32(stack[0])
	length := api.DecodeU32(stack[1])
	linksPtr := api.DecodeU32(stack[2])
	linksCount := api.DecodeU32(stack[3])

	mem := mod.Memory()
	data := append([]byte(nil), mustRead(mem, srcPtr, length)...)

	links := make([]journal.CASKey, linksCount)
	if linksCount > 0 {
		raw := mustRead(mem, linksPtr, 4*linksCount)
		for i := range links {
			handleID := binary.LittleEndian.Uint32(raw[4*i:])
			links[i] = b.keyHandle(handleID)
		}
	}

	key, err := b.journal.CASPut(ctx, data, links)
	if err != nil {
		panic(fmt.Errorf("cas_put: %w", err))
	}
	b.log.Debug("cas_put", logctx.Fields{"key": key.String(), "bytes": len(data), "links": len(links)})
	stack[0] = api.EncodeU32(b.handles.Insert(HandleKey{Key: key}))
}

// output implements the output host function: (src_ptr, len) -> u32.
func (b *Bridge) output(ctx context.Context, mod api.Module, stack []uint64) {
	srcPtr := api.DecodeU32(stack[0])
	length := api.DecodeU32(stack[1])
	data := mustRead(mod.Memory(), srcPtr, length)
	if _, err := b.out.Write(data); err != nil {
		panic(fmt.Errorf("output: %w", err))
	}
	stack[0] = api.EncodeU32(length)
}

// read implements the read host function:
// (handle, dest_ptr, len, offset) -> u32.
func (b *Bridge) read(ctx context.Context, mod api.Module, stack []uint64) {
	data := b.dataHandle(api.DecodeU32(stack[0]))
	destPtr := api.DecodeU32(stack[1])
	length := api.DecodeU32(stack[2])
	offset := api.DecodeU32(stack[3])

	var chunk []byte
	if uint64(offset) < uint64(len(data)) {
		end := min(uint64(offset)+uint64(length), uint64(len(data)))
		chunk = data[offset:end]
	}
	mustWrite(mod.Memory(), destPtr, chunk)
	stack[0] = api.EncodeU32(uint32(len(chunk)))
}

// casGetLinks implements the cas_get_links host function: (handle) -> handle.
func (b *Bridge) casGetLinks(ctx context.Context, mod api.Module, stack []uint64) {
	key := b.keyHandle(api.DecodeU32(stack[0]))
	_, links, ok, err := b.journal.CASGet(ctx, key)
	if err != nil {
		panic(fmt.Errorf("cas_get_links: %w", err))
	}
	if !ok {
		panic(fmt.Errorf("cas_get_links: missing blob for known key %s", key))
	}
	buf := make([]byte, 4*len(links))
	for i, link := range links {
		binary.LittleEndian.PutUint32(buf[4*i:], b.handles.Insert(HandleKey{Key: link}))
	}
	stack[0] = api.EncodeU32(b.handles.Insert(HandleData{Data: buf}))
}

// handleRelease implements the handle_release host function: (handle) -> ().
func (b *Bridge) handleRelease(ctx context.Context, mod api.Module, stack []uint64) {
	id := api.DecodeU32(stack[0])
	if !b.handles.Release(id) {
		trapf("release of unknown or already-released handle %d", id)
	}
}
