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
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/creachadair/wasmjournal/blob/memstore"
	"github.com/creachadair/wasmjournal/journal"
)

// buildNotepadGuest cross-compiles guestsdk/examples/notepad to a real
// wasip1/wasm binary, the way a build pipeline feeding journalctl would, so
// this test exercises the actual compile-instantiate-call path in
// [Host.RunInvocation] rather than calling Bridge methods directly as
// scenarios_test.go does. It skips, rather than fails, if the local
// toolchain cannot cross-compile for wasip1, since that capability is a
// property of the Go version installed, not of this module's code.
func buildNotepadGuest(t *testing.T) []byte {
	t.Helper()

	root, err := findModuleRoot()
	if err != nil {
		t.Skipf("locating module root: %v", err)
	}

	out := filepath.Join(t.TempDir(), "notepad.wasm")
	cmd := exec.Command("go", "build", "-o", out, "./guestsdk/examples/notepad")
	cmd.Dir = root
	cmd.Env = append(os.Environ(), "GOOS=wasip1", "GOARCH=wasm")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		t.Skipf("cross-compiling notepad guest for wasip1/wasm: %v\n%s", err, stderr.String())
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("reading compiled guest module: %v", err)
	}
	return data
}

func findModuleRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", os.ErrNotExist
		}
		dir = parent
	}
}

// TestRunInvocationNotepadGuestEndToEnd runs the real compiled notepad guest
// through Host.RunInvocation twice against one journal, covering the same
// ground as S1 (the counter increments across invocations) but through the
// actual wazero compile/instantiate/call path instead of direct Bridge
// calls, plus confirms the guest's "main" export is reachable the way
// host.go expects.
func TestRunInvocationNotepadGuestEndToEnd(t *testing.T) {
	moduleBytes := buildNotepadGuest(t)

	ctx := context.Background()
	j, err := journal.New(ctx, memstore.New())
	if err != nil {
		t.Fatalf("journal.New: %v", err)
	}
	app, err := journal.ParseApplicationId("00000000-0000-0000-0000-000000000001")
	if err != nil {
		t.Fatalf("ParseApplicationId: %v", err)
	}

	var out bytes.Buffer
	host := New(j, app, WithStdout(&out))

	if err := host.RunInvocation(ctx, moduleBytes); err != nil {
		t.Fatalf("first invocation: %v", err)
	}
	key1, ok, err := j.GetState(ctx, app)
	if err != nil || !ok {
		t.Fatalf("GetState after first invocation: ok=%v err=%v", ok, err)
	}
	data1, _, _, err := j.CASGet(ctx, key1)
	if err != nil {
		t.Fatalf("CASGet after first invocation: %v", err)
	}
	if len(data1) != 1 || data1[0] != 10 {
		t.Fatalf("state after first invocation = %v, want [10]", data1)
	}

	if err := host.RunInvocation(ctx, moduleBytes); err != nil {
		t.Fatalf("second invocation: %v", err)
	}
	key2, ok, err := j.GetState(ctx, app)
	if err != nil || !ok {
		t.Fatalf("GetState after second invocation: ok=%v err=%v", ok, err)
	}
	if key2 == key1 {
		t.Fatal("second invocation did not advance the head")
	}
	data2, _, _, err := j.CASGet(ctx, key2)
	if err != nil {
		t.Fatalf("CASGet after second invocation: %v", err)
	}
	if len(data2) != 1 || data2[0] != 11 {
		t.Fatalf("state after second invocation = %v, want [11]", data2)
	}

	if out.Len() == 0 {
		t.Error("expected guest output via guestsdk.Output across two invocations, got none")
	}
}

// TestRunInvocationMissingMainExport confirms RunInvocation reports a clear
// error, rather than a confusing trap, for a guest module that never calls
// guestsdk and so exports no "main" function of its own — a WASI command
// module's implicit "_start" doesn't satisfy the lookup in host.go.
func TestRunInvocationMissingMainExport(t *testing.T) {
	root, err := findModuleRoot()
	if err != nil {
		t.Skipf("locating module root: %v", err)
	}
	guestDir := filepath.Join(t.TempDir(), "noexport")
	if err := os.MkdirAll(guestDir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	src := "package main\n\nfunc main() {}\n"
	if err := os.WriteFile(filepath.Join(guestDir, "main.go"), []byte(src), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	out := filepath.Join(t.TempDir(), "noexport.wasm")
	cmd := exec.Command("go", "build", "-o", out, guestDir)
	cmd.Dir = root
	cmd.Env = append(os.Environ(), "GOOS=wasip1", "GOARCH=wasm")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		t.Skipf("cross-compiling no-export guest for wasip1/wasm: %v\n%s", err, stderr.String())
	}
	moduleBytes, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("reading compiled guest module: %v", err)
	}

	ctx := context.Background()
	j, err := journal.New(ctx, memstore.New())
	if err != nil {
		t.Fatalf("journal.New: %v", err)
	}
	app, err := journal.ParseApplicationId("00000000-0000-0000-0000-000000000002")
	if err != nil {
		t.Fatalf("ParseApplicationId: %v", err)
	}
	host := New(j, app)
	if err := host.RunInvocation(ctx, moduleBytes); err == nil {
		t.Fatal("expected an error for a guest module with no \"main\" export")
	}
}

// trapperGuestSource is a guest that commits state and then deliberately
// releases a handle it never obtained, tripping the host's handle-table
// trap. It exercises S6 (trap preserves prior writes) through the real
// compile/instantiate/call path, complementing
// TestScenarioTrapPreservesWrites's direct Bridge-level coverage of the
// same property.
const trapperGuestSource = `package main

import "github.com/creachadair/wasmjournal/guestsdk"

func main() {}

//go:wasmexport main
func run() {
	key := guestsdk.CASPut([]byte{42}, nil)
	guestsdk.UpdateState(key)
	guestsdk.DataHandle(999999).Release()
}
`

func TestRunInvocationTrapPreservesWritesEndToEnd(t *testing.T) {
	root, err := findModuleRoot()
	if err != nil {
		t.Skipf("locating module root: %v", err)
	}
	guestDir := filepath.Join(t.TempDir(), "trapper")
	if err := os.MkdirAll(guestDir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(guestDir, "main.go"), []byte(trapperGuestSource), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	out := filepath.Join(t.TempDir(), "trapper.wasm")
	cmd := exec.Command("go", "build", "-o", out, guestDir)
	cmd.Dir = root
	cmd.Env = append(os.Environ(), "GOOS=wasip1", "GOARCH=wasm")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		t.Skipf("cross-compiling trapper guest for wasip1/wasm: %v\n%s", err, stderr.String())
	}
	moduleBytes, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("reading compiled guest module: %v", err)
	}

	ctx := context.Background()
	j, err := journal.New(ctx, memstore.New())
	if err != nil {
		t.Fatalf("journal.New: %v", err)
	}
	app, err := journal.ParseApplicationId("00000000-0000-0000-0000-000000000003")
	if err != nil {
		t.Fatalf("ParseApplicationId: %v", err)
	}
	host := New(j, app)

	if err := host.RunInvocation(ctx, moduleBytes); err == nil {
		t.Fatal("expected RunInvocation to report the guest's trap")
	}

	key, ok, err := j.GetState(ctx, app)
	if err != nil || !ok {
		t.Fatalf("GetState after trap: ok=%v err=%v", ok, err)
	}
	data, _, _, err := j.CASGet(ctx, key)
	if err != nil {
		t.Fatalf("CASGet after trap: %v", err)
	}
	if len(data) != 1 || data[0] != 42 {
		t.Fatalf("state after trap = %v, want [42]; update_state's write should survive the later trap", data)
	}
}
