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
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"

	"github.com/creachadair/wasmjournal/journal"
	"github.com/creachadair/wasmjournal/logctx"
)

// Host runs one guest application's WASM module against a [journal.Journal],
// mediating all access through a fresh [Bridge] per invocation so no handle
// or host-side state leaks across invocation boundaries.
type Host struct {
	journal *journal.Journal
	app     journal.ApplicationId
	log     logctx.Logger
	stdout  io.Writer
}

// HostOption configures a [Host] constructed by [New].
type HostOption func(*Host)

// WithLogger sets the logger a Host uses for routine and error events. The
// default is [logctx.NopLogger].
func WithLogger(log logctx.Logger) HostOption {
	return func(h *Host) { h.log = log }
}

// WithStdout sets the writer the guest's output host function writes to.
// The default is [os.Stdout].
func WithStdout(w io.Writer) HostOption {
	return func(h *Host) { h.stdout = w }
}

// New returns a Host that runs invocations of app against j.
func New(j *journal.Journal, app journal.ApplicationId, opts ...HostOption) *Host {
	h := &Host{journal: j, app: app, log: logctx.NopLogger{}, stdout: os.Stdout}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RunInvocation compiles moduleBytes, instantiates it against a fresh
// [Bridge], and calls its exported "main" function. Each call gets its own
// [wazero.Runtime] and handle table, per §4.8's per-invocation state
// machine: no CAS handle or data handle a guest obtained in one invocation
// is valid in the next.
func (h *Host) RunInvocation(ctx context.Context, moduleBytes []byte) (err error) {
	rt := wazero.NewRuntime(ctx)
	defer func() {
		if cerr := rt.Close(ctx); err == nil {
			err = cerr
		}
	}()

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		return fmt.Errorf("instantiate wasi: %w", err)
	}

	bridge := newBridge(h.journal, h.app, h.log, h.stdout)
	envMod, err := bridge.Build(ctx, rt)
	if err != nil {
		return fmt.Errorf("build host module: %w", err)
	}
	defer envMod.Close(ctx)

	compiled, err := rt.CompileModule(ctx, moduleBytes)
	if err != nil {
		return fmt.Errorf("compile guest module: %w", err)
	}
	defer compiled.Close(ctx)

	// WithStartFunctions() with no arguments overrides wazero's default of
	// calling "_start" during instantiation. A go:wasmexport function
	// bootstraps the Go runtime itself on first call, so nothing is lost by
	// skipping it; what would be lost by NOT skipping it is the instance,
	// since a WASI command's "_start" exits the module the moment
	// main.main() returns, which would make the later lookup below race a
	// module that already reported it exited.
	cfg := wazero.NewModuleConfig().WithStartFunctions().WithStdout(h.stdout).WithStderr(os.Stderr)
	guest, err := rt.InstantiateModule(ctx, compiled, cfg)
	if err != nil {
		return h.classifyTrap(err)
	}
	defer guest.Close(ctx)

	main := guest.ExportedFunction("main")
	if main == nil {
		return errors.New("guest module does not export \"main\"")
	}
	if _, err := main.Call(ctx); err != nil {
		return h.classifyTrap(err)
	}
	h.log.Debug("invocation complete", logctx.Fields{"app": h.app.String(), "handles_live": bridge.handles.Len()})
	return nil
}

// classifyTrap wraps a wazero invocation error, surfacing a *TrapError
// distinctly from an unexpected guest exit so callers (and their exit
// codes, per §6) can tell a deliberate sandbox boundary violation apart
// from any other guest failure.
func (h *Host) classifyTrap(err error) error {
	var trap *TrapError
	if errors.As(err, &trap) {
		return fmt.Errorf("guest invocation trapped: %w", trap)
	}
	var exitErr *sys.ExitError
	if errors.As(err, &exitErr) {
		return fmt.Errorf("guest exited: %w", exitErr)
	}
	return fmt.Errorf("guest invocation failed: %w", err)
}
