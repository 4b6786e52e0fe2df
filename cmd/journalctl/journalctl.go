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

// Command journalctl is the launcher described in §6 of the governing
// design: it opens a journal database, loads a guest WASM module, runs its
// main entry point once, and exits 0 on success or non-zero on any host or
// guest failure.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/creachadair/command"
	"github.com/creachadair/taskgroup"
	"go.uber.org/zap"

	"github.com/creachadair/wasmjournal/cmd/journalctl/config"
	"github.com/creachadair/wasmjournal/journal"
	"github.com/creachadair/wasmjournal/logctx"
	logctxzap "github.com/creachadair/wasmjournal/logctx/zap"
	"github.com/creachadair/wasmjournal/wasmhost"
)

var (
	configPath = "$HOME/.config/casjournal/config.yml"
	storeAddr  string
)

func main() {
	root := &command.C{
		Name:  filepath.Base(os.Args[0]),
		Usage: "<module-path> [<app-uuid>]",
		Help: `Run a sandboxed guest WASM application against a signed, content-addressed journal.

The app-uuid argument identifies the application whose state the guest
reads and writes; if omitted, a fixed all-zero id is used, which is
convenient for local experimentation with a single application.`,

		SetFlags: func(env *command.Env, fs *flag.FlagSet) {
			if cf, ok := os.LookupEnv("CASJOURNAL_CONFIG"); ok && cf != "" {
				configPath = cf
			}
			fs.StringVar(&configPath, "config", configPath, "Configuration file path")
			fs.StringVar(&storeAddr, "store", storeAddr, "Store backend address (overrides config), e.g. sqlite:/path/to.db")
		},

		Init: func(env *command.Env) error {
			cfg, err := config.Load(os.ExpandEnv(configPath))
			if err != nil {
				return err
			}
			if storeAddr != "" {
				cfg.StoreAddress = storeAddr
			}
			cfg.Context = context.Background()
			config.ExpandString(&cfg.StoreAddress)
			env.Config = cfg
			return nil
		},

		Run: runInvocation,

		Commands: []*command.C{
			command.HelpCommand(nil),
		},
	}
	command.RunOrFail(root.NewEnv(nil), os.Args[1:])
}

// runInvocation implements the bulk of the CLI surface described in §6:
// open the store, load the module, run it once, report the outcome.
func runInvocation(env *command.Env, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("usage: %s <module-path> [<app-uuid>]", env.Command.Name)
	}
	modulePath := args[0]
	cfg := env.Config.(*config.Settings)
	ctx := cfg.Context

	app := journal.ApplicationId{}
	if len(args) == 2 {
		id, err := journal.ParseApplicationId(args[1])
		if err != nil {
			return fmt.Errorf("invalid app-uuid: %w", err)
		}
		app = id
	}

	log, sync := newLogger(cfg.LogLevel)
	defer sync()

	var moduleBytes []byte
	var j *journal.Journal

	g, run := taskgroup.New(nil).Limit(2)
	run(func() error {
		data, err := os.ReadFile(modulePath)
		if err != nil {
			return fmt.Errorf("reading guest module: %w", err)
		}
		moduleBytes = data
		return nil
	})
	run(func() error {
		store, err := cfg.OpenStore(ctx)
		if err != nil {
			return fmt.Errorf("opening store: %w", err)
		}
		jn, err := journal.New(ctx, store, journal.WithLogger(log))
		if err != nil {
			return fmt.Errorf("opening journal: %w", err)
		}
		j = jn
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	host := wasmhost.New(j, app, wasmhost.WithLogger(log), wasmhost.WithStdout(os.Stdout))
	if err := host.RunInvocation(ctx, moduleBytes); err != nil {
		return fmt.Errorf("invocation failed: %w", err)
	}
	return nil
}

// newLogger builds a [logctx.Logger] from a zap level name, or a no-op
// logger if level is empty or unrecognized.
func newLogger(level string) (logctx.Logger, func() error) {
	if level == "" {
		return logctx.NopLogger{}, func() error { return nil }
	}
	var lvl zap.AtomicLevel
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return logctx.NopLogger{}, func() error { return nil }
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = lvl
	zl, err := cfg.Build()
	if err != nil {
		return logctx.NopLogger{}, func() error { return nil }
	}
	return logctxzap.Logger{L: zl}, zl.Sync
}
