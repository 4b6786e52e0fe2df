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

// Package config defines the configuration settings for the journalctl
// command-line launcher, in the shape of the teacher's cmd/ffs/config
// package.
package config

import (
	"context"
	"fmt"
	"os"

	yaml "gopkg.in/yaml.v3"

	"github.com/creachadair/wasmjournal/blob"
	"github.com/creachadair/wasmjournal/blob/cachestore"
	"github.com/creachadair/wasmjournal/blob/store"

	_ "github.com/creachadair/wasmjournal/blob/filestore"
	_ "github.com/creachadair/wasmjournal/blob/memstore"
	_ "github.com/creachadair/wasmjournal/blob/sqlitekv"
)

// Settings represents the stored configuration settings for journalctl.
type Settings struct {
	// Context value governing the execution of the tool.
	Context context.Context `json:"-" yaml:"-"`

	// The address of the blob backend to open, e.g. "sqlite:/path/to.db",
	// "file:/path/to/dir", or "mem:" (required).
	StoreAddress string `json:"storeAddress" yaml:"store-address"`

	// The zap logging level name ("debug", "info", "warn", "error"). Empty
	// means no logging.
	LogLevel string `json:"logLevel" yaml:"log-level"`

	// Bytes of in-memory read-through cache to place in front of the opened
	// store's keyspaces. Zero (the default) disables caching; a cas
	// keyspace read far more often than written benefits most.
	CacheBytes int `json:"cacheBytes" yaml:"cache-bytes"`
}

// OpenStore opens the blob backend named by the configuration's store
// address, via the [store] registry, wrapping it in a [cachestore.Store] if
// CacheBytes is positive.
func (s *Settings) OpenStore(ctx context.Context) (blob.StoreCloser, error) {
	if s.StoreAddress == "" {
		return nil, fmt.Errorf("no store address configured")
	}
	base, err := store.Default.Open(ctx, s.StoreAddress)
	if err != nil {
		return nil, err
	}
	if s.CacheBytes <= 0 {
		return base, nil
	}
	cached := cachestore.New(base, s.CacheBytes)
	return cached, nil
}

// WithStore calls f with a store opened from the configuration. The store is
// closed after f returns. The error returned by f is returned by WithStore.
func (s *Settings) WithStore(ctx context.Context, f func(blob.StoreCloser) error) error {
	bs, err := s.OpenStore(ctx)
	if err != nil {
		return err
	}
	defer blob.CloseStore(ctx, bs)
	return f(bs)
}

// ExpandString calls os.ExpandEnv to expand environment variables in *s.
func ExpandString(s *string) { *s = os.ExpandEnv(*s) }

// Load reads and parses the contents of a config file from path. If the
// specified path does not exist, an empty config is returned without error.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return new(Settings), nil
	} else if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	cfg := new(Settings)
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}
