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
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"github.com/creachadair/wasmjournal/blob"
	"github.com/creachadair/wasmjournal/logctx"
	"github.com/creachadair/wasmjournal/wire"
)

const (
	settingsKeyspace = "settings"
	casKeyspace      = "cas"
	entriesKeyspace  = "entries"
	headsKeyspace    = "heads"

	settingPublicKey  = "PublicKey"
	settingPrivateKey = "PrivateKey"
)

// Journal is C5, the façade composing the CAS (C2), signed entry store
// (C3), and heads table (C4) into the commit_self/get_state protocol that
// the host ABI and higher-level typed helpers run against.
//
// A Journal is safe for concurrent use by multiple goroutines to the extent
// its underlying [blob.Store] is, but the system as a whole assumes one
// guest invocation runs at a time (see the concurrency model in the
// package's governing design).
type Journal struct {
	settings blob.KV
	cas      cas
	entries  entries
	heads    heads
	log      logctx.Logger

	pub  DevicePublicKey
	priv ed25519.PrivateKey
}

// Option configures a [Journal] constructed by [New].
type Option func(*options)

type options struct {
	log logctx.Logger
}

// WithLogger sets the logger a Journal uses for routine and error events.
// The default is [logctx.NopLogger].
func WithLogger(log logctx.Logger) Option {
	return func(o *options) { o.log = log }
}

// New opens a Journal over the four named keyspaces of store, generating
// and persisting a fresh ed25519 keypair into the settings keyspace on
// first use if none is present.
func New(ctx context.Context, store blob.Store, opts ...Option) (*Journal, error) {
	o := options{log: logctx.NopLogger{}}
	for _, opt := range opts {
		opt(&o)
	}

	settingsKV, err := store.KV(ctx, settingsKeyspace)
	if err != nil {
		return nil, fmt.Errorf("open settings keyspace: %w", err)
	}
	casKV, err := store.KV(ctx, casKeyspace)
	if err != nil {
		return nil, fmt.Errorf("open cas keyspace: %w", err)
	}
	entriesKV, err := store.KV(ctx, entriesKeyspace)
	if err != nil {
		return nil, fmt.Errorf("open entries keyspace: %w", err)
	}
	headsKV, err := store.KV(ctx, headsKeyspace)
	if err != nil {
		return nil, fmt.Errorf("open heads keyspace: %w", err)
	}

	j := &Journal{
		settings: settingsKV,
		cas:      cas{kv: casKV},
		entries:  entries{kv: entriesKV},
		heads:    heads{kv: headsKV},
		log:      o.log,
	}
	if err := j.loadOrCreateKeypair(ctx); err != nil {
		return nil, err
	}
	return j, nil
}

func (j *Journal) loadOrCreateKeypair(ctx context.Context) error {
	pubBytes, err := j.settings.Get(ctx, settingPublicKey)
	if blob.IsKeyNotFound(err) {
		return j.generateKeypair(ctx)
	} else if err != nil {
		return fmt.Errorf("load public key: %w", err)
	}
	privBytes, err := j.settings.Get(ctx, settingPrivateKey)
	if err != nil {
		return fmt.Errorf("load private key: %w", err)
	}
	if len(pubBytes) != ed25519.PublicKeySize || len(privBytes) != ed25519.PrivateKeySize {
		return integrityErrorf("malformed keypair in settings", nil)
	}
	copy(j.pub[:], pubBytes)
	j.priv = ed25519.PrivateKey(privBytes)
	return nil
}

func (j *Journal) generateKeypair(ctx context.Context) error {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("generate keypair: %w", err)
	}
	if err := j.settings.Put(ctx, blob.PutOptions{Key: settingPublicKey, Data: pub}); err != nil {
		return fmt.Errorf("store public key: %w", err)
	}
	if err := j.settings.Put(ctx, blob.PutOptions{Key: settingPrivateKey, Data: priv}); err != nil {
		return fmt.Errorf("store private key: %w", err)
	}
	copy(j.pub[:], pub)
	j.priv = priv
	j.log.Info("generated device keypair", logctx.Fields{"device": j.pub.String()})
	return nil
}

// Pubkey returns this device's public key.
func (j *Journal) Pubkey() DevicePublicKey { return j.pub }

// Privkey returns this device's private key. Exposed for callers (such as
// the ABI bridge) that need to sign on the journal's behalf; it is never
// written anywhere but the settings keyspace.
func (j *Journal) Privkey() ed25519.PrivateKey { return j.priv }

// CommitSelf reads this device's current head for app (if any), builds a
// new entry with that head as its sole parent (or no parents if this is the
// first commit), signs it with this device's key, writes it, and advances
// the head. It returns the key of the newly written entry.
func (j *Journal) CommitSelf(ctx context.Context, app ApplicationId, newState CASKey) (JournalKey, error) {
	var parents []JournalKey
	if head, ok, err := j.heads.ThisHead(ctx, app, j.pub); err != nil {
		return JournalKey{}, err
	} else if ok {
		parents = []JournalKey{head}
	}

	entry := JournalEntry{ApplicationId: app, NewState: newState, Parents: parents}
	key, err := j.entries.Put(ctx, entry, j.priv, j.pub)
	if err != nil {
		return JournalKey{}, err
	}
	if err := j.heads.UpdateHead(ctx, j.pub, app, key); err != nil {
		return JournalKey{}, err
	}
	j.log.Debug("committed", logctx.Fields{"app": app.String(), "entry": key.String()})
	return key, nil
}

// GetState returns the CAS root of app's current state on this device, or
// false if this device has never committed for app.
func (j *Journal) GetState(ctx context.Context, app ApplicationId) (CASKey, bool, error) {
	head, ok, err := j.heads.ThisHead(ctx, app, j.pub)
	if err != nil || !ok {
		return CASKey{}, false, err
	}
	entry, err := j.entries.Get(ctx, head)
	if err != nil {
		return CASKey{}, false, err
	}
	return entry.NewState, true, nil
}

// CASPut stores data and its outbound links, returning the assigned key.
func (j *Journal) CASPut(ctx context.Context, data []byte, links []CASKey) (CASKey, error) {
	return j.cas.CASPut(ctx, data, links)
}

// CASGet reads the blob stored under key.
func (j *Journal) CASGet(ctx context.Context, key CASKey) ([]byte, []CASKey, bool, error) {
	return j.cas.CASGet(ctx, key)
}

// UpdateState canonical-serializes value, stores it as a CAS blob with no
// links, and commits it as app's new state, returning both the CAS key and
// the journal entry that now points to it.
func UpdateState[T any](ctx context.Context, j *Journal, app ApplicationId, value T) (CASKey, JournalKey, error) {
	enc, err := wire.Marshal(value)
	if err != nil {
		return CASKey{}, JournalKey{}, fmt.Errorf("encode state: %w", err)
	}
	key, err := j.CASPut(ctx, enc, nil)
	if err != nil {
		return CASKey{}, JournalKey{}, err
	}
	entryKey, err := j.CommitSelf(ctx, app, key)
	if err != nil {
		return CASKey{}, JournalKey{}, err
	}
	return key, entryKey, nil
}

// GetStateTyped returns app's current state decoded as T, along with the
// journal entry that produced it, or false if no state has been committed.
func GetStateTyped[T any](ctx context.Context, j *Journal, app ApplicationId) (T, JournalEntry, bool, error) {
	var zero T
	head, ok, err := j.heads.ThisHead(ctx, app, j.pub)
	if err != nil || !ok {
		return zero, JournalEntry{}, false, err
	}
	entry, err := j.entries.Get(ctx, head)
	if err != nil {
		return zero, JournalEntry{}, false, err
	}
	data, _, ok, err := j.cas.CASGet(ctx, entry.NewState)
	if err != nil {
		return zero, JournalEntry{}, false, err
	}
	if !ok {
		return zero, JournalEntry{}, false, integrityErrorf("missing cas blob for committed state "+entry.NewState.String(), nil)
	}
	var value T
	if err := wire.Unmarshal(data, &value); err != nil {
		return zero, JournalEntry{}, false, integrityErrorf("decode state", err)
	}
	return value, entry, true, nil
}
