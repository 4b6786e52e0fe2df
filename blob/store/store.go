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

// Package store provides an interface to open [blob.StoreCloser] instances
// named by string addresses, for use by the journalctl launcher to select a
// backend (sqlite, file, or memory) without hard-wiring the choice.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/creachadair/wasmjournal/blob"
)

// Default is the default store registry, populated by the init functions of
// backend packages that wish to be selectable by address.
var Default = &Registry{}

// An Opener opens a [blob.StoreCloser] instance associated with the given
// address. The address passed to the Opener has its dispatch tag removed.
// An Opener must be safe for concurrent use by multiple goroutines.
type Opener func(ctx context.Context, addr string) (blob.StoreCloser, error)

// A Registry maintains a mapping from address tags to Opener values.  The
// methods of a Registry are safe for concurrent use by multiple goroutines.
type Registry struct {
	μ sync.RWMutex
	m map[string]Opener
}

// Register associates the specified address tag with the given Opener.  It
// is an error (ErrDuplicateTag) if tag is already registered. A tag may end
// with ":" but must not otherwise contain any ":" characters.
func (r *Registry) Register(tag string, o Opener) error {
	clean := strings.TrimSuffix(tag, ":")
	if clean == "" || strings.Contains(clean, ":") {
		return fmt.Errorf("register %q: %w", tag, ErrInvalidTag)
	} else if o == nil {
		return fmt.Errorf("register %q: opener is nil", tag)
	}

	r.μ.Lock()
	defer r.μ.Unlock()
	if r.m == nil {
		r.m = make(map[string]Opener)
	} else if _, ok := r.m[clean]; ok {
		return fmt.Errorf("register %q: %w", clean, ErrDuplicateTag)
	}
	r.m[clean] = o
	return nil
}

// Open opens a [blob.StoreCloser] for the specified address of the form
// "tag" or "tag:value". If the address does not have this form, or the tag
// does not correspond to any known implementation, Open reports
// ErrInvalidAddress.
func (r *Registry) Open(ctx context.Context, addr string) (blob.StoreCloser, error) {
	tag := addr
	var rest string
	if i := strings.Index(addr, ":"); i > 0 {
		tag, rest = addr[:i], addr[i+1:]
	}

	r.μ.RLock()
	open, ok := r.m[tag]
	r.μ.RUnlock()

	if !ok {
		return nil, fmt.Errorf("open %q: %w", addr, ErrInvalidAddress)
	}
	s, err := open(ctx, rest)
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", addr, err)
	}
	return s, nil
}

var (
	// ErrInvalidTag is reported by Register when given an invalid tag.
	ErrInvalidTag = errors.New("invalid tag")

	// ErrDuplicateTag is reported by Register when given a tag which was
	// already previously registered with a different value.
	ErrDuplicateTag = errors.New("duplicate tag")

	// ErrInvalidAddress is reported by Open when given an address that is
	// syntactically invalid or has no corresponding Opener.
	ErrInvalidAddress = errors.New("invalid address")
)
