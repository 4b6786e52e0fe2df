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

// Package journal implements a personal, signed, content-addressed
// append-only journal: a blob store (C1, via [blob.Store]), a
// content-addressed store (C2), a signed entry store (C3), a per-device
// heads table (C4), and the [Journal] façade (C5) that composes them into
// the commit_self/get_state protocol guest applications run against.
package journal

import (
	"crypto/ed25519"
	"fmt"

	"github.com/google/uuid"
)

// CASKey is the 256-bit content address of a CAS blob. Two blobs that
// serialize to the same bytes share a key.
type CASKey [32]byte

// String renders k as hex, for logging and debugging only; it is never used
// as the storage key (the storage key is the raw bytes).
func (k CASKey) String() string { return fmt.Sprintf("%x", k[:]) }

// IsZero reports whether k is the zero key, used as a sentinel for "no
// value" in contexts where a pointer or boolean would otherwise be needed.
func (k CASKey) IsZero() bool { return k == CASKey{} }

// JournalKey is the 256-bit digest of a serialized signed journal entry.
type JournalKey [32]byte

func (k JournalKey) String() string { return fmt.Sprintf("%x", k[:]) }

func (k JournalKey) IsZero() bool { return k == JournalKey{} }

// ApplicationId is a 128-bit identifier chosen by an application author,
// stable across installations of that application.
type ApplicationId uuid.UUID

// String renders the identifier in canonical UUID form.
func (a ApplicationId) String() string { return uuid.UUID(a).String() }

// ParseApplicationId parses a canonical UUID string as an ApplicationId.
func ParseApplicationId(s string) (ApplicationId, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return ApplicationId{}, fmt.Errorf("parse application id: %w", err)
	}
	return ApplicationId(id), nil
}

// DevicePublicKey is the public half of a signing keypair, unique per host
// installation and generated on first start.
type DevicePublicKey [ed25519.PublicKeySize]byte

func (k DevicePublicKey) String() string { return fmt.Sprintf("%x", k[:]) }

// HeadKey identifies one row of the heads table: the (application, device)
// pair that a JournalKey is recorded against.
type HeadKey struct {
	App    ApplicationId
	Device DevicePublicKey
}

// JournalEntry is the unsigned content of one commit: the application whose
// state changed, the new CAS root of that state, and the prior entries this
// one follows (normally zero or one; more than one is reserved for future
// merge entries, never produced by this package).
type JournalEntry struct {
	ApplicationId ApplicationId `cbor:"1,keyasint"`
	NewState      CASKey        `cbor:"2,keyasint"`
	Parents       []JournalKey  `cbor:"3,keyasint"`
}

// casBlob is the canonical on-disk shape of a CAS blob: opaque payload bytes
// plus an ordered list of outbound links. Link order is part of identity,
// since it is part of what gets hashed.
type casBlob struct {
	Data  []byte   `cbor:"1,keyasint"`
	Links []CASKey `cbor:"2,keyasint"`
}

// signedEnvelope is the canonical on-disk shape of a signed journal entry.
// InnerSigned is the detached ed25519 signature immediately followed by the
// canonical encoding of the JournalEntry it covers; ed25519 verification
// does not recover the message from the signature the way some schemes do,
// so the envelope must carry both halves explicitly.
type signedEnvelope struct {
	From        DevicePublicKey `cbor:"1,keyasint"`
	InnerSigned []byte          `cbor:"2,keyasint"`
}

// IntegrityError reports a storage-integrity failure: a signature that does
// not verify, a CAS blob missing for a key the caller already trusts, or a
// persisted entry that fails to deserialize. Per the journal's error model
// these are always fatal for the read that discovered them; there is no
// recovery short of restoring from a trusted backup.
type IntegrityError struct {
	Reason string
	Err    error
}

func (e *IntegrityError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("integrity error: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("integrity error: %s", e.Reason)
}

func (e *IntegrityError) Unwrap() error { return e.Err }

func integrityErrorf(reason string, err error) error {
	return &IntegrityError{Reason: reason, Err: err}
}
