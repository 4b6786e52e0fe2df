// Package wire implements the canonical, deterministic serialization used
// for every hashed or signed structure in the journal: CAS blobs, journal
// entries, signed envelopes, and the payloads of typed CAS values.
//
// Two semantically-equal values must serialize to byte-identical output, so
// that hashing the serialization is well-defined. This package uses CBOR's
// RFC 8949 "Core Deterministic Encoding" mode (definite-length arrays and
// maps, sorted map keys), which gives that property without a schema
// compiler.
package wire

import (
	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/blake2b"
)

var (
	encMode = mustEncMode()
	decMode = mustDecMode()
)

func mustEncMode() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err) // CoreDetEncOptions is a fixed, known-good configuration
	}
	return em
}

func mustDecMode() cbor.DecMode {
	dm, err := (cbor.DecOptions{}).DecMode()
	if err != nil {
		panic(err)
	}
	return dm
}

// Marshal encodes v using the canonical encoding. The result is deterministic
// for any two calls with semantically equal values.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes b into v.
func Unmarshal(b []byte, v any) error {
	return decMode.Unmarshal(b, v)
}

// Digest is a 256-bit content digest.
type Digest = [32]byte

// Hash computes the content digest of data.
func Hash(data []byte) Digest { return blake2b.Sum256(data) }
