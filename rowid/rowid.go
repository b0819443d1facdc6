// Package rowid implements the 128-bit deterministic row identifier used
// to key every field, event, and predictor instance in the engine.
//
// RowIDs are never produced by a platform-dependent source (no wall
// clock, no process-global counter, no map iteration). They come from
// one of two deterministic paths: Derive, a cryptographic hash over
// caller-supplied seed bytes (used for fiat event ids supplied by the
// user), or Mint, a value drawn from a prng.Stream (used when an event
// body needs to create new rows).
package rowid

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// RowID is a 128-bit deterministic identifier. It is backed by
// github.com/google/uuid's [16]byte array purely as a convenient,
// well-tested fixed-width container; no UUID version/variant bits are
// interpreted and no randomness from that package is ever used — every
// RowID the engine produces comes from Derive or Mint below.
type RowID struct {
	v uuid.UUID
}

// Zero is the all-zero RowID, used as a sentinel lower bound.
var Zero = RowID{}

// Max is the all-ones RowID, used as a sentinel upper bound.
var Max = RowID{v: func() uuid.UUID {
	var u uuid.UUID
	for i := range u {
		u[i] = 0xff
	}
	return u
}()}

// domainSeparator namespaces Derive/Mint hash inputs so that a RowID
// derived for a fiat event id can never collide with one minted by a
// predictor's PRNG, even given identical byte content.
type domainSeparator byte

const (
	domainFiat      domainSeparator = 0x01
	domainPredicted domainSeparator = 0x02
	domainMinted    domainSeparator = 0x03
)

// Derive produces a RowID deterministically from caller-supplied seed
// bytes, e.g. a user-chosen fiat event identifier. Collision at this
// width is assumed impossible (spec §3).
func Derive(seed []byte) RowID {
	return hashTo128(domainFiat, seed)
}

// DerivePredicted produces a RowID for an event produced by a predictor,
// namespaced by the predictor type and subject row so that two distinct
// predictors (or the same predictor bound to two distinct rows) never
// collide even if their payload bytes happen to match.
func DerivePredicted(predictorType uint64, subject RowID, payload []byte) RowID {
	var buf bytes.Buffer
	var tb [8]byte
	binary.LittleEndian.PutUint64(tb[:], predictorType)
	buf.Write(tb[:])
	buf.Write(subject.Bytes())
	buf.Write(payload)
	return hashTo128(domainPredicted, buf.Bytes())
}

// Mint draws a fresh RowID from a deterministic byte stream (normally a
// prng.Stream keyed on the executing event's id). Two calls against
// streams seeded identically draw identical RowIDs, regardless of
// wall-clock execution order (spec §5, §9).
func Mint(stream func(n int) []byte) RowID {
	raw := stream(16)
	return hashTo128(domainMinted, raw)
}

func hashTo128(domain domainSeparator, data []byte) RowID {
	h, _ := blake2b.New(16, nil) // 16 bytes = 128 bits, unkeyed content hash
	h.Write([]byte{byte(domain)})
	h.Write(data)
	sum := h.Sum(nil)
	var id RowID
	copy(id.v[:], sum)
	return id
}

// Bytes returns the 16-byte big-endian representation of the id.
func (id RowID) Bytes() []byte {
	b := make([]byte, 16)
	copy(b, id.v[:])
	return b
}

// Compare returns -1, 0, or 1 by unsigned big-endian byte comparison,
// the deterministic tie-break order ExtendedTime relies on.
func Compare(a, b RowID) int {
	return bytes.Compare(a.v[:], b.v[:])
}

func (id RowID) String() string {
	return id.v.String()
}

// IsZero reports whether id is the Zero sentinel.
func (id RowID) IsZero() bool {
	return id == Zero
}

// MarshalBinary implements encoding.BinaryMarshaler so cbor (and any
// other codec that respects it) encodes a RowID as a plain 16-byte
// string rather than attempting to walk its unexported fields.
func (id RowID) MarshalBinary() ([]byte, error) {
	return id.Bytes(), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler, the inverse of
// MarshalBinary.
func (id *RowID) UnmarshalBinary(b []byte) error {
	v, ok := FromBytes(b)
	if !ok {
		return fmt.Errorf("rowid: invalid encoded length %d, want 16", len(b))
	}
	*id = v
	return nil
}

// FromBytes reconstructs a RowID from its 16-byte representation, e.g.
// when decoding a snapshot. It does not re-derive or validate the hash;
// callers are trusted to pass bytes previously produced by Bytes.
func FromBytes(b []byte) (RowID, bool) {
	if len(b) != 16 {
		return RowID{}, false
	}
	var id RowID
	copy(id.v[:], b)
	return id, true
}
