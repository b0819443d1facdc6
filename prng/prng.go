// Package prng implements the engine's deterministic, keyed-hash
// pseudorandom stream. There is no process-wide RNG (spec §9): every
// event body's stream is derived by keyed hashing from its ExtendedTime
// id, and every predictor's stream is derived from
// (predictor_type_id, subject_row, event.id), so retroactive or
// out-of-order execution can never perturb a random draw (spec §5).
package prng

import (
	"encoding/binary"

	"golang.org/x/crypto/blake2b"

	"github.com/example/timesteward/rowid"
)

// Stream is a deterministic byte generator. Calling Bytes repeatedly
// walks forward through the same keystream every time the Stream is
// reconstructed from the same seed — it is not safe for concurrent use
// by design, matching the single-threaded cooperative execution model
// of spec §5.
type Stream struct {
	key     [64]byte
	counter uint64
	buf     []byte
}

// ForEvent derives the stream an event body uses for random draws,
// keyed solely on the executing event's id.
func ForEvent(eventID rowid.RowID) *Stream {
	return newStream(eventID.Bytes())
}

// ForPredictor derives the stream a predictor invocation uses, keyed on
// (predictor_type_id, subject_row, event.id) so that identical predictor
// invocations at different points in retroactive history draw identical
// sequences (spec §5).
func ForPredictor(predictorType uint64, subject rowid.RowID, eventID rowid.RowID) *Stream {
	var tb [8]byte
	binary.LittleEndian.PutUint64(tb[:], predictorType)
	seed := append(append(append([]byte{}, tb[:]...), subject.Bytes()...), eventID.Bytes()...)
	return newStream(seed)
}

func newStream(seed []byte) *Stream {
	s := &Stream{}
	sum := blake2b.Sum512(seed)
	copy(s.key[:], sum[:])
	return s
}

// Bytes returns the next n deterministic bytes from the stream.
func (s *Stream) Bytes(n int) []byte {
	out := make([]byte, 0, n)
	for len(out) < n {
		if len(s.buf) == 0 {
			s.refill()
		}
		take := n - len(out)
		if take > len(s.buf) {
			take = len(s.buf)
		}
		out = append(out, s.buf[:take]...)
		s.buf = s.buf[take:]
	}
	return out
}

func (s *Stream) refill() {
	var ctrBytes [8]byte
	binary.LittleEndian.PutUint64(ctrBytes[:], s.counter)
	s.counter++
	h, _ := blake2b.New512(s.key[:])
	h.Write(ctrBytes[:])
	s.buf = h.Sum(nil)
}

// Uint64 returns the next 8 bytes of the stream as a little-endian
// uint64.
func (s *Stream) Uint64() uint64 {
	return binary.LittleEndian.Uint64(s.Bytes(8))
}

// Intn returns a deterministic value in [0, n) for n > 0, using rejection
// sampling so the distribution stays uniform regardless of n.
func (s *Stream) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	bound := uint64(n)
	limit := (^uint64(0) / bound) * bound
	for {
		v := s.Uint64()
		if v < limit {
			return int(v % bound)
		}
	}
}

// Float64 returns a deterministic value in [0, 1) built from 53 bits of
// the stream, matching the precision of an IEEE double's mantissa
// without going through platform floating-point RNG facilities.
func (s *Stream) Float64() float64 {
	const mantissaBits = 53
	v := s.Uint64() >> (64 - mantissaBits)
	return float64(v) / float64(uint64(1)<<mantissaBits)
}
