package biasgen

import (
	crand "crypto/rand"
	"encoding/binary"
	"math/bits"
	"time"

	"golang.org/x/exp/rand"
)

// Source is the random source a Sampler draws from.
//
// Implementations must be deterministic for a given seed so that a captured
// seed replays the exact same stream.
type Source interface {
	// Uint64n returns a uniform value in [0, n). n == 0 means the full
	// 64-bit range.
	Uint64n(n uint64) uint64

	// Seed resets the source to the state derived from seed.
	Seed(seed uint64)
}

// PCGSource is the default Source, a PCG generator from golang.org/x/exp/rand.
type PCGSource struct {
	pcg rand.PCGSource
	rng *rand.Rand
}

// NewPCGSource returns a PCG source seeded with seed.
func NewPCGSource(seed uint64) *PCGSource {
	s := &PCGSource{}
	s.rng = rand.New(&s.pcg)
	s.rng.Seed(seed)
	return s
}

// Seed implements Source.
func (s *PCGSource) Seed(seed uint64) { s.rng.Seed(seed) }

// Uint64n implements Source. Bounded draws are unbiased for every n.
func (s *PCGSource) Uint64n(n uint64) uint64 {
	if n == 0 {
		return s.rng.Uint64()
	}
	return s.rng.Uint64n(n)
}

// Snapshot returns the generator state, for checkpointing a long capture.
func (s *PCGSource) Snapshot() ([]byte, error) { return s.pcg.MarshalBinary() }

// Restore resets the generator to a state produced by Snapshot.
func (s *PCGSource) Restore(state []byte) error { return s.pcg.UnmarshalBinary(state) }

const (
	lcgA    uint64 = 0x5DEECE66D
	lcgC    uint64 = 0xB
	lcgMask uint64 = (1 << 48) - 1
)

// LCG48Source follows the srand48/lrand48 recurrence, so streams can be lined
// up against generators built on the C library.
//
// Each lrand48 step yields only 31 bits. Three steps are packed into one 64-bit
// word before bounding, so wide intervals are not reduced by modulo of a 31-bit
// value.
type LCG48Source struct {
	state uint64
}

// NewLCG48Source returns a source seeded like srand48(seed).
func NewLCG48Source(seed uint64) *LCG48Source {
	s := &LCG48Source{}
	s.Seed(seed)
	return s
}

// Seed implements Source with srand48 semantics.
func (s *LCG48Source) Seed(seed uint64) {
	s.state = ((seed << 16) + 0x330E) & lcgMask
}

func (s *LCG48Source) next31() uint64 {
	s.state = (lcgA*s.state + lcgC) & lcgMask
	return s.state >> 17
}

// Uint64 returns 64 random bits built from three recurrence steps.
func (s *LCG48Source) Uint64() uint64 {
	hi := s.next31() << 33
	mid := s.next31() << 2
	lo := s.next31() & 3
	return hi | mid | lo
}

// Uint64n implements Source using multiply-and-reject bounding.
func (s *LCG48Source) Uint64n(n uint64) uint64 {
	if n == 0 {
		return s.Uint64()
	}
	if n&(n-1) == 0 { // power of two, can mask
		return s.Uint64() & (n - 1)
	}
	hi, lo := bits.Mul64(s.Uint64(), n)
	if lo < n {
		thresh := -n % n
		for lo < thresh {
			hi, lo = bits.Mul64(s.Uint64(), n)
		}
	}
	return hi
}

// EntropySeed returns a fresh seed from the operating system's entropy pool.
// Log it: it is the only way to replay the run.
func EntropySeed() uint64 {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return uint64(time.Now().UnixNano())
	}
	return binary.LittleEndian.Uint64(b[:])
}
