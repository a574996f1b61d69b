package sink

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"sync"

	"golang.org/x/crypto/sha3"

	"github.com/alexshd/biasgen"
)

// Digest fingerprints an instance stream with SHA3-256. Two runs with the
// same template and seed produce the same digest, so it goes into the
// regress list to detect generator drift.
//
// Canonical encoding per instance (big endian):
//
//	iteration u64 | op | n u32 | n × (slot | register | value u64) | m u32 | m × trailer op
//
// where strings are written as u32 length + bytes and values as their
// 64-bit two's complement pattern.
type Digest[T biasgen.Integer] struct {
	mu    sync.Mutex
	h     hash.Hash
	buf   []byte
	count uint64
}

// NewDigest returns an empty digest.
func NewDigest[T biasgen.Integer]() *Digest[T] {
	return &Digest[T]{h: sha3.New256()}
}

// Emit implements biasgen.Emitter.
func (d *Digest[T]) Emit(_ context.Context, inst biasgen.Instance[T]) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	b := d.buf[:0]
	b = binary.BigEndian.AppendUint64(b, inst.Iteration)
	b = appendString(b, inst.Op)
	b = binary.BigEndian.AppendUint32(b, uint32(len(inst.Bindings)))
	for _, bind := range inst.Bindings {
		b = appendString(b, bind.Slot)
		b = appendString(b, bind.Register)
		b = binary.BigEndian.AppendUint64(b, uint64(bind.Value))
	}
	b = binary.BigEndian.AppendUint32(b, uint32(len(inst.Trailer)))
	for _, op := range inst.Trailer {
		b = appendString(b, op)
	}

	d.h.Write(b)
	d.buf = b
	d.count++
	return nil
}

func appendString(b []byte, s string) []byte {
	b = binary.BigEndian.AppendUint32(b, uint32(len(s)))
	return append(b, s...)
}

// Sum returns the hex digest of everything emitted so far.
func (d *Digest[T]) Sum() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return hex.EncodeToString(d.h.Sum(nil))
}

// Count returns the number of instances hashed.
func (d *Digest[T]) Count() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.count
}
