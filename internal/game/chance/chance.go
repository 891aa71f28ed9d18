// Package chance provides the swappable uniform randomness used by the town
// simulation. Production code uses a crypto-backed source; tests inject a
// seeded or fixed source so supply generation is reproducible.
package chance

import (
	"crypto/rand"
	"encoding/binary"
	mrand "math/rand/v2"
	"sync"
)

// Source produces uniformly distributed reals.
//
// Implementations MUST be safe for concurrent use.
type Source interface {
	// Float64 returns a value in [0, 1).
	Float64() float64
}

// Between returns a value drawn uniformly from [lo, hi).
//
// Precondition: src must be non-nil; lo <= hi.
// Postcondition: lo <= result < hi when lo < hi.
func Between(src Source, lo, hi float64) float64 {
	return lo + (hi-lo)*src.Float64()
}

// cryptoSource implements Source using crypto/rand.
type cryptoSource struct{}

// NewCryptoSource returns a Source backed by crypto/rand.
//
// Postcondition: Every value returned by Float64 is in [0, 1).
func NewCryptoSource() Source {
	return cryptoSource{}
}

// Float64 returns a cryptographically secure value in [0, 1).
//
// Panics with "chance: crypto/rand failure: <err>" if crypto/rand fails.
func (cryptoSource) Float64() float64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic("chance: crypto/rand failure: " + err.Error())
	}
	// 53 random bits fill the float64 mantissa exactly.
	return float64(binary.LittleEndian.Uint64(buf[:])>>11) / (1 << 53)
}

// seededSource is a deterministic PCG source guarded by a mutex.
type seededSource struct {
	mu  sync.Mutex
	rng *mrand.Rand
}

// NewSeededSource returns a deterministic Source. Two sources built from the
// same seed produce the same sequence.
func NewSeededSource(seed uint64) Source {
	return &seededSource{rng: mrand.New(mrand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Float64 returns the next value in [0, 1).
func (s *seededSource) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

// Fixed is a Source that always returns the same value. Useful in tests.
//
// Precondition: 0 <= value < 1.
type Fixed float64

// Float64 returns f.
func (f Fixed) Float64() float64 { return float64(f) }
