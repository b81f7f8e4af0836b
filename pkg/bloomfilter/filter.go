// Package bloomfilter implements a fixed-size Bloom filter sized from a
// target false-positive probability, used by the hash-join probe to
// short-circuit right-side pages that cannot contain a given key.
package bloomfilter

import (
	"hash/maphash"
	"math"
)

// Filter is a bit-array Bloom filter with k hash functions derived from
// two maphash values under a single seed via double hashing
// (Kirsch-Mitzenmacher).
type Filter struct {
	bits []uint64 // m bits packed 64 per word
	m    uint64   // number of bits
	k    uint64   // number of hash functions
	seed maphash.Seed
}

// NewFilter sizes a filter for n expected insertions at the given target
// false-positive probability.
func NewFilter(n int, falsePositiveProbability float64) *Filter {
	if n < 1 {
		n = 1
	}
	if falsePositiveProbability <= 0 || falsePositiveProbability >= 1 {
		falsePositiveProbability = 0.01
	}
	m := optimalBits(n, falsePositiveProbability)
	k := optimalHashCount(m, uint64(n))
	words := (m + 63) / 64
	return &Filter{
		bits: make([]uint64, words),
		m:    m,
		k:    k,
		seed: maphash.MakeSeed(),
	}
}

func optimalBits(n int, p float64) uint64 {
	m := -1 * float64(n) * math.Log(p) / (math.Ln2 * math.Ln2)
	if m < 8 {
		m = 8
	}
	return uint64(math.Ceil(m))
}

func optimalHashCount(m, n uint64) uint64 {
	if n == 0 {
		return 1
	}
	k := (float64(m) / float64(n)) * math.Ln2
	if k < 1 {
		k = 1
	}
	return uint64(math.Round(k))
}

// Add inserts key into the filter.
func (f *Filter) Add(key []byte) {
	h1, h2 := f.hashPair(key)
	for i := uint64(0); i < f.k; i++ {
		f.set((h1 + i*h2) % f.m)
	}
}

// Contains reports whether key may be in the filter. False positives are
// possible; false negatives are not.
func (f *Filter) Contains(key []byte) bool {
	h1, h2 := f.hashPair(key)
	for i := uint64(0); i < f.k; i++ {
		if !f.isSet((h1 + i*h2) % f.m) {
			return false
		}
	}
	return true
}

func (f *Filter) hashPair(key []byte) (uint64, uint64) {
	var h maphash.Hash
	h.SetSeed(f.seed)
	h.Write(key)
	h1 := h.Sum64()
	// second, independent-enough hash: hash the key again under the same
	// seed with a trailing 0xff byte appended.
	var h2hash maphash.Hash
	h2hash.SetSeed(f.seed)
	h2hash.Write(key)
	h2hash.Write([]byte{0xff})
	h2 := h2hash.Sum64()
	return h1, h2 | 1 // ensure odd step so it cycles through all buckets
}

func (f *Filter) set(bit uint64) {
	f.bits[bit/64] |= 1 << (bit % 64)
}

func (f *Filter) isSet(bit uint64) bool {
	return f.bits[bit/64]&(1<<(bit%64)) != 0
}
