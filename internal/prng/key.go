// Package prng provides splittable randomness keys. A Key is a plain value;
// splitting it is deterministic, so the same key split the same number of
// ways always yields the same children.
package prng

import (
	"golang.org/x/exp/rand"
)

// Key seeds one independent random stream.
type Key uint64

// New returns the root key for seed.
func New(seed uint64) Key {
	return Key(seed)
}

// Split derives a successor key and n child keys from k.
func (k Key) Split(n int) (Key, []Key) {
	r := rand.New(rand.NewSource(uint64(k)))
	next := Key(r.Uint64())
	subs := make([]Key, n)
	for i := range subs {
		subs[i] = Key(r.Uint64())
	}
	return next, subs
}

// Pair splits k into exactly two children.
func (k Key) Pair() (Key, Key) {
	_, subs := k.Split(2)
	return subs[0], subs[1]
}

// Source returns a fresh PCG source seeded from k.
func (k Key) Source() rand.Source {
	return rand.NewSource(uint64(k))
}
