// Package rng provides the seeded pseudo-random generator every mini-game
// draws from.
//
// The generator is Mulberry32 over a 32-bit state word. Two generators built
// from the same seed produce the same infinite sequence, so a match can be
// replayed from its seed and the ordered list of player inputs.
package rng

import "errors"

var (
	// ErrInvalidRange is the panic value for NextInt with max < min.
	ErrInvalidRange = errors.New("rng: max is less than min")
	// ErrEmptySequence is the panic value for Pick on an empty slice.
	ErrEmptySequence = errors.New("rng: pick from empty sequence")
)

// Random is a deterministic Mulberry32 generator. Not safe for concurrent use;
// each game session owns its own instance.
type Random struct {
	seed  int64
	state uint32
}

// New creates a generator. Seeds outside the 32-bit range wrap.
func New(seed int64) *Random {
	return &Random{seed: seed, state: uint32(seed)}
}

// Seed returns the seed the generator was created with.
func (r *Random) Seed() int64 {
	return r.seed
}

// Next returns a float in [0, 1).
func (r *Random) Next() float64 {
	r.state += 0x6D2B79F5
	t := r.state
	t = (t ^ (t >> 15)) * (t | 1)
	t ^= t + (t^(t>>7))*(t|61)
	return float64(t^(t>>14)) / 4294967296.0
}

// NextInt returns an integer in [min, max] inclusive.
// Panics with ErrInvalidRange when max < min.
func (r *Random) NextInt(min, max int) int {
	if max < min {
		panic(ErrInvalidRange)
	}
	return int(r.Next()*float64(max-min+1)) + min
}

// Pick returns one element of items chosen with NextInt.
// Panics with ErrEmptySequence when items is empty.
func Pick[T any](r *Random, items []T) T {
	if len(items) == 0 {
		panic(ErrEmptySequence)
	}
	return items[r.NextInt(0, len(items)-1)]
}

// Shuffle returns a shuffled copy of items (Fisher-Yates from the end).
// The input slice is never modified.
func Shuffle[T any](r *Random, items []T) []T {
	out := make([]T, len(items))
	copy(out, items)
	for i := len(out) - 1; i > 0; i-- {
		j := r.NextInt(0, i)
		out[i], out[j] = out[j], out[i]
	}
	return out
}
