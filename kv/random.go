package kv

import "math/rand/v2"

const randomAlphabet = "abcdefghijklmnopqrstuvwxyz"

// RandomInt returns a pseudo-random non-negative integer. It is not
// suitable for cryptographic use.
func (s *Store) RandomInt() int64 {
	return rand.Int64()
}

// RandomString returns n pseudo-random lowercase ASCII letters.
func (s *Store) RandomString(n int) []byte {
	if n <= 0 {
		return []byte{}
	}
	out := make([]byte, n)
	for i := range out {
		out[i] = randomAlphabet[rand.IntN(len(randomAlphabet))]
	}
	return out
}
