// Package simhash implements the 64-bit locality-sensitive hash used by
// multiple_search's near-duplicate filter (spec.md §4.4): whitespace-tokenize
// a string, hash each token, and accumulate a weighted bit vector whose sign
// per bit yields the final fingerprint. Two fingerprints are near-duplicates
// when their Hamming distance is at most a threshold.
//
// Ported from the Tapestry reference's use of the Python `simhash` package
// (Simhash(content.split()).distance(other)) in
// src/search/engines/duckduckgo.py. No Go package in the retrieval pack
// wraps this algorithm, and it is small and self-contained enough that
// pulling in an external dependency for it would not teach anything a
// stdlib hash/fnv implementation doesn't already show.
package simhash

import (
	"hash/fnv"
	"math/bits"
	"strings"
)

// Fingerprint is a 64-bit SimHash value.
type Fingerprint uint64

// Of computes the SimHash fingerprint of s's whitespace-separated tokens.
func Of(s string) Fingerprint {
	tokens := strings.Fields(s)
	if len(tokens) == 0 {
		return 0
	}
	var weights [64]int
	for _, tok := range tokens {
		h := fnv.New64a()
		_, _ = h.Write([]byte(tok))
		sum := h.Sum64()
		for bit := 0; bit < 64; bit++ {
			if sum&(1<<uint(bit)) != 0 {
				weights[bit]++
			} else {
				weights[bit]--
			}
		}
	}
	var fp Fingerprint
	for bit := 0; bit < 64; bit++ {
		if weights[bit] > 0 {
			fp |= 1 << uint(bit)
		}
	}
	return fp
}

// Distance returns the Hamming distance between two fingerprints.
func Distance(a, b Fingerprint) int {
	return bits.OnesCount64(uint64(a ^ b))
}
