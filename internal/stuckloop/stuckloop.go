// Package stuckloop detects non-converging retry loops from the history of
// failure signatures recorded across pipeline iterations.
package stuckloop

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// FailureSignature is an order-independent digest of the set of failing case
// identifiers from one sandbox run. Two runs that fail the same cases produce
// the same signature regardless of reporting order.
type FailureSignature string

// repeatThreshold is how many times a signature may appear across the whole
// history before the run is declared stuck.
const repeatThreshold = 3

// Signature computes the digest for a set of failing case identifiers.
func Signature(failingCases []string) FailureSignature {
	cases := make([]string, len(failingCases))
	copy(cases, failingCases)
	sort.Strings(cases)
	sum := sha256.Sum256([]byte(strings.Join(cases, "\x00")))
	return FailureSignature(hex.EncodeToString(sum[:]))
}

// IsStuck reports whether the run is no longer converging: the two most
// recent signatures are identical, or any signature has appeared at least
// three times across the whole history.
func IsStuck(history []FailureSignature) bool {
	n := len(history)
	if n >= 2 && history[n-1] == history[n-2] {
		return true
	}
	counts := make(map[FailureSignature]int, n)
	for _, sig := range history {
		counts[sig]++
		if counts[sig] >= repeatThreshold {
			return true
		}
	}
	return false
}
