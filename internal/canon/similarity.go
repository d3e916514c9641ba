package canon

import (
	"strings"
)

// Similarity scores two normalized names in [0,1] using the Sørensen–Dice
// coefficient over character bigrams. Symmetric and deterministic; word order
// matters only as far as it changes the bigram multiset.
func Similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}

	ba := bigrams(a)
	bb := bigrams(b)
	if len(ba) == 0 || len(bb) == 0 {
		return 0
	}

	var shared int
	for g, na := range ba {
		if nb, ok := bb[g]; ok {
			shared += min(na, nb)
		}
	}
	totalA, totalB := 0, 0
	for _, n := range ba {
		totalA += n
	}
	for _, n := range bb {
		totalB += n
	}
	return 2 * float64(shared) / float64(totalA+totalB)
}

// bigrams counts character pairs per word, so "man city" and "city man"
// produce the same multiset.
func bigrams(s string) map[string]int {
	out := make(map[string]int)
	for _, word := range strings.Fields(s) {
		runes := []rune(word)
		if len(runes) == 1 {
			out[string(runes)]++
			continue
		}
		for i := 0; i < len(runes)-1; i++ {
			out[string(runes[i:i+2])]++
		}
	}
	return out
}
