package detector

import (
	"math"
	"strings"
)

// ShannonEntropy returns the base-2 entropy of the character distribution of
// s. The empty string has zero entropy.
func ShannonEntropy(s string) float64 {
	if s == "" {
		return 0
	}
	counts := map[rune]int{}
	n := 0
	for _, r := range s {
		counts[r]++
		n++
	}
	var h float64
	for _, c := range counts {
		p := float64(c) / float64(n)
		h -= p * math.Log2(p)
	}
	return h
}

// PositionalSimilarity compares two strings index by index, case-insensitively,
// and returns the number of equal positions divided by the longer length.
// It is not an edit distance: "paypal" and "apypal" share only 4 positions.
func PositionalSimilarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	ra := []rune(strings.ToLower(a))
	rb := []rune(strings.ToLower(b))
	matches := 0
	for i := 0; i < len(ra) && i < len(rb); i++ {
		if ra[i] == rb[i] {
			matches++
		}
	}
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	return float64(matches) / float64(longest)
}

// tier maps n onto the first value whose threshold n exceeds. thresholds must
// be descending; 0 is returned when none match.
func tier(n float64, thresholds []float64, values []float64) float64 {
	for i, t := range thresholds {
		if n > t {
			return values[i]
		}
	}
	return 0
}
