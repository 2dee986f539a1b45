// Package similarity provides a normalized edit-distance similarity measure
// used by the conversation engine to detect repetition loops.
package similarity

// Levenshtein computes the classic dynamic-programming edit distance between
// two strings (insert/delete/substitute cost 1 each). Operates on runes so
// multi-byte characters count as single edits.
func Levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	// Two-row DP keeps memory proportional to the shorter dimension.
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}

	return prev[len(rb)]
}

// Ratio converts edit distance to a similarity score in [0, 1]:
// (maxLen - distance) / maxLen. Two empty strings compare as fully similar.
// The measure is deterministic and symmetric: Ratio(a, b) == Ratio(b, a).
func Ratio(a, b string) float64 {
	maxLen := len([]rune(a))
	if l := len([]rune(b)); l > maxLen {
		maxLen = l
	}
	if maxLen == 0 {
		return 1.0
	}
	return float64(maxLen-Levenshtein(a, b)) / float64(maxLen)
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
