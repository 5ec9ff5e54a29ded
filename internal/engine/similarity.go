package engine

// Similarity returns 1 - d/max(len(a), len(b)) where d is the unit-cost
// Levenshtein distance between a and b, measured in runes.
// The result is in [0,1] because d never exceeds the longer length.
func Similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}

	ra, rb := []rune(a), []rune(b)
	maxLen := len(ra)
	if len(rb) > maxLen {
		maxLen = len(rb)
	}
	if maxLen == 0 {
		return 1.0
	}

	d := Levenshtein(ra, rb)
	return 1 - float64(d)/float64(maxLen)
}

// Levenshtein computes the edit distance over the (len(b)+1) x (len(a)+1)
// table, keeping only two rows.
func Levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(a)+1)
	curr := make([]int, len(a)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(b); i++ {
		curr[0] = i
		for j := 1; j <= len(a); j++ {
			if b[i-1] == a[j-1] {
				curr[j] = prev[j-1]
				continue
			}
			curr[j] = min(prev[j-1], curr[j-1], prev[j]) + 1
		}
		prev, curr = curr, prev
	}

	return prev[len(a)]
}
