package exam

// Similarity scores how close two strings are on a 0-100 scale using the
// normalized Levenshtein distance. Identical strings (including two empty
// ones) score 100. Case-folding is the caller's responsibility.
func Similarity(a, b string) float64 {
	if a == b {
		return 100
	}

	ra := []rune(a)
	rb := []rune(b)
	maxLen := len(ra)
	if len(rb) > maxLen {
		maxLen = len(rb)
	}
	if maxLen == 0 {
		return 100
	}

	d := levenshtein(ra, rb)
	return (1 - float64(d)/float64(maxLen)) * 100
}

// levenshtein computes the classic edit distance with unit costs for
// insertion, deletion and substitution over a full DP table.
func levenshtein(a, b []rune) int {
	m := make([][]int, len(a)+1)
	for i := range m {
		m[i] = make([]int, len(b)+1)
		m[i][0] = i
	}
	for j := 0; j <= len(b); j++ {
		m[0][j] = j
	}

	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				m[i][j] = m[i-1][j-1]
				continue
			}
			best := m[i-1][j-1] // substitution
			if m[i][j-1] < best {
				best = m[i][j-1] // insertion
			}
			if m[i-1][j] < best {
				best = m[i-1][j] // deletion
			}
			m[i][j] = best + 1
		}
	}

	return m[len(a)][len(b)]
}
