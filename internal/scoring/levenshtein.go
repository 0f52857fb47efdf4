package scoring

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldTransformer lowercases comparisons indirectly by stripping diacritics;
// case folding happens separately so the transformer stays reusable.
var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// normalizeToken prepares a name or place token for comparison: lower case,
// diacritics stripped, surrounding space removed.
func normalizeToken(s string) string {
	folded, _, err := transform.String(foldTransformer, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(strings.TrimSpace(folded))
}

// levenshtein computes the edit distance between two strings, counting
// insertions, deletions and substitutions over runes.
func levenshtein(a, b string) int {
	ra := []rune(a)
	rb := []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	// Two-row rolling window over the distance matrix.
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
			curr[j] = min3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

// levSimilarity is the normalized Levenshtein similarity
// 1 - distance(normalize(a), normalize(b)) / len(longer), in [0,1].
func levSimilarity(a, b string) float64 {
	na := normalizeToken(a)
	nb := normalizeToken(b)
	if na == nb {
		return 1
	}
	longer := len([]rune(na))
	if l := len([]rune(nb)); l > longer {
		longer = l
	}
	if longer == 0 {
		return 1
	}
	sim := 1 - float64(levenshtein(na, nb))/float64(longer)
	if sim < 0 {
		return 0
	}
	return sim
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
