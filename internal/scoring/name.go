package scoring

import (
	"math"

	"github.com/vitalregistry/linkage/internal/domain/person"
)

const (
	blindNameScore  = 0.7 // either side has no usable name
	minNameScore    = 0.1 // floor for any name comparison
	swapPenalty     = 0.5 // first/last transposition discount
	positionalDecay = 0.5 // per-position shift in multi-token alignment
)

// scoreName compares the input name against a candidate name. Transposed
// first/last names are tolerated at a penalty; multi-token names are aligned
// token by token with a positional decay.
func scoreName(first, last []string, cand person.Name) float64 {
	if (len(first) == 0 && len(last) == 0) || cand.Empty() {
		return blindNameScore
	}

	firstScore := scoreTokenSeq(first, cand.First)
	lastScore := scoreTokenSeq(last, cand.Last)
	if len(last) > 0 && len(cand.Legal) > 0 {
		lastScore = math.Max(lastScore, scoreTokenSeq(last, cand.Legal))
	}

	swappedFirst := scoreTokenSeq(first, cand.Last)
	swappedLast := scoreTokenSeq(last, cand.First)

	s := math.Max(firstScore*lastScore, swapPenalty*swappedFirst*swappedLast)
	s = math.Max(s, minNameScore)
	return round2(s)
}

// scoreTokenSeq recursively finds the best alignment of input tokens against
// candidate tokens. Each position shift costs a decay factor; a single
// token pair falls back to normalized Levenshtein similarity. Missing tokens
// on either side are neutral.
func scoreTokenSeq(in, cand []string) float64 {
	if len(in) == 0 || len(cand) == 0 {
		return 1
	}
	if len(in) == 1 && len(cand) == 1 {
		return levSimilarity(in[0], cand[0])
	}

	best := 0.0
	for j, c := range cand {
		s := levSimilarity(in[0], c) * math.Pow(positionalDecay, float64(j))
		if s > best {
			best = s
		}
	}
	if len(in) > 1 {
		// Later input tokens may align better; name lengths are small so the
		// recursion stays cheap.
		if rest := scoreTokenSeq(in[1:], cand); rest > best {
			best = rest
		}
	}
	return best
}
