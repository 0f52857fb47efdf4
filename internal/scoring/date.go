package scoring

import (
	"math"

	"github.com/vitalregistry/linkage/internal/domain/criterion"
	"github.com/vitalregistry/linkage/internal/domain/person"
)

const (
	blindDateScore   = 0.8 // candidate date unknown
	rangeHitScore    = 0.7 // candidate falls in a low-confidence input range
	rangeMissScore   = 0.2 // candidate outside the input range
	datePenaltyPower = 4   // makes the score fall steeply for imprecise matches
	partialDiscount  = 0.9 // only the year segment could be compared
)

// scoreDate compares one input date expression against one candidate date.
// The input is the canonical criterion form ("YYYYMMDD", range or bound).
// An empty input is neutral.
func scoreDate(input, cand string) float64 {
	if input == "" {
		return 1
	}
	if person.DateUnknown(cand) {
		return blindDateScore
	}

	expr, err := criterion.ParseDateExpr(input, "")
	if err != nil {
		return blindDateScore
	}

	if expr.IsRangeLike() {
		return scoreDateRange(expr, cand)
	}
	if person.DateUnknown(expr.Exact) {
		return blindDateScore
	}

	raw := dateSimilarity(expr.Exact, cand)
	return round2(math.Pow(raw, datePenaltyPower))
}

// scoreDateRange scores a candidate against a range or one-sided bound.
// Ranges are low-confidence input, so even a hit stays at 0.7; a bound with
// an unknown year cannot exclude anyone and also scores 0.7.
func scoreDateRange(expr criterion.DateExpr, cand string) float64 {
	switch expr.Kind {
	case criterion.DateRange:
		if !person.YearKnown(expr.From) || !person.YearKnown(expr.To) {
			return rangeHitScore
		}
		if cand >= expr.From && cand <= rangeUpperBound(expr.To) {
			return rangeHitScore
		}
	case criterion.DateAfter:
		if !person.YearKnown(expr.Bound) {
			return rangeHitScore
		}
		if cand >= expr.Bound {
			return rangeHitScore
		}
	case criterion.DateBefore:
		if !person.YearKnown(expr.Bound) {
			return rangeHitScore
		}
		if cand <= rangeUpperBound(expr.Bound) {
			return rangeHitScore
		}
	}
	return rangeMissScore
}

// dateSimilarity is the normalized Levenshtein similarity of two 8-digit
// dates. When either side knows only its year, the comparison narrows to the
// year digits and takes a discount.
func dateSimilarity(a, b string) float64 {
	if person.MonthDayKnown(a) && person.MonthDayKnown(b) {
		return levSimilarity(a, b)
	}
	return levSimilarity(person.YearOf(a), person.YearOf(b)) * partialDiscount
}

func rangeUpperBound(d string) string {
	if len(d) == 8 && d[4:] == "0000" {
		return d[:4] + "1231"
	}
	return d
}
