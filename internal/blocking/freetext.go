package blocking

import (
	"strings"
	"unicode"

	"github.com/vitalregistry/linkage/internal/domain/criterion"
	"github.com/vitalregistry/linkage/internal/domain/person"
	"github.com/vitalregistry/linkage/internal/domain/query"
)

// stopWords are articles and prepositions dropped from free-text input.
var stopWords = map[string]struct{}{
	"le": {}, "la": {}, "les": {}, "de": {}, "du": {}, "des": {},
	"un": {}, "une": {}, "et": {}, "au": {}, "aux": {}, "en": {},
	"sur": {}, "sous": {}, "dit": {}, "dite": {},
}

// freeTextQuery builds the tokenizing full-text query: a fuzzy name clause,
// a date booster when a dd/mm/yyyy-shaped token appears, and a two-ordering
// disjunction when exactly two name tokens remain.
func freeTextQuery(c criterion.Criterion) (query.Query, error) {
	names, date := tokenizeFreeText(strings.Join(c.Values, " "))
	if len(names) == 0 && date == "" {
		return query.Query{}, nil
	}

	b := query.Bool()
	if len(names) > 0 {
		b.Must(query.MatchClause{
			Field: criterion.FieldFor(criterion.KindFullText),
			Query: strings.Join(names, " "),
			Fuzzy: true,
		})
	}
	if len(names) == 2 {
		b.Should(orderedPair(names[0], names[1]), orderedPair(names[1], names[0]))
	}

	var root query.Clause = b.Build()
	if date != "" {
		root = query.FunctionScoreClause{
			Query: root,
			Functions: []query.ScoreFunction{{
				Filter: query.MatchClause{Field: criterion.FieldFor(criterion.KindBirthDate), Query: date},
				Weight: dateBoostWeight,
			}},
		}
	}
	return query.Query{Root: root}, nil
}

// orderedPair demands one (first, last) assignment of two tokens, tolerating
// swapped input when both orderings go into a disjunction.
func orderedPair(first, last string) query.Clause {
	return query.Bool().
		Must(query.MatchClause{Field: criterion.FieldFor(criterion.KindFirstName), Query: first, Fuzzy: true}).
		Must(query.MatchClause{Field: criterion.FieldFor(criterion.KindLastName), Query: last, Fuzzy: true}).
		Build()
}

// tokenizeFreeText splits the text on non-letters, drops stop words, and
// pulls out at most one dd/mm/yyyy-shaped token as a date candidate.
func tokenizeFreeText(text string) (names []string, date string) {
	for _, tok := range strings.Fields(text) {
		if date == "" {
			if d, err := person.ToDigits(tok, "dd/MM/yyyy"); err == nil && looksLikeDateToken(tok) {
				date = d
				continue
			}
		}
		word := strings.ToLower(stripNonLetters(tok))
		if word == "" {
			continue
		}
		if _, stop := stopWords[word]; stop {
			continue
		}
		names = append(names, word)
	}
	return names, date
}

func looksLikeDateToken(tok string) bool {
	return strings.Count(tok, "/") == 2
}

func stripNonLetters(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || r == '-' {
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), "-")
}
