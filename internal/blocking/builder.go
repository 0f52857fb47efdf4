// Package blocking turns a normalized criteria set into a bounded-recall
// index query: cheap, selective clauses that narrow a huge registry to a
// small candidate set worth scoring pairwise.
package blocking

import (
	"fmt"
	"strings"

	"github.com/vitalregistry/linkage/internal/domain"
	"github.com/vitalregistry/linkage/internal/domain/criterion"
	"github.com/vitalregistry/linkage/internal/domain/query"
)

// BlockSpec declares which criteria form the cheap blocking clause versus the
// optional refinement clause.
type BlockSpec struct {
	Scope                    []criterion.Kind
	MinimumMatch             int
	IncludeRemainderAsShould bool
}

func (b BlockSpec) inScope(kind criterion.Kind) bool {
	for _, k := range b.Scope {
		if k == kind {
			return true
		}
	}
	return false
}

const (
	fullNameField   = "name.full"
	dateBoostWeight = 5
)

// Build converts the criteria set into one executable index query.
//
// Resolution order: an identity-id criterion bypasses everything; a free-text
// criterion builds a tokenizing full-text query and conflicts with structured
// fields; a block spec with a rich name and a date triggers adaptive
// blocking; a block spec without one groups the scope as should+minimum;
// otherwise every present criterion becomes one independent must clause.
func Build(set criterion.Set, block *BlockSpec) (query.Query, error) {
	if set.Empty() {
		return query.Query{}, fmt.Errorf("%w: no search criterion given", domain.ErrValidation)
	}

	if c, ok := set.Get(criterion.KindID); ok && c.Present() {
		return query.Query{Root: criterion.Clause(c)}, nil
	}

	if c, ok := set.Get(criterion.KindFullText); ok && c.Present() {
		if hasStructured(set) {
			return query.Query{}, fmt.Errorf("%w: free-text search excludes structured criteria", domain.ErrConflict)
		}
		return freeTextQuery(c)
	}

	if block != nil {
		if adaptiveEligible(set, *block) {
			return adaptiveQuery(set, *block)
		}
		return blockedQuery(set, *block)
	}
	return advancedQuery(set)
}

func hasStructured(set criterion.Set) bool {
	for _, c := range set.Criteria() {
		if c.Kind != criterion.KindID && c.Kind != criterion.KindFullText && c.Present() {
			return true
		}
	}
	return false
}

// advancedQuery gives every present criterion one independent must clause, so
// a caller can demand e.g. "name AND approximate date" without a block spec.
func advancedQuery(set criterion.Set) (query.Query, error) {
	b := query.Bool()
	for _, c := range set.Criteria() {
		b.Must(criterion.Clause(c))
	}
	return query.Query{Root: b.Build()}, nil
}

// blockedQuery groups the scope criteria as a should with minimum-match and
// appends the remainder as optional boosters.
func blockedQuery(set criterion.Set, block BlockSpec) (query.Query, error) {
	scope := query.Bool()
	outer := query.Bool()
	for _, c := range set.Criteria() {
		if block.inScope(c.Kind) {
			scope.Should(criterion.Clause(c))
		} else if block.IncludeRemainderAsShould {
			outer.Should(criterion.Clause(c))
		}
	}
	inner := scope.MinimumShouldMatch(block.MinimumMatch).Build()
	if inner.Empty() {
		return query.Query{}, fmt.Errorf("%w: block scope matches no present criterion", domain.ErrValidation)
	}
	return query.Query{Root: outer.Must(inner).Build()}, nil
}

// adaptiveEligible requires a rich name (last+first) and at least one date,
// the combination selective enough for the concatenated-name must clause.
func adaptiveEligible(set criterion.Set, block BlockSpec) bool {
	return block.inScope(criterion.KindLastName) && set.Has(criterion.KindLastName) &&
		block.inScope(criterion.KindFirstName) && set.Has(criterion.KindFirstName) &&
		(set.Has(criterion.KindBirthDate) || set.Has(criterion.KindDeathDate))
}

// adaptiveQuery is the main blocking strategy: a must fuzzy match on the
// concatenated last+first name, exact last-name and legal-name boosters, and
// a date clause per shape. A death date that is not a range is never a must;
// it is the least reliable field and would eliminate true matches.
func adaptiveQuery(set criterion.Set, block BlockSpec) (query.Query, error) {
	last, _ := set.Get(criterion.KindLastName)
	first, _ := set.Get(criterion.KindFirstName)

	concat := strings.Join(append(append([]string{}, last.Values...), first.Values...), " ")
	b := query.Bool().
		Must(query.MatchClause{Field: fullNameField, Query: concat, Fuzzy: true}).
		Should(query.MatchClause{Field: criterion.FieldFor(criterion.KindLastName), Query: strings.Join(last.Values, " ")}).
		Should(query.MatchClause{Field: criterion.FieldFor(criterion.KindLegalName), Query: strings.Join(last.Values, " ")})

	if c, ok := set.Get(criterion.KindBirthDate); ok && c.Present() {
		clause, _ := dateBlockClause(criterion.KindBirthDate, c)
		b.Must(clause)
	}
	if c, ok := set.Get(criterion.KindDeathDate); ok && c.Present() {
		clause, rangeLike := dateBlockClause(criterion.KindDeathDate, c)
		if rangeLike {
			b.Must(clause)
		} else {
			b.Should(clause)
		}
	}

	for _, c := range set.Criteria() {
		switch c.Kind {
		case criterion.KindFirstName, criterion.KindLastName, criterion.KindLegalName,
			criterion.KindBirthDate, criterion.KindDeathDate:
			continue
		}
		if block.inScope(c.Kind) || block.IncludeRemainderAsShould {
			b.Should(criterion.Clause(c))
		}
	}
	return query.Query{Root: b.Build()}, nil
}

// dateBlockClause renders a date criterion for blocking. Ranges and bounds
// map to a range clause; exact dates become a fuzzy-date-or-decade-prefix
// disjunction so a one-digit slip still blocks to the right cohort.
func dateBlockClause(kind criterion.Kind, c criterion.Criterion) (clause query.Clause, rangeLike bool) {
	field := criterion.FieldFor(kind)
	expr, err := criterion.ParseDateExpr(c.Value(), "")
	if err != nil {
		return query.MatchClause{Field: field, Query: c.Value()}, false
	}
	if r, ok := expr.RangeClause(field); ok {
		return r, true
	}
	disj := query.Bool().
		Should(query.MatchClause{Field: field, Query: expr.Exact, Fuzzy: true}).
		MinimumShouldMatch(1)
	if decade := decadePrefix(expr.Exact); decade != "" {
		disj.Should(query.PrefixClause{Field: field, Value: decade})
	}
	return disj.Build(), false
}

// decadePrefix reduces an 8-digit date to its decade, e.g. 19691101 -> 196.
func decadePrefix(d string) string {
	if len(d) != 8 || strings.HasPrefix(d, "000") {
		return ""
	}
	return d[:3]
}
