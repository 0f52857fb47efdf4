package query

import (
	"fmt"
	"strconv"
)

// BoolBuilder is a fluent builder for bool clauses.
type BoolBuilder struct {
	clause BoolClause
}

// Bool starts building a bool clause.
func Bool() *BoolBuilder {
	return &BoolBuilder{}
}

// Must appends required clauses.
func (b *BoolBuilder) Must(clauses ...Clause) *BoolBuilder {
	b.clause.MustClauses = append(b.clause.MustClauses, clauses...)
	return b
}

// Should appends optional clauses.
func (b *BoolBuilder) Should(clauses ...Clause) *BoolBuilder {
	b.clause.ShouldClauses = append(b.clause.ShouldClauses, clauses...)
	return b
}

// MustNot appends excluding clauses.
func (b *BoolBuilder) MustNot(clauses ...Clause) *BoolBuilder {
	b.clause.MustNotClauses = append(b.clause.MustNotClauses, clauses...)
	return b
}

// MinimumShouldMatch sets the minimum number of should clauses to satisfy.
func (b *BoolBuilder) MinimumShouldMatch(n int) *BoolBuilder {
	b.clause.MinShouldMatch = n
	return b
}

// Build returns the assembled bool clause.
func (b *BoolBuilder) Build() BoolClause {
	return b.clause
}

// Sort is one sort key for the index.
type Sort struct {
	Field     string
	Direction string // "asc" or "desc"
}

// Map renders the sort entry.
func (s Sort) Map() map[string]any {
	return map[string]any{s.Field: map[string]any{"order": s.Direction}}
}

// Agg is one aggregation over the candidate set.
type Agg interface {
	AggMap() map[string]any
}

// TermsAgg buckets candidates by a keyword field.
type TermsAgg struct {
	Field string
	Size  int
}

// AggMap renders the terms aggregation.
func (a TermsAgg) AggMap() map[string]any {
	body := map[string]any{"field": a.Field}
	if a.Size > 0 {
		body["size"] = a.Size
	}
	return map[string]any{"terms": body}
}

// DateHistogramAgg buckets candidates by calendar interval of a date field.
type DateHistogramAgg struct {
	Field    string
	Interval string // e.g. "year"
}

// AggMap renders the date-histogram aggregation.
func (a DateHistogramAgg) AggMap() map[string]any {
	return map[string]any{"date_histogram": map[string]any{
		"field":             a.Field,
		"calendar_interval": a.Interval,
	}}
}

// CardinalityAgg counts distinct values of a field.
type CardinalityAgg struct {
	Field string
}

// AggMap renders the cardinality aggregation.
func (a CardinalityAgg) AggMap() map[string]any {
	return map[string]any{"cardinality": map[string]any{"field": a.Field}}
}

// CompositeSource is one dimension of a composite aggregation.
type CompositeSource struct {
	Name string
	Agg  Agg
}

// CompositeAgg pages through buckets of several dimensions at once using an
// opaque after-key cursor.
type CompositeAgg struct {
	Sources []CompositeSource
	Size    int
	After   map[string]any
}

// AggMap renders the composite aggregation.
func (a CompositeAgg) AggMap() map[string]any {
	sources := make([]map[string]any, len(a.Sources))
	for i, s := range a.Sources {
		sources[i] = map[string]any{s.Name: s.Agg.AggMap()}
	}
	body := map[string]any{"sources": sources}
	if a.Size > 0 {
		body["size"] = a.Size
	}
	if len(a.After) > 0 {
		body["after"] = a.After
	}
	return map[string]any{"composite": body}
}

// Query is a complete executable request against the index.
type Query struct {
	Root  Clause
	Sorts []Sort
	From  int
	Size  int
	Aggs  map[string]Agg

	// NoHits renders an explicit zero size so the backend returns buckets
	// without a hit page; Size is ignored when set.
	NoHits bool
}

// Body assembles the JSON request body.
func (q Query) Body() map[string]any {
	body := map[string]any{}
	if q.Root != nil {
		body["query"] = q.Root.Map()
	}
	if len(q.Sorts) > 0 {
		sorts := make([]map[string]any, len(q.Sorts))
		for i, s := range q.Sorts {
			sorts[i] = s.Map()
		}
		body["sort"] = sorts
	}
	if q.From > 0 {
		body["from"] = q.From
	}
	if q.NoHits {
		body["size"] = 0
	} else if q.Size > 0 {
		body["size"] = q.Size
	}
	if len(q.Aggs) > 0 {
		aggs := map[string]any{}
		for name, a := range q.Aggs {
			aggs[name] = a.AggMap()
		}
		body["aggs"] = aggs
	}
	return body
}

func formatKM(km float64) string {
	return strconv.FormatFloat(km, 'f', -1, 64) + "km"
}

// String is a compact debug rendering of the query tree.
func (q Query) String() string {
	return fmt.Sprintf("query{root=%v from=%d size=%d aggs=%d}", q.Root != nil, q.From, q.Size, len(q.Aggs))
}
