// Package query models the clause algebra understood by the registry index:
// bool must/should with minimum-should-match, match (optionally fuzzy), term,
// prefix, range, ids, geo-distance and function-score boosting. Any backend
// implementing this vocabulary is substitutable.
package query

// Clause is one node of the query tree. Map renders the node as the JSON
// query DSL fragment sent to the index.
type Clause interface {
	Map() map[string]any
}

// MatchClause is a full-text match on one field, optionally fuzzy.
type MatchClause struct {
	Field string
	Query string
	Fuzzy bool
	Boost float64
}

// Map renders the match clause.
func (c MatchClause) Map() map[string]any {
	inner := map[string]any{"query": c.Query}
	if c.Fuzzy {
		inner["fuzziness"] = "auto"
	}
	if c.Boost > 0 {
		inner["boost"] = c.Boost
	}
	return map[string]any{"match": map[string]any{c.Field: inner}}
}

// TermClause is an exact keyword match.
type TermClause struct {
	Field string
	Value string
}

// Map renders the term clause.
func (c TermClause) Map() map[string]any {
	return map[string]any{"term": map[string]any{c.Field: c.Value}}
}

// PrefixClause matches values starting with a literal prefix.
type PrefixClause struct {
	Field string
	Value string
}

// Map renders the prefix clause.
func (c PrefixClause) Map() map[string]any {
	return map[string]any{"prefix": map[string]any{c.Field: c.Value}}
}

// RangeClause is a bounded or half-bounded comparison. Bounds are the index's
// native scalar encoding (8-digit dates, numbers); empty bounds are omitted.
type RangeClause struct {
	Field string
	GTE   string
	LTE   string
	GT    string
	LT    string
}

// Map renders the range clause.
func (c RangeClause) Map() map[string]any {
	bounds := map[string]any{}
	if c.GTE != "" {
		bounds["gte"] = c.GTE
	}
	if c.LTE != "" {
		bounds["lte"] = c.LTE
	}
	if c.GT != "" {
		bounds["gt"] = c.GT
	}
	if c.LT != "" {
		bounds["lt"] = c.LT
	}
	return map[string]any{"range": map[string]any{c.Field: bounds}}
}

// IDsClause matches records by identifier, bypassing scoring.
type IDsClause struct {
	Values []string
}

// Map renders the ids clause.
func (c IDsClause) Map() map[string]any {
	return map[string]any{"ids": map[string]any{"values": c.Values}}
}

// GeoDistanceClause matches records within DistanceKM of a point.
type GeoDistanceClause struct {
	Field      string
	Latitude   float64
	Longitude  float64
	DistanceKM float64
}

// Map renders the geo-distance clause.
func (c GeoDistanceClause) Map() map[string]any {
	return map[string]any{"geo_distance": map[string]any{
		"distance": formatKM(c.DistanceKM),
		c.Field:    map[string]any{"lat": c.Latitude, "lon": c.Longitude},
	}}
}

// ScoreFunction boosts documents matching Filter by Weight.
type ScoreFunction struct {
	Filter Clause
	Weight float64
}

// FunctionScoreClause wraps a query with additive boosting functions.
type FunctionScoreClause struct {
	Query     Clause
	Functions []ScoreFunction
}

// Map renders the function-score clause.
func (c FunctionScoreClause) Map() map[string]any {
	fns := make([]map[string]any, len(c.Functions))
	for i, f := range c.Functions {
		fns[i] = map[string]any{"filter": f.Filter.Map(), "weight": f.Weight}
	}
	return map[string]any{"function_score": map[string]any{
		"query":      c.Query.Map(),
		"functions":  fns,
		"boost_mode": "sum",
	}}
}

// BoolClause combines clauses with must/should/must-not semantics.
type BoolClause struct {
	MustClauses    []Clause
	ShouldClauses  []Clause
	MustNotClauses []Clause
	MinShouldMatch int
}

// Map renders the bool clause.
func (c BoolClause) Map() map[string]any {
	b := map[string]any{}
	if len(c.MustClauses) > 0 {
		b["must"] = clauseMaps(c.MustClauses)
	}
	if len(c.ShouldClauses) > 0 {
		b["should"] = clauseMaps(c.ShouldClauses)
	}
	if len(c.MustNotClauses) > 0 {
		b["must_not"] = clauseMaps(c.MustNotClauses)
	}
	if c.MinShouldMatch > 0 {
		b["minimum_should_match"] = c.MinShouldMatch
	}
	return map[string]any{"bool": b}
}

// Empty reports whether the bool clause has no sub-clauses.
func (c BoolClause) Empty() bool {
	return len(c.MustClauses) == 0 && len(c.ShouldClauses) == 0 && len(c.MustNotClauses) == 0
}

func clauseMaps(clauses []Clause) []map[string]any {
	out := make([]map[string]any, len(clauses))
	for i, c := range clauses {
		out[i] = c.Map()
	}
	return out
}
