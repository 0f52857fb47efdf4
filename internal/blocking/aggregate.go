package blocking

import (
	"fmt"

	"github.com/vitalregistry/linkage/internal/domain"
	"github.com/vitalregistry/linkage/internal/domain/criterion"
	"github.com/vitalregistry/linkage/internal/domain/query"
)

// aggDim is one bucketing dimension: its physical field and whether it is a
// calendar dimension served by a date histogram.
type aggDim struct {
	field string
	date  bool
}

var aggDims = map[string]aggDim{
	"sex":             {field: criterion.FieldFor(criterion.KindSex)},
	"birthDate":       {field: criterion.FieldFor(criterion.KindBirthDate), date: true},
	"birthCity":       {field: criterion.FieldFor(criterion.KindBirthCity)},
	"birthDepartment": {field: criterion.FieldFor(criterion.KindBirthDepartment)},
	"birthCountry":    {field: criterion.FieldFor(criterion.KindBirthCountry)},
	"deathDate":       {field: criterion.FieldFor(criterion.KindDeathDate), date: true},
	"deathCity":       {field: criterion.FieldFor(criterion.KindDeathCity)},
	"deathDepartment": {field: criterion.FieldFor(criterion.KindDeathDepartment)},
	"deathCountry":    {field: criterion.FieldFor(criterion.KindDeathCountry)},
	"deathAge":        {field: criterion.FieldFor(criterion.KindDeathAge)},
}

// BuildAggregation buckets the candidate set of the criteria by the given
// dimensions. One dimension uses a plain terms or date-histogram
// aggregation; several dimensions switch to a composite aggregation paged
// with the opaque after-key cursor.
func BuildAggregation(set criterion.Set, dims []string, size int, after map[string]any) (query.Query, error) {
	if len(dims) == 0 {
		return query.Query{}, fmt.Errorf("%w: no aggregation dimension given", domain.ErrValidation)
	}
	resolved := make([]aggDim, 0, len(dims))
	for _, name := range dims {
		d, ok := aggDims[name]
		if !ok {
			return query.Query{}, fmt.Errorf("%w: unknown aggregation dimension %q", domain.ErrValidation, name)
		}
		resolved = append(resolved, d)
	}

	var q query.Query
	if !set.Empty() { // empty criteria aggregate the whole registry
		built, err := Build(set, nil)
		if err != nil {
			return query.Query{}, err
		}
		q = built
	}
	q.NoHits = true // buckets only, suppress the default hit page
	q.Aggs = map[string]query.Agg{
		"cardinality": query.CardinalityAgg{Field: resolved[0].field},
	}

	if len(dims) == 1 {
		q.Aggs[dims[0]] = singleAgg(resolved[0], size)
		return q, nil
	}

	sources := make([]query.CompositeSource, len(dims))
	for i, name := range dims {
		sources[i] = query.CompositeSource{Name: name, Agg: singleAgg(resolved[i], 0)}
	}
	q.Aggs["buckets"] = query.CompositeAgg{Sources: sources, Size: size, After: after}
	return q, nil
}

func singleAgg(d aggDim, size int) query.Agg {
	if d.date {
		return query.DateHistogramAgg{Field: d.field, Interval: "year"}
	}
	return query.TermsAgg{Field: d.field, Size: size}
}
