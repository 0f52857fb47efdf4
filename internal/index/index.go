// Package index abstracts the full-text registry index. Any backend that
// executes the clause algebra of the query package and returns scored hits is
// substitutable.
package index

import (
	"context"
	"time"

	"github.com/vitalregistry/linkage/internal/domain/person"
	"github.com/vitalregistry/linkage/internal/domain/query"
)

// Hit is one scored candidate returned by the index.
type Hit struct {
	Score  float64
	Record person.Record
}

// Bucket is one aggregation bucket.
type Bucket struct {
	Key      map[string]any
	DocCount int64
}

// Result is one executed search.
type Result struct {
	TookMS      int64
	Total       int64
	MaxScore    float64
	Hits        []Hit
	ScrollID    string
	Buckets     []Bucket
	Cardinality int64
	AfterKey    map[string]any
}

// Searcher executes queries against the registry index.
type Searcher interface {
	Search(ctx context.Context, q query.Query) (Result, error)
	MultiSearch(ctx context.Context, qs []query.Query) ([]Result, error)
	Scroll(ctx context.Context, scrollID string, keepAlive time.Duration) (Result, error)
}

// Empty is the degraded stub returned when the backend errors: a transient
// index hiccup yields no candidates instead of failing the caller.
func Empty() Result { return Result{} }
