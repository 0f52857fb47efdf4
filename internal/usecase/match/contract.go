package match

import (
	"context"
	"time"

	"github.com/vitalregistry/linkage/internal/domain/query"
	"github.com/vitalregistry/linkage/internal/index"
)

// Searcher executes queries against the registry index.
type Searcher interface {
	Search(ctx context.Context, q query.Query) (index.Result, error)
	Scroll(ctx context.Context, scrollID string, keepAlive time.Duration) (index.Result, error)
}
