// Package match exposes the interactive identity search: validate the
// criteria, build a blocking query, execute it against the registry index and
// rank the candidates with the linkage score.
package match

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/vitalregistry/linkage/internal/blocking"
	"github.com/vitalregistry/linkage/internal/domain/criterion"
	"github.com/vitalregistry/linkage/internal/index"
	"github.com/vitalregistry/linkage/internal/refdata"
	"github.com/vitalregistry/linkage/internal/scoring"
)

// Limits bounds one search request.
type Limits struct {
	DefaultPageSize int
	MaxPageSize     int
	ScrollKeepAlive time.Duration
}

func (l Limits) withDefaults() Limits {
	if l.DefaultPageSize <= 0 {
		l.DefaultPageSize = 20
	}
	if l.MaxPageSize <= 0 {
		l.MaxPageSize = 1000
	}
	if l.ScrollKeepAlive <= 0 {
		l.ScrollKeepAlive = time.Minute
	}
	return l
}

// Service handles interactive identity searches.
type Service struct {
	searcher Searcher
	limits   Limits
	cities   *refdata.Cities
	logger   *zap.Logger
}

// New creates a match service.
func New(searcher Searcher, limits Limits, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{searcher: searcher, limits: limits.withDefaults(), logger: logger}
}

// WithCities attaches the city dictionary so city-only inputs still get a
// geo sub-score.
func (s *Service) WithCities(cities *refdata.Cities) *Service {
	s.cities = cities
	return s
}

// Request is one interactive search.
type Request struct {
	Criteria criterion.Input
	Block    *blocking.BlockSpec
	Sorts    []blocking.SortSpec
	Page     int // zero-based
	PageSize int
	ScrollID string // continues a previous walk; criteria are still required for scoring
}

// RankedResult is one scored search page.
type RankedResult struct {
	TookMS        int64
	Total         int64
	MaxIndexScore float64
	Persons       []scoring.Scored
	ScrollID      string
}

// Search validates the criteria, retrieves candidates and ranks them.
// Validation and conflict problems fail the request; index trouble degrades
// to an empty page so a registry hiccup never breaks the caller.
func (s *Service) Search(ctx context.Context, req Request) (RankedResult, error) {
	set, err := criterion.NewSet(req.Criteria)
	if err != nil {
		return RankedResult{}, err
	}

	var res index.Result
	if req.ScrollID != "" {
		res, err = s.searcher.Scroll(ctx, req.ScrollID, s.limits.ScrollKeepAlive)
	} else {
		q, berr := blocking.Build(set, req.Block)
		if berr != nil {
			return RankedResult{}, berr
		}
		q.Sorts = blocking.BuildSort(req.Sorts)
		q.Size = s.pageSize(req.PageSize)
		if req.Page > 0 {
			q.From = req.Page * q.Size
		}
		res, err = s.searcher.Search(ctx, q)
	}
	if err != nil {
		s.logger.Warn("index search degraded to empty result", zap.Error(err))
		res = index.Empty()
	}

	candidates := make([]scoring.Candidate, len(res.Hits))
	for i, h := range res.Hits {
		candidates[i] = scoring.Candidate{IndexScore: h.Score, Record: h.Record}
	}
	in := scoring.InputFromCriteria(set)
	if s.cities != nil {
		scoring.EnrichLocations(&in, s.cities.Coordinates)
	}
	scored := scoring.ScoreResults(in, candidates, scoring.Options{})

	return RankedResult{
		TookMS:        res.TookMS,
		Total:         res.Total,
		MaxIndexScore: res.MaxScore,
		Persons:       scored,
		ScrollID:      res.ScrollID,
	}, nil
}

func (s *Service) pageSize(requested int) int {
	if requested <= 0 {
		return s.limits.DefaultPageSize
	}
	if requested > s.limits.MaxPageSize {
		return s.limits.MaxPageSize
	}
	return requested
}

// AggRequest buckets the candidate set of the criteria along one or more
// dimensions. Empty criteria aggregate the whole registry.
type AggRequest struct {
	Criteria   criterion.Input
	Dimensions []string
	Size       int
	AfterKey   map[string]any
}

// AggResult is one aggregation page.
type AggResult struct {
	Total       int64
	Cardinality int64
	Buckets     []index.Bucket
	AfterKey    map[string]any
}

// Aggregate executes a bucketing query over the candidate set.
func (s *Service) Aggregate(ctx context.Context, req AggRequest) (AggResult, error) {
	set, err := criterion.NewSet(req.Criteria)
	if err != nil {
		return AggResult{}, err
	}

	q, err := blocking.BuildAggregation(set, req.Dimensions, req.Size, req.AfterKey)
	if err != nil {
		return AggResult{}, err
	}

	res, err := s.searcher.Search(ctx, q)
	if err != nil {
		s.logger.Warn("index aggregation degraded to empty result", zap.Error(err))
		res = index.Empty()
	}

	return AggResult{
		Total:       res.Total,
		Cardinality: res.Cardinality,
		Buckets:     res.Buckets,
		AfterKey:    res.AfterKey,
	}, nil
}
