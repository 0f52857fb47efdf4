package match

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/vitalregistry/linkage/internal/domain"
	"github.com/vitalregistry/linkage/internal/domain/criterion"
	"github.com/vitalregistry/linkage/internal/domain/person"
	"github.com/vitalregistry/linkage/internal/domain/query"
	"github.com/vitalregistry/linkage/internal/index"
)

type stubSearcher struct {
	lastQuery query.Query
	searches  int
	scrolled  string
	result    index.Result
	err       error
}

func (s *stubSearcher) Search(_ context.Context, q query.Query) (index.Result, error) {
	s.searches++
	s.lastQuery = q
	return s.result, s.err
}

func (s *stubSearcher) Scroll(_ context.Context, id string, _ time.Duration) (index.Result, error) {
	s.scrolled = id
	return s.result, s.err
}

func pompidouHit(id string, score float64) index.Hit {
	return index.Hit{
		Score: score,
		Record: person.Record{
			ID:    id,
			Name:  person.Name{First: []string{"Georges"}, Last: []string{"Pompidou"}},
			Sex:   "M",
			Birth: person.Event{Date: "19691101"},
		},
	}
}

func pompidouCriteria() criterion.Input {
	return criterion.Input{Values: map[criterion.Kind][]string{
		criterion.KindFirstName: {"georges"},
		criterion.KindLastName:  {"pompidou"},
		criterion.KindBirthDate: {"19691101"},
	}}
}

func TestSearch_RanksCandidates(t *testing.T) {
	searcher := &stubSearcher{result: index.Result{
		Total:    2,
		MaxScore: 12,
		Hits:     []index.Hit{pompidouHit("weak", 2), pompidouHit("strong", 12)},
	}}
	searcher.result.Hits[0].Record.Name.Last = []string{"Dupont"}

	svc := New(searcher, Limits{}, nil)
	got, err := svc.Search(context.Background(), Request{Criteria: pompidouCriteria()})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if got.Total != 2 || got.MaxIndexScore != 12 {
		t.Errorf("result header = %+v", got)
	}
	if len(got.Persons) == 0 || got.Persons[0].Record.ID != "strong" {
		t.Fatalf("ranking = %+v", got.Persons)
	}
	if got.Persons[0].Vector.Final != 1 {
		t.Errorf("exact match final = %v, want 1", got.Persons[0].Vector.Final)
	}
	if searcher.lastQuery.Size != 20 {
		t.Errorf("default page size = %d, want 20", searcher.lastQuery.Size)
	}
}

func TestSearch_PageSizeClampedAndOffset(t *testing.T) {
	searcher := &stubSearcher{}
	svc := New(searcher, Limits{MaxPageSize: 100}, nil)

	if _, err := svc.Search(context.Background(), Request{
		Criteria: pompidouCriteria(),
		Page:     2,
		PageSize: 5000,
	}); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if searcher.lastQuery.Size != 100 {
		t.Errorf("size = %d, want clamped 100", searcher.lastQuery.Size)
	}
	if searcher.lastQuery.From != 200 {
		t.Errorf("from = %d, want 200", searcher.lastQuery.From)
	}
}

func TestSearch_ValidationFailsBeforeIndex(t *testing.T) {
	searcher := &stubSearcher{}
	svc := New(searcher, Limits{}, nil)

	_, err := svc.Search(context.Background(), Request{Criteria: criterion.Input{
		Values: map[criterion.Kind][]string{criterion.KindSex: {"X"}},
	}})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("err = %v, want validation error", err)
	}
	if searcher.searches != 0 {
		t.Errorf("index was queried despite invalid criteria")
	}
}

func TestSearch_UpstreamDegradesToEmptyPage(t *testing.T) {
	searcher := &stubSearcher{err: fmt.Errorf("%w: connection refused", domain.ErrUpstream)}
	svc := New(searcher, Limits{}, nil)

	got, err := svc.Search(context.Background(), Request{Criteria: pompidouCriteria()})
	if err != nil {
		t.Fatalf("index trouble must not fail the request: %v", err)
	}
	if got.Total != 0 || len(got.Persons) != 0 {
		t.Errorf("degraded result = %+v, want empty", got)
	}
}

func TestSearch_ScrollContinuation(t *testing.T) {
	searcher := &stubSearcher{result: index.Result{ScrollID: "cursor-2"}}
	svc := New(searcher, Limits{}, nil)

	got, err := svc.Search(context.Background(), Request{
		Criteria: pompidouCriteria(),
		ScrollID: "cursor-1",
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if searcher.scrolled != "cursor-1" || searcher.searches != 0 {
		t.Errorf("scroll continuation hit the wrong endpoint: %+v", searcher)
	}
	if got.ScrollID != "cursor-2" {
		t.Errorf("next cursor = %q", got.ScrollID)
	}
}

func TestAggregate(t *testing.T) {
	searcher := &stubSearcher{result: index.Result{
		Total:       40,
		Cardinality: 7,
		Buckets:     []index.Bucket{{Key: map[string]any{"sex": "M"}, DocCount: 30}},
	}}
	svc := New(searcher, Limits{}, nil)

	got, err := svc.Aggregate(context.Background(), AggRequest{
		Criteria:   pompidouCriteria(),
		Dimensions: []string{"sex"},
		Size:       10,
	})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if got.Cardinality != 7 || len(got.Buckets) != 1 {
		t.Errorf("result = %+v", got)
	}
	if searcher.lastQuery.Size != 0 {
		t.Errorf("aggregation must not fetch hits, size = %d", searcher.lastQuery.Size)
	}
	if _, ok := searcher.lastQuery.Aggs["sex"]; !ok {
		t.Errorf("missing dimension aggregation: %v", searcher.lastQuery.Aggs)
	}

	if _, err := svc.Aggregate(context.Background(), AggRequest{
		Dimensions: []string{"shoeSize"},
	}); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("unknown dimension = %v, want validation error", err)
	}
}
