package eshttp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/vitalregistry/linkage/internal/domain"
	"github.com/vitalregistry/linkage/internal/domain/query"
)

const searchReply = `{
	"took": 7,
	"_scroll_id": "cursor-abc",
	"hits": {
		"total": {"value": 2},
		"max_score": 11.5,
		"hits": [
			{
				"_id": "reg-1",
				"_score": 11.5,
				"_source": {
					"name": {"first": "georges", "last": ["pompidou", "pompidoux"]},
					"sex": "M",
					"birth": {
						"date": "19110705",
						"location": {"city": "montboudif", "code": "15120", "department": "15", "country": "france"}
					},
					"death": {"date": "19740402", "location": {"city": ["paris"]}}
				}
			},
			{
				"_id": "reg-2",
				"_score": 3.2,
				"_source": {"name": {"first": ["jean"], "last": "dupont"}, "sex": "M"}
			}
		]
	}
}`

func newClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := New(Config{BaseURL: srv.URL, Index: "registry", Timeout: 2 * time.Second}, zap.NewNop())
	return c, srv
}

func TestSearch_NormalizesScalarAndListFields(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	c, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(searchReply))
	})

	q := query.Query{Root: query.TermClause{Field: "sex", Value: "M"}, Size: 10}
	res, err := c.Search(context.Background(), q)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if gotPath != "/registry/_search" {
		t.Fatalf("path = %q", gotPath)
	}
	if _, ok := gotBody["query"]; !ok {
		t.Fatalf("request body missing query: %v", gotBody)
	}

	if res.TookMS != 7 || res.Total != 2 || res.MaxScore != 11.5 || res.ScrollID != "cursor-abc" {
		t.Fatalf("result header = %+v", res)
	}
	if len(res.Hits) != 2 {
		t.Fatalf("hits = %d", len(res.Hits))
	}

	rec := res.Hits[0].Record
	if rec.ID != "reg-1" {
		t.Errorf("id = %q", rec.ID)
	}
	// scalar "first" and list "last" both normalize to slices
	if len(rec.Name.First) != 1 || rec.Name.First[0] != "georges" {
		t.Errorf("first = %v", rec.Name.First)
	}
	if len(rec.Name.Last) != 2 || rec.Name.Last[1] != "pompidoux" {
		t.Errorf("last = %v", rec.Name.Last)
	}
	if rec.Birth.Date != "19110705" || rec.Birth.Location.Department != "15" {
		t.Errorf("birth = %+v", rec.Birth)
	}
	if len(rec.Death.Location.City) != 1 || rec.Death.Location.City[0] != "paris" {
		t.Errorf("death city = %v", rec.Death.Location.City)
	}
}

func TestSearch_UpstreamFailureIsSentinel(t *testing.T) {
	c, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"shard failure"}`, http.StatusInternalServerError)
	})

	_, err := c.Search(context.Background(), query.Query{Root: query.TermClause{Field: "sex", Value: "F"}})
	if !errors.Is(err, domain.ErrUpstream) {
		t.Fatalf("err = %v, want ErrUpstream", err)
	}
}

func TestScroll_SendsCursor(t *testing.T) {
	var gotBody map[string]any
	c, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/_search/scroll" {
			t.Errorf("path = %q", r.URL.Path)
		}
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		_, _ = w.Write([]byte(searchReply))
	})

	res, err := c.Scroll(context.Background(), "cursor-abc", time.Minute)
	if err != nil {
		t.Fatalf("Scroll: %v", err)
	}
	if gotBody["scroll_id"] != "cursor-abc" || gotBody["scroll"] != "60s" {
		t.Fatalf("scroll body = %v", gotBody)
	}
	if res.Total != 2 {
		t.Fatalf("total = %d", res.Total)
	}
}

func TestSearch_ParsesAggregations(t *testing.T) {
	c, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"took": 3,
			"hits": {"total": {"value": 40}, "hits": []},
			"aggregations": {
				"cardinality": {"value": 12},
				"sex": {"buckets": [
					{"key": "M", "doc_count": 25},
					{"key": "F", "doc_count": 15}
				]}
			}
		}`))
	})

	res, err := c.Search(context.Background(), query.Query{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if res.Cardinality != 12 {
		t.Errorf("cardinality = %d", res.Cardinality)
	}
	if len(res.Buckets) != 2 {
		t.Fatalf("buckets = %d", len(res.Buckets))
	}
	if res.Buckets[0].Key["sex"] != "M" || res.Buckets[0].DocCount != 25 {
		t.Errorf("bucket = %+v", res.Buckets[0])
	}
}

func TestPing(t *testing.T) {
	healthy, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	if err := healthy.Ping(context.Background()); err != nil {
		t.Fatalf("Ping healthy: %v", err)
	}

	down, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	if err := down.Ping(context.Background()); !errors.Is(err, domain.ErrUpstream) {
		t.Fatalf("Ping down err = %v, want ErrUpstream", err)
	}
}
