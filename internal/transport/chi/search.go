package chi

import (
	"encoding/json"
	"net/http"

	"github.com/vitalregistry/linkage/internal/blocking"
	"github.com/vitalregistry/linkage/internal/domain/criterion"
	"github.com/vitalregistry/linkage/internal/domain/person"
	"github.com/vitalregistry/linkage/internal/index"
	matchuc "github.com/vitalregistry/linkage/internal/usecase/match"
)

// stringList accepts a JSON scalar or list; callers send both shapes.
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*l = stringList{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*l = many
	return nil
}

type searchRequest struct {
	Criteria   map[string]stringList `json:"criteria"`
	Fuzzy      bool                  `json:"fuzzy"`
	DateFormat string                `json:"dateFormat"`
	Block      *blockRequest         `json:"block"`
	Sort       []sortRequest         `json:"sort"`
	Page       int                   `json:"page"`
	PageSize   int                   `json:"pageSize"`
	ScrollID   string                `json:"scrollId"`
}

type blockRequest struct {
	Scope            []string `json:"scope"`
	MinimumMatch     int      `json:"minimumMatch"`
	IncludeRemainder bool     `json:"includeRemainder"`
}

type sortRequest struct {
	Field     string `json:"field"`
	Direction string `json:"direction"`
}

func (r searchRequest) criteriaInput() criterion.Input {
	values := make(map[criterion.Kind][]string, len(r.Criteria))
	for name, vals := range r.Criteria {
		values[criterion.Kind(name)] = vals
	}
	return criterion.Input{Values: values, Fuzzy: r.Fuzzy, DateFormat: r.DateFormat}
}

func (r searchRequest) blockSpec() *blocking.BlockSpec {
	if r.Block == nil {
		return nil
	}
	spec := &blocking.BlockSpec{
		MinimumMatch:             r.Block.MinimumMatch,
		IncludeRemainderAsShould: r.Block.IncludeRemainder,
	}
	for _, name := range r.Block.Scope {
		spec.Scope = append(spec.Scope, criterion.Kind(name))
	}
	return spec
}

func (r searchRequest) sortSpecs() []blocking.SortSpec {
	specs := make([]blocking.SortSpec, len(r.Sort))
	for i, s := range r.Sort {
		specs[i] = blocking.SortSpec{Field: s.Field, Direction: s.Direction}
	}
	return specs
}

type personResponse struct {
	person.Record
	ScoreVector []float64 `json:"scoreVector"`
}

type searchResponse struct {
	TookMS        int64            `json:"tookMs"`
	Total         int64            `json:"total"`
	MaxIndexScore float64          `json:"maxIndexScore"`
	ScrollID      string           `json:"scrollId,omitempty"`
	Persons       []personResponse `json:"persons"`
}

// Search handles POST /api/v1/search.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body: "+err.Error())
		return
	}

	ranked, err := s.match.Search(r.Context(), matchuc.Request{
		Criteria: req.criteriaInput(),
		Block:    req.blockSpec(),
		Sorts:    req.sortSpecs(),
		Page:     req.Page,
		PageSize: req.PageSize,
		ScrollID: req.ScrollID,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	persons := make([]personResponse, len(ranked.Persons))
	for i, p := range ranked.Persons {
		persons[i] = personResponse{Record: p.Record, ScoreVector: p.Vector.AsSlice()}
	}
	writeJSON(w, http.StatusOK, searchResponse{
		TookMS:        ranked.TookMS,
		Total:         ranked.Total,
		MaxIndexScore: ranked.MaxIndexScore,
		ScrollID:      ranked.ScrollID,
		Persons:       persons,
	})
}

type aggregateRequest struct {
	Criteria   map[string]stringList `json:"criteria"`
	Fuzzy      bool                  `json:"fuzzy"`
	DateFormat string                `json:"dateFormat"`
	Dimensions []string              `json:"dimensions"`
	Size       int                   `json:"size"`
	AfterKey   map[string]any        `json:"afterKey"`
}

type bucketResponse struct {
	Key      map[string]any `json:"key"`
	DocCount int64          `json:"docCount"`
}

type aggregateResponse struct {
	Total       int64            `json:"total"`
	Cardinality int64            `json:"cardinality"`
	Buckets     []bucketResponse `json:"buckets"`
	AfterKey    map[string]any   `json:"afterKey,omitempty"`
}

// Aggregate handles POST /api/v1/search/aggregate.
func (s *Server) Aggregate(w http.ResponseWriter, r *http.Request) {
	var req aggregateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body: "+err.Error())
		return
	}

	search := searchRequest{Criteria: req.Criteria, Fuzzy: req.Fuzzy, DateFormat: req.DateFormat}
	result, err := s.match.Aggregate(r.Context(), matchuc.AggRequest{
		Criteria:   search.criteriaInput(),
		Dimensions: req.Dimensions,
		Size:       req.Size,
		AfterKey:   req.AfterKey,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, aggregateResponse{
		Total:       result.Total,
		Cardinality: result.Cardinality,
		Buckets:     bucketsResponse(result.Buckets),
		AfterKey:    result.AfterKey,
	})
}

func bucketsResponse(buckets []index.Bucket) []bucketResponse {
	out := make([]bucketResponse, len(buckets))
	for i, b := range buckets {
		out[i] = bucketResponse{Key: b.Key, DocCount: b.DocCount}
	}
	return out
}
