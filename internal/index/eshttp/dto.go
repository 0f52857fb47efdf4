package eshttp

import (
	"encoding/json"

	"github.com/vitalregistry/linkage/internal/domain/person"
	"github.com/vitalregistry/linkage/internal/index"
)

// searchResponse mirrors the index's _search reply.
type searchResponse struct {
	Took     int64  `json:"took"`
	ScrollID string `json:"_scroll_id"`
	Hits     struct {
		Total struct {
			Value int64 `json:"value"`
		} `json:"total"`
		MaxScore float64 `json:"max_score"`
		Hits     []struct {
			ID     string          `json:"_id"`
			Score  float64         `json:"_score"`
			Source json.RawMessage `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
	Aggregations map[string]aggResponse `json:"aggregations"`
}

type aggResponse struct {
	Buckets  []bucketResponse `json:"buckets"`
	AfterKey map[string]any   `json:"after_key"`
	Value    int64            `json:"value"`
}

type bucketResponse struct {
	Key      json.RawMessage `json:"key"`
	KeyAsStr string          `json:"key_as_string"`
	DocCount int64           `json:"doc_count"`
}

// sourceRecord is the stored shape of one registry document. Multi-valued
// fields arrive either as a scalar or a list; they normalize to token slices.
type sourceRecord struct {
	Name struct {
		First stringList `json:"first"`
		Last  stringList `json:"last"`
		Legal stringList `json:"legal"`
	} `json:"name"`
	Sex   string      `json:"sex"`
	Birth sourceEvent `json:"birth"`
	Death sourceEvent `json:"death"`
	Src   string      `json:"source"`
	Line  int         `json:"sourceLine"`
}

type sourceEvent struct {
	Date     string `json:"date"`
	Location struct {
		City       stringList `json:"city"`
		INSEECode  stringList `json:"code"`
		Department string     `json:"department"`
		Country    stringList `json:"country"`
		Latitude   *float64   `json:"latitude"`
		Longitude  *float64   `json:"longitude"`
	} `json:"location"`
}

// stringList accepts "x" and ["x","y"] alike.
type stringList []string

func (s *stringList) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '[' {
		var list []string
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		*s = list
		return nil
	}
	var single string
	if err := json.Unmarshal(data, &single); err != nil {
		return err
	}
	if single != "" {
		*s = []string{single}
	}
	return nil
}

func (r searchResponse) toResult() index.Result {
	out := index.Result{
		TookMS:   r.Took,
		Total:    r.Hits.Total.Value,
		MaxScore: r.Hits.MaxScore,
		ScrollID: r.ScrollID,
	}

	for _, h := range r.Hits.Hits {
		var src sourceRecord
		if err := json.Unmarshal(h.Source, &src); err != nil {
			continue
		}
		out.Hits = append(out.Hits, index.Hit{Score: h.Score, Record: src.toRecord(h.ID)})
	}

	for name, agg := range r.Aggregations {
		if name == "cardinality" {
			out.Cardinality = agg.Value
			continue
		}
		if len(agg.AfterKey) > 0 {
			out.AfterKey = agg.AfterKey
		}
		for _, b := range agg.Buckets {
			key := map[string]any{}
			if b.KeyAsStr != "" {
				key[name] = b.KeyAsStr
			} else if len(b.Key) > 0 {
				var v any
				if err := json.Unmarshal(b.Key, &v); err == nil {
					if m, ok := v.(map[string]any); ok {
						key = m
					} else {
						key[name] = v
					}
				}
			}
			out.Buckets = append(out.Buckets, index.Bucket{Key: key, DocCount: b.DocCount})
		}
	}
	return out
}

func (s sourceRecord) toRecord(id string) person.Record {
	rec := person.Record{
		ID:     id,
		Sex:    s.Sex,
		Source: s.Src,
		Line:   s.Line,
	}
	rec.Name = person.Name{First: s.Name.First, Last: s.Name.Last, Legal: s.Name.Legal}
	rec.Birth = s.Birth.toEvent()
	rec.Death = s.Death.toEvent()
	return rec
}

func (e sourceEvent) toEvent() person.Event {
	return person.Event{
		Date: e.Date,
		Location: person.Location{
			City:       e.Location.City,
			INSEECode:  e.Location.INSEECode,
			Department: e.Location.Department,
			Country:    e.Location.Country,
			Latitude:   e.Location.Latitude,
			Longitude:  e.Location.Longitude,
		},
	}
}
