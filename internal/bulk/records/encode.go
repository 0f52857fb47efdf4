package records

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/vitalregistry/linkage/internal/domain/criterion"
	"github.com/vitalregistry/linkage/internal/domain/person"
)

// Match is one surviving candidate attached to an input row.
type Match struct {
	Record person.Record `json:"record"`
	Score  float64       `json:"score"`
	Vector []float64     `json:"vector"`
}

// RowResult is the outcome of one input row: the row itself, its surviving
// matches (empty when nothing scored above threshold), and a per-row error
// when the index lookup failed.
type RowResult struct {
	Line    int64    `json:"line"`
	Input   []string `json:"input"`
	Matches []Match  `json:"matches,omitempty"`
	Err     string   `json:"error,omitempty"`
}

// Best returns the highest-scoring match, false when the row is unmatched.
func (r RowResult) Best() (Match, bool) {
	if len(r.Matches) == 0 {
		return Match{}, false
	}
	return r.Matches[0], true
}

// WriteJSONL appends one result as a self-describing JSON line.
func WriteJSONL(w io.Writer, row RowResult) error {
	raw, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("encode result row: %w", err)
	}
	raw = append(raw, '\n')
	if _, err := w.Write(raw); err != nil {
		return fmt.Errorf("write result row: %w", err)
	}
	return nil
}

// ReadJSONL streams results back out of a jsonl artifact.
func ReadJSONL(r io.Reader, fn func(RowResult) error) error {
	dec := json.NewDecoder(r)
	for {
		var row RowResult
		if err := dec.Decode(&row); err == io.EOF {
			return nil
		} else if err != nil {
			return fmt.Errorf("decode result row: %w", err)
		}
		if err := fn(row); err != nil {
			return err
		}
	}
}

// matchColumns are the flat-table columns describing the best match.
var matchColumns = []string{
	"id", "firstName", "lastName", "legalName", "sex",
	"birthDate", "birthCity", "birthDepartment", "birthCountry",
	"deathDate", "deathCity", "deathDepartment", "deathCountry",
	"score",
}

// matchValue extracts one flat-table column from a matched record.
func matchValue(m Match, column string) string {
	rec := m.Record
	switch column {
	case "id":
		return rec.ID
	case "firstName":
		return strings.Join(rec.Name.First, " ")
	case "lastName":
		return strings.Join(rec.Name.Last, " ")
	case "legalName":
		return strings.Join(rec.Name.Legal, " ")
	case "sex":
		return rec.Sex
	case "birthDate":
		return rec.Birth.Date
	case "birthCity":
		return strings.Join(rec.Birth.Location.City, " ")
	case "birthDepartment":
		return rec.Birth.Location.Department
	case "birthCountry":
		return strings.Join(rec.Birth.Location.Country, " ")
	case "deathDate":
		return rec.Death.Date
	case "deathCity":
		return strings.Join(rec.Death.Location.City, " ")
	case "deathDepartment":
		return rec.Death.Location.Department
	case "deathCountry":
		return strings.Join(rec.Death.Location.Country, " ")
	case "score":
		return strconv.FormatFloat(m.Score, 'f', 2, 64)
	default:
		return ""
	}
}

// CSVEncoder flattens results into a delimited table: the input columns
// followed by the best match's columns, or, in ordering mode, each input
// column interleaved with its matched counterpart for side-by-side review.
type CSVEncoder struct {
	w       *csv.Writer
	mapping Mapping
	order   bool
	wrote   bool
}

// NewCSVEncoder creates a flat-table encoder. ordering interleaves columns.
func NewCSVEncoder(w io.Writer, m Mapping, ordering bool) *CSVEncoder {
	cw := csv.NewWriter(w)
	cw.Comma = m.separator()
	return &CSVEncoder{w: cw, mapping: m, order: ordering}
}

// Write appends one result row, emitting the header row first.
func (e *CSVEncoder) Write(row RowResult) error {
	if !e.wrote {
		if err := e.w.Write(e.headerRow(len(row.Input))); err != nil {
			return fmt.Errorf("write csv header: %w", err)
		}
		e.wrote = true
	}
	if err := e.w.Write(e.dataRow(row)); err != nil {
		return fmt.Errorf("write csv row: %w", err)
	}
	return nil
}

// Flush drains buffered rows to the underlying writer.
func (e *CSVEncoder) Flush() error {
	e.w.Flush()
	return e.w.Error()
}

func (e *CSVEncoder) headerRow(width int) []string {
	inputs := make([]string, width)
	for i := range inputs {
		if i < len(e.mapping.Fields) && e.mapping.Fields[i] != "" {
			inputs[i] = e.mapping.Fields[i]
		} else {
			inputs[i] = fmt.Sprintf("col%d", i)
		}
	}
	if !e.order {
		out := append([]string{}, inputs...)
		for _, c := range matchColumns {
			out = append(out, "match."+c)
		}
		return out
	}

	var out []string
	for i, name := range inputs {
		out = append(out, name)
		if c := e.counterpart(i); c != "" {
			out = append(out, "match."+c)
		}
	}
	return append(out, "match.score")
}

func (e *CSVEncoder) dataRow(row RowResult) []string {
	best, _ := row.Best()
	if !e.order {
		out := append([]string{}, row.Input...)
		for _, c := range matchColumns {
			out = append(out, matchValue(best, c))
		}
		return out
	}

	var out []string
	for i, cell := range row.Input {
		out = append(out, cell)
		if c := e.counterpart(i); c != "" {
			out = append(out, matchValue(best, c))
		}
	}
	return append(out, matchValue(best, "score"))
}

// counterpart maps an input column to the matched-output column shown next
// to it in ordering mode.
func (e *CSVEncoder) counterpart(i int) string {
	if i >= len(e.mapping.Fields) || e.mapping.Fields[i] == "" {
		return ""
	}
	kind := criterion.Kind(e.mapping.Fields[i])
	for _, c := range matchColumns {
		if c == string(kind) {
			return c
		}
	}
	return ""
}
