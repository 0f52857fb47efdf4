// Package records is the delimited-record codec of the bulk pipeline:
// charset-aware decoding, csv parsing under a caller-declared field mapping,
// row counting, and the result output encodings.
package records

import (
	"fmt"

	"github.com/vitalregistry/linkage/internal/domain"
	"github.com/vitalregistry/linkage/internal/domain/criterion"
)

// Mapping declares how an uploaded file maps onto search criteria: the cell
// separator, the character set, whether a header row leads the file, the
// date format of date columns, and one criterion kind per column (empty
// skips the column).
type Mapping struct {
	Separator  rune     `json:"separator"`
	Charset    string   `json:"charset"`
	Header     bool     `json:"header"`
	DateFormat string   `json:"dateFormat"`
	Fields     []string `json:"fields"`
}

// Validate collects every mapping problem at once.
func (m Mapping) Validate() error {
	verrs := &domain.ValidationErrors{}
	mapped := 0
	for i, f := range m.Fields {
		if f == "" {
			continue
		}
		if !criterion.Known(criterion.Kind(f)) {
			verrs.Add(fmt.Sprintf("fields[%d]", i), fmt.Sprintf("unknown criterion %q", f))
			continue
		}
		mapped++
	}
	if mapped == 0 {
		verrs.Add("fields", "at least one column must map to a criterion")
	}
	if _, err := charsetDecoder(m.Charset); err != nil {
		verrs.Add("charset", err.Error())
	}
	if verrs.HasAny() {
		return verrs
	}
	return nil
}

func (m Mapping) separator() rune {
	if m.Separator == 0 {
		return ';'
	}
	return m.Separator
}

// CriteriaInput turns one parsed row into the raw criteria input for the
// matching engine.
func (m Mapping) CriteriaInput(row []string) criterion.Input {
	values := map[criterion.Kind][]string{}
	for i, f := range m.Fields {
		if f == "" || i >= len(row) || row[i] == "" {
			continue
		}
		kind := criterion.Kind(f)
		values[kind] = append(values[kind], row[i])
	}
	return criterion.Input{Values: values, DateFormat: m.DateFormat}
}
