// Package criterion normalizes one searchable attribute of an identity
// description. A fixed registry table maps each criterion kind to its
// validation, transform and clause-building behavior; kinds are dispatched
// by iterating that table explicitly, never by runtime introspection.
package criterion

import (
	"strings"

	"github.com/vitalregistry/linkage/internal/domain"
	"github.com/vitalregistry/linkage/internal/domain/query"
)

// Kind names one searchable attribute.
type Kind string

// Criterion kinds.
const (
	KindID              Kind = "id"
	KindFullText        Kind = "fullText"
	KindFirstName       Kind = "firstName"
	KindLastName        Kind = "lastName"
	KindLegalName       Kind = "legalName"
	KindSex             Kind = "sex"
	KindBirthDate       Kind = "birthDate"
	KindBirthCity       Kind = "birthCity"
	KindBirthDepartment Kind = "birthDepartment"
	KindBirthCountry    Kind = "birthCountry"
	KindBirthGeoPoint   Kind = "birthGeoPoint"
	KindDeathDate       Kind = "deathDate"
	KindDeathCity       Kind = "deathCity"
	KindDeathDepartment Kind = "deathDepartment"
	KindDeathCountry    Kind = "deathCountry"
	KindDeathAge        Kind = "deathAge"
)

// Criterion is one normalized searchable attribute. It exists only for the
// duration of one request and is built fresh per search.
type Criterion struct {
	Kind   Kind
	Values []string // always a token sequence, possibly length 1
	Fuzzy  bool
}

// Value returns the first value, or empty.
func (c Criterion) Value() string {
	if len(c.Values) == 0 {
		return ""
	}
	return c.Values[0]
}

// Present reports whether the criterion carries a non-empty value.
func (c Criterion) Present() bool {
	for _, v := range c.Values {
		if v != "" {
			return true
		}
	}
	return false
}

// Set is the normalized criteria of one search request.
type Set struct {
	criteria   []Criterion
	dateFormat string
}

// Criteria returns the criteria in registry order.
func (s Set) Criteria() []Criterion { return s.criteria }

// DateFormat returns the caller-declared input date format, empty for the
// native YYYYMMDD encoding.
func (s Set) DateFormat() string { return s.dateFormat }

// Get returns the criterion of the given kind.
func (s Set) Get(kind Kind) (Criterion, bool) {
	for _, c := range s.criteria {
		if c.Kind == kind {
			return c, true
		}
	}
	return Criterion{}, false
}

// Has reports whether a present criterion of the given kind exists.
func (s Set) Has(kind Kind) bool {
	c, ok := s.Get(kind)
	return ok && c.Present()
}

// Empty reports whether the set has no present criterion.
func (s Set) Empty() bool {
	for _, c := range s.criteria {
		if c.Present() {
			return false
		}
	}
	return true
}

// Input is the raw, unvalidated request surface for building a Set.
type Input struct {
	Values     map[Kind][]string
	Fuzzy      bool
	DateFormat string // format of date values, e.g. "dd/MM/yyyy"; empty = YYYYMMDD
}

// NewSet validates and transforms the raw input into a Set. Every invalid
// value is collected so the caller sees all problems in one response; the
// returned error is a *domain.ValidationErrors when any value is rejected.
func NewSet(in Input) (Set, error) {
	verrs := &domain.ValidationErrors{}
	set := Set{dateFormat: in.DateFormat}

	for _, kind := range registryOrder {
		raw, ok := in.Values[kind]
		if !ok {
			continue
		}
		spec := registry[kind]

		values := spec.transform(raw, in)
		c := Criterion{Kind: kind, Values: values, Fuzzy: in.Fuzzy && spec.fuzzyAllowed}
		if !c.Present() {
			continue
		}
		if reason := spec.validate(values, in); reason != "" {
			verrs.Add(string(kind), reason)
			continue
		}
		set.criteria = append(set.criteria, c)
	}

	for kind := range in.Values {
		if _, known := registry[kind]; !known {
			verrs.Add(string(kind), "unknown criterion")
		}
	}

	if verrs.HasAny() {
		return Set{}, verrs
	}
	return set, nil
}

// Clause builds the default independent clause for one criterion via the
// registry table.
func Clause(c Criterion) query.Clause {
	s := registry[c.Kind]
	return s.clause(s.field, c)
}

// FieldFor maps a criterion kind to its physical index field.
func FieldFor(kind Kind) string {
	return registry[kind].field
}

// Known reports whether the kind exists in the registry table.
func Known(kind Kind) bool {
	_, ok := registry[kind]
	return ok
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func normalizeDates(values []string, in Input) []string {
	out := make([]string, 0, len(values))
	for _, v := range trimAll(values) {
		if expr, err := ParseDateExpr(v, in.DateFormat); err == nil {
			out = append(out, expr.Canonical())
		} else {
			// left as-is; validation reports it
			out = append(out, v)
		}
	}
	return out
}

func validDates(values []string, in Input) string {
	for _, v := range values {
		if _, err := ParseDateExpr(v, ""); err != nil {
			return "not a date, date range or date bound"
		}
	}
	return ""
}

func normalizeSex(values []string, _ Input) []string {
	out := make([]string, 0, len(values))
	for _, v := range trimAll(values) {
		s := strings.ToUpper(v)
		switch s {
		case "H", "HOMME", "MALE":
			s = "M"
		case "FEMME", "FEMALE":
			s = "F"
		}
		out = append(out, s)
	}
	return out
}

func validSex(values []string, _ Input) string {
	for _, v := range values {
		if v != "M" && v != "F" {
			return "must be M or F"
		}
	}
	return ""
}

func validGeoPoint(values []string, _ Input) string {
	for _, v := range values {
		if _, err := ParseGeoPoint(v); err != nil {
			return "must be \"lat,lon\" decimal degrees"
		}
	}
	return ""
}

func validAge(values []string, _ Input) string {
	for _, v := range values {
		for _, r := range v {
			if (r < '0' || r > '9') && r != '-' && r != '<' && r != '>' {
				return "must be an age or age range"
			}
		}
	}
	return ""
}
