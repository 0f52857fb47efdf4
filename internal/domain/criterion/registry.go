package criterion

import (
	"github.com/vitalregistry/linkage/internal/domain/query"
)

// spec binds one criterion kind to its physical field and behavior. Clause
// builders receive the resolved field instead of reading the registry back,
// so the table literal stays free of self-references.
type spec struct {
	field        string
	fuzzyAllowed bool
	validate     func(values []string, in Input) string // empty = valid
	transform    func(values []string, in Input) []string
	clause       func(field string, c Criterion) query.Clause
}

func passValidate([]string, Input) string { return "" }

func trimTransform(values []string, _ Input) []string { return trimAll(values) }

func matchClause(field string, c Criterion) query.Clause {
	return query.MatchClause{Field: field, Query: joined(c), Fuzzy: c.Fuzzy}
}

func termClause(field string, c Criterion) query.Clause {
	return query.TermClause{Field: field, Value: c.Value()}
}

// dateClause builds a range clause for range or bound expressions, otherwise
// an exact match on the 8-digit encoding.
func dateClause(field string, c Criterion) query.Clause {
	expr, err := ParseDateExpr(c.Value(), "")
	if err != nil {
		return query.MatchClause{Field: field, Query: c.Value()}
	}
	if r, ok := expr.RangeClause(field); ok {
		return r
	}
	return query.MatchClause{Field: field, Query: expr.Exact, Fuzzy: c.Fuzzy}
}

func geoClause(field string, c Criterion) query.Clause {
	pt, err := ParseGeoPoint(c.Value())
	if err != nil {
		return query.MatchClause{Field: field, Query: c.Value()}
	}
	return query.GeoDistanceClause{
		Field:      field,
		Latitude:   pt.Latitude,
		Longitude:  pt.Longitude,
		DistanceKM: defaultGeoRadiusKM,
	}
}

func ageClause(field string, c Criterion) query.Clause {
	expr, err := ParseDateExpr(c.Value(), "")
	if err == nil {
		if r, ok := expr.RangeClause(field); ok {
			return r
		}
	}
	return query.TermClause{Field: field, Value: c.Value()}
}

func idClause(_ string, c Criterion) query.Clause {
	return query.IDsClause{Values: c.Values}
}

const defaultGeoRadiusKM = 10

// registry is the fixed table of every supported criterion kind.
var registry = map[Kind]spec{
	KindID:              {field: "_id", validate: passValidate, transform: trimTransform, clause: idClause},
	KindFullText:        {field: "fullText", validate: passValidate, transform: trimTransform, clause: matchClause},
	KindFirstName:       {field: "name.first", fuzzyAllowed: true, validate: passValidate, transform: trimTransform, clause: matchClause},
	KindLastName:        {field: "name.last", fuzzyAllowed: true, validate: passValidate, transform: trimTransform, clause: matchClause},
	KindLegalName:       {field: "name.legal", fuzzyAllowed: true, validate: passValidate, transform: trimTransform, clause: matchClause},
	KindSex:             {field: "sex", validate: validSex, transform: normalizeSex, clause: termClause},
	KindBirthDate:       {field: "birth.date", fuzzyAllowed: true, validate: validDates, transform: normalizeDates, clause: dateClause},
	KindBirthCity:       {field: "birth.location.city", fuzzyAllowed: true, validate: passValidate, transform: trimTransform, clause: matchClause},
	KindBirthDepartment: {field: "birth.location.department", validate: passValidate, transform: trimTransform, clause: termClause},
	KindBirthCountry:    {field: "birth.location.country", fuzzyAllowed: true, validate: passValidate, transform: trimTransform, clause: matchClause},
	KindBirthGeoPoint:   {field: "birth.location.geo", validate: validGeoPoint, transform: trimTransform, clause: geoClause},
	KindDeathDate:       {field: "death.date", fuzzyAllowed: true, validate: validDates, transform: normalizeDates, clause: dateClause},
	KindDeathCity:       {field: "death.location.city", fuzzyAllowed: true, validate: passValidate, transform: trimTransform, clause: matchClause},
	KindDeathDepartment: {field: "death.location.department", validate: passValidate, transform: trimTransform, clause: termClause},
	KindDeathCountry:    {field: "death.location.country", fuzzyAllowed: true, validate: passValidate, transform: trimTransform, clause: matchClause},
	KindDeathAge:        {field: "death.age", validate: validAge, transform: trimTransform, clause: ageClause},
}

// registryOrder fixes the iteration order of the table: identity first, then
// names, then facts. Deterministic ordering keeps built queries reproducible.
var registryOrder = []Kind{
	KindID,
	KindFullText,
	KindFirstName,
	KindLastName,
	KindLegalName,
	KindSex,
	KindBirthDate,
	KindBirthCity,
	KindBirthDepartment,
	KindBirthCountry,
	KindBirthGeoPoint,
	KindDeathDate,
	KindDeathCity,
	KindDeathDepartment,
	KindDeathCountry,
	KindDeathAge,
}

func joined(c Criterion) string {
	if len(c.Values) == 1 {
		return c.Values[0]
	}
	out := ""
	for i, v := range c.Values {
		if i > 0 {
			out += " "
		}
		out += v
	}
	return out
}
