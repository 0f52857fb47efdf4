package blocking

import (
	"strings"

	"github.com/vitalregistry/linkage/internal/domain/criterion"
	"github.com/vitalregistry/linkage/internal/domain/query"
)

// SortSpec is one caller-supplied sort key.
type SortSpec struct {
	Field     string
	Direction string
}

// sortFields is the fixed table of caller-facing sort names to physical
// index fields. Anything outside the table is silently dropped.
var sortFields = map[string]string{
	"score":           "_score",
	"firstName":       criterion.FieldFor(criterion.KindFirstName),
	"lastName":        criterion.FieldFor(criterion.KindLastName),
	"sex":             criterion.FieldFor(criterion.KindSex),
	"birthDate":       criterion.FieldFor(criterion.KindBirthDate),
	"birthCity":       criterion.FieldFor(criterion.KindBirthCity),
	"birthDepartment": criterion.FieldFor(criterion.KindBirthDepartment),
	"birthCountry":    criterion.FieldFor(criterion.KindBirthCountry),
	"deathDate":       criterion.FieldFor(criterion.KindDeathDate),
	"deathCity":       criterion.FieldFor(criterion.KindDeathCity),
	"deathDepartment": criterion.FieldFor(criterion.KindDeathDepartment),
	"deathCountry":    criterion.FieldFor(criterion.KindDeathCountry),
	"deathAge":        criterion.FieldFor(criterion.KindDeathAge),
}

// BuildSort maps sort specs to index sort keys via the fixed field table.
// Unmapped fields and directions other than asc/desc are dropped.
func BuildSort(specs []SortSpec) []query.Sort {
	var out []query.Sort
	for _, s := range specs {
		field, ok := sortFields[s.Field]
		if !ok {
			continue
		}
		dir := strings.ToLower(strings.TrimSpace(s.Direction))
		if dir != "asc" && dir != "desc" {
			continue
		}
		out = append(out, query.Sort{Field: field, Direction: dir})
	}
	return out
}
