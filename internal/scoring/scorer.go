// Package scoring ranks candidate identities against an input identity
// description with a deterministic multi-factor score. Sub-scores are
// computed in a fixed order (date, name, sex, location) and the running
// product is pruned early once it can no longer reach a usable final score.
package scoring

import (
	"math"
	"sort"

	"github.com/vitalregistry/linkage/internal/domain/criterion"
	"github.com/vitalregistry/linkage/internal/domain/person"
	"github.com/vitalregistry/linkage/internal/domain/score"
)

// DefaultPruneThreshold discards candidates whose partial score product
// guarantees an unusable final score.
const DefaultPruneThreshold = 0.3

// Options tunes one scoring run.
type Options struct {
	// DateFormat is the format of input date values, e.g. "dd/MM/yyyy".
	// Empty means the native YYYYMMDD encoding.
	DateFormat string
	// PruneThreshold overrides DefaultPruneThreshold when positive.
	PruneThreshold float64
}

func (o Options) threshold() float64 {
	if o.PruneThreshold > 0 {
		return o.PruneThreshold
	}
	return DefaultPruneThreshold
}

// Input is one identity description to link. Name and city values are token
// sequences; dates are in the caller's declared format.
type Input struct {
	FirstName     []string
	LastName      []string
	Sex           string
	BirthDate     string
	BirthLocation LocationInput
	DeathDate     string
	DeathLocation LocationInput
}

// InputFromCriteria projects a validated criteria set onto a scoring input.
func InputFromCriteria(set criterion.Set) Input {
	in := Input{}
	if c, ok := set.Get(criterion.KindFirstName); ok {
		in.FirstName = c.Values
	}
	if c, ok := set.Get(criterion.KindLastName); ok {
		in.LastName = c.Values
	}
	if c, ok := set.Get(criterion.KindSex); ok {
		in.Sex = c.Value()
	}
	if c, ok := set.Get(criterion.KindBirthDate); ok {
		in.BirthDate = c.Value()
	}
	if c, ok := set.Get(criterion.KindDeathDate); ok {
		in.DeathDate = c.Value()
	}
	if c, ok := set.Get(criterion.KindBirthCity); ok {
		in.BirthLocation.City = c.Values
	}
	if c, ok := set.Get(criterion.KindBirthDepartment); ok {
		in.BirthLocation.Department = c.Value()
	}
	if c, ok := set.Get(criterion.KindBirthCountry); ok {
		in.BirthLocation.Country = c.Value()
	}
	if c, ok := set.Get(criterion.KindBirthGeoPoint); ok {
		if pt, err := criterion.ParseGeoPoint(c.Value()); err == nil {
			in.BirthLocation.Latitude = &pt.Latitude
			in.BirthLocation.Longitude = &pt.Longitude
		}
	}
	if c, ok := set.Get(criterion.KindDeathCity); ok {
		in.DeathLocation.City = c.Values
	}
	if c, ok := set.Get(criterion.KindDeathDepartment); ok {
		in.DeathLocation.Department = c.Value()
	}
	if c, ok := set.Get(criterion.KindDeathCountry); ok {
		in.DeathLocation.Country = c.Value()
	}
	return in
}

// Score compares one input identity against one candidate record. It is a
// pure function: the same pair always yields the same vector.
//
// Sub-scores are computed date first, then name, sex and location; before
// each step the running product is checked against the prune threshold and
// computation stops early once the candidate cannot recover. A pruned vector
// reports final score 0 and records the stage that triggered the prune.
func Score(in Input, cand person.Record, opts Options) score.Vector {
	th := opts.threshold()
	v := score.Vector{}

	v.Date = round2(scoreDates(in, cand, opts.DateFormat))
	product := v.Date
	if product < th {
		v.PrunedAt = score.StageDate
		return v
	}

	v.Name = scoreName(in.FirstName, in.LastName, cand.Name)
	product *= v.Name
	if product < th {
		v.PrunedAt = score.StageName
		return v
	}

	v.Sex = scoreSex(in.Sex, cand.Sex)
	product *= v.Sex
	if product < th {
		v.PrunedAt = score.StageSex
		return v
	}

	v.Location = scoreLocations(in, cand)
	product *= v.Location
	if product < th {
		v.PrunedAt = score.StageLocation
		return v
	}

	v.Final = round2(product)
	return v
}

// scoreDates combines the birth and death date comparisons; an absent input
// date is neutral.
func scoreDates(in Input, cand person.Record, format string) float64 {
	s := scoreDate(canonicalDate(in.BirthDate, format), cand.Birth.Date)
	if in.DeathDate != "" {
		s *= scoreDate(canonicalDate(in.DeathDate, format), cand.Death.Date)
	}
	return s
}

// scoreLocations combines birth and death location comparisons; events with
// no input location are neutral.
func scoreLocations(in Input, cand person.Record) float64 {
	s := 1.0
	if !in.BirthLocation.Empty() {
		s *= scoreLocation(in.BirthLocation, cand.Birth.Location)
	}
	if !in.DeathLocation.Empty() {
		s *= scoreLocation(in.DeathLocation, cand.Death.Location)
	}
	return round2(s)
}

// canonicalDate normalizes a formatted input date to the 8-digit encoding so
// that format choice never changes the comparison result.
func canonicalDate(value, format string) string {
	if value == "" {
		return ""
	}
	expr, err := criterion.ParseDateExpr(value, format)
	if err != nil {
		return value
	}
	return expr.Canonical()
}

// Candidate pairs a raw index hit with its relevance score.
type Candidate struct {
	IndexScore float64
	Record     person.Record
}

// Scored is one ranked candidate with its full score vector.
type Scored struct {
	Record person.Record
	Vector score.Vector
}

// ScoreResults scores every candidate of one search, discards pruned and
// sub-threshold results, and re-sorts the survivors by final score
// descending (stable for ties). Each surviving record's score field is
// overwritten with the final linkage score; the index relevance score is
// kept in the vector, scaled to [0,1] against the best hit.
func ScoreResults(in Input, candidates []Candidate, opts Options) []Scored {
	maxIndex := 0.0
	for _, c := range candidates {
		if c.IndexScore > maxIndex {
			maxIndex = c.IndexScore
		}
	}

	th := opts.threshold()
	out := make([]Scored, 0, len(candidates))
	for _, c := range candidates {
		if c.IndexScore <= 0 {
			continue
		}
		v := Score(in, c.Record, opts)
		if v.Pruned() || v.Final < th {
			continue
		}
		v.Index = round2(c.IndexScore / maxIndex)
		rec := c.Record
		rec.Score = v.Final
		out = append(out, Scored{Record: rec, Vector: v})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Vector.Final > out[j].Vector.Final
	})
	return out
}

func round2(s float64) float64 {
	return math.Round(s*100) / 100
}
