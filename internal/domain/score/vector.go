// Package score holds the ordered multi-factor score vector produced by the
// scoring engine.
package score

// Stage identifies a scoring stage, in processing order.
type Stage int

// Scoring stages in the order they are computed.
const (
	StageNone Stage = iota // not pruned
	StageDate
	StageName
	StageSex
	StageLocation
)

func (s Stage) String() string {
	switch s {
	case StageDate:
		return "date"
	case StageName:
		return "name"
	case StageSex:
		return "sex"
	case StageLocation:
		return "location"
	default:
		return "none"
	}
}

// Vector is the fixed-length ordered score vector
// [final, location, sex, name, date, index], each entry in [0,1].
//
// The length never varies: stages a pruned candidate never reached stay
// zero, and PrunedAt records where scoring stopped.
type Vector struct {
	Final    float64 `json:"score"`
	Location float64 `json:"locationScore"`
	Sex      float64 `json:"sexScore"`
	Name     float64 `json:"nameScore"`
	Date     float64 `json:"dateScore"`
	Index    float64 `json:"indexScore"`

	PrunedAt Stage `json:"-"`
}

// Pruned reports whether scoring stopped early.
func (v Vector) Pruned() bool { return v.PrunedAt != StageNone }

// AsSlice returns the vector in its documented order.
func (v Vector) AsSlice() []float64 {
	return []float64{v.Final, v.Location, v.Sex, v.Name, v.Date, v.Index}
}
