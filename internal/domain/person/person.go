// Package person holds the denormalized identity record returned by the
// registry index, plus helpers for its 8-digit date encoding.
package person

// Record is a denormalized identity as stored in the registry index.
type Record struct {
	ID     string  `json:"id"`
	Name   Name    `json:"name"`
	Sex    string  `json:"sex"` // "M", "F" or empty
	Birth  Event   `json:"birth"`
	Death  Event   `json:"death"`
	Source string  `json:"source"`     // provenance: source file
	Line   int     `json:"sourceLine"` // provenance: line number
	Score  float64 `json:"score"`      // overwritten with the final linkage score
}

// Name holds tokenized name parts. Multi-valued inputs are normalized to
// token slices at ingestion so scoring handles a single shape.
type Name struct {
	First []string `json:"first"`
	Last  []string `json:"last"`
	Legal []string `json:"legal,omitempty"` // legal/maiden name
}

// Empty reports whether no name part is present.
func (n Name) Empty() bool {
	return len(n.First) == 0 && len(n.Last) == 0 && len(n.Legal) == 0
}

// Event is a birth or death fact.
type Event struct {
	Date     string   `json:"date"` // YYYYMMDD, "0000" segments mean unknown
	Location Location `json:"location"`
}

// Location describes a birth or death place.
type Location struct {
	City       []string `json:"city,omitempty"` // current name plus historical names
	INSEECode  []string `json:"inseeCode,omitempty"`
	Department string   `json:"department,omitempty"`
	Country    []string `json:"country,omitempty"`
	Latitude   *float64 `json:"latitude,omitempty"`
	Longitude  *float64 `json:"longitude,omitempty"`
}

// Empty reports whether no location field is present.
func (l Location) Empty() bool {
	return len(l.City) == 0 && len(l.INSEECode) == 0 && l.Department == "" &&
		len(l.Country) == 0 && l.Latitude == nil && l.Longitude == nil
}

// HasCoordinates reports whether both latitude and longitude are set.
func (l Location) HasCoordinates() bool {
	return l.Latitude != nil && l.Longitude != nil
}
