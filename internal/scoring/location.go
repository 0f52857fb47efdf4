package scoring

import (
	"math"

	"github.com/vitalregistry/linkage/internal/domain/person"
)

const (
	blindLocationScore = 0.8 // sub-field present on one side only
	deptMismatchScore  = 0.2 // department codes differ
	sexMismatchScore   = 0.5
	geoHalfDistanceKM  = 100 // distance at which the geo score halves
)

// scoreSex compares declared sexes. Missing data on either side is blind.
func scoreSex(in, cand string) float64 {
	if in == "" || cand == "" {
		return 1
	}
	if in == cand {
		return 1
	}
	return sexMismatchScore
}

// LocationInput is the location half of an identity description.
type LocationInput struct {
	City       []string
	Department string
	Country    string
	Latitude   *float64
	Longitude  *float64
}

// Empty reports whether no location field is set.
func (l LocationInput) Empty() bool {
	return len(l.City) == 0 && l.Department == "" && l.Country == "" &&
		(l.Latitude == nil || l.Longitude == nil)
}

// GeoHint supplies coordinates for a city name. Used to let the geo
// sub-score fire on city-only inputs via the reference dictionary.
type GeoHint func(city string) (lat, lon float64, ok bool)

// EnrichLocations fills missing coordinates of both event locations from the
// hint. Explicit geo points always win over dictionary lookups.
func EnrichLocations(in *Input, hint GeoHint) {
	enrichLocation(&in.BirthLocation, hint)
	enrichLocation(&in.DeathLocation, hint)
}

func enrichLocation(l *LocationInput, hint GeoHint) {
	if l.Latitude != nil && l.Longitude != nil {
		return
	}
	for _, city := range l.City {
		if lat, lon, ok := hint(city); ok {
			l.Latitude, l.Longitude = &lat, &lon
			return
		}
	}
}

// scoreLocation independently scores city, department and country, plus the
// great-circle distance when both sides carry coordinates, and combines by
// product. A sub-field absent from both sides is neutral; a sub-field with no
// counterpart on the other side is blind.
func scoreLocation(in LocationInput, cand person.Location) float64 {
	s := scoreCityList(in.City, cand.City)
	s *= scoreExactCode(in.Department, cand.Department)
	s *= scoreFuzzyField(in.Country, cand.Country)
	if in.Latitude != nil && in.Longitude != nil && cand.HasCoordinates() {
		s *= geoScore(*in.Latitude, *in.Longitude, *cand.Latitude, *cand.Longitude)
	}
	return round2(s)
}

// scoreCityList takes the best similarity across the candidate's city history.
func scoreCityList(in, cand []string) float64 {
	switch {
	case len(in) == 0 && len(cand) == 0:
		return 1
	case len(in) == 0 || len(cand) == 0:
		return blindLocationScore
	}
	best := 0.0
	for _, c := range cand {
		if s := scoreTokenSeq(in, []string{c}); s > best {
			best = s
		}
	}
	return best
}

func scoreExactCode(in, cand string) float64 {
	switch {
	case in == "" && cand == "":
		return 1
	case in == "" || cand == "":
		return blindLocationScore
	case in == cand:
		return 1
	}
	return deptMismatchScore
}

func scoreFuzzyField(in string, cand []string) float64 {
	switch {
	case in == "" && len(cand) == 0:
		return 1
	case in == "" || len(cand) == 0:
		return blindLocationScore
	}
	best := 0.0
	for _, c := range cand {
		if s := levSimilarity(in, c); s > best {
			best = s
		}
	}
	return best
}

// geoScore converts the haversine great-circle distance in km to
// max(0, 100/(100+distance)), rounded.
func geoScore(lat1, lon1, lat2, lon2 float64) float64 {
	d := haversineKM(lat1, lon1, lat2, lon2)
	return round2(math.Max(0, geoHalfDistanceKM/(geoHalfDistanceKM+d)))
}

const earthRadiusKM = 6371

func haversineKM(lat1, lon1, lat2, lon2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLon := (lon2 - lon1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKM * math.Asin(math.Sqrt(a))
}
