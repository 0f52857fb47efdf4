// Package refdata loads the read-only reference dictionaries used to enrich
// criteria: city name to INSEE code, department and coordinates. Loaded once
// at startup, never mutated afterwards.
package refdata

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// City is one reference dictionary entry.
type City struct {
	Name       string
	INSEECode  string
	Department string
	Country    string
	Latitude   float64
	Longitude  float64
	HasCoords  bool
}

// Cities is the city dictionary keyed by lowercased name.
type Cities struct {
	byName map[string]City
}

// Lookup returns the entry for a city name, case-insensitively.
func (c *Cities) Lookup(name string) (City, bool) {
	if c == nil {
		return City{}, false
	}
	entry, ok := c.byName[strings.ToLower(strings.TrimSpace(name))]
	return entry, ok
}

// Coordinates returns the coordinates of a city name, when known. Satisfies
// the geo hint contract of the scoring engine.
func (c *Cities) Coordinates(name string) (lat, lon float64, ok bool) {
	entry, ok := c.Lookup(name)
	if !ok || !entry.HasCoords {
		return 0, 0, false
	}
	return entry.Latitude, entry.Longitude, true
}

// Len returns the number of dictionary entries.
func (c *Cities) Len() int {
	if c == nil {
		return 0
	}
	return len(c.byName)
}

// LoadCities reads the dictionary from a CSV of
// name,insee,department,country,lat,lon. An empty path yields an empty
// dictionary, which disables enrichment.
func LoadCities(path string) (*Cities, error) {
	dict := &Cities{byName: map[string]City{}}
	if path == "" {
		return dict, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open city dictionary: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	for {
		row, err := r.Read()
		if err == io.EOF {
			return dict, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read city dictionary: %w", err)
		}
		if len(row) < 4 {
			continue
		}

		entry := City{
			Name:       strings.TrimSpace(row[0]),
			INSEECode:  strings.TrimSpace(row[1]),
			Department: strings.TrimSpace(row[2]),
			Country:    strings.TrimSpace(row[3]),
		}
		if entry.Name == "" {
			continue
		}
		if len(row) >= 6 {
			lat, latErr := strconv.ParseFloat(strings.TrimSpace(row[4]), 64)
			lon, lonErr := strconv.ParseFloat(strings.TrimSpace(row[5]), 64)
			if latErr == nil && lonErr == nil {
				entry.Latitude, entry.Longitude, entry.HasCoords = lat, lon, true
			}
		}
		dict.byName[strings.ToLower(entry.Name)] = entry
	}
}
