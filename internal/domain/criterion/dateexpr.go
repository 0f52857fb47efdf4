package criterion

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/vitalregistry/linkage/internal/domain/person"
	"github.com/vitalregistry/linkage/internal/domain/query"
)

// DateExprKind discriminates the shapes a date criterion value can take.
type DateExprKind int

// Date expression shapes.
const (
	DateExact DateExprKind = iota
	DateRange
	DateAfter
	DateBefore
)

// DateExpr is a parsed date criterion value: an exact (possibly partial)
// date, an inclusive range, or a one-sided bound.
type DateExpr struct {
	Kind  DateExprKind
	Exact string // 8-digit, DateExact only
	From  string // 8-digit, DateRange only
	To    string // 8-digit, DateRange only
	Bound string // 8-digit, DateAfter/DateBefore only
}

// ParseDateExpr parses a date criterion value. Supported shapes:
// "YYYYMMDD", "YYYY", "YYYY-YYYY" (range), ">YYYY[MMDD]" and "<YYYY[MMDD]",
// or a formatted exact date when format is non-empty. Ranges and bounds are
// always written in the native encoding, whatever the exact-date format.
func ParseDateExpr(v, format string) (DateExpr, error) {
	v = strings.TrimSpace(v)
	switch {
	case strings.HasPrefix(v, ">"):
		d, err := person.ToDigits(strings.TrimPrefix(v, ">"), "")
		if err != nil {
			return DateExpr{}, err
		}
		return DateExpr{Kind: DateAfter, Bound: d}, nil
	case strings.HasPrefix(v, "<"):
		d, err := person.ToDigits(strings.TrimPrefix(v, "<"), "")
		if err != nil {
			return DateExpr{}, err
		}
		return DateExpr{Kind: DateBefore, Bound: d}, nil
	}

	if from, to, ok := splitRange(v); ok {
		fd, err := person.ToDigits(from, "")
		if err != nil {
			return DateExpr{}, err
		}
		td, err := person.ToDigits(to, "")
		if err != nil {
			return DateExpr{}, err
		}
		return DateExpr{Kind: DateRange, From: fd, To: td}, nil
	}

	d, err := person.ToDigits(v, format)
	if err != nil {
		return DateExpr{}, err
	}
	return DateExpr{Kind: DateExact, Exact: d}, nil
}

// splitRange detects "A-B" ranges without mistaking formatted dates like
// "1969-11-01" for ranges: both halves must themselves be bare years or
// 8-digit dates.
func splitRange(v string) (from, to string, ok bool) {
	i := strings.IndexByte(v, '-')
	if i <= 0 || i == len(v)-1 {
		return "", "", false
	}
	from, to = v[:i], v[i+1:]
	if bareDate(from) && bareDate(to) {
		return from, to, true
	}
	return "", "", false
}

func bareDate(s string) bool {
	if len(s) != 4 && len(s) != 8 {
		return false
	}
	_, err := strconv.Atoi(s)
	return err == nil
}

// Canonical returns the normalized string form stored in criterion values.
func (e DateExpr) Canonical() string {
	switch e.Kind {
	case DateRange:
		return e.From + "-" + e.To
	case DateAfter:
		return ">" + e.Bound
	case DateBefore:
		return "<" + e.Bound
	default:
		return e.Exact
	}
}

// IsRangeLike reports whether the expression is a range or one-sided bound.
func (e DateExpr) IsRangeLike() bool { return e.Kind != DateExact }

// RangeClause renders the expression as an index range clause. The second
// return is false for exact expressions, which have no range rendering.
func (e DateExpr) RangeClause(field string) (query.Clause, bool) {
	switch e.Kind {
	case DateRange:
		return query.RangeClause{Field: field, GTE: e.From, LTE: rangeUpper(e.To)}, true
	case DateAfter:
		return query.RangeClause{Field: field, GTE: e.Bound}, true
	case DateBefore:
		return query.RangeClause{Field: field, LTE: rangeUpper(e.Bound)}, true
	default:
		return nil, false
	}
}

// rangeUpper widens a bare-year upper bound to the end of that year so that
// "1920-1930" includes all of 1930.
func rangeUpper(d string) string {
	if len(d) == 8 && strings.HasSuffix(d, "0000") {
		return d[:4] + "1231"
	}
	return d
}

// GeoPoint is a parsed "lat,lon" coordinate pair.
type GeoPoint struct {
	Latitude  float64
	Longitude float64
}

// ParseGeoPoint parses "lat,lon" in decimal degrees.
func ParseGeoPoint(v string) (GeoPoint, error) {
	lat, lon, ok := strings.Cut(v, ",")
	if !ok {
		return GeoPoint{}, fmt.Errorf("geo point %q is not \"lat,lon\"", v)
	}
	la, err := strconv.ParseFloat(strings.TrimSpace(lat), 64)
	if err != nil {
		return GeoPoint{}, fmt.Errorf("invalid latitude %q: %w", lat, err)
	}
	lo, err := strconv.ParseFloat(strings.TrimSpace(lon), 64)
	if err != nil {
		return GeoPoint{}, fmt.Errorf("invalid longitude %q: %w", lon, err)
	}
	if la < -90 || la > 90 || lo < -180 || lo > 180 {
		return GeoPoint{}, fmt.Errorf("coordinates out of range: %s", v)
	}
	return GeoPoint{Latitude: la, Longitude: lo}, nil
}
