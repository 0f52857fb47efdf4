package person

import (
	"fmt"
	"strings"
)

// UnknownDate is the fully unknown 8-digit date.
const UnknownDate = "00000000"

// DateUnknown reports whether the date carries no information at all.
func DateUnknown(d string) bool {
	return d == "" || d == UnknownDate
}

// YearOf returns the YYYY segment, "0000" when unknown.
func YearOf(d string) string {
	if len(d) < 4 {
		return "0000"
	}
	return d[:4]
}

// YearKnown reports whether the YYYY segment is set.
func YearKnown(d string) bool { return YearOf(d) != "0000" }

// MonthDayKnown reports whether the MMDD segment is set.
func MonthDayKnown(d string) bool {
	return len(d) == 8 && d[4:] != "0000"
}

// ToDigits converts a caller-supplied date to the 8-digit YYYYMMDD encoding.
// With an empty format, 8-digit and bare-year values pass through. With a
// format such as "dd/MM/yyyy", segments are extracted by token position;
// absent tokens become unknown ("0000"/"00") segments.
func ToDigits(value, format string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return UnknownDate, nil
	}

	if format == "" {
		switch {
		case len(value) == 8 && allDigits(value):
			return value, nil
		case len(value) == 4 && allDigits(value):
			return value + "0000", nil
		default:
			return "", fmt.Errorf("date %q is not YYYYMMDD or YYYY", value)
		}
	}

	if len(value) != len(format) {
		return "", fmt.Errorf("date %q does not match format %q", value, format)
	}

	year := extractSegment(value, format, "yyyy", "0000")
	month := extractSegment(value, format, "MM", "00")
	day := extractSegment(value, format, "dd", "00")
	if !allDigits(year) || !allDigits(month) || !allDigits(day) {
		return "", fmt.Errorf("date %q does not match format %q", value, format)
	}
	return year + month + day, nil
}

func extractSegment(value, format, token, unknown string) string {
	i := strings.Index(format, token)
	if i < 0 {
		return unknown
	}
	return value[i : i+len(token)]
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
