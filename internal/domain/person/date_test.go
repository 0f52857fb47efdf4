package person

import "testing"

func TestToDigits(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		format  string
		want    string
		wantErr bool
	}{
		{"eight digits pass through", "19691101", "", "19691101", false},
		{"bare year padded", "1969", "", "19690000", false},
		{"empty is unknown", "", "", UnknownDate, false},
		{"french format", "01/11/1969", "dd/MM/yyyy", "19691101", false},
		{"iso format", "1969-11-01", "yyyy-MM-dd", "19691101", false},
		{"year-only format", "1969", "yyyy", "19690000", false},
		{"length mismatch", "1/11/1969", "dd/MM/yyyy", "", true},
		{"letters rejected", "abcd1101", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToDigits(tt.value, tt.format)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ToDigits(%q, %q) error = %v, wantErr %v", tt.value, tt.format, err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("ToDigits(%q, %q) = %q, want %q", tt.value, tt.format, got, tt.want)
			}
		})
	}
}

func TestDateSegments(t *testing.T) {
	if !DateUnknown("") || !DateUnknown(UnknownDate) {
		t.Error("empty and all-zero dates should be unknown")
	}
	if DateUnknown("19691101") {
		t.Error("a full date is not unknown")
	}
	if YearOf("19691101") != "1969" {
		t.Errorf("YearOf = %q", YearOf("19691101"))
	}
	if YearKnown("00001101") {
		t.Error("zero year should not be known")
	}
	if MonthDayKnown("19690000") {
		t.Error("zero month+day should not be known")
	}
	if !MonthDayKnown("19691101") {
		t.Error("set month+day should be known")
	}
}
