package timeseq

import (
	"testing"
	"time"
)

func TestParseInterval(t *testing.T) {
	tests := []struct {
		in   string
		want Interval
	}{
		{"PT3H", Interval{Clock: 3 * time.Hour}},
		{"PT30M", Interval{Clock: 30 * time.Minute}},
		{"PT90S", Interval{Clock: 90 * time.Second}},
		{"P1D", Interval{Days: 1}},
		{"P1M", Interval{Months: 1}},
		{"P2Y", Interval{Years: 2}},
		{"P1DT12H", Interval{Days: 1, Clock: 12 * time.Hour}},
		{"P1Y2M3DT4H5M6S", Interval{Years: 1, Months: 2, Days: 3, Clock: 4*time.Hour + 5*time.Minute + 6*time.Second}},
	}
	for _, tt := range tests {
		got, err := ParseInterval(tt.in)
		if err != nil {
			t.Errorf("ParseInterval(%q) unexpected error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseInterval(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestParseIntervalErrors(t *testing.T) {
	for _, in := range []string{"", "P", "PT", "3H", "PT3X", "P0D", "PTH", "P1M2"} {
		if _, err := ParseInterval(in); err == nil {
			t.Errorf("ParseInterval(%q) expected error, got nil", in)
		}
	}
}

func TestIntervalAddToCalendar(t *testing.T) {
	start := time.Date(2016, time.January, 31, 0, 0, 0, 0, time.UTC)
	iv := Interval{Months: 1}
	got := iv.AddTo(start)
	// Calendar arithmetic: Jan 31 + 1 month normalizes past February.
	want := time.Date(2016, time.March, 2, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("AddTo = %s, want %s", got, want)
	}
}

func TestIntervalString(t *testing.T) {
	tests := []struct {
		iv   Interval
		want string
	}{
		{Interval{Clock: 3 * time.Hour}, "PT3H"},
		{Interval{Days: 1}, "P1D"},
		{Interval{Months: 1}, "P1M"},
		{Interval{Days: 1, Clock: 12*time.Hour + 30*time.Minute}, "P1DT12H30M"},
	}
	for _, tt := range tests {
		if got := tt.iv.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
