package coerce

import (
	"testing"
	"time"
)

func TestNumber(t *testing.T) {
	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"10.50", 10.50, true},
		{"+3.2", 3.2, true},
		{"1,234.5", 1234.5, true},
		{"12%", 12, true},
		{"1.5k", 1500, true},
		{"2m", 2_000_000, true},
		{"1.2b", 1_200_000_000, true},
		{"2M", 2_000_000, true},
		{"", 0, false},
		{"-", 0, false},
		{"nan", 0, false},
		{"none", 0, false},
		{"abc", 0, false},
		{"-4.25", -4.25, true},
	}
	for _, tc := range cases {
		got, ok := Number(tc.in)
		if ok != tc.ok || (ok && got != tc.want) {
			t.Errorf("Number(%q) = (%v, %v), want (%v, %v)", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestBool(t *testing.T) {
	trues := []string{"true", "TRUE", "1", "yes", "Y", " y "}
	falses := []string{"false", "0", "no", "N"}
	nulls := []string{"", "maybe", "2"}

	for _, in := range trues {
		if got, ok := Bool(in); !ok || !got {
			t.Errorf("Bool(%q) = (%v, %v), want (true, true)", in, got, ok)
		}
	}
	for _, in := range falses {
		if got, ok := Bool(in); !ok || got {
			t.Errorf("Bool(%q) = (%v, %v), want (false, true)", in, got, ok)
		}
	}
	for _, in := range nulls {
		if _, ok := Bool(in); ok {
			t.Errorf("Bool(%q) should be null", in)
		}
	}
}

func TestParseDate(t *testing.T) {
	d, ok := ParseDate("2024-01-01")
	if !ok || d.Year() != 2024 || d.Month() != time.January || d.Day() != 1 {
		t.Errorf("ParseDate(2024-01-01) = (%v, %v)", d, ok)
	}
	if _, ok := ParseDate("not a date"); ok {
		t.Errorf("unparseable date must degrade to null, not error")
	}
}

func TestValueNeverPanics(t *testing.T) {
	types := []Type{Integer, Numeric, Date, Timestamp, Boolean, Text}
	inputs := []string{"", "garbage", "99", "2024-13-45", "yes", "\x00\xff"}
	for _, ty := range types {
		for _, in := range inputs {
			Value(in, ty) // must not panic for any input
		}
	}
}

func TestValueInteger(t *testing.T) {
	got, ok := Value("1,024", Integer)
	if !ok || got.(int64) != 1024 {
		t.Errorf("Value(1,024, integer) = (%v, %v)", got, ok)
	}
}

func TestTypeOf(t *testing.T) {
	cases := map[string]Type{
		"date":                        Date,
		"timestamp without time zone": Timestamp,
		"numeric":                     Numeric,
		"double precision":            Numeric,
		"integer":                     Integer,
		"bigint":                      Integer,
		"boolean":                     Boolean,
		"character varying":           Text,
	}
	for in, want := range cases {
		if got := TypeOf(in); got != want {
			t.Errorf("TypeOf(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestScaleRatio(t *testing.T) {
	if got := ScaleRatio(1.25); got != 0.0125 {
		t.Errorf("ScaleRatio(1.25) = %v, want 0.0125", got)
	}
	if got := ScaleRatio(0.0099); got != 0.0099 {
		t.Errorf("ScaleRatio(0.0099) = %v, want unchanged", got)
	}
}

func TestRescaleOutlier(t *testing.T) {
	if got := RescaleOutlier(1500, 999.99); got != 15 {
		t.Errorf("RescaleOutlier(1500) = %v, want 15", got)
	}
	if got := RescaleOutlier(-1500, 999.99); got != -15 {
		t.Errorf("RescaleOutlier(-1500) = %v, want -15", got)
	}
	if got := RescaleOutlier(12.5, 999.99); got != 12.5 {
		t.Errorf("RescaleOutlier(12.5) = %v, want unchanged", got)
	}
}
