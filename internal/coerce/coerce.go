// Package coerce converts loosely-typed extracted values into canonical
// column types. Coercion is lossy-but-safe: malformed upstream data becomes
// a null, never an error, so one bad field cannot abort a row or a batch.
package coerce

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Type is the declared target type tag for a column.
type Type string

const (
	Integer   Type = "integer"
	Numeric   Type = "numeric"
	Date      Type = "date"
	Timestamp Type = "timestamp"
	Boolean   Type = "boolean"
	Text      Type = "text"
)

// TypeOf maps a database data type name to a coercion type tag.
func TypeOf(dataType string) Type {
	lower := strings.ToLower(strings.TrimSpace(dataType))
	switch {
	case lower == "date":
		return Date
	case strings.Contains(lower, "timestamp"):
		return Timestamp
	case strings.Contains(lower, "numeric"),
		strings.Contains(lower, "decimal"),
		strings.Contains(lower, "double"),
		strings.Contains(lower, "real"):
		return Numeric
	case strings.Contains(lower, "int"):
		return Integer
	case strings.Contains(lower, "bool"):
		return Boolean
	default:
		return Text
	}
}

var nullTokens = map[string]bool{
	"":     true,
	"-":    true,
	"nan":  true,
	"none": true,
	"null": true,
	"n/a":  true,
}

// IsNull reports whether a raw value is one of the recognized null tokens.
func IsNull(raw string) bool {
	return nullTokens[strings.ToLower(strings.TrimSpace(raw))]
}

// Value coerces a raw string to the given type. The second return is false
// when the value is null or unparseable; coercion never fails.
func Value(raw string, t Type) (any, bool) {
	if IsNull(raw) {
		return nil, false
	}
	switch t {
	case Integer:
		f, ok := Number(raw)
		if !ok {
			return nil, false
		}
		return int64(math.Round(f)), true
	case Numeric:
		f, ok := Number(raw)
		if !ok {
			return nil, false
		}
		return f, true
	case Date:
		d, ok := ParseDate(raw)
		if !ok {
			return nil, false
		}
		return d, true
	case Timestamp:
		ts, ok := ParseTimestamp(raw)
		if !ok {
			return nil, false
		}
		return ts, true
	case Boolean:
		b, ok := Bool(raw)
		if !ok {
			return nil, false
		}
		return b, true
	default:
		return strings.TrimSpace(raw), true
	}
}

// Number parses a numeric string the way the extract files write them:
// thousands separators and percent signs stripped, a leading + dropped,
// and k/m/b suffixes multiplying by 1e3/1e6/1e9.
func Number(raw string) (float64, bool) {
	text := strings.ToLower(strings.TrimSpace(raw))
	if nullTokens[text] {
		return 0, false
	}

	multiplier := 1.0
	switch {
	case strings.HasSuffix(text, "k"):
		multiplier = 1_000
		text = strings.TrimSuffix(text, "k")
	case strings.HasSuffix(text, "m"):
		multiplier = 1_000_000
		text = strings.TrimSuffix(text, "m")
	case strings.HasSuffix(text, "b"):
		multiplier = 1_000_000_000
		text = strings.TrimSuffix(text, "b")
	}

	text = strings.ReplaceAll(text, ",", "")
	text = strings.ReplaceAll(text, "%", "")
	text = strings.TrimPrefix(text, "+")
	text = strings.TrimSpace(text)

	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, false
	}
	return f * multiplier, true
}

var trueTokens = map[string]bool{"true": true, "1": true, "yes": true, "y": true}
var falseTokens = map[string]bool{"false": true, "0": true, "no": true, "n": true}

// Bool parses a boolean via case-insensitive membership. Values outside
// both sets are null.
func Bool(raw string) (bool, bool) {
	text := strings.ToLower(strings.TrimSpace(raw))
	if trueTokens[text] {
		return true, true
	}
	if falseTokens[text] {
		return false, true
	}
	return false, false
}

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"02-01-2006",
	"02/01/2006",
	"Jan 2, 2006",
	"2 Jan 2006",
	"January 2, 2006",
}

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseDate parses a date-only value; unparseable input is null.
func ParseDate(raw string) (time.Time, bool) {
	text := strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, text); err == nil {
			return d, true
		}
	}
	if ts, ok := ParseTimestamp(text); ok {
		return ts.Truncate(24 * time.Hour), true
	}
	return time.Time{}, false
}

// ParseTimestamp parses a date-time value; unparseable input is null.
func ParseTimestamp(raw string) (time.Time, bool) {
	text := strings.TrimSpace(raw)
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, text); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// ScaleRatio converts a percent-like value to a fraction. Fee columns are
// stored as fractions; sources emit either form, so anything above 1 is
// treated as a percentage.
func ScaleRatio(v float64) float64 {
	if v > 1 {
		return v / 100
	}
	return v
}

// RescaleOutlier divides values whose magnitude exceeds limit by 100.
// Some sources report deviation and return columns pre-multiplied by 100.
func RescaleOutlier(v, limit float64) float64 {
	if math.Abs(v) > limit {
		return v / 100
	}
	return v
}
