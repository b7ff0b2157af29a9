package hashing

import (
	"strings"
	"testing"
)

func TestRowHashDeterminism(t *testing.T) {
	a := RowHash("ABC", "FUND", "Financial Times", "10.50", "2024-01-01")
	b := RowHash("ABC", "FUND", "Financial Times", "10.50", "2024-01-01")
	if a != b {
		t.Fatalf("identical payloads hashed differently: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("expected 64-char hex digest, got %d chars", len(a))
	}
	for _, c := range a {
		if !strings.ContainsRune("0123456789abcdef", c) {
			t.Fatalf("digest contains non-hex character %q", c)
		}
	}
}

func TestRowHashChangesWithPayload(t *testing.T) {
	base := RowHash("ABC", "FUND", "X", "10.50")
	cases := map[string]string{
		"ticker changed": RowHash("ABD", "FUND", "X", "10.50"),
		"value changed":  RowHash("ABC", "FUND", "X", "10.51"),
		"field dropped":  RowHash("ABC", "FUND", "X"),
	}
	for name, got := range cases {
		if got == base {
			t.Errorf("%s: hash did not change", name)
		}
	}
}

func TestRowHashNilAndEmptyEquivalent(t *testing.T) {
	withNil := RowHash("ABC", nil, "X")
	withEmpty := RowHash("ABC", "", "X")
	if withNil != withEmpty {
		t.Errorf("nil and empty string should hash identically")
	}
}

func TestRowHashTrimsWhitespace(t *testing.T) {
	if RowHash(" ABC ", "FUND") != RowHash("ABC", "FUND") {
		t.Errorf("surrounding whitespace should not affect the hash")
	}
}

func TestHashRecordSkipsBookkeepingColumns(t *testing.T) {
	columns := []string{"ticker", "asset_type", "row_hash", "updated_at", "name"}
	row := map[string]string{
		"ticker":     "ABC",
		"asset_type": "FUND",
		"name":       "Alpha Fund",
		"row_hash":   "deadbeef",
		"updated_at": "2024-01-01T00:00:00Z",
	}
	first := HashRecord(columns, row)

	row["row_hash"] = first
	row["updated_at"] = "2025-06-07T08:09:10Z"
	second := HashRecord(columns, row)

	if first != second {
		t.Errorf("row_hash/updated_at must not participate in the fingerprint")
	}
	if first != RowHash("ABC", "FUND", "Alpha Fund") {
		t.Errorf("HashRecord should equal RowHash over the payload columns in order")
	}
}
