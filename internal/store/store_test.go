package store

import (
	"strings"
	"testing"

	"fundsync/internal/stage"
	"fundsync/platform/logger"
)

func TestRegistryKeysMatchConstraints(t *testing.T) {
	for name, spec := range Tables {
		if spec.Name != name {
			t.Errorf("%s: spec name mismatch %q", name, spec.Name)
		}
		if len(spec.Key) == 0 {
			t.Errorf("%s: no natural key", name)
		}
		if spec.Conflict == "" {
			t.Errorf("%s: no conflict constraint recorded", name)
		}
		for _, key := range spec.Key {
			if contains(spec.Payload, key) {
				t.Errorf("%s: key column %q repeated in payload", name, key)
			}
		}
	}
}

func TestUpsertSQLGatesOnFingerprint(t *testing.T) {
	spec := Tables["stg_daily_nav"]
	sql := upsertSQL(spec)

	for _, fragment := range []string{
		"INSERT INTO stg_daily_nav",
		"ON CONFLICT (ticker, asset_type, source, as_of_date)",
		"stg_daily_nav.row_hash IS DISTINCT FROM EXCLUDED.row_hash",
		"RETURNING (xmax = 0)",
	} {
		if !strings.Contains(sql, fragment) {
			t.Errorf("upsert SQL missing %q:\n%s", fragment, sql)
		}
	}
	if strings.Contains(sql, "ticker = EXCLUDED.ticker") {
		t.Errorf("key columns must not appear in the update set")
	}
}

func TestValuePlaceholders(t *testing.T) {
	got := valuePlaceholders(2, 3)
	want := "($1, $2, $3, NOW()), ($4, $5, $6, NOW())"
	if got != want {
		t.Errorf("valuePlaceholders = %q, want %q", got, want)
	}
}

func TestDedupeByKeyKeepsLast(t *testing.T) {
	spec := Tables["stg_daily_nav"]
	rows := []map[string]string{
		{"ticker": "ABC", "asset_type": "FUND", "source": "X", "as_of_date": "2024-01-01", "nav_price": "10.50"},
		{"ticker": "DEF", "asset_type": "FUND", "source": "X", "as_of_date": "2024-01-01", "nav_price": "3.10"},
		{"ticker": "ABC", "asset_type": "FUND", "source": "X", "as_of_date": "2024-01-01", "nav_price": "10.60"},
	}
	out := dedupeByKey(spec, rows)
	if len(out) != 2 {
		t.Fatalf("expected 2 rows after dedupe, got %d", len(out))
	}
	if out[0]["nav_price"] != "10.60" {
		t.Errorf("dedupe should keep the last occurrence, got %q", out[0]["nav_price"])
	}
}

func TestPrepareMaster(t *testing.T) {
	table := &stage.Table{
		Columns: []string{"ticker", "asset_type", "source", "name"},
		Rows: []map[string]string{
			{"ticker": " ABC ", "asset_type": "FUND", "source": "", "name": "Alpha Fund"},
		},
	}
	PrepareMaster(table, "2024-06-01")

	row := table.Rows[0]
	if row["ticker"] != "ABC" {
		t.Errorf("ticker not trimmed: %q", row["ticker"])
	}
	if row["source"] != "Unknown" {
		t.Errorf("missing source should default to Unknown, got %q", row["source"])
	}
	if row["status"] != StatusNew {
		t.Errorf("initial status = %q, want new", row["status"])
	}
	if row["first_seen"] != "2024-06-01" || row["last_seen"] != "2024-06-01" {
		t.Errorf("seen dates = %q / %q, want today", row["first_seen"], row["last_seen"])
	}
	if len(row["row_hash"]) != 64 {
		t.Errorf("row_hash not populated: %q", row["row_hash"])
	}
}

func TestPrepareMasterFingerprintStableAcrossDays(t *testing.T) {
	build := func(day string) string {
		table := &stage.Table{
			Columns: []string{"ticker", "asset_type", "source", "name"},
			Rows: []map[string]string{
				{"ticker": "ABC", "asset_type": "FUND", "source": "X", "name": "Alpha Fund"},
			},
		}
		PrepareMaster(table, day)
		return table.Rows[0]["row_hash"]
	}
	if build("2024-06-01") != build("2024-06-02") {
		t.Errorf("master fingerprint must not depend on the observation date")
	}
}

func TestMasterFingerprintStableThroughAppend(t *testing.T) {
	build := func(day string) string {
		table := &stage.Table{
			Columns: []string{"ticker", "asset_type", "source", "name"},
			Rows: []map[string]string{
				{"ticker": "ABC", "asset_type": "FUND", "source": "X", "name": "Alpha Fund"},
			},
		}
		PrepareMaster(table, day)

		w := stage.NewWriter(t.TempDir(), logger.New("test"))
		if _, err := w.Append("hashed", day, "master_list", table); err != nil {
			t.Fatalf("Append: %v", err)
		}
		return table.Rows[0]["row_hash"]
	}

	day1, day2 := build("2024-06-01"), build("2024-06-02")
	if day1 != day2 {
		t.Errorf("master fingerprint after append depends on the observation date: %s vs %s", day1, day2)
	}
}

func TestColumnNamesCoverAllTables(t *testing.T) {
	cols := ColumnNames()
	if len(cols) != len(Tables) {
		t.Fatalf("expected %d tables, got %d", len(Tables), len(cols))
	}
	for name, list := range cols {
		if !contains(list, "row_hash") {
			t.Errorf("%s: insert columns missing row_hash", name)
		}
	}
}
