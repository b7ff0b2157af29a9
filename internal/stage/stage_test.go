package stage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"fundsync/platform/logger"
	"fundsync/platform/validator"
)

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func TestReadCSVNormalizesHeaders(t *testing.T) {
	path := writeFile(t, t.TempDir(), "in.csv",
		[]byte("Ticker , NAV_Value\nABC,10.50\n"))

	table, err := ReadCSV(path)
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if table.Columns[0] != "ticker" || table.Columns[1] != "nav_value" {
		t.Errorf("headers not normalized: %v", table.Columns)
	}
	if table.Get(0, "ticker") != "ABC" || table.Get(0, "nav_value") != "10.50" {
		t.Errorf("row values wrong: %v", table.Rows[0])
	}
}

func TestReadCSVStripsBOM(t *testing.T) {
	data := append([]byte{0xEF, 0xBB, 0xBF}, []byte("ticker\nABC\n")...)
	path := writeFile(t, t.TempDir(), "bom.csv", data)

	table, err := ReadCSV(path)
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if table.Columns[0] != "ticker" {
		t.Errorf("BOM leaked into first header: %q", table.Columns[0])
	}
}

func TestReadCSVFallbackEncoding(t *testing.T) {
	// "café" in Windows-1252: é is 0xE9, invalid as UTF-8.
	data := []byte("name\ncaf\xe9\n")
	path := writeFile(t, t.TempDir(), "cp1252.csv", data)

	table, err := ReadCSV(path)
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if len(table.Rows) != 1 || table.Get(0, "name") == "" {
		t.Fatalf("fallback decode lost the row: %+v", table.Rows)
	}
	if strings.Contains(table.Get(0, "name"), "�") {
		t.Errorf("fallback decode produced replacement runes: %q", table.Get(0, "name"))
	}
}

func TestCleanFillsSourceAndAssetType(t *testing.T) {
	table := &Table{
		Columns: []string{"ticker", "asset_type"},
		Rows: []map[string]string{
			{"ticker": "ABC", "asset_type": "fund"},
			{"ticker": "DEF", "asset_type": ""},
		},
	}
	Clean(table, "Financial Times", CleanSpec{})

	if got := table.Get(0, "source"); got != "Financial Times" {
		t.Errorf("source = %q, want Financial Times", got)
	}
	if got := table.Get(0, "asset_type"); got != "FUND" {
		t.Errorf("asset_type = %q, want FUND", got)
	}
	if got := table.Get(1, "asset_type"); got != "ETF" {
		t.Errorf("empty asset_type should default to ETF, got %q", got)
	}
}

func TestCleanRatioColumns(t *testing.T) {
	table := &Table{
		Columns: []string{"ticker", "expense_ratio"},
		Rows: []map[string]string{
			{"ticker": "ABC", "expense_ratio": "1.25"},
			{"ticker": "DEF", "expense_ratio": "0.0099"},
		},
	}
	Clean(table, "X", CleanSpec{RatioCols: []string{"expense_ratio"}})

	if got := table.Get(0, "expense_ratio"); got != "0.0125" {
		t.Errorf("percent-form ratio = %q, want 0.0125", got)
	}
	if got := table.Get(1, "expense_ratio"); got != "0.0099" {
		t.Errorf("fraction-form ratio = %q, want unchanged 0.0099", got)
	}
}

func TestCleanOutlierRescale(t *testing.T) {
	table := &Table{
		Columns: []string{"ticker", "standard_dev_1y"},
		Rows:    []map[string]string{{"ticker": "ABC", "standard_dev_1y": "1500"}},
	}
	Clean(table, "X", CleanSpec{OutlierCols: []string{"standard_dev_1y"}})

	if got := table.Get(0, "standard_dev_1y"); got != "15" {
		t.Errorf("outlier = %q, want 15", got)
	}
}

func TestWriterAppendsHeaderOnce(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(root, logger.New("test"))

	batch := func() *Table {
		return &Table{
			Columns: []string{"ticker", "asset_type", "source"},
			Rows:    []map[string]string{{"ticker": "ABC", "asset_type": "FUND", "source": "X"}},
		}
	}

	if _, err := w.Append("staging", "2024-01-01", "daily_nav", batch()); err != nil {
		t.Fatalf("first append: %v", err)
	}
	if _, err := w.Append("staging", "2024-01-01", "daily_nav", batch()); err != nil {
		t.Fatalf("second append: %v", err)
	}

	data, err := os.ReadFile(w.ArtifactPath("staging", "2024-01-01", "daily_nav"))
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "ticker,") {
		t.Errorf("first line should be the header, got %q", lines[0])
	}
	if strings.HasPrefix(lines[2], "ticker,") {
		t.Errorf("second append must not repeat the header")
	}
}

func TestAppendPreservesExistingFingerprint(t *testing.T) {
	w := NewWriter(t.TempDir(), logger.New("test"))
	table := &Table{
		Columns: []string{"ticker", "last_seen", "row_hash"},
		Rows: []map[string]string{
			{"ticker": "ABC", "last_seen": "2024-06-01", "row_hash": "precomputed"},
			{"ticker": "DEF", "last_seen": "2024-06-01", "row_hash": ""},
		},
	}
	if _, err := w.Append("hashed", "2024-06-01", "master_list", table); err != nil {
		t.Fatalf("Append: %v", err)
	}

	if got := table.Get(0, "row_hash"); got != "precomputed" {
		t.Errorf("pre-set fingerprint must survive append, got %q", got)
	}
	if got := table.Get(1, "row_hash"); len(got) != 64 {
		t.Errorf("row without a fingerprint should be hashed, got %q", got)
	}
}

func TestFingerprintIgnoresBookkeeping(t *testing.T) {
	table := &Table{
		Columns: []string{"ticker", "nav_value", "updated_at"},
		Rows: []map[string]string{
			{"ticker": "ABC", "nav_value": "10.50", "updated_at": "2024-01-01"},
			{"ticker": "ABC", "nav_value": "10.50", "updated_at": "2024-06-06"},
		},
	}
	Fingerprint(table)

	a, b := table.Get(0, "row_hash"), table.Get(1, "row_hash")
	if a == "" || len(a) != 64 {
		t.Fatalf("row_hash not populated: %q", a)
	}
	if a != b {
		t.Errorf("payload-identical rows hashed differently")
	}
}

func TestValidateNaturalKey(t *testing.T) {
	table := &Table{
		Columns: []string{"ticker", "asset_type", "source"},
		Rows: []map[string]string{
			{"ticker": "ABC", "asset_type": "FUND", "source": "X"},
			{"ticker": "", "asset_type": "", "source": ""},
			{"ticker": "DEF", "asset_type": "", "source": "X"},
		},
	}
	report := Validate(table, validator.New())

	if report.OK != 1 || report.Skipped != 1 || report.Failed != 1 {
		t.Errorf("report = %+v, want 1 ok / 1 skipped / 1 failed", report)
	}
	if len(report.Failures) != 1 || report.Failures[0].Index != 2 {
		t.Errorf("failure detail wrong: %+v", report.Failures)
	}
}

func TestLatestDate(t *testing.T) {
	dir := t.TempDir()
	for _, d := range []string{"2024-01-01", "2024-02-15", "not-a-date"} {
		if err := os.Mkdir(filepath.Join(dir, d), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}

	latest, ok, err := LatestDate(dir)
	if err != nil || !ok {
		t.Fatalf("LatestDate: %v ok=%v", err, ok)
	}
	if latest != "2024-02-15" {
		t.Errorf("latest = %q, want 2024-02-15", latest)
	}

	if _, ok, _ := LatestDate(filepath.Join(dir, "missing")); ok {
		t.Errorf("missing dir should report no dates")
	}
}
