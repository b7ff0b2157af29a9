package archive

import (
	"archive/zip"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"fundsync/platform/apperr"
	"fundsync/platform/logger"
)

func seedScope(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
}

func TestBundleDirectoryPreservesRelativePaths(t *testing.T) {
	dataDir := t.TempDir()
	src := filepath.Join(dataDir, "hashed", "price_history")
	seedScope(t, src, map[string]string{
		"ft/ABC_price_history.csv": "a",
		"sa/DEF_price_history.csv": "b",
	})

	arch := New(dataDir, logger.New("test"), nil)
	n, err := arch.BundleDirectory("2024-06-01", "hashed_price_history", src)
	if err != nil {
		t.Fatalf("BundleDirectory: %v", err)
	}
	if n != 2 {
		t.Errorf("bundled %d files, want 2", n)
	}

	zr, err := zip.OpenReader(arch.BundlePath("2024-06-01", "hashed_price_history"))
	if err != nil {
		t.Fatalf("open bundle: %v", err)
	}
	defer zr.Close()

	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	want := []string{"ft/ABC_price_history.csv", "sa/DEF_price_history.csv"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("bundle entries = %v, want %v", names, want)
	}
}

func TestBundleDirectoryEmptySource(t *testing.T) {
	dataDir := t.TempDir()
	arch := New(dataDir, logger.New("test"), nil)

	n, err := arch.BundleDirectory("2024-06-01", "nothing", filepath.Join(dataDir, "missing"))
	if err != nil || n != 0 {
		t.Errorf("missing source should bundle nothing, got n=%d err=%v", n, err)
	}
	if _, err := os.Stat(arch.BundlePath("2024-06-01", "nothing")); !os.IsNotExist(err) {
		t.Errorf("no bundle file should be written for an empty source")
	}
}

func TestCleanupDirDryRun(t *testing.T) {
	root := t.TempDir()
	seedScope(t, root, map[string]string{
		"ft/a.csv": "x",
		"ft/b.csv": "y",
		"keep.txt": "z",
	})

	n, err := CleanupDir(root, true)
	if err != nil {
		t.Fatalf("CleanupDir dry-run: %v", err)
	}
	if n != 2 {
		t.Errorf("dry-run counted %d, want 2", n)
	}
	if _, err := os.Stat(filepath.Join(root, "ft", "a.csv")); err != nil {
		t.Errorf("dry-run must not delete files")
	}
}

func TestCleanupDirRemovesAndPrunes(t *testing.T) {
	root := t.TempDir()
	seedScope(t, root, map[string]string{"ft/a.csv": "x"})

	n, err := CleanupDir(root, false)
	if err != nil || n != 1 {
		t.Fatalf("CleanupDir: n=%d err=%v", n, err)
	}
	if _, err := os.Stat(filepath.Join(root, "ft")); !os.IsNotExist(err) {
		t.Errorf("emptied subdirectory should be pruned")
	}
}

func TestHousekeeperRefusesUnverifiedCleanup(t *testing.T) {
	dataDir := t.TempDir()
	root := filepath.Join(dataDir, "hashed")
	seedScope(t, root, map[string]string{"a.csv": "x"})

	h := NewHousekeeper(New(dataDir, logger.New("test"), nil), logger.New("test"))

	n, err := h.Cleanup(ScopePriceHistory, []string{root}, false)
	if err == nil {
		t.Fatalf("cleanup without verification must refuse")
	}
	if !apperr.Is(err, apperr.KindConflict) {
		t.Errorf("expected conflict kind, got %v", err)
	}
	if n != 0 {
		t.Errorf("refused cleanup deleted %d files", n)
	}
	if _, statErr := os.Stat(filepath.Join(root, "a.csv")); statErr != nil {
		t.Errorf("refused cleanup must leave files in place")
	}
}

func TestHousekeeperArchiveThenCleanup(t *testing.T) {
	dataDir := t.TempDir()
	root := filepath.Join(dataDir, "hashed")
	seedScope(t, root, map[string]string{"a.csv": "x"})

	h := NewHousekeeper(New(dataDir, logger.New("test"), nil), logger.New("test"))
	h.MarkVerified(ScopePriceHistory, true)

	// Verified but not yet archived: still refused.
	if _, err := h.Cleanup(ScopePriceHistory, []string{root}, false); err == nil {
		t.Fatalf("cleanup before archive must refuse")
	}

	if _, err := h.Archive(ScopePriceHistory, "2024-06-01", map[string]string{"hashed": root}); err != nil {
		t.Fatalf("Archive: %v", err)
	}
	n, err := h.Cleanup(ScopePriceHistory, []string{root}, false)
	if err != nil || n != 1 {
		t.Fatalf("cleanup after archive: n=%d err=%v", n, err)
	}
}

func TestNormalizeScopes(t *testing.T) {
	got := NormalizeScopes([]string{"price,nav", "div"})
	want := []string{ScopePriceHistory, ScopeDailyNAV, ScopeDividendHistory}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("NormalizeScopes = %v, want %v", got, want)
	}

	if got := NormalizeScopes(nil); !reflect.DeepEqual(got, AllScopes) {
		t.Errorf("no arguments should select all scopes, got %v", got)
	}

	if got := NormalizeScopes([]string{"bogus"}); len(got) != 0 {
		t.Errorf("unknown alias should resolve to nothing, got %v", got)
	}
}

func TestDetectSourceKey(t *testing.T) {
	cases := map[string]string{
		"data/04_hashed/price_history/ft/ABC_price.csv":    "ft",
		"data/04_hashed/price_history/yahoo/ABC_price.csv": "yf",
		"data/04_hashed/price_history/stock/ABC_price.csv": "sa",
		"data/04_hashed/price_history/misc/ABC_price.csv":  "",
	}
	for path, want := range cases {
		if got := DetectSourceKey(path); got != want {
			t.Errorf("DetectSourceKey(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestExtractTicker(t *testing.T) {
	cases := map[string]string{
		"abc_price_history.csv": "ABC",
		"DEF_nav.csv":           "DEF",
		"noseparator.csv":       "",
	}
	for name, want := range cases {
		if got := ExtractTicker(name); got != want {
			t.Errorf("ExtractTicker(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestCollectRowHashesSkipsUnfingerprintedFiles(t *testing.T) {
	root := t.TempDir()
	seedScope(t, root, map[string]string{
		"fund_info_clean.csv": "ticker,name,row_hash\nABC,Fund A,aaa111\nDEF,Fund B,bbb222\n",
		"fund_fees_clean.csv": "ticker,expense_ratio\nABC,0.0125\n",
	})

	hashes, err := CollectRowHashes(root)
	if err != nil {
		t.Fatalf("CollectRowHashes: %v", err)
	}
	if len(hashes) != 2 || !hashes["aaa111"] || !hashes["bbb222"] {
		t.Errorf("hashes = %v, want aaa111 and bbb222", hashes)
	}

	empty, err := CollectRowHashes(filepath.Join(root, "missing"))
	if err != nil || len(empty) != 0 {
		t.Errorf("missing root should yield no hashes, got %v err=%v", empty, err)
	}
}

func TestCollectTickersBucketsBySource(t *testing.T) {
	root := t.TempDir()
	seedScope(t, root, map[string]string{
		"ft/ABC_price.csv":   "x",
		"sa/DEF_price.csv":   "y",
		"misc/GHI_price.csv": "z",
	})

	tickers := CollectTickers(root)
	if !tickers["ft"]["ABC"] || !tickers["sa"]["DEF"] {
		t.Errorf("provider buckets wrong: %v", tickers)
	}
	if !tickers["unknown"]["GHI"] {
		t.Errorf("undetectable provider should land in unknown bucket: %v", tickers)
	}
}
