package archive

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"fundsync/internal/hashing"
	"fundsync/internal/stage"
	"fundsync/platform/logger"
)

// SourceSummary compares one provider's hot-storage tickers against the
// canonical store.
type SourceSummary struct {
	FileTickers int
	DBTickers   int
	Missing     int
	Sample      []string
}

// Verifier proves that hot-storage artifacts are fully represented in the
// canonical store before housekeeping may archive and delete them.
type Verifier struct {
	pool *pgxpool.Pool
	log  *logger.Logger
}

func NewVerifier(pool *pgxpool.Pool, log *logger.Logger) *Verifier {
	return &Verifier{pool: pool, log: log}
}

// VerifyScope checks that every ticker present in a scope directory has
// rows in the given canonical table for the matching source. The unknown
// bucket is reported but never fails the check.
func (v *Verifier) VerifyScope(ctx context.Context, table, root string) (bool, map[string]SourceSummary, error) {
	fileTickers := CollectTickers(root)
	results := make(map[string]SourceSummary, len(fileTickers))
	ok := true

	for key, sourceName := range SourceNameByKey {
		files := fileTickers[key]
		if len(files) == 0 {
			continue
		}
		dbTickers, err := v.fetchTickers(ctx, table, sourceName)
		if err != nil {
			return false, results, err
		}

		summary := SourceSummary{FileTickers: len(files), DBTickers: len(dbTickers)}
		for ticker := range files {
			if !dbTickers[ticker] {
				summary.Missing++
				if len(summary.Sample) < 20 {
					summary.Sample = append(summary.Sample, ticker)
				}
			}
		}
		if summary.Missing > 0 {
			ok = false
		}
		results[key] = summary
	}

	if unknown := fileTickers["unknown"]; len(unknown) > 0 {
		results["unknown"] = SourceSummary{FileTickers: len(unknown)}
		v.log.Warn("artifacts with undetectable provider", "table", table, "count", len(unknown))
	}

	v.log.Info("scope verification", "table", table, "root", root, "ok", ok)
	return ok, results, nil
}

// VerifyHashes checks that every row_hash carried by a scope's artifacts
// exists in at least one of the given canonical tables. Used for the
// static-detail scope, where artifacts are consolidated rather than
// per-ticker.
func (v *Verifier) VerifyHashes(ctx context.Context, tables []string, root string) (bool, int, error) {
	fileHashes, err := CollectRowHashes(root)
	if err != nil {
		return false, 0, err
	}
	if len(fileHashes) == 0 {
		v.log.Info("no fingerprinted artifacts under root", "root", root)
		return true, 0, nil
	}

	remaining := make(map[string]bool, len(fileHashes))
	for h := range fileHashes {
		remaining[h] = true
	}
	for _, table := range tables {
		if len(remaining) == 0 {
			break
		}
		pending := make([]string, 0, len(remaining))
		for h := range remaining {
			pending = append(pending, h)
		}
		rows, err := v.pool.Query(ctx, fmt.Sprintf(
			`SELECT row_hash FROM %s WHERE row_hash = ANY($1)`, table), pending)
		if err != nil {
			return false, 0, fmt.Errorf("match %s hashes: %w", table, err)
		}
		for rows.Next() {
			var h string
			if err := rows.Scan(&h); err != nil {
				rows.Close()
				return false, 0, err
			}
			delete(remaining, h)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return false, 0, err
		}
	}

	missing := len(remaining)
	v.log.Info("hash verification", "root", root,
		"file_hashes", len(fileHashes), "missing", missing)
	return missing == 0, missing, nil
}

// CollectRowHashes walks a directory and gathers the distinct row_hash
// values of every fingerprinted CSV. Files without a row_hash column are
// ignored; they have not been through the hashed stage yet.
func CollectRowHashes(root string) (map[string]bool, error) {
	hashes := make(map[string]bool)
	filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".csv") {
			return nil
		}
		table, err := stage.ReadCSV(path)
		if err != nil {
			return nil
		}
		if !table.HasColumn(hashing.FieldRowHash) {
			return nil
		}
		for _, row := range table.Rows {
			if h := row[hashing.FieldRowHash]; h != "" {
				hashes[h] = true
			}
		}
		return nil
	})
	return hashes, nil
}

func (v *Verifier) fetchTickers(ctx context.Context, table, sourceName string) (map[string]bool, error) {
	rows, err := v.pool.Query(ctx, fmt.Sprintf(
		`SELECT DISTINCT ticker FROM %s WHERE source = $1 AND ticker IS NOT NULL`, table), sourceName)
	if err != nil {
		return nil, fmt.Errorf("fetch %s tickers: %w", table, err)
	}
	defer rows.Close()

	tickers := make(map[string]bool)
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		if t != "" {
			tickers[t] = true
		}
	}
	return tickers, rows.Err()
}
