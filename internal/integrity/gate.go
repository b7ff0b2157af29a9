// Package integrity is the gate between ingestion and the downstream
// detail/holdings stages: it proves that what the staging artifacts claim
// to have produced actually landed in the canonical store, and that the
// observations are current. The checks are read-only apart from a
// transient comparison table dropped before returning.
package integrity

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fundsync/platform/logger"
)

// sampleLimit bounds the missing-key diagnostics in a summary.
const sampleLimit = 20

// LastBusinessDay walks back from today until it leaves the weekend: the
// freshest NAV anyone can expect is the last weekday's close.
func LastBusinessDay(today time.Time) time.Time {
	d := today.AddDate(0, 0, -1)
	for d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

// KeySummary reports one artifact-versus-store comparison.
type KeySummary struct {
	FileDate      time.Time
	FileKeys      int
	Matched       int
	Missing       int
	MissingSample []string
	Stale         bool
}

// ObservationSummary reports the currency of active entities' NAVs.
type ObservationSummary struct {
	ReferenceDate time.Time
	TotalActive   int
	Current       int
	Stale         int
	NoObservation int
	Sample        []string
}

type Gate struct {
	pool *pgxpool.Pool
	log  *logger.Logger
}

func New(pool *pgxpool.Pool, log *logger.Logger) *Gate {
	return &Gate{pool: pool, log: log}
}

// CheckMaster verifies master-list currency: the artifact must be dated
// today, and every key in it must match an entity whose last_seen equals
// the artifact date. Keys are compared through a uniquely-named temporary
// table, dropped before returning.
func (g *Gate) CheckMaster(ctx context.Context, keys []EntityKey, fileDate, today time.Time) (bool, KeySummary, error) {
	summary := KeySummary{
		FileDate: fileDate,
		FileKeys: len(keys),
		Stale:    !sameDay(fileDate, today),
	}
	if len(keys) == 0 {
		return false, summary, nil
	}

	temp := fmt.Sprintf("temp_master_verify_%s", uuid.New().String()[:8])
	if err := g.loadKeys(ctx, temp, keys); err != nil {
		return false, summary, err
	}
	defer g.dropTemp(ctx, temp)

	err := g.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT COUNT(*)
		FROM %s t
		JOIN stg_security_master m
		  ON m.ticker = t.ticker
		 AND m.asset_type = t.asset_type
		 AND m.source = t.source
		 AND m.last_seen = $1`, temp), fileDate).Scan(&summary.Matched)
	if err != nil {
		return false, summary, fmt.Errorf("master match count: %w", err)
	}
	summary.Missing = summary.FileKeys - summary.Matched

	rows, err := g.pool.Query(ctx, fmt.Sprintf(`
		SELECT t.ticker, t.asset_type, t.source
		FROM %s t
		LEFT JOIN stg_security_master m
		  ON m.ticker = t.ticker
		 AND m.asset_type = t.asset_type
		 AND m.source = t.source
		 AND m.last_seen = $1
		WHERE m.ticker IS NULL
		LIMIT $2`, temp), fileDate, sampleLimit)
	if err != nil {
		return false, summary, fmt.Errorf("master missing sample: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var ticker, assetType, source string
		if err := rows.Scan(&ticker, &assetType, &source); err != nil {
			return false, summary, err
		}
		summary.MissingSample = append(summary.MissingSample,
			fmt.Sprintf("%s|%s|%s", ticker, assetType, source))
	}
	if err := rows.Err(); err != nil {
		return false, summary, err
	}

	ok := !summary.Stale && summary.Missing == 0
	g.log.IntegrityResult("master_currency", ok, summary.FileKeys, summary.Matched, summary.Missing)
	return ok, summary, nil
}

// CheckPerformance verifies that every (key, date) pair in a NAV artifact
// is persisted in stg_daily_nav.
func (g *Gate) CheckPerformance(ctx context.Context, keys []ObservationKey) (bool, KeySummary, error) {
	summary := KeySummary{FileKeys: len(keys)}
	if len(keys) == 0 {
		return false, summary, nil
	}

	temp := fmt.Sprintf("temp_nav_verify_%s", uuid.New().String()[:8])
	if err := g.loadObservationKeys(ctx, temp, keys); err != nil {
		return false, summary, err
	}
	defer g.dropTemp(ctx, temp)

	err := g.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT COUNT(*)
		FROM %s t
		JOIN stg_daily_nav d
		  ON d.ticker = t.ticker
		 AND d.asset_type = t.asset_type
		 AND d.source = t.source
		 AND d.as_of_date = t.as_of_date`, temp)).Scan(&summary.Matched)
	if err != nil {
		return false, summary, fmt.Errorf("performance match count: %w", err)
	}
	summary.Missing = summary.FileKeys - summary.Matched

	rows, err := g.pool.Query(ctx, fmt.Sprintf(`
		SELECT t.ticker, t.asset_type, t.source, t.as_of_date
		FROM %s t
		LEFT JOIN stg_daily_nav d
		  ON d.ticker = t.ticker
		 AND d.asset_type = t.asset_type
		 AND d.source = t.source
		 AND d.as_of_date = t.as_of_date
		WHERE d.ticker IS NULL
		LIMIT $1`, temp), sampleLimit)
	if err != nil {
		return false, summary, fmt.Errorf("performance missing sample: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var ticker, assetType, source string
		var asOf time.Time
		if err := rows.Scan(&ticker, &assetType, &source, &asOf); err != nil {
			return false, summary, err
		}
		summary.MissingSample = append(summary.MissingSample,
			fmt.Sprintf("%s|%s|%s|%s", ticker, assetType, source, asOf.Format("2006-01-02")))
	}
	if err := rows.Err(); err != nil {
		return false, summary, err
	}

	ok := summary.Missing == 0
	g.log.IntegrityResult("performance_completeness", ok, summary.FileKeys, summary.Matched, summary.Missing)
	return ok, summary, nil
}

// observationBase groups each active entity with its latest NAV date.
const observationBase = `
	SELECT m.ticker, m.asset_type, m.source, MAX(d.as_of_date) AS latest_date
	FROM stg_security_master m
	LEFT JOIN stg_daily_nav d
	  ON d.ticker = m.ticker
	 AND d.asset_type = m.asset_type
	 AND d.source = m.source
	WHERE m.status = 'active'
	GROUP BY m.ticker, m.asset_type, m.source`

// CheckObservations verifies observation currency: every active entity
// must carry a NAV dated on or after the reference date (normally the last
// business day).
func (g *Gate) CheckObservations(ctx context.Context, reference time.Time) (bool, ObservationSummary, error) {
	summary := ObservationSummary{ReferenceDate: reference}

	err := g.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE latest_date IS NULL),
		       COUNT(*) FILTER (WHERE latest_date IS NOT NULL AND latest_date < $1)
		FROM (%s) s`, observationBase), reference).
		Scan(&summary.TotalActive, &summary.NoObservation, &summary.Stale)
	if err != nil {
		return false, summary, fmt.Errorf("observation currency counts: %w", err)
	}
	summary.Current = summary.TotalActive - summary.NoObservation - summary.Stale
	if summary.Current < 0 {
		summary.Current = 0
	}

	rows, err := g.pool.Query(ctx, fmt.Sprintf(`
		SELECT s.ticker, s.asset_type, s.source, s.latest_date
		FROM (%s) s
		WHERE s.latest_date IS NULL OR s.latest_date < $1
		ORDER BY s.latest_date NULLS FIRST
		LIMIT $2`, observationBase), reference, sampleLimit)
	if err != nil {
		return false, summary, fmt.Errorf("observation currency sample: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var ticker, assetType, source string
		var latest *time.Time
		if err := rows.Scan(&ticker, &assetType, &source, &latest); err != nil {
			return false, summary, err
		}
		latestStr := "never"
		if latest != nil {
			latestStr = latest.Format("2006-01-02")
		}
		summary.Sample = append(summary.Sample,
			fmt.Sprintf("%s|%s|%s|%s", ticker, assetType, source, latestStr))
	}
	if err := rows.Err(); err != nil {
		return false, summary, err
	}

	ok := summary.TotalActive > 0 && summary.NoObservation+summary.Stale == 0
	g.log.IntegrityResult("observation_currency", ok, summary.TotalActive, summary.Current,
		summary.NoObservation+summary.Stale)
	return ok, summary, nil
}

func (g *Gate) loadKeys(ctx context.Context, temp string, keys []EntityKey) error {
	_, err := g.pool.Exec(ctx, fmt.Sprintf(
		`CREATE TABLE %s (ticker TEXT, asset_type TEXT, source TEXT)`, temp))
	if err != nil {
		return fmt.Errorf("create %s: %w", temp, err)
	}
	rows := make([][]any, len(keys))
	for i, k := range keys {
		rows[i] = []any{k.Ticker, k.AssetType, k.Source}
	}
	_, err = g.pool.CopyFrom(ctx, pgx.Identifier{temp},
		[]string{"ticker", "asset_type", "source"}, pgx.CopyFromRows(rows))
	if err != nil {
		g.dropTemp(ctx, temp)
		return fmt.Errorf("copy into %s: %w", temp, err)
	}
	return nil
}

func (g *Gate) loadObservationKeys(ctx context.Context, temp string, keys []ObservationKey) error {
	_, err := g.pool.Exec(ctx, fmt.Sprintf(
		`CREATE TABLE %s (ticker TEXT, asset_type TEXT, source TEXT, as_of_date DATE)`, temp))
	if err != nil {
		return fmt.Errorf("create %s: %w", temp, err)
	}
	rows := make([][]any, len(keys))
	for i, k := range keys {
		rows[i] = []any{k.Ticker, k.AssetType, k.Source, k.AsOfDate}
	}
	_, err = g.pool.CopyFrom(ctx, pgx.Identifier{temp},
		[]string{"ticker", "asset_type", "source", "as_of_date"}, pgx.CopyFromRows(rows))
	if err != nil {
		g.dropTemp(ctx, temp)
		return fmt.Errorf("copy into %s: %w", temp, err)
	}
	return nil
}

func (g *Gate) dropTemp(ctx context.Context, temp string) {
	if _, err := g.pool.Exec(ctx, "DROP TABLE IF EXISTS "+temp); err != nil {
		g.log.DatabaseError("drop "+temp, err)
	}
}

// CleanupTempTables drops leftover comparison tables from interrupted
// runs.
func (g *Gate) CleanupTempTables(ctx context.Context) (int, error) {
	rows, err := g.pool.Query(ctx, `
		SELECT tablename FROM pg_tables
		WHERE schemaname = 'public'
		  AND (tablename LIKE 'temp_master_verify_%' OR tablename LIKE 'temp_nav_verify_%')
		ORDER BY tablename`)
	if err != nil {
		return 0, err
	}
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return 0, err
		}
		names = append(names, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, name := range names {
		if _, err := g.pool.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS public.%q`, name)); err != nil {
			return 0, fmt.Errorf("drop %s: %w", name, err)
		}
	}
	return len(names), nil
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}
