package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"

	"fundsync/internal/hashing"
	"fundsync/internal/schemamap"
	"fundsync/internal/stage"
	"fundsync/internal/store"
	"fundsync/platform/config"
	"fundsync/platform/db"
	"fundsync/platform/logger"
)

// fetchColumnsSQL discovers source tables and their column order from the
// catalog. Only the public schema is considered.
const fetchColumnsSQL = `
SELECT table_name, column_name
FROM information_schema.columns
WHERE table_schema = 'public'
ORDER BY table_name, ordinal_position`

func main() {
	sourceDSN := flag.String("source-dsn", "", "DSN of the foreign database to import (required)")
	tableArg := flag.String("table", "", "comma-separated source tables; default all discovered tables")
	dryRun := flag.Bool("dry-run", false, "print the mapping plan without loading rows")
	skipMigrations := flag.Bool("skip-migrations", false, "do not run schema migrations on startup")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}
	log := logger.New(cfg.Env)

	if *sourceDSN == "" {
		log.Error("-source-dsn is required")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !*skipMigrations && !*dryRun {
		if err := db.RunMigrations(ctx, cfg); err != nil {
			log.Error("migrations failed", "error", err)
			os.Exit(1)
		}
	}

	source, err := pgxpool.New(ctx, *sourceDSN)
	if err != nil {
		log.Error("failed to connect to source database", "error", err)
		os.Exit(5)
	}
	defer source.Close()

	var loader *store.Loader
	if !*dryRun {
		pool, err := db.NewPool(ctx, cfg)
		if err != nil {
			log.Error("failed to connect to canonical database", "error", err)
			os.Exit(5)
		}
		defer pool.Close()
		loader = store.NewLoader(pool, log)
	}

	tables, err := discoverTables(ctx, source)
	if err != nil {
		log.Error("source discovery failed", "error", err)
		os.Exit(1)
	}
	tables = filterTables(tables, *tableArg)
	if len(tables) == 0 {
		log.Error("no source tables to import")
		os.Exit(2)
	}

	mapper := schemamap.New(schemamap.DefaultHints())
	targets := store.ColumnNames()

	okCount, failCount, skipCount := 0, 0, 0
	for _, tbl := range tables {
		status := importTable(ctx, log, mapper, targets, source, loader, tbl, *dryRun)
		switch status {
		case "OK":
			okCount++
		case "SKIP":
			skipCount++
		default:
			failCount++
		}
	}

	log.Info("schema import finished",
		"ok", okCount, "failed", failCount, "skipped", skipCount, "dry_run", *dryRun)
	if failCount > 0 {
		os.Exit(1)
	}
}

type sourceTable struct {
	name    string
	columns []string
}

func discoverTables(ctx context.Context, pool *pgxpool.Pool) ([]sourceTable, error) {
	rows, err := pool.Query(ctx, fetchColumnsSQL)
	if err != nil {
		return nil, fmt.Errorf("fetch source columns: %w", err)
	}
	defer rows.Close()

	byName := make(map[string][]string)
	var order []string
	for rows.Next() {
		var table, column string
		if err := rows.Scan(&table, &column); err != nil {
			return nil, err
		}
		if _, seen := byName[table]; !seen {
			order = append(order, table)
		}
		byName[table] = append(byName[table], column)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	tables := make([]sourceTable, 0, len(order))
	for _, name := range order {
		tables = append(tables, sourceTable{name: name, columns: byName[name]})
	}
	return tables, nil
}

func filterTables(tables []sourceTable, arg string) []sourceTable {
	if arg == "" {
		return tables
	}
	wanted := make(map[string]bool)
	for _, name := range strings.Split(arg, ",") {
		wanted[strings.ToLower(strings.TrimSpace(name))] = true
	}
	var out []sourceTable
	for _, tbl := range tables {
		if wanted[strings.ToLower(tbl.name)] {
			out = append(out, tbl)
		}
	}
	return out
}

// importTable builds and reports one mapping plan, then loads the mapped
// rows unless this is a dry run. Returns OK, FAIL, or SKIP.
func importTable(
	ctx context.Context,
	log *logger.Logger,
	mapper *schemamap.Mapper,
	targets map[string][]string,
	source *pgxpool.Pool,
	loader *store.Loader,
	tbl sourceTable,
	dryRun bool,
) string {
	targetTable, score, ok := mapper.PickTable(tbl.name, tbl.columns, targets)
	if !ok {
		log.Warn("no canonical table for source table",
			"source_table", tbl.name, "best_score", fmt.Sprintf("%.2f", score))
		return "SKIP"
	}

	matches := mapper.MapColumns(tbl.columns, targets[targetTable])
	plan := schemamap.Plan{
		SourceTable: tbl.name,
		TargetTable: targetTable,
		TableScore:  score,
		Columns:     matches,
	}
	mappedTargets := make(map[string]bool)
	for _, m := range matches {
		if m.Reason == schemamap.ReasonUnmapped {
			plan.Unmapped = append(plan.Unmapped, m.Source)
		} else {
			mappedTargets[m.Target] = true
		}
	}
	plan.Defaults = mapper.Defaults(targets[targetTable], mappedTargets)
	printPlan(&plan)

	spec, found := store.Lookup(targetTable)
	if !found {
		log.Error("mapped table missing from registry", "table", targetTable)
		return "FAIL"
	}
	if !keyCovered(spec, mappedTargets, plan.Defaults) {
		log.Warn("mapping does not cover the natural key; skipping load",
			"source_table", tbl.name, "target_table", targetTable)
		return "SKIP"
	}
	if dryRun {
		return "OK"
	}

	table, err := fetchMapped(ctx, source, tbl.name, plan.Mapped(), plan.Defaults)
	if err != nil {
		log.Error("source read failed", "source_table", tbl.name, "error", err)
		return "FAIL"
	}
	if len(table.Rows) == 0 {
		log.Info("source table is empty", "source_table", tbl.name)
		return "SKIP"
	}

	stage.Fingerprint(table)
	res, err := loader.Load(ctx, spec, table)
	if err != nil {
		log.Error("load failed", "source_table", tbl.name, "target_table", targetTable, "error", err)
		return "FAIL"
	}
	log.Info("source table imported", "source_table", tbl.name, "target_table", targetTable,
		"inserted", res.Inserted, "updated", res.Updated, "skipped", res.Skipped)
	return "OK"
}

// keyCovered reports whether every natural-key column is supplied either
// by a mapped source column or an injected default.
func keyCovered(spec store.TableSpec, mappedTargets map[string]bool, defaults map[string]string) bool {
	for _, col := range spec.Key {
		if !mappedTargets[col] && defaults[col] == "" {
			return false
		}
	}
	return true
}

// fetchMapped reads the mapped source columns and renames them into a
// stage table keyed by canonical column names, with defaults injected.
func fetchMapped(ctx context.Context, pool *pgxpool.Pool, sourceTable string, mapped map[string]string, defaults map[string]string) (*stage.Table, error) {
	sourceCols := make([]string, 0, len(mapped))
	for src := range mapped {
		sourceCols = append(sourceCols, src)
	}
	sort.Strings(sourceCols)

	quoted := make([]string, len(sourceCols))
	for i, col := range sourceCols {
		quoted[i] = fmt.Sprintf("%q", col)
	}
	rows, err := pool.Query(ctx, fmt.Sprintf(
		"SELECT %s FROM %q", strings.Join(quoted, ", "), sourceTable))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", sourceTable, err)
	}
	defer rows.Close()

	columns := make([]string, 0, len(sourceCols)+len(defaults))
	for _, src := range sourceCols {
		columns = append(columns, mapped[src])
	}
	for col := range defaults {
		columns = append(columns, col)
	}
	sort.Strings(columns)
	table := &stage.Table{Columns: columns}

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make(map[string]string, len(columns))
		for i, src := range sourceCols {
			row[mapped[src]] = cellString(values[i])
		}
		for col, value := range defaults {
			row[col] = value
		}
		table.Rows = append(table.Rows, row)
	}
	return table, rows.Err()
}

func cellString(v any) string {
	return hashing.Normalize(v)
}

func printPlan(plan *schemamap.Plan) {
	fmt.Printf("\n%s -> %s (score %.2f)\n", plan.SourceTable, plan.TargetTable, plan.TableScore)
	for _, m := range plan.Columns {
		if m.Reason == schemamap.ReasonUnmapped {
			continue
		}
		fmt.Printf("  %-28s -> %-28s %s (%.2f)\n", m.Source, m.Target, m.Reason, m.Score)
	}
	for _, src := range plan.Unmapped {
		fmt.Printf("  %-28s -> (unmapped)\n", src)
	}
	keys := make([]string, 0, len(plan.Defaults))
	for col := range plan.Defaults {
		keys = append(keys, col)
	}
	sort.Strings(keys)
	for _, col := range keys {
		fmt.Printf("  %-28s <- default %q\n", col, plan.Defaults[col])
	}
}
