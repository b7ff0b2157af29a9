package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"fundsync/internal/archive"
	"fundsync/internal/integrity"
	"fundsync/internal/stage"
	"fundsync/platform/apperr"
	"fundsync/platform/config"
	"fundsync/platform/db"
	"fundsync/platform/logger"
)

// verifyTableByScope names the canonical table each per-ticker scope is
// checked against.
var verifyTableByScope = map[string]string{
	archive.ScopePriceHistory:    "stg_price_history",
	archive.ScopeDividendHistory: "stg_dividend_history",
}

// staticTables are the canonical tables a static-detail row_hash may have
// landed in.
var staticTables = []string{
	"stg_fund_info", "stg_fund_fees", "stg_fund_risk", "stg_fund_policy",
	"stg_fund_holdings", "stg_allocations", "stg_fund_metrics",
}

func main() {
	verify := flag.Bool("verify", false, "verify hot-storage artifacts against the canonical store")
	archiveFlag := flag.Bool("archive", false, "bundle verified scopes into the date-keyed archive")
	cleanup := flag.Bool("cleanup", false, "delete hot-storage CSVs for verified, archived scopes")
	run := flag.Bool("run", false, "verify, archive, and cleanup in order")
	dryRun := flag.Bool("dry-run", false, "report counts without deleting")
	date := flag.String("date", time.Now().Format(stage.DateLayout), "archive date key (YYYY-MM-DD)")
	scopeArg := flag.String("scope", "", "comma-separated scopes (price, div, static, nav); default all")
	allowPartial := flag.Bool("allow-partial", false, "archive/cleanup each scope that passes verification even if others fail")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}
	log := logger.New(cfg.Env)

	doVerify := *verify || *run
	doArchive := *archiveFlag || *run
	doCleanup := *cleanup || *run

	if (doArchive || doCleanup) && !doVerify {
		log.Error("archive/cleanup requires -verify or -run")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(5)
	}
	defer pool.Close()

	var cold *archive.ColdStore
	if cfg.IsColdStoreEnabled() {
		cold, err = archive.NewColdStore(ctx,
			cfg.GetColdStoreEndpoint(), cfg.GetColdStoreAccessKey(),
			cfg.GetColdStoreSecretKey(), cfg.GetColdStoreBucket(),
			cfg.GetColdStoreUseSSL())
		if err != nil {
			log.Error("cold store unavailable", "error", err)
			os.Exit(5)
		}
	}

	dataDir := cfg.GetDataDir()
	arch := archive.New(dataDir, log, cold)
	housekeeper := archive.NewHousekeeper(arch, log)
	verifier := archive.NewVerifier(pool, log)
	gate := integrity.New(pool, log)

	scopes := archive.NormalizeScopes(flagValues(*scopeArg))
	allOK := true

	if doVerify {
		for _, scope := range scopes {
			ok, err := verifyScope(ctx, verifier, gate, dataDir, scope)
			if err != nil {
				log.Error("verification error", "scope", scope, "error", err)
				ok = false
			}
			housekeeper.MarkVerified(scope, ok)
			allOK = allOK && ok
			log.Info("scope verified", "scope", scope, "ok", ok)
		}
		if !allOK && !*allowPartial && (doArchive || doCleanup) {
			log.Error("verification failed; pass -allow-partial to continue with passing scopes")
			os.Exit(4)
		}
	}

	if doArchive {
		for _, scope := range scopes {
			if !housekeeper.Verified(scope) {
				continue
			}
			n, err := housekeeper.Archive(scope, *date, archiveTargets(dataDir, scope))
			if err != nil {
				log.Error("archive failed", "scope", scope, "error", err)
				os.Exit(exitCode(err))
			}
			log.Info("scope archived", "scope", scope, "date", *date, "files", n)
		}
	}

	if doCleanup {
		total := 0
		for _, scope := range scopes {
			if !housekeeper.Verified(scope) {
				continue
			}
			n, err := housekeeper.Cleanup(scope, cleanupRoots(dataDir, scope), *dryRun)
			if err != nil {
				log.Error("cleanup refused", "scope", scope, "error", err)
				os.Exit(exitCode(err))
			}
			total += n
		}
		if !*dryRun {
			if n, err := gate.CleanupTempTables(ctx); err != nil {
				log.Warn("temp table cleanup failed", "error", err)
			} else if n > 0 {
				log.Info("dropped leftover verification tables", "count", n)
			}
		}
		log.Info("cleanup finished", "files", total, "dry_run", *dryRun)
	}
}

// verifyScope runs the scope-appropriate check: ticker coverage for
// per-ticker scopes, row-hash coverage for the consolidated static
// artifacts, key completeness for the NAV artifact.
func verifyScope(ctx context.Context, verifier *archive.Verifier, gate *integrity.Gate, dataDir, scope string) (bool, error) {
	switch scope {
	case archive.ScopeDailyNAV:
		table, err := readNAV(dataDir)
		if err != nil {
			if apperr.Is(err, apperr.KindNotFound) {
				// Nothing staged means nothing to clean up either.
				return false, nil
			}
			return false, err
		}
		ok, _, err := gate.CheckPerformance(ctx, integrity.ObservationKeys(table))
		return ok, err

	case archive.ScopeStaticDetails:
		for _, root := range cleanupRoots(dataDir, scope) {
			ok, _, err := verifier.VerifyHashes(ctx, staticTables, root)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil

	default:
		table := verifyTableByScope[scope]
		for _, root := range cleanupRoots(dataDir, scope) {
			ok, _, err := verifier.VerifyScope(ctx, table, root)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	}
}

func readNAV(dataDir string) (*stage.Table, error) {
	root := stage.StagingDir(dataDir, "performance")
	for _, name := range []string{stage.NAVArtifactPreferred, stage.NAVArtifactFallback} {
		path := filepath.Join(root, name)
		if _, err := os.Stat(path); err == nil {
			return stage.ReadCSV(path)
		}
	}
	return nil, apperr.NotFound("no staged NAV artifact")
}

// archiveTargets labels each scope root by its path under the data dir,
// so bundles inside one zip stay distinguishable.
func archiveTargets(dataDir, scope string) map[string]string {
	targets := make(map[string]string)
	for _, root := range cleanupRoots(dataDir, scope) {
		rel, err := filepath.Rel(dataDir, root)
		if err != nil {
			rel = filepath.Base(root)
		}
		label := strings.ReplaceAll(filepath.ToSlash(rel), "/", "_")
		targets[label] = root
	}
	return targets
}

func cleanupRoots(dataDir, scope string) []string {
	if scope == archive.ScopeDailyNAV {
		return []string{stage.StagingDir(dataDir, "performance")}
	}
	pipelines := []string{scope}
	if scope == archive.ScopeStaticDetails {
		// Static details span both the detail and holdings artifacts.
		pipelines = []string{"static_details", "holdings"}
	}
	var roots []string
	for _, p := range pipelines {
		roots = append(roots,
			stage.StagingDir(dataDir, p),
			filepath.Join(dataDir, stage.HashedDirName, p))
	}
	return roots
}

func flagValues(arg string) []string {
	if arg == "" {
		return nil
	}
	return []string{arg}
}

func exitCode(err error) int {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return appErr.ExitCode()
	}
	return 1
}
