package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"fundsync/internal/integrity"
	"fundsync/internal/lifecycle"
	"fundsync/internal/pipeline"
	"fundsync/internal/stage"
	"fundsync/internal/store"
	"fundsync/platform/apperr"
	"fundsync/platform/config"
	"fundsync/platform/db"
	"fundsync/platform/logger"
	"fundsync/platform/validator"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	only := flag.String("only", "", "comma-separated pipeline subset (master,performance,detail,holdings); bypasses the integrity gate")
	continueOnFail := flag.Bool("continue-on-fail", false, "record stage failures and keep running remaining independent stages")
	allowPartialNAV := flag.Bool("allow-partial-nav", false, "relax the observation-currency check only")
	skipMigrations := flag.Bool("skip-migrations", false, "do not run schema migrations on startup")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env).WithRun(uuid.New().String()[:8])
	log.Info("starting pipeline", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !*skipMigrations {
		if err := db.RunMigrations(ctx, cfg); err != nil {
			log.Error("migrations failed", "error", err)
			os.Exit(1)
		}
	}

	pool, err := connect(ctx, cfg)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(exitCode(apperr.Wrap(apperr.KindUnavailable, "database unavailable", err)))
	}
	defer pool.Close()

	allowPartial := *allowPartialNAV || cfg.GetAllowPartialNAV()

	gate := integrity.New(pool, log)
	if n, err := gate.CleanupTempTables(ctx); err != nil {
		log.Warn("leftover temp table cleanup failed", "error", err)
	} else if n > 0 {
		log.Info("dropped leftover verification tables", "count", n)
	}

	sync := pipeline.NewSync(
		cfg.GetDataDir(),
		store.NewLoader(pool, log),
		stage.NewWriter(cfg.GetDataDir(), log),
		validator.New(),
		lifecycle.New(pool, log, cfg.GetGracePeriodDays()),
		gate,
		log,
		cfg.GetBrowserConcurrency(),
		today(cfg.GetTimezone()),
	)
	runner := pipeline.NewRunner(log, *continueOnFail)
	stages := sync.Stages()

	started := time.Now()
	var report pipeline.Report
	var runErr error

	if *only != "" {
		report = runner.Run(ctx, "manual", selectStages(stages, *only))
		if !report.OK() {
			runErr = apperr.Internal("one or more stages failed")
		}
	} else {
		orch := pipeline.NewOrchestrator(log, runner, sync.GateFunc, allowPartial)
		report, runErr = orch.Run(ctx, stages)
	}

	status := "success"
	if runErr != nil {
		status = "failed"
	}
	log.RunSummary(status, time.Since(started), len(report.Results), report.Failed())
	for _, res := range report.Results {
		log.Info("step result", "step", res.Name, "status", string(res.Status),
			"rows", res.Rows, "reason", res.Reason)
	}

	if runErr != nil {
		log.Error("pipeline run failed", "error", runErr)
		os.Exit(exitCode(runErr))
	}
}

// selectStages resolves a -only subset, preserving global order.
func selectStages(stages pipeline.Stages, only string) []pipeline.Step {
	wanted := make(map[string]bool)
	for _, name := range strings.Split(only, ",") {
		wanted[strings.ToLower(strings.TrimSpace(name))] = true
	}

	var steps []pipeline.Step
	if wanted[pipeline.PipelineMaster] {
		steps = append(steps, stages.Master)
	}
	if wanted[pipeline.PipelinePerformance] {
		steps = append(steps, stages.Performance)
	}
	if wanted[pipeline.PipelineDetail] {
		steps = append(steps, stages.Detail)
	}
	if wanted[pipeline.PipelineHoldings] {
		steps = append(steps, stages.Holdings)
	}
	return steps
}

// connect retries transient connection failures so a pipeline starting
// alongside the database does not fail its first attempt.
func connect(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	var pool *pgxpool.Pool
	err := pipeline.WithRetry(ctx, func(ctx context.Context) error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return pipeline.Retryable(err)
		}
		pool = p
		return nil
	})
	return pool, err
}

// today pins "today" to the pipeline timezone so a run just after
// midnight UTC still processes the local calendar date.
func today(timezone string) func() time.Time {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		loc = time.UTC
	}
	return func() time.Time {
		now := time.Now().In(loc)
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	}
}

func exitCode(err error) int {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return appErr.ExitCode()
	}
	return 1
}
