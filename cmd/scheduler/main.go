package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"fundsync/internal/integrity"
	"fundsync/internal/lifecycle"
	"fundsync/internal/pipeline"
	"fundsync/internal/scheduler"
	"fundsync/internal/stage"
	"fundsync/internal/store"
	"fundsync/platform/config"
	"fundsync/platform/db"
	"fundsync/platform/logger"
	"fundsync/platform/validator"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}
	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := db.RunMigrations(ctx, cfg); err != nil {
		log.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	pool, err := connect(ctx, cfg)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(5)
	}
	defer pool.Close()

	sync := pipeline.NewSync(
		cfg.GetDataDir(),
		store.NewLoader(pool, log),
		stage.NewWriter(cfg.GetDataDir(), log),
		validator.New(),
		lifecycle.New(pool, log, cfg.GetGracePeriodDays()),
		integrity.New(pool, log),
		log,
		cfg.GetBrowserConcurrency(),
		today(cfg.GetTimezone()),
	)

	run := func(ctx context.Context, allowPartialNAV bool) error {
		started := time.Now()
		runner := pipeline.NewRunner(log, false)
		orch := pipeline.NewOrchestrator(log, runner, sync.GateFunc, allowPartialNAV)
		report, err := orch.Run(ctx, sync.Stages())

		status := "success"
		if err != nil {
			status = "failed"
		}
		log.RunSummary(status, time.Since(started), len(report.Results), report.Failed())
		return err
	}

	worker, err := scheduler.NewWorker(cfg, run, log)
	if err != nil {
		log.Error("failed to build scheduler worker", "error", err)
		os.Exit(1)
	}

	periodic, err := scheduler.NewPeriodic(cfg, cfg.GetTimezone(), cfg.GetAllowPartialNAV(), log)
	if err != nil {
		log.Error("failed to build periodic scheduler", "error", err)
		os.Exit(1)
	}

	go func() {
		<-ctx.Done()
		periodic.Shutdown()
	}()
	go func() {
		if err := periodic.Run(); err != nil {
			log.Error("periodic scheduler stopped", "error", err)
		}
	}()

	worker.Run(ctx)
	log.Info("scheduler stopped")
}

// connect retries transient connection failures so the scheduler can
// start before the database finishes coming up.
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
