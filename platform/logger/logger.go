// Package logger provides structured logging infrastructure for the application.
// This is part of the platform layer and contains no business logic.
package logger

import (
	"log/slog"
	"os"
	"strings"
	"time"
)

// Logger wraps slog.Logger for structured logging
type Logger struct {
	*slog.Logger
}

// New creates a new logger based on environment
func New(env string) *Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	if strings.EqualFold(env, "development") {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithRun returns a logger carrying the pipeline run ID.
func (l *Logger) WithRun(runID string) *Logger {
	return &Logger{
		Logger: l.With(slog.String("run_id", runID)),
	}
}

// WithStage returns a logger carrying the stage name.
func (l *Logger) WithStage(stage string) *Logger {
	return &Logger{
		Logger: l.With(slog.String("stage", stage)),
	}
}

// StageStart logs the start of a pipeline stage.
func (l *Logger) StageStart(pipeline, stage string) {
	l.Info("stage_start",
		slog.String("pipeline", pipeline),
		slog.String("stage", stage),
	)
}

// StageDone logs a completed pipeline stage with its duration.
func (l *Logger) StageDone(pipeline, stage string, elapsed time.Duration, rows int) {
	l.Info("stage_done",
		slog.String("pipeline", pipeline),
		slog.String("stage", stage),
		slog.Float64("elapsed_s", elapsed.Seconds()),
		slog.Int("rows", rows),
	)
}

// StageFailed logs a failed pipeline stage.
func (l *Logger) StageFailed(pipeline, stage string, err error) {
	l.Error("stage_failed",
		slog.String("pipeline", pipeline),
		slog.String("stage", stage),
		slog.String("error", err.Error()),
	)
}

// DatabaseError logs database errors
func (l *Logger) DatabaseError(operation string, err error) {
	l.Error("database_error",
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
}

// LoadSummary logs the outcome of one loader run against a table.
func (l *Logger) LoadSummary(table string, inserted, updated, skipped, failed int) {
	l.Info("load_summary",
		slog.String("table", table),
		slog.Int("inserted", inserted),
		slog.Int("updated", updated),
		slog.Int("skipped", skipped),
		slog.Int("failed", failed),
	)
}

// IntegrityResult logs the outcome of one integrity gate check.
func (l *Logger) IntegrityResult(check string, ok bool, fileKeys, matched, missing int) {
	if ok {
		l.Info("integrity_check",
			slog.String("check", check),
			slog.Bool("ok", ok),
			slog.Int("file_keys", fileKeys),
			slog.Int("db_matches", matched),
		)
	} else {
		l.Warn("integrity_check",
			slog.String("check", check),
			slog.Bool("ok", ok),
			slog.Int("file_keys", fileKeys),
			slog.Int("db_matches", matched),
			slog.Int("missing_keys", missing),
		)
	}
}

// RunSummary logs the final per-run report.
func (l *Logger) RunSummary(status string, elapsed time.Duration, stepsTotal, stepsFailed int) {
	l.Info("run_summary",
		slog.String("status", status),
		slog.Float64("elapsed_s", elapsed.Seconds()),
		slog.Int("steps_total", stepsTotal),
		slog.Int("steps_failed", stepsFailed),
	)
}
