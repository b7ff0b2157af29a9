// Package scheduler runs the nightly pipeline through asynq: a periodic
// enqueuer emits one pipeline.run task per night, and the worker executes
// it under a Redis run lock so overlapping runs never double-ingest.
package scheduler

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"fundsync/platform/config"
	"fundsync/platform/logger"
)

// RunFunc executes one full pipeline run.
type RunFunc func(ctx context.Context, allowPartialNAV bool) error

type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	lock   *RunLock
	run    RunFunc
	log    *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, run RunFunc, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL)
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}
	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 1
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	lock, err := NewRunLock(redisURL)
	if err != nil {
		return nil, err
	}

	mux := asynq.NewServeMux()
	w := &Worker{server: server, mux: mux, lock: lock, run: run, log: log}
	mux.HandleFunc(TaskPipelineRun, w.handlePipelineRun)
	return w, nil
}

func (w *Worker) handlePipelineRun(ctx context.Context, task *asynq.Task) error {
	payload, err := ParsePipelineRunPayload(task)
	if err != nil {
		return err
	}
	runID := payload.RunID
	if runID == "" {
		runID = uuid.New().String()
	}

	acquired, err := w.lock.Acquire(ctx, runID)
	if err != nil {
		return fmt.Errorf("acquire run lock: %w", err)
	}
	if !acquired {
		w.log.Warn("pipeline run skipped: another run holds the lock", "run_id", runID)
		return nil
	}
	defer func() {
		if err := w.lock.Release(context.WithoutCancel(ctx), runID); err != nil {
			w.log.Error("release run lock failed", "run_id", runID, "error", err)
		}
	}()

	w.log.Info("scheduled pipeline run starting", "run_id", runID)
	return w.run(ctx, payload.AllowPartialNAV)
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

func redisClientOpt(redisURL string) (asynq.RedisClientOpt, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}
	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: opt.TLSConfig,
	}, nil
}
