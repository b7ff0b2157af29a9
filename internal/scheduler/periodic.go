package scheduler

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"fundsync/platform/config"
	"fundsync/platform/logger"
)

// Periodic enqueues the nightly pipeline.run task on the configured cron
// spec, in the pipeline timezone so "after market close" means local
// close.
type Periodic struct {
	scheduler *asynq.Scheduler
	log       *logger.Logger
}

func NewPeriodic(cfg config.SchedulerConfig, timezone string, allowPartialNAV bool, log *logger.Logger) (*Periodic, error) {
	opt, err := redisClientOpt(cfg.GetRedisURL())
	if err != nil {
		return nil, err
	}

	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %s: %w", timezone, err)
	}

	scheduler := asynq.NewScheduler(opt, &asynq.SchedulerOpts{Location: loc})

	task, err := NewPipelineRunTask(PipelineRunPayload{
		RunID:           uuid.New().String(),
		AllowPartialNAV: allowPartialNAV,
	})
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}
	if _, err := scheduler.Register(cfg.GetPipelineCronSpec(), task, asynq.Queue(queue)); err != nil {
		return nil, fmt.Errorf("register pipeline cron: %w", err)
	}

	log.Info("pipeline schedule registered", "cron", cfg.GetPipelineCronSpec(), "timezone", timezone)
	return &Periodic{scheduler: scheduler, log: log}, nil
}

func (p *Periodic) Run() error {
	return p.scheduler.Run()
}

func (p *Periodic) Shutdown() {
	p.scheduler.Shutdown()
}
