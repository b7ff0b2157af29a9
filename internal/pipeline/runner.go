package pipeline

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"fundsync/platform/logger"
)

// Report aggregates one run's step results.
type Report struct {
	Results []StepResult
	Started time.Time
	Elapsed time.Duration
}

func (r *Report) Failed() int {
	n := 0
	for _, res := range r.Results {
		if res.Status == StatusFailed {
			n++
		}
	}
	return n
}

func (r *Report) OK() bool { return r.Failed() == 0 }

// Runner executes steps sequentially. Fail-fast is the default; in
// continue-on-failure mode a failed step is recorded and the remaining
// steps still run.
type Runner struct {
	log               *logger.Logger
	continueOnFailure bool
}

func NewRunner(log *logger.Logger, continueOnFailure bool) *Runner {
	return &Runner{log: log, continueOnFailure: continueOnFailure}
}

// Run executes the steps in order and returns the aggregated report.
func (r *Runner) Run(ctx context.Context, pipeline string, steps []Step) Report {
	report := Report{Started: time.Now()}
	stopped := false

	for _, step := range steps {
		if stopped {
			report.Results = append(report.Results, Skip(step.Name(), "earlier step failed"))
			continue
		}
		r.log.StageStart(pipeline, step.Name())
		res := step.Run(ctx)
		report.Results = append(report.Results, res)

		switch res.Status {
		case StatusFailed:
			r.log.StageFailed(pipeline, step.Name(), res.Err)
			if !r.continueOnFailure {
				stopped = true
			}
		case StatusSkipped:
			r.log.Info("stage skipped", "pipeline", pipeline, "stage", step.Name(), "reason", res.Reason)
		default:
			r.log.StageDone(pipeline, step.Name(), res.Elapsed, res.Rows)
		}
	}
	report.Elapsed = time.Since(report.Started)
	return report
}

// Group runs independent sub-steps of one stage concurrently, bounded by
// limit. The group fails if any sub-step fails; all sub-steps run to
// completion either way so the report covers every provider. An optional
// pacer spaces out sub-step starts.
type Group struct {
	GroupName string
	Limit     int
	Pace      *rate.Limiter
	Steps     []Step
}

func (g Group) Name() string { return g.GroupName }

func (g Group) Run(ctx context.Context) StepResult {
	start := time.Now()

	eg, ctx := errgroup.WithContext(ctx)
	if g.Limit > 0 {
		eg.SetLimit(g.Limit)
	}

	var mu sync.Mutex
	var rows int
	var failures []StepResult

	for _, step := range g.Steps {
		step := step
		eg.Go(func() error {
			if g.Pace != nil {
				if err := g.Pace.Wait(ctx); err != nil {
					mu.Lock()
					failures = append(failures, StepResult{
						Name: step.Name(), Status: StatusFailed, Err: err,
					})
					mu.Unlock()
					return nil
				}
			}
			res := step.Run(ctx)
			mu.Lock()
			defer mu.Unlock()
			rows += res.Rows
			if res.Status == StatusFailed {
				failures = append(failures, res)
			}
			return nil
		})
	}
	eg.Wait()

	result := StepResult{
		Name:    g.GroupName,
		Status:  StatusSuccess,
		Rows:    rows,
		Elapsed: time.Since(start),
	}
	if len(failures) > 0 {
		result.Status = StatusFailed
		result.Reason = failures[0].Name
		result.Err = failures[0].Err
	}
	return result
}
