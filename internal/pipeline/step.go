// Package pipeline runs the staged synchronization flow: master then
// performance ingestion, the integrity gate with a single bounded re-run,
// then the detail and holdings stages. Steps run in-process behind a small
// interface instead of shelling out per stage.
package pipeline

import (
	"context"
	"time"
)

// Step statuses. Expected conditions (nothing to do, gate skipped the
// stage) are statuses, not errors.
type Status string

const (
	StatusSuccess Status = "success"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// StepResult is one step's outcome in the run report.
type StepResult struct {
	Name    string
	Status  Status
	Reason  string
	Rows    int
	Elapsed time.Duration
	Err     error
}

// Step is a unit of pipeline work.
type Step interface {
	Name() string
	Run(ctx context.Context) StepResult
}

// StepFunc adapts a plain function into a Step, timing it and translating
// the error into a result.
type StepFunc struct {
	StepName string
	Fn       func(ctx context.Context) (rows int, err error)
}

func (s StepFunc) Name() string { return s.StepName }

func (s StepFunc) Run(ctx context.Context) StepResult {
	start := time.Now()
	rows, err := s.Fn(ctx)
	res := StepResult{
		Name:    s.StepName,
		Status:  StatusSuccess,
		Rows:    rows,
		Elapsed: time.Since(start),
	}
	if err != nil {
		res.Status = StatusFailed
		res.Err = err
	}
	return res
}

// Skip returns a pre-resolved skipped result, used when a gate decision
// removes a stage from the run.
func Skip(name, reason string) StepResult {
	return StepResult{Name: name, Status: StatusSkipped, Reason: reason}
}
