package pipeline

import (
	"context"

	"fundsync/platform/apperr"
	"fundsync/platform/logger"
)

// GateState is one evaluation of the integrity gate.
type GateState struct {
	MasterOK       bool
	PerformanceOK  bool
	ObservationsOK bool
}

// GateFunc evaluates the integrity gate against the canonical store.
type GateFunc func(ctx context.Context) (GateState, error)

// Stages are the four logical pipelines in global order.
type Stages struct {
	Master      Step
	Performance Step
	Detail      Step
	Holdings    Step
}

// Orchestrator drives the gated flow: evaluate, re-run the stale upstream
// pipelines at most once, re-evaluate, then either run the downstream
// stages or skip them entirely. The gate is a hard blocker; the override
// relaxes the observation-currency check only.
type Orchestrator struct {
	log             *logger.Logger
	runner          *Runner
	gate            GateFunc
	allowPartialNAV bool
}

func NewOrchestrator(log *logger.Logger, runner *Runner, gate GateFunc, allowPartialNAV bool) *Orchestrator {
	return &Orchestrator{log: log, runner: runner, gate: gate, allowPartialNAV: allowPartialNAV}
}

// Run executes one full gated pipeline run.
func (o *Orchestrator) Run(ctx context.Context, stages Stages) (Report, error) {
	var report Report

	state, err := o.gate(ctx)
	if err != nil {
		return report, apperr.Wrap(apperr.KindUnavailable, "integrity gate evaluation failed", err)
	}

	needsMaster := !state.MasterOK
	needsPerformance := !state.PerformanceOK || !state.ObservationsOK

	if needsMaster {
		o.log.Info("master list stale or incomplete, re-running master pipeline")
		res := stages.Master.Run(ctx)
		report.Results = append(report.Results, res)
		if res.Status == StatusFailed {
			return report, apperr.Wrap(apperr.KindInternal, "master pipeline re-run failed", res.Err)
		}
		// A fresh master list invalidates the performance view of it.
		needsPerformance = true
	}

	if needsPerformance {
		o.log.Info("performance data stale or incomplete, re-running performance pipeline")
		res := stages.Performance.Run(ctx)
		report.Results = append(report.Results, res)
		if res.Status == StatusFailed {
			return report, apperr.Wrap(apperr.KindInternal, "performance pipeline re-run failed", res.Err)
		}
	}

	if needsMaster || needsPerformance {
		state, err = o.gate(ctx)
		if err != nil {
			return report, apperr.Wrap(apperr.KindUnavailable, "integrity gate re-evaluation failed", err)
		}
		if !state.MasterOK {
			report.Results = append(report.Results,
				Skip(stages.Detail.Name(), "master check failed after re-run"),
				Skip(stages.Holdings.Name(), "master check failed after re-run"))
			return report, apperr.Integrity("master list check failed after one re-run")
		}
		if !state.PerformanceOK {
			report.Results = append(report.Results,
				Skip(stages.Detail.Name(), "performance check failed after re-run"),
				Skip(stages.Holdings.Name(), "performance check failed after re-run"))
			return report, apperr.Integrity("performance check failed after one re-run")
		}
		if !state.ObservationsOK {
			if !o.allowPartialNAV {
				report.Results = append(report.Results,
					Skip(stages.Detail.Name(), "observation currency failed after re-run"),
					Skip(stages.Holdings.Name(), "observation currency failed after re-run"))
				return report, apperr.Integrity("observation currency check failed after one re-run")
			}
			o.log.Warn("observation currency failed, continuing under partial NAV override")
		}
	}

	downstream := o.runner.Run(ctx, "downstream", []Step{stages.Detail, stages.Holdings})
	report.Results = append(report.Results, downstream.Results...)
	if !downstream.OK() {
		return report, apperr.Internal("downstream stage failed")
	}
	return report, nil
}
