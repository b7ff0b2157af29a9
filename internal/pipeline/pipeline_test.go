package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"fundsync/internal/stage"
	"fundsync/platform/apperr"
	"fundsync/platform/logger"
	"fundsync/platform/validator"
)

func okStep(name string, runs *int32) Step {
	return StepFunc{StepName: name, Fn: func(ctx context.Context) (int, error) {
		if runs != nil {
			atomic.AddInt32(runs, 1)
		}
		return 1, nil
	}}
}

func failStep(name string) Step {
	return StepFunc{StepName: name, Fn: func(ctx context.Context) (int, error) {
		return 0, errors.New("boom")
	}}
}

func TestRunnerFailFast(t *testing.T) {
	var third int32
	r := NewRunner(logger.New("test"), false)
	report := r.Run(context.Background(), "p", []Step{
		okStep("a", nil), failStep("b"), okStep("c", &third),
	})

	if report.OK() {
		t.Fatalf("report should not be OK")
	}
	if third != 0 {
		t.Errorf("fail-fast must not run steps after a failure")
	}
	if report.Results[2].Status != StatusSkipped {
		t.Errorf("trailing step should be recorded as skipped, got %v", report.Results[2].Status)
	}
}

func TestRunnerContinueOnFailure(t *testing.T) {
	var third int32
	r := NewRunner(logger.New("test"), true)
	report := r.Run(context.Background(), "p", []Step{
		okStep("a", nil), failStep("b"), okStep("c", &third),
	})

	if third != 1 {
		t.Errorf("continue-on-failure must run the remaining steps")
	}
	if report.Failed() != 1 {
		t.Errorf("Failed() = %d, want 1", report.Failed())
	}
}

func TestGroupRunsAllAndAggregates(t *testing.T) {
	var ran int32
	g := Group{GroupName: "detail", Limit: 2, Steps: []Step{
		okStep("ft", &ran), failStep("sa"), okStep("yf", &ran),
	}}
	res := g.Run(context.Background())

	if res.Status != StatusFailed {
		t.Errorf("any sub-step failure must fail the group")
	}
	if ran != 2 {
		t.Errorf("all non-failing sub-steps should still run, ran=%d", ran)
	}
	if res.Rows != 2 {
		t.Errorf("rows should aggregate across sub-steps, got %d", res.Rows)
	}
}

func TestMasterRowsWithIncompleteKeysExcluded(t *testing.T) {
	table := &stage.Table{
		Columns: []string{"ticker", "asset_type", "source", "name"},
		Rows: []map[string]string{
			{"ticker": "ABC", "asset_type": "FUND", "source": "X", "name": "Alpha Fund"},
			{"ticker": "", "asset_type": "FUND", "source": "X", "name": "No Ticker"},
		},
	}
	report := stage.Validate(table, validator.New())
	if report.OK != 1 || report.Failed != 1 {
		t.Fatalf("report = %+v, want 1 ok / 1 failed", report)
	}

	keepCompleteKeys(table)
	if len(table.Rows) != 1 {
		t.Fatalf("failed rows must be excluded before loading, got %d rows", len(table.Rows))
	}
	if table.Rows[0]["ticker"] != "ABC" {
		t.Errorf("the valid row should survive, got %+v", table.Rows[0])
	}
}

func gateSequence(states ...GateState) (GateFunc, *int32) {
	var calls int32
	return func(ctx context.Context) (GateState, error) {
		i := atomic.AddInt32(&calls, 1) - 1
		if int(i) >= len(states) {
			i = int32(len(states) - 1)
		}
		return states[i], nil
	}, &calls
}

func allStages(counts map[string]*int32) Stages {
	mk := func(name string) Step {
		c := new(int32)
		counts[name] = c
		return okStep(name, c)
	}
	return Stages{
		Master:      mk("master"),
		Performance: mk("performance"),
		Detail:      mk("detail"),
		Holdings:    mk("holdings"),
	}
}

func TestOrchestratorCleanGateSkipsIngestion(t *testing.T) {
	gate, calls := gateSequence(GateState{MasterOK: true, PerformanceOK: true, ObservationsOK: true})
	counts := map[string]*int32{}
	o := NewOrchestrator(logger.New("test"), NewRunner(logger.New("test"), false), gate, false)

	report, err := o.Run(context.Background(), allStages(counts))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if *counts["master"] != 0 || *counts["performance"] != 0 {
		t.Errorf("current data must not trigger ingestion re-runs")
	}
	if *counts["detail"] != 1 || *counts["holdings"] != 1 {
		t.Errorf("downstream stages should run")
	}
	if *calls != 1 {
		t.Errorf("gate evaluated %d times, want 1", *calls)
	}
	if !report.OK() {
		t.Errorf("report should be OK")
	}
}

func TestOrchestratorStaleMasterRerunsOnce(t *testing.T) {
	gate, calls := gateSequence(
		GateState{MasterOK: false, PerformanceOK: true, ObservationsOK: true},
		GateState{MasterOK: true, PerformanceOK: true, ObservationsOK: true},
	)
	counts := map[string]*int32{}
	o := NewOrchestrator(logger.New("test"), NewRunner(logger.New("test"), false), gate, false)

	if _, err := o.Run(context.Background(), allStages(counts)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if *counts["master"] != 1 {
		t.Errorf("master should re-run exactly once, got %d", *counts["master"])
	}
	if *counts["performance"] != 1 {
		t.Errorf("a master re-run must also refresh performance, got %d", *counts["performance"])
	}
	if *calls != 2 {
		t.Errorf("gate evaluated %d times, want 2 (initial + one re-check)", *calls)
	}
}

func TestOrchestratorPersistentFailureSkipsDownstream(t *testing.T) {
	gate, calls := gateSequence(GateState{MasterOK: false, PerformanceOK: true, ObservationsOK: true})
	counts := map[string]*int32{}
	o := NewOrchestrator(logger.New("test"), NewRunner(logger.New("test"), false), gate, false)

	_, err := o.Run(context.Background(), allStages(counts))
	if err == nil {
		t.Fatalf("persistent gate failure must surface an error")
	}
	if !apperr.Is(err, apperr.KindIntegrity) {
		t.Errorf("expected integrity kind, got %v", err)
	}
	if *counts["detail"] != 0 || *counts["holdings"] != 0 {
		t.Errorf("downstream stages must be skipped on persistent gate failure")
	}
	if *calls != 2 {
		t.Errorf("gate must not loop: evaluated %d times, want 2", *calls)
	}
	if *counts["master"] != 1 {
		t.Errorf("master must re-run exactly once, got %d", *counts["master"])
	}
}

func TestOrchestratorPartialNAVOverride(t *testing.T) {
	gate, _ := gateSequence(
		GateState{MasterOK: true, PerformanceOK: true, ObservationsOK: false},
		GateState{MasterOK: true, PerformanceOK: true, ObservationsOK: false},
	)
	counts := map[string]*int32{}
	o := NewOrchestrator(logger.New("test"), NewRunner(logger.New("test"), false), gate, true)

	if _, err := o.Run(context.Background(), allStages(counts)); err != nil {
		t.Fatalf("override should let the run proceed: %v", err)
	}
	if *counts["detail"] != 1 || *counts["holdings"] != 1 {
		t.Errorf("downstream stages should run under the override")
	}
}

func TestOrchestratorOverrideDoesNotRelaxMaster(t *testing.T) {
	gate, _ := gateSequence(
		GateState{MasterOK: false, PerformanceOK: true, ObservationsOK: true},
		GateState{MasterOK: false, PerformanceOK: true, ObservationsOK: true},
	)
	counts := map[string]*int32{}
	o := NewOrchestrator(logger.New("test"), NewRunner(logger.New("test"), false), gate, true)

	if _, err := o.Run(context.Background(), allStages(counts)); err == nil {
		t.Fatalf("the override must relax only the observation check")
	}
}
