package scheduler

import "testing"

func TestPipelineRunTaskRoundTrip(t *testing.T) {
	task, err := NewPipelineRunTask(PipelineRunPayload{RunID: "run-1", AllowPartialNAV: true})
	if err != nil {
		t.Fatalf("NewPipelineRunTask: %v", err)
	}
	if task.Type() != TaskPipelineRun {
		t.Errorf("task type = %q, want %q", task.Type(), TaskPipelineRun)
	}

	payload, err := ParsePipelineRunPayload(task)
	if err != nil {
		t.Fatalf("ParsePipelineRunPayload: %v", err)
	}
	if payload.RunID != "run-1" || !payload.AllowPartialNAV {
		t.Errorf("payload = %+v", payload)
	}
}
