package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskPipelineRun = "pipeline.run"

type PipelineRunPayload struct {
	RunID           string `json:"runId"`
	AllowPartialNAV bool   `json:"allowPartialNav"`
}

func NewPipelineRunTask(payload PipelineRunPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPipelineRun, data), nil
}

func ParsePipelineRunPayload(task *asynq.Task) (PipelineRunPayload, error) {
	var payload PipelineRunPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return PipelineRunPayload{}, err
	}
	return payload, nil
}
