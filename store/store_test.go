package store

import (
	"time"

	"github.com/adwhq/adwflow/types"
	"github.com/adwhq/adwflow/workflow"
)

func sampleRun(id, workflowName string, status workflow.RunStatus, startedAt time.Time) *workflow.Run {
	return &workflow.Run{
		ID:       id,
		Workflow: workflowName,
		Status:   status,
		Inputs:   map[string]any{"issue_id": "42"},
		StepResults: map[string]workflow.StepResult{
			"detect": {
				Success: true,
				Output:  "root cause found",
				Tokens:  types.TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
			},
		},
		Metrics: workflow.Metrics{
			StepsCompleted: 1,
			StepsTotal:     1,
			TotalTokens:    15,
			DurationMs:     1200,
		},
		StartedAt:   startedAt,
		CompletedAt: startedAt.Add(1200 * time.Millisecond),
	}
}
