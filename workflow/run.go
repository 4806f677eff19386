package workflow

import (
	"time"

	"github.com/adwhq/adwflow/types"
)

// RunStatus is the lifecycle state of a workflow run.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunSuccess   RunStatus = "success"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// IsTerminal reports whether the status is final.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunSuccess, RunFailed, RunCancelled:
		return true
	}
	return false
}

// StepResult records the outcome of one step of a run. Exactly one of the
// three shapes applies: skipped, single dispatch, or fan-out items.
type StepResult struct {
	// Skipped marks a step that was never dispatched.
	Skipped bool   `json:"skipped,omitempty"`
	Reason  string `json:"reason,omitempty"`

	// Single dispatch outcome.
	Success bool   `json:"success,omitempty"`
	Output  string `json:"output,omitempty"`
	Error   string `json:"error,omitempty"`

	// Items holds per-element results for a for_each fan-out.
	Items []StepResult `json:"items,omitempty"`

	Tokens types.TokenUsage `json:"tokens"`
}

// Metrics aggregates run-level accounting.
type Metrics struct {
	StepsCompleted int   `json:"steps_completed"`
	StepsTotal     int   `json:"steps_total"`
	TotalTokens    int   `json:"total_tokens"`
	DurationMs     int64 `json:"duration_ms"`
}

// Run is the mutable state of one workflow execution. It is created when
// execution starts and mutated only by the owning executor invocation;
// those writes go through Registry.Update so they serialize with snapshot
// reads. The registry hands out snapshots, never the live struct.
type Run struct {
	ID          string                `json:"id"`
	Workflow    string                `json:"workflow"`
	Status      RunStatus             `json:"status"`
	Inputs      map[string]any        `json:"inputs,omitempty"`
	StepResults map[string]StepResult `json:"step_results"`
	CurrentStep string                `json:"current_step,omitempty"`
	Metrics     Metrics               `json:"metrics"`
	Error       string                `json:"error,omitempty"`
	StartedAt   time.Time             `json:"started_at"`
	CompletedAt time.Time             `json:"completed_at,omitzero"`
}

// Snapshot returns a deep enough copy for callers to keep: the results map
// is cloned so later executor writes never race with a reader. Callers that
// do not own the run must hold the registry lock, which Get and List do.
func (r *Run) Snapshot() *Run {
	cp := *r
	cp.StepResults = make(map[string]StepResult, len(r.StepResults))
	for k, v := range r.StepResults {
		cp.StepResults[k] = v
	}
	if r.Inputs != nil {
		cp.Inputs = make(map[string]any, len(r.Inputs))
		for k, v := range r.Inputs {
			cp.Inputs[k] = v
		}
	}
	return &cp
}
