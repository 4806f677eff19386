package plan

import (
	"time"
)

// PlanStatus is the lifecycle state of a plan.
type PlanStatus string

const (
	PlanPlanning  PlanStatus = "planning"
	PlanExecuting PlanStatus = "executing"
	PlanCompleted PlanStatus = "completed"
	PlanFailed    PlanStatus = "failed"
)

// TaskStatus is the state machine of one task:
// blocked -> pending -> running -> {completed|failed}, with validated as an
// extra terminal reached only through an explicit validation outcome.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskBlocked   TaskStatus = "blocked"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskValidated TaskStatus = "validated"
)

// IsTerminal reports whether the status is final.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskCompleted, TaskFailed, TaskValidated:
		return true
	}
	return false
}

// satisfiesDependency reports whether a dependency in this status unblocks
// its dependents.
func (s TaskStatus) satisfiesDependency() bool {
	return s == TaskCompleted || s == TaskValidated
}

// Role classifies a team member's function in the plan.
type Role string

const (
	RoleBuilder      Role = "builder"
	RoleValidator    Role = "validator"
	RoleOrchestrator Role = "orchestrator"
	RoleOther        Role = "other"
)

// TeamMember describes one agent participating in a plan.
type TeamMember struct {
	Name string `json:"name"`
	Role Role   `json:"role"`
	// AgentHint is the dispatch hint used for this member's tasks; the
	// member's role is the default when empty.
	AgentHint string `json:"agent_hint,omitempty"`
}

// Task is the coarser-grained analog of a workflow step, owned by one team
// member and scheduled by dependency completion.
type Task struct {
	ID          string     `json:"id"`
	Description string     `json:"description"`
	Owner       string     `json:"owner"`
	OwnerRole   Role       `json:"owner_role"`
	DependsOn   []string   `json:"depends_on,omitempty"`
	Status      TaskStatus `json:"status"`
	Result      string     `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	// Retries counts needs_work resets already consumed.
	Retries   int       `json:"retries,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// Plan is a set of tasks with dependencies driven to completion by the team
// loop through a Coordinator.
type Plan struct {
	ID          string       `json:"id"`
	TeamMembers []TeamMember `json:"team_members"`
	Tasks       []*Task      `json:"tasks"`
	Status      PlanStatus   `json:"status"`
	CreatedAt   time.Time    `json:"created_at"`
}

// ValidationOutcome is the verdict a validator task reports about its
// paired builder task.
type ValidationOutcome string

const (
	OutcomeApprove   ValidationOutcome = "approve"
	OutcomeNeedsWork ValidationOutcome = "needs_work"
	OutcomeReject    ValidationOutcome = "reject"
)
