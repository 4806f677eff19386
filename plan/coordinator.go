package plan

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/adwhq/adwflow/internal/metrics"
	"github.com/adwhq/adwflow/types"
)

// DefaultMaxTaskRetries bounds how often a needs_work verdict may reset a
// builder task before the pair is declared failed.
const DefaultMaxTaskRetries = 2

// Coordinator owns one Plan and serializes every mutation to it. It applies
// the same "unblock dependents when a node completes" rule as the workflow
// executor's skip propagation, at task granularity: whenever a task reaches
// completed or validated, every blocked task whose dependencies are now all
// satisfied is promoted to pending in the same synchronous call.
type Coordinator struct {
	mu         sync.Mutex
	plan       *Plan
	byID       map[string]*Task
	maxRetries int
	collector  *metrics.Collector
	logger     *zap.Logger
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithMaxTaskRetries overrides the needs_work retry bound.
func WithMaxTaskRetries(n int) CoordinatorOption {
	return func(c *Coordinator) { c.maxRetries = n }
}

// WithMetrics sets the Prometheus collector.
func WithMetrics(col *metrics.Collector) CoordinatorOption {
	return func(c *Coordinator) { c.collector = col }
}

// NewCoordinator builds a plan from the given members and tasks and
// initializes task statuses: pending with no dependencies, blocked
// otherwise.
func NewCoordinator(members []TeamMember, tasks []*Task, logger *zap.Logger, opts ...CoordinatorOption) (*Coordinator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	byID := make(map[string]*Task, len(tasks))
	for _, t := range tasks {
		if t.ID == "" {
			return nil, types.NewError(types.ErrInvalidInput, "task has no id")
		}
		if _, dup := byID[t.ID]; dup {
			return nil, types.NewError(types.ErrInvalidInput, "duplicate task id "+t.ID)
		}
		byID[t.ID] = t
	}
	for _, t := range tasks {
		for _, dep := range t.DependsOn {
			if _, ok := byID[dep]; !ok {
				return nil, types.NewError(types.ErrInvalidInput,
					fmt.Sprintf("task %s depends on unknown task %s", t.ID, dep))
			}
		}
		if len(t.DependsOn) == 0 {
			t.Status = TaskPending
		} else {
			t.Status = TaskBlocked
		}
		t.UpdatedAt = time.Now()
	}

	c := &Coordinator{
		plan: &Plan{
			ID:          uuid.New().String(),
			TeamMembers: members,
			Tasks:       tasks,
			Status:      PlanExecuting,
			CreatedAt:   time.Now(),
		},
		byID:       byID,
		maxRetries: DefaultMaxTaskRetries,
		logger:     logger.With(zap.String("component", "plan_coordinator")),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger.Info("plan created",
		zap.String("plan_id", c.plan.ID),
		zap.Int("tasks", len(tasks)),
		zap.Int("members", len(members)),
	)
	return c, nil
}

// Plan returns a snapshot of the plan and its tasks.
func (c *Coordinator) Plan() *Plan {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *c.plan
	cp.Tasks = make([]*Task, len(c.plan.Tasks))
	for i, t := range c.plan.Tasks {
		tc := *t
		cp.Tasks[i] = &tc
	}
	return &cp
}

// EligibleTasks returns copies of every task currently eligible to run:
// status pending with every dependency completed or validated.
func (c *Coordinator) EligibleTasks() []*Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*Task
	for _, t := range c.plan.Tasks {
		if t.Status == TaskPending && c.depsSatisfied(t) {
			tc := *t
			out = append(out, &tc)
		}
	}
	return out
}

// RunningCount returns the number of tasks currently running.
func (c *Coordinator) RunningCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.plan.Tasks {
		if t.Status == TaskRunning {
			n++
		}
	}
	return n
}

// MarkRunning transitions a pending task to running.
func (c *Coordinator) MarkRunning(taskID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, err := c.task(taskID)
	if err != nil {
		return err
	}
	if t.Status != TaskPending {
		return types.NewError(types.ErrInvalidTransition,
			fmt.Sprintf("task %s is %s, not pending", taskID, t.Status))
	}
	c.transition(t, TaskRunning)
	return nil
}

// Complete marks a running task completed and synchronously promotes every
// blocked task whose dependencies are now satisfied, before returning.
func (c *Coordinator) Complete(taskID, result string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, err := c.task(taskID)
	if err != nil {
		return err
	}
	if t.Status != TaskRunning {
		return types.NewError(types.ErrInvalidTransition,
			fmt.Sprintf("task %s is %s, not running", taskID, t.Status))
	}
	t.Result = result
	c.transition(t, TaskCompleted)
	c.unblockScan()
	c.derivePlanStatus()
	return nil
}

// Fail marks a running task failed.
func (c *Coordinator) Fail(taskID, errMsg string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, err := c.task(taskID)
	if err != nil {
		return err
	}
	if t.Status != TaskRunning {
		return types.NewError(types.ErrInvalidTransition,
			fmt.Sprintf("task %s is %s, not running", taskID, t.Status))
	}
	t.Error = errMsg
	c.transition(t, TaskFailed)
	c.derivePlanStatus()
	return nil
}

// RecordValidation applies a validator task's verdict. approve makes the
// validator validated (terminal); needs_work resets the paired builder to
// pending and re-blocks the validator, bounded by the retry budget; reject
// fails both sides of the pair.
func (c *Coordinator) RecordValidation(validatorID string, outcome ValidationOutcome, detail string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, err := c.task(validatorID)
	if err != nil {
		return err
	}
	if v.Status != TaskRunning {
		return types.NewError(types.ErrInvalidTransition,
			fmt.Sprintf("validator %s is %s, not running", validatorID, v.Status))
	}
	v.Result = detail

	builder := c.pairedBuilder(v)

	switch outcome {
	case OutcomeApprove:
		c.transition(v, TaskValidated)
		c.unblockScan()

	case OutcomeNeedsWork:
		if builder == nil {
			v.Error = "needs_work verdict without a paired builder"
			c.transition(v, TaskFailed)
			break
		}
		if builder.Retries >= c.maxRetries {
			v.Error = fmt.Sprintf("builder %s exhausted %d rework attempts", builder.ID, builder.Retries)
			c.transition(v, TaskFailed)
			c.transition(builder, TaskFailed)
			break
		}
		builder.Retries++
		c.transition(builder, TaskPending)
		c.transition(v, TaskBlocked)
		c.logger.Info("builder sent back for rework",
			zap.String("builder", builder.ID),
			zap.String("validator", v.ID),
			zap.Int("retries", builder.Retries),
		)

	case OutcomeReject:
		v.Error = detail
		c.transition(v, TaskFailed)
		if builder != nil {
			builder.Error = "rejected by validator " + v.ID
			c.transition(builder, TaskFailed)
		}

	default:
		return types.NewError(types.ErrInvalidInput, "unknown validation outcome "+string(outcome))
	}

	c.derivePlanStatus()
	return nil
}

// PairedValidator returns the validator task depending on the given builder
// task. The builder/validator convention is one validator per build task.
func (c *Coordinator) PairedValidator(builderID string) (*Task, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range c.plan.Tasks {
		if t.OwnerRole != RoleValidator {
			continue
		}
		for _, dep := range t.DependsOn {
			if dep == builderID {
				tc := *t
				return &tc, true
			}
		}
	}
	return nil, false
}

// Stalled reports whether the plan can make no further progress: nothing
// pending, nothing running, yet the plan is not terminal.
func (c *Coordinator) Stalled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.plan.Status == PlanCompleted || c.plan.Status == PlanFailed {
		return false
	}
	for _, t := range c.plan.Tasks {
		if t.Status == TaskPending || t.Status == TaskRunning {
			return false
		}
	}
	return true
}

// --- internal, caller holds c.mu ---

func (c *Coordinator) task(id string) (*Task, error) {
	t, ok := c.byID[id]
	if !ok {
		return nil, types.NewError(types.ErrTaskNotFound, "task "+id+" not in plan")
	}
	return t, nil
}

func (c *Coordinator) pairedBuilder(validator *Task) *Task {
	for _, dep := range validator.DependsOn {
		if t, ok := c.byID[dep]; ok && t.OwnerRole == RoleBuilder {
			return t
		}
	}
	return nil
}

func (c *Coordinator) transition(t *Task, to TaskStatus) {
	from := t.Status
	t.Status = to
	t.UpdatedAt = time.Now()
	c.collector.PlanTask(string(t.OwnerRole), string(to))
	c.logger.Debug("task transition",
		zap.String("task", t.ID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
}

// unblockScan promotes every blocked task whose dependencies are all
// completed or validated. Runs synchronously inside the completing
// transition so a paired validator is pending before any other task is
// considered.
func (c *Coordinator) unblockScan() {
	for _, t := range c.plan.Tasks {
		if t.Status == TaskBlocked && c.depsSatisfied(t) {
			c.transition(t, TaskPending)
		}
	}
}

func (c *Coordinator) depsSatisfied(t *Task) bool {
	for _, dep := range t.DependsOn {
		target, ok := c.byID[dep]
		if !ok || !target.Status.satisfiesDependency() {
			return false
		}
	}
	return true
}

// derivePlanStatus moves the plan to a terminal status once every task is
// terminal: failed if any task failed, completed otherwise.
func (c *Coordinator) derivePlanStatus() {
	anyFailed := false
	for _, t := range c.plan.Tasks {
		if !t.Status.IsTerminal() {
			return
		}
		if t.Status == TaskFailed {
			anyFailed = true
		}
	}
	if anyFailed {
		c.plan.Status = PlanFailed
	} else {
		c.plan.Status = PlanCompleted
	}
	c.logger.Info("plan reached terminal status",
		zap.String("plan_id", c.plan.ID),
		zap.String("status", string(c.plan.Status)),
	)
}
