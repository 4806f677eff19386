package plan

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/adwhq/adwflow/audit"
	"github.com/adwhq/adwflow/dispatch"
	"github.com/adwhq/adwflow/types"
)

// DefaultPollInterval is the backoff between eligibility scans when no
// task is currently eligible. This is an explicit backoff, not a busy
// loop.
const DefaultPollInterval = time.Second

// Dispatcher is the slice of the dispatch layer the team loop needs.
type Dispatcher interface {
	Dispatch(ctx context.Context, hint, prompt string, signals []string, opts dispatch.Options) *dispatch.Result
}

// Team is the orchestration entry point that drives a plan to completion:
// it repeatedly fetches eligible tasks, dispatches each to its owner's
// backend, and records outcomes through the coordinator.
type Team struct {
	coord        *Coordinator
	dispatcher   Dispatcher
	sink         audit.Sink
	logger       *zap.Logger
	pollInterval time.Duration
}

// TeamOption configures a Team.
type TeamOption func(*Team)

// WithPollInterval overrides the eligibility polling backoff.
func WithPollInterval(d time.Duration) TeamOption {
	return func(t *Team) { t.pollInterval = d }
}

// WithAuditSink sets the audit event sink.
func WithAuditSink(s audit.Sink) TeamOption {
	return func(t *Team) { t.sink = s }
}

// NewTeam creates the driving loop over a coordinator and dispatcher.
func NewTeam(coord *Coordinator, dispatcher Dispatcher, logger *zap.Logger, opts ...TeamOption) *Team {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Team{
		coord:        coord,
		dispatcher:   dispatcher,
		sink:         audit.NopSink{},
		logger:       logger.With(zap.String("component", "team")),
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Execute drives the plan until it reaches completed or failed. A cycle
// with nothing eligible and nothing running is a stall, reported as
// ErrPlanStalled rather than hanging silently.
func (t *Team) Execute(ctx context.Context) (*Plan, error) {
	audit.Safe(t.sink, "plan_started", t.coord.Plan().ID, "")

	for {
		if err := ctx.Err(); err != nil {
			return t.coord.Plan(), err
		}

		snapshot := t.coord.Plan()
		if snapshot.Status == PlanCompleted || snapshot.Status == PlanFailed {
			audit.Safe(t.sink, "plan_"+string(snapshot.Status), snapshot.ID, "")
			return snapshot, nil
		}

		eligible := t.coord.EligibleTasks()
		if len(eligible) == 0 {
			if t.coord.RunningCount() == 0 && t.coord.Stalled() {
				return t.coord.Plan(), types.NewError(types.ErrPlanStalled,
					"no task eligible and none running in plan "+snapshot.ID)
			}
			select {
			case <-ctx.Done():
				return t.coord.Plan(), ctx.Err()
			case <-time.After(t.pollInterval):
			}
			continue
		}

		// Independent eligible tasks run concurrently; each outcome is
		// recorded through the coordinator, which serializes mutations
		// and triggers the unblock scan.
		g, gctx := errgroup.WithContext(ctx)
		for _, task := range eligible {
			if err := t.coord.MarkRunning(task.ID); err != nil {
				t.logger.Warn("task no longer eligible", zap.String("task", task.ID), zap.Error(err))
				continue
			}
			g.Go(func() error {
				t.runTask(gctx, task)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return t.coord.Plan(), err
		}
	}
}

// runTask dispatches one task and records its outcome.
func (t *Team) runTask(ctx context.Context, task *Task) {
	hint := t.hintFor(task)
	t.logger.Info("dispatching task",
		zap.String("task", task.ID),
		zap.String("owner", task.Owner),
		zap.String("hint", hint),
	)

	res := t.dispatcher.Dispatch(ctx, hint, t.promptFor(task), nil, dispatch.Options{})

	var err error
	switch {
	case task.OwnerRole == RoleValidator:
		outcome := parseVerdict(res)
		err = t.coord.RecordValidation(task.ID, outcome, res.Output)
	case res.Success:
		err = t.coord.Complete(task.ID, res.Output)
	default:
		err = t.coord.Fail(task.ID, res.Output)
	}
	if err != nil {
		t.logger.Error("failed to record task outcome", zap.String("task", task.ID), zap.Error(err))
	}
}

// hintFor picks the dispatch hint: the owning member's configured hint, or
// the task's role name.
func (t *Team) hintFor(task *Task) string {
	for _, m := range t.coord.Plan().TeamMembers {
		if m.Name == task.Owner && m.AgentHint != "" {
			return m.AgentHint
		}
	}
	return string(task.OwnerRole)
}

// promptFor renders the task prompt with the results of its dependencies
// appended, so a validator sees what its builder produced.
func (t *Team) promptFor(task *Task) string {
	var b strings.Builder
	b.WriteString(task.Description)

	snapshot := t.coord.Plan()
	for _, dep := range task.DependsOn {
		for _, other := range snapshot.Tasks {
			if other.ID == dep && other.Result != "" {
				b.WriteString("\n\n## Output of ")
				b.WriteString(dep)
				b.WriteString("\n")
				b.WriteString(other.Result)
			}
		}
	}
	return b.String()
}

// parseVerdict extracts a validation outcome from a validator's output.
// An explicit recommendation wins; otherwise success approves and failure
// rejects.
func parseVerdict(res *dispatch.Result) ValidationOutcome {
	out := strings.ToLower(res.Output)
	switch {
	case strings.Contains(out, string(OutcomeNeedsWork)):
		return OutcomeNeedsWork
	case strings.Contains(out, string(OutcomeReject)):
		return OutcomeReject
	case strings.Contains(out, string(OutcomeApprove)):
		return OutcomeApprove
	case res.Success:
		return OutcomeApprove
	default:
		return OutcomeReject
	}
}
