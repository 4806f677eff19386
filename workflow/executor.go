package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/adwhq/adwflow/audit"
	"github.com/adwhq/adwflow/dispatch"
	"github.com/adwhq/adwflow/internal/metrics"
	"github.com/adwhq/adwflow/knowledge"
	"github.com/adwhq/adwflow/types"
	"github.com/adwhq/adwflow/workflow/dsl"
)

// Dispatcher is the slice of the dispatch layer the executor needs.
type Dispatcher interface {
	Dispatch(ctx context.Context, hint, prompt string, signals []string, opts dispatch.Options) *dispatch.Result
}

// SnapshotSink receives the terminal snapshot of every run. Implemented by
// the store package; kept as a local interface so workflow does not depend
// on any particular persistence.
type SnapshotSink interface {
	SaveRun(ctx context.Context, run *Run) error
}

// Executor drives one workflow run at a time through the resolved step
// order. It is safe for concurrent use: each Run call owns its private Run
// and never shares mutable state with other calls.
type Executor struct {
	dispatcher Dispatcher
	registry   *Registry
	know       knowledge.Provider
	sink       audit.Sink
	snapshots  SnapshotSink
	collector  *metrics.Collector
	logger     *zap.Logger

	// workDir is handed to the dispatch layer as the working directory,
	// typically an isolated workspace path.
	workDir string
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithKnowledge sets the expert-context provider.
func WithKnowledge(p knowledge.Provider) ExecutorOption {
	return func(e *Executor) { e.know = p }
}

// WithAuditSink sets the audit event sink.
func WithAuditSink(s audit.Sink) ExecutorOption {
	return func(e *Executor) { e.sink = s }
}

// WithSnapshotSink sets the terminal-snapshot store.
func WithSnapshotSink(s SnapshotSink) ExecutorOption {
	return func(e *Executor) { e.snapshots = s }
}

// WithMetrics sets the Prometheus collector.
func WithMetrics(c *metrics.Collector) ExecutorOption {
	return func(e *Executor) { e.collector = c }
}

// WithWorkDir sets the working directory passed to backends.
func WithWorkDir(dir string) ExecutorOption {
	return func(e *Executor) { e.workDir = dir }
}

// NewExecutor creates an executor over the given dispatcher and registry.
func NewExecutor(dispatcher Dispatcher, registry *Registry, logger *zap.Logger, opts ...ExecutorOption) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Executor{
		dispatcher: dispatcher,
		registry:   registry,
		know:       knowledge.NopProvider{},
		sink:       audit.NopSink{},
		logger:     logger.With(zap.String("component", "executor")),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes the definition against the inputs and always returns a
// complete run snapshot, even on failure: the snapshot carries partial
// progress and the exact step and error that stopped it. The returned
// error mirrors run.Error for callers that prefer error handling.
func (e *Executor) Run(ctx context.Context, def *Definition, inputs map[string]any) (*Run, error) {
	ctx, span := otel.Tracer("adwflow/workflow").Start(ctx, "run")
	defer span.End()

	if inputs == nil {
		inputs = map[string]any{}
	}
	run := &Run{
		ID:          uuid.New().String(),
		Workflow:    def.Name,
		Status:      RunRunning,
		Inputs:      inputs,
		StepResults: make(map[string]StepResult),
		StartedAt:   time.Now(),
	}
	run.Metrics.StepsTotal = len(def.Steps)
	span.SetAttributes(
		attribute.String("workflow.name", def.Name),
		attribute.String("workflow.run_id", run.ID),
	)

	e.registry.Add(run)
	defer e.registry.Remove(run.ID)

	e.logger.Info("run started",
		zap.String("workflow", def.Name),
		zap.String("run_id", run.ID),
		zap.Int("steps", len(def.Steps)),
	)
	audit.Safe(e.sink, "run_started", def.Name, run.ID)

	fatal := e.walk(ctx, run, def)

	e.registry.Update(run, func(run *Run) {
		run.CurrentStep = ""
		run.CompletedAt = time.Now()
		run.Metrics.DurationMs = run.CompletedAt.Sub(run.StartedAt).Milliseconds()
		switch {
		case fatal != nil:
			run.Status = RunFailed
			run.Error = fatal.Error()
		case run.Status == RunCancelled:
			// set by walk when the registry flag was observed
		default:
			run.Status = RunSuccess
		}
	})

	e.finish(ctx, run)
	return run.Snapshot(), fatal
}

// walk processes the resolved step order, returning the fatal error that
// stopped the run, if any.
func (e *Executor) walk(ctx context.Context, run *Run, def *Definition) error {
	ordered, err := Resolve(def.Steps)
	if err != nil {
		return err
	}

	for i := range ordered {
		step := &ordered[i]
		if e.registry.IsCancelled(run.ID) {
			e.logger.Info("run cancelled, stopping before next step",
				zap.String("run_id", run.ID),
				zap.String("step", step.Name),
			)
			e.registry.Update(run, func(run *Run) { run.Status = RunCancelled })
			return nil
		}

		e.registry.Update(run, func(run *Run) { run.CurrentStep = step.Name })
		if err := e.processStep(ctx, run, step); err != nil {
			return err
		}
	}
	return nil
}

// processStep runs the per-step state machine: skip propagation, condition
// gate, interpolation, fan-out, dispatch, validation gate, recording.
func (e *Executor) processStep(ctx context.Context, run *Run, step *Step) error {
	ctx, span := otel.Tracer("adwflow/workflow").Start(ctx, "step")
	defer span.End()
	span.SetAttributes(attribute.String("step.name", step.Name))

	// Skip propagation comes before the step's own condition: a step whose
	// dependency never ran must not observe partial context.
	for _, dep := range step.DependsOn {
		res, ok := run.StepResults[dep]
		if !ok {
			// Unreachable given topological order; treated as a
			// programming error, not a user error.
			return types.NewError(types.ErrDependencyNotCompleted,
				fmt.Sprintf("step %q executed before dependency %q", step.Name, dep)).WithStep(step.Name)
		}
		if res.Skipped {
			e.recordSkip(run, step, fmt.Sprintf("dependency %s skipped", dep))
			return nil
		}
	}

	vars := runContext(run)

	if step.Condition != "" {
		pass, err := dsl.Evaluate(step.Condition, vars)
		if err != nil {
			e.logger.Warn("condition failed to evaluate, treating as false",
				zap.String("step", step.Name),
				zap.String("condition", step.Condition),
				zap.Error(err),
			)
			pass = false
		}
		if !pass {
			e.recordSkip(run, step, "condition not met")
			return nil
		}
	}

	prompt := step.Prompt
	if step.LoadExpert != "" {
		expertCtx, err := e.know.SelectContext(ctx, step.LoadExpert, nil)
		if err != nil {
			e.logger.Warn("knowledge lookup failed",
				zap.String("step", step.Name),
				zap.String("domain", step.LoadExpert),
				zap.Error(err),
			)
		} else if expertCtx != "" {
			prompt = expertCtx + "\n\n" + prompt
		}
	}

	var result StepResult
	var err error
	if step.ForEach != "" {
		result, err = e.fanOut(ctx, run, step, prompt, vars)
	} else {
		result, err = e.dispatchOnce(ctx, run, step, Interpolate(prompt, vars), vars)
	}
	if err != nil {
		return err
	}

	e.record(run, step, result)

	// Validation gate runs against the context including this step's own
	// result, and is intentionally fatal: retries belong to the validation
	// collaborator's closed loop, not to this layer.
	if len(step.Validation) > 0 {
		vars = runContext(run)
		for _, expr := range step.Validation {
			pass, err := dsl.Evaluate(expr, vars)
			if err != nil || !pass {
				verr := types.NewError(types.ErrValidationFailed,
					fmt.Sprintf("step %q validation failed: %s", step.Name, expr)).WithStep(step.Name)
				if err != nil {
					verr = verr.WithCause(err)
				}
				return verr
			}
		}
	}
	return nil
}

// fanOut expands a for_each step. The degrade path is deliberately
// non-fatal: an unresolvable path skips the step with empty items, a
// non-array value is wrapped as a single-element list, and an array is
// dispatched once per element, sequentially, in input order.
func (e *Executor) fanOut(ctx context.Context, run *Run, step *Step, prompt string, vars map[string]any) (StepResult, error) {
	value := dsl.Lookup(step.ForEach, vars)
	if value == nil {
		e.logger.Warn("for_each path resolved to nothing, skipping step",
			zap.String("step", step.Name),
			zap.String("path", step.ForEach),
		)
		return StepResult{
			Skipped: true,
			Reason:  fmt.Sprintf("for_each %s resolved to nothing", step.ForEach),
			Items:   []StepResult{},
		}, nil
	}

	items, ok := value.([]any)
	if !ok {
		items = []any{value}
	}

	agg := StepResult{Items: make([]StepResult, 0, len(items)), Success: true}
	for idx, item := range items {
		itemVars := make(map[string]any, len(vars)+2)
		for k, v := range vars {
			itemVars[k] = v
		}
		itemVars["item"] = item
		itemVars["item_index"] = idx

		res, err := e.dispatchOnce(ctx, run, step, Interpolate(prompt, itemVars), itemVars)
		if err != nil {
			return StepResult{}, err
		}
		agg.Items = append(agg.Items, res)
		agg.Tokens.Add(res.Tokens)
		if !res.Success {
			agg.Success = false
		}
	}
	return agg, nil
}

// dispatchOnce performs one dispatch (plus on_failure retries) and converts
// the outcome to a StepResult. Chain exhaustion is fatal unless the step
// opts into continuing; an agent-reported failure is recorded as data so
// later steps can branch on it.
func (e *Executor) dispatchOnce(ctx context.Context, run *Run, step *Step, prompt string, vars map[string]any) (StepResult, error) {
	signals := priorOutputs(run)
	opts := dispatch.Options{Model: step.Model, WorkDir: e.workDir}

	attempts := 1
	if step.OnFailure != nil && step.OnFailure.Retry {
		attempts = step.OnFailure.MaxAttempts
		if attempts < 2 {
			attempts = 2
		}
	}

	var res *dispatch.Result
	for attempt := 1; attempt <= attempts; attempt++ {
		res = e.dispatcher.Dispatch(ctx, step.Agent, prompt, signals, opts)
		if !res.Exhausted {
			break
		}
		if attempt < attempts {
			e.logger.Warn("dispatch exhausted, retrying step",
				zap.String("step", step.Name),
				zap.Int("attempt", attempt),
			)
		}
	}

	if res.Exhausted {
		if step.OnFailure != nil && step.OnFailure.Continue {
			return StepResult{Success: false, Error: res.Output, Tokens: res.Tokens}, nil
		}
		return StepResult{}, types.NewError(types.ErrDispatchExhausted,
			fmt.Sprintf("step %q: %s", step.Name, res.Output)).WithStep(step.Name)
	}

	sr := StepResult{
		Success: res.Success,
		Output:  res.Output,
		Tokens:  res.Tokens,
	}
	if !res.Success {
		sr.Error = res.Output
	}
	return sr, nil
}

// record writes the step result exactly once and updates run accounting.
// The write happens under the registry lock so a status poller's snapshot
// always sees the result and its accounting together.
func (e *Executor) record(run *Run, step *Step, result StepResult) {
	e.registry.Update(run, func(run *Run) {
		run.StepResults[step.Name] = result
		run.Metrics.StepsCompleted++
		run.Metrics.TotalTokens += result.Tokens.TotalTokens
	})

	outcome := "success"
	switch {
	case result.Skipped:
		outcome = "skipped"
	case !result.Success:
		outcome = "failed"
	}
	e.collector.StepProcessed(run.Workflow, outcome)
	e.collector.TokensUsed(run.Workflow, result.Tokens.TotalTokens)
	e.logger.Debug("step recorded",
		zap.String("run_id", run.ID),
		zap.String("step", step.Name),
		zap.String("outcome", outcome),
		zap.Int("tokens", result.Tokens.TotalTokens),
	)
}

// recordSkip writes a skipped result with its reason.
func (e *Executor) recordSkip(run *Run, step *Step, reason string) {
	e.registry.Update(run, func(run *Run) {
		run.StepResults[step.Name] = StepResult{Skipped: true, Reason: reason}
		run.Metrics.StepsCompleted++
	})
	e.collector.StepProcessed(run.Workflow, "skipped")
	e.logger.Debug("step skipped",
		zap.String("run_id", run.ID),
		zap.String("step", step.Name),
		zap.String("reason", reason),
	)
}

// finish emits the end-of-run snapshot to the audit and persistence
// collaborators. Neither may abort the run result.
func (e *Executor) finish(ctx context.Context, run *Run) {
	e.collector.RunCompleted(run.Workflow, string(run.Status), run.CompletedAt.Sub(run.StartedAt))

	audit.Safe(e.sink, "run_"+string(run.Status), run.Workflow, run.ID)
	if e.snapshots != nil {
		if err := e.snapshots.SaveRun(ctx, run.Snapshot()); err != nil {
			e.logger.Warn("failed to persist run snapshot",
				zap.String("run_id", run.ID),
				zap.Error(err),
			)
		}
	}

	e.logger.Info("run finished",
		zap.String("workflow", run.Workflow),
		zap.String("run_id", run.ID),
		zap.String("status", string(run.Status)),
		zap.Int("steps_completed", run.Metrics.StepsCompleted),
		zap.Int("total_tokens", run.Metrics.TotalTokens),
		zap.Int64("duration_ms", run.Metrics.DurationMs),
	)
}

// priorOutputs gathers the outputs of already processed steps; the
// dispatcher matches hint alternatives against these signals.
func priorOutputs(run *Run) []string {
	var out []string
	for _, res := range run.StepResults {
		if res.Skipped {
			continue
		}
		if res.Output != "" {
			out = append(out, res.Output)
		}
		for _, item := range res.Items {
			if item.Output != "" {
				out = append(out, item.Output)
			}
		}
	}
	return out
}
