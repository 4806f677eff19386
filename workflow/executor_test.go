package workflow

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/adwhq/adwflow/dispatch"
	"github.com/adwhq/adwflow/types"
)

type fakeCall struct {
	hint    string
	prompt  string
	signals []string
	opts    dispatch.Options
}

// fakeDispatcher scripts dispatch outcomes per call. The default handler
// reports success and echoes the prompt.
type fakeDispatcher struct {
	mu      sync.Mutex
	calls   []fakeCall
	handler func(n int, call fakeCall) *dispatch.Result
}

func (f *fakeDispatcher) Dispatch(_ context.Context, hint, prompt string, signals []string, opts dispatch.Options) *dispatch.Result {
	f.mu.Lock()
	call := fakeCall{hint: hint, prompt: prompt, signals: signals, opts: opts}
	f.calls = append(f.calls, call)
	n := len(f.calls)
	f.mu.Unlock()

	if f.handler != nil {
		return f.handler(n, call)
	}
	return &dispatch.Result{
		Success: true,
		Output:  "done: " + prompt,
		Backend: "fake",
		Tokens:  types.TokenUsage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5},
	}
}

func (f *fakeDispatcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeDispatcher) call(i int) fakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[i]
}

func newTestExecutor(d Dispatcher, opts ...ExecutorOption) (*Executor, *Registry) {
	reg := NewRegistry()
	return NewExecutor(d, reg, zap.NewNop(), opts...), reg
}

func TestRun_LinearSuccess(t *testing.T) {
	fake := &fakeDispatcher{}
	exec, _ := newTestExecutor(fake)

	def := &Definition{
		Name: "detect_and_fix",
		Steps: []Step{
			{Name: "detect", Agent: "premium", Prompt: "Find the bug in issue {{issue_id}}"},
			{Name: "fix", Agent: "premium", Prompt: "Fix it: {{detect.output}}", DependsOn: []string{"detect"}},
		},
	}

	run, err := exec.Run(context.Background(), def, map[string]any{"issue_id": "42"})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if run.Status != RunSuccess {
		t.Fatalf("status = %s, want success", run.Status)
	}

	if fake.callCount() != 2 {
		t.Fatalf("dispatch count = %d, want 2", fake.callCount())
	}
	if got := fake.call(0).prompt; got != "Find the bug in issue 42" {
		t.Errorf("first prompt = %q", got)
	}
	if got := fake.call(1).prompt; got != "Fix it: done: Find the bug in issue 42" {
		t.Errorf("second prompt = %q", got)
	}

	if !run.StepResults["detect"].Success || !run.StepResults["fix"].Success {
		t.Errorf("step results = %+v", run.StepResults)
	}
	if run.Metrics.StepsCompleted != 2 || run.Metrics.StepsTotal != 2 {
		t.Errorf("metrics = %+v", run.Metrics)
	}
	if run.Metrics.TotalTokens != 10 {
		t.Errorf("total tokens = %d, want 10", run.Metrics.TotalTokens)
	}
	if run.CurrentStep != "" {
		t.Errorf("current step should be cleared, got %q", run.CurrentStep)
	}
}

// A step whose agent reports failure is data, not a fatal error: downstream
// steps gated on its success are skipped, their dependents are skipped by
// propagation, and the run itself still finishes successfully.
func TestRun_ReportedFailureSkipsDownstream(t *testing.T) {
	fake := &fakeDispatcher{
		handler: func(n int, call fakeCall) *dispatch.Result {
			if call.hint == "builder" {
				return &dispatch.Result{Success: false, Output: "could not reproduce", Backend: "fake"}
			}
			return &dispatch.Result{Success: true, Output: "ok", Backend: "fake"}
		},
	}
	exec, _ := newTestExecutor(fake)

	def := &Definition{
		Name: "branching",
		Steps: []Step{
			{Name: "a", Agent: "builder", Prompt: "try"},
			{Name: "b", Agent: "validator", Prompt: "verify", DependsOn: []string{"a"}, Condition: "a.success"},
			{Name: "c", Agent: "validator", Prompt: "report", DependsOn: []string{"b"}},
		},
	}

	run, err := exec.Run(context.Background(), def, nil)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if run.Status != RunSuccess {
		t.Fatalf("status = %s, want success", run.Status)
	}

	a := run.StepResults["a"]
	if a.Skipped || a.Success || a.Error != "could not reproduce" {
		t.Errorf("a = %+v", a)
	}
	b := run.StepResults["b"]
	if !b.Skipped || b.Reason != "condition not met" {
		t.Errorf("b = %+v", b)
	}
	c := run.StepResults["c"]
	if !c.Skipped || c.Reason != "dependency b skipped" {
		t.Errorf("c = %+v", c)
	}
	if fake.callCount() != 1 {
		t.Errorf("dispatch count = %d, want 1", fake.callCount())
	}
	if run.Metrics.StepsCompleted != 3 {
		t.Errorf("steps completed = %d, want 3", run.Metrics.StepsCompleted)
	}
}

func TestRun_ConditionEvalErrorSkips(t *testing.T) {
	fake := &fakeDispatcher{}
	exec, _ := newTestExecutor(fake)

	def := &Definition{
		Name: "bad-cond",
		Steps: []Step{
			{Name: "a", Agent: "x", Prompt: "p"},
			{Name: "b", Agent: "x", Prompt: "p", DependsOn: []string{"a"}, Condition: "a.success &&"},
		},
	}

	run, err := exec.Run(context.Background(), def, nil)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if run.Status != RunSuccess {
		t.Fatalf("status = %s, want success", run.Status)
	}
	if b := run.StepResults["b"]; !b.Skipped {
		t.Errorf("b = %+v, want skipped", b)
	}
}

func TestRun_ValidationFailureIsFatal(t *testing.T) {
	fake := &fakeDispatcher{
		handler: func(n int, call fakeCall) *dispatch.Result {
			return &dispatch.Result{Success: false, Output: "tests failing", Backend: "fake"}
		},
	}
	exec, _ := newTestExecutor(fake)

	def := &Definition{
		Name: "gated",
		Steps: []Step{
			{Name: "patch", Agent: "x", Prompt: "p", Validation: []string{"patch.success"}},
			{Name: "after", Agent: "x", Prompt: "p", DependsOn: []string{"patch"}},
		},
	}

	run, err := exec.Run(context.Background(), def, nil)
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	if !types.HasCode(err, types.ErrValidationFailed) {
		t.Errorf("expected VALIDATION_FAILED, got %v", err)
	}
	if !strings.Contains(err.Error(), "patch") {
		t.Errorf("error should name the step: %v", err)
	}
	if run.Status != RunFailed || run.Error == "" {
		t.Errorf("run = %s %q", run.Status, run.Error)
	}
	// The failing step's result is still recorded in the snapshot.
	if _, ok := run.StepResults["patch"]; !ok {
		t.Error("patch result missing from snapshot")
	}
	if _, ok := run.StepResults["after"]; ok {
		t.Error("steps after the fatal gate must not run")
	}
}

func TestRun_ForEachFansOut(t *testing.T) {
	fake := &fakeDispatcher{}
	exec, _ := newTestExecutor(fake)

	def := &Definition{
		Name: "review",
		Steps: []Step{
			{Name: "review", Agent: "x", Prompt: "Review {{item}} (#{{item_index}})", ForEach: "files"},
		},
	}
	inputs := map[string]any{"files": []any{"a.go", "b.go"}}

	run, err := exec.Run(context.Background(), def, inputs)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if fake.callCount() != 2 {
		t.Fatalf("dispatch count = %d, want 2", fake.callCount())
	}
	if got := fake.call(0).prompt; got != "Review a.go (#0)" {
		t.Errorf("first item prompt = %q", got)
	}
	if got := fake.call(1).prompt; got != "Review b.go (#1)" {
		t.Errorf("second item prompt = %q", got)
	}

	res := run.StepResults["review"]
	if len(res.Items) != 2 || !res.Success {
		t.Errorf("result = %+v", res)
	}
	if res.Tokens.TotalTokens != 10 {
		t.Errorf("aggregated tokens = %d, want 10", res.Tokens.TotalTokens)
	}
}

func TestRun_ForEachUndefinedPathSkips(t *testing.T) {
	fake := &fakeDispatcher{}
	exec, _ := newTestExecutor(fake)

	def := &Definition{
		Name:  "review",
		Steps: []Step{{Name: "review", Agent: "x", Prompt: "p", ForEach: "missing.files"}},
	}

	run, err := exec.Run(context.Background(), def, nil)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if run.Status != RunSuccess {
		t.Fatalf("status = %s, want success", run.Status)
	}

	res := run.StepResults["review"]
	if !res.Skipped || res.Items == nil || len(res.Items) != 0 {
		t.Errorf("result = %+v, want skipped with empty items", res)
	}
	if fake.callCount() != 0 {
		t.Errorf("dispatch count = %d, want 0", fake.callCount())
	}
}

func TestRun_ForEachScalarWrapsAsSingleItem(t *testing.T) {
	fake := &fakeDispatcher{}
	exec, _ := newTestExecutor(fake)

	def := &Definition{
		Name:  "review",
		Steps: []Step{{Name: "review", Agent: "x", Prompt: "Review {{item}}", ForEach: "file"}},
	}

	run, err := exec.Run(context.Background(), def, map[string]any{"file": "main.go"})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	res := run.StepResults["review"]
	if len(res.Items) != 1 {
		t.Fatalf("items = %+v, want 1", res.Items)
	}
	if got := fake.call(0).prompt; got != "Review main.go" {
		t.Errorf("prompt = %q", got)
	}
}

func TestRun_ExhaustedChainFailsRun(t *testing.T) {
	fake := &fakeDispatcher{
		handler: func(n int, call fakeCall) *dispatch.Result {
			return &dispatch.Result{Exhausted: true, Output: "all backends exhausted"}
		},
	}
	exec, _ := newTestExecutor(fake)

	def := &Definition{
		Name:  "w",
		Steps: []Step{{Name: "a", Agent: "x", Prompt: "p"}},
	}

	run, err := exec.Run(context.Background(), def, nil)
	if !types.HasCode(err, types.ErrDispatchExhausted) {
		t.Fatalf("expected DISPATCH_EXHAUSTED, got %v", err)
	}
	if run.Status != RunFailed {
		t.Errorf("status = %s, want failed", run.Status)
	}
}

func TestRun_ExhaustedWithContinueRecordsFailure(t *testing.T) {
	fake := &fakeDispatcher{
		handler: func(n int, call fakeCall) *dispatch.Result {
			if call.hint == "flaky" {
				return &dispatch.Result{Exhausted: true, Output: "all backends exhausted"}
			}
			return &dispatch.Result{Success: true, Output: "ok"}
		},
	}
	exec, _ := newTestExecutor(fake)

	def := &Definition{
		Name: "w",
		Steps: []Step{
			{Name: "a", Agent: "flaky", Prompt: "p", OnFailure: &OnFailure{Continue: true}},
			{Name: "b", Agent: "x", Prompt: "p", DependsOn: []string{"a"}},
		},
	}

	run, err := exec.Run(context.Background(), def, nil)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if run.Status != RunSuccess {
		t.Fatalf("status = %s, want success", run.Status)
	}
	a := run.StepResults["a"]
	if a.Success || a.Error == "" {
		t.Errorf("a = %+v, want recorded failure", a)
	}
	if !run.StepResults["b"].Success {
		t.Errorf("b = %+v", run.StepResults["b"])
	}
}

func TestRun_OnFailureRetriesDispatch(t *testing.T) {
	fake := &fakeDispatcher{
		handler: func(n int, call fakeCall) *dispatch.Result {
			if n == 1 {
				return &dispatch.Result{Exhausted: true, Output: "all backends exhausted"}
			}
			return &dispatch.Result{Success: true, Output: "recovered"}
		},
	}
	exec, _ := newTestExecutor(fake)

	def := &Definition{
		Name:  "w",
		Steps: []Step{{Name: "a", Agent: "x", Prompt: "p", OnFailure: &OnFailure{Retry: true, MaxAttempts: 3}}},
	}

	run, err := exec.Run(context.Background(), def, nil)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if fake.callCount() != 2 {
		t.Errorf("dispatch count = %d, want 2", fake.callCount())
	}
	if got := run.StepResults["a"].Output; got != "recovered" {
		t.Errorf("output = %q", got)
	}
}

func TestRun_CancellationStopsBetweenSteps(t *testing.T) {
	var reg *Registry
	fake := &fakeDispatcher{
		handler: func(n int, call fakeCall) *dispatch.Result {
			// Cancel mid-run, after the first step has dispatched.
			for _, r := range reg.List() {
				reg.Cancel(r.ID) //nolint:errcheck
			}
			return &dispatch.Result{Success: true, Output: "ok"}
		},
	}
	exec, registry := newTestExecutor(fake)
	reg = registry

	def := &Definition{
		Name: "w",
		Steps: []Step{
			{Name: "a", Agent: "x", Prompt: "p"},
			{Name: "b", Agent: "x", Prompt: "p", DependsOn: []string{"a"}},
		},
	}

	run, err := exec.Run(context.Background(), def, nil)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if run.Status != RunCancelled {
		t.Fatalf("status = %s, want cancelled", run.Status)
	}
	if fake.callCount() != 1 {
		t.Errorf("dispatch count = %d, want 1", fake.callCount())
	}
	if _, ok := run.StepResults["b"]; ok {
		t.Error("step b must not run after cancellation")
	}
	if _, ok := run.StepResults["a"]; !ok {
		t.Error("step a result should survive in the snapshot")
	}
}

func TestRun_SignalsCarryPriorOutputs(t *testing.T) {
	fake := &fakeDispatcher{}
	exec, _ := newTestExecutor(fake)

	def := &Definition{
		Name: "w",
		Steps: []Step{
			{Name: "a", Agent: "x", Prompt: "first"},
			{Name: "b", Agent: "x", Prompt: "second", DependsOn: []string{"a"}},
		},
	}

	if _, err := exec.Run(context.Background(), def, nil); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	second := fake.call(1)
	if len(second.signals) != 1 || second.signals[0] != "done: first" {
		t.Errorf("signals = %v", second.signals)
	}
}

// snapshotRecorder remembers the terminal snapshot handed to persistence.
type snapshotRecorder struct {
	mu   sync.Mutex
	runs []*Run
}

func (s *snapshotRecorder) SaveRun(_ context.Context, run *Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, run)
	return nil
}

func TestRun_TerminalSnapshotPersisted(t *testing.T) {
	rec := &snapshotRecorder{}
	fake := &fakeDispatcher{}
	exec, _ := newTestExecutor(fake, WithSnapshotSink(rec))

	def := &Definition{Name: "w", Steps: []Step{{Name: "a", Agent: "x", Prompt: "p"}}}
	run, err := exec.Run(context.Background(), def, nil)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.runs) != 1 {
		t.Fatalf("persisted %d snapshots, want 1", len(rec.runs))
	}
	saved := rec.runs[0]
	if saved.ID != run.ID || saved.Status != RunSuccess {
		t.Errorf("saved = %s %s", saved.ID, saved.Status)
	}
	if saved.CompletedAt.IsZero() {
		t.Error("saved snapshot missing completion time")
	}
}

// Status pollers snapshot runs through the registry while the executor is
// writing results. Both sides go through the registry lock, so polling a
// run mid-flight must be safe and every snapshot internally consistent:
// the result map and the completed-step counter always move together.
func TestRun_ConcurrentStatusPolling(t *testing.T) {
	fake := &fakeDispatcher{}
	exec, reg := newTestExecutor(fake)

	steps := make([]Step, 60)
	for i := range steps {
		steps[i] = Step{Name: fmt.Sprintf("s%d", i), Agent: "x", Prompt: "p"}
		if i > 0 {
			steps[i].DependsOn = []string{fmt.Sprintf("s%d", i-1)}
		}
	}
	def := &Definition{Name: "long_chain", Steps: steps}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			for _, live := range reg.List() {
				snap, err := reg.Get(live.ID)
				if err != nil {
					continue // run finished between List and Get
				}
				if got := len(snap.StepResults); got != snap.Metrics.StepsCompleted {
					t.Errorf("torn snapshot: %d results, %d counted", got, snap.Metrics.StepsCompleted)
					return
				}
			}
		}
	}()

	run, err := exec.Run(context.Background(), def, nil)
	close(stop)
	wg.Wait()

	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if run.Status != RunSuccess || len(run.StepResults) != 60 {
		t.Fatalf("status = %s, results = %d", run.Status, len(run.StepResults))
	}
}
