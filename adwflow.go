// Package adwflow is the autonomous AI-developer-workflow orchestration
// engine: it executes declarative multi-step workflow definitions against a
// codebase, dispatching each step to agent backends with fallback, and
// coordinates coarser builder/validator plans over the same scheduling
// primitives.
//
// Engine is the assembled facade; the workflow, dispatch, and plan packages
// are usable on their own.
package adwflow

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/adwhq/adwflow/audit"
	"github.com/adwhq/adwflow/config"
	"github.com/adwhq/adwflow/dispatch"
	"github.com/adwhq/adwflow/internal/metrics"
	"github.com/adwhq/adwflow/knowledge"
	"github.com/adwhq/adwflow/plan"
	"github.com/adwhq/adwflow/store"
	"github.com/adwhq/adwflow/workflow"
)

// Engine ties the engine components together: backend registry and
// dispatcher, run registry and executor, run store, metrics. Construct one
// per process and share it by reference; every piece of state lives on the
// instance, never in package globals.
type Engine struct {
	cfg        *config.Config
	logger     *zap.Logger
	registry   *workflow.Registry
	dispatcher *dispatch.Dispatcher
	executor   *workflow.Executor
	runStore   store.RunStore
	collector  *metrics.Collector
}

// NewEngine assembles an engine from configuration.
func NewEngine(cfg *config.Config, logger *zap.Logger) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	backends := dispatch.NewRegistry()
	for _, bc := range cfg.Backends {
		backends.Register(dispatch.NewHTTPBackend(bc, logger))
	}
	cli := dispatch.NewCLIBackend(cfg.CLI, logger)
	backends.Register(cli)

	chain := cfg.FallbackChain
	if len(chain) == 0 {
		// Default strict linear chain: every configured backend in
		// config order, then the CLI hop.
		for _, bc := range cfg.Backends {
			chain = append(chain, bc.Name)
		}
		chain = append(chain, cli.Name())
	}
	backends.SetFallbackChain(chain...)

	collector := metrics.NewCollector("adwflow", nil)
	dispatcher := dispatch.NewDispatcher(backends, logger)
	dispatcher.SetHopObserver(collector.DispatchHop)
	for _, bc := range cfg.Backends {
		if bc.RateLimit > 0 {
			burst := bc.Burst
			if burst < 1 {
				burst = 1
			}
			dispatcher.SetRateLimit(bc.Name, bc.RateLimit, burst)
		}
	}

	runStore, err := buildRunStore(cfg)
	if err != nil {
		return nil, err
	}

	var know knowledge.Provider = knowledge.NopProvider{}
	if cfg.KnowledgeDir != "" {
		know = knowledge.NewDirProvider(cfg.KnowledgeDir, logger)
	}

	registry := workflow.NewRegistry()
	executor := workflow.NewExecutor(dispatcher, registry, logger,
		workflow.WithKnowledge(know),
		workflow.WithAuditSink(audit.NewLogSink(logger)),
		workflow.WithSnapshotSink(runStoreSink{runStore}),
		workflow.WithMetrics(collector),
		workflow.WithWorkDir(cfg.WorkDir),
	)

	return &Engine{
		cfg:        cfg,
		logger:     logger,
		registry:   registry,
		dispatcher: dispatcher,
		executor:   executor,
		runStore:   runStore,
		collector:  collector,
	}, nil
}

func buildRunStore(cfg *config.Config) (store.RunStore, error) {
	switch {
	case cfg.Redis != nil:
		return store.NewRedisRunStore(*cfg.Redis)
	case cfg.ArchivePath != "":
		return store.NewArchiveStore(cfg.ArchivePath)
	default:
		return store.NewMemoryRunStore(), nil
	}
}

// runStoreSink adapts a store.RunStore to the executor's snapshot sink.
type runStoreSink struct {
	store store.RunStore
}

func (s runStoreSink) SaveRun(ctx context.Context, run *workflow.Run) error {
	return s.store.SaveRun(ctx, run)
}

// RunWorkflow loads the named definition from the definitions directory
// and executes it.
func (e *Engine) RunWorkflow(ctx context.Context, name string, inputs map[string]any) (*workflow.Run, error) {
	def, err := workflow.LoadDefinition(filepath.Join(e.cfg.DefinitionsDir, name+".yaml"))
	if err != nil {
		return nil, err
	}
	return e.executor.Run(ctx, def, inputs)
}

// RunDefinition executes an already loaded definition.
func (e *Engine) RunDefinition(ctx context.Context, def *workflow.Definition, inputs map[string]any) (*workflow.Run, error) {
	return e.executor.Run(ctx, def, inputs)
}

// ExecutePlan builds a builder/validator plan from the given members and
// tasks and drives it to completion with the engine's dispatcher.
func (e *Engine) ExecutePlan(ctx context.Context, members []plan.TeamMember, tasks []*plan.Task) (*plan.Plan, error) {
	coord, err := plan.NewCoordinator(members, tasks, e.logger, plan.WithMetrics(e.collector))
	if err != nil {
		return nil, err
	}
	team := plan.NewTeam(coord, e.dispatcher, e.logger,
		plan.WithAuditSink(audit.NewLogSink(e.logger)),
	)
	return team.Execute(ctx)
}

// Registry exposes the run registry for status queries and cancellation.
func (e *Engine) Registry() *workflow.Registry {
	return e.registry
}

// RunStore exposes the terminal-snapshot store.
func (e *Engine) RunStore() store.RunStore {
	return e.runStore
}

// Close releases engine resources.
func (e *Engine) Close() error {
	if e.runStore != nil {
		if err := e.runStore.Close(); err != nil {
			return fmt.Errorf("close run store: %w", err)
		}
	}
	return nil
}
