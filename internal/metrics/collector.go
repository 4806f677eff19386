// Package metrics provides the engine's Prometheus instrumentation.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds the engine metric families. Construct one per process
// (or per test registry) and share it by reference.
type Collector struct {
	runsTotal        *prometheus.CounterVec
	runDuration      *prometheus.HistogramVec
	stepsTotal       *prometheus.CounterVec
	tokensUsed       *prometheus.CounterVec
	dispatchHops     *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
	planTasksTotal   *prometheus.CounterVec
}

// NewCollector registers the engine metrics on reg (the default registerer
// when nil).
func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Collector{
		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total workflow runs by terminal status",
		}, []string{"workflow", "status"}),

		runDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Workflow run duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"workflow"}),

		stepsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_total",
			Help:      "Total processed steps by outcome",
		}, []string{"workflow", "outcome"}),

		tokensUsed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_used_total",
			Help:      "Total tokens consumed by workflow",
		}, []string{"workflow"}),

		dispatchHops: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_hops_total",
			Help:      "Backend hop attempts by outcome",
		}, []string{"backend", "outcome"}),

		dispatchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_hop_duration_seconds",
			Help:      "Backend hop latency in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"backend"}),

		planTasksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plan_tasks_total",
			Help:      "Plan task completions by owner role and status",
		}, []string{"role", "status"}),
	}
}

// RunCompleted records a terminal run.
func (c *Collector) RunCompleted(workflow, status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.runsTotal.WithLabelValues(workflow, status).Inc()
	c.runDuration.WithLabelValues(workflow).Observe(duration.Seconds())
}

// StepProcessed records one step outcome: "success", "failed", or "skipped".
func (c *Collector) StepProcessed(workflow, outcome string) {
	if c == nil {
		return
	}
	c.stepsTotal.WithLabelValues(workflow, outcome).Inc()
}

// TokensUsed adds to the workflow's token counter.
func (c *Collector) TokensUsed(workflow string, tokens int) {
	if c == nil || tokens <= 0 {
		return
	}
	c.tokensUsed.WithLabelValues(workflow).Add(float64(tokens))
}

// DispatchHop records one backend attempt.
func (c *Collector) DispatchHop(backend string, success bool, elapsed time.Duration) {
	if c == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	c.dispatchHops.WithLabelValues(backend, outcome).Inc()
	c.dispatchDuration.WithLabelValues(backend).Observe(elapsed.Seconds())
}

// PlanTask records a task reaching a status.
func (c *Collector) PlanTask(role, status string) {
	if c == nil {
		return
	}
	c.planTasksTotal.WithLabelValues(role, status).Inc()
}
