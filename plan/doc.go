// Package plan is the generalized dependency-graph task coordinator: the
// coarser-grained analog of the workflow engine used for multi-agent
// builder/validator orchestration.
//
// A Plan holds Tasks with dependencies and owners. The Coordinator applies
// the same unblock-dependents-on-completion scheduling as the workflow
// executor, at task granularity; the Team loop polls for eligible tasks,
// dispatches them to agent backends, and records verdicts until the plan
// completes, fails, or stalls.
package plan
