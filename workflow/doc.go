// Package workflow is the run engine of adwflow: it loads declarative
// workflow definitions, topologically resolves their step graphs, and
// drives one Run at a time through the per-step state machine (condition
// gate, skip propagation, template interpolation, for_each fan-out,
// dispatch, validation gate).
//
// Steps within one run execute strictly sequentially in resolved order;
// concurrency exists only across independent runs, each of which owns its
// private state and is tracked in a Registry for status and cooperative
// cancellation.
package workflow
