// Package store persists terminal run snapshots. The registry tracks
// in-flight runs; once a run completes its snapshot is written here so
// callers always get partial progress and the exact failure, even after
// the run leaves the registry.
package store

import (
	"context"

	"github.com/adwhq/adwflow/workflow"
)

// RunStore persists and retrieves run snapshots.
type RunStore interface {
	// SaveRun writes a snapshot (create or update).
	SaveRun(ctx context.Context, run *workflow.Run) error
	// GetRun retrieves a snapshot by run id.
	GetRun(ctx context.Context, id string) (*workflow.Run, error)
	// ListRuns returns snapshots for a workflow name; empty name means all.
	ListRuns(ctx context.Context, workflowName string) ([]*workflow.Run, error)
	// Close releases store resources.
	Close() error
}
