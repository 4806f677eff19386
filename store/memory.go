package store

import (
	"context"
	"sort"
	"sync"

	"github.com/adwhq/adwflow/types"
	"github.com/adwhq/adwflow/workflow"
)

// MemoryRunStore is an in-memory RunStore. Suitable for development and
// tests; data is lost on restart.
type MemoryRunStore struct {
	mu     sync.RWMutex
	runs   map[string]*workflow.Run
	closed bool
}

// NewMemoryRunStore creates an empty in-memory store.
func NewMemoryRunStore() *MemoryRunStore {
	return &MemoryRunStore{runs: make(map[string]*workflow.Run)}
}

func (s *MemoryRunStore) SaveRun(_ context.Context, run *workflow.Run) error {
	if run == nil || run.ID == "" {
		return types.NewError(types.ErrInvalidInput, "run has no id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return types.NewError(types.ErrStoreClosed, "memory run store closed")
	}
	s.runs[run.ID] = run.Snapshot()
	return nil
}

func (s *MemoryRunStore) GetRun(_ context.Context, id string) (*workflow.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, types.NewError(types.ErrStoreClosed, "memory run store closed")
	}
	run, ok := s.runs[id]
	if !ok {
		return nil, types.NewError(types.ErrNotFound, "run "+id+" not found")
	}
	return run.Snapshot(), nil
}

func (s *MemoryRunStore) ListRuns(_ context.Context, workflowName string) ([]*workflow.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, types.NewError(types.ErrStoreClosed, "memory run store closed")
	}
	var out []*workflow.Run
	for _, run := range s.runs {
		if workflowName == "" || run.Workflow == workflowName {
			out = append(out, run.Snapshot())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

func (s *MemoryRunStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
