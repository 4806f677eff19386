package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/adwhq/adwflow/types"
	"github.com/adwhq/adwflow/workflow"
)

// runRecord is the relational shape of a run snapshot. Step results are
// stored as a JSON document; the queryable columns are what the dashboard
// collaborator filters on.
type runRecord struct {
	ID          string `gorm:"primaryKey"`
	Workflow    string `gorm:"index"`
	Status      string `gorm:"index"`
	Snapshot    []byte
	TotalTokens int
	StartedAt   time.Time
	CompletedAt time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (runRecord) TableName() string { return "workflow_runs" }

// ArchiveStore is a SQLite-backed RunStore for durable local history.
type ArchiveStore struct {
	db *gorm.DB
}

// NewArchiveStore opens (or creates) the archive database at path and
// migrates the schema. Use ":memory:" for tests.
func NewArchiveStore(path string) (*ArchiveStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", path, err)
	}
	if err := db.AutoMigrate(&runRecord{}); err != nil {
		return nil, fmt.Errorf("migrate archive: %w", err)
	}
	return &ArchiveStore{db: db}, nil
}

func (s *ArchiveStore) SaveRun(ctx context.Context, run *workflow.Run) error {
	if run == nil || run.ID == "" {
		return types.NewError(types.ErrInvalidInput, "run has no id")
	}
	raw, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal run %s: %w", run.ID, err)
	}
	rec := runRecord{
		ID:          run.ID,
		Workflow:    run.Workflow,
		Status:      string(run.Status),
		Snapshot:    raw,
		TotalTokens: run.Metrics.TotalTokens,
		StartedAt:   run.StartedAt,
		CompletedAt: run.CompletedAt,
	}
	return s.db.WithContext(ctx).Save(&rec).Error
}

func (s *ArchiveStore) GetRun(ctx context.Context, id string) (*workflow.Run, error) {
	var rec runRecord
	err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NewError(types.ErrNotFound, "run "+id+" not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	return decodeSnapshot(rec.Snapshot, id)
}

func (s *ArchiveStore) ListRuns(ctx context.Context, workflowName string) ([]*workflow.Run, error) {
	q := s.db.WithContext(ctx).Order("started_at asc")
	if workflowName != "" {
		q = q.Where("workflow = ?", workflowName)
	}
	var recs []runRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	out := make([]*workflow.Run, 0, len(recs))
	for _, rec := range recs {
		run, err := decodeSnapshot(rec.Snapshot, rec.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, nil
}

func (s *ArchiveStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func decodeSnapshot(raw []byte, id string) (*workflow.Run, error) {
	var run workflow.Run
	if err := json.Unmarshal(raw, &run); err != nil {
		return nil, fmt.Errorf("decode run %s: %w", id, err)
	}
	return &run, nil
}
