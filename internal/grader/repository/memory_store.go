package repository

import (
	"context"
	"sync"

	"grader/internal/grader/model"
	appErr "grader/pkg/errors"
)

// MemoryResultStore keeps runs in process for the HTTP API when Redis is not configured.
type MemoryResultStore struct {
	mu     sync.RWMutex
	runs   map[string]Run
	latest string
}

func NewMemoryResultStore() *MemoryResultStore {
	return &MemoryResultStore{runs: make(map[string]Run)}
}

func (m *MemoryResultStore) Name() string { return "memory" }

func (m *MemoryResultStore) Save(ctx context.Context, run Run) error {
	if run.RunID == "" {
		return appErr.ValidationError("runId", "required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.RunID] = run
	m.latest = run.RunID
	return nil
}

func (m *MemoryResultStore) LatestRun(ctx context.Context) (Run, error) {
	m.mu.RLock()
	latest := m.latest
	m.mu.RUnlock()
	if latest == "" {
		return Run{}, appErr.New(appErr.NotFound).WithMessage("no grading run stored")
	}
	return m.GetRun(ctx, latest)
}

func (m *MemoryResultStore) GetRun(ctx context.Context, runID string) (Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[runID]
	if !ok {
		return Run{}, appErr.Newf(appErr.NotFound, "run %s not found", runID)
	}
	return run, nil
}

func (m *MemoryResultStore) FacultyResults(ctx context.Context, runID, facultyID string) ([]model.Result, error) {
	run, err := m.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	results, ok := run.ByFaculty()[facultyID]
	if !ok {
		return nil, appErr.Newf(appErr.NotFound, "no results for faculty %s", facultyID)
	}
	return results, nil
}

var (
	_ Sink   = (*MemoryResultStore)(nil)
	_ Reader = (*MemoryResultStore)(nil)
)
