package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"grader/internal/common/cache"
	"grader/internal/grader/model"
	appErr "grader/pkg/errors"
)

const (
	runKeyPrefix     = "grader:run:"
	latestRunKey     = "grader:latest"
	defaultResultTTL = 7 * 24 * time.Hour
)

// ResultRepository stores runs in Redis, indexed by faculty.
type ResultRepository struct {
	cache cache.Cache
	ttl   time.Duration
}

// NewResultRepository creates a Redis-backed repository. A zero ttl uses seven days.
func NewResultRepository(c cache.Cache, ttl time.Duration) *ResultRepository {
	if ttl <= 0 {
		ttl = defaultResultTTL
	}
	return &ResultRepository{cache: c, ttl: ttl}
}

func runKey(runID string) string { return runKeyPrefix + runID }

func facultyKey(runID, facultyID string) string {
	return fmt.Sprintf("%s%s:faculty:%s", runKeyPrefix, runID, facultyID)
}

func facultySetKey(runID string) string { return runKeyPrefix + runID + ":faculties" }

func (r *ResultRepository) Name() string { return "redis" }

// Save writes the run, its per-faculty slices and the latest pointer in one transaction.
func (r *ResultRepository) Save(ctx context.Context, run Run) error {
	if run.RunID == "" {
		return appErr.ValidationError("runId", "required")
	}
	runData, err := json.Marshal(run)
	if err != nil {
		return appErr.Wrap(err, appErr.ResultStoreFailed)
	}
	groups := run.ByFaculty()
	facultyData := make(map[string][]byte, len(groups))
	members := make([]interface{}, 0, len(groups))
	for facultyID, results := range groups {
		data, err := json.Marshal(results)
		if err != nil {
			return appErr.Wrap(err, appErr.ResultStoreFailed)
		}
		facultyData[facultyID] = data
		members = append(members, facultyID)
	}

	err = r.cache.Pipeline(ctx, func(pipe cache.Pipeliner) error {
		if err := pipe.Set(runKey(run.RunID), runData, r.ttl); err != nil {
			return err
		}
		for facultyID, data := range facultyData {
			if err := pipe.Set(facultyKey(run.RunID, facultyID), data, r.ttl); err != nil {
				return err
			}
		}
		if len(members) > 0 {
			if err := pipe.SAdd(facultySetKey(run.RunID), members...); err != nil {
				return err
			}
			if err := pipe.Expire(facultySetKey(run.RunID), r.ttl); err != nil {
				return err
			}
		}
		return pipe.Set(latestRunKey, run.RunID, r.ttl)
	})
	if err != nil {
		return appErr.Wrapf(err, appErr.CacheSetFailed, "store run %s", run.RunID)
	}
	return nil
}

// LatestRun returns the most recently saved run.
func (r *ResultRepository) LatestRun(ctx context.Context) (Run, error) {
	runID, err := r.cache.Get(ctx, latestRunKey)
	if err != nil {
		return Run{}, appErr.Wrap(err, appErr.CacheError)
	}
	if runID == "" {
		return Run{}, appErr.New(appErr.NotFound).WithMessage("no grading run stored")
	}
	return r.GetRun(ctx, runID)
}

// GetRun loads a run by id.
func (r *ResultRepository) GetRun(ctx context.Context, runID string) (Run, error) {
	data, err := r.cache.Get(ctx, runKey(runID))
	if err != nil {
		return Run{}, appErr.Wrap(err, appErr.CacheError)
	}
	if data == "" {
		return Run{}, appErr.Newf(appErr.NotFound, "run %s not found", runID)
	}
	var run Run
	if err := json.Unmarshal([]byte(data), &run); err != nil {
		return Run{}, appErr.Wrapf(err, appErr.InvalidFormat, "decode run %s", runID)
	}
	return run, nil
}

// FacultyResults returns one faculty's results within a run.
func (r *ResultRepository) FacultyResults(ctx context.Context, runID, facultyID string) ([]model.Result, error) {
	data, err := r.cache.Get(ctx, facultyKey(runID, facultyID))
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CacheError)
	}
	if data == "" {
		return nil, appErr.Newf(appErr.NotFound, "no results for faculty %s", facultyID)
	}
	var results []model.Result
	if err := json.Unmarshal([]byte(data), &results); err != nil {
		return nil, appErr.Wrapf(err, appErr.InvalidFormat, "decode faculty %s", facultyID)
	}
	return results, nil
}

// Faculties lists the faculty ids present in a run.
func (r *ResultRepository) Faculties(ctx context.Context, runID string) ([]string, error) {
	ids, err := r.cache.SMembers(ctx, facultySetKey(runID))
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CacheError)
	}
	return ids, nil
}

var (
	_ Sink   = (*ResultRepository)(nil)
	_ Reader = (*ResultRepository)(nil)
)
