// Package repository persists and publishes the results of grading runs.
package repository

import (
	"context"
	"strings"
	"time"

	"grader/internal/grader/model"
	"grader/internal/grader/score"
	"grader/pkg/utils/logger"

	"go.uber.org/zap"
)

// Run is one complete grading pass.
type Run struct {
	RunID      string         `json:"runId"`
	StartedAt  time.Time      `json:"startedAt"`
	FinishedAt time.Time      `json:"finishedAt"`
	Results    []model.Result `json:"results"`
}

// ByFaculty groups the run's results by faculty id.
func (r Run) ByFaculty() map[string][]model.Result {
	out := make(map[string][]model.Result)
	for _, res := range r.Results {
		out[res.FacultyID] = append(out[res.FacultyID], res)
	}
	return out
}

// Sink receives a finished run.
type Sink interface {
	Name() string
	Save(ctx context.Context, run Run) error
}

// Reader serves stored runs.
type Reader interface {
	LatestRun(ctx context.Context) (Run, error)
	GetRun(ctx context.Context, runID string) (Run, error)
	FacultyResults(ctx context.Context, runID, facultyID string) ([]model.Result, error)
}

// Dispatch hands run to every sink. Failures are logged and never stop the other sinks.
// It returns the number of sinks that failed.
func Dispatch(ctx context.Context, run Run, sinks ...Sink) int {
	failed := 0
	for _, s := range sinks {
		if s == nil {
			continue
		}
		if err := s.Save(ctx, run); err != nil {
			failed++
			logger.Error(ctx, "result sink failed", zap.String("sink", s.Name()), zap.Error(err))
			continue
		}
		logger.Info(ctx, "results stored", zap.String("sink", s.Name()), zap.Int("results", len(run.Results)))
	}
	return failed
}

// verdictString encodes verdicts as '1' and '0' characters.
func verdictString(v model.Verdicts) string {
	var b strings.Builder
	b.Grow(len(v))
	for _, ok := range v {
		if ok {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}

// ResultEvent is the wire form of one result for downstream consumers.
type ResultEvent struct {
	RunID         string         `json:"runId"`
	FacultyID     string         `json:"facultyId"`
	HomeworkLabel string         `json:"homework"`
	ProblemID     string         `json:"problem"`
	PointsPerTest float64        `json:"pointsPerTest"`
	Points        float64        `json:"points"`
	Verdicts      model.Verdicts `json:"verdicts"`
	GradedAt      time.Time      `json:"gradedAt"`
}

func newResultEvent(run Run, r model.Result) ResultEvent {
	return ResultEvent{
		RunID:         run.RunID,
		FacultyID:     r.FacultyID,
		HomeworkLabel: r.HomeworkLabel,
		ProblemID:     r.ProblemID,
		PointsPerTest: r.PointsPerTest,
		Points:        score.Points(r),
		Verdicts:      r.Verdicts,
		GradedAt:      run.FinishedAt,
	}
}
