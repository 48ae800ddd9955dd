package repository

import (
	"context"

	"grader/internal/common/db"
	"grader/internal/grader/score"
	appErr "grader/pkg/errors"
)

const createResultsTable = `CREATE TABLE IF NOT EXISTS grading_results (
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	run_id VARCHAR(64) NOT NULL,
	faculty_id VARCHAR(64) NOT NULL,
	homework VARCHAR(64) NOT NULL,
	problem VARCHAR(128) NOT NULL,
	points_per_test DOUBLE NOT NULL,
	points DOUBLE NOT NULL,
	verdicts VARCHAR(1024) NOT NULL,
	graded_at DATETIME(3) NOT NULL,
	UNIQUE KEY uk_run_submission (run_id, faculty_id, homework, problem)
)`

const insertResult = `INSERT INTO grading_results
	(run_id, faculty_id, homework, problem, points_per_test, points, verdicts, graded_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON DUPLICATE KEY UPDATE points_per_test = VALUES(points_per_test), points = VALUES(points),
		verdicts = VALUES(verdicts), graded_at = VALUES(graded_at)`

// ResultStore writes one row per result into MySQL.
type ResultStore struct {
	db db.Database
}

func NewResultStore(database db.Database) *ResultStore {
	return &ResultStore{db: database}
}

func (s *ResultStore) Name() string { return "mysql" }

// EnsureSchema creates the results table when it is missing.
func (s *ResultStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, createResultsTable); err != nil {
		return appErr.Wrap(err, appErr.DatabaseError)
	}
	return nil
}

// Save inserts the run's results in one transaction.
func (s *ResultStore) Save(ctx context.Context, run Run) error {
	if len(run.Results) == 0 {
		return nil
	}
	err := s.db.Transaction(ctx, func(tx db.Transaction) error {
		for _, r := range run.Results {
			if _, err := tx.Exec(ctx, insertResult,
				run.RunID,
				r.FacultyID,
				r.HomeworkLabel,
				r.ProblemID,
				r.PointsPerTest,
				score.Points(r),
				verdictString(r.Verdicts),
				run.FinishedAt,
			); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return appErr.Wrapf(err, appErr.ResultStoreFailed, "insert results of run %s", run.RunID)
	}
	return nil
}

var _ Sink = (*ResultStore)(nil)
