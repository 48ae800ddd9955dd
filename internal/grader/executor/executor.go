// Package executor runs a compiled submission against one test case and judges its output.
package executor

import (
	"context"
	"strings"
	"time"

	"grader/internal/grader/model"
	"grader/internal/grader/normalize"
	"grader/internal/grader/process"
	"grader/pkg/utils/logger"

	"go.uber.org/zap"
)

const DefaultTimeout = 5 * time.Second

// Config controls test execution.
type Config struct {
	Timeout time.Duration `yaml:"timeout"`
}

// Executor runs one test case at a time. It is safe for concurrent use.
type Executor struct {
	runner  process.Runner
	timeout time.Duration
}

// New creates an Executor.
func New(cfg Config, runner process.Runner) *Executor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Executor{runner: runner, timeout: cfg.Timeout}
}

// RunTestCase feeds tc.Input to the submission binary and compares its output with
// tc.ExpectedOutput. Launch failures and timeouts count as a wrong answer.
func (e *Executor) RunTestCase(ctx context.Context, sub model.Submission, tc model.TestCase) bool {
	binary := sub.BinaryPath()
	res, err := e.runner.Run(ctx, process.Request{
		Path:    binary,
		Dir:     sub.WorkDirectory,
		Stdin:   strings.NewReader(strings.TrimSpace(tc.Input) + "\n"),
		Timeout: e.timeout,
	})
	if err != nil {
		logger.Warn(ctx, "test run failed",
			zap.String("submission_path", binary),
			zap.Error(err),
		)
		return false
	}
	if res.TimedOut {
		logger.Warn(ctx, "test run timed out",
			zap.String("submission_path", binary),
			zap.Bool("timed_out", true),
			zap.Duration("timeout", e.timeout),
		)
		return false
	}

	actual := normalize.Normalize(res.Stdout)
	expected := normalize.Normalize(tc.ExpectedOutput)
	if actual != expected {
		logger.Warn(ctx, "test failed",
			zap.String("submission_path", binary),
			zap.String("expected", normalize.Escape(expected)),
			zap.String("actual", normalize.Escape(actual)),
			zap.Bool("truncated", res.Truncated),
		)
		return false
	}
	return true
}
