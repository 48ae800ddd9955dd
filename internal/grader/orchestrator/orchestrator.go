// Package orchestrator drives compile, execute and compare over every submission.
package orchestrator

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"

	"grader/internal/grader/model"
	"grader/pkg/utils/contextkey"
	"grader/pkg/utils/logger"

	"github.com/pbnjay/memory"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultSourceExt = ".cpp"
	DefaultMarker    = "hw"

	// memoryPerWorker is the RAM budget assumed for one concurrent compile.
	memoryPerWorker = 512 << 20
)

// Compiler builds one submission.
type Compiler interface {
	Compile(ctx context.Context, sub model.Submission) bool
}

// TestRunner judges one test case of a built submission.
type TestRunner interface {
	RunTestCase(ctx context.Context, sub model.Submission, tc model.TestCase) bool
}

// Config bounds the fan-out of a grading run.
type Config struct {
	SubmissionConcurrency int    `yaml:"submissionConcurrency"`
	FileConcurrency       int    `yaml:"fileConcurrency"`
	TestConcurrency       int    `yaml:"testConcurrency"`
	SourceExt             string `yaml:"sourceExt"`
	Marker                string `yaml:"marker"`
}

// Orchestrator grades every submission under a root directory.
type Orchestrator struct {
	cfg      Config
	compiler Compiler
	tests    TestRunner
}

// DefaultConcurrency returns the number of CPUs, reduced when physical memory
// cannot hold that many compilers at once.
func DefaultConcurrency() int {
	n := runtime.NumCPU()
	if total := memory.TotalMemory(); total > 0 {
		if byMem := int(total / memoryPerWorker); byMem < n {
			n = byMem
		}
	}
	if n < 1 {
		n = 1
	}
	return n
}

// New creates an Orchestrator, filling unset limits with defaults.
func New(cfg Config, compiler Compiler, tests TestRunner) *Orchestrator {
	if cfg.SubmissionConcurrency <= 0 {
		cfg.SubmissionConcurrency = DefaultConcurrency()
	}
	if cfg.FileConcurrency <= 0 {
		cfg.FileConcurrency = 1
	}
	if cfg.TestConcurrency <= 0 {
		cfg.TestConcurrency = 1
	}
	if cfg.SourceExt == "" {
		cfg.SourceExt = DefaultSourceExt
	}
	if !strings.HasPrefix(cfg.SourceExt, ".") {
		cfg.SourceExt = "." + cfg.SourceExt
	}
	if cfg.Marker == "" {
		cfg.Marker = DefaultMarker
	}
	return &Orchestrator{cfg: cfg, compiler: compiler, tests: tests}
}

// GradeAll grades every submission under root against catalog.
// Problems missing from the catalog are skipped. Results come back in no particular order.
func (o *Orchestrator) GradeAll(ctx context.Context, root string, catalog model.Catalog) []model.Result {
	dirs, err := o.Discover(ctx, root)
	if err != nil {
		logger.Error(ctx, "submission discovery failed", zap.Error(err))
		return nil
	}

	out := make(chan model.Result)
	collected := make(chan []model.Result, 1)
	go func() {
		var results []model.Result
		for r := range out {
			results = append(results, r)
		}
		collected <- results
	}()

	g := new(errgroup.Group)
	g.SetLimit(o.cfg.SubmissionConcurrency)
	for _, dir := range dirs {
		g.Go(func() error {
			o.gradeDirectory(ctx, dir, catalog, out)
			return nil
		})
	}
	_ = g.Wait()
	close(out)
	results := <-collected

	logger.Info(ctx, "grading finished",
		zap.Int("directories", len(dirs)),
		zap.Int("results", len(results)),
	)
	return results
}

func (o *Orchestrator) gradeDirectory(ctx context.Context, dir SubmissionDir, catalog model.Catalog, out chan<- model.Result) {
	ctx = context.WithValue(ctx, contextkey.FacultyID, dir.FacultyID)
	files, err := o.sourceFiles(dir.Path)
	if err != nil {
		logger.Warn(ctx, "skipping submission directory", zap.String("dir", dir.Path), zap.Error(err))
		return
	}

	g := new(errgroup.Group)
	g.SetLimit(o.cfg.FileConcurrency)
	for _, file := range files {
		name := filepath.Base(file)
		problemID := strings.ToLower(strings.TrimSuffix(name, filepath.Ext(name)))
		suite, ok := catalog.Lookup(problemID)
		if !ok {
			continue
		}
		sub := model.Submission{
			FacultyID:     dir.FacultyID,
			HomeworkLabel: dir.HomeworkLabel,
			ProblemID:     problemID,
			SourcePath:    file,
			WorkDirectory: dir.Path,
		}
		g.Go(func() error {
			out <- o.GradeSubmission(context.WithValue(ctx, contextkey.ProblemID, problemID), sub, suite)
			return nil
		})
	}
	_ = g.Wait()
}

// GradeSubmission compiles sub and runs it against every case of suite.
// A panic anywhere in the pipeline yields a Result with every verdict false.
func (o *Orchestrator) GradeSubmission(ctx context.Context, sub model.Submission, suite model.TestSuite) (res model.Result) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error(ctx, "grading panicked",
				zap.String("source", sub.SourcePath),
				zap.String("panic", fmt.Sprint(r)),
			)
			res = model.NewResult(sub, suite)
		}
	}()

	res = model.NewResult(sub, suite)
	if !o.compiler.Compile(ctx, sub) {
		logger.Warn(ctx, "could not compile", zap.String("source", sub.SourcePath))
		return res
	}
	if o.runCases(ctx, sub, suite, res.Verdicts) {
		return model.NewResult(sub, suite)
	}
	return res
}

// runCases writes verdicts[i] from case i. It reports whether any case panicked.
func (o *Orchestrator) runCases(ctx context.Context, sub model.Submission, suite model.TestSuite, verdicts model.Verdicts) bool {
	if o.cfg.TestConcurrency <= 1 {
		for i, tc := range suite.Cases {
			verdicts[i] = o.tests.RunTestCase(ctx, sub, tc)
		}
		return false
	}

	var panicked atomic.Bool
	g := new(errgroup.Group)
	g.SetLimit(o.cfg.TestConcurrency)
	for i, tc := range suite.Cases {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					panicked.Store(true)
					logger.Error(ctx, "test case panicked",
						zap.String("source", sub.SourcePath),
						zap.Int("case", i),
						zap.String("panic", fmt.Sprint(r)),
					)
				}
			}()
			verdicts[i] = o.tests.RunTestCase(ctx, sub, tc)
			return nil
		})
	}
	_ = g.Wait()
	return panicked.Load()
}
