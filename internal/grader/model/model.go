// Package model holds the value types shared by the grading pipeline.
package model

import (
	"path/filepath"
	"runtime"
	"strings"
)

// MaxPoints is the score of a submission that passes every test case.
const MaxPoints = 10.0

// TestCase is one input/expected-output pair. Its identity is its position in the suite.
type TestCase struct {
	Input          string `json:"input" yaml:"input" xml:"input"`
	ExpectedOutput string `json:"output" yaml:"output" xml:"output"`
}

// TestSuite is the ordered list of cases for one problem.
type TestSuite struct {
	ProblemID string
	Cases     []TestCase
}

// Len returns the number of cases.
func (s TestSuite) Len() int { return len(s.Cases) }

// Catalog maps a lowercased problem id to its suite. It is read-only once loaded.
type Catalog map[string]TestSuite

// Lookup finds a suite by problem id, ignoring case.
func (c Catalog) Lookup(problemID string) (TestSuite, bool) {
	suite, ok := c[strings.ToLower(problemID)]
	return suite, ok
}

// Add stores a suite under its lowercased problem id.
func (c Catalog) Add(suite TestSuite) {
	suite.ProblemID = strings.ToLower(suite.ProblemID)
	c[suite.ProblemID] = suite
}

// Submission is one source file submitted by a faculty member for a homework.
type Submission struct {
	FacultyID     string
	HomeworkLabel string
	ProblemID     string
	SourcePath    string
	WorkDirectory string
}

// BinaryPath is where the compiled program for the submission lives.
func (s Submission) BinaryPath() string {
	name := s.ProblemID
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	return filepath.Join(s.WorkDirectory, name)
}

// Verdicts holds one pass/fail flag per test case index.
type Verdicts []bool

// Passed counts the true entries.
func (v Verdicts) Passed() int {
	n := 0
	for _, ok := range v {
		if ok {
			n++
		}
	}
	return n
}

// Result is the grading record of one submission.
type Result struct {
	FacultyID     string   `json:"facultyId"`
	HomeworkLabel string   `json:"homework"`
	ProblemID     string   `json:"problem"`
	PointsPerTest float64  `json:"pointsPerTest"`
	Verdicts      Verdicts `json:"verdicts"`
}

// NewResult creates a Result with every verdict false.
// An empty suite yields zero points per test.
func NewResult(sub Submission, suite TestSuite) Result {
	pointsPerTest := 0.0
	if n := suite.Len(); n > 0 {
		pointsPerTest = MaxPoints / float64(n)
	}
	return Result{
		FacultyID:     sub.FacultyID,
		HomeworkLabel: sub.HomeworkLabel,
		ProblemID:     sub.ProblemID,
		PointsPerTest: pointsPerTest,
		Verdicts:      make(Verdicts, suite.Len()),
	}
}

// Key identifies a result as faculty/homework/problem.
func (r Result) Key() string {
	return r.FacultyID + "/" + r.HomeworkLabel + "/" + r.ProblemID
}
