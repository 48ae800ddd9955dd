package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"grader/internal/grader/model"
	appErr "grader/pkg/errors"
)

type fakeCompiler struct {
	mu     sync.Mutex
	fail   map[string]bool
	called []string
}

func (f *fakeCompiler) Compile(ctx context.Context, sub model.Submission) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called = append(f.called, sub.FacultyID+"/"+sub.ProblemID)
	return !f.fail[sub.ProblemID]
}

// fakeTests passes a case when its expected output is "yes".
type fakeTests struct {
	mu      sync.Mutex
	runs    map[string]int
	panicOn string
	delay   func(tc model.TestCase) time.Duration
}

func (f *fakeTests) RunTestCase(ctx context.Context, sub model.Submission, tc model.TestCase) bool {
	f.mu.Lock()
	if f.runs == nil {
		f.runs = map[string]int{}
	}
	f.runs[sub.FacultyID+"/"+sub.ProblemID]++
	f.mu.Unlock()
	if sub.ProblemID == f.panicOn {
		panic("boom")
	}
	if f.delay != nil {
		time.Sleep(f.delay(tc))
	}
	return tc.ExpectedOutput == "yes"
}

func (f *fakeTests) count(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs[key]
}

func mkSubmission(t *testing.T, root, dir string, files ...string) {
	t.Helper()
	path := filepath.Join(root, dir)
	if err := os.MkdirAll(path, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for _, f := range files {
		if err := os.WriteFile(filepath.Join(path, f), []byte("int main(){}"), 0644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
}

func suite(id string, expected ...string) model.TestSuite {
	s := model.TestSuite{ProblemID: id}
	for _, e := range expected {
		s.Cases = append(s.Cases, model.TestCase{Input: "in", ExpectedOutput: e})
	}
	return s
}

func catalogOf(suites ...model.TestSuite) model.Catalog {
	c := model.Catalog{}
	for _, s := range suites {
		c.Add(s)
	}
	return c
}

func sortResults(rs []model.Result) {
	sort.Slice(rs, func(i, j int) bool { return rs[i].Key() < rs[j].Key() })
}

func TestParseDirName(t *testing.T) {
	tests := []struct {
		name, label, faculty string
		wantErr              bool
	}{
		{"ivan_hw1.81234", "hw1", "81234", false},
		{"hw2.555", "hw2", "555", false},
		{"lab3.42", "lab3", "42", false},
		{"hw1.777.old", "hw1", "777", false},
		{"nodot", "", "", true},
		{"hw1.", "", "", true},
		{".123", "", "", true},
	}
	for _, tt := range tests {
		label, faculty, err := ParseDirName(tt.name, DefaultMarker)
		if tt.wantErr {
			if !appErr.Is(err, appErr.SubmissionNameInvalid) {
				t.Fatalf("%q: expected SubmissionNameInvalid, got %v", tt.name, err)
			}
			continue
		}
		if err != nil || label != tt.label || faculty != tt.faculty {
			t.Fatalf("%q: got %q,%q,%v", tt.name, label, faculty, err)
		}
	}
}

func TestDiscoverSkipsMalformed(t *testing.T) {
	root := t.TempDir()
	mkSubmission(t, root, "ivan_hw1.111")
	mkSubmission(t, root, "garbage")
	if err := os.WriteFile(filepath.Join(root, "hw1.999"), []byte("file, not dir"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	o := New(Config{}, &fakeCompiler{}, &fakeTests{})
	dirs, err := o.Discover(context.Background(), root)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(dirs) != 1 || dirs[0].HomeworkLabel != "hw1" || dirs[0].FacultyID != "111" {
		t.Fatalf("unexpected dirs %+v", dirs)
	}
}

func TestGradeAll(t *testing.T) {
	root := t.TempDir()
	mkSubmission(t, root, "ivan_hw1.111", "sum.cpp", "Diff.CPP", "unknown.cpp", "notes.txt")
	mkSubmission(t, root, "hw1.222", "sum.cpp")
	mkSubmission(t, root, "broken-name", "sum.cpp")

	compiler := &fakeCompiler{}
	tests := &fakeTests{}
	cat := catalogOf(suite("sum", "yes", "no", "yes", "yes"), suite("diff", "yes", "yes"))
	o := New(Config{SubmissionConcurrency: 2, FileConcurrency: 2}, compiler, tests)

	results := o.GradeAll(context.Background(), root, cat)
	sortResults(results)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d: %+v", len(results), results)
	}

	want := []struct {
		key      string
		verdicts []bool
		ppt      float64
	}{
		{"111/hw1/diff", []bool{true, true}, 5},
		{"111/hw1/sum", []bool{true, false, true, true}, 2.5},
		{"222/hw1/sum", []bool{true, false, true, true}, 2.5},
	}
	for i, w := range want {
		r := results[i]
		if r.Key() != w.key || r.PointsPerTest != w.ppt {
			t.Fatalf("result %d: got %s ppt=%v, want %s ppt=%v", i, r.Key(), r.PointsPerTest, w.key, w.ppt)
		}
		for j, v := range w.verdicts {
			if r.Verdicts[j] != v {
				t.Fatalf("%s: verdicts %v, want %v", r.Key(), r.Verdicts, w.verdicts)
			}
		}
	}
	if len(compiler.called) != 3 {
		t.Fatalf("files without a suite must not be compiled, got %v", compiler.called)
	}
}

func TestGradeAllCompileFailureRunsNothing(t *testing.T) {
	root := t.TempDir()
	mkSubmission(t, root, "hw1.111", "sum.cpp", "diff.cpp")

	compiler := &fakeCompiler{fail: map[string]bool{"sum": true}}
	tests := &fakeTests{}
	o := New(Config{}, compiler, tests)

	results := o.GradeAll(context.Background(), root, catalogOf(suite("sum", "yes", "yes"), suite("diff", "yes")))
	sortResults(results)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	sum := results[1]
	if sum.ProblemID != "sum" || sum.Verdicts.Passed() != 0 || len(sum.Verdicts) != 2 {
		t.Fatalf("expected all-false sum result, got %+v", sum)
	}
	if tests.count("111/sum") != 0 {
		t.Fatalf("no test may run after a failed compile")
	}
	if tests.count("111/diff") != 1 {
		t.Fatalf("other submissions must still run")
	}
}

func TestGradeAllUnknownProblemYieldsNothing(t *testing.T) {
	root := t.TempDir()
	mkSubmission(t, root, "hw1.111", "mystery.cpp")

	compiler := &fakeCompiler{}
	results := New(Config{}, compiler, &fakeTests{}).GradeAll(context.Background(), root, catalogOf(suite("sum", "yes")))
	if len(results) != 0 || len(compiler.called) != 0 {
		t.Fatalf("expected no results and no compile, got %v / %v", results, compiler.called)
	}
}

func TestGradeAllMissingRoot(t *testing.T) {
	results := New(Config{}, &fakeCompiler{}, &fakeTests{}).GradeAll(context.Background(), filepath.Join(t.TempDir(), "none"), model.Catalog{})
	if results != nil {
		t.Fatalf("expected nil results for missing root")
	}
}

func TestParallelTestsKeepCaseOrder(t *testing.T) {
	expected := []string{"yes", "no", "yes", "no", "no", "yes", "yes", "no"}
	s := suite("sum", expected...)
	for i := range s.Cases {
		s.Cases[i].Input = string(rune('a' + i))
	}
	tests := &fakeTests{delay: func(tc model.TestCase) time.Duration {
		// Earlier cases finish last.
		return time.Duration('h'-tc.Input[0]) * 5 * time.Millisecond
	}}
	o := New(Config{TestConcurrency: 8}, &fakeCompiler{}, tests)

	res := o.GradeSubmission(context.Background(), model.Submission{FacultyID: "1", ProblemID: "sum"}, s)
	for i, e := range expected {
		if res.Verdicts[i] != (e == "yes") {
			t.Fatalf("verdict %d out of order: %v", i, res.Verdicts)
		}
	}
}

func TestGradeSubmissionRecoversPanic(t *testing.T) {
	for _, conc := range []int{1, 4} {
		tests := &fakeTests{panicOn: "sum"}
		o := New(Config{TestConcurrency: conc}, &fakeCompiler{}, tests)

		res := o.GradeSubmission(context.Background(), model.Submission{FacultyID: "1", ProblemID: "sum"}, suite("sum", "yes", "yes"))
		if res.Verdicts.Passed() != 0 || len(res.Verdicts) != 2 || res.PointsPerTest != 5 {
			t.Fatalf("concurrency %d: expected zero result after panic, got %+v", conc, res)
		}
	}
}

func TestDefaultConcurrencyPositive(t *testing.T) {
	if DefaultConcurrency() < 1 {
		t.Fatalf("default concurrency must be at least 1")
	}
}
