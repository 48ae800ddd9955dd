package score

import (
	"testing"

	"grader/internal/grader/model"
)

func result(n int, passed ...int) model.Result {
	r := model.NewResult(model.Submission{}, model.TestSuite{Cases: make([]model.TestCase, n)})
	for _, i := range passed {
		r.Verdicts[i] = true
	}
	return r
}

func TestPoints(t *testing.T) {
	if got := Points(result(4, 0, 2)); got != 5 {
		t.Fatalf("expected 5 points, got %v", got)
	}
	if got := Points(result(4)); got != 0 {
		t.Fatalf("expected 0 points, got %v", got)
	}
}

func TestPointsNeverExceedMax(t *testing.T) {
	for n := 1; n <= 50; n++ {
		all := make([]int, n)
		for i := range all {
			all[i] = i
		}
		if got := Points(result(n, all...)); got != model.MaxPoints {
			t.Fatalf("n=%d: full score should be exactly %v, got %v", n, model.MaxPoints, got)
		}
	}
}

func TestBreakdownAndTotal(t *testing.T) {
	r := result(4, 1)
	b := Breakdown(r)
	if len(b) != 4 || b[0] != 0 || b[1] != 2.5 {
		t.Fatalf("unexpected breakdown %v", b)
	}
	if got := Total([]model.Result{r, result(2, 0, 1)}); got != 12.5 {
		t.Fatalf("expected total 12.5, got %v", got)
	}
}

func TestPointsEmptySuite(t *testing.T) {
	if got := Points(result(0)); got != 0 {
		t.Fatalf("expected 0 for empty suite, got %v", got)
	}
}
