// Package score turns verdicts into points.
package score

import (
	"math"

	"grader/internal/grader/model"
)

// Points returns PointsPerTest times the number of passed cases, never above model.MaxPoints.
func Points(r model.Result) float64 {
	return clamp(r.PointsPerTest * float64(r.Verdicts.Passed()))
}

// Breakdown returns the points earned by each case, in case order.
func Breakdown(r model.Result) []float64 {
	out := make([]float64, len(r.Verdicts))
	for i, ok := range r.Verdicts {
		if ok {
			out[i] = r.PointsPerTest
		}
	}
	return out
}

// Total sums the points of every result.
func Total(results []model.Result) float64 {
	sum := 0.0
	for _, r := range results {
		sum += Points(r)
	}
	return sum
}

// Float division can leave a full score a few ulps over the maximum.
func clamp(p float64) float64 {
	if p > model.MaxPoints || math.Abs(p-model.MaxPoints) < 1e-9 {
		return model.MaxPoints
	}
	if p < 0 {
		return 0
	}
	return p
}
