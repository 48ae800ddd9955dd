// Package report renders grading results as a fixed-width text table.
package report

import (
	"bufio"
	"bytes"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"grader/internal/grader/model"
	"grader/internal/grader/score"
	appErr "grader/pkg/errors"
)

const columnWidth = 20

var header = []string{"Faculty", "Homework", "Problem", "Total", "Tests"}

// Sort orders results by faculty id, then homework, then problem.
// The input slice is left untouched.
func Sort(results []model.Result) []model.Result {
	out := make([]model.Result, len(results))
	copy(out, results)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.FacultyID != b.FacultyID {
			return a.FacultyID < b.FacultyID
		}
		if a.HomeworkLabel != b.HomeworkLabel {
			return a.HomeworkLabel < b.HomeworkLabel
		}
		return a.ProblemID < b.ProblemID
	})
	return out
}

// Render writes the header and one row per result.
func Render(w io.Writer, results []model.Result) error {
	bw := bufio.NewWriter(w)
	writeRow(bw, header...)
	for _, r := range Sort(results) {
		writeRow(bw,
			r.FacultyID,
			r.HomeworkLabel,
			r.ProblemID,
			FormatPoints(score.Points(r)),
			Formula(r),
		)
	}
	if err := bw.Flush(); err != nil {
		return appErr.Wrap(err, appErr.ReportRenderFailed)
	}
	return nil
}

// Bytes renders the report into memory.
func Bytes(results []model.Result) ([]byte, error) {
	var buf bytes.Buffer
	if err := Render(&buf, results); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteFile renders the report to path.
func WriteFile(path string, results []model.Result) error {
	data, err := Bytes(results)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return appErr.Wrapf(err, appErr.ReportRenderFailed, "write report %s", path)
	}
	return nil
}

// Formula returns the per-test points as a spreadsheet sum, e.g. "=2.5+0+2.5".
func Formula(r model.Result) string {
	parts := score.Breakdown(r)
	if len(parts) == 0 {
		return "=0"
	}
	strs := make([]string, len(parts))
	for i, p := range parts {
		strs[i] = FormatPoints(p)
	}
	return "=" + strings.Join(strs, "+")
}

// FormatPoints prints p with at most two decimals and no trailing zeros.
func FormatPoints(p float64) string {
	return strconv.FormatFloat(math.Round(p*100)/100, 'f', -1, 64)
}

func writeRow(w *bufio.Writer, cols ...string) {
	for _, c := range cols {
		w.WriteString(padRight(c, columnWidth))
	}
	w.WriteByte('\n')
}

func padRight(s string, width int) string {
	if n := len([]rune(s)); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}
