package controller

import (
	"strconv"
	"strings"
	"time"

	"grader/internal/grader/model"
	"grader/internal/grader/repository"
	"grader/internal/grader/score"
	"grader/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

const maxPageSize = 500

// ResultController serves stored grading runs over HTTP.
type ResultController struct {
	reader repository.Reader
}

// NewResultController creates a new ResultController.
func NewResultController(reader repository.Reader) *ResultController {
	return &ResultController{reader: reader}
}

// Register mounts the result routes on group.
func (h *ResultController) Register(group *gin.RouterGroup) {
	group.GET("/results", h.List)
	group.GET("/results/:faculty", h.ByFaculty)
}

// ResultItem is one graded submission as returned by the API.
type ResultItem struct {
	FacultyID     string         `json:"faculty_id"`
	HomeworkLabel string         `json:"homework"`
	ProblemID     string         `json:"problem"`
	PointsPerTest float64        `json:"points_per_test"`
	Points        float64        `json:"points"`
	Verdicts      model.Verdicts `json:"verdicts"`
}

// RunResponse describes a run and its results.
type RunResponse struct {
	RunID      string       `json:"run_id"`
	StartedAt  string       `json:"started_at"`
	FinishedAt string       `json:"finished_at"`
	Results    []ResultItem `json:"results"`
}

func toItems(results []model.Result) []ResultItem {
	items := make([]ResultItem, 0, len(results))
	for _, r := range results {
		items = append(items, ResultItem{
			FacultyID:     r.FacultyID,
			HomeworkLabel: r.HomeworkLabel,
			ProblemID:     r.ProblemID,
			PointsPerTest: r.PointsPerTest,
			Points:        score.Points(r),
			Verdicts:      r.Verdicts,
		})
	}
	return items
}

func (h *ResultController) loadRun(c *gin.Context) (repository.Run, error) {
	if runID := strings.TrimSpace(c.Query("run_id")); runID != "" {
		return h.reader.GetRun(c.Request.Context(), runID)
	}
	return h.reader.LatestRun(c.Request.Context())
}

// List returns the results of a run, the latest one unless run_id is given.
// Passing page or page_size switches to a paginated listing.
func (h *ResultController) List(c *gin.Context) {
	run, err := h.loadRun(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	items := toItems(run.Results)

	pageParam, sizeParam := c.Query("page"), c.Query("page_size")
	if pageParam == "" && sizeParam == "" {
		response.Success(c, RunResponse{
			RunID:      run.RunID,
			StartedAt:  run.StartedAt.UTC().Format(time.RFC3339),
			FinishedAt: run.FinishedAt.UTC().Format(time.RFC3339),
			Results:    items,
		})
		return
	}

	page, err := parsePositive(pageParam, 1)
	if err != nil {
		response.BadRequest(c, "Invalid page")
		return
	}
	pageSize, err := parsePositive(sizeParam, 50)
	if err != nil || pageSize > maxPageSize {
		response.BadRequest(c, "Invalid page_size")
		return
	}
	start := len(items)
	if page-1 <= len(items)/pageSize {
		start = min((page-1)*pageSize, len(items))
	}
	end := start + pageSize
	if end > len(items) {
		end = len(items)
	}
	response.SuccessWithPagination(c, items[start:end], int64(len(items)), page, pageSize)
}

// ByFaculty returns one faculty's results.
func (h *ResultController) ByFaculty(c *gin.Context) {
	facultyID := strings.TrimSpace(c.Param("faculty"))
	if facultyID == "" {
		response.BadRequest(c, "Invalid faculty id")
		return
	}
	run, err := h.loadRun(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	results, err := h.reader.FacultyResults(c.Request.Context(), run.RunID, facultyID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, toItems(results))
}

func parsePositive(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if v <= 0 {
		return 0, strconv.ErrRange
	}
	return v, nil
}
