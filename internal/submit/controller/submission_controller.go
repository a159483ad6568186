package controller

import (
	"strconv"
	"strings"

	"codegrader/internal/common/http/middleware"
	"codegrader/internal/judge/model"
	"codegrader/internal/submit/repository"
	"codegrader/internal/submit/service"
	"codegrader/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// SubmissionController handles submission HTTP endpoints.
type SubmissionController struct {
	submitService *service.SubmitService
}

// NewSubmissionController creates a new SubmissionController.
func NewSubmissionController(submitService *service.SubmitService) *SubmissionController {
	return &SubmissionController{submitService: submitService}
}

// Create handles POST /submissions.
func (h *SubmissionController) Create(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}

	out, err := h.submitService.SubmitForGrading(c.Request.Context(), service.SubmitInput{
		UserID:          middleware.UserID(c),
		ProblemID:       req.ProblemID,
		SourceCode:      req.SourceCode,
		LanguageID:      string(req.LanguageID),
		TopCode:         req.TopCode,
		BottomCode:      req.BottomCode,
		TestInputs:      req.Stdin,
		ExpectedOutputs: req.ExpectedOutputs,
		IdempotencyKey:  strings.TrimSpace(c.GetHeader("Idempotency-Key")),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, out)
}

// Finalize handles POST /submissions/:id/finalize.
func (h *SubmissionController) Finalize(c *gin.Context) {
	submissionID := strings.TrimSpace(c.Param("id"))
	if submissionID == "" {
		response.BadRequest(c, "Invalid submission id")
		return
	}
	var req FinalizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	out, err := h.submitService.FinalizeWithResults(c.Request.Context(), service.FinalizeInput{
		UserID:          middleware.UserID(c),
		SubmissionID:    submissionID,
		Results:         req.Results,
		ExpectedOutputs: req.ExpectedOutputs,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, out)
}

// Refresh handles POST /submissions/:id/refresh.
func (h *SubmissionController) Refresh(c *gin.Context) {
	submissionID := strings.TrimSpace(c.Param("id"))
	if submissionID == "" {
		response.BadRequest(c, "Invalid submission id")
		return
	}
	out, err := h.submitService.Refresh(c.Request.Context(), middleware.UserID(c), submissionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, out)
}

// Get handles GET /submissions/:id.
func (h *SubmissionController) Get(c *gin.Context) {
	submissionID := strings.TrimSpace(c.Param("id"))
	if submissionID == "" {
		response.BadRequest(c, "Invalid submission id")
		return
	}
	submission, err := h.submitService.Get(c.Request.Context(), middleware.UserID(c), submissionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, submission)
}

// List handles GET /submissions.
func (h *SubmissionController) List(c *gin.Context) {
	limit := 0
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			response.BadRequest(c, "Invalid limit")
			return
		}
		limit = v
	}
	items, err := h.submitService.List(c.Request.Context(), middleware.UserID(c), c.Query("problem_id"), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	if items == nil {
		items = []*repository.Submission{}
	}
	response.Success(c, ListResponse{Items: items})
}

// Batch handles POST /submissions/batch.
func (h *SubmissionController) Batch(c *gin.Context) {
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	items := make([]service.BatchItem, len(req.Submissions))
	for i, item := range req.Submissions {
		items[i] = service.BatchItem{
			ProblemID:       item.ProblemID,
			SourceCode:      item.SourceCode,
			Language:        string(item.Language),
			TestCasesPassed: item.TestCasesPassed,
			TotalTestCases:  item.TotalTestCases,
			Runtime:         item.Runtime,
			Memory:          item.Memory,
			Results:         item.Results,
			ExpectedOutputs: item.ExpectedOutputs,
		}
	}
	out, err := h.submitService.BatchCreate(c.Request.Context(), middleware.UserID(c), items)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, BatchResponse{
		Submissions: out.Successful,
		Statistics: BatchStatistics{
			Total:      len(items),
			Successful: len(out.Successful),
			Failed:     len(out.Failed),
			Errors:     out.Failed,
		},
	})
}

// SubmitRequest defines the grading payload. stdin may be a string or an array.
type SubmitRequest struct {
	ProblemID       string            `json:"problem_id" binding:"required"`
	SourceCode      string            `json:"source_code" binding:"required"`
	LanguageID      model.LanguageRef `json:"language_id" binding:"required"`
	Stdin           model.Inputs      `json:"stdin"`
	ExpectedOutputs []string          `json:"expected_outputs"`
	TopCode         string            `json:"top_code"`
	BottomCode      string            `json:"bottom_code"`
}

// FinalizeRequest carries judge results aligned with expected outputs.
type FinalizeRequest struct {
	Results         []model.JudgeResult `json:"results" binding:"required"`
	ExpectedOutputs []string            `json:"expected_outputs" binding:"required"`
}

// ListResponse wraps a submission listing.
type ListResponse struct {
	Items []*repository.Submission `json:"items"`
}

// BatchRequest defines the batch recording payload.
type BatchRequest struct {
	Submissions []BatchItemRequest `json:"submissions" binding:"required"`
}

// BatchItemRequest is one terminal submission. Results, when present,
// take precedence over the supplied counts.
type BatchItemRequest struct {
	ProblemID       string              `json:"problem_id"`
	SourceCode      string              `json:"source_code"`
	Language        model.LanguageRef   `json:"language"`
	TestCasesPassed int                 `json:"test_cases_passed"`
	TotalTestCases  int                 `json:"total_test_cases"`
	Runtime         *float64            `json:"runtime"`
	Memory          *int64              `json:"memory"`
	Results         []model.JudgeResult `json:"results"`
	ExpectedOutputs []string            `json:"expected_outputs"`
}

// BatchResponse lists recorded submissions plus per-item failures.
type BatchResponse struct {
	Submissions []*repository.Submission `json:"submissions"`
	Statistics  BatchStatistics          `json:"statistics"`
}

type BatchStatistics struct {
	Total      int                    `json:"total"`
	Successful int                    `json:"successful"`
	Failed     int                    `json:"failed"`
	Errors     []service.BatchFailure `json:"errors"`
}
