package controller

import (
	"strings"

	"codegrader/internal/judge/model"
	"codegrader/internal/judge/service"
	"codegrader/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// ExecutionController exposes raw judge dispatch and result lookups.
type ExecutionController struct {
	dispatcher *service.Dispatcher
	fetcher    *service.Fetcher
}

func NewExecutionController(dispatcher *service.Dispatcher, fetcher *service.Fetcher) *ExecutionController {
	return &ExecutionController{dispatcher: dispatcher, fetcher: fetcher}
}

// Dispatch handles POST /executions.
func (h *ExecutionController) Dispatch(c *gin.Context) {
	var req DispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	source := service.MergeCode(req.TopCode, req.SourceCode, req.BottomCode)
	result, err := h.dispatcher.Dispatch(c.Request.Context(), source, string(req.LanguageID), req.Stdin)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, DispatchResponse{
		Tokens:          result.Tokens,
		DispatchedCount: result.DispatchedCount,
		Language:        result.Language.Tag,
	})
}

// GetResult handles GET /executions/:token.
func (h *ExecutionController) GetResult(c *gin.Context) {
	token := strings.TrimSpace(c.Param("token"))
	if token == "" {
		response.BadRequest(c, "Invalid token")
		return
	}
	result, err := h.fetcher.FetchResult(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// BatchResults handles POST /executions/results.
func (h *ExecutionController) BatchResults(c *gin.Context) {
	var req BatchResultsRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Tokens) == 0 {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	results, err := h.fetcher.FetchResults(c.Request.Context(), req.Tokens)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, BatchResultsResponse{Items: results})
}

// Languages handles GET /languages.
func (h *ExecutionController) Languages(c *gin.Context) {
	response.Success(c, model.Languages())
}

// DispatchRequest defines the execution payload. stdin may be a string or an array.
type DispatchRequest struct {
	SourceCode string            `json:"source_code" binding:"required"`
	LanguageID model.LanguageRef `json:"language_id" binding:"required"`
	Stdin      model.Inputs      `json:"stdin"`
	TopCode    string            `json:"top_code"`
	BottomCode string            `json:"bottom_code"`
}

// DispatchResponse lists accepted job tokens in input order.
type DispatchResponse struct {
	Tokens          []string `json:"tokens"`
	DispatchedCount int      `json:"dispatched_count"`
	Language        string   `json:"language"`
}

// BatchResultsRequest defines the bulk result lookup payload.
type BatchResultsRequest struct {
	Tokens []string `json:"tokens" binding:"required"`
}

// BatchResultsResponse holds results in token order.
type BatchResultsResponse struct {
	Items []model.JudgeResult `json:"items"`
}
