// Package controller exposes the grading engine over HTTP.
package controller

import (
	"github.com/gin-gonic/gin"

	"gradex/internal/common/http/middleware"
	"gradex/internal/execution/attempt"
	"gradex/internal/execution/model"
	"gradex/internal/execution/service"
	appErr "gradex/pkg/errors"
	"gradex/pkg/utils/response"
)

// ExecutionController handles run and catalog endpoints.
type ExecutionController struct {
	svc *service.ExecutionService
}

// NewExecutionController creates the controller.
func NewExecutionController(svc *service.ExecutionService) *ExecutionController {
	return &ExecutionController{svc: svc}
}

// Run grades candidate code against the supplied test cases.
// POST /api/v1/execution/run
func (ctl *ExecutionController) Run(c *gin.Context) {
	userID := middleware.UserID(c)
	if userID == "" {
		response.Error(c, appErr.ValidationError("userId", "missing authenticated user"))
		return
	}

	var req model.ExecutionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErr.Wrap(err, appErr.InvalidParams))
		return
	}

	runID, result, err := ctl.svc.Execute(c.Request.Context(), userID, &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"runId": runID, "result": result})
}

// GetRun returns a previously stored execution result.
// GET /api/v1/execution/runs/:runId
func (ctl *ExecutionController) GetRun(c *gin.Context) {
	rec, err := ctl.svc.GetRun(c.Request.Context(), c.Param("runId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{
		"runId":      rec.RunID,
		"language":   rec.Language,
		"result":     rec.Result,
		"finishedAt": rec.FinishedAt,
	})
}

// Languages lists the supported runtimes.
// GET /api/v1/execution/languages
func (ctl *ExecutionController) Languages(c *gin.Context) {
	response.Success(c, gin.H{"languages": ctl.svc.Languages()})
}

// Quota reports the caller's remaining executions in the current window.
// GET /api/v1/execution/quota
func (ctl *ExecutionController) Quota(c *gin.Context) {
	userID := middleware.UserID(c)
	if userID == "" {
		response.Error(c, appErr.ValidationError("userId", "missing authenticated user"))
		return
	}
	remaining, err := ctl.svc.Remaining(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"remaining": remaining})
}

// AttemptController handles the attempt lifecycle endpoints.
type AttemptController struct {
	coord *attempt.Coordinator
}

// NewAttemptController creates the controller.
func NewAttemptController(coord *attempt.Coordinator) *AttemptController {
	return &AttemptController{coord: coord}
}

// Save autosaves draft code onto an attempt.
// POST /api/v1/execution/attempts/:attemptId/save
func (ctl *AttemptController) Save(c *gin.Context) {
	var req attempt.SaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErr.Wrap(err, appErr.InvalidParams))
		return
	}
	att, err := ctl.coord.Save(c.Request.Context(), c.Param("attemptId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{
		"attemptId": att.ID,
		"status":    att.Status,
		"message":   "Draft saved",
		"lastSaved": att.LastSaved,
	})
}

// Submit finalizes an attempt. Exactly one submit succeeds per attempt.
// POST /api/v1/execution/attempts/:attemptId/submit
func (ctl *AttemptController) Submit(c *gin.Context) {
	var req attempt.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErr.Wrap(err, appErr.InvalidParams))
		return
	}
	att, err := ctl.coord.Submit(c.Request.Context(), c.Param("attemptId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	// The coordinator stores results with hidden case outputs already
	// withheld, so the document is safe to serve as is.
	response.Success(c, gin.H{
		"attemptId":       att.ID,
		"status":          att.Status,
		"message":         "Attempt submitted",
		"submittedAt":     att.SubmittedAt,
		"executionResult": att.ExecutionResult,
	})
}

// Get returns the attempt document, hidden outputs redacted.
// GET /api/v1/execution/attempts/:attemptId
func (ctl *AttemptController) Get(c *gin.Context) {
	att, err := ctl.coord.Get(c.Request.Context(), c.Param("attemptId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"attempt": att})
}
