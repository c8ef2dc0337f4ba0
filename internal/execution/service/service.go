// Package service orchestrates grading: request validation, quota
// admission, sandbox execution, scoring and result persistence.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gradex/internal/execution/model"
	"gradex/internal/execution/quota"
	"gradex/internal/execution/registry"
	"gradex/internal/execution/repository"
	"gradex/internal/execution/runner"
	"gradex/internal/execution/scoring"
	"gradex/internal/execution/value"
	appErr "gradex/pkg/errors"
	"gradex/pkg/utils/logger"
)

const (
	// Workspace provisioning can fail transiently under load; retry a
	// bounded number of times before giving up.
	provisionRetries = 2
	provisionBackoff = 100 * time.Millisecond
)

// ExecutionService is the grading engine facade used by the HTTP layer and
// the attempt coordinator.
type ExecutionService struct {
	runner *runner.Runner
	guard  *quota.Guard
	runs   repository.RunStore
}

// New creates the service.
func New(r *runner.Runner, guard *quota.Guard, runs repository.RunStore) *ExecutionService {
	return &ExecutionService{runner: r, guard: guard, runs: runs}
}

// Execute runs a quota-checked, candidate-facing grading request. The
// returned result has hidden test case outputs redacted. The run is
// persisted and can be fetched again by the returned id.
func (s *ExecutionService) Execute(ctx context.Context, userID string, req *model.ExecutionRequest) (string, model.ExecutionResult, error) {
	if err := req.Validate(); err != nil {
		return "", model.ExecutionResult{}, err
	}
	if err := s.guard.Admit(ctx, userID); err != nil {
		return "", model.ExecutionResult{}, err
	}

	runID := uuid.NewString()
	result, err := s.grade(ctx, runID, req)
	if err != nil {
		return "", model.ExecutionResult{}, err
	}

	redacted := model.RedactHidden(result, req.TestCases)

	if err := s.runs.Save(ctx, repository.RunRecord{
		RunID:      runID,
		UserID:     userID,
		Language:   req.Language,
		Result:     redacted,
		FinishedAt: time.Now().UTC(),
	}); err != nil {
		// The candidate still gets their result; only replay is lost.
		logger.Warn(ctx, "persist run record failed", zap.String("runId", runID), zap.Error(err))
	}
	return runID, redacted, nil
}

// Grade runs a trusted grading request without quota accounting or
// redaction. Used for submission grading, where hidden outcomes stay
// server-side anyway.
func (s *ExecutionService) Grade(ctx context.Context, req *model.ExecutionRequest) (model.ExecutionResult, error) {
	if err := req.Validate(); err != nil {
		return model.ExecutionResult{}, err
	}
	return s.grade(ctx, uuid.NewString(), req)
}

// GetRun fetches a stored execution record.
func (s *ExecutionService) GetRun(ctx context.Context, runID string) (repository.RunRecord, error) {
	return s.runs.Get(ctx, runID)
}

// Languages returns the runtime catalog.
func (s *ExecutionService) Languages() []registry.LanguageInfo {
	return registry.Languages()
}

// Remaining reports the user's remaining quota.
func (s *ExecutionService) Remaining(ctx context.Context, userID string) (int, error) {
	return s.guard.Remaining(ctx, userID)
}

func (s *ExecutionService) grade(ctx context.Context, runID string, req *model.ExecutionRequest) (model.ExecutionResult, error) {
	outcome, err := s.executeWithRetry(ctx, runID, req)
	if err != nil {
		return model.ExecutionResult{}, err
	}

	if outcome.CompilationError != "" {
		// Every case reports as failed; none ever ran.
		results := make([]model.TestCaseResult, len(req.TestCases))
		for i, tc := range req.TestCases {
			results[i] = model.TestCaseResult{
				TestCaseID:   tc.ID,
				Passed:       false,
				ActualOutput: value.Null(),
				Error:        "Compilation error",
			}
		}
		return model.ExecutionResult{
			Success:          true,
			TestResults:      results,
			TotalTests:       len(req.TestCases),
			Score:            0,
			ExecutionTimeMs:  outcome.WallTimeMs,
			CompilationError: outcome.CompilationError,
		}, nil
	}

	return model.ExecutionResult{
		Success:         true,
		TestResults:     outcome.Results,
		TotalPassed:     scoring.CountPassed(outcome.Results),
		TotalTests:      len(outcome.Results),
		Score:           scoring.Score(req.TestCases, outcome.Results),
		ExecutionTimeMs: outcome.WallTimeMs,
		ConsoleOutput:   outcome.ConsoleOutput,
	}, nil
}

// executeWithRetry retries transient sandbox failures, per the error
// taxonomy's Retryable classification. Anything the candidate code caused
// is never retried.
func (s *ExecutionService) executeWithRetry(ctx context.Context, runID string, req *model.ExecutionRequest) (runner.Outcome, error) {
	backoff := provisionBackoff
	var outcome runner.Outcome
	var err error
	for attempt := 0; ; attempt++ {
		outcome, err = s.runner.Execute(ctx, runID, req)
		if err == nil || !appErr.GetCode(err).Retryable() || attempt >= provisionRetries {
			return outcome, err
		}
		logger.Warn(ctx, "sandbox failure, retrying",
			zap.String("runId", runID), zap.Int("attempt", attempt+1), zap.Error(err))
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return runner.Outcome{}, appErr.Wrap(ctx.Err(), appErr.SandboxSetupFailed)
		}
		backoff *= 2
	}
}
