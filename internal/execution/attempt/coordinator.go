package attempt

import (
	"context"
	"time"

	"go.uber.org/zap"

	"gradex/internal/execution/model"
	appErr "gradex/pkg/errors"
	"gradex/pkg/utils/logger"
)

// finalGradeTimeout bounds the deferred hidden-test pass. It runs detached
// from the submit request, so it needs its own deadline.
const finalGradeTimeout = 5 * time.Minute

// Grader runs a grading request without quota accounting. Submissions are
// graded even when the user has exhausted their interactive run budget.
type Grader interface {
	Grade(ctx context.Context, req *model.ExecutionRequest) (model.ExecutionResult, error)
}

// Coordinator drives the attempt lifecycle against the Store.
type Coordinator struct {
	store  Store
	grader Grader
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(store Store, grader Grader) *Coordinator {
	return &Coordinator{store: store, grader: grader}
}

// SaveRequest carries an autosave payload.
type SaveRequest struct {
	Code     string         `json:"code"`
	Language model.Language `json:"language"`
}

// SubmitRequest carries the final submission. The test cases, hidden ones
// included, come from the trusted caller, never from the candidate client.
// ExecutionResult, when set, is a result from a run the caller just made;
// it becomes the provisional result and skips the synchronous visible-case
// pass. The deferred full grading still happens either way.
type SubmitRequest struct {
	Code            string                 `json:"code"`
	Language        model.Language         `json:"language"`
	TestCases       []model.TestCase       `json:"testCases"`
	TimeLimitMs     int64                  `json:"timeLimitMs,omitempty"`
	MemoryLimitMb   int64                  `json:"memoryLimitMb,omitempty"`
	ExecutionResult *model.ExecutionResult `json:"executionResult,omitempty"`
}

// Save upserts the draft code. Saving is idempotent: repeating the same
// payload only advances lastSaved. A submitted attempt rejects further
// saves.
func (c *Coordinator) Save(ctx context.Context, attemptID string, req SaveRequest) (model.Attempt, error) {
	if attemptID == "" {
		return model.Attempt{}, appErr.ValidationError("attemptId", "required")
	}
	if !model.SupportedLanguage(req.Language) {
		return model.Attempt{}, appErr.New(appErr.LanguageNotSupported).
			WithDetail("language", string(req.Language))
	}
	if len(req.Code) > model.MaxCodeBytes {
		return model.Attempt{}, appErr.New(appErr.CodeTooLarge).
			WithDetail("maxBytes", model.MaxCodeBytes)
	}

	att, err := c.store.Get(ctx, attemptID)
	if err != nil {
		if !appErr.Is(err, appErr.AttemptNotFound) {
			return model.Attempt{}, appErr.Wrap(err, appErr.AttemptSaveFailed)
		}
		att = model.Attempt{ID: attemptID, Status: model.AttemptStatusDraft}
	}
	if att.Status == model.AttemptStatusSubmitted {
		return model.Attempt{}, appErr.New(appErr.AttemptAlreadySubmitted).
			WithDetail("attemptId", attemptID)
	}

	now := time.Now().UTC()
	att.Code = req.Code
	att.Language = req.Language
	att.Status = model.AttemptStatusInProgress
	att.LastSaved = &now

	if err := c.store.Put(ctx, att); err != nil {
		return model.Attempt{}, appErr.Wrap(err, appErr.AttemptSaveFailed)
	}
	return att, nil
}

// Submit grades the visible test cases synchronously, marks the attempt
// submitted, then kicks off the hidden-test pass in the background. A second
// submit fails with AttemptAlreadySubmitted regardless of payload.
func (c *Coordinator) Submit(ctx context.Context, attemptID string, req SubmitRequest) (model.Attempt, error) {
	if attemptID == "" {
		return model.Attempt{}, appErr.ValidationError("attemptId", "required")
	}
	execReq := &model.ExecutionRequest{
		Code:          req.Code,
		Language:      req.Language,
		TestCases:     req.TestCases,
		TimeLimitMs:   req.TimeLimitMs,
		MemoryLimitMb: req.MemoryLimitMb,
	}
	if err := execReq.Validate(); err != nil {
		return model.Attempt{}, err
	}

	claimed, err := c.store.ClaimSubmit(ctx, attemptID)
	if err != nil {
		return model.Attempt{}, appErr.Wrap(err, appErr.AttemptSubmitFailed)
	}
	if !claimed {
		return model.Attempt{}, appErr.New(appErr.AttemptAlreadySubmitted).
			WithDetail("attemptId", attemptID)
	}

	// From here on a failure must hand the claim back, otherwise a
	// transient outage leaves the attempt claimed but never submitted.
	att, err := c.store.Get(ctx, attemptID)
	if err != nil {
		if !appErr.Is(err, appErr.AttemptNotFound) {
			c.releaseClaim(ctx, attemptID)
			return model.Attempt{}, appErr.Wrap(err, appErr.AttemptSubmitFailed)
		}
		att = model.Attempt{ID: attemptID}
	}

	var provisional model.ExecutionResult
	if req.ExecutionResult != nil {
		provisional = *req.ExecutionResult
	} else {
		visible := visibleCases(req.TestCases)
		provisional = model.ExecutionResult{Success: true, TotalTests: len(visible)}
		if len(visible) > 0 {
			visReq := *execReq
			visReq.TestCases = visible
			provisional, err = c.grader.Grade(ctx, &visReq)
			if err != nil {
				c.releaseClaim(ctx, attemptID)
				return model.Attempt{}, appErr.Wrap(err, appErr.AttemptSubmitFailed)
			}
		}
	}
	// The document is served back to the candidate, so hidden case
	// outputs never get stored. A passing hidden case's actual output
	// would equal the expected one.
	provisional = model.RedactHidden(provisional, req.TestCases)

	now := time.Now().UTC()
	att.Code = req.Code
	att.Language = req.Language
	att.Status = model.AttemptStatusSubmitted
	att.SubmittedAt = &now
	att.ExecutionResult = &provisional

	if err := c.store.Put(ctx, att); err != nil {
		c.releaseClaim(ctx, attemptID)
		return model.Attempt{}, appErr.Wrap(err, appErr.AttemptSubmitFailed)
	}

	go c.gradeFinal(attemptID, execReq)

	return att, nil
}

// Get returns the attempt document.
func (c *Coordinator) Get(ctx context.Context, attemptID string) (model.Attempt, error) {
	return c.store.Get(ctx, attemptID)
}

func (c *Coordinator) releaseClaim(ctx context.Context, attemptID string) {
	if err := c.store.ReleaseSubmit(ctx, attemptID); err != nil {
		logger.Error(ctx, "release submit claim failed",
			zap.String("attemptId", attemptID), zap.Error(err))
	}
}

// gradeFinal runs the full test set, hidden cases included, and writes the
// outcome into finalResult only. The provisional result captured at submit
// time is never touched again.
func (c *Coordinator) gradeFinal(attemptID string, req *model.ExecutionRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), finalGradeTimeout)
	defer cancel()

	final, err := c.grader.Grade(ctx, req)
	if err != nil {
		logger.Error(ctx, "final grading failed",
			zap.String("attemptId", attemptID), zap.Error(err))
		final = model.ExecutionResult{
			Success:    false,
			TotalTests: len(req.TestCases),
			Error:      "final grading failed",
		}
	}
	// Scores and pass flags are kept; hidden case outputs are withheld
	// before the document is stored.
	final = model.RedactHidden(final, req.TestCases)

	att, err := c.store.Get(ctx, attemptID)
	if err != nil {
		logger.Error(ctx, "load attempt for final grade failed",
			zap.String("attemptId", attemptID), zap.Error(err))
		return
	}

	now := time.Now().UTC()
	att.FinalResult = &final
	att.FinalScoredAt = &now

	if err := c.store.Put(ctx, att); err != nil {
		logger.Error(ctx, "store final grade failed",
			zap.String("attemptId", attemptID), zap.Error(err))
	}
}

func visibleCases(cases []model.TestCase) []model.TestCase {
	out := make([]model.TestCase, 0, len(cases))
	for _, tc := range cases {
		if tc.IsVisible {
			out = append(out, tc)
		}
	}
	return out
}
