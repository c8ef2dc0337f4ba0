// Package model defines the wire-level data model of the grading engine.
package model

import (
	"time"

	"gradex/internal/execution/value"
)

// Language identifies a supported runtime.
type Language string

const (
	LanguageJavaScript Language = "javascript"
	LanguagePython     Language = "python"
	LanguageJava       Language = "java"
	LanguageGo         Language = "go"
)

// TestCase is one (input, expected output, weight) triple used to grade a
// submission. Hidden cases (IsVisible=false) are executed and scored like
// visible ones but their payloads are never returned to candidates.
type TestCase struct {
	ID             string      `json:"id"`
	Name           string      `json:"name,omitempty"`
	Input          value.Value `json:"input"`
	ExpectedOutput value.Value `json:"expectedOutput"`
	IsVisible      bool        `json:"isVisible"`
	Weight         float64     `json:"weight"`
	TimeLimitMs    int64       `json:"timeLimitMs,omitempty"`
}

// ExecutionRequest describes one grading run. Immutable once admitted.
type ExecutionRequest struct {
	Code          string     `json:"code"`
	Language      Language   `json:"language"`
	TestCases     []TestCase `json:"testCases"`
	TimeLimitMs   int64      `json:"timeLimitMs,omitempty"`
	MemoryLimitMb int64      `json:"memoryLimitMb,omitempty"`
}

// TestCaseResult is the outcome of one test case, reported in request order.
type TestCaseResult struct {
	TestCaseID      string      `json:"testCaseId"`
	Passed          bool        `json:"passed"`
	ActualOutput    value.Value `json:"actualOutput"`
	ExecutionTimeMs int64       `json:"executionTimeMs"`
	MemoryUsedMb    int64       `json:"memoryUsedMb,omitempty"`
	Error           string      `json:"error,omitempty"`
}

// ExecutionResult is the engine's output contract. Success is false only
// for infrastructure failures, never for failing test cases.
type ExecutionResult struct {
	Success          bool             `json:"success"`
	TestResults      []TestCaseResult `json:"testResults"`
	TotalPassed      int              `json:"totalPassed"`
	TotalTests       int              `json:"totalTests"`
	Score            float64          `json:"score"`
	ExecutionTimeMs  int64            `json:"executionTimeMs"`
	Error            string           `json:"error,omitempty"`
	ConsoleOutput    string           `json:"consoleOutput,omitempty"`
	CompilationError string           `json:"compilationError,omitempty"`
}

// AttemptStatus tracks the lifecycle of one assessment attempt.
type AttemptStatus string

const (
	AttemptStatusDraft      AttemptStatus = "draft"
	AttemptStatusInProgress AttemptStatus = "in_progress"
	AttemptStatusSubmitted  AttemptStatus = "submitted"
)

// Attempt is the engine's view of an assessment attempt document. The
// document itself is owned by the external store; the engine reads code
// and language and writes back results and lifecycle timestamps.
type Attempt struct {
	ID       string        `json:"id"`
	Status   AttemptStatus `json:"status"`
	Code     string        `json:"code"`
	Language Language      `json:"language"`

	// ExecutionResult is the provisional, candidate-visible result captured
	// at submit time. FinalResult is written later by hidden-test grading
	// and never mutates the provisional one.
	ExecutionResult *ExecutionResult `json:"executionResult,omitempty"`
	FinalResult     *ExecutionResult `json:"finalResult,omitempty"`

	SubmittedAt   *time.Time `json:"submittedAt,omitempty"`
	FinalScoredAt *time.Time `json:"finalScoredAt,omitempty"`
	LastSaved     *time.Time `json:"lastSaved,omitempty"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// RedactHidden returns a copy of the result with outputs of hidden test
// cases withheld. Inputs and expected outputs never leave the request, but
// the actual output of a hidden case would leak the expected one whenever
// the case passed.
func RedactHidden(res ExecutionResult, cases []TestCase) ExecutionResult {
	hidden := make(map[string]bool, len(cases))
	for _, tc := range cases {
		if !tc.IsVisible {
			hidden[tc.ID] = true
		}
	}
	if len(hidden) == 0 {
		return res
	}
	out := res
	out.TestResults = make([]TestCaseResult, len(res.TestResults))
	copy(out.TestResults, res.TestResults)
	for i := range out.TestResults {
		if hidden[out.TestResults[i].TestCaseID] {
			out.TestResults[i].ActualOutput = value.Null()
		}
	}
	return out
}
