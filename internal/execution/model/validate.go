package model

import (
	appErr "gradex/pkg/errors"
)

// Request shape limits from the engine contract.
const (
	MaxCodeBytes = 50000

	MinTestCases = 1
	MaxTestCases = 20

	MinRequestTimeLimitMs = 1000
	MaxRequestTimeLimitMs = 60000

	MinCaseTimeLimitMs = 1000
	MaxCaseTimeLimitMs = 30000

	MinMemoryLimitMb = 64
	MaxMemoryLimitMb = 1024

	MinWeight = 0.0
	MaxWeight = 100.0
)

var supportedLanguages = map[Language]bool{
	LanguageJavaScript: true,
	LanguagePython:     true,
	LanguageJava:       true,
	LanguageGo:         true,
}

// SupportedLanguage reports whether lang is in the fixed registry set.
func SupportedLanguage(lang Language) bool {
	return supportedLanguages[lang]
}

// Validate rejects malformed requests before any sandbox is allocated.
func (r *ExecutionRequest) Validate() error {
	if r.Code == "" {
		return appErr.ValidationError("code", "required")
	}
	if len(r.Code) > MaxCodeBytes {
		return appErr.New(appErr.CodeTooLarge).
			WithDetail("maxBytes", MaxCodeBytes).
			WithDetail("actualBytes", len(r.Code))
	}
	if !SupportedLanguage(r.Language) {
		return appErr.New(appErr.LanguageNotSupported).
			WithDetail("language", string(r.Language))
	}
	if len(r.TestCases) < MinTestCases {
		return appErr.New(appErr.NoTestCases)
	}
	if len(r.TestCases) > MaxTestCases {
		return appErr.New(appErr.TooManyTestCases).
			WithDetail("max", MaxTestCases).
			WithDetail("actual", len(r.TestCases))
	}
	if r.TimeLimitMs != 0 && (r.TimeLimitMs < MinRequestTimeLimitMs || r.TimeLimitMs > MaxRequestTimeLimitMs) {
		return appErr.New(appErr.LimitOutOfRange).
			WithDetail("field", "timeLimitMs").
			WithDetail("min", MinRequestTimeLimitMs).
			WithDetail("max", MaxRequestTimeLimitMs)
	}
	if r.MemoryLimitMb != 0 && (r.MemoryLimitMb < MinMemoryLimitMb || r.MemoryLimitMb > MaxMemoryLimitMb) {
		return appErr.New(appErr.LimitOutOfRange).
			WithDetail("field", "memoryLimitMb").
			WithDetail("min", MinMemoryLimitMb).
			WithDetail("max", MaxMemoryLimitMb)
	}
	seen := make(map[string]bool, len(r.TestCases))
	for i, tc := range r.TestCases {
		if tc.ID == "" {
			return appErr.ValidationError("testCases.id", "required").WithDetail("index", i)
		}
		if seen[tc.ID] {
			return appErr.ValidationError("testCases.id", "duplicate").WithDetail("id", tc.ID)
		}
		seen[tc.ID] = true
		if tc.Weight < MinWeight || tc.Weight > MaxWeight {
			return appErr.New(appErr.LimitOutOfRange).
				WithDetail("field", "testCases.weight").
				WithDetail("id", tc.ID)
		}
		if tc.TimeLimitMs != 0 && (tc.TimeLimitMs < MinCaseTimeLimitMs || tc.TimeLimitMs > MaxCaseTimeLimitMs) {
			return appErr.New(appErr.LimitOutOfRange).
				WithDetail("field", "testCases.timeLimitMs").
				WithDetail("id", tc.ID).
				WithDetail("min", MinCaseTimeLimitMs).
				WithDetail("max", MaxCaseTimeLimitMs)
		}
	}
	return nil
}

// EffectiveTimeLimitMs resolves the deadline for one test case:
// min(case limit, request limit), falling back to the runtime base limit
// when neither is set.
func (r *ExecutionRequest) EffectiveTimeLimitMs(tc TestCase, baseMs int64) int64 {
	limit := r.TimeLimitMs
	if limit == 0 {
		limit = baseMs
	}
	if tc.TimeLimitMs != 0 && tc.TimeLimitMs < limit {
		limit = tc.TimeLimitMs
	}
	return limit
}

// EffectiveMemoryLimitMb resolves the memory ceiling for the request.
func (r *ExecutionRequest) EffectiveMemoryLimitMb(baseMb int64) int64 {
	if r.MemoryLimitMb != 0 {
		return r.MemoryLimitMb
	}
	return baseMb
}
