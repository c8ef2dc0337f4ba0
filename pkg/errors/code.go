package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 11000-11999: Execution & Sandbox errors
// 12000-12999: Quota errors
// 13000-13999: Attempt lifecycle errors

const (
	// ========== System & Common Errors (10000-10999) ==========

	// Success
	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	TooManyRequests     ErrorCode = 10006
	ServiceUnavailable  ErrorCode = 10007
	Timeout             ErrorCode = 10008

	// Cache / persistence errors (10200-10299)
	CacheError         ErrorCode = 10200
	PersistenceFailure ErrorCode = 10201

	// Validation errors (10300-10399)
	ValidationFailed   ErrorCode = 10300
	RequiredFieldEmpty ErrorCode = 10303

	// ========== Execution & Sandbox Errors (11000-11999) ==========

	// Request shape (11000-11099)
	CodeTooLarge         ErrorCode = 11000
	LanguageNotSupported ErrorCode = 11001
	TooManyTestCases     ErrorCode = 11002
	NoTestCases          ErrorCode = 11003
	LimitOutOfRange      ErrorCode = 11004

	// Sandbox infrastructure (11100-11199)
	SandboxUnavailable      ErrorCode = 11100
	SandboxCapacityExceeded ErrorCode = 11101
	SandboxSetupFailed      ErrorCode = 11102

	// Candidate-code outcomes; carried inside results, never HTTP errors (11200-11299)
	CompilationError    ErrorCode = 11200
	RuntimeError        ErrorCode = 11201
	TimeLimitExceeded   ErrorCode = 11202
	MemoryLimitExceeded ErrorCode = 11203
	OutputLimitExceeded ErrorCode = 11204

	// Result tracking (11300-11399)
	ExecutionNotFound ErrorCode = 11300

	// ========== Quota Errors (12000-12999) ==========

	QuotaExceeded   ErrorCode = 12000
	QuotaStoreError ErrorCode = 12001

	// ========== Attempt Lifecycle Errors (13000-13999) ==========

	AttemptNotFound         ErrorCode = 13000
	AttemptAlreadySubmitted ErrorCode = 13001
	AttemptSaveFailed       ErrorCode = 13002
	AttemptSubmitFailed     ErrorCode = 13003
)

// errorMessages maps error codes to their default English messages
var errorMessages = map[ErrorCode]string{
	// System & Common
	Success:             "Success",
	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	TooManyRequests:     "Too many requests, please try again later",
	ServiceUnavailable:  "Service temporarily unavailable",
	Timeout:             "Request timeout",

	// Cache / persistence
	CacheError:         "Cache operation failed",
	PersistenceFailure: "Persistence operation failed",

	// Validation
	ValidationFailed:   "Validation failed",
	RequiredFieldEmpty: "Required field is empty",

	// Request shape
	CodeTooLarge:         "Submitted code exceeds the maximum size",
	LanguageNotSupported: "Programming language not supported",
	TooManyTestCases:     "Too many test cases",
	NoTestCases:          "At least one test case is required",
	LimitOutOfRange:      "Resource limit is out of the allowed range",

	// Sandbox infrastructure
	SandboxUnavailable:      "Execution environment is unavailable",
	SandboxCapacityExceeded: "Sandbox capacity exceeded, please try again later",
	SandboxSetupFailed:      "Failed to prepare execution environment",

	// Candidate-code outcomes
	CompilationError:    "Compilation error",
	RuntimeError:        "Runtime error",
	TimeLimitExceeded:   "Time limit exceeded",
	MemoryLimitExceeded: "Memory limit exceeded",
	OutputLimitExceeded: "Output limit exceeded",

	// Result tracking
	ExecutionNotFound: "Execution result not found",

	// Quota
	QuotaExceeded:   "Execution quota exceeded for this hour",
	QuotaStoreError: "Quota store operation failed",

	// Attempt
	AttemptNotFound:         "Attempt not found",
	AttemptAlreadySubmitted: "Attempt has already been submitted",
	AttemptSaveFailed:       "Failed to save attempt",
	AttemptSubmitFailed:     "Failed to submit attempt",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// HTTPStatus returns the recommended HTTP status code for the error code
func (c ErrorCode) HTTPStatus() int {
	switch {
	case c == Success:
		return 200
	case c == NotFound, c == AttemptNotFound, c == ExecutionNotFound:
		return 404
	case c == AttemptAlreadySubmitted:
		return 409
	case c == TooManyRequests, c == QuotaExceeded:
		return 429
	case c == ServiceUnavailable, c == SandboxCapacityExceeded:
		return 503
	case c >= 10300 && c < 10400: // Validation errors
		return 400
	case c >= 11000 && c < 11100: // Request shape errors
		return 400
	case c == InvalidParams:
		return 400
	default:
		return 500
	}
}

// Retryable reports whether the caller may retry the failed request.
// Quota denials are excluded: the server never retries them on the
// caller's behalf, the window has to move first.
func (c ErrorCode) Retryable() bool {
	switch c {
	case SandboxUnavailable, SandboxCapacityExceeded, SandboxSetupFailed, ServiceUnavailable, Timeout:
		return true
	default:
		return false
	}
}
