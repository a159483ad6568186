package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 11000-11999: Identity errors
// 12000-12999: Execution & Judge errors
// 13000-13999: Submission errors

const (
	// ========== System & Common Errors (10000-10999) ==========

	// Success
	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	Unauthorized        ErrorCode = 10004
	Forbidden           ErrorCode = 10005
	TooManyRequests     ErrorCode = 10006
	ServiceUnavailable  ErrorCode = 10007
	Timeout             ErrorCode = 10008

	// Database errors (10100-10199)
	DatabaseError       ErrorCode = 10100
	RecordNotFound      ErrorCode = 10101
	RecordAlreadyExists ErrorCode = 10102
	TransactionFailed   ErrorCode = 10103

	// Cache errors (10200-10299)
	CacheError     ErrorCode = 10200
	CacheMiss      ErrorCode = 10201
	CacheSetFailed ErrorCode = 10202

	// Validation errors (10300-10399)
	ValidationFailed   ErrorCode = 10300
	InvalidFormat      ErrorCode = 10301
	InvalidValue       ErrorCode = 10302
	RequiredFieldEmpty ErrorCode = 10303

	// ========== Identity Errors (11000-11999) ==========

	TokenExpired ErrorCode = 11003
	TokenInvalid ErrorCode = 11004

	// ========== Execution & Judge Errors (12000-12999) ==========

	// Dispatch (12000-12099)
	LanguageNotSupported ErrorCode = 12000
	CodeTooLarge         ErrorCode = 12001
	DispatchExhausted    ErrorCode = 12002

	// Judge (12100-12199)
	JudgeUnavailable ErrorCode = 12100
	JudgeBadResponse ErrorCode = 12101

	// ========== Submission Errors (13000-13999) ==========

	SubmissionNotFound     ErrorCode = 13000
	SubmissionCreateFailed ErrorCode = 13001
	SubmissionUpdateFailed ErrorCode = 13002
	BatchTooLarge          ErrorCode = 13003
	DuplicateSubmission    ErrorCode = 13004
)

// errorMessages maps error codes to their default English messages
var errorMessages = map[ErrorCode]string{
	// System & Common
	Success:             "Success",
	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	Unauthorized:        "Unauthorized access",
	Forbidden:           "Access forbidden",
	TooManyRequests:     "Too many requests, please try again later",
	ServiceUnavailable:  "Service temporarily unavailable",
	Timeout:             "Request timeout",

	// Database
	DatabaseError:       "Database operation failed",
	RecordNotFound:      "Record not found in database",
	RecordAlreadyExists: "Record already exists",
	TransactionFailed:   "Database transaction failed",

	// Cache
	CacheError:     "Cache operation failed",
	CacheMiss:      "Cache miss",
	CacheSetFailed: "Failed to set cache",

	// Validation
	ValidationFailed:   "Validation failed",
	InvalidFormat:      "Invalid format",
	InvalidValue:       "Invalid value",
	RequiredFieldEmpty: "Required field is empty",

	// Identity
	TokenExpired: "Token has expired",
	TokenInvalid: "Invalid token",

	// Dispatch
	LanguageNotSupported: "Programming language not supported",
	CodeTooLarge:         "Code is too large",
	DispatchExhausted:    "Execution failed, please try again",

	// Judge
	JudgeUnavailable: "Judge service unavailable, please try again later",
	JudgeBadResponse: "Judge service returned an unexpected response",

	// Submission
	SubmissionNotFound:     "Submission not found",
	SubmissionCreateFailed: "Failed to create submission",
	SubmissionUpdateFailed: "Failed to update submission",
	BatchTooLarge:          "Too many submissions in one batch",
	DuplicateSubmission:    "Submission with this idempotency key is already in progress",
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
	case c == Unauthorized, c == TokenExpired, c == TokenInvalid:
		return 401
	case c == Forbidden:
		return 403
	case c == NotFound, c == RecordNotFound, c == SubmissionNotFound:
		return 404
	case c == DuplicateSubmission, c == RecordAlreadyExists:
		return 409
	case c == TooManyRequests:
		return 429
	case c == ServiceUnavailable, c == JudgeUnavailable:
		return 503
	case c == JudgeBadResponse:
		return 502
	case c == Timeout:
		return 504
	case c >= 10300 && c < 10400: // Validation errors
		return 400
	case c == InvalidParams, c == LanguageNotSupported, c == CodeTooLarge, c == BatchTooLarge:
		return 400
	default:
		return 500
	}
}

// Retryable reports whether a caller may retry a request that failed with this code.
func (c ErrorCode) Retryable() bool {
	switch c {
	case DispatchExhausted, JudgeUnavailable, JudgeBadResponse, ServiceUnavailable, Timeout:
		return true
	default:
		return false
	}
}
