package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 11000-11099: Authentication errors
// 13000-13999: Judge errors
//
// Subject faults (crash, timeout, wrong output) are verdicts, not errors.
// Codes in this file describe failures of the judge itself or of its callers.

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

	// Authentication (11000-11099)
	TokenExpired ErrorCode = 11003
	TokenInvalid ErrorCode = 11004

	// Cache errors (10200-10299)
	CacheError ErrorCode = 10200
	CacheMiss  ErrorCode = 10201

	// Validation errors (10300-10399)
	ValidationFailed   ErrorCode = 10300
	InvalidFormat      ErrorCode = 10301
	InvalidValue       ErrorCode = 10302
	RequiredFieldEmpty ErrorCode = 10303

	// Storage & messaging errors (10400-10499)
	StorageError   ErrorCode = 10400
	ObjectNotFound ErrorCode = 10401
	QueueError     ErrorCode = 10402

	// ========== Judge Errors (13000-13999) ==========

	// Requests (13000-13099)
	SubjectCommandInvalid ErrorCode = 13000
	ExpectedOutputMissing ErrorCode = 13001
	VerdictNotFound       ErrorCode = 13002
	RepeatCountInvalid    ErrorCode = 13003
	SubjectNotFound       ErrorCode = 13004

	// Judge infrastructure (13100-13199)
	JudgeQueueFull   ErrorCode = 13100
	JudgeSystemError ErrorCode = 13101
	StreamReadFailed ErrorCode = 13102
	KillFailed       ErrorCode = 13103
	ProbeFailed      ErrorCode = 13104

	// Suites (13200-13299)
	SuiteInvalid  ErrorCode = 13200
	SuiteNotFound ErrorCode = 13201
	SuiteTooLarge ErrorCode = 13202
)

// errorMessages maps error codes to their default messages
var errorMessages = map[ErrorCode]string{
	// Common
	Success:             "Success",
	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	Unauthorized:        "Unauthorized access",
	Forbidden:           "Access forbidden",
	TooManyRequests:     "Too many requests, please try again later",
	ServiceUnavailable:  "Service temporarily unavailable",
	Timeout:             "Request timeout",

	// Authentication
	TokenExpired: "Token has expired",
	TokenInvalid: "Invalid token",

	// Cache
	CacheError: "Cache operation failed",
	CacheMiss:  "Cache miss",

	// Validation
	ValidationFailed:   "Validation failed",
	InvalidFormat:      "Invalid format",
	InvalidValue:       "Invalid value",
	RequiredFieldEmpty: "Required field is empty",

	// Storage & messaging
	StorageError:   "Object storage operation failed",
	ObjectNotFound: "Object not found",
	QueueError:     "Message queue operation failed",

	// Judge requests
	SubjectCommandInvalid: "Subject command is invalid",
	ExpectedOutputMissing: "Expected output is required",
	VerdictNotFound:       "Verdict not found",
	RepeatCountInvalid:    "Repeat count must be positive",
	SubjectNotFound:       "Subject is not configured",

	// Judge infrastructure
	JudgeQueueFull:   "Judge queue is full, please try again later",
	JudgeSystemError: "Judge system error",
	StreamReadFailed: "Failed to read subject output stream",
	KillFailed:       "Failed to terminate subject process",
	ProbeFailed:      "Resource probe failed",

	// Suites
	SuiteInvalid:  "Invalid suite format",
	SuiteNotFound: "Suite not found",
	SuiteTooLarge: "Suite file is too large",
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
	case c == NotFound, c == VerdictNotFound, c == SuiteNotFound, c == ObjectNotFound, c == SubjectNotFound:
		return 404
	case c == TooManyRequests, c == JudgeQueueFull:
		return 429
	case c == ServiceUnavailable:
		return 503
	case c == Timeout:
		return 504
	case c >= 10300 && c < 10400: // Validation errors
		return 400
	case c >= 13000 && c < 13100, c >= 13200 && c < 13300: // Request and suite errors
		return 400
	case c == InvalidParams:
		return 400
	default:
		return 500
	}
}

// IsInfrastructure reports whether the code blames the judge rather than the subject or caller.
func (c ErrorCode) IsInfrastructure() bool {
	return c >= 13100 && c < 13200
}
