package types

import (
	"fmt"
	"time"
)

// ErrorCode identifies a failure class shared across all backends.
type ErrorCode string

const (
	ErrAuthenticationFailed   ErrorCode = "AUTHENTICATION_FAILED"
	ErrPermissionDenied       ErrorCode = "PERMISSION_DENIED"
	ErrRateLimitExceeded      ErrorCode = "RATE_LIMIT_EXCEEDED"
	ErrQuotaExceeded          ErrorCode = "QUOTA_EXCEEDED"
	ErrInvalidRequest         ErrorCode = "INVALID_REQUEST"
	ErrContentPolicyViolation ErrorCode = "CONTENT_POLICY_VIOLATION"
	ErrTimeout                ErrorCode = "TIMEOUT"
	ErrServiceUnavailable     ErrorCode = "SERVICE_UNAVAILABLE"
	ErrNetworkError           ErrorCode = "NETWORK_ERROR"
	ErrInvalidResponse        ErrorCode = "INVALID_RESPONSE"
	ErrGenerationFailed       ErrorCode = "GENERATION_FAILED"
	ErrDescriptionFailed      ErrorCode = "DESCRIPTION_FAILED"
	ErrTaggingFailed          ErrorCode = "TAGGING_FAILED"
	ErrDownloadFailed         ErrorCode = "DOWNLOAD_FAILED"
	ErrFeatureNotAvailable    ErrorCode = "FEATURE_NOT_AVAILABLE"
	ErrOperationFailed        ErrorCode = "OPERATION_FAILED"
	ErrValidationFailed       ErrorCode = "VALIDATION_FAILED"
)

// Severity ranks how loudly a failure should be reported.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// DefaultRetryable reports whether errors of the given code are worth
// retrying. Only transient upstream conditions qualify; a bad key or a
// rejected prompt will not become good by retrying.
func DefaultRetryable(code ErrorCode) bool {
	switch code {
	case ErrTimeout, ErrServiceUnavailable, ErrNetworkError, ErrRateLimitExceeded:
		return true
	default:
		return false
	}
}

// DefaultSeverity returns the severity assigned to a code when the
// producer does not override it.
func DefaultSeverity(code ErrorCode) Severity {
	switch code {
	case ErrAuthenticationFailed:
		return SeverityCritical
	case ErrPermissionDenied, ErrQuotaExceeded:
		return SeverityHigh
	case ErrInvalidRequest, ErrValidationFailed, ErrContentPolicyViolation, ErrFeatureNotAvailable:
		return SeverityLow
	default:
		return SeverityMedium
	}
}

// userMessages maps codes to stable, non-leaking messages for end users.
var userMessages = map[ErrorCode]string{
	ErrAuthenticationFailed:   "The image service rejected our credentials. Please check the configured API key.",
	ErrPermissionDenied:       "The configured account is not allowed to perform this operation.",
	ErrRateLimitExceeded:      "The image service is rate limiting requests. Please try again in a moment.",
	ErrQuotaExceeded:          "The image service quota has been exhausted for this billing period.",
	ErrInvalidRequest:         "The request was rejected as invalid. Please adjust the parameters and retry.",
	ErrContentPolicyViolation: "The prompt was declined by the service's content policy.",
	ErrTimeout:                "The image service took too long to respond. Please try again.",
	ErrServiceUnavailable:     "The image service is temporarily unavailable.",
	ErrNetworkError:           "A network problem prevented reaching the image service.",
	ErrInvalidResponse:        "The image service returned a response we could not understand.",
	ErrGenerationFailed:       "Image generation failed. Please try again or adjust the prompt.",
	ErrDescriptionFailed:      "Image description failed. Please try again.",
	ErrTaggingFailed:          "Image tagging failed. Please try again.",
	ErrDownloadFailed:         "The generated image could not be downloaded.",
	ErrFeatureNotAvailable:    "No configured backend supports the requested feature.",
	ErrValidationFailed:       "The request did not pass validation.",
}

// UserMessage returns the stable human-readable message for a code, or
// fallback when the code has no table entry.
func UserMessage(code ErrorCode, fallback string) string {
	if msg, ok := userMessages[code]; ok {
		return msg
	}
	return fallback
}

// Error is the structured error produced at every failure boundary.
type Error struct {
	Code        ErrorCode      `json:"code"`
	Message     string         `json:"message"`
	Backend     string         `json:"backend,omitempty"`
	Severity    Severity       `json:"severity"`
	Retryable   bool           `json:"retryable"`
	UserMessage string         `json:"user_message"`
	Timestamp   time.Time      `json:"timestamp"`
	RequestID   string         `json:"request_id,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	Cause       error          `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates an Error with code-derived severity, retryability and
// user message. Producers refine it with the WithX builders.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:        code,
		Message:     message,
		Severity:    DefaultSeverity(code),
		Retryable:   DefaultRetryable(code),
		UserMessage: UserMessage(code, message),
		Timestamp:   time.Now(),
	}
}

// WithCause attaches the underlying error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithBackend records which backend produced the failure.
func (e *Error) WithBackend(backend string) *Error {
	e.Backend = backend
	return e
}

// WithRequestID correlates the error with a logical request.
func (e *Error) WithRequestID(id string) *Error {
	e.RequestID = id
	return e
}

// WithRetryable overrides the code-derived retryability.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithSeverity overrides the code-derived severity.
func (e *Error) WithSeverity(severity Severity) *Error {
	e.Severity = severity
	return e
}

// WithDetail attaches a free-form detail to the error.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// AsError extracts a *Error from err, unwrapping as needed.
func AsError(err error) (*Error, bool) {
	for err != nil {
		if te, ok := err.(*Error); ok {
			return te, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil, false
		}
		err = u.Unwrap()
	}
	return nil, false
}

// IsRetryable reports whether err carries a retryable classification.
// Unclassified errors are not retryable; the caller must classify first.
func IsRetryable(err error) bool {
	if te, ok := AsError(err); ok {
		return te.Retryable
	}
	return false
}

// CodeOf extracts the error code from err, or "" if unclassified.
func CodeOf(err error) ErrorCode {
	if te, ok := AsError(err); ok {
		return te.Code
	}
	return ""
}
