// Package errors provides unified error handling for the recap service.
// It implements structured error types with error codes, HTTP status mapping,
// and retryable detection, so orchestrator failures can be converted into
// actionable structured results instead of flat error strings.
package errors

import (
	"fmt"
	"net/http"
	"time"
)

// AppError is the unified application error type.
type AppError struct {
	// Code is a machine-readable error code.
	Code ErrorCode `json:"code"`
	// Message is a human-readable error message.
	Message string `json:"message"`
	// Retryable indicates if the operation can be retried.
	Retryable bool `json:"retryable"`
	// HTTPStatus is the recommended HTTP status code for this error.
	HTTPStatus int `json:"-"`
	// Details contains additional context for the error.
	Details map[string]any `json:"details,omitempty"`
	// Cause is the underlying error that caused this error.
	Cause error `json:"-"`
}

// Error returns the string representation of the error.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *AppError) Unwrap() error { return e.Cause }

// WithCause sets the underlying cause of the error and returns the receiver.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetail sets a single detail key-value pair and returns the receiver.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError with automatic retryable detection.
func New(code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Retryable:  IsRetryableCode(code),
	}
}

// --- Common Error Constructors ---

// notFoundDetails builds the details both NotFound and NotOwner carry, so
// the two render identically.
func notFoundDetails(resource, id string) map[string]any {
	details := map[string]any{"resource": resource}
	if id != "" {
		details["id"] = id
	}
	return details
}

// NotFound creates a new AppError for a resource that was not found.
func NotFound(resource, id string) *AppError {
	return &AppError{
		Code: ErrCodeNotFound, Message: fmt.Sprintf("The requested %s was not found.", resource),
		HTTPStatus: http.StatusNotFound, Retryable: false,
		Details: notFoundDetails(resource, id),
	}
}

// NotOwner creates a new AppError for a resource owned by a different user.
// It renders to clients exactly like NotFound, details included, so that
// ownership checks do not reveal whether the resource exists.
func NotOwner(resource, id string) *AppError {
	return &AppError{
		Code: ErrCodeUnauthorizedResource, Message: fmt.Sprintf("The requested %s was not found.", resource),
		HTTPStatus: http.StatusNotFound, Retryable: false,
		Details: notFoundDetails(resource, id),
	}
}

// AlreadyProcessing creates a new AppError for a duplicate concurrent submission.
func AlreadyProcessing(jobID string) *AppError {
	return &AppError{
		Code: ErrCodeConflict, Message: "This recording is already being processed.",
		HTTPStatus: http.StatusConflict, Retryable: false,
		Details: map[string]any{"job_id": jobID},
	}
}

// Precondition creates a new AppError for a failed operation precondition.
func Precondition(message string) *AppError {
	return &AppError{
		Code: ErrCodePrecondition, Message: message,
		HTTPStatus: http.StatusPreconditionFailed, Retryable: false,
	}
}

// InsufficientCredits creates a new AppError for a debit that would bring the
// balance below zero. The current balance and required amount are included so
// the consumer can render actionable guidance.
func InsufficientCredits(balance, required int) *AppError {
	return &AppError{
		Code: ErrCodeInsufficientCredits, Message: "Not enough credits to process this recording.",
		HTTPStatus: http.StatusPaymentRequired, Retryable: false,
		Details: map[string]any{"balance": balance, "required": required},
	}
}

// RateLimited creates a new AppError for an upstream provider throttle.
// resetAt is when the upstream window resets; upgradeEligible reports whether
// a plan upgrade would lift the limit.
func RateLimited(provider string, resetAt time.Time, upgradeEligible bool) *AppError {
	return &AppError{
		Code: ErrCodeRateLimited, Message: "The AI provider is rate limiting requests. Please try again later.",
		HTTPStatus: http.StatusTooManyRequests, Retryable: true,
		Details: map[string]any{
			"provider":         provider,
			"reset_at":         resetAt.UTC().Format(time.RFC3339),
			"upgrade_eligible": upgradeEligible,
		},
	}
}

// ProviderFailure creates a new AppError for a generic upstream provider
// failure. The raw provider message is kept on the cause for diagnostics and
// is never sent to end users verbatim.
func ProviderFailure(provider string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeProvider, Message: fmt.Sprintf("The %s provider failed to process this recording.", provider),
		HTTPStatus: http.StatusBadGateway, Retryable: false,
		Details: map[string]any{"provider": provider},
		Cause:   cause,
	}
}

// CompressionFailed creates a new AppError for an audio preprocessing failure.
func CompressionFailed(stage string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeCompression, Message: "Audio preprocessing failed.",
		HTTPStatus: http.StatusUnprocessableEntity, Retryable: false,
		Details: map[string]any{"stage": stage},
		Cause:   cause,
	}
}

// Unauthorized creates a new AppError for a request with no valid identity.
func Unauthorized(message string) *AppError {
	return &AppError{
		Code: ErrCodeUnauthorized, Message: message,
		HTTPStatus: http.StatusUnauthorized, Retryable: false,
	}
}

// Invalid creates a new AppError for invalid input.
func Invalid(message string) *AppError {
	return &AppError{
		Code: ErrCodeInvalidInput, Message: message,
		HTTPStatus: http.StatusBadRequest, Retryable: false,
	}
}

// ConnectionFailed creates a new AppError for a failed connection to a service.
func ConnectionFailed(service string) *AppError {
	return &AppError{
		Code: ErrCodeConnectionFailed, Message: fmt.Sprintf("Unable to connect to %s.", service),
		HTTPStatus: http.StatusServiceUnavailable, Retryable: true,
		Details: map[string]any{"service": service},
	}
}

// Timeout creates a new AppError for a request that timed out.
func Timeout(operation string) *AppError {
	return &AppError{
		Code: ErrCodeTimeout, Message: "The request took too long. Please try again.",
		HTTPStatus: http.StatusGatewayTimeout, Retryable: true,
		Details: map[string]any{"operation": operation},
	}
}

// Storage creates a new AppError for an unrecoverable persistence failure.
func Storage(operation string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeStorage, Message: "Persistent storage is unavailable.",
		HTTPStatus: http.StatusInternalServerError, Retryable: false,
		Details: map[string]any{"operation": operation},
		Cause:   cause,
	}
}

// Internal creates a new AppError for an unexpected internal failure.
func Internal(cause error) *AppError {
	return &AppError{
		Code: ErrCodeInternal, Message: "An internal error occurred.",
		HTTPStatus: http.StatusInternalServerError, Retryable: false,
		Cause:      cause,
	}
}
