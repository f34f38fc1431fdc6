package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Availability errors (retryable)
const (
	// ErrCodeServiceUnavailable indicates a collaborator is temporarily unavailable.
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	// ErrCodeConnectionFailed indicates a failed connection to an upstream service.
	ErrCodeConnectionFailed ErrorCode = "CONNECTION_FAILED"
	// ErrCodeTimeout indicates the request timed out.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
	// ErrCodeRateLimited indicates an upstream provider throttled the request.
	// Carries reset_at and upgrade_eligible details.
	ErrCodeRateLimited ErrorCode = "RATE_LIMITED"
)

// Resource errors
const (
	// ErrCodeNotFound indicates the requested resource was not found.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrCodeUnauthorizedResource indicates the caller does not own the
	// resource. Rendered to clients as NOT_FOUND so that existence is not
	// revealed to non-owners; the distinct code survives only in logs.
	ErrCodeUnauthorizedResource ErrorCode = "UNAUTHORIZED_RESOURCE"
	// ErrCodeConflict indicates a conflict with the current state of the
	// resource, e.g. a job that is already being processed.
	ErrCodeConflict ErrorCode = "CONFLICT"
	// ErrCodePrecondition indicates a required precondition does not hold,
	// e.g. reprocessing a job whose audio artifact is gone.
	ErrCodePrecondition ErrorCode = "PRECONDITION_FAILED"
)

// Domain errors
const (
	// ErrCodeInsufficientCredits indicates the user's credit balance is too
	// low for the requested operation. Carries balance and required details.
	ErrCodeInsufficientCredits ErrorCode = "INSUFFICIENT_CREDITS"
	// ErrCodeProvider indicates an upstream AI provider call failed.
	ErrCodeProvider ErrorCode = "PROVIDER_ERROR"
	// ErrCodeCompression indicates the audio preprocessing engine failed to
	// initialize or transcode.
	ErrCodeCompression ErrorCode = "COMPRESSION_FAILED"
)

// Validation / auth errors
const (
	// ErrCodeInvalidInput indicates the input is invalid.
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	// ErrCodeUnauthorized indicates the request carries no valid identity.
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
)

// Internal errors
const (
	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
	// ErrCodeStorage indicates an unrecoverable persistence failure. This is
	// the only fatal condition: the operation aborts and state is unchanged.
	ErrCodeStorage ErrorCode = "STORAGE_ERROR"
)

var retryableCodes = map[ErrorCode]bool{
	ErrCodeServiceUnavailable: true,
	ErrCodeConnectionFailed:   true,
	ErrCodeTimeout:            true,
	ErrCodeRateLimited:        true,
}

// IsRetryableCode reports whether an error code is considered retryable.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}
