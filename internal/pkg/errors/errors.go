package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unique error code for each error type
type ErrorCode string

const (
	// General errors
	ErrCodeInternal   ErrorCode = "INTERNAL_ERROR"
	ErrCodeNotFound   ErrorCode = "NOT_FOUND"
	ErrCodeBadRequest ErrorCode = "BAD_REQUEST"
	ErrCodeConflict   ErrorCode = "CONFLICT"

	// Source file errors
	ErrCodeInvalidFile       ErrorCode = "INVALID_FILE"
	ErrCodeFileTooLarge      ErrorCode = "FILE_TOO_LARGE"
	ErrCodeUnsupportedFormat ErrorCode = "UNSUPPORTED_FORMAT"
	ErrCodeSourceReadFailed  ErrorCode = "SOURCE_READ_FAILED"
	ErrCodeUnknownRegion     ErrorCode = "UNKNOWN_REGION"

	// Record pipeline errors
	ErrCodeValidationFailed         ErrorCode = "VALIDATION_FAILED"
	ErrCodeIdentityResolutionFailed ErrorCode = "IDENTITY_RESOLUTION_FAILED"
	ErrCodePersistenceFailed        ErrorCode = "PERSISTENCE_FAILED"
	ErrCodeDuplicateRecord          ErrorCode = "DUPLICATE_RECORD"

	// Infrastructure errors
	ErrCodeDatabaseError ErrorCode = "DATABASE_ERROR"
	ErrCodeGeocodeFailed ErrorCode = "GEOCODE_FAILED"
	ErrCodeQueueError    ErrorCode = "QUEUE_ERROR"
)

// AppError represents a structured application error
type AppError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	StatusCode int                    `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Err        error                  `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s - %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetails adds additional context to the error
func (e *AppError) WithDetails(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError
func New(code ErrorCode, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap wraps an existing error with AppError context
func Wrap(err error, code ErrorCode, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Err:        err,
	}
}

// Common error constructors

func Internal(message string) *AppError {
	return New(ErrCodeInternal, message, http.StatusInternalServerError)
}

func InternalWrap(err error, message string) *AppError {
	return Wrap(err, ErrCodeInternal, message, http.StatusInternalServerError)
}

func NotFound(message string) *AppError {
	return New(ErrCodeNotFound, message, http.StatusNotFound)
}

func BadRequest(message string) *AppError {
	return New(ErrCodeBadRequest, message, http.StatusBadRequest)
}

func Conflict(message string) *AppError {
	return New(ErrCodeConflict, message, http.StatusConflict)
}

// Source file errors

func InvalidFile(message string) *AppError {
	return New(ErrCodeInvalidFile, message, http.StatusBadRequest)
}

func FileTooLarge(maxSize int64) *AppError {
	return New(ErrCodeFileTooLarge,
		fmt.Sprintf("file size exceeds maximum allowed size of %d MB", maxSize),
		http.StatusBadRequest)
}

func UnsupportedFormat(format string) *AppError {
	return New(ErrCodeUnsupportedFormat,
		fmt.Sprintf("unsupported file format: %s", format),
		http.StatusBadRequest)
}

func SourceReadFailed(err error, source string) *AppError {
	return Wrap(err, ErrCodeSourceReadFailed, "failed to read source", http.StatusBadRequest).
		WithDetails("source", source)
}

func UnknownRegion(region string) *AppError {
	return New(ErrCodeUnknownRegion,
		fmt.Sprintf("unknown region: %s", region),
		http.StatusNotFound)
}

// Record pipeline errors. These are reported per record and never abort a load.

func ValidationFailed(message string) *AppError {
	return New(ErrCodeValidationFailed, message, http.StatusUnprocessableEntity)
}

func IdentityResolutionFailed(err error, entity string) *AppError {
	return Wrap(err, ErrCodeIdentityResolutionFailed,
		fmt.Sprintf("failed to resolve %s", entity),
		http.StatusInternalServerError)
}

func PersistenceFailed(err error) *AppError {
	return Wrap(err, ErrCodePersistenceFailed, "failed to persist station", http.StatusInternalServerError)
}

func DuplicateRecord(resource string) *AppError {
	return New(ErrCodeDuplicateRecord,
		fmt.Sprintf("%s already exists", resource),
		http.StatusConflict)
}

// Infrastructure errors

func DatabaseError(err error) *AppError {
	return Wrap(err, ErrCodeDatabaseError, "database operation failed", http.StatusInternalServerError)
}

func GeocodeFailed(err error) *AppError {
	return Wrap(err, ErrCodeGeocodeFailed, "geocoding request failed", http.StatusBadGateway)
}

func QueueError(err error) *AppError {
	return Wrap(err, ErrCodeQueueError, "failed to enqueue task", http.StatusServiceUnavailable)
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// GetAppError extracts AppError from error chain
func GetAppError(err error) (*AppError, bool) {
	var appErr *AppError
	ok := errors.As(err, &appErr)
	return appErr, ok
}

// HasCode reports whether err carries an AppError with the given code.
func HasCode(err error, code ErrorCode) bool {
	appErr, ok := GetAppError(err)
	return ok && appErr.Code == code
}
