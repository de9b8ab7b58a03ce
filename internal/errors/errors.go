// Package errors provides error code definitions shared across the sync agent.
package errors

import "fmt"

// ErrorCode represents a unique error code surfaced to the device UI.
type ErrorCode string

const (
	// General errors
	ErrInternal   ErrorCode = "INTERNAL_ERROR"
	ErrInvalid    ErrorCode = "INVALID_INPUT"
	ErrNotFound   ErrorCode = "NOT_FOUND"
	ErrValidation ErrorCode = "VALIDATION_ERROR"

	// Local store errors
	ErrStore        ErrorCode = "STORE_ERROR"
	ErrStoreWrite   ErrorCode = "STORE_WRITE_FAILED"
	ErrStoreCorrupt ErrorCode = "STORE_CORRUPT"

	// Queue errors
	ErrQueuePersist ErrorCode = "QUEUE_PERSIST_FAILED"
	ErrQueueLoad    ErrorCode = "QUEUE_LOAD_FAILED"

	// Sync errors
	ErrSyncOffline     ErrorCode = "SYNC_OFFLINE"
	ErrSyncNoSession   ErrorCode = "SYNC_NO_SESSION"
	ErrSyncInProgress  ErrorCode = "SYNC_IN_PROGRESS"
	ErrSyncDispatch    ErrorCode = "SYNC_DISPATCH_FAILED"
	ErrSyncUnsupported ErrorCode = "SYNC_UNSUPPORTED_ENTITY"

	// Capture errors
	ErrCaptureDevice  ErrorCode = "CAPTURE_DEVICE_UNAVAILABLE"
	ErrCaptureInvalid ErrorCode = "CAPTURE_INVALID"

	// Remote errors
	ErrRemoteRequest ErrorCode = "REMOTE_REQUEST_FAILED"
	ErrRemoteStatus  ErrorCode = "REMOTE_BAD_STATUS"
	ErrObjectUpload  ErrorCode = "OBJECT_UPLOAD_FAILED"
)

// AppError represents an application error with code and message.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an error code.
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Is checks if an error is of a specific code.
func Is(err error, code ErrorCode) bool {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code == code
	}
	return false
}

// CodeOf returns the error code of err, or ErrInternal for plain errors.
func CodeOf(err error) ErrorCode {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code
	}
	return ErrInternal
}
