// Package errors provides error code definitions shared across the POS core.
package errors

import "fmt"

// ErrorCode represents a unique error code surfaced to the UI layer.
type ErrorCode string

const (
	// General errors
	ErrInternal   ErrorCode = "INTERNAL_ERROR"
	ErrInvalid    ErrorCode = "INVALID_INPUT"
	ErrNotFound   ErrorCode = "NOT_FOUND"
	ErrValidation ErrorCode = "VALIDATION_ERROR"

	// Local storage errors
	ErrDatabase   ErrorCode = "DATABASE_ERROR"
	ErrMigration  ErrorCode = "MIGRATION_FAILED"
	ErrConstraint ErrorCode = "CONSTRAINT_VIOLATION"

	// Remote (ERP backend) errors
	ErrRemoteUnavailable ErrorCode = "REMOTE_UNAVAILABLE"
	ErrRemoteRejected    ErrorCode = "REMOTE_REJECTED"
	ErrAuthFailed        ErrorCode = "AUTH_FAILED"
	ErrBadResponse       ErrorCode = "BAD_RESPONSE"

	// Sync errors
	ErrSyncFailed         ErrorCode = "SYNC_FAILED"
	ErrSyncInProgress     ErrorCode = "SYNC_IN_PROGRESS"
	ErrQueueItemNotFound  ErrorCode = "QUEUE_ITEM_NOT_FOUND"
	ErrUnknownOperation   ErrorCode = "UNKNOWN_OPERATION"
	ErrMissingInvoiceRef  ErrorCode = "MISSING_INVOICE_REFERENCE"
	ErrRetryLimitExceeded ErrorCode = "RETRY_LIMIT_EXCEEDED"

	// Checkout errors
	ErrEmptyCart  ErrorCode = "EMPTY_CART"
	ErrNoCustomer ErrorCode = "NO_CUSTOMER"
	ErrOffline    ErrorCode = "OFFLINE"
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

// CodeOf returns the code of an AppError, or ErrInternal for any other error.
func CodeOf(err error) ErrorCode {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code
	}
	return ErrInternal
}
