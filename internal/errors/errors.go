package errors

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	ValidationError       ErrorCode = "validation_error"
	InvalidInput          ErrorCode = "invalid_input"
	ProviderError         ErrorCode = "provider_error"
	TransactionNotFound   ErrorCode = "transaction_not_found"
	DuplicateReference    ErrorCode = "duplicate_reference"
	TransactionNotPending ErrorCode = "transaction_not_pending"
	RequestInProgress     ErrorCode = "request_in_progress"
	InternalError         ErrorCode = "internal_error"
)

type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
}

func (e AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewAppError(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

func NewAppErrorf(code ErrorCode, format string, args ...interface{}) *AppError {
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// WithDetails returns a copy so the predefined errors below are never mutated.
func (e *AppError) WithDetails(details string) *AppError {
	c := *e
	c.Details = details
	return &c
}

// Is matches on code, so errors.Is(err, ErrTransactionNotFound) holds for any
// transaction_not_found error regardless of message or details.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// HTTPStatus maps the error code to the response status.
func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case ValidationError, InvalidInput, ProviderError:
		return http.StatusBadRequest
	case TransactionNotFound:
		return http.StatusNotFound
	case DuplicateReference, TransactionNotPending, RequestInProgress:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// As extracts an *AppError from err, wrapping anything else as internal_error.
func As(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return NewAppError(InternalError, "an unexpected error occurred").WithDetails(err.Error())
}

// Predefined errors for common cases
var (
	ErrTransactionNotFound   = NewAppError(TransactionNotFound, "transaction not found")
	ErrDuplicateReference    = NewAppError(DuplicateReference, "transaction reference already exists")
	ErrTransactionNotPending = NewAppError(TransactionNotPending, "transaction is no longer pending")
	ErrRequestInProgress     = NewAppError(RequestInProgress, "a payment with this idempotency key is still being processed")
	ErrAmountTooLow          = NewAppError(ValidationError, "amount is below the minimum chargeable amount")
)
