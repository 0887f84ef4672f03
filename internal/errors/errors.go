package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a wishlist error code.
type ErrorCode string

const (
	ErrInvalidRequest     ErrorCode = "INVALID_REQUEST"     // 400
	ErrUnauthorized       ErrorCode = "UNAUTHORIZED"        // 401
	ErrForbidden          ErrorCode = "FORBIDDEN"           // 403
	ErrNotFound           ErrorCode = "NOT_FOUND"           // 404
	ErrConflict           ErrorCode = "CONFLICT"            // 409
	ErrValidationFailed   ErrorCode = "VALIDATION_FAILED"   // 422
	ErrModerationRejected ErrorCode = "MODERATION_REJECTED" // 422
	ErrUpstream           ErrorCode = "UPSTREAM"            // 502
	ErrInternal           ErrorCode = "INTERNAL"            // 500
)

// Error represents a structured error with code, status, and details.
type Error struct {
	Code    ErrorCode
	Status  int
	Message string
	// Field is the form field path a validation failure refers to, e.g. "formData.projectTitle".
	Field   string
	Details map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *Error {
	return &Error{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewUnauthorized creates a 401 error for requests without a valid session.
func NewUnauthorized() *Error {
	return &Error{
		Code:    ErrUnauthorized,
		Status:  401,
		Message: "authentication required",
	}
}

// NewForbidden creates a 403 error.
func NewForbidden(msg string) *Error {
	return &Error{
		Code:    ErrForbidden,
		Status:  403,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for when a record cannot be found.
func NewNotFound(kind, identifier string) *Error {
	return &Error{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("%s not found: %s", kind, identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewConflict creates a 409 error for general conflicts.
func NewConflict(msg string) *Error {
	return &Error{
		Code:    ErrConflict,
		Status:  409,
		Message: msg,
	}
}

// NewValidationFailed creates a 422 error qualified by the offending field path.
func NewValidationFailed(field, msg string) *Error {
	return &Error{
		Code:    ErrValidationFailed,
		Status:  422,
		Message: msg,
		Field:   field,
	}
}

// NewModerationRejected creates a 422 error listing the moderation reasons.
func NewModerationRejected(reasons []string) *Error {
	return &Error{
		Code:    ErrModerationRejected,
		Status:  422,
		Message: "submission was flagged by content moderation",
		Details: map[string]any{"reasons": reasons},
	}
}

// NewUpstream creates a 502 error for failures of an external provider.
func NewUpstream(provider string, err error) *Error {
	msg := provider + " request failed"
	if err != nil {
		msg = fmt.Sprintf("%s: %v", msg, err)
	}
	return &Error{
		Code:    ErrUpstream,
		Status:  502,
		Message: msg,
		Details: map[string]any{"provider": provider},
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *Error {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &Error{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
	}
}

// Is checks if an error is an *Error with the given code.
func Is(err error, code ErrorCode) bool {
	var wErr *Error
	if stderrors.As(err, &wErr) {
		return wErr.Code == code
	}
	return false
}

// As extracts an *Error from err, wrapping anything else as INTERNAL.
func As(err error) *Error {
	var wErr *Error
	if stderrors.As(err, &wErr) {
		return wErr
	}
	return NewInternal(err)
}
