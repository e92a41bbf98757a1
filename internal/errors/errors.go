package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode is the name reported to callers when a media request fails.
type ErrorCode string

const (
	ErrInvalidRequest    ErrorCode = "InvalidRequest"         // 400
	ErrPermissionDenied  ErrorCode = "PermissionDeniedError"  // 403
	ErrNotFound          ErrorCode = "NotFoundError"          // 404
	ErrSourceUnavailable ErrorCode = "SourceUnavailableError" // 503
	ErrInternal          ErrorCode = "InternalError"          // 500
)

// MediaError represents a structured failure with code, status, and details.
type MediaError struct {
	Code    ErrorCode
	Status  int
	Message string

	// Constraint names the constraint no device could satisfy, if known.
	Constraint string
	Details    map[string]any
}

// Error implements the error interface.
func (e *MediaError) Error() string {
	if e.Constraint != "" {
		return fmt.Sprintf("%s: %s (constraint %q)", e.Code, e.Message, e.Constraint)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewInvalidRequest creates a 400 error for malformed requests.
func NewInvalidRequest(msg string) *MediaError {
	return &MediaError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewPermissionDenied creates a 403 error for user, persisted, or policy denials.
func NewPermissionDenied(msg string) *MediaError {
	if msg == "" {
		msg = "the request is not allowed"
	}
	return &MediaError{
		Code:    ErrPermissionDenied,
		Status:  403,
		Message: msg,
	}
}

// NewNotFound creates a 404 error when no device survives constraint filtering.
// constraint may be empty when no single constraint is to blame.
func NewNotFound(msg, constraint string) *MediaError {
	if msg == "" {
		msg = "the object can not be found here"
	}
	e := &MediaError{
		Code:       ErrNotFound,
		Status:     404,
		Message:    msg,
		Constraint: constraint,
	}
	if constraint != "" {
		e.Details = map[string]any{"constraint": constraint}
	}
	return e
}

// NewSourceUnavailable creates a 503 error when a chosen device fails to allocate.
func NewSourceUnavailable(msg string, device string) *MediaError {
	return &MediaError{
		Code:    ErrSourceUnavailable,
		Status:  503,
		Message: msg,
		Details: map[string]any{"device": device},
	}
}

// NewInternal creates a 500 error for invariant violations and shutdown.
func NewInternal(err error) *MediaError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &MediaError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
	}
}

// FromName maps an error name delivered by a permission response to a MediaError.
// Unknown names become PermissionDeniedError carrying the name as message.
func FromName(name string) *MediaError {
	switch ErrorCode(name) {
	case ErrNotFound:
		return NewNotFound("", "")
	case ErrSourceUnavailable:
		return NewSourceUnavailable("device is not available", "")
	case ErrInternal:
		return NewInternal(nil)
	case ErrPermissionDenied, "":
		return NewPermissionDenied("")
	}
	return NewPermissionDenied(name)
}

// Is checks if an error is (or wraps) a MediaError with the given code.
func Is(err error, code ErrorCode) bool {
	var mErr *MediaError
	if stderrors.As(err, &mErr) {
		return mErr.Code == code
	}
	return false
}

// As returns the MediaError carried by err, if any.
func As(err error) (*MediaError, bool) {
	var mErr *MediaError
	if stderrors.As(err, &mErr) {
		return mErr, true
	}
	return nil, false
}
