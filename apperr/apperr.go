// Package apperr defines the typed errors every operation returns in place
// of a success payload.
package apperr

import (
	"errors"
	"fmt"
)

// Code is one of the closed set of error codes exposed to clients.
type Code string

const (
	Unauthorized          Code = "UNAUTHORIZED"
	Forbidden             Code = "FORBIDDEN"
	NotFound              Code = "NOT_FOUND"
	AlreadyExists         Code = "ALREADY_EXISTS"
	Validation            Code = "VALIDATION_ERROR"
	BusinessRule          Code = "BUSINESS_RULE_VIOLATION"
	Internal              Code = "INTERNAL_ERROR"
	TimeExpired           Code = "TIME_EXPIRED"
	ExamAlreadyCompleted  Code = "EXAM_ALREADY_COMPLETED"
	QuestionNotInExam     Code = "QUESTION_NOT_IN_EXAM"
	internalPublicMessage      = "An unexpected error occurred"
)

// Error is an expected failure carrying a client-facing code and message.
type Error struct {
	Code    Code
	Message string
	Path    []string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// WithPath returns a copy of e pointing at the offending input field.
func (e *Error) WithPath(path ...string) *Error {
	cp := *e
	cp.Path = path
	return &cp
}

// New builds an error with a formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches an underlying cause that is logged but never shown.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: cause}
}

// InternalError hides err behind a generic INTERNAL_ERROR.
func InternalError(err error) *Error {
	return &Error{Code: Internal, Message: internalPublicMessage, cause: err}
}

// As converts any error into an *Error. Errors that are not already typed
// become INTERNAL_ERROR. A nil error yields nil.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return InternalError(err)
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

func Unauthenticated() *Error {
	return New(Unauthorized, "Authentication required")
}

func Denied(format string, args ...any) *Error {
	return New(Forbidden, format, args...)
}

func Missing(kind string, id any) *Error {
	return New(NotFound, "%s with ID %v not found", kind, id)
}
