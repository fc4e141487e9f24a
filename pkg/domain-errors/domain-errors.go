// Package domainerrors carries stable, transport-neutral failure codes
// through error chains.
package domainerrors

import (
	"errors"
	"fmt"
)

type Code string

const (
	CodeInvalidRequest     Code = "invalid_request"
	CodeValidation         Code = "validation_failed"
	CodeInvalidFormat      Code = "invalid_format"
	CodeNotFound           Code = "not_found"
	CodeForbidden          Code = "forbidden"
	CodeUnauthorized       Code = "unauthorized"
	CodeConflict           Code = "conflict"
	CodeInvariantViolation Code = "invariant_violation"

	// A decision arrived after the workflow left pending. Expiry is reported
	// on its own so callers can say why.
	CodeWorkflowNotPending Code = "workflow_not_pending"
	CodeWorkflowExpired    Code = "workflow_expired"

	// Infrastructure failures.
	CodeDependencyFailure Code = "dependency_failure"
	CodeTimeout           Code = "timeout"
	CodeInternal          Code = "internal_error"
)

// Malformed reports whether the code blames the input itself, so retrying
// the same input cannot succeed.
func (c Code) Malformed() bool {
	switch c {
	case CodeInvalidRequest, CodeValidation, CodeInvalidFormat:
		return true
	}
	return false
}

type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches msg to err. A code already present in the chain wins over code.
func Wrap(err error, code Code, msg string) error {
	if existing, ok := As(err); ok {
		code = existing.Code
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// As returns the outermost *Error in the chain.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

func HasCode(err error, code Code) bool {
	e, ok := As(err)
	return ok && e.Code == code
}

// CodeOf is CodeInternal for chains without a domain error.
func CodeOf(err error) Code {
	if e, ok := As(err); ok {
		return e.Code
	}
	return CodeInternal
}
