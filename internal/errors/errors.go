// Package errors defines the coded errors the pipeline fails with.
// Every one of them is fatal: nothing is retried or recovered locally.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode is a stable identifier for a failure class.
type ErrorCode string

const (
	ErrConfig     ErrorCode = "CONFIG"
	ErrIO         ErrorCode = "IO"
	ErrAmbiguous  ErrorCode = "AMBIGUOUS_REGISTRY"
	ErrRule       ErrorCode = "RULE"
	ErrNoMatch    ErrorCode = "NO_MATCH"
	ErrValidation ErrorCode = "VALIDATION"
	ErrLint       ErrorCode = "LINT"
	ErrCompile    ErrorCode = "COMPILE"
	ErrLocked     ErrorCode = "LOCKED"
)

// PatchError is a structured pipeline error.
type PatchError struct {
	Code    ErrorCode
	Message string
	Details map[string]any
	Wrapped error
}

func (e *PatchError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *PatchError) Unwrap() error {
	return e.Wrapped
}

// Is matches any PatchError carrying the same code.
func (e *PatchError) Is(target error) bool {
	var t *PatchError
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// WithDetail attaches a key/value to the error and returns it.
func (e *PatchError) WithDetail(key string, value any) *PatchError {
	e.Details[key] = value
	return e
}

func New(code ErrorCode, message string) *PatchError {
	return &PatchError{Code: code, Message: message, Details: make(map[string]any)}
}

func Newf(code ErrorCode, format string, args ...any) *PatchError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap returns nil when err is nil.
func Wrap(err error, code ErrorCode, message string) error {
	if err == nil {
		return nil
	}
	return &PatchError{Code: code, Message: message, Details: make(map[string]any), Wrapped: err}
}

func Wrapf(err error, code ErrorCode, format string, args ...any) error {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// Code extracts the code of the outermost PatchError in the chain.
func Code(err error) ErrorCode {
	var pe *PatchError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// HasCode reports whether any error in the chain carries code.
func HasCode(err error, code ErrorCode) bool {
	return errors.Is(err, &PatchError{Code: code})
}
