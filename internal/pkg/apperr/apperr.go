// Package apperr defines the typed error taxonomy shared across modules.
// Expected outcomes (validation, not-found, conflict, forbidden) carry a
// stable machine code and are surfaced directly to callers; dependency
// failures abort the enclosing transaction and surface as 5xx.
package apperr

import (
	"errors"
	"fmt"
	"time"
)

// Code is a stable machine-readable error code.
type Code string

const (
	CodeValidation       Code = "VALIDATION"
	CodeNotFound         Code = "NOT_FOUND"
	CodeConflict         Code = "CONFLICT"
	CodeDuplicateContent Code = "DUPLICATE_CONTENT"
	CodeRateLimited      Code = "RATE_LIMITED"
	CodeForbidden        Code = "FORBIDDEN"
	CodeDependency       Code = "DEPENDENCY"
	CodeTerminalJob      Code = "TERMINAL_JOB"
)

// Error is a typed application error.
type Error struct {
	Code    Code
	Message string
	// RetryAfter is set for RATE_LIMITED errors: the instant the rate
	// window opens again.
	RetryAfter time.Time
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is supports errors.Is against sentinel errors with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

func Validation(format string, args ...interface{}) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

func NotFound(what string) *Error {
	return &Error{Code: CodeNotFound, Message: what + " not found"}
}

func Conflict(message string) *Error {
	return &Error{Code: CodeConflict, Message: message}
}

func DuplicateContent() *Error {
	return &Error{Code: CodeDuplicateContent, Message: "identical content already exists"}
}

func RateLimited(retryAfter time.Time) *Error {
	return &Error{Code: CodeRateLimited, Message: "rate window still open", RetryAfter: retryAfter}
}

func Forbidden(message string) *Error {
	return &Error{Code: CodeForbidden, Message: message}
}

func Dependency(what string, err error) *Error {
	return &Error{Code: CodeDependency, Message: what + " unavailable", Err: err}
}

func TerminalJob(message string) *Error {
	return &Error{Code: CodeTerminalJob, Message: message}
}

// CodeOf extracts the machine code from any error, defaulting to DEPENDENCY
// for untyped failures.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeDependency
}

// AsError returns the typed error inside err, or nil.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}
