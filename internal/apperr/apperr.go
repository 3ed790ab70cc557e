// Package apperr provides the typed error kinds that abort a tracking run.
// Callers branch on Kind; the CLI only needs to know that an error occurred.
package apperr

import (
	"errors"
	"fmt"
)

// Kind represents the category of error.
type Kind int

const (
	// KindUnknown is the default error kind when none is specified.
	KindUnknown Kind = iota
	// KindConfiguration indicates missing or ambiguous setup (custom fields, config values).
	KindConfiguration
	// KindDataConsistency indicates remote data that contradicts itself (unknown stage, bad stored value).
	KindDataConsistency
	// KindUpstream indicates a failed or non-success call to the CRM API.
	KindUpstream
)

// String returns the kind name used in log output.
func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindDataConsistency:
		return "data_consistency"
	case KindUpstream:
		return "upstream"
	default:
		return "unknown"
	}
}

// Error is a run-aborting error with a typed Kind.
type Error struct {
	Kind       Kind
	Op         string // Operation that failed (optional)
	Message    string
	StatusCode int   // HTTP status for upstream errors (optional)
	Err        error // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, msg)
	}
	return msg
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// Configuration creates a configuration error.
func Configuration(op, format string, args ...any) *Error {
	return &Error{Kind: KindConfiguration, Op: op, Message: fmt.Sprintf(format, args...)}
}

// DataConsistency creates a data consistency error.
func DataConsistency(op, format string, args ...any) *Error {
	return &Error{Kind: KindDataConsistency, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Upstream creates an upstream error for a non-success response.
func Upstream(op string, status int, format string, args ...any) *Error {
	return &Error{Kind: KindUpstream, Op: op, StatusCode: status, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches an underlying error to a new Error of the given kind.
func Wrap(kind Kind, op string, err error, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

// KindOf returns the Kind of err, or KindUnknown when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err (or anything it wraps) is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
