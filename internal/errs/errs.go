// Package errs defines the error kinds the remediation engine surfaces to callers.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Kind categorizes an engine error.
type Kind string

const (
	KindNotFound   Kind = "not_found"
	KindValidation Kind = "validation"
	KindState      Kind = "state"
	KindExecution  Kind = "execution"
	KindInternal   Kind = "internal"
)

// Error is a categorized engine error.
type Error struct {
	Kind     Kind
	Op       string
	Resource string
	Message  string
	Err      error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var parts []string
	if e.Op != "" {
		parts = append(parts, e.Op+":")
	}
	parts = append(parts, e.Message)
	if e.Resource != "" {
		parts = append(parts, fmt.Sprintf("(%s)", e.Resource))
	}
	if e.Err != nil {
		parts = append(parts, "caused by: "+e.Err.Error())
	}
	return strings.Join(parts, " ")
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same kind, so errors.Is(err, &Error{Kind: KindState}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Resource == "" || t.Resource == e.Resource)
}

// NotFound reports a missing incident, remediation, node, template or credential.
func NotFound(resource, id string) *Error {
	return &Error{Kind: KindNotFound, Resource: resource, Message: fmt.Sprintf("%s %q not found", resource, id)}
}

// Validation reports caller input rejected before any side effect.
func Validation(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// State reports an illegal lifecycle transition.
func State(format string, args ...interface{}) *Error {
	return &Error{Kind: KindState, Message: fmt.Sprintf(format, args...)}
}

// Execution wraps a backend or transport failure.
func Execution(op string, err error) *Error {
	return &Error{Kind: KindExecution, Op: op, Message: "execution failed", Err: err}
}

// Internal wraps an infrastructure fault such as an unreachable store.
func Internal(op string, err error) *Error {
	return &Error{Kind: KindInternal, Op: op, Message: "internal error", Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool { return err != nil && KindOf(err) == KindNotFound }

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool { return err != nil && KindOf(err) == KindValidation }

// IsState reports whether err is a state error.
func IsState(err error) bool { return err != nil && KindOf(err) == KindState }

// IsExecution reports whether err is an execution error.
func IsExecution(err error) bool { return err != nil && KindOf(err) == KindExecution }
