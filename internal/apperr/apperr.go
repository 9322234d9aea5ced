// Package apperr defines the error taxonomy shared by the booking and
// working-hours packages.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies an error for callers that need to branch on it.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthorized
	KindConflict
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnauthorized:
		return "unauthorized"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// HTTPStatus maps the kind to the status code a transport layer should use.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Error is the uniform error value returned across package boundaries.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	// Fields carries diagnostic data such as ids and offending values.
	Fields map[string]any
	// Conflicts lists human-readable titles of conflicting assets.
	Conflicts []string
	Err       error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if len(e.Conflicts) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(e.Conflicts, ", "))
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// With returns the error with an extra diagnostic field set.
func (e *Error) With(key string, value any) *Error {
	if e.Fields == nil {
		e.Fields = make(map[string]any)
	}
	e.Fields[key] = value
	return e
}

func Validation(op, message string) *Error {
	return &Error{Kind: KindValidation, Op: op, Message: message}
}

func Validationf(op, format string, args ...any) *Error {
	return Validation(op, fmt.Sprintf(format, args...))
}

func Unauthorized(op, message string) *Error {
	return &Error{Kind: KindUnauthorized, Op: op, Message: message}
}

func NotFound(op, message string) *Error {
	return &Error{Kind: KindNotFound, Op: op, Message: message}
}

// Conflict builds a conflict error naming every conflicting asset.
func Conflict(op, message string, titles []string) *Error {
	return &Error{Kind: KindConflict, Op: op, Message: message, Conflicts: titles}
}

// Internal wraps an unexpected failure. Errors that are already *Error keep
// their kind so that validation failures from lower layers stay visible.
func Internal(op string, err error, fields map[string]any) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		wrapped := *ae
		wrapped.Op = op
		wrapped.Fields = mergeFields(ae.Fields, fields)
		return &wrapped
	}
	return &Error{
		Kind:    KindInternal,
		Op:      op,
		Message: "something went wrong",
		Fields:  fields,
		Err:     err,
	}
}

// KindOf reports the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Kind == kind
}

func mergeFields(a, b map[string]any) map[string]any {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	out := make(map[string]any, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}
