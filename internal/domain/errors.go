package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrDeadlinePassed    = errors.New("activation deadline passed")
	ErrAlreadyActive     = errors.New("booking is no longer waiting")
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrStatusChanged is returned by conditional updates when the row left the expected status.
	ErrStatusChanged = errors.New("booking status changed concurrently")
	// ErrMissingParameter marks programmer errors such as a job without a booking id.
	ErrMissingParameter = errors.New("missing required parameter")
)

type ConflictScope string

const (
	ConflictScopeTable ConflictScope = "table"
	ConflictScopeUser  ConflictScope = "user"
)

// ConflictError reports which overlap check rejected a proposed interval.
type ConflictError struct {
	Scope   ConflictScope
	TableID string
	UserID  string
}

func (e *ConflictError) Error() string {
	switch e.Scope {
	case ConflictScopeUser:
		return fmt.Sprintf("user %s already holds a meeting booking in this interval", e.UserID)
	default:
		return fmt.Sprintf("table %s is already booked in this interval", e.TableID)
	}
}

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

func (v *ValidationError) Error() string {
	if v == nil || len(v.FieldErrors) == 0 {
		return "validation failed"
	}
	fields := make([]string, 0, len(v.FieldErrors))
	for field, msg := range v.FieldErrors {
		fields = append(fields, field+": "+msg)
	}
	sort.Strings(fields)
	return "validation failed: " + strings.Join(fields, "; ")
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// Add records a field level validation error.
func (v *ValidationError) Add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}

// TransportError wraps a failed notification or messenger delivery. It is logged, never
// propagated to the booking operation that triggered it.
type TransportError struct {
	Channel string
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s delivery failed: %v", e.Channel, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ErrorKind maps sentinel and typed errors to a stable label for logs and API codes.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	var conflict *ConflictError
	var vErr *ValidationError
	var tErr *TransportError
	switch {
	case errors.As(err, &conflict):
		return "conflict_" + string(conflict.Scope)
	case errors.As(err, &vErr):
		return "validation"
	case errors.As(err, &tErr):
		return "transport"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrDeadlinePassed):
		return "deadline_passed"
	case errors.Is(err, ErrAlreadyActive):
		return "already_active"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrStatusChanged):
		return "status_changed"
	case errors.Is(err, ErrMissingParameter):
		return "missing_parameter"
	}
	return "unexpected"
}
