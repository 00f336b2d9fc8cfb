// README: Business error taxonomy shared by services and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrConflict          = errors.New("conflict")
	ErrInvalidTransition = errors.New("invalid state transition")
)

// Error carries a user-facing message plus the constraint that was violated,
// e.g. {"allowedStates": [...]} or {"minOrder": ..., "currentTotal": ...}.
type Error struct {
	Kind    error
	Message string
	Context map[string]any
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// With returns the error with an extra context field.
func (e *Error) With(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

func newError(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...any) *Error {
	return newError(ErrValidation, format, args...)
}

func NotFound(format string, args ...any) *Error {
	return newError(ErrNotFound, format, args...)
}

func Forbidden(format string, args ...any) *Error {
	return newError(ErrForbidden, format, args...)
}

func Conflict(format string, args ...any) *Error {
	return newError(ErrConflict, format, args...)
}

func InvalidTransition(format string, args ...any) *Error {
	return newError(ErrInvalidTransition, format, args...)
}

// ContextOf returns the context fields of err, if it carries any.
func ContextOf(err error) map[string]any {
	var e *Error
	if errors.As(err, &e) {
		return e.Context
	}
	return nil
}

// IsBusiness reports whether err belongs to the taxonomy (anything else is internal).
func IsBusiness(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrInvalidTransition)
}
