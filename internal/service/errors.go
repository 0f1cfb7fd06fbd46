// Package service holds the application logic behind the HTTP API: account
// management in AuthService and the ordered image collection in
// ImageService.  Both report failures as *Error values carrying one of the
// kinds below, which the handler layer maps to HTTP status codes.
package service

import (
	"errors"

	"github.com/iliyamo/stock-image-platform/internal/validate"
)

// Error kinds.  Test with errors.Is.
var (
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrStorage      = errors.New("storage failure")
	ErrInternal     = errors.New("internal error")
)

// Error is a failure with a message that is safe to show to clients.  The
// underlying cause, if any, stays in Err for logging.
type Error struct {
	Kind    error
	Message string
	Fields  validate.Errors
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Is(target error) bool { return target == e.Kind }

func (e *Error) Unwrap() error { return e.Err }

func fail(kind error, msg string) *Error { return &Error{Kind: kind, Message: msg} }

func wrap(kind error, msg string, err error) *Error { return &Error{Kind: kind, Message: msg, Err: err} }

// invalid converts a validator failure into a validation Error.
func invalid(err error) error {
	var fe validate.Errors
	if errors.As(err, &fe) {
		return &Error{Kind: ErrValidation, Message: "validation failed", Fields: fe}
	}
	return wrap(ErrInternal, "validation failed", err)
}
