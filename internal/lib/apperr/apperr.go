// Package apperr holds the typed errors services return and the HTTP layer renders.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type Code string

const (
	CodeBadRequest   Code = "BAD_REQUEST"
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeForbidden    Code = "FORBIDDEN"
	CodeNotFound     Code = "NOT_FOUND"
	CodeConflict     Code = "CONFLICT"
	CodeInternal     Code = "INTERNAL_SERVER_ERROR"
)

// InternalMessage is shown to clients instead of the cause of an internal error
const InternalMessage = "internal server error"

// Error is a failure with a client facing message
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error of the same code, so errors.Is(err, apperr.ErrNotFound) works
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Message == "" && t.Code == e.Code
}

// Status is the HTTP status for the error code
func (e *Error) Status() int {
	switch e.Code {
	case CodeBadRequest:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Code-only values for errors.Is
var (
	ErrBadRequest   = &Error{Code: CodeBadRequest}
	ErrUnauthorized = &Error{Code: CodeUnauthorized}
	ErrForbidden    = &Error{Code: CodeForbidden}
	ErrNotFound     = &Error{Code: CodeNotFound}
	ErrConflict     = &Error{Code: CodeConflict}
	ErrInternal     = &Error{Code: CodeInternal}
)

func BadRequest(message string) *Error {
	return &Error{Code: CodeBadRequest, Message: message}
}

func Unauthorized(message string) *Error {
	return &Error{Code: CodeUnauthorized, Message: message}
}

func Forbidden(message string) *Error {
	return &Error{Code: CodeForbidden, Message: message}
}

func NotFound(message string) *Error {
	return &Error{Code: CodeNotFound, Message: message}
}

func Conflict(message string) *Error {
	return &Error{Code: CodeConflict, Message: message}
}

// Internal hides cause behind the generic message
func Internal(cause error) *Error {
	return &Error{Code: CodeInternal, Message: InternalMessage, Cause: cause}
}

// Wrap attaches a cause to a new typed error
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// From returns the typed error in err's chain, or an internal error wrapping err
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}

// FromStatus maps a gRPC status error onto a typed error
func FromStatus(err error) *Error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return From(err)
	}
	switch st.Code() {
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		return Wrap(CodeBadRequest, st.Message(), err)
	case codes.Unauthenticated:
		return Wrap(CodeUnauthorized, st.Message(), err)
	case codes.PermissionDenied:
		return Wrap(CodeForbidden, st.Message(), err)
	case codes.NotFound:
		return Wrap(CodeNotFound, st.Message(), err)
	case codes.AlreadyExists, codes.Aborted:
		return Wrap(CodeConflict, st.Message(), err)
	default:
		return Internal(err)
	}
}
