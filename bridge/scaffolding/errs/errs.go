// Package errs provides the closed error taxonomy used across the service.
// Every store- or backend-facing failure is translated into one of these
// error values before it reaches a caller; raw driver errors never cross a
// repository boundary.
package errs

import (
	"errors"
	"fmt"
	"net/http"
	"runtime"
)

// Error is the application error type. It carries a code from the closed
// taxonomy and a user-displayable message.
type Error struct {
	Code     ErrCode `json:"code"`
	Message  string  `json:"message"`
	FuncName string  `json:"-"`
	FileName string  `json:"-"`
}

// New constructs an error with the given code wrapping the cause's message.
func New(code ErrCode, err error) *Error {
	pc, filename, line, _ := runtime.Caller(1)

	return &Error{
		Code:     code,
		Message:  err.Error(),
		FuncName: runtime.FuncForPC(pc).Name(),
		FileName: fmt.Sprintf("%s:%d", filename, line),
	}
}

// Newf constructs an error with the given code and a formatted message.
func Newf(code ErrCode, format string, v ...any) *Error {
	pc, filename, line, _ := runtime.Caller(1)

	return &Error{
		Code:     code,
		Message:  fmt.Sprintf(format, v...),
		FuncName: runtime.FuncForPC(pc).Name(),
		FileName: fmt.Sprintf("%s:%d", filename, line),
	}
}

func (e *Error) Error() string {
	return e.Message
}

// Encode implements the web Encoder contract so an *Error can be returned
// directly from a handler.
func (e *Error) Encode() ([]byte, string, error) {
	data, err := marshal(e)
	return data, "application/json; charset=utf-8", err
}

// HTTPStatus maps the taxonomy onto HTTP status codes.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case InvalidArgument:
		return http.StatusBadRequest
	case Unauthenticated:
		return http.StatusUnauthorized
	case PermissionDenied:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case DeadlineExceeded:
		return http.StatusGatewayTimeout
	case Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// IsCode reports whether err is an *Error carrying the given code.
func IsCode(err error, code ErrCode) bool {
	var appErr *Error
	if !errors.As(err, &appErr) {
		return false
	}
	return appErr.Code == code
}

// Code extracts the taxonomy code from err, defaulting to Unknown.
func Code(err error) ErrCode {
	var appErr *Error
	if !errors.As(err, &appErr) {
		return Unknown
	}
	return appErr.Code
}
