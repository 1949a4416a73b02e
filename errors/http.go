package errors

import (
	"fmt"
	"net/http"
	"strings"
)

// =============================================================================
// REPORTABLE FAILURES
// =============================================================================

// Reportable is the contract for request-time failures that adapters can map
// to a transport response without knowing the concrete type: a numeric status
// for HTTP, an error object for message replies. Domain failures implement
// this instead of extending an error hierarchy; dispatch matches on the
// interface.
type Reportable interface {
	error

	// StatusCode returns the HTTP-equivalent status for the failure.
	StatusCode() int

	// ErrorCode returns a stable machine-readable code for the failure.
	ErrorCode() string
}

// =============================================================================
// HTTP ERRORS
// =============================================================================

// HTTPError is the built-in Reportable used for plain transport failures.
type HTTPError struct {
	Code    int
	Message string
	Err     error
}

// NewHTTPError creates an HTTP error with the given status code and message.
func NewHTTPError(code int, message string) *HTTPError {
	return &HTTPError{
		Code:    code,
		Message: message,
	}
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%d %s: %v", e.Code, e.Message, e.Err)
	}

	return fmt.Sprintf("%d %s", e.Code, e.Message)
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

// Is matches two HTTPErrors by status code.
func (e *HTTPError) Is(target error) bool {
	t, ok := target.(*HTTPError)
	if !ok {
		return false
	}

	return e.Code == t.Code
}

// StatusCode implements Reportable.
func (e *HTTPError) StatusCode() int {
	return e.Code
}

// ErrorCode implements Reportable. The code is the canonical status text in
// SCREAMING_SNAKE form, e.g. "NOT_FOUND".
func (e *HTTPError) ErrorCode() string {
	text := http.StatusText(e.Code)
	if text == "" {
		return fmt.Sprintf("HTTP_%d", e.Code)
	}

	return strings.ToUpper(strings.ReplaceAll(text, " ", "_"))
}

// HTTP error constructors.

func BadRequest(message string) *HTTPError {
	return NewHTTPError(http.StatusBadRequest, message)
}

func Unauthorized(message string) *HTTPError {
	return NewHTTPError(http.StatusUnauthorized, message)
}

func Forbidden(message string) *HTTPError {
	return NewHTTPError(http.StatusForbidden, message)
}

func NotFound(message string) *HTTPError {
	return NewHTTPError(http.StatusNotFound, message)
}

func Conflict(message string) *HTTPError {
	return NewHTTPError(http.StatusConflict, message)
}

func TooManyRequests(message string) *HTTPError {
	return NewHTTPError(http.StatusTooManyRequests, message)
}

func InternalError(err error) *HTTPError {
	return &HTTPError{
		Code:    http.StatusInternalServerError,
		Message: "internal server error",
		Err:     err,
	}
}

func ServiceUnavailable(message string) *HTTPError {
	return NewHTTPError(http.StatusServiceUnavailable, message)
}

// GetHTTPStatusCode extracts an HTTP status code from the error chain,
// returning 500 when the chain carries no Reportable failure.
func GetHTTPStatusCode(err error) int {
	if err == nil {
		return http.StatusInternalServerError
	}

	var reportable Reportable
	if As(err, &reportable) {
		return reportable.StatusCode()
	}

	return http.StatusInternalServerError
}

// GetErrorCode extracts a machine-readable error code from the chain. Loom
// structured errors yield their Code; Reportable failures yield ErrorCode();
// anything else maps to "INTERNAL".
func GetErrorCode(err error) string {
	if err == nil {
		return ""
	}

	var reportable Reportable
	if As(err, &reportable) {
		return reportable.ErrorCode()
	}

	var le *LoomError
	if As(err, &le) {
		return le.Code
	}

	return "INTERNAL"
}
