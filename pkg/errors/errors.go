package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation        Code = "VALIDATION_ERROR"
	CodeUnauthorized      Code = "UNAUTHORIZED"
	CodeForbidden         Code = "FORBIDDEN"
	CodeNotFound          Code = "NOT_FOUND"
	CodeConflict          Code = "CONFLICT"
	CodeToolUnavailable   Code = "TOOL_UNAVAILABLE"
	CodeInsufficientStock Code = "INSUFFICIENT_STOCK"
	CodeInvalidTransition Code = "INVALID_TRANSITION"
	CodeIdempotency       Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit         Code = "RATE_LIMITED"
	CodeBusy              Code = "BUSY"
	CodeLedgerCorruption  Code = "LEDGER_CORRUPTION"
	CodeInternal          Code = "INTERNAL_ERROR"
	CodeDependency        Code = "DEPENDENCY_ERROR"
)

// Metadata drives how a code renders over HTTP. Client-class codes expose
// the caller-facing message; the rest fall back to PublicMessage.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
	ExposeMessage  bool
}

const (
	exposed = 1 << iota
	withDetails
	retryable
)

func codeMeta(status int, public string, flags int) Metadata {
	return Metadata{
		HTTPStatus:     status,
		PublicMessage:  public,
		ExposeMessage:  flags&exposed != 0,
		DetailsAllowed: flags&withDetails != 0,
		Retryable:      flags&retryable != 0,
	}
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:        codeMeta(http.StatusBadRequest, "validation failed", exposed|withDetails),
	CodeUnauthorized:      codeMeta(http.StatusUnauthorized, "authentication required", exposed),
	CodeForbidden:         codeMeta(http.StatusForbidden, "access denied", exposed),
	CodeNotFound:          codeMeta(http.StatusNotFound, "resource not found", exposed),
	CodeConflict:          codeMeta(http.StatusConflict, "conflict detected", exposed),
	CodeToolUnavailable:   codeMeta(http.StatusConflict, "tool is not available for issue", exposed|withDetails),
	CodeInsufficientStock: codeMeta(http.StatusConflict, "requested quantity exceeds available stock", exposed|withDetails),
	CodeInvalidTransition: codeMeta(http.StatusConflict, "request status does not allow this action", exposed|withDetails),
	CodeIdempotency:       codeMeta(http.StatusConflict, "idempotency key reused", exposed|withDetails),
	CodeRateLimit:         codeMeta(http.StatusTooManyRequests, "too many requests", exposed),
	CodeBusy:              codeMeta(http.StatusServiceUnavailable, "inventory is busy, retry the request", retryable),
	CodeLedgerCorruption:  codeMeta(http.StatusInternalServerError, "inventory ledger inconsistency detected", withDetails),
	CodeInternal:          codeMeta(http.StatusInternalServerError, "internal server error", retryable),
	CodeDependency:        codeMeta(http.StatusServiceUnavailable, "dependency unavailable", retryable|withDetails),
}

func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Newf formats the message before building the error.
func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// IsCode reports whether the first coded error in the chain carries code.
func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.Code() == code
}

// Retryable reports whether a caller may retry the operation with identical inputs.
func Retryable(err error) bool {
	typed := As(err)
	if typed == nil {
		return false
	}
	return MetadataFor(typed.Code()).Retryable
}
