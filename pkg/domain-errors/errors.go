// Package domainerrors provides coded errors that travel from domain logic to
// the transport layer without leaking infrastructure detail. Services create
// them with New or Wrap; handlers translate codes to HTTP statuses.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a domain error for callers that need to branch on outcome.
type Code string

const (
	// CodeValidation marks malformed or semantically invalid input that was
	// rejected before touching the store.
	CodeValidation Code = "validation"
	// CodeInvalidInput marks input rejected at a trust boundary (id parsing,
	// token format checks).
	CodeInvalidInput Code = "invalid_input"
	// CodeBadRequest marks a structurally broken request (missing body,
	// unparseable JSON).
	CodeBadRequest Code = "bad_request"
	// CodeNotFound covers unknown resources. Not-owned resources are reported
	// with the same code so existence of other users' data does not leak.
	CodeNotFound Code = "not_found"
	// CodeUnauthorized covers missing or unusable credentials.
	CodeUnauthorized Code = "unauthorized"
	// CodeForbidden covers authenticated callers acting outside their scope.
	CodeForbidden Code = "forbidden"
	// CodeConflict covers uniqueness violations and concurrent duplicates.
	CodeConflict Code = "conflict"
	// CodeInvariantViolation marks a domain invariant broken at construction
	// or transition time. Services usually downgrade it to CodeValidation at
	// the API boundary.
	CodeInvariantViolation Code = "invariant_violation"
	// CodeInvalidToken covers bearer tokens that are unknown or expired.
	CodeInvalidToken Code = "invalid_token"
	// CodeNoContextAssigned is returned by token resolution when the
	// (profile, client) pair has no context binding. Callers need to know
	// authorization is incomplete; this is not a silent fallback.
	CodeNoContextAssigned Code = "no_context_assigned"
	// CodeTimeout covers cancelled or deadline-exceeded operations.
	CodeTimeout Code = "timeout"
	// CodeInternal covers dependency failures and bugs.
	CodeInternal Code = "internal"
)

// Error is a coded domain error. It optionally wraps a cause for logging while
// keeping the outward message stable.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a coded error without a cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying cause. The cause stays
// reachable through errors.Is/errors.As for store-level sentinel checks.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether err or any error in its chain carries the code.
func HasCode(err error, code Code) bool {
	var de *Error
	for errors.As(err, &de) {
		if de.Code == code {
			return true
		}
		err = de.cause
	}
	return false
}

// Is is a readability alias for HasCode.
func Is(err error, code Code) bool { return HasCode(err, code) }

// CodeOf returns the outermost code in the chain, or CodeInternal when err is
// not a coded error.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a code to the HTTP status the transport layer should emit.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeValidation, CodeInvalidInput, CodeBadRequest, CodeInvariantViolation:
		return http.StatusBadRequest
	case CodeUnauthorized, CodeInvalidToken:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeNoContextAssigned:
		return http.StatusConflict
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
