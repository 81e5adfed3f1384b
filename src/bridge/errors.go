// Package bridge translates MCP protocol turns into calls against the
// external actions service: JSON-RPC dispatch, catalog projection, tool
// invocation, session lifecycle and the error classification shared by
// both transports.
package bridge

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the failure taxonomy carried from the point of origin to the
// transport boundary.
type Kind int

const (
	// KindInternal covers every unclassified failure. Its client-visible
	// message is fixed; detail goes only to the audit trail.
	KindInternal Kind = iota

	// KindNotFound reports a tool name absent from the caller's current
	// catalog.
	KindNotFound

	// KindUnauthenticated reports a failed credential resolution.
	KindUnauthenticated

	// KindInvalidSession reports a missing or unknown legacy session id.
	KindInvalidSession

	// KindMethodNotAllowed reports an HTTP method the endpoint does not
	// serve.
	KindMethodNotAllowed
)

// Protocol error codes and their HTTP pairings.
const (
	CodeInternal         = -32603
	CodeMethodNotAllowed = -32000
	CodeNotFound         = -32002
)

// Error is a classified bridge failure.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// NotFoundError builds a not-found failure naming the tool. The name is
// the only detail that may leak to the client.
func NotFoundError(toolName string) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("Tool not found: %s", toolName)}
}

// InternalError wraps an arbitrary failure as internal.
func InternalError(err error) *Error {
	return &Error{Kind: KindInternal, Message: "Internal server error", Err: err}
}

// Classify maps any failure to the protocol-visible (code, message) pair.
// Unclassified errors collapse to the generic internal error so raw
// detail never reaches the client payload.
func Classify(err error) (code int, message string) {
	var be *Error
	if errors.As(err, &be) {
		switch be.Kind {
		case KindNotFound:
			return CodeNotFound, be.Message
		case KindMethodNotAllowed:
			return CodeMethodNotAllowed, "Method not allowed"
		}
	}
	return CodeInternal, "Internal server error"
}

// HTTPStatus returns the HTTP status paired with a classified failure.
func HTTPStatus(err error) int {
	var be *Error
	if errors.As(err, &be) {
		switch be.Kind {
		case KindNotFound:
			return http.StatusNotFound
		case KindUnauthenticated:
			return http.StatusUnauthorized
		case KindInvalidSession:
			return http.StatusBadRequest
		case KindMethodNotAllowed:
			return http.StatusMethodNotAllowed
		}
	}
	return http.StatusInternalServerError
}

// ErrorType names the classified kind for audit metadata.
func ErrorType(err error) string {
	var be *Error
	if errors.As(err, &be) {
		switch be.Kind {
		case KindNotFound:
			return "not_found"
		case KindUnauthenticated:
			return "unauthenticated"
		case KindInvalidSession:
			return "invalid_session"
		case KindMethodNotAllowed:
			return "method_not_allowed"
		}
	}
	return "internal"
}
