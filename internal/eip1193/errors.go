package eip1193

import "fmt"

// Canonical provider error codes. The set is closed: every failure that
// crosses the trust boundary carries one of these codes, nothing else.
const (
	CodeUserRejectedRequest = 4001
	CodeUnauthorized        = 4100
	CodeUnsupportedMethod   = 4200
	CodeDisconnected        = 4900
	CodeChainDisconnected   = 4901
)

// Error is the canonical error value returned to content scripts. It is the
// only failure shape a caller ever observes.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("provider error %d", e.Code)
	}
	return fmt.Sprintf("provider error %d: %s", e.Code, e.Message)
}

// Shared instances for the closed code set. Routing code returns these
// directly so callers can compare against a stable value.
var (
	ErrUserRejectedRequest = &Error{Code: CodeUserRejectedRequest, Message: "The user rejected the request."}
	ErrUnauthorized        = &Error{Code: CodeUnauthorized, Message: "The requested account and/or method has not been authorized by the user."}
	ErrUnsupportedMethod   = &Error{Code: CodeUnsupportedMethod, Message: "The provider does not support the requested method."}
	ErrDisconnected        = &Error{Code: CodeDisconnected, Message: "The provider is disconnected from all chains."}
	ErrChainDisconnected   = &Error{Code: CodeChainDisconnected, Message: "The provider is not connected to the requested chain."}
)

// IsCanonical reports whether code belongs to the closed canonical set.
func IsCanonical(code int) bool {
	switch code {
	case CodeUserRejectedRequest, CodeUnauthorized, CodeUnsupportedMethod,
		CodeDisconnected, CodeChainDisconnected:
		return true
	}
	return false
}
