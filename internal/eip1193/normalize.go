package eip1193

import (
	"encoding/json"
	"errors"
)

// BodyCarrier is implemented by errors that carry a raw upstream response
// body, such as the signing backend's HTTP errors.
type BodyCarrier interface {
	error
	ResponseBody() []byte
}

type matcher func(error) (*Error, bool)

// matchers run in order and the first match wins. The order is part of the
// caller-facing contract: a single error can satisfy several shapes at once
// and callers depend on the precedence.
var matchers = []matcher{
	matchCanonical,
	matchBody,
	matchNestedBody,
}

// Normalize converts an arbitrary failure into the canonical Error shape.
// No stack trace, store internals, or raw backend payload survives this
// call; an unrecognized error collapses into a generic code.
func Normalize(err error) *Error {
	for _, match := range matchers {
		if e, ok := match(err); ok {
			return e
		}
	}
	return &Error{Code: CodeUserRejectedRequest, Message: "request failed"}
}

// matchCanonical returns an Error already present anywhere in the chain,
// verbatim.
func matchCanonical(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// matchBody handles errors that directly expose an upstream body of the
// shape {"error":{"message":...}}.
func matchBody(err error) (*Error, bool) {
	carrier, ok := err.(BodyCarrier)
	if !ok {
		return nil, false
	}
	return fromBody(carrier.ResponseBody())
}

// matchNestedBody handles bodies reachable only through the wrap chain.
func matchNestedBody(err error) (*Error, bool) {
	var carrier BodyCarrier
	if !errors.As(err, &carrier) {
		return nil, false
	}
	return fromBody(carrier.ResponseBody())
}

func fromBody(body []byte) (*Error, bool) {
	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.Error.Message == "" {
		return nil, false
	}
	return &Error{Code: CodeUserRejectedRequest, Message: payload.Error.Message}, true
}
