package domain

import "errors"

var (
	// ErrUpstreamUnavailable marks completion or search calls that could not
	// be served: unreachable, timed out, throttled or 5xx.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrMalformedResponse marks an upstream answer that could not be used
	// (empty text, undecodable payload, unknown label).
	ErrMalformedResponse = errors.New("malformed upstream response")

	// ErrPersistence marks a failed append of the turn's message pair.
	ErrPersistence = errors.New("persistence failure")

	ErrChatNotFound    = errors.New("chat not found")
	ErrChatForbidden   = errors.New("chat forbidden")
	ErrProfileNotFound = errors.New("profile not found")
	ErrInvalidInput    = errors.New("invalid input")
)
