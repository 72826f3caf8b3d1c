package feed

import "errors"

var (
	// ErrSessionNotFound is returned by a SessionStore when no live session
	// row matches the key.
	ErrSessionNotFound = errors.New("session not found")

	// ErrMalformedEvent marks an upstream payload that is not a JSON object.
	ErrMalformedEvent = errors.New("malformed upstream event")
	// ErrMissingRoom marks an upstream event without a usable room id.
	ErrMissingRoom = errors.New("upstream event has no target room")

	// ErrConnectionClosed is returned when operating on a connection that
	// has already left every room.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrUpstreamNotReady is returned by an EventSource whose broker has not
	// yet signalled readiness.
	ErrUpstreamNotReady = errors.New("upstream channel not ready")
)
