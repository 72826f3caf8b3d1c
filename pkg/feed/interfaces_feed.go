/*
File: pkg/feed/interfaces_feed.go
Description: Contracts between the relay core and its external collaborators.
*/
package feed

import "context"

// SessionStore fetches the serialized payload of a session by its key.
// It returns ErrSessionNotFound for unknown or expired sessions.
type SessionStore interface {
	SessionData(ctx context.Context, sessionKey string) (string, error)
}

// SessionDecoder turns an opaque session payload into a user id. The
// boolean is false when the payload carries no logged-in user.
type SessionDecoder interface {
	Decode(sessionData string) (UserID, bool)
}

// SessionDecoderFunc adapts a plain function to a SessionDecoder.
type SessionDecoderFunc func(sessionData string) (UserID, bool)

// Decode calls f(sessionData).
func (f SessionDecoderFunc) Decode(sessionData string) (UserID, bool) { return f(sessionData) }

// FollowStore reads the follower's out-edges from the backend.
type FollowStore interface {
	FollowedIDs(ctx context.Context, follower UserID) ([]UserID, error)
}

// EventSource is the upstream fan-in channel of activity events.
type EventSource interface {
	// Ready returns nil once the broker has signalled it can accept a
	// subscription, and ErrUpstreamNotReady (or a transport error) otherwise.
	Ready(ctx context.Context) error
	// Subscribe starts listening and returns the raw payload stream. The
	// channel is closed when ctx ends or the subscription is lost.
	Subscribe(ctx context.Context) (<-chan []byte, error)
	Close() error
}

// EventPublisher publishes a serialized event to the upstream channel.
type EventPublisher interface {
	Publish(ctx context.Context, payload []byte) error
	Close() error
}
