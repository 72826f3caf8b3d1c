// Package session maps opaque session tokens to backend user ids.
package session

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/nceruchalu/go-feed-relay/pkg/feed"
)

// Resolver looks a session up in the backend store and decodes its payload.
// It fails open: every lookup or decode failure reads as "not logged in".
type Resolver struct {
	store   feed.SessionStore
	decoder feed.SessionDecoder
	logger  zerolog.Logger
}

// NewResolver creates a Resolver over the given store and decoder.
func NewResolver(store feed.SessionStore, decoder feed.SessionDecoder, logger zerolog.Logger) *Resolver {
	return &Resolver{
		store:   store,
		decoder: decoder,
		logger:  logger.With().Str("component", "SessionResolver").Logger(),
	}
}

// Resolve returns the user id bound to the session token, or false.
func (r *Resolver) Resolve(ctx context.Context, sessionToken string) (feed.UserID, bool) {
	if sessionToken == "" {
		return 0, false
	}

	data, err := r.store.SessionData(ctx, sessionToken)
	if err != nil {
		if errors.Is(err, feed.ErrSessionNotFound) {
			r.logger.Debug().Msg("No live session for token.")
		} else {
			r.logger.Warn().Err(err).Msg("Session lookup failed, treating as anonymous.")
		}
		return 0, false
	}

	id, ok := r.decoder.Decode(data)
	if !ok || !id.Valid() {
		r.logger.Debug().Msg("Session payload carries no user.")
		return 0, false
	}
	return id, true
}
