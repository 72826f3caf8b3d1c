// Package follow reads the follow graph that decides which rooms a
// subscriber joins.
package follow

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/nceruchalu/go-feed-relay/pkg/feed"
)

// Lookup returns the users an identity follows, read once per handshake.
type Lookup struct {
	store  feed.FollowStore
	logger zerolog.Logger
}

// NewLookup creates a Lookup over the given store.
func NewLookup(store feed.FollowStore, logger zerolog.Logger) *Lookup {
	return &Lookup{
		store:  store,
		logger: logger.With().Str("component", "FollowGraphLookup").Logger(),
	}
}

// FollowedIDs returns the distinct, valid user ids followed by identity.
// A failed query is logged and reads as "follows nobody".
func (l *Lookup) FollowedIDs(ctx context.Context, identity feed.UserID) []feed.UserID {
	ids, err := l.store.FollowedIDs(ctx, identity)
	if err != nil {
		l.logger.Warn().Err(err).Stringer("user", identity).Msg("Follow lookup failed, treating as no follows.")
		return nil
	}

	seen := make(map[feed.UserID]struct{}, len(ids))
	followed := make([]feed.UserID, 0, len(ids))
	for _, id := range ids {
		if !id.Valid() {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		followed = append(followed, id)
	}
	return followed
}
