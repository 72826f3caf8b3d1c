package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nceruchalu/go-feed-relay/pkg/feed"
)

// DefaultFollowTable is the backend's follow relationship table.
const DefaultFollowTable = "relationship_following"

// SQLFollowStore reads follower out-edges.
type SQLFollowStore struct {
	db    *sql.DB
	query string
}

// NewSQLFollowStore builds the store for the given table.
func NewSQLFollowStore(db *sql.DB, table string) (*SQLFollowStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database cannot be nil")
	}
	if table == "" {
		table = DefaultFollowTable
	}
	if err := validIdentifier(table); err != nil {
		return nil, err
	}
	return &SQLFollowStore{
		db:    db,
		query: fmt.Sprintf("SELECT followed_id FROM %s WHERE follower_id = ?", table),
	}, nil
}

// FollowedIDs implements feed.FollowStore. The pooled connection is
// released when rows are closed, on every return path.
func (s *SQLFollowStore) FollowedIDs(ctx context.Context, follower feed.UserID) ([]feed.UserID, error) {
	rows, err := s.db.QueryContext(ctx, s.query, int64(follower))
	if err != nil {
		return nil, fmt.Errorf("failed to query follows: %w", err)
	}
	defer rows.Close()

	var ids []feed.UserID
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan followed id: %w", err)
		}
		ids = append(ids, feed.UserID(id))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read follows: %w", err)
	}
	return ids, nil
}
