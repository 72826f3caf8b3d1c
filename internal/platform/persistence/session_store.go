package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nceruchalu/go-feed-relay/pkg/feed"
)

// DefaultSessionTable is Django's database session table.
const DefaultSessionTable = "django_session"

// SQLSessionStore reads session payloads by primary key.
type SQLSessionStore struct {
	db          *sql.DB
	query       string
	checkExpiry bool
	now         func() time.Time
}

// NewSQLSessionStore builds the store for the given table. With
// checkExpiry set, rows whose expire_date has passed are not returned.
func NewSQLSessionStore(db *sql.DB, table string, checkExpiry bool) (*SQLSessionStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database cannot be nil")
	}
	if table == "" {
		table = DefaultSessionTable
	}
	if err := validIdentifier(table); err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT session_data FROM %s WHERE session_key = ?", table)
	if checkExpiry {
		query += " AND expire_date > ?"
	}
	return &SQLSessionStore{
		db:          db,
		query:       query,
		checkExpiry: checkExpiry,
		now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

// SessionData implements feed.SessionStore.
func (s *SQLSessionStore) SessionData(ctx context.Context, sessionKey string) (string, error) {
	args := []any{sessionKey}
	if s.checkExpiry {
		args = append(args, s.now())
	}

	var data sql.NullString
	err := s.db.QueryRowContext(ctx, s.query, args...).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return "", feed.ErrSessionNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to query session: %w", err)
	}
	if !data.Valid || data.String == "" {
		return "", feed.ErrSessionNotFound
	}
	return data.String, nil
}
