package persistence

import (
	"context"
	"database/sql"
	"fmt"
)

// The backend owns these tables; the relay only creates them for local
// development and tests against SQLite.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS django_session (
		session_key  VARCHAR(40) PRIMARY KEY,
		session_data TEXT NOT NULL,
		expire_date  DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS relationship_following (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		follower_id INTEGER NOT NULL,
		followed_id INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS relationship_following_follower_id
		ON relationship_following (follower_id)`,
}

// EnsureSQLiteSchema creates the backend tables in a SQLite database.
func EnsureSQLiteSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range sqliteSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}
