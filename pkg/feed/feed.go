// Package feed consolidates core domain types and service dependency
// definitions for the activity feed relay.
package feed

import (
	"encoding/json"
	"strconv"
)

// UserID identifies a backend user. Valid ids are positive.
type UserID int64

// Valid reports whether the id can identify a logged-in user.
func (u UserID) Valid() bool { return u > 0 }

func (u UserID) String() string { return strconv.FormatInt(int64(u), 10) }

// RoomID addresses a broadcast group. A room carries "updates about this
// user", so a room id is always the id of the user being followed.
type RoomID int64

func (r RoomID) String() string { return strconv.FormatInt(int64(r), 10) }

// RoomForUser returns the room that carries activity about the given user.
func RoomForUser(id UserID) RoomID { return RoomID(id) }

// ActivityEvent is one message received on the upstream channel.
type ActivityEvent struct {
	Room RoomID
	// Data is delivered to clients untouched. A missing data field is
	// carried as JSON null.
	Data json.RawMessage
}

// Upstream states reported by the broadcaster.
const (
	StateDisconnected = "disconnected"
	StateSubscribed   = "subscribed"
)

// Client protocol event names.
const (
	EventSubscribe  = "subscribe"
	EventFeedUpdate = "feedupdate"
)
