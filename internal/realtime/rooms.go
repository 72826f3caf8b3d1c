package realtime

import (
	"sync"

	"github.com/nceruchalu/go-feed-relay/pkg/feed"
)

// Member is anything that can sit in a room and accept frames.
// Deliver must never block; it reports whether the frame was accepted.
type Member interface {
	ID() string
	Deliver(frame []byte) bool
}

// RoomManager maps live connections to the rooms they joined.
//
// A member is live from Register until Leave. Rooms exist only while they
// have members. All mutation, including the liveness check in Join, happens
// under one lock, so a Join that races a Leave can never resurrect a
// departed member's membership.
type RoomManager struct {
	mu          sync.RWMutex
	rooms       map[feed.RoomID]map[string]Member
	memberships map[string]map[feed.RoomID]struct{}
}

// NewRoomManager creates an empty membership table.
func NewRoomManager() *RoomManager {
	return &RoomManager{
		rooms:       make(map[feed.RoomID]map[string]Member),
		memberships: make(map[string]map[feed.RoomID]struct{}),
	}
}

// Register marks a member live with no room memberships.
func (m *RoomManager) Register(member Member) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.memberships[member.ID()]; !ok {
		m.memberships[member.ID()] = make(map[feed.RoomID]struct{})
	}
}

// Join adds the member to each named room and returns how many rooms were
// newly joined. Joining a room twice is a no-op. Joining after Leave
// returns feed.ErrConnectionClosed and changes nothing.
func (m *RoomManager) Join(member Member, rooms []feed.RoomID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	joined, ok := m.memberships[member.ID()]
	if !ok {
		return 0, feed.ErrConnectionClosed
	}

	added := 0
	for _, room := range rooms {
		if _, already := joined[room]; already {
			continue
		}
		members, ok := m.rooms[room]
		if !ok {
			members = make(map[string]Member)
			m.rooms[room] = members
		}
		members[member.ID()] = member
		joined[room] = struct{}{}
		added++
	}
	return added, nil
}

// Leave removes the member from every room it belongs to and marks it
// departed. It returns the number of rooms released; repeated calls
// release nothing.
func (m *RoomManager) Leave(member Member) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	joined, ok := m.memberships[member.ID()]
	if !ok {
		return 0
	}
	for room := range joined {
		members := m.rooms[room]
		delete(members, member.ID())
		if len(members) == 0 {
			delete(m.rooms, room)
		}
	}
	delete(m.memberships, member.ID())
	return len(joined)
}

// Broadcast hands the frame to every member of the room. Members whose
// buffers are full drop it. It returns delivered and dropped counts.
func (m *RoomManager) Broadcast(room feed.RoomID, frame []byte) (delivered, dropped int) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, member := range m.rooms[room] {
		if member.Deliver(frame) {
			delivered++
		} else {
			dropped++
		}
	}
	return delivered, dropped
}

// RoomsOf returns the rooms a member has joined.
func (m *RoomManager) RoomsOf(memberID string) []feed.RoomID {
	m.mu.RLock()
	defer m.mu.RUnlock()

	joined := m.memberships[memberID]
	rooms := make([]feed.RoomID, 0, len(joined))
	for room := range joined {
		rooms = append(rooms, room)
	}
	return rooms
}

// MemberCount returns the number of members in a room.
func (m *RoomManager) MemberCount(room feed.RoomID) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms[room])
}

// Stats returns the number of live members and non-empty rooms.
func (m *RoomManager) Stats() (members, rooms int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.memberships), len(m.rooms)
}
