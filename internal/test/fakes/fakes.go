// Package fakes provides in-memory test doubles (fakes) for the relay's
// dependencies. They are used by package tests and the end-to-end test.
package fakes

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/nceruchalu/go-feed-relay/pkg/feed"
)

// --- Upstream ---

// InMemorySource is an EventSource and EventPublisher in one. Published
// payloads reach the current subscription, or are dropped when there is
// none, the way a pub/sub channel behaves.
type InMemorySource struct {
	mu         sync.Mutex
	failReady  int
	readyCalls int
	subscribes int
	stream     chan []byte
	subscribed chan struct{}
	closed     bool
	logger     zerolog.Logger
}

func NewInMemorySource(logger zerolog.Logger) *InMemorySource {
	return &InMemorySource{
		subscribed: make(chan struct{}, 16),
		logger:     logger.With().Str("component", "InMemorySource").Logger(),
	}
}

// FailReady makes the next n Ready calls report not ready.
func (s *InMemorySource) FailReady(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failReady = n
}

func (s *InMemorySource) Ready(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readyCalls++
	if s.closed {
		return fmt.Errorf("%w: source closed", feed.ErrUpstreamNotReady)
	}
	if s.failReady > 0 {
		s.failReady--
		return feed.ErrUpstreamNotReady
	}
	return nil
}

func (s *InMemorySource) Subscribe(_ context.Context) (<-chan []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("source closed")
	}
	s.subscribes++
	s.stream = make(chan []byte, 64)
	select {
	case s.subscribed <- struct{}{}:
	default:
	}
	return s.stream, nil
}

// Subscribed receives one value per successful Subscribe.
func (s *InMemorySource) Subscribed() <-chan struct{} { return s.subscribed }

// Publish hands the payload to the current subscriber.
func (s *InMemorySource) Publish(ctx context.Context, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == nil {
		s.logger.Debug().Msg("[FAKES-SOURCE] No subscriber, dropping payload.")
		return nil
	}
	select {
	case s.stream <- payload:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// EndStream simulates the upstream dropping the subscription.
func (s *InMemorySource) EndStream() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream != nil {
		close(s.stream)
		s.stream = nil
	}
}

func (s *InMemorySource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.stream != nil {
		close(s.stream)
		s.stream = nil
	}
	return nil
}

// ReadyCalls reports how often Ready was polled.
func (s *InMemorySource) ReadyCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readyCalls
}

// Subscribes reports how many subscriptions were opened.
func (s *InMemorySource) Subscribes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscribes
}

// --- Backend stores ---

// SessionStore maps session keys to opaque session data.
type SessionStore struct {
	mu   sync.RWMutex
	data map[string]string
	Err  error
}

func NewSessionStore() *SessionStore {
	return &SessionStore{data: make(map[string]string)}
}

func (s *SessionStore) Put(key, data string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = data
}

func (s *SessionStore) SessionData(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Err != nil {
		return "", s.Err
	}
	data, ok := s.data[key]
	if !ok {
		return "", feed.ErrSessionNotFound
	}
	return data, nil
}

// FollowStore maps a follower to the users they follow.
type FollowStore struct {
	mu      sync.RWMutex
	follows map[feed.UserID][]feed.UserID
	Err     error
}

func NewFollowStore() *FollowStore {
	return &FollowStore{follows: make(map[feed.UserID][]feed.UserID)}
}

func (s *FollowStore) Follow(follower feed.UserID, followed ...feed.UserID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.follows[follower] = append(s.follows[follower], followed...)
}

func (s *FollowStore) FollowedIDs(_ context.Context, follower feed.UserID) ([]feed.UserID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Err != nil {
		return nil, s.Err
	}
	out := make([]feed.UserID, len(s.follows[follower]))
	copy(out, s.follows[follower])
	return out, nil
}

// JSONSessionData encodes a session the way a JSON-serialized Django
// session is stored, without a hash check.
func JSONSessionData(id feed.UserID) string {
	payload, _ := json.Marshal(map[string]string{"_auth_user_id": id.String()})
	return base64.StdEncoding.EncodeToString([]byte("fakehash:" + string(payload)))
}

// --- Realtime ---

// Member records every frame delivered to it. When Capacity is positive,
// deliveries beyond it are refused, like a full send buffer.
type Member struct {
	id       string
	Capacity int

	mu     sync.Mutex
	frames [][]byte
}

func NewMember(id string) *Member { return &Member{id: id} }

func (m *Member) ID() string { return m.id }

func (m *Member) Deliver(frame []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Capacity > 0 && len(m.frames) >= m.Capacity {
		return false
	}
	m.frames = append(m.frames, frame)
	return true
}

func (m *Member) Frames() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.frames))
	copy(out, m.frames)
	return out
}
