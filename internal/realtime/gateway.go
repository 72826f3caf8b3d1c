/*
File: internal/realtime/gateway.go
Description: Accepts realtime connections on the feed endpoint, runs the
subscribe handshake and ties each connection's lifecycle to the room table.
*/
// Package realtime provides components for managing real-time client connections.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/nceruchalu/go-feed-relay/pkg/feed"
)

// IdentityResolver maps a session token to a user id. It never fails; an
// unresolvable token yields false.
type IdentityResolver interface {
	Resolve(ctx context.Context, sessionToken string) (feed.UserID, bool)
}

// FollowLookup returns the distinct users an identity follows. It never
// fails; a lookup error yields an empty slice.
type FollowLookup interface {
	FollowedIDs(ctx context.Context, identity feed.UserID) []feed.UserID
}

// GatewayConfig tunes the websocket transport.
type GatewayConfig struct {
	SendBuffer     int
	PingInterval   time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64
	// SubscribeRate and SubscribeBurst bound subscribe requests per
	// connection; excess requests are ignored.
	SubscribeRate  rate.Limit
	SubscribeBurst int
	// LookupTimeout bounds one handshake's store round-trips. Zero means
	// the handshake only ends with the connection.
	LookupTimeout  time.Duration
	AllowedOrigins []string
}

// DefaultGatewayConfig returns the transport settings used when none are configured.
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		SendBuffer:     64,
		PingInterval:   25 * time.Second,
		PongWait:       60 * time.Second,
		WriteWait:      10 * time.Second,
		MaxMessageSize: 4096,
		SubscribeRate:  rate.Limit(1),
		SubscribeBurst: 5,
	}
}

// inboundFrame is the envelope of every client -> server message.
type inboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// subscribeRequest carries the only field the handshake reads.
type subscribeRequest struct {
	SessionID *string `json:"sessionid"`
}

// ConnectionGateway serves the feed endpoint.
type ConnectionGateway struct {
	upgrader websocket.Upgrader
	rooms    *RoomManager
	resolver IdentityResolver
	follows  FollowLookup
	cfg      GatewayConfig
	logger   zerolog.Logger

	// mu orders registration and handshake starts against Shutdown.
	mu          sync.Mutex
	closing     bool
	connections sync.Map // map[string]*Connection
	handshakes  sync.WaitGroup
}

// NewConnectionGateway creates and wires up a new gateway.
func NewConnectionGateway(
	rooms *RoomManager,
	resolver IdentityResolver,
	follows FollowLookup,
	cfg GatewayConfig,
	logger zerolog.Logger,
) *ConnectionGateway {
	g := &ConnectionGateway{
		rooms:    rooms,
		resolver: resolver,
		follows:  follows,
		cfg:      cfg,
		logger:   logger.With().Str("component", "ConnectionGateway").Logger(),
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     g.checkOrigin,
	}
	return g
}

func (g *ConnectionGateway) checkOrigin(r *http.Request) bool {
	if len(g.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range g.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// ServeHTTP upgrades the request to a websocket and manages its lifecycle.
func (g *ConnectionGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if g.isClosing() {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn().Err(err).Msg("Failed to upgrade connection.")
		return
	}

	conn := newConnection(uuid.NewString(), ws, g.cfg.SendBuffer, g.logger)
	if !g.add(conn) {
		// Shutdown began during the upgrade.
		conn.closeWithMessage(websocket.CloseGoingAway, "server shutting down", g.cfg.WriteWait)
		return
	}
	defer g.remove(conn)

	go conn.writePump(g.cfg.PingInterval, g.cfg.WriteWait)
	g.readLoop(conn)
}

func (g *ConnectionGateway) isClosing() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closing
}

// add registers the connection unless Shutdown has started.
func (g *ConnectionGateway) add(conn *Connection) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closing {
		return false
	}
	g.connections.Store(conn.ID(), conn)
	g.rooms.Register(conn)
	conn.logger.Debug().Str("remote", conn.ws.RemoteAddr().String()).Msg("Client connected.")
	return true
}

// beginHandshake counts a handshake in, unless Shutdown is already waiting.
func (g *ConnectionGateway) beginHandshake() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closing {
		return false
	}
	g.handshakes.Add(1)
	return true
}

// remove releases every room membership. It runs once per connection.
func (g *ConnectionGateway) remove(conn *Connection) {
	released := g.rooms.Leave(conn)
	g.connections.Delete(conn.ID())
	conn.shut()
	conn.logger.Debug().Int("rooms_released", released).Msg("Client disconnected.")
}

func (g *ConnectionGateway) readLoop(conn *Connection) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	limiter := rate.NewLimiter(g.cfg.SubscribeRate, g.cfg.SubscribeBurst)

	conn.ws.SetReadLimit(g.cfg.MaxMessageSize)
	_ = conn.ws.SetReadDeadline(time.Now().Add(g.cfg.PongWait))
	conn.ws.SetPongHandler(func(string) error {
		return conn.ws.SetReadDeadline(time.Now().Add(g.cfg.PongWait))
	})

	for {
		msgType, payload, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				conn.logger.Debug().Err(err).Msg("Unexpected close.")
			}
			return
		}
		_ = conn.ws.SetReadDeadline(time.Now().Add(g.cfg.PongWait))
		if msgType != websocket.TextMessage {
			continue
		}

		token, ok := parseSubscribe(payload)
		if !ok {
			continue
		}
		if !limiter.Allow() {
			conn.logger.Debug().Msg("Subscribe request throttled.")
			continue
		}

		if !g.beginHandshake() {
			continue
		}
		go func() {
			defer g.handshakes.Done()
			g.Subscribe(ctx, conn, token)
		}()
	}
}

// parseSubscribe extracts the session token from a subscribe frame. Any
// other event or shape is ignored.
func parseSubscribe(payload []byte) (string, bool) {
	var frame inboundFrame
	if err := json.Unmarshal(payload, &frame); err != nil || frame.Event != feed.EventSubscribe {
		return "", false
	}
	var req subscribeRequest
	if err := json.Unmarshal(frame.Data, &req); err != nil || req.SessionID == nil {
		return "", false
	}
	return *req.SessionID, true
}

// Subscribe runs the handshake: resolve identity, fetch follow edges, join
// one room per followed user. Each step that yields nothing ends the
// handshake quietly. It returns the number of rooms newly joined.
func (g *ConnectionGateway) Subscribe(ctx context.Context, member Member, sessionToken string) int {
	log := g.logger.With().Str("conn", member.ID()).Logger()

	if g.cfg.LookupTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.LookupTimeout)
		defer cancel()
	}

	identity, ok := g.resolver.Resolve(ctx, sessionToken)
	if !ok {
		log.Debug().Msg("Session did not resolve, nothing to subscribe.")
		return 0
	}
	log = log.With().Stringer("user", identity).Logger()

	followed := g.follows.FollowedIDs(ctx, identity)
	if len(followed) == 0 {
		log.Debug().Msg("User follows nobody, nothing to subscribe.")
		return 0
	}

	rooms := make([]feed.RoomID, 0, len(followed))
	for _, id := range followed {
		rooms = append(rooms, feed.RoomForUser(id))
	}

	joined, err := g.rooms.Join(member, rooms)
	if errors.Is(err, feed.ErrConnectionClosed) {
		log.Debug().Msg("Connection left before handshake completed.")
		return 0
	}
	log.Info().Int("rooms", joined).Msg("Connection subscribed to followed users.")
	return joined
}

// Shutdown stops accepting connections and handshakes, closes every live
// connection with a going-away frame and waits for in-flight handshakes to
// finish or ctx to end.
func (g *ConnectionGateway) Shutdown(ctx context.Context) error {
	g.logger.Info().Msg("Closing realtime connections...")
	g.mu.Lock()
	g.closing = true
	var live []*Connection
	g.connections.Range(func(_, value any) bool {
		live = append(live, value.(*Connection))
		return true
	})
	g.mu.Unlock()

	for _, conn := range live {
		conn.closeWithMessage(websocket.CloseGoingAway, "server shutting down", g.cfg.WriteWait)
	}

	done := make(chan struct{})
	go func() {
		g.handshakes.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
