/*
File: feedrelay/feedrelay.go
Description: Wires the connection gateway, the room table, the upstream
broadcaster and the status API into one service with a single HTTP listener.
*/
package feedrelay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/nceruchalu/go-feed-relay/feedrelay/config"
	"github.com/nceruchalu/go-feed-relay/internal/api"
	"github.com/nceruchalu/go-feed-relay/internal/follow"
	"github.com/nceruchalu/go-feed-relay/internal/pipeline"
	"github.com/nceruchalu/go-feed-relay/internal/realtime"
	"github.com/nceruchalu/go-feed-relay/internal/session"
	"github.com/nceruchalu/go-feed-relay/pkg/feed"
)

// Wrapper owns every long-running component of the relay.
type Wrapper struct {
	server      *http.Server
	rooms       *realtime.RoomManager
	gateway     *realtime.ConnectionGateway
	broadcaster *pipeline.FeedBroadcaster
	closers     []func() error
	logger      zerolog.Logger

	httpReadyChan chan struct{}
	mu            sync.Mutex
	listener      net.Listener
	cancel        context.CancelFunc
	broadcastDone chan struct{}
}

// New creates and wires up the entire relay.
func New(
	cfg *config.AppConfig,
	dependencies *feed.ServiceDependencies,
	logger zerolog.Logger,
) (*Wrapper, error) {
	if dependencies == nil || dependencies.Source == nil {
		return nil, fmt.Errorf("an upstream event source is required")
	}
	if dependencies.Sessions == nil || dependencies.Decoder == nil || dependencies.Follows == nil {
		return nil, fmt.Errorf("session store, session decoder and follow store are required")
	}

	// 1. The membership table and the broadcaster that feeds it.
	rooms := realtime.NewRoomManager()
	broadcaster := pipeline.NewFeedBroadcaster(
		dependencies.Source,
		rooms,
		pipeline.BroadcasterConfig{
			InitialBackoff: cfg.Upstream.InitialBackoff,
			MaxBackoff:     cfg.Upstream.MaxBackoff,
			ReadyTimeout:   cfg.Upstream.ReadyTimeout,
			StableStream:   cfg.Upstream.StableStream,
		},
		logger,
	)

	// 2. The handshake collaborators.
	resolver := session.NewResolver(dependencies.Sessions, dependencies.Decoder, logger)
	follows := follow.NewLookup(dependencies.Follows, logger)
	gateway := realtime.NewConnectionGateway(rooms, resolver, follows, gatewayConfig(cfg.Websocket), logger)

	// 3. The router. Status routes are documented through huma; the feed
	// endpoint is a plain handler because it hijacks the connection.
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(api.RequestLogger(logger.With().Str("component", "HTTP").Logger()))

	humaCfg := huma.DefaultConfig("Feed Relay", "1.0.0")
	humaAPI := humachi.New(router, humaCfg)
	instanceID := uuid.NewString()
	api.NewAPI(instanceID, rooms, broadcaster).Register(humaAPI)

	router.Get(cfg.Websocket.Path, gateway.ServeHTTP)

	logger.Info().
		Str("instance_id", instanceID).
		Str("feed_path", cfg.Websocket.Path).
		Str("port", cfg.WebSocketPort).
		Msg("Feed relay wired.")

	return &Wrapper{
		server:        &http.Server{Addr: ":" + cfg.WebSocketPort, Handler: router},
		rooms:         rooms,
		gateway:       gateway,
		broadcaster:   broadcaster,
		closers:       dependencies.Closers,
		logger:        logger,
		httpReadyChan: make(chan struct{}),
		broadcastDone: make(chan struct{}),
	}, nil
}

func gatewayConfig(ws config.WebsocketConfig) realtime.GatewayConfig {
	return realtime.GatewayConfig{
		SendBuffer:     ws.SendBuffer,
		PingInterval:   ws.PingInterval,
		PongWait:       ws.PongWait,
		WriteWait:      ws.WriteWait,
		MaxMessageSize: ws.MaxMessageSize,
		SubscribeRate:  rate.Limit(ws.SubscribeRate),
		SubscribeBurst: ws.SubscribeBurst,
		LookupTimeout:  ws.LookupTimeout,
		AllowedOrigins: ws.AllowedOrigins,
	}
}

// Rooms returns the membership table.
func (w *Wrapper) Rooms() *realtime.RoomManager { return w.rooms }

// Broadcaster returns the upstream broadcaster.
func (w *Wrapper) Broadcaster() *pipeline.FeedBroadcaster { return w.broadcaster }

// Ready is closed once the HTTP listener is accepting connections.
func (w *Wrapper) Ready() <-chan struct{} { return w.httpReadyChan }

// Addr returns the bound listener address, or "" before Ready.
func (w *Wrapper) Addr() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.listener == nil {
		return ""
	}
	return w.listener.Addr().String()
}

// Start binds the listener, starts the broadcaster and serves until
// Shutdown. A bind failure or an upstream that never becomes ready is
// returned as an error.
func (w *Wrapper) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", w.server.Addr)
	if err != nil {
		return fmt.Errorf("HTTP server failed to start: %w", err)
	}

	broadcastCtx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.listener = ln
	w.cancel = cancel
	w.mu.Unlock()

	broadcastErrChan := make(chan error, 1)
	go func() {
		defer close(w.broadcastDone)
		w.logger.Info().Msg("Upstream broadcaster starting...")
		broadcastErrChan <- w.broadcaster.Run(broadcastCtx)
	}()

	serverErrChan := make(chan error, 1)
	go func() {
		if err := w.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			w.logger.Error().Err(err).Msg("HTTP server failed")
			serverErrChan <- err
		}
		close(serverErrChan)
	}()

	close(w.httpReadyChan)
	w.logger.Info().Str("addr", ln.Addr().String()).Msg("HTTP listener is active.")

	select {
	case err := <-broadcastErrChan:
		if err != nil {
			w.logger.Error().Err(err).Msg("Upstream broadcaster failed.")
			return err
		}
		// The broadcaster only returns cleanly once ctx ends; keep
		// serving until Shutdown closes the listener.
		return <-serverErrChan
	case err := <-serverErrChan:
		return err
	}
}

// Shutdown gracefully stops all service components in the correct order:
// realtime connections, the HTTP server, the broadcaster, then the
// dependency closers.
func (w *Wrapper) Shutdown(ctx context.Context) error {
	w.logger.Info().Msg("Shutting down service components...")
	var finalErr error

	if err := w.gateway.Shutdown(ctx); err != nil {
		w.logger.Error().Err(err).Msg("Connection gateway shutdown failed.")
		finalErr = err
	}

	if err := w.server.Shutdown(ctx); err != nil {
		w.logger.Error().Err(err).Msg("HTTP server shutdown failed.")
		finalErr = err
	}

	w.mu.Lock()
	cancel := w.cancel
	w.mu.Unlock()
	if cancel != nil {
		cancel()
		select {
		case <-w.broadcastDone:
		case <-ctx.Done():
			w.logger.Warn().Msg("Broadcaster did not stop before the shutdown deadline.")
		}
	}

	for _, closeFn := range w.closers {
		if err := closeFn(); err != nil {
			w.logger.Error().Err(err).Msg("Dependency close failed.")
			finalErr = err
		}
	}

	w.logger.Info().Msg("All components shut down.")
	return finalErr
}
