// Package pipeline drains the upstream activity channel and fans each
// event out to the room it addresses.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/nceruchalu/go-feed-relay/pkg/feed"
)

// RoomFanout delivers a frame to every current member of a room.
type RoomFanout interface {
	Broadcast(room feed.RoomID, frame []byte) (delivered, dropped int)
}

// BroadcasterConfig controls the readiness retry.
type BroadcasterConfig struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// ReadyTimeout is how long the upstream may stay unreachable before
	// Run gives up. Zero retries forever.
	ReadyTimeout time.Duration
	// StableStream is how long a stream must stay open, without delivering
	// anything, before its loss resets the resubscribe backoff. Zero means
	// DefaultStableStream.
	StableStream time.Duration
}

// DefaultStableStream applies when BroadcasterConfig.StableStream is zero.
const DefaultStableStream = 10 * time.Second

// DefaultBroadcasterConfig retries forever, backing off up to 30s.
func DefaultBroadcasterConfig() BroadcasterConfig {
	return BroadcasterConfig{
		InitialBackoff: 250 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
	}
}

// BroadcasterStats is a point-in-time snapshot of the broadcaster.
type BroadcasterStats struct {
	State     string `json:"state"`
	Received  uint64 `json:"received"`
	Discarded uint64 `json:"discarded"`
	Delivered uint64 `json:"delivered"`
	Dropped   uint64 `json:"dropped"`
}

// FeedBroadcaster moves between two states. It starts Disconnected, waits
// for the source to report ready, subscribes, and stays Subscribed while
// the stream lasts. A lost stream sends it back to Disconnected.
type FeedBroadcaster struct {
	source feed.EventSource
	rooms  RoomFanout
	cfg    BroadcasterConfig
	logger zerolog.Logger

	subscribed atomic.Bool
	received   atomic.Uint64
	discarded  atomic.Uint64
	delivered  atomic.Uint64
	dropped    atomic.Uint64
}

// NewFeedBroadcaster creates a broadcaster in the Disconnected state.
func NewFeedBroadcaster(source feed.EventSource, rooms RoomFanout, cfg BroadcasterConfig, logger zerolog.Logger) *FeedBroadcaster {
	return &FeedBroadcaster{
		source: source,
		rooms:  rooms,
		cfg:    cfg,
		logger: logger.With().Str("component", "FeedBroadcaster").Logger(),
	}
}

// State returns feed.StateDisconnected or feed.StateSubscribed.
func (b *FeedBroadcaster) State() string {
	if b.subscribed.Load() {
		return feed.StateSubscribed
	}
	return feed.StateDisconnected
}

// Stats returns the current counters.
func (b *FeedBroadcaster) Stats() BroadcasterStats {
	return BroadcasterStats{
		State:     b.State(),
		Received:  b.received.Load(),
		Discarded: b.discarded.Load(),
		Delivered: b.delivered.Load(),
		Dropped:   b.dropped.Load(),
	}
}

// Run blocks until ctx ends. It returns an error only when the upstream
// stays unreachable past ReadyTimeout.
func (b *FeedBroadcaster) Run(ctx context.Context) error {
	// Spans Run iterations so a stream that keeps dying on arrival is
	// retried with growing waits.
	resubscribe := b.newPolicy(0)

	for {
		stream, err := b.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		b.subscribed.Store(true)
		b.logger.Info().Msg("Upstream subscribed, relaying events.")
		started := time.Now()
		relayed := b.drain(ctx, stream)
		b.subscribed.Store(false)

		if ctx.Err() != nil {
			b.logger.Info().Msg("Broadcaster stopped.")
			return nil
		}

		if relayed > 0 || time.Since(started) >= b.stableStream() {
			resubscribe.Reset()
			b.logger.Warn().Msg("Upstream stream ended, resubscribing.")
			continue
		}

		wait := resubscribe.NextBackOff()
		b.logger.Warn().Dur("retry_in", wait).Msg("Upstream stream ended early, resubscribing after backoff.")
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			b.logger.Info().Msg("Broadcaster stopped.")
			return nil
		case <-timer.C:
		}
	}
}

func (b *FeedBroadcaster) newPolicy(maxElapsed time.Duration) *backoff.ExponentialBackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = b.cfg.InitialBackoff
	policy.MaxInterval = b.cfg.MaxBackoff
	policy.MaxElapsedTime = maxElapsed
	policy.Reset()
	return policy
}

func (b *FeedBroadcaster) stableStream() time.Duration {
	if b.cfg.StableStream > 0 {
		return b.cfg.StableStream
	}
	return DefaultStableStream
}

// connect polls the source until it reports ready, then subscribes.
func (b *FeedBroadcaster) connect(ctx context.Context) (<-chan []byte, error) {
	policy := b.newPolicy(b.cfg.ReadyTimeout)

	var stream <-chan []byte
	op := func() error {
		if err := b.source.Ready(ctx); err != nil {
			return err
		}
		s, err := b.source.Subscribe(ctx)
		if err != nil {
			return err
		}
		stream = s
		return nil
	}
	notify := func(err error, wait time.Duration) {
		b.logger.Warn().Err(err).Dur("retry_in", wait).Msg("Upstream not ready.")
	}

	if err := backoff.RetryNotify(op, backoff.WithContext(policy, ctx), notify); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("upstream never became ready: %w", err)
	}
	return stream, nil
}

// drain relays the stream until it closes or ctx ends and reports how many
// payloads it handled.
func (b *FeedBroadcaster) drain(ctx context.Context, stream <-chan []byte) int {
	relayed := 0
	for {
		select {
		case <-ctx.Done():
			return relayed
		case payload, ok := <-stream:
			if !ok {
				return relayed
			}
			relayed++
			b.HandleEvent(payload)
		}
	}
}

// HandleEvent relays one upstream payload. Events without a room are
// discarded; delivery never blocks on slow connections.
func (b *FeedBroadcaster) HandleEvent(payload []byte) {
	b.received.Add(1)

	event, err := EventTransformer(payload)
	if err != nil {
		b.discarded.Add(1)
		b.logger.Warn().Err(err).Int("bytes", len(payload)).Msg("Dropping upstream event.")
		return
	}

	frame, err := FeedUpdateFrame(event)
	if err != nil {
		b.discarded.Add(1)
		b.logger.Warn().Err(err).Msg("Dropping upstream event.")
		return
	}

	delivered, dropped := b.rooms.Broadcast(event.Room, frame)
	b.delivered.Add(uint64(delivered))
	b.dropped.Add(uint64(dropped))
	b.logger.Debug().
		Stringer("room", event.Room).
		Int("delivered", delivered).
		Int("dropped", dropped).
		Msg("Relayed feed update.")
}
