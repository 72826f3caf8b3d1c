// Package redischan adapts a Redis pub/sub channel to the relay's
// upstream contracts.
package redischan

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/nceruchalu/go-feed-relay/pkg/feed"
)

// DefaultChannel is the channel the backend publishes activity on.
const DefaultChannel = "feed"

const streamBuffer = 256

// redisClient defines the interface we need from go-redis.
type redisClient interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Close() error
}

// Source implements feed.EventSource over one Redis channel.
type Source struct {
	client  redisClient
	channel string
	logger  zerolog.Logger
}

// NewSource is the constructor for the Redis event source.
func NewSource(client redisClient, channel string, logger zerolog.Logger) (*Source, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client cannot be nil")
	}
	if channel == "" {
		channel = DefaultChannel
	}
	return &Source{
		client:  client,
		channel: channel,
		logger:  logger.With().Str("component", "RedisSource").Str("channel", channel).Logger(),
	}, nil
}

// Ready reports whether the Redis server answers.
func (s *Source) Ready(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", feed.ErrUpstreamNotReady, err)
	}
	return nil
}

// Subscribe subscribes to the channel, waits for the server's confirmation
// and streams message payloads until ctx ends.
func (s *Source) Subscribe(ctx context.Context) (<-chan []byte, error) {
	ps := s.client.Subscribe(ctx, s.channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("failed to subscribe to redis channel %s: %w", s.channel, err)
	}
	s.logger.Info().Msg("Subscribed to redis channel.")

	in := ps.Channel()
	out := make(chan []byte, streamBuffer)
	go func() {
		defer close(out)
		defer func() {
			if err := ps.Close(); err != nil {
				s.logger.Debug().Err(err).Msg("error closing redis subscription")
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-in:
				if !ok {
					s.logger.Warn().Msg("Redis subscription channel closed.")
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Close releases the client.
func (s *Source) Close() error {
	return s.client.Close()
}
