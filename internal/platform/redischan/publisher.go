package redischan

import (
	"context"
	"fmt"
)

// Publisher implements feed.EventPublisher on a Redis channel.
type Publisher struct {
	client  redisClient
	channel string
}

// NewPublisher is the constructor for the Redis publisher.
func NewPublisher(client redisClient, channel string) (*Publisher, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client cannot be nil")
	}
	if channel == "" {
		channel = DefaultChannel
	}
	return &Publisher{client: client, channel: channel}, nil
}

// Publish sends the payload; it does not wait for any subscriber.
func (p *Publisher) Publish(ctx context.Context, payload []byte) error {
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to redis channel %s: %w", p.channel, err)
	}
	return nil
}

// Close releases the client.
func (p *Publisher) Close() error {
	return p.client.Close()
}
