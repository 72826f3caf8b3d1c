/*
File: internal/platform/pubsub/producer_pubsub.go
Description: Publishes serialized activity events to a Google Cloud Pub/Sub topic.
*/
// Package pubsub contains concrete adapters for interacting with Google Cloud Pub/Sub.
package pubsub

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub/v2"
)

// pubsubTopicClient defines the interface for the underlying pubsub.Publisher.
// This allows us to use a mock for testing.
type pubsubTopicClient interface {
	Publish(ctx context.Context, msg *pubsub.Message) *pubsub.PublishResult
	Stop()
}

// Producer implements the feed.EventPublisher interface on a topic.
type Producer struct {
	topic pubsubTopicClient
}

// NewProducer is the constructor for the Pub/Sub producer.
func NewProducer(topic pubsubTopicClient) *Producer {
	return &Producer{
		topic: topic,
	}
}

// Publish sends the payload and waits for the server to accept it.
func (p *Producer) Publish(ctx context.Context, payload []byte) error {
	result := p.topic.Publish(ctx, &pubsub.Message{Data: payload})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// Close flushes pending publishes.
func (p *Producer) Close() error {
	p.topic.Stop()
	return nil
}
