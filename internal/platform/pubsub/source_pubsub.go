package pubsub

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/nceruchalu/go-feed-relay/pkg/feed"
)

const streamBuffer = 256

// Source implements feed.EventSource over a Pub/Sub subscription. Messages
// are acked on receipt; delivery to clients stays fire-and-forget.
type Source struct {
	client       *pubsub.Client
	subscription string
	topic        string
	logger       zerolog.Logger
}

// NewSource creates a source for the subscription (full resource name).
// When topic is set, Ready creates a missing subscription on that topic.
func NewSource(client *pubsub.Client, subscription, topic string, logger zerolog.Logger) (*Source, error) {
	if client == nil {
		return nil, fmt.Errorf("pubsub client cannot be nil")
	}
	if subscription == "" {
		return nil, fmt.Errorf("pubsub subscription cannot be empty")
	}
	return &Source{
		client:       client,
		subscription: subscription,
		topic:        topic,
		logger:       logger.With().Str("component", "PubsubSource").Str("subscription", subscription).Logger(),
	}, nil
}

// Ready reports whether the subscription exists, creating it when allowed.
func (s *Source) Ready(ctx context.Context) error {
	_, err := s.client.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{
		Subscription: s.subscription,
	})
	if err == nil {
		return nil
	}
	if status.Code(err) != codes.NotFound || s.topic == "" {
		return fmt.Errorf("%w: %v", feed.ErrUpstreamNotReady, err)
	}

	s.logger.Info().Str("topic", s.topic).Msg("Subscription missing, creating it.")
	_, err = s.client.SubscriptionAdminClient.CreateSubscription(ctx, &pubsubpb.Subscription{
		Name:               s.subscription,
		Topic:              s.topic,
		AckDeadlineSeconds: 10,
	})
	if err != nil && status.Code(err) != codes.AlreadyExists {
		return fmt.Errorf("%w: could not create subscription: %v", feed.ErrUpstreamNotReady, err)
	}
	return nil
}

// Subscribe starts a streaming pull. One outstanding message at a time
// keeps events in the order the server hands them out.
func (s *Source) Subscribe(ctx context.Context) (<-chan []byte, error) {
	sub := s.client.Subscriber(s.subscription)
	sub.ReceiveSettings.NumGoroutines = 1
	sub.ReceiveSettings.MaxOutstandingMessages = 1

	out := make(chan []byte, streamBuffer)
	go func() {
		defer close(out)
		err := sub.Receive(ctx, func(msgCtx context.Context, msg *pubsub.Message) {
			msg.Ack()
			select {
			case out <- msg.Data:
			case <-msgCtx.Done():
			}
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error().Err(err).Msg("Pub/Sub receive stopped.")
		}
	}()
	s.logger.Info().Msg("Receiving from Pub/Sub subscription.")
	return out, nil
}

// Close releases the client.
func (s *Source) Close() error {
	return s.client.Close()
}
