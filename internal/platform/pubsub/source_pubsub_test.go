package pubsub_test

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ps "github.com/nceruchalu/go-feed-relay/internal/platform/pubsub"
	"github.com/nceruchalu/go-feed-relay/pkg/feed"
)

func TestSource_Ready(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	client := newTestClient(t)

	t.Run("Missing subscription without a topic is not ready", func(t *testing.T) {
		source, err := ps.NewSource(client, subName("absent"), "", zerolog.Nop())
		require.NoError(t, err)
		require.ErrorIs(t, source.Ready(ctx), feed.ErrUpstreamNotReady)
	})

	t.Run("Missing topic is not ready", func(t *testing.T) {
		source, err := ps.NewSource(client, subName("orphan"), topicName("nope"), zerolog.Nop())
		require.NoError(t, err)
		require.ErrorIs(t, source.Ready(ctx), feed.ErrUpstreamNotReady)
	})

	t.Run("Creates the subscription on an existing topic", func(t *testing.T) {
		topic := createTopic(ctx, t, client, "feed")
		source, err := ps.NewSource(client, subName("relay"), topic, zerolog.Nop())
		require.NoError(t, err)

		require.NoError(t, source.Ready(ctx))
		got, err := client.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{Subscription: subName("relay")})
		require.NoError(t, err)
		assert.Equal(t, topic, got.Topic)

		// Ready again with the subscription present.
		require.NoError(t, source.Ready(ctx))
	})
}

func TestSource_Subscribe(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	client := newTestClient(t)

	topic := createTopic(ctx, t, client, "activity")
	source, err := ps.NewSource(client, subName("relay"), topic, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, source.Ready(ctx))

	streamCtx, stopStream := context.WithCancel(ctx)
	defer stopStream()
	stream, err := source.Subscribe(streamCtx)
	require.NoError(t, err)

	producer := ps.NewProducer(client.Publisher(topic))
	t.Cleanup(func() { _ = producer.Close() })
	require.NoError(t, producer.Publish(ctx, []byte(`{"room":7,"data":null}`)))

	select {
	case payload := <-stream:
		assert.Equal(t, `{"room":7,"data":null}`, string(payload))
	case <-ctx.Done():
		t.Fatal("timed out waiting for message")
	}

	stopStream()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-stream:
			return !ok
		default:
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)
}

func TestNewSource_Validation(t *testing.T) {
	_, err := ps.NewSource(nil, subName("x"), "", zerolog.Nop())
	require.Error(t, err)

	client := newTestClient(t)
	_, err = ps.NewSource(client, "", "", zerolog.Nop())
	require.Error(t, err)
}
