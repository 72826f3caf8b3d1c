/*
File: cmd/feedpublish/main.go
Description: Publishes one activity event to the relay's upstream channel.
Used to exercise a running relay by hand.
*/
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"

	"github.com/nceruchalu/go-feed-relay/feedrelay/config"
	"github.com/nceruchalu/go-feed-relay/internal/app"
	psub "github.com/nceruchalu/go-feed-relay/internal/platform/pubsub"
	"github.com/nceruchalu/go-feed-relay/internal/platform/redischan"
	"github.com/nceruchalu/go-feed-relay/pkg/feed"
)

type options struct {
	room      int64
	data      string
	upstream  string
	redisAddr string
	channel   string
	project   string
	topic     string
	timeout   time.Duration
}

func main() {
	logger, _, _ := app.NewLogger("go-feed-publish", app.LogOptions{Level: envOr("LOG_LEVEL", "info")})

	opts := options{}
	flagSet := pflag.NewFlagSet("feedpublish", pflag.ContinueOnError)
	flagSet.Int64Var(&opts.room, "room", 0, "room (user id) the event is addressed to")
	flagSet.StringVar(&opts.data, "data", "null", "JSON payload relayed to subscribers")
	flagSet.StringVar(&opts.upstream, "upstream", envOr("UPSTREAM_TYPE", config.UpstreamRedis), "upstream type: redis or pubsub")
	flagSet.StringVar(&opts.redisAddr, "redis-addr", envOr("REDIS_ADDR", "localhost:6379"), "redis address")
	flagSet.StringVar(&opts.channel, "channel", envOr("FEED_CHANNEL", redischan.DefaultChannel), "redis channel")
	flagSet.StringVar(&opts.project, "project", os.Getenv("GCP_PROJECT_ID"), "GCP project for pubsub")
	flagSet.StringVar(&opts.topic, "topic", envOr("PUBSUB_TOPIC_ID", "feed"), "pubsub topic")
	flagSet.DurationVar(&opts.timeout, "timeout", 10*time.Second, "publish timeout")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}

	payload, err := buildPayload(opts.room, opts.data)
	if err != nil {
		logger.Error().Err(err).Msg("Invalid event")
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()

	publisher, err := newPublisher(ctx, opts)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create publisher")
		os.Exit(1)
	}
	defer publisher.Close()

	if err := publisher.Publish(ctx, payload); err != nil {
		logger.Error().Err(err).Msg("Publish failed")
		os.Exit(1)
	}
	logger.Info().Int64("room", opts.room).Str("upstream", opts.upstream).Msg("Event published")
}

// buildPayload encodes the upstream wire shape {"room": N, "data": D}.
func buildPayload(room int64, data string) ([]byte, error) {
	if room <= 0 {
		return nil, fmt.Errorf("--room must be a positive user id")
	}
	if !json.Valid([]byte(data)) {
		return nil, fmt.Errorf("--data is not valid JSON")
	}
	return json.Marshal(struct {
		Room int64           `json:"room"`
		Data json.RawMessage `json:"data"`
	}{Room: room, Data: json.RawMessage(data)})
}

func newPublisher(ctx context.Context, opts options) (feed.EventPublisher, error) {
	switch opts.upstream {
	case config.UpstreamRedis:
		rdb := redis.NewClient(&redis.Options{Addr: opts.redisAddr})
		publisher, err := redischan.NewPublisher(rdb, opts.channel)
		if err != nil {
			return nil, err
		}
		return publisher, nil
	case config.UpstreamPubsub:
		if opts.project == "" {
			return nil, fmt.Errorf("--project (or GCP_PROJECT_ID) is required for pubsub")
		}
		client, err := pubsub.NewClient(ctx, opts.project)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to pubsub: %w", err)
		}
		topic := psub.ResourceName(opts.project, opts.topic, psub.Pub)
		return &closingPublisher{
			EventPublisher: psub.NewProducer(client.Publisher(topic)),
			closeFn:        client.Close,
		}, nil
	default:
		return nil, fmt.Errorf("invalid upstream type: %s (must be 'redis' or 'pubsub')", opts.upstream)
	}
}

// closingPublisher also releases the client the publisher was built from.
type closingPublisher struct {
	feed.EventPublisher
	closeFn func() error
}

func (p *closingPublisher) Close() error {
	return errors.Join(p.EventPublisher.Close(), p.closeFn())
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
