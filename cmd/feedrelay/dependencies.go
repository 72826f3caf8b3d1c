package main

import (
	"context"
	"database/sql"
	"fmt"

	"cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/nceruchalu/go-feed-relay/feedrelay/config"
	"github.com/nceruchalu/go-feed-relay/internal/platform/persistence"
	psub "github.com/nceruchalu/go-feed-relay/internal/platform/pubsub"
	"github.com/nceruchalu/go-feed-relay/internal/platform/redischan"
	"github.com/nceruchalu/go-feed-relay/internal/session"
	"github.com/nceruchalu/go-feed-relay/pkg/feed"
)

// newDependencies builds the service dependency container.
func newDependencies(ctx context.Context, cfg *config.AppConfig, logger zerolog.Logger) (*feed.ServiceDependencies, error) {
	db, err := newDatabase(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	sessions, err := persistence.NewSQLSessionStore(db, cfg.Store.SessionTable, cfg.Store.CheckExpiry)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create session store: %w", err)
	}
	follows, err := persistence.NewSQLFollowStore(db, cfg.Store.FollowTable)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create follow store: %w", err)
	}
	decoder, err := session.NewDjangoDecoder(cfg.Session.Serializer, cfg.Session.SecretKey)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create session decoder: %w", err)
	}

	source, err := newEventSource(ctx, cfg, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Debug().Msg("All dependencies initialized")

	return &feed.ServiceDependencies{
		Source:   source,
		Sessions: sessions,
		Decoder:  decoder,
		Follows:  follows,
		Closers:  []func() error{source.Close, db.Close},
	}, nil
}

func newDatabase(ctx context.Context, cfg *config.AppConfig, logger zerolog.Logger) (*sql.DB, error) {
	logger.Debug().Str("driver", cfg.Store.Driver).Msg("Connecting to backend store")
	db, err := persistence.NewDatabase(ctx, cfg.Store.Driver, cfg.Store.DSN, persistence.PoolConfig{
		MaxOpenConns:    cfg.Store.MaxOpenConns,
		MaxIdleConns:    cfg.Store.MaxIdleConns,
		ConnMaxLifetime: cfg.Store.ConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}

	if cfg.Store.CreateSchema && cfg.Store.Driver == persistence.DriverSQLite {
		logger.Info().Msg("Ensuring local SQLite schema")
		if err := persistence.EnsureSQLiteSchema(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return db, nil
}

// newEventSource creates the pluggable upstream based on config.
func newEventSource(ctx context.Context, cfg *config.AppConfig, logger zerolog.Logger) (feed.EventSource, error) {
	upstreamType := cfg.Upstream.Type
	logger.Info().Str("type", upstreamType).Msg("Initializing upstream source...")

	switch upstreamType {
	case config.UpstreamRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Upstream.Redis.Addr,
			Password: cfg.Upstream.Redis.Password,
			DB:       cfg.Upstream.Redis.DB,
		})
		// Reachability is checked by the broadcaster's readiness loop, not here.
		source, err := redischan.NewSource(rdb, cfg.Upstream.Redis.Channel, logger)
		if err != nil {
			return nil, err
		}
		return source, nil

	case config.UpstreamPubsub:
		project := cfg.Upstream.Pubsub.ProjectID
		logger.Debug().Str("project_id", project).Msg("Connecting to PubSub")
		psClient, err := pubsub.NewClient(ctx, project)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to pubsub: %w", err)
		}
		topic := psub.ResourceName(project, cfg.Upstream.Pubsub.TopicID, psub.Pub)
		if err := ensureTopic(ctx, psClient, topic, logger); err != nil {
			_ = psClient.Close()
			return nil, err
		}
		subscription := psub.ResourceName(project, cfg.Upstream.Pubsub.SubscriptionID, psub.Sub)
		source, err := psub.NewSource(psClient, subscription, topic, logger)
		if err != nil {
			_ = psClient.Close()
			return nil, err
		}
		return source, nil

	default:
		return nil, fmt.Errorf("invalid upstream type: %s (must be 'redis' or 'pubsub')", upstreamType)
	}
}

// ensureTopic creates the Pub/Sub topic if it doesn't already exist.
func ensureTopic(ctx context.Context, psClient *pubsub.Client, topic string, logger zerolog.Logger) error {
	if topic == "" {
		return nil
	}
	logger.Debug().Str("topic", topic).Msg("Ensuring topic exists")
	_, err := psClient.TopicAdminClient.CreateTopic(ctx, &pubsubpb.Topic{Name: topic})
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			logger.Debug().Str("topic", topic).Msg("Topic already exists, skipping creation")
			return nil
		}
		logger.Error().Err(err).Str("topic", topic).Msg("Failed to create topic")
		return fmt.Errorf("could not create topic: %s", topic)
	}
	return nil
}
