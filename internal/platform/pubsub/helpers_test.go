package pubsub_test

import (
	"context"
	"fmt"
	"testing"

	"cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"cloud.google.com/go/pubsub/v2/pstest"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const projectID = "test-project"

// newTestClient creates a real client connected to the v2 pstest in-memory server.
func newTestClient(t *testing.T) *pubsub.Client {
	t.Helper()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	// Create client with context.Background() to prevent cleanup race
	client, err := pubsub.NewClient(context.Background(), projectID, option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func topicName(id string) string { return fmt.Sprintf("projects/%s/topics/%s", projectID, id) }

func subName(id string) string { return fmt.Sprintf("projects/%s/subscriptions/%s", projectID, id) }

func createTopic(ctx context.Context, t *testing.T, client *pubsub.Client, id string) string {
	t.Helper()
	name := topicName(id)
	_, err := client.TopicAdminClient.CreateTopic(ctx, &pubsubpb.Topic{Name: name})
	require.NoError(t, err)
	return name
}
