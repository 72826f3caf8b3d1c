package pubsub_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	psub "github.com/nceruchalu/go-feed-relay/internal/platform/pubsub"
)

func TestResourceName(t *testing.T) {
	assert.Equal(t, "projects/p/topics/feed", psub.ResourceName("p", "feed", psub.Pub))
	assert.Equal(t, "projects/p/subscriptions/feed-sub", psub.ResourceName("p", "feed-sub", psub.Sub))
	assert.Equal(t, "projects/other/topics/feed", psub.ResourceName("p", "projects/other/topics/feed", psub.Pub))
	assert.Equal(t, "", psub.ResourceName("p", "", psub.Sub))
}
