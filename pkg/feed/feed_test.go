package feed_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nceruchalu/go-feed-relay/pkg/feed"
)

func TestUserID(t *testing.T) {
	assert.True(t, feed.UserID(1).Valid())
	assert.False(t, feed.UserID(0).Valid())
	assert.False(t, feed.UserID(-4).Valid())
	assert.Equal(t, "42", feed.UserID(42).String())
}

func TestRoomForUser(t *testing.T) {
	assert.Equal(t, feed.RoomID(7), feed.RoomForUser(7))
	assert.Equal(t, "7", feed.RoomForUser(7).String())
}
