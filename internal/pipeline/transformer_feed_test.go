package pipeline_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nceruchalu/go-feed-relay/internal/pipeline"
	"github.com/nceruchalu/go-feed-relay/pkg/feed"
)

func TestEventTransformer(t *testing.T) {
	testCases := []struct {
		name     string
		payload  string
		wantRoom feed.RoomID
		wantData string
		wantErr  error
	}{
		{"numeric room", `{"room": 42, "data": {"verb": "liked"}}`, 42, `{"verb": "liked"}`, nil},
		{"string room", `{"room": "42", "data": [1, 2]}`, 42, `[1, 2]`, nil},
		{"missing data is null", `{"room": 5}`, 5, `null`, nil},
		{"explicit null data", `{"room": 5, "data": null}`, 5, `null`, nil},
		{"scalar data", `{"room": 5, "data": "hello"}`, 5, `"hello"`, nil},
		{"missing room", `{"data": {}}`, 0, "", feed.ErrMissingRoom},
		{"null room", `{"room": null, "data": {}}`, 0, "", feed.ErrMissingRoom},
		{"zero room", `{"room": 0, "data": {}}`, 0, "", feed.ErrMissingRoom},
		{"negative room", `{"room": -3, "data": {}}`, 0, "", feed.ErrMissingRoom},
		{"fractional room", `{"room": 4.5, "data": {}}`, 0, "", feed.ErrMissingRoom},
		{"non-numeric room", `{"room": "abc", "data": {}}`, 0, "", feed.ErrMissingRoom},
		{"not json", `room=4`, 0, "", feed.ErrMalformedEvent},
		{"json array", `[1, 2, 3]`, 0, "", feed.ErrMalformedEvent},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			event, err := pipeline.EventTransformer([]byte(tc.payload))
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				assert.Nil(t, event)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantRoom, event.Room)
			assert.JSONEq(t, tc.wantData, string(event.Data))
		})
	}
}

func TestFeedUpdateFrame(t *testing.T) {
	t.Run("Carries data untouched", func(t *testing.T) {
		frame, err := pipeline.FeedUpdateFrame(&feed.ActivityEvent{Room: 1, Data: []byte(`{"a":[1,{"b":null}]}`)})
		require.NoError(t, err)
		assert.JSONEq(t, `{"event":"feedupdate","data":{"a":[1,{"b":null}]}}`, string(frame))
	})

	t.Run("Empty data becomes null", func(t *testing.T) {
		frame, err := pipeline.FeedUpdateFrame(&feed.ActivityEvent{Room: 1})
		require.NoError(t, err)
		assert.JSONEq(t, `{"event":"feedupdate","data":null}`, string(frame))
	})
}
