package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/nceruchalu/go-feed-relay/pkg/feed"
)

// wireEvent mirrors the upstream message shape: {"room": <id>, "data": <any>}.
type wireEvent struct {
	Room json.RawMessage `json:"room"`
	Data json.RawMessage `json:"data"`
}

var jsonNull = json.RawMessage("null")

// EventTransformer unmarshals a raw upstream payload into an ActivityEvent.
//
// The room may be a JSON number or a numeric string. A room that is absent,
// null, non-integer or not positive yields feed.ErrMissingRoom; a payload
// that is not a JSON object yields feed.ErrMalformedEvent.
func EventTransformer(payload []byte) (*feed.ActivityEvent, error) {
	var raw wireEvent
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", feed.ErrMalformedEvent, err)
	}

	room, ok := parseRoom(raw.Room)
	if !ok {
		return nil, feed.ErrMissingRoom
	}

	data := raw.Data
	if len(data) == 0 {
		data = jsonNull
	}
	return &feed.ActivityEvent{Room: room, Data: data}, nil
}

func parseRoom(raw json.RawMessage) (feed.RoomID, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, jsonNull) {
		return 0, false
	}

	var text string
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return 0, false
		}
		text = strings.TrimSpace(text)
	} else {
		text = string(raw)
	}

	id, err := strconv.ParseInt(text, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return feed.RoomID(id), true
}

// clientFrame is the envelope of every server -> client message.
type clientFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// FeedUpdateFrame encodes the feedupdate frame carrying the event's data.
func FeedUpdateFrame(event *feed.ActivityEvent) ([]byte, error) {
	data := event.Data
	if len(data) == 0 {
		data = jsonNull
	}
	frame, err := json.Marshal(clientFrame{Event: feed.EventFeedUpdate, Data: data})
	if err != nil {
		return nil, fmt.Errorf("failed to encode feedupdate frame for room %s: %w", event.Room, err)
	}
	return frame, nil
}
