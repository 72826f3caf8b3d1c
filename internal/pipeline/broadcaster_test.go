package pipeline_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nceruchalu/go-feed-relay/internal/pipeline"
	"github.com/nceruchalu/go-feed-relay/internal/test/fakes"
	"github.com/nceruchalu/go-feed-relay/pkg/feed"
)

// recordingFanout captures every broadcast.
type recordingFanout struct {
	mu      sync.Mutex
	sent    map[feed.RoomID][][]byte
	dropped int
	notify  chan struct{}
}

func newRecordingFanout() *recordingFanout {
	return &recordingFanout{sent: make(map[feed.RoomID][][]byte), notify: make(chan struct{}, 64)}
}

func (f *recordingFanout) Broadcast(room feed.RoomID, frame []byte) (int, int) {
	f.mu.Lock()
	f.sent[room] = append(f.sent[room], frame)
	dropped := f.dropped
	f.mu.Unlock()
	f.notify <- struct{}{}
	return 1, dropped
}

func (f *recordingFanout) frames(room feed.RoomID) [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.sent[room]...)
}

func fastConfig() pipeline.BroadcasterConfig {
	return pipeline.BroadcasterConfig{
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}
}

func waitFor(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestFeedBroadcaster_HandleEvent(t *testing.T) {
	source := fakes.NewInMemorySource(zerolog.Nop())
	fanout := newRecordingFanout()
	b := pipeline.NewFeedBroadcaster(source, fanout, fastConfig(), zerolog.Nop())

	b.HandleEvent([]byte(`{"room": 3, "data": {"n": 1}}`))
	b.HandleEvent([]byte(`{"data": {"n": 2}}`))
	b.HandleEvent([]byte(`garbage`))

	frames := fanout.frames(3)
	require.Len(t, frames, 1)
	assert.JSONEq(t, `{"event":"feedupdate","data":{"n":1}}`, string(frames[0]))

	stats := b.Stats()
	assert.Equal(t, uint64(3), stats.Received)
	assert.Equal(t, uint64(2), stats.Discarded)
	assert.Equal(t, uint64(1), stats.Delivered)
	assert.Equal(t, feed.StateDisconnected, stats.State)
}

func TestFeedBroadcaster_Run(t *testing.T) {
	t.Run("Retries readiness then relays in order", func(t *testing.T) {
		source := fakes.NewInMemorySource(zerolog.Nop())
		source.FailReady(3)
		fanout := newRecordingFanout()
		b := pipeline.NewFeedBroadcaster(source, fanout, fastConfig(), zerolog.Nop())

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- b.Run(ctx) }()

		waitFor(t, source.Subscribed(), "subscription")
		assert.GreaterOrEqual(t, source.ReadyCalls(), 4)
		require.Eventually(t, func() bool { return b.State() == feed.StateSubscribed }, 5*time.Second, 5*time.Millisecond)

		for _, p := range []string{`{"room":9,"data":1}`, `{"room":9,"data":2}`, `{"room":9,"data":3}`} {
			require.NoError(t, source.Publish(ctx, []byte(p)))
		}
		for i := 0; i < 3; i++ {
			waitFor(t, fanout.notify, "broadcast")
		}

		frames := fanout.frames(9)
		require.Len(t, frames, 3)
		assert.JSONEq(t, `{"event":"feedupdate","data":1}`, string(frames[0]))
		assert.JSONEq(t, `{"event":"feedupdate","data":2}`, string(frames[1]))
		assert.JSONEq(t, `{"event":"feedupdate","data":3}`, string(frames[2]))

		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("Run did not stop")
		}
		assert.Equal(t, feed.StateDisconnected, b.State())
	})

	t.Run("Resubscribes after the stream is lost", func(t *testing.T) {
		source := fakes.NewInMemorySource(zerolog.Nop())
		fanout := newRecordingFanout()
		b := pipeline.NewFeedBroadcaster(source, fanout, fastConfig(), zerolog.Nop())

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() { _ = b.Run(ctx) }()

		waitFor(t, source.Subscribed(), "first subscription")
		source.EndStream()
		waitFor(t, source.Subscribed(), "second subscription")
		assert.Equal(t, 2, source.Subscribes())

		require.NoError(t, source.Publish(ctx, []byte(`{"room":1,"data":"again"}`)))
		waitFor(t, fanout.notify, "broadcast")
		assert.Len(t, fanout.frames(1), 1)
	})

	t.Run("Gives up after the ready timeout", func(t *testing.T) {
		source := fakes.NewInMemorySource(zerolog.Nop())
		source.FailReady(1 << 30)
		cfg := fastConfig()
		cfg.ReadyTimeout = 50 * time.Millisecond
		b := pipeline.NewFeedBroadcaster(source, newRecordingFanout(), cfg, zerolog.Nop())

		err := b.Run(context.Background())
		require.Error(t, err)
		assert.True(t, errors.Is(err, feed.ErrUpstreamNotReady))
		assert.Equal(t, feed.StateDisconnected, b.State())
	})

	t.Run("Stops quietly when cancelled while not ready", func(t *testing.T) {
		source := fakes.NewInMemorySource(zerolog.Nop())
		source.FailReady(1 << 30)
		b := pipeline.NewFeedBroadcaster(source, newRecordingFanout(), fastConfig(), zerolog.Nop())

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		require.NoError(t, b.Run(ctx))
	})
}

// deadStreamSource is always ready, but every stream it hands out is
// already closed.
type deadStreamSource struct {
	subscribes atomic.Int64
}

func (s *deadStreamSource) Ready(context.Context) error { return nil }

func (s *deadStreamSource) Subscribe(context.Context) (<-chan []byte, error) {
	s.subscribes.Add(1)
	stream := make(chan []byte)
	close(stream)
	return stream, nil
}

func (s *deadStreamSource) Close() error { return nil }

func TestFeedBroadcaster_DeadStreamBacksOff(t *testing.T) {
	source := &deadStreamSource{}
	cfg := pipeline.BroadcasterConfig{
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     200 * time.Millisecond,
	}
	b := pipeline.NewFeedBroadcaster(source, newRecordingFanout(), cfg, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	require.NoError(t, b.Run(ctx))

	// The first wait is at least 25ms and each later one grows, so a
	// handful of resubscribes fit in the window, never thousands.
	calls := source.subscribes.Load()
	assert.GreaterOrEqual(t, calls, int64(2))
	assert.LessOrEqual(t, calls, int64(20))
	assert.Equal(t, feed.StateDisconnected, b.State())
}

func TestFeedBroadcaster_HealthyStreamResetsBackoff(t *testing.T) {
	source := fakes.NewInMemorySource(zerolog.Nop())
	fanout := newRecordingFanout()
	cfg := pipeline.BroadcasterConfig{
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Hour,
	}
	b := pipeline.NewFeedBroadcaster(source, fanout, cfg, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = b.Run(ctx) }()

	// Streams that relayed an event are resubscribed without growing waits.
	for i := 0; i < 5; i++ {
		waitFor(t, source.Subscribed(), "subscription")
		require.NoError(t, source.Publish(ctx, []byte(`{"room":4,"data":"x"}`)))
		waitFor(t, fanout.notify, "broadcast")
		source.EndStream()
	}
	waitFor(t, source.Subscribed(), "final subscription")
	assert.Equal(t, 6, source.Subscribes())
}
