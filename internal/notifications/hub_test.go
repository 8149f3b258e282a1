package notifications

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_RegisterAndBroadcast(t *testing.T) {
	hub := NewHub()

	a, err := hub.Register("viewer-a", nil)
	require.NoError(t, err)
	anon, err := hub.Register("", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, hub.Count())

	hub.BroadcastAll(`{"type":"post_created"}`)

	assert.Equal(t, `{"type":"post_created"}`, string(<-a.Send))
	assert.Equal(t, `{"type":"post_created"}`, string(<-anon.Send))

	hub.UnregisterClient(a)
	hub.UnregisterClient(a)
	assert.Equal(t, 1, hub.Count())

	_, open := <-a.Send
	assert.False(t, open, "send channel should be closed on unregister")

	require.NoError(t, hub.Shutdown(context.Background()))
	assert.Equal(t, 0, hub.Count())
}

func TestHub_PerViewerLimit(t *testing.T) {
	hub := NewHub()
	for i := 0; i < maxConnsPerViewer; i++ {
		_, err := hub.Register("busy", nil)
		require.NoError(t, err)
	}
	_, err := hub.Register("busy", nil)
	assert.ErrorIs(t, err, ErrViewerFull)

	// Anonymous readers are not capped per key.
	for i := 0; i < maxConnsPerViewer+1; i++ {
		_, err := hub.Register("", nil)
		require.NoError(t, err)
	}

	require.NoError(t, hub.Shutdown(context.Background()))
	_, err = hub.Register("late", nil)
	assert.ErrorIs(t, err, ErrServerFull)
}

func TestClient_TrySendDropsWhenFull(t *testing.T) {
	hub := NewHub()
	c, err := hub.Register("slow", nil)
	require.NoError(t, err)

	for i := 0; i < sendBuffer+5; i++ {
		c.TrySend([]byte("x"))
	}
	assert.Len(t, c.Send, sendBuffer)

	hub.UnregisterClient(c)
	assert.NotPanics(t, func() { c.TrySend([]byte("after close")) })
}

func TestPublish_WithHubFallback(t *testing.T) {
	hub := NewHub()
	c, err := hub.Register("", nil)
	require.NoError(t, err)

	require.NoError(t, Publish(context.Background(), hub, EventPostDeleted, map[string]string{"id": "abc"}))

	var ev struct {
		Type    string            `json:"type"`
		Payload map[string]string `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(<-c.Send, &ev))
	assert.Equal(t, EventPostDeleted, ev.Type)
	assert.Equal(t, "abc", ev.Payload["id"])

	assert.NoError(t, Publish(context.Background(), nil, EventPostDeleted, nil))
}

func TestNotifier_NilRedisIsNoop(t *testing.T) {
	n := NewNotifier(nil)
	assert.NoError(t, n.PublishBroadcast(context.Background(), "payload"))
	assert.NoError(t, n.StartSubscriber(context.Background(), func(string) {}))
}

func TestHub_StartWiringForwardsRedisMessages(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()

	hub := NewHub()
	c, err := hub.Register("", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n := NewNotifier(rdb)
	require.NoError(t, hub.StartWiring(ctx, n))

	// Publish until the subscription is live.
	assert.Eventually(t, func() bool {
		_ = n.PublishBroadcast(context.Background(), "hello")
		select {
		case msg := <-c.Send:
			return string(msg) == "hello"
		default:
			return false
		}
	}, time.Second, 20*time.Millisecond)
}
