package realtime

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"ttl-cache-store/internal/cache"

	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	mu       sync.Mutex
	messages [][]byte
	full     bool
	closed   bool
}

func (c *fakeClient) Send(message []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full {
		return false
	}
	c.messages = append(c.messages, message)
	return true
}

func (c *fakeClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func TestHub_RegisterUnregister(t *testing.T) {
	hub := NewHub(nil)
	a, b := &fakeClient{}, &fakeClient{}

	hub.Register("admin", a)
	hub.Register("admin", b)
	require.Equal(t, 2, hub.Len())

	hub.Unregister(a)
	hub.Unregister(a)
	require.Equal(t, 1, hub.Len())
}

func TestHub_NotifyBroadcastsJSON(t *testing.T) {
	hub := NewHub(nil)
	a, b := &fakeClient{}, &fakeClient{}
	hub.Register("admin", a)
	hub.Register("ops", b)

	at := time.Date(2012, 1, 1, 15, 0, 0, 0, time.UTC)
	hub.Notify(cache.Event{Op: cache.OpCleanup, Count: 3, At: at})

	for _, c := range []*fakeClient{a, b} {
		require.Len(t, c.messages, 1)
		var got cache.Event
		require.NoError(t, json.Unmarshal(c.messages[0], &got))
		require.Equal(t, cache.OpCleanup, got.Op)
		require.EqualValues(t, 3, got.Count)
		require.True(t, at.Equal(got.At))
	}
}

func TestHub_DropsSlowClients(t *testing.T) {
	hub := NewHub(nil)
	ok, slow := &fakeClient{}, &fakeClient{full: true}
	hub.Register("admin", ok)
	hub.Register("admin", slow)

	require.Equal(t, 1, hub.Broadcast([]byte(`{}`)))
	require.Equal(t, 1, hub.Len())
	require.True(t, slow.closed)
	require.False(t, ok.closed)
}
