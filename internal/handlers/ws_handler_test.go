package handlers

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ttl-cache-store/internal/cache"
	"ttl-cache-store/internal/realtime"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func TestWSHandler_StreamsEvents(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := realtime.NewHub(nil)

	r := gin.New()
	r.GET("/ws", func(c *gin.Context) { c.Set("username", "admin") }, NewWSHandler(hub, nil).Subscribe)
	srv := httptest.NewServer(r)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Len() == 1 }, time.Second, 10*time.Millisecond)

	hub.Notify(cache.Event{Op: cache.OpWrite, Key: "k", Count: 1, At: base})

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	var got cache.Event
	require.NoError(t, conn.ReadJSON(&got))
	require.Equal(t, cache.OpWrite, got.Op)
	require.Equal(t, "k", got.Key)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Len() == 0 }, time.Second, 10*time.Millisecond)
}

func TestWSHandler_RequiresUser(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ws", NewWSHandler(realtime.NewHub(nil), nil).Subscribe)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/ws", nil))
	require.Equal(t, 401, w.Code)
}
