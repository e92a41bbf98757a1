package web

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/mediamgr/internal/manager"
)

func TestHub_StreamsNotifications(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.clientCount() == 1 }, 5*time.Second, 10*time.Millisecond)

	hub.Notify(manager.Notification{Topic: manager.TopicRequest, WindowID: 3, Origin: "https://a.example", CallID: "c1", Video: true})

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var got manager.Notification
	require.NoError(t, conn.ReadJSON(&got))
	require.Equal(t, manager.TopicRequest, got.Topic)
	require.Equal(t, uint64(3), got.WindowID)
	require.Equal(t, "c1", got.CallID)
	require.True(t, got.Video)

	conn.Close()
	require.Eventually(t, func() bool { return hub.clientCount() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestHub_RecentNewestFirst(t *testing.T) {
	hub := NewHub(nil)
	for i := range recentEvents + 5 {
		hub.Notify(manager.Notification{Topic: manager.TopicDeviceEvents, WindowID: uint64(i)})
	}

	recent := hub.Recent()
	require.Len(t, recent, recentEvents)
	require.Equal(t, uint64(recentEvents+4), recent[0].WindowID)
	require.Equal(t, uint64(5), recent[len(recent)-1].WindowID)
}

func TestHub_CloseRefusesClients(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.clientCount() == 1 }, 5*time.Second, 10*time.Millisecond)

	hub.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)

	conn2, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err == nil {
		_ = conn2.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, _, err = conn2.ReadMessage()
		conn2.Close()
	}
	require.Error(t, err)
}
