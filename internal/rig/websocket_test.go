package rig

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rbright/fala/internal/emotion"
	"github.com/stretchr/testify/require"
)

func dialHub(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	server := httptest.NewServer(hub)
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readState(t *testing.T, conn *websocket.Conn) State {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	var state State
	require.NoError(t, json.Unmarshal(payload, &state))
	return state
}

func TestHubSendsCurrentPoseOnConnect(t *testing.T) {
	hub := NewHub(nil)
	hub.SetEmotion(emotion.Happy)

	conn := dialHub(t, hub)
	state := readState(t, conn)
	require.Equal(t, emotion.Happy, state.Emotion)
	require.Equal(t, uint64(1), state.Seq)
}

func TestHubBroadcastsUpdates(t *testing.T) {
	hub := NewHub(nil)
	conn := dialHub(t, hub)
	_ = readState(t, conn)

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.SetTalking(true)
	hub.SetTalkVariant(2)

	first := readState(t, conn)
	require.True(t, first.Talking)
	second := readState(t, conn)
	require.Equal(t, 2, second.Variant)
	require.Greater(t, second.Seq, first.Seq)
}

func TestHubForgetsClosedClients(t *testing.T) {
	hub := NewHub(nil)
	conn := dialHub(t, hub)
	_ = readState(t, conn)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}
