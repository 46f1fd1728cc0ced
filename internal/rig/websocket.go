package rig

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rbright/fala/internal/emotion"
)

const (
	wsWriteWait   = 5 * time.Second
	wsPongWait    = 60 * time.Second
	wsPingPeriod  = wsPongWait * 9 / 10
	wsSendBacklog = 32
)

// Hub broadcasts rig state to renderer clients over WebSocket. New clients get the
// current pose as their first message. Slow clients are dropped rather than
// blocking the tick loop.
type Hub struct {
	tracker
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

// NewHub constructs an idle hub; mount it with ServeHTTP or run it with Serve.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		tracker: newTracker(),
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Renderers run locally from file:// or dev servers.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*wsClient]struct{}),
	}
}

func (h *Hub) SetTalking(talking bool) {
	h.broadcast(h.apply(func(s *State) { s.Talking = talking }))
}

func (h *Hub) SetEmotion(label emotion.Label) {
	h.broadcast(h.apply(func(s *State) { s.Emotion = label }))
}

func (h *Hub) SetTalkVariant(variant int) {
	h.broadcast(h.apply(func(s *State) { s.Variant = variant }))
}

// State returns the last pose.
func (h *Hub) State() State { return h.current() }

// Clients returns the number of connected renderers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and registers the connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logWarn("rig websocket upgrade failed", "error", err)
		return
	}

	client := &wsClient{conn: conn, send: make(chan []byte, wsSendBacklog)}
	client.send <- h.current().Marshal()

	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()

	go h.writePump(client)
	go h.readPump(client)
}

// Serve listens on addr and serves the hub at path until ctx ends.
func (h *Hub) Serve(ctx context.Context, addr string, path string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen rig websocket %s: %w", addr, err)
	}
	return h.ServeListener(ctx, listener, path)
}

// ServeListener serves on an existing listener.
func (h *Hub) ServeListener(ctx context.Context, listener net.Listener, path string) error {
	mux := http.NewServeMux()
	mux.Handle(path, h)
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		h.closeAll()
	}()

	if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve rig websocket: %w", err)
	}
	return nil
}

func (h *Hub) broadcast(s State) {
	payload := s.Marshal()

	h.mu.Lock()
	var slow []*wsClient
	for client := range h.clients {
		select {
		case client.send <- payload:
		default:
			slow = append(slow, client)
		}
	}
	h.mu.Unlock()

	for _, client := range slow {
		h.logWarn("dropping slow rig client", "remote", client.conn.RemoteAddr().String())
		h.drop(client)
	}
}

func (h *Hub) drop(client *wsClient) {
	h.mu.Lock()
	_, ok := h.clients[client]
	delete(h.clients, client)
	h.mu.Unlock()
	if ok {
		client.once.Do(func() { close(client.send) })
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	clients := make([]*wsClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.Unlock()
	for _, client := range clients {
		h.drop(client)
	}
}

// writePump owns all writes on the connection.
func (h *Hub) writePump(client *wsClient) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		_ = client.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = client.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				h.drop(client)
				return
			}
		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.drop(client)
				return
			}
		}
	}
}

// readPump discards inbound frames and notices disconnects.
func (h *Hub) readPump(client *wsClient) {
	defer h.drop(client)

	client.conn.SetReadLimit(4096)
	_ = client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) logWarn(msg string, args ...any) {
	if h.logger == nil {
		return
	}
	h.logger.Warn(msg, args...)
}
