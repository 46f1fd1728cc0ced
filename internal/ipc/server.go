package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"
)

const (
	maxRequestBytes    = 4 << 10
	defaultReadTimeout = 2 * time.Second
)

// Handler processes one IPC command request.
type Handler interface {
	Handle(context.Context, Request) Response
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(context.Context, Request) Response

func (f HandlerFunc) Handle(ctx context.Context, req Request) Response {
	return f(ctx, req)
}

// Server answers one request per connection. Unknown commands are rejected without
// reaching the Handler.
type Server struct {
	Handler     Handler
	Logger      *slog.Logger
	ReadTimeout time.Duration
}

// Serve runs a Server with defaults for handler.
func Serve(ctx context.Context, listener net.Listener, handler Handler) error {
	return (&Server{Handler: handler}).Serve(ctx, listener)
}

// Serve accepts clients until ctx is canceled or the listener closes, then waits for
// in-flight requests.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	var wg sync.WaitGroup

	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				wg.Wait()
				return nil
			}
			return fmt.Errorf("accept IPC connection: %w", err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer conn.Close()
			s.serveConn(ctx, conn)
		}()
	}
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	timeout := s.ReadTimeout
	if timeout <= 0 {
		timeout = defaultReadTimeout
	}
	_ = conn.SetReadDeadline(time.Now().Add(timeout))

	reply := func(resp Response) {
		_ = conn.SetReadDeadline(time.Time{})
		_ = json.NewEncoder(conn).Encode(resp)
	}

	line, err := bufio.NewReader(io.LimitReader(conn, maxRequestBytes)).ReadBytes('\n')
	if err != nil {
		reply(Response{OK: false, Error: fmt.Sprintf("read request: %v", err)})
		return
	}

	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		reply(Response{OK: false, Error: fmt.Sprintf("decode request: %v", err)})
		return
	}
	if !KnownCommand(req.Command) {
		reply(Response{OK: false, Error: fmt.Sprintf("unknown command: %q", req.Command)})
		return
	}

	started := time.Now()
	resp := s.Handler.Handle(ctx, req)
	reply(resp)

	if s.Logger != nil {
		s.Logger.Debug("ipc command handled",
			"command", req.Command,
			"ok", resp.OK,
			"state", resp.State,
			"elapsed_ms", time.Since(started).Milliseconds(),
		)
	}
}
