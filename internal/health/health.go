// Package health publishes turn readiness over the standard gRPC health protocol.
package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rbright/fala/internal/turn"
)

// Service is the health service name clients may query besides "".
const Service = "fala.Turn"

const defaultInterval = 250 * time.Millisecond

// StatusSource reports controller status.
type StatusSource interface {
	Status() turn.Status
}

// Server mirrors controller readiness into a gRPC health server.
type Server struct {
	source   StatusSource
	health   *grpchealth.Server
	interval time.Duration
	logger   *slog.Logger

	mu   sync.Mutex
	last healthpb.HealthCheckResponse_ServingStatus
}

func New(source StatusSource, logger *slog.Logger) *Server {
	s := &Server{
		source:   source,
		health:   grpchealth.NewServer(),
		interval: defaultInterval,
		logger:   logger,
		last:     healthpb.HealthCheckResponse_UNKNOWN,
	}
	s.Refresh()
	return s
}

// Serving maps a controller status to a health status. Turns in flight still count
// as serving; only a missing handshake or disabled turns do not.
func Serving(status turn.Status) healthpb.HealthCheckResponse_ServingStatus {
	if status.Disabled == "" && status.Backend == turn.BackendInitialized {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}

// Refresh samples the source once and publishes the result.
func (s *Server) Refresh() healthpb.HealthCheckResponse_ServingStatus {
	status := s.source.Status()
	next := Serving(status)

	s.mu.Lock()
	defer s.mu.Unlock()
	if next != s.last {
		s.health.SetServingStatus("", next)
		s.health.SetServingStatus(Service, next)
		if s.logger != nil {
			s.logger.Info("health status changed",
				"status", next.String(),
				"backend", string(status.Backend),
				"disabled", status.Disabled,
			)
		}
		s.last = next
	}
	return next
}

// Serve listens on addr until ctx is canceled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.ServeListener(ctx, listener)
}

// ServeListener serves health checks on listener, refreshing status on an interval.
func (s *Server) ServeListener(ctx context.Context, listener net.Listener) error {
	server := grpc.NewServer()
	healthpb.RegisterHealthServer(server, s.health)

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.health.Shutdown()
				server.GracefulStop()
				return
			case <-ticker.C:
				s.Refresh()
			}
		}
	}()

	if s.logger != nil {
		s.logger.Info("health listener started", "addr", listener.Addr().String())
	}
	err := server.Serve(listener)
	if errors.Is(err, grpc.ErrServerStopped) {
		return nil
	}
	return err
}

// Probe dials addr and asks for the status of service.
func Probe(ctx context.Context, addr string, service string, timeout time.Duration) (healthpb.HealthCheckResponse_ServingStatus, error) {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, fmt.Errorf("dial health %q: %w", addr, err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	conn.Connect()
	if err := waitForReady(ctx, conn); err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, fmt.Errorf("wait for health readiness: %w", err)
	}

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, fmt.Errorf("health check: %w", err)
	}
	return resp.GetStatus(), nil
}

// waitForReady blocks until the connection enters Ready or fails.
func waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Shutdown:
			return errors.New("grpc connection entered shutdown state")
		}

		if !conn.WaitForStateChange(ctx, state) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("grpc readiness wait timed out in state %s", state.String())
		}
	}
}
