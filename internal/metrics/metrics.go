// Package metrics exports controller activity as Prometheus series.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rbright/fala/internal/fsm"
	"github.com/rbright/fala/internal/inference"
	"github.com/rbright/fala/internal/turn"
)

const (
	namespace         = "fala"
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 2 * time.Second
)

var backends = []turn.Backend{
	turn.BackendUninitialized,
	turn.BackendInitializing,
	turn.BackendInitialized,
	turn.BackendFailed,
}

// Recorder implements turn.Metrics on a private registry.
type Recorder struct {
	registry *prometheus.Registry

	state          *prometheus.GaugeVec
	backend        *prometheus.GaugeVec
	turns          *prometheus.CounterVec
	turnDuration   prometheus.Histogram
	exchanges      *prometheus.CounterVec
	exchangeTime   prometheus.Histogram
	capturedFrames prometheus.Histogram
	initAttempts   *prometheus.CounterVec
}

// New builds a Recorder with Go runtime and process collectors attached.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "turn_state",
			Help:      "1 for the current turn lifecycle state, 0 otherwise.",
		}, []string{"state"}),
		backend: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "backend_state",
			Help:      "1 for the current inference handshake state, 0 otherwise.",
		}, []string{"backend"}),
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Completed turns by outcome.",
		}, []string{"outcome"}),
		turnDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Time from recording start to turn completion.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
		exchanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exchanges_total",
			Help:      "Inference exchanges by result.",
		}, []string{"result"}),
		exchangeTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "exchange_duration_seconds",
			Help:      "Latency of inference exchanges.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		capturedFrames: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "captured_frames",
			Help:      "Frames extracted per recording.",
			Buckets:   prometheus.ExponentialBuckets(1600, 2, 10),
		}),
		initAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "initialization_attempts_total",
			Help:      "Inference initialization attempts by result.",
		}, []string{"result"}),
	}

	r.registry.MustRegister(
		r.state, r.backend, r.turns, r.turnDuration,
		r.exchanges, r.exchangeTime, r.capturedFrames, r.initAttempts,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	r.StateChanged(fsm.StateIdle)
	r.BackendChanged(turn.BackendUninitialized)
	return r
}

// Registry exposes the underlying registry for handlers and tests.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

func (r *Recorder) StateChanged(state fsm.State) {
	for _, s := range fsm.States() {
		r.state.WithLabelValues(string(s)).Set(boolGauge(s == state))
	}
}

func (r *Recorder) BackendChanged(backend turn.Backend) {
	for _, b := range backends {
		r.backend.WithLabelValues(string(b)).Set(boolGauge(b == backend))
	}
}

func (r *Recorder) TurnFinished(outcome turn.Outcome, elapsed time.Duration) {
	r.turns.WithLabelValues(string(outcome)).Inc()
	r.turnDuration.Observe(elapsed.Seconds())
}

func (r *Recorder) Exchange(latency time.Duration, err error) {
	r.exchanges.WithLabelValues(exchangeResult(err)).Inc()
	r.exchangeTime.Observe(latency.Seconds())
}

func (r *Recorder) Captured(frames int) {
	r.capturedFrames.Observe(float64(frames))
}

func (r *Recorder) InitializationAttempt(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.initAttempts.WithLabelValues(result).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Serve exposes /metrics on addr until ctx is canceled.
func (r *Recorder) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return r.ServeListener(ctx, listener, logger)
}

// ServeListener is Serve on an existing listener.
func (r *Recorder) ServeListener(ctx context.Context, listener net.Listener, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())

	server := &http.Server{Handler: mux, ReadHeaderTimeout: readHeaderTimeout}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if logger != nil {
		logger.Info("metrics listener started", "addr", listener.Addr().String())
	}
	err := server.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func exchangeResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, inference.ErrTimeout):
		return "timeout"
	case errors.Is(err, inference.ErrNotInitialized):
		return "not_initialized"
	case errors.Is(err, inference.ErrServer):
		return "server"
	case errors.Is(err, inference.ErrResponseDecode):
		return "decode"
	default:
		return "transport"
	}
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
