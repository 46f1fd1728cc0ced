package metrics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/rbright/fala/internal/fsm"
	"github.com/rbright/fala/internal/inference"
	"github.com/rbright/fala/internal/turn"
)

var _ turn.Metrics = (*Recorder)(nil)

func TestNewStartsIdleAndUninitialized(t *testing.T) {
	r := New()
	require.Equal(t, 1.0, testutil.ToFloat64(r.state.WithLabelValues("idle")))
	require.Equal(t, 0.0, testutil.ToFloat64(r.state.WithLabelValues("recording")))
	require.Equal(t, 1.0, testutil.ToFloat64(r.backend.WithLabelValues("uninitialized")))
}

func TestStateChangedIsOneHot(t *testing.T) {
	r := New()
	r.StateChanged(fsm.StateAwaitingResponse)

	var total float64
	for _, s := range fsm.States() {
		total += testutil.ToFloat64(r.state.WithLabelValues(string(s)))
	}
	require.Equal(t, 1.0, total)
	require.Equal(t, 1.0, testutil.ToFloat64(r.state.WithLabelValues("awaiting_response")))

	r.BackendChanged(turn.BackendInitialized)
	require.Equal(t, 0.0, testutil.ToFloat64(r.backend.WithLabelValues("uninitialized")))
	require.Equal(t, 1.0, testutil.ToFloat64(r.backend.WithLabelValues("initialized")))
}

func TestTurnAndExchangeCounters(t *testing.T) {
	r := New()
	r.TurnFinished(turn.OutcomeResponded, 2*time.Second)
	r.TurnFinished(turn.OutcomeResponded, time.Second)
	r.TurnFinished(turn.OutcomeEmptyAudio, 10*time.Millisecond)
	require.Equal(t, 2.0, testutil.ToFloat64(r.turns.WithLabelValues("responded")))
	require.Equal(t, 1.0, testutil.ToFloat64(r.turns.WithLabelValues("empty_audio")))
	require.Equal(t, 1, testutil.CollectAndCount(r.turnDuration))

	r.Exchange(time.Second, nil)
	r.Exchange(time.Second, &inference.NetworkError{Op: "interact", Kind: inference.KindNotInitialized, StatusCode: 403})
	r.Exchange(time.Second, fmt.Errorf("wrap: %w", inference.ErrResponseDecode))
	r.Exchange(time.Second, errors.New("boom"))
	require.Equal(t, 1.0, testutil.ToFloat64(r.exchanges.WithLabelValues("ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(r.exchanges.WithLabelValues("not_initialized")))
	require.Equal(t, 1.0, testutil.ToFloat64(r.exchanges.WithLabelValues("decode")))
	require.Equal(t, 1.0, testutil.ToFloat64(r.exchanges.WithLabelValues("transport")))

	r.InitializationAttempt(nil)
	r.InitializationAttempt(errors.New("refused"))
	r.InitializationAttempt(errors.New("refused"))
	require.Equal(t, 1.0, testutil.ToFloat64(r.initAttempts.WithLabelValues("ok")))
	require.Equal(t, 2.0, testutil.ToFloat64(r.initAttempts.WithLabelValues("error")))
}

func TestHandlerExposesSeries(t *testing.T) {
	r := New()
	r.Captured(16000)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.Contains(t, body, `fala_turn_state{state="idle"} 1`)
	require.Contains(t, body, "fala_captured_frames_count 1")
	require.Contains(t, body, "go_goroutines")
}

func TestServeListenerStopsOnCancel(t *testing.T) {
	r := New()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- r.ServeListener(ctx, listener, nil) }()

	url := "http://" + listener.Addr().String() + "/metrics"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("metrics server did not stop")
	}
}
