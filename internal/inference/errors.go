package inference

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Failure classes for exchanges with the inference service.
var (
	ErrTimeout        = errors.New("inference request timed out")
	ErrTransport      = errors.New("inference transport failure")
	ErrNotInitialized = errors.New("inference service not initialized")
	ErrServer         = errors.New("inference service error")
	ErrResponseDecode = errors.New("inference response unusable")
)

// Kind names a NetworkError class.
type Kind string

const (
	KindTimeout        Kind = "timeout"
	KindTransport      Kind = "transport"
	KindNotInitialized Kind = "not_initialized"
	KindServer         Kind = "server"
)

// NetworkError is a failed exchange. errors.Is matches it against the sentinel for
// its Kind.
type NetworkError struct {
	Op         string
	Kind       Kind
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("%s: %s (HTTP %d): %v", e.Op, e.Kind, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: %s (HTTP %d)", e.Op, e.Kind, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
}

func (e *NetworkError) Unwrap() error { return e.Err }

func (e *NetworkError) Is(target error) bool {
	switch e.Kind {
	case KindTimeout:
		return target == ErrTimeout
	case KindTransport:
		return target == ErrTransport
	case KindNotInitialized:
		return target == ErrNotInitialized
	case KindServer:
		return target == ErrServer
	default:
		return false
	}
}

// classifyTransport sorts a client.Do failure into timeout or transport.
func classifyTransport(op string, err error) *NetworkError {
	kind := KindTransport
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = KindTimeout
	}
	return &NetworkError{Op: op, Kind: kind, Err: err}
}

// classifyStatus maps a non-2xx status. 403 is the service's "call initialize
// first" answer.
func classifyStatus(op string, status int, detail string) *NetworkError {
	kind := KindServer
	if status == 403 {
		kind = KindNotInitialized
	}
	var err error
	if detail != "" {
		err = errors.New(detail)
	}
	return &NetworkError{Op: op, Kind: kind, StatusCode: status, Err: err}
}
