// Package tick provides the single logical scheduler that serializes every turn-state
// mutation and timer callback in the process.
package tick

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrClosed is returned when work is posted to a loop that has stopped running.
var ErrClosed = errors.New("tick loop closed")

// Loop executes posted functions one at a time in FIFO order on whichever goroutine
// calls Run (or RunPending). Work posted from a loop callback runs on a later tick.
type Loop struct {
	clock Clock

	mu      sync.Mutex
	queue   []func()
	closed  bool
	running bool
	wake    chan struct{}
}

// New constructs a loop. A nil clock selects SystemClock.
func New(clock Clock) *Loop {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Loop{clock: clock, wake: make(chan struct{}, 1)}
}

// Clock returns the loop's time source.
func (l *Loop) Clock() Clock {
	return l.clock
}

// Post enqueues fn for the next tick.
func (l *Loop) Post(fn func()) error {
	if fn == nil {
		return nil
	}
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return nil
}

// Do posts fn and blocks until it has run, ctx ends, or the loop closes.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if err := l.Post(func() {
		defer close(done)
		fn()
	}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drains posted work until ctx is cancelled. Pending work is discarded on exit.
func (l *Loop) Run(ctx context.Context) error {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return errors.New("tick loop already running")
	}
	l.running = true
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.closed = true
		l.running = false
		l.queue = nil
		l.mu.Unlock()
	}()

	for {
		l.RunPending()
		select {
		case <-ctx.Done():
			return nil
		case <-l.wake:
		}
	}
}

// RunPending executes queued work until the queue is empty and returns how many
// functions ran. Tests drive the loop with it instead of Run.
func (l *Loop) RunPending() int {
	ran := 0
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			l.mu.Unlock()
			return ran
		}
		fn := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		fn()
		ran++
	}
}

// NewSlot returns an empty timer slot bound to this loop.
func (l *Loop) NewSlot() *Slot {
	return &Slot{loop: l}
}

// Slot holds at most one pending timer. Starting a timer cancels the previous one
// first; a generation counter makes any already-queued fire of a superseded or
// cancelled timer a no-op. Slot methods must be called from the loop.
type Slot struct {
	loop *Loop
	gen  uint64
	live bool
	stop Stopper
}

// Start cancels any pending timer in the slot, then schedules fn after d.
func (s *Slot) Start(d time.Duration, fn func()) {
	s.Cancel()

	s.gen++
	gen := s.gen
	s.live = true
	s.stop = s.loop.clock.AfterFunc(d, func() {
		_ = s.loop.Post(func() {
			if !s.live || s.gen != gen {
				return
			}
			s.live = false
			s.stop = nil
			fn()
		})
	})
}

// Cancel discards the pending timer, if any. Its callback will never run.
func (s *Slot) Cancel() {
	s.gen++
	s.live = false
	if s.stop != nil {
		s.stop.Stop()
		s.stop = nil
	}
}

// Live reports whether a timer is pending.
func (s *Slot) Live() bool {
	return s.live
}
