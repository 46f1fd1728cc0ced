// Package playback plays decoded clips (filler, replies, fallback) one at a time.
package playback

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/rbright/fala/internal/audio"
)

// ErrNoOutput reports a player constructed without an audio output.
var ErrNoOutput = errors.New("playback output unavailable")

// Output renders one clip, pulling samples from fill until it returns io.EOF, and
// blocks until the device has drained them.
type Output func(clip audio.Clip, fill func([]int16) (int, error)) error

// Player owns at most one playing clip. Starting a clip stops the previous one;
// a stopped clip never reports completion.
type Player struct {
	out    Output
	logger *slog.Logger

	mu     sync.Mutex
	active *session
}

type session struct {
	stopped atomic.Bool
	cursor  int
}

// New constructs a player on out.
func New(out Output, logger *slog.Logger) *Player {
	return &Player{out: out, logger: logger}
}

// Play starts clip in the background. done runs on the playback goroutine with the
// output error (nil when the clip played to the end) unless Stop or another Play
// supersedes it first.
func (p *Player) Play(clip audio.Clip, done func(error)) error {
	if clip.Frames() == 0 {
		return errors.New("clip has no frames")
	}
	if p.out == nil {
		return ErrNoOutput
	}

	s := &session{}
	p.mu.Lock()
	if p.active != nil {
		p.active.stopped.Store(true)
	}
	p.active = s
	p.mu.Unlock()

	go func() {
		err := p.out(clip, func(buf []int16) (int, error) {
			if s.stopped.Load() || s.cursor >= len(clip.Samples) {
				return 0, io.EOF
			}
			n := copy(buf, clip.Samples[s.cursor:])
			s.cursor += n
			if s.cursor >= len(clip.Samples) {
				return n, io.EOF
			}
			return n, nil
		})

		p.mu.Lock()
		current := p.active == s
		if current {
			p.active = nil
		}
		p.mu.Unlock()

		if err != nil {
			p.logDebug("playback ended with error", "error", err, "superseded", !current)
		}
		if current && !s.stopped.Load() && done != nil {
			done(err)
		}
	}()
	return nil
}

// Stop silences the current clip and reports whether one was playing.
func (p *Player) Stop() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active == nil {
		return false
	}
	p.active.stopped.Store(true)
	p.active = nil
	return true
}

// Playing reports whether a clip is in progress.
func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active != nil
}

func (p *Player) logDebug(msg string, args ...any) {
	if p.logger == nil {
		return
	}
	p.logger.Debug(msg, args...)
}
