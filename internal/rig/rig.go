// Package rig implements animation sinks: the places the avatar's talking flag,
// emotion and talk variant are sent.
package rig

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/rbright/fala/internal/emotion"
)

// Sink accepts rig updates. Calls arrive from the tick loop.
type Sink interface {
	SetTalking(talking bool)
	SetEmotion(label emotion.Label)
	SetTalkVariant(variant int)
}

// State is the full rig pose after one update.
type State struct {
	Talking bool          `json:"talking"`
	Emotion emotion.Label `json:"emotion"`
	Variant int           `json:"talk_variant"`
	Seq     uint64        `json:"seq"`
	At      time.Time     `json:"at"`
}

// Marshal renders the state as one JSON document.
func (s State) Marshal() []byte {
	data, _ := json.Marshal(s)
	return data
}

// tracker accumulates updates into a State.
type tracker struct {
	mu    sync.Mutex
	state State
	now   func() time.Time
}

func newTracker() tracker {
	return tracker{state: State{Emotion: emotion.Neutral}, now: time.Now}
}

func (t *tracker) apply(mutate func(*State)) State {
	t.mu.Lock()
	defer t.mu.Unlock()
	mutate(&t.state)
	t.state.Seq++
	t.state.At = t.now().UTC()
	return t.state
}

func (t *tracker) current() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Multi forwards every update to each sink in order.
type Multi []Sink

func (m Multi) SetTalking(talking bool) {
	for _, s := range m {
		s.SetTalking(talking)
	}
}

func (m Multi) SetEmotion(label emotion.Label) {
	for _, s := range m {
		s.SetEmotion(label)
	}
}

func (m Multi) SetTalkVariant(variant int) {
	for _, s := range m {
		s.SetTalkVariant(variant)
	}
}

// LogSink writes each update as a debug record.
type LogSink struct {
	logger *slog.Logger
	tracker
}

// NewLogSink builds a sink that only logs.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger, tracker: newTracker()}
}

func (l *LogSink) SetTalking(talking bool) {
	l.log(l.apply(func(s *State) { s.Talking = talking }))
}

func (l *LogSink) SetEmotion(label emotion.Label) {
	l.log(l.apply(func(s *State) { s.Emotion = label }))
}

func (l *LogSink) SetTalkVariant(variant int) {
	l.log(l.apply(func(s *State) { s.Variant = variant }))
}

// State returns the last pose.
func (l *LogSink) State() State { return l.current() }

func (l *LogSink) log(s State) {
	if l.logger == nil {
		return
	}
	l.logger.Debug("rig update",
		"talking", s.Talking,
		"emotion", s.Emotion,
		"talk_variant", s.Variant,
		"seq", s.Seq,
	)
}
