// Package turn owns the conversational turn lifecycle: record, send, answer, animate.
package turn

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rbright/fala/internal/audio"
	"github.com/rbright/fala/internal/config"
	"github.com/rbright/fala/internal/emotion"
	"github.com/rbright/fala/internal/events"
	"github.com/rbright/fala/internal/fsm"
	"github.com/rbright/fala/internal/inference"
	"github.com/rbright/fala/internal/pipeline"
)

var (
	// ErrConfiguration marks a missing local component. Turns stay disabled for the
	// rest of the process lifetime once it is raised.
	ErrConfiguration          = errors.New("configuration error")
	ErrInitializationRequired = errors.New("inference service is not initialized")
	ErrBusy                   = errors.New("turn in progress")
)

// Backend is the state of the inference service handshake.
type Backend string

const (
	BackendUninitialized Backend = "uninitialized"
	BackendInitializing  Backend = "initializing"
	BackendInitialized   Backend = "initialized"
	BackendFailed        Backend = "failed"
)

// Outcome labels how a turn ended.
type Outcome string

const (
	OutcomeResponded        Outcome = "responded"
	OutcomeNoVerbalResponse Outcome = "no_verbal_response"
	OutcomeEmptyAudio       Outcome = "empty_audio"
	OutcomeCaptureFailed    Outcome = "capture_failed"
	OutcomeFallback         Outcome = "fallback"
	OutcomeNotInitialized   Outcome = "not_initialized"
	OutcomeAborted          Outcome = "aborted"
)

// Recorder captures one recording window.
type Recorder interface {
	Begin(ctx context.Context) error
	Finish(ctx context.Context) (pipeline.Result, error)
	Abort()
}

// Service is the remote inference exchange.
type Service interface {
	Initialize(ctx context.Context) error
	Interact(ctx context.Context, requestID string, wav []byte) (inference.Reply, error)
}

// Player plays one clip at a time. done is not called for a clip that was stopped.
type Player interface {
	Play(clip audio.Clip, done func(error)) error
	Stop() bool
}

// Metrics observes controller activity.
type Metrics interface {
	StateChanged(state fsm.State)
	BackendChanged(backend Backend)
	TurnFinished(outcome Outcome, elapsed time.Duration)
	Exchange(latency time.Duration, err error)
	Captured(frames int)
	InitializationAttempt(err error)
}

// EmotionDisplay shows turn events and owns the active emotion, including changes
// it makes on its own such as decay. The animation engine is the production display.
type EmotionDisplay interface {
	events.Observer
	Active() emotion.Label
	OnEmotionChange(fn func(emotion.Label))
}

// emotionTracker stands in for a display when no rig is attached.
type emotionTracker struct {
	active  emotion.Label
	changed func(emotion.Label)
}

func (t *emotionTracker) Active() emotion.Label { return t.active }

func (t *emotionTracker) OnEmotionChange(fn func(emotion.Label)) { t.changed = fn }

func (t *emotionTracker) EmotionDetected(label emotion.Label) { t.set(label) }

func (t *emotionTracker) TalkingStateChanged(talking bool) {
	if !talking {
		t.set(emotion.Neutral)
	}
}

func (t *emotionTracker) set(label emotion.Label) {
	t.active = label
	if t.changed != nil {
		t.changed(label)
	}
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) StateChanged(fsm.State)              {}
func (NopMetrics) BackendChanged(Backend)              {}
func (NopMetrics) TurnFinished(Outcome, time.Duration) {}
func (NopMetrics) Exchange(time.Duration, error)       {}
func (NopMetrics) Captured(int)                        {}
func (NopMetrics) InitializationAttempt(error)         {}

// Config holds the controller's tunables.
type Config struct {
	// ThinkingDelay is the grace period between stop and dispatch.
	ThinkingDelay time.Duration
	// A reply is negligible when it is shorter than SilenceMaxDuration and has
	// fewer than SilenceMaxFrames frames.
	SilenceMaxDuration time.Duration
	SilenceMaxFrames   int
	// Optional clips; nil means not configured.
	ThinkingClip *audio.Clip
	FallbackClip *audio.Clip
}

// ConfigFrom builds controller settings from runtime config and loads the filler and
// fallback clips. A clip that fails to load is reported as a warning and left unset.
func ConfigFrom(cfg config.Config) (Config, []string) {
	out := Config{
		ThinkingDelay:      cfg.Turn.ThinkingDelay(),
		SilenceMaxDuration: cfg.Turn.SilenceMaxDuration(),
		SilenceMaxFrames:   cfg.Turn.SilenceMaxFrames,
	}

	var warnings []string
	load := func(name string, path string) *audio.Clip {
		path = config.ExpandUserPath(path)
		if path == "" {
			return nil
		}
		clip, err := audio.LoadClip(path)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("turn.%s unusable, continuing without it: %v", name, err))
			return nil
		}
		return &clip
	}
	out.ThinkingClip = load("thinking_file", cfg.Turn.ThinkingFile)
	out.FallbackClip = load("fallback_file", cfg.Turn.FallbackFile)
	return out, warnings
}

// Status is a point-in-time view of the controller, safe to read from any goroutine.
type Status struct {
	State    fsm.State
	Backend  Backend
	Emotion  emotion.Label
	Talking  bool
	TurnID   string
	Disabled string
}

// Ready reports whether a new turn could start right now.
func (s Status) Ready() bool {
	return s.Disabled == "" && s.State == fsm.StateIdle && s.Backend == BackendInitialized
}
