// Package indicator surfaces turn progress and notices on the desktop and plays
// short cue tones.
package indicator

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rbright/fala/internal/config"
	"github.com/rbright/fala/internal/playback"
)

// progressTimeoutMS keeps recording/thinking bubbles up until they are replaced or dismissed.
const progressTimeoutMS = 300000

// NoticeKind classifies a human-readable notice raised at the end of a turn.
type NoticeKind string

const (
	NoticeInitializationRequired NoticeKind = "initialization_required"
	NoticeInitializationFailed   NoticeKind = "initialization_failed"
	NoticeEmptyAudio             NoticeKind = "empty_audio"
	NoticeCaptureFailed          NoticeKind = "capture_failed"
	NoticeNoVerbalResponse       NoticeKind = "no_verbal_response"
	NoticeFallback               NoticeKind = "fallback"
	NoticeConfiguration          NoticeKind = "configuration"
)

// NoticeKinds lists every known kind.
func NoticeKinds() []NoticeKind {
	return []NoticeKind{
		NoticeInitializationRequired,
		NoticeInitializationFailed,
		NoticeEmptyAudio,
		NoticeCaptureFailed,
		NoticeNoVerbalResponse,
		NoticeFallback,
		NoticeConfiguration,
	}
}

func (k NoticeKind) urgency() urgency {
	switch k {
	case NoticeInitializationFailed, NoticeCaptureFailed, NoticeConfiguration:
		return urgencyCritical
	default:
		return urgencyNormal
	}
}

// Notice is one user-facing status message.
type Notice struct {
	Kind    NoticeKind
	Message string
}

// Controller is the turn-facing indicator contract.
type Controller interface {
	ShowRecording(context.Context)
	ShowThinking(context.Context)
	ShowNotice(context.Context, Notice)
	CueStop(context.Context)
	Hide(context.Context)
}

// Noop discards every indicator call.
type Noop struct{}

func (Noop) ShowRecording(context.Context)      {}
func (Noop) ShowThinking(context.Context)       {}
func (Noop) ShowNotice(context.Context, Notice) {}
func (Noop) CueStop(context.Context)            {}
func (Noop) Hide(context.Context)               {}

// Desktop routes indicator output through freedesktop notifications and plays cue
// tones on cueOut.
type Desktop struct {
	cfg      config.IndicatorConfig
	logger   *slog.Logger
	messages messages
	cueOut   playback.Output

	mu                    sync.Mutex
	desktopNotificationID uint32
	soundMu               sync.Mutex
	cues                  sync.WaitGroup
}

// NewDesktop creates an indicator controller from config. A nil cueOut disables
// cue tones.
func NewDesktop(cfg config.IndicatorConfig, cueOut playback.Output, logger *slog.Logger) *Desktop {
	return &Desktop{
		cfg:      cfg,
		logger:   logger,
		messages: indicatorMessagesFromEnv(),
		cueOut:   cueOut,
	}
}

// ShowRecording signals recording start and emits the start cue.
func (d *Desktop) ShowRecording(ctx context.Context) {
	d.playCue(cueStart)
	if !d.cfg.Enable {
		return
	}
	d.run(ctx, func(ctx context.Context) error {
		return d.notifyDesktop(ctx, d.messages.recording, "", progressTimeoutMS, urgencyLow)
	})
}

// ShowThinking signals that the recording is on its way to the service.
func (d *Desktop) ShowThinking(ctx context.Context) {
	if !d.cfg.Enable {
		return
	}
	d.run(ctx, func(ctx context.Context) error {
		return d.notifyDesktop(ctx, d.messages.thinking, "", progressTimeoutMS, urgencyLow)
	})
}

// ShowNotice displays a notice with the configured error timeout. Failure kinds
// also emit the error cue.
func (d *Desktop) ShowNotice(ctx context.Context, notice Notice) {
	if notice.Kind != NoticeNoVerbalResponse {
		d.playCue(cueError)
	}
	if !d.cfg.Enable {
		return
	}
	timeout := d.cfg.ErrorTimeoutMS
	if timeout <= 0 {
		timeout = 1200
	}
	d.run(ctx, func(ctx context.Context) error {
		return d.notifyDesktop(ctx, d.messages.title(notice.Kind), strings.TrimSpace(notice.Message), timeout, notice.Kind.urgency())
	})
}

// CueStop emits the stop cue.
func (d *Desktop) CueStop(context.Context) {
	d.playCue(cueStop)
}

// Hide dismisses the active notification.
func (d *Desktop) Hide(ctx context.Context) {
	if !d.cfg.Enable {
		return
	}
	d.run(ctx, d.dismissDesktop)
}

// Wait blocks until queued cues have finished.
func (d *Desktop) Wait() {
	d.cues.Wait()
}

// notifyDesktop sends a replaceable desktop notification and stores its ID.
func (d *Desktop) notifyDesktop(ctx context.Context, summary string, body string, timeoutMS int, level urgency) error {
	d.mu.Lock()
	replaceID := d.desktopNotificationID
	d.mu.Unlock()

	appName := strings.TrimSpace(d.cfg.DesktopAppName)
	if appName == "" {
		appName = "fala"
	}

	id, err := desktopNotify(ctx, notification{
		AppName:   appName,
		ReplaceID: replaceID,
		Summary:   summary,
		Body:      body,
		TimeoutMS: timeoutMS,
		Urgency:   level,
	})
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.desktopNotificationID = id
	d.mu.Unlock()
	return nil
}

// dismissDesktop closes the current desktop notification ID when present.
func (d *Desktop) dismissDesktop(ctx context.Context) error {
	d.mu.Lock()
	id := d.desktopNotificationID
	d.desktopNotificationID = 0
	d.mu.Unlock()

	if id == 0 {
		return nil
	}
	return desktopDismiss(ctx, id)
}

// run executes an indicator operation with a bounded timeout.
func (d *Desktop) run(ctx context.Context, fn func(context.Context) error) {
	runCtx, cancel := context.WithTimeout(ctx, 400*time.Millisecond)
	defer cancel()
	if err := fn(runCtx); err != nil {
		d.log("indicator dispatch failed", err)
	}
}

// playCue serializes cue playback and emits audio asynchronously.
func (d *Desktop) playCue(kind cueKind) {
	if !d.cfg.SoundEnable || d.cueOut == nil {
		return
	}
	d.cues.Add(1)
	go func() {
		defer d.cues.Done()
		d.soundMu.Lock()
		defer d.soundMu.Unlock()
		if err := emitCue(d.cueOut, kind); err != nil {
			d.log("indicator audio cue failed", err)
		}
	}()
}

// log emits debug-only indicator failures to the runtime logger.
func (d *Desktop) log(message string, err error) {
	if d.logger == nil || err == nil {
		return
	}
	d.logger.Debug(message, "error", err.Error())
}
