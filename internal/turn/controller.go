package turn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rbright/fala/internal/audio"
	"github.com/rbright/fala/internal/emotion"
	"github.com/rbright/fala/internal/events"
	"github.com/rbright/fala/internal/fsm"
	"github.com/rbright/fala/internal/indicator"
	"github.com/rbright/fala/internal/inference"
	"github.com/rbright/fala/internal/ipc"
	"github.com/rbright/fala/internal/pipeline"
	"github.com/rbright/fala/internal/playback"
	"github.com/rbright/fala/internal/tick"
)

// Deps are the controller's collaborators. Loop, Indicator, Metrics and Bus get
// defaults when nil; a nil Recorder, Service or Player disables turns.
type Deps struct {
	Loop      *tick.Loop
	Recorder  Recorder
	Service   Service
	Player    Player
	Indicator indicator.Controller
	Metrics   Metrics
	Bus       *events.Bus
	Logger    *slog.Logger
}

// Controller runs turns. Every field below the status mutex is owned by the tick
// loop; other goroutines go through Handle, Start, Shutdown and Status.
type Controller struct {
	cfg       Config
	loop      *tick.Loop
	recorder  Recorder
	service   Service
	player    Player
	indicator indicator.Controller
	metrics   Metrics
	bus       *events.Bus
	logger    *slog.Logger
	spawn     func(func())

	mu     sync.RWMutex
	status Status

	ctx      context.Context
	state    fsm.State
	backend  Backend
	initGen  uint64
	disabled error
	turn     *turnRun
	grace    *tick.Slot
	display  EmotionDisplay
	detach   func()
	talking  bool
}

type turnRun struct {
	id        string
	started   time.Time
	recording pipeline.Result
	codes     []int
	label     emotion.Label
	latency   time.Duration
	err       error
	filler    bool
}

// New constructs an idle controller with an uninitialized backend.
func New(cfg Config, deps Deps) *Controller {
	loop := deps.Loop
	if loop == nil {
		loop = tick.New(nil)
	}
	c := &Controller{
		cfg:       cfg,
		loop:      loop,
		recorder:  deps.Recorder,
		service:   deps.Service,
		player:    deps.Player,
		indicator: deps.Indicator,
		metrics:   deps.Metrics,
		bus:       deps.Bus,
		logger:    deps.Logger,
		spawn:     func(fn func()) { go fn() },
		ctx:       context.Background(),
		state:     fsm.StateIdle,
		backend:   BackendUninitialized,
		grace:     loop.NewSlot(),
	}
	if c.indicator == nil {
		c.indicator = indicator.Noop{}
	}
	if c.metrics == nil {
		c.metrics = NopMetrics{}
	}
	if c.bus == nil {
		c.bus = events.NewBus()
	}

	var missing []string
	if c.recorder == nil {
		missing = append(missing, "recorder")
	}
	if c.service == nil {
		missing = append(missing, "inference service")
	}
	if c.player == nil {
		missing = append(missing, "player")
	}
	if len(missing) > 0 {
		c.disabled = fmt.Errorf("%w: missing %s", ErrConfiguration, strings.Join(missing, ", "))
	}

	c.Attach(&emotionTracker{active: emotion.Neutral})
	return c
}

// Attach makes d the owner of the active emotion reported by Status: d is
// subscribed to the event bus and every change it makes, decay included,
// republishes the status. It replaces the previous display. Call it before Start
// or from the tick loop.
func (c *Controller) Attach(d EmotionDisplay) {
	if c.detach != nil {
		c.detach()
	}
	unsubscribe := c.bus.Subscribe(d)
	d.OnEmotionChange(func(emotion.Label) { c.publish() })
	c.display = d
	c.detach = func() {
		unsubscribe()
		d.OnEmotionChange(nil)
	}
	c.publish()
}

// Events returns the bus carrying EmotionDetected and TalkingStateChanged.
func (c *Controller) Events() *events.Bus {
	return c.bus
}

// Loop returns the scheduler the controller runs on.
func (c *Controller) Loop() *tick.Loop {
	return c.loop
}

// Status returns the latest status snapshot.
func (c *Controller) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Start binds ctx as the lifetime of background exchanges and runs the startup
// initialization handshake.
func (c *Controller) Start(ctx context.Context) error {
	return c.loop.Post(func() {
		c.ctx = ctx
		if _, err := c.initialize(); err != nil {
			c.logWarn("startup initialization skipped", "error", err.Error())
		}
	})
}

// Shutdown stops capture and playback without touching turn state.
func (c *Controller) Shutdown(ctx context.Context) error {
	return c.loop.Do(ctx, func() {
		c.grace.Cancel()
		if c.recorder != nil {
			c.recorder.Abort()
		}
		if c.player != nil {
			c.player.Stop()
		}
	})
}

// Handle serves one IPC command on the tick loop.
func (c *Controller) Handle(ctx context.Context, req ipc.Request) ipc.Response {
	var resp ipc.Response
	if err := c.loop.Do(ctx, func() { resp = c.handle(req) }); err != nil {
		st := c.Status()
		return ipc.Response{OK: false, State: string(st.State), Error: err.Error()}
	}
	return resp
}

func (c *Controller) handle(req ipc.Request) ipc.Response {
	var (
		msg string
		err error
	)
	switch req.Command {
	case ipc.CommandStart:
		msg, err = c.startTurn()
	case ipc.CommandStop:
		msg, err = c.stopTurn()
	case ipc.CommandToggle:
		if c.state == fsm.StateRecording {
			msg, err = c.stopTurn()
		} else {
			msg, err = c.startTurn()
		}
	case ipc.CommandStatus:
		msg = c.describe()
	case ipc.CommandInitialize:
		msg, err = c.initialize()
	default:
		err = fmt.Errorf("unknown command: %s", req.Command)
	}
	return c.respond(msg, err)
}

func (c *Controller) respond(msg string, err error) ipc.Response {
	st := c.Status()
	resp := ipc.Response{
		OK:      err == nil,
		State:   string(st.State),
		Backend: string(st.Backend),
		Emotion: string(st.Emotion),
		TurnID:  st.TurnID,
		Message: msg,
	}
	if err != nil {
		resp.Error = err.Error()
	}
	return resp
}

func (c *Controller) describe() string {
	parts := []string{
		"state=" + string(c.state),
		"backend=" + string(c.backend),
		"emotion=" + string(c.display.Active()),
	}
	if c.turn != nil {
		parts = append(parts, "turn="+c.turn.id)
	}
	if c.disabled != nil {
		parts = append(parts, "disabled="+c.disabled.Error())
	}
	return strings.Join(parts, " ")
}

func (c *Controller) startTurn() (string, error) {
	if c.disabled != nil {
		c.indicator.ShowNotice(c.ctx, indicator.Notice{Kind: indicator.NoticeConfiguration, Message: c.disabled.Error()})
		return "", c.disabled
	}
	switch {
	case c.state == fsm.StateReinitializing:
		return "", c.initializationRequired()
	case fsm.Busy(c.state):
		return "", fmt.Errorf("%w: cannot start from state %s", ErrBusy, c.state)
	case c.backend != BackendInitialized:
		return "", c.initializationRequired()
	}

	if err := c.transition(fsm.EventStart); err != nil {
		return "", err
	}
	id := uuid.NewString()
	c.turn = &turnRun{id: id, started: c.loop.Clock().Now(), label: emotion.Neutral}
	c.publish()

	if c.player.Stop() || c.talking {
		c.setTalking(false)
	}

	if err := c.recorder.Begin(c.ctx); err != nil {
		_ = c.transition(fsm.EventFail)
		c.finishTurn(OutcomeCaptureFailed, err, &indicator.Notice{Kind: indicator.NoticeCaptureFailed, Message: err.Error()})
		return "", err
	}
	c.indicator.ShowRecording(c.ctx)
	c.logDebug("recording started", "turn_id", id)
	return "recording", nil
}

func (c *Controller) initializationRequired() error {
	c.indicator.ShowNotice(c.ctx, indicator.Notice{
		Kind:    indicator.NoticeInitializationRequired,
		Message: "run `fala initialize`",
	})
	return fmt.Errorf("%w (backend %s)", ErrInitializationRequired, c.backend)
}

func (c *Controller) stopTurn() (string, error) {
	if c.state != fsm.StateRecording {
		return "", fmt.Errorf("cannot stop from state %s", c.state)
	}
	t := c.turn

	result, err := c.recorder.Finish(c.ctx)
	c.indicator.CueStop(c.ctx)
	t.recording = result
	c.metrics.Captured(result.Frames)
	if err != nil {
		_ = c.transition(fsm.EventEmpty)
		c.finishTurn(OutcomeEmptyAudio, err, &indicator.Notice{Kind: indicator.NoticeEmptyAudio})
		return "no audio captured", nil
	}

	if err := c.transition(fsm.EventStop); err != nil {
		return "", err
	}
	c.setEmotion(emotion.Thinking)
	c.indicator.ShowThinking(c.ctx)

	if c.cfg.ThinkingClip != nil {
		id := t.id
		err := c.player.Play(*c.cfg.ThinkingClip, func(error) {
			c.post(func() { c.onFillerDone(id) })
		})
		switch {
		case errors.Is(err, playback.ErrNoOutput):
			c.abort(err)
			return "", c.disabled
		case err != nil:
			c.logWarn("thinking clip failed to start", "turn_id", t.id, "error", err.Error())
		default:
			t.filler = true
			c.setTalking(true)
		}
	}

	wav := result.WAV
	c.grace.Start(c.cfg.ThinkingDelay, func() { c.dispatch(t.id, wav) })
	return "thinking", nil
}

func (c *Controller) onFillerDone(id string) {
	t := c.turn
	if t == nil || t.id != id || !t.filler {
		return
	}
	t.filler = false
	if c.state == fsm.StateThinking || c.state == fsm.StateAwaitingResponse {
		c.setTalking(false)
		c.setEmotion(emotion.Thinking)
	}
}

func (c *Controller) dispatch(id string, wav []byte) {
	if c.turn == nil || c.turn.id != id || c.state != fsm.StateThinking {
		return
	}
	if err := c.transition(fsm.EventDispatch); err != nil {
		return
	}

	ctx := c.ctx
	c.spawn(func() {
		reply, err := c.service.Interact(ctx, id, wav)
		c.post(func() { c.onReply(id, reply, err) })
	})
}

func (c *Controller) onReply(id string, reply inference.Reply, err error) {
	t := c.turn
	if t == nil || t.id != id || c.state != fsm.StateAwaitingResponse {
		c.logDebug("stale reply ignored", "turn_id", id)
		return
	}
	c.metrics.Exchange(reply.Latency, err)
	t.latency = reply.Latency
	if t.filler {
		c.player.Stop()
		t.filler = false
	}

	switch {
	case errors.Is(err, inference.ErrNotInitialized):
		c.enterReinitializing(t, err)
	case errors.Is(err, inference.ErrResponseDecode):
		_ = c.transition(fsm.EventReply)
		c.finishSilent(t, emotion.Neutral, err)
	case err != nil:
		c.enterFallback(t, err)
	default:
		c.handleReply(t, reply)
	}
}

func (c *Controller) handleReply(t *turnRun, reply inference.Reply) {
	t.codes = reply.Codes
	if reply.CodesErr != nil {
		c.logWarn("emotion header entries dropped", "turn_id", t.id, "error", reply.CodesErr.Error())
	}
	t.label = emotion.Aggregate(reply.Codes)

	if err := c.transition(fsm.EventReply); err != nil {
		return
	}
	if len(reply.Audio) == 0 {
		c.finishSilent(t, t.label, nil)
		return
	}
	clip, err := audio.DecodeClip(reply.Audio)
	if err != nil {
		c.finishSilent(t, t.label, fmt.Errorf("%w: %v", inference.ErrResponseDecode, err))
		return
	}
	if clip.Negligible(c.cfg.SilenceMaxDuration, c.cfg.SilenceMaxFrames) {
		c.finishSilent(t, t.label, nil)
		return
	}

	if err := c.play(t, clip); err != nil {
		if errors.Is(err, playback.ErrNoOutput) {
			c.abort(err)
			return
		}
		c.finishSilent(t, t.label, err)
		return
	}
	c.setTalking(true)
	c.setEmotion(t.label)
}

// finishSilent completes a Responding turn that plays nothing.
func (c *Controller) finishSilent(t *turnRun, label emotion.Label, err error) {
	t.label = label
	c.setTalking(false)
	c.setEmotion(label)
	_ = c.transition(fsm.EventFinished)
	c.finishTurn(OutcomeNoVerbalResponse, err, &indicator.Notice{Kind: indicator.NoticeNoVerbalResponse})
}

func (c *Controller) enterFallback(t *turnRun, cause error) {
	t.err = cause
	if err := c.transition(fsm.EventFail); err != nil {
		return
	}
	t.label = emotion.Neutral
	c.setEmotion(emotion.Neutral)
	c.indicator.ShowNotice(c.ctx, indicator.Notice{Kind: indicator.NoticeFallback, Message: cause.Error()})

	if c.cfg.FallbackClip != nil {
		err := c.play(t, *c.cfg.FallbackClip)
		if err == nil {
			c.setTalking(true)
			return
		}
		if errors.Is(err, playback.ErrNoOutput) {
			c.abort(err)
			return
		}
		c.logWarn("fallback clip failed to start", "turn_id", t.id, "error", err.Error())
	}

	c.setTalking(false)
	_ = c.transition(fsm.EventFinished)
	c.finishTurn(OutcomeFallback, cause, nil)
}

func (c *Controller) enterReinitializing(t *turnRun, cause error) {
	t.err = cause
	if err := c.transition(fsm.EventNotInitialized); err != nil {
		return
	}
	c.setBackend(BackendUninitialized)
	if c.talking {
		c.setTalking(false)
	}
	c.finishTurn(OutcomeNotInitialized, cause, &indicator.Notice{
		Kind:    indicator.NoticeInitializationRequired,
		Message: "re-initializing",
	})

	// One automatic attempt; a failure leaves the controller in Reinitializing
	// until an explicit initialize command.
	if _, err := c.initialize(); err != nil {
		c.logWarn("automatic re-initialization not started", "error", err.Error())
	}
}

func (c *Controller) play(t *turnRun, clip audio.Clip) error {
	id := t.id
	return c.player.Play(clip, func(err error) {
		c.post(func() { c.onPlaybackDone(id, err) })
	})
}

func (c *Controller) onPlaybackDone(id string, err error) {
	t := c.turn
	if t == nil || t.id != id {
		return
	}
	outcome := OutcomeResponded
	switch c.state {
	case fsm.StateResponding:
	case fsm.StateFallback:
		outcome = OutcomeFallback
	default:
		return
	}
	if err != nil {
		c.logWarn("playback ended with error", "turn_id", id, "error", err.Error())
	}

	c.setTalking(false)
	_ = c.transition(fsm.EventFinished)
	c.finishTurn(outcome, t.err, nil)
}

// initialize starts a handshake unless one is already running. It is allowed from
// Idle and Reinitializing.
func (c *Controller) initialize() (string, error) {
	if c.service == nil {
		return "", c.disabled
	}
	if fsm.Busy(c.state) {
		return "", fmt.Errorf("%w: cannot initialize from state %s", ErrBusy, c.state)
	}
	if c.backend == BackendInitializing {
		return "initialization already in progress", nil
	}

	c.initGen++
	gen := c.initGen
	c.setBackend(BackendInitializing)

	ctx := c.ctx
	c.spawn(func() {
		err := c.service.Initialize(ctx)
		c.post(func() { c.onInitialized(gen, err) })
	})
	return "initializing", nil
}

func (c *Controller) onInitialized(gen uint64, err error) {
	if gen != c.initGen {
		return
	}
	c.metrics.InitializationAttempt(err)

	if err != nil {
		c.setBackend(BackendFailed)
		c.logWarn("inference initialization failed", "state", string(c.state), "error", err.Error())
		c.indicator.ShowNotice(c.ctx, indicator.Notice{Kind: indicator.NoticeInitializationFailed, Message: err.Error()})
		return
	}

	c.setBackend(BackendInitialized)
	c.logInfo("inference service initialized")
	if c.state == fsm.StateReinitializing {
		_ = c.transition(fsm.EventReinitialized)
		c.indicator.Hide(c.ctx)
	}
}

// abort forces Idle after a local component turned out to be missing and disables
// further turns.
func (c *Controller) abort(cause error) {
	c.grace.Cancel()
	c.recorder.Abort()
	c.player.Stop()
	c.disabled = fmt.Errorf("%w: %v", ErrConfiguration, cause)

	_ = c.transition(fsm.EventAbort)
	c.setTalking(false)
	c.finishTurn(OutcomeAborted, c.disabled, &indicator.Notice{Kind: indicator.NoticeConfiguration, Message: c.disabled.Error()})
}

// finishTurn closes the current turn, raises notice when given, and writes the
// per-turn log record.
func (c *Controller) finishTurn(outcome Outcome, err error, notice *indicator.Notice) {
	t := c.turn
	c.turn = nil
	c.grace.Cancel()

	switch {
	case notice != nil:
		c.indicator.ShowNotice(c.ctx, *notice)
	case outcome == OutcomeResponded:
		c.indicator.Hide(c.ctx)
	}
	c.publish()
	if t == nil {
		return
	}

	elapsed := c.loop.Clock().Now().Sub(t.started)
	c.metrics.TurnFinished(outcome, elapsed)

	if c.logger == nil {
		return
	}
	attrs := []any{
		"turn_id", t.id,
		"state", string(c.state),
		"outcome", string(outcome),
		"elapsed_ms", elapsed.Milliseconds(),
		"frames", t.recording.Frames,
		"audio_ms", t.recording.DurationMillis,
		"wav_bytes", len(t.recording.WAV),
		"wrapped", t.recording.Wrapped,
		"source", t.recording.Source,
		"exchange_ms", t.latency.Milliseconds(),
		"emotion_codes", t.codes,
		"emotion", string(t.label),
	}
	if err != nil {
		c.logger.Warn("turn failed", append(attrs, "error", err.Error())...)
		return
	}
	c.logger.Info("turn complete", attrs...)
}

func (c *Controller) transition(event fsm.Event) error {
	next, err := fsm.Transition(c.state, event)
	if err != nil {
		c.logWarn("turn transition rejected", "error", err.Error())
		return err
	}
	c.state = next
	c.metrics.StateChanged(next)
	c.publish()
	return nil
}

func (c *Controller) setTalking(talking bool) {
	c.talking = talking
	c.bus.TalkingStateChanged(talking)
	c.publish()
}

func (c *Controller) setEmotion(label emotion.Label) {
	c.bus.EmotionDetected(label)
	c.publish()
}

func (c *Controller) setBackend(backend Backend) {
	c.backend = backend
	c.metrics.BackendChanged(backend)
	c.publish()
}

func (c *Controller) publish() {
	st := Status{
		State:   c.state,
		Backend: c.backend,
		Emotion: c.display.Active(),
		Talking: c.talking,
	}
	if c.turn != nil {
		st.TurnID = c.turn.id
	}
	if c.disabled != nil {
		st.Disabled = c.disabled.Error()
	}
	c.mu.Lock()
	c.status = st
	c.mu.Unlock()
}

func (c *Controller) post(fn func()) {
	if err := c.loop.Post(fn); err != nil {
		c.logDebug("tick loop closed; dropping callback", "error", err.Error())
	}
}

func (c *Controller) logInfo(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Info(msg, args...)
	}
}

func (c *Controller) logWarn(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Warn(msg, args...)
	}
}

func (c *Controller) logDebug(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}
