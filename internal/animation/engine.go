// Package animation drives the rig's talk-variant cycle and emotion decay from turn
// events. All methods run on the tick loop.
package animation

import (
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/rbright/fala/internal/emotion"
	"github.com/rbright/fala/internal/tick"
)

// Sink is the animation rig.
type Sink interface {
	SetTalking(talking bool)
	SetEmotion(label emotion.Label)
	SetTalkVariant(variant int)
}

// Config holds cycle bounds and the decay countdown.
type Config struct {
	TalkCycleMin time.Duration
	TalkCycleMax time.Duration
	IdleCycleMin time.Duration
	IdleCycleMax time.Duration
	EmotionDecay time.Duration
}

// Engine owns two timer slots: one variant cycle (talk or idle, never both) and one
// emotion decay countdown.
type Engine struct {
	sink   Sink
	cfg    Config
	rng    *rand.Rand
	logger *slog.Logger

	variantTimer *tick.Slot
	decayTimer   *tick.Slot

	talking bool
	variant int
	active  emotion.Label
	changed func(emotion.Label)
}

// New binds an engine to loop. A nil rng seeds one from the runtime source.
func New(loop *tick.Loop, sink Sink, cfg Config, rng *rand.Rand, logger *slog.Logger) *Engine {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Engine{
		sink:         sink,
		cfg:          cfg,
		rng:          rng,
		logger:       logger,
		variantTimer: loop.NewSlot(),
		decayTimer:   loop.NewSlot(),
		active:       emotion.Neutral,
	}
}

// Start shows the quiet rig: Neutral, a random idle variant, and the idle cycle.
func (e *Engine) Start() {
	e.TalkingStateChanged(false)
}

// OnEmotionChange registers fn to run, on the tick loop, after every change of the
// active emotion, including decay. A nil fn clears it.
func (e *Engine) OnEmotionChange(fn func(emotion.Label)) {
	e.changed = fn
}

// Active returns the emotion currently shown on the rig.
func (e *Engine) Active() emotion.Label { return e.active }

// Talking reports whether the talk cycle (rather than the idle cycle) is running.
func (e *Engine) Talking() bool { return e.talking }

// Variant returns the current talk/idle variant.
func (e *Engine) Variant() int { return e.variant }

// TalkingStateChanged swaps the variant cycle. Going quiet also ends the turn's
// emotion.
func (e *Engine) TalkingStateChanged(talking bool) {
	e.variantTimer.Cancel()
	e.talking = talking
	e.sink.SetTalking(talking)

	if talking {
		e.setVariant(1 + e.rng.IntN(2))
		e.scheduleTalk()
		return
	}

	e.setVariant(e.rng.IntN(3))
	e.scheduleIdle()
	e.decayTimer.Cancel()
	e.setEmotion(emotion.Neutral)
}

// EmotionDetected shows label. Happy and Sad revert to Neutral after the decay
// countdown unless something newer replaced them.
func (e *Engine) EmotionDetected(label emotion.Label) {
	e.decayTimer.Cancel()
	e.setEmotion(label)

	if label != emotion.Happy && label != emotion.Sad {
		return
	}
	e.decayTimer.Start(e.cfg.EmotionDecay, func() {
		if e.active != label {
			return
		}
		e.logDebug("emotion decayed", "from", label)
		e.setEmotion(emotion.Neutral)
	})
}

// Stop cancels both timers.
func (e *Engine) Stop() {
	e.variantTimer.Cancel()
	e.decayTimer.Cancel()
}

// Live reports which timers are pending.
func (e *Engine) Live() (variant bool, decay bool) {
	return e.variantTimer.Live(), e.decayTimer.Live()
}

func (e *Engine) scheduleTalk() {
	e.variantTimer.Start(e.interval(e.cfg.TalkCycleMin, e.cfg.TalkCycleMax), func() {
		e.setVariant(3 - e.variant)
		e.scheduleTalk()
	})
}

func (e *Engine) scheduleIdle() {
	e.variantTimer.Start(e.interval(e.cfg.IdleCycleMin, e.cfg.IdleCycleMax), func() {
		e.setVariant((e.variant + 1 + e.rng.IntN(2)) % 3)
		e.scheduleIdle()
	})
}

// interval is uniform in [lo, hi].
func (e *Engine) interval(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(e.rng.Int64N(int64(hi-lo)+1))
}

func (e *Engine) setVariant(v int) {
	e.variant = v
	e.sink.SetTalkVariant(v)
}

func (e *Engine) setEmotion(label emotion.Label) {
	e.active = label
	e.sink.SetEmotion(label)
	if e.changed != nil {
		e.changed(label)
	}
}

func (e *Engine) logDebug(msg string, args ...any) {
	if e.logger == nil {
		return
	}
	e.logger.Debug(msg, args...)
}
