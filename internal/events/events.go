// Package events carries the turn controller's two outbound signals to subscribers.
package events

import (
	"sync"

	"github.com/rbright/fala/internal/emotion"
)

// Observer receives turn events. Callbacks run synchronously on the publisher's
// goroutine, which is the tick loop for the turn controller.
type Observer interface {
	EmotionDetected(label emotion.Label)
	TalkingStateChanged(talking bool)
}

// Funcs adapts plain functions to Observer. Nil fields are ignored.
type Funcs struct {
	OnEmotion func(emotion.Label)
	OnTalking func(bool)
}

func (f Funcs) EmotionDetected(label emotion.Label) {
	if f.OnEmotion != nil {
		f.OnEmotion(label)
	}
}

func (f Funcs) TalkingStateChanged(talking bool) {
	if f.OnTalking != nil {
		f.OnTalking(talking)
	}
}

// Bus fans events out to subscribers in subscription order.
type Bus struct {
	mu   sync.Mutex
	next uint64
	subs []subscription
}

type subscription struct {
	id       uint64
	observer Observer
}

// NewBus constructs an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers o and returns the function that removes it. The returned
// function is idempotent; callers tie it to their own shutdown.
func (b *Bus) Subscribe(o Observer) (unsubscribe func()) {
	if o == nil {
		return func() {}
	}

	b.mu.Lock()
	b.next++
	id := b.next
	b.subs = append(b.subs, subscription{id: id, observer: o})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(id) })
	}
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, sub := range b.subs {
		if sub.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

// Len returns the current subscriber count.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// EmotionDetected publishes a prominent-emotion change.
func (b *Bus) EmotionDetected(label emotion.Label) {
	for _, o := range b.observers() {
		o.EmotionDetected(label)
	}
}

// TalkingStateChanged publishes a talking on/off edge.
func (b *Bus) TalkingStateChanged(talking bool) {
	for _, o := range b.observers() {
		o.TalkingStateChanged(talking)
	}
}

// observers copies the subscriber list so callbacks may unsubscribe.
func (b *Bus) observers() []Observer {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Observer, len(b.subs))
	for i, sub := range b.subs {
		out[i] = sub.observer
	}
	return out
}
