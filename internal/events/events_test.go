package events

import (
	"testing"

	"github.com/rbright/fala/internal/emotion"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	log []string
}

func (r *recorder) EmotionDetected(label emotion.Label) {
	r.log = append(r.log, "emotion:"+label.String())
}

func (r *recorder) TalkingStateChanged(talking bool) {
	if talking {
		r.log = append(r.log, "talking:on")
		return
	}
	r.log = append(r.log, "talking:off")
}

func TestBusDeliversInSubscriptionOrder(t *testing.T) {
	bus := NewBus()
	var order []string
	bus.Subscribe(Funcs{OnTalking: func(bool) { order = append(order, "first") }})
	bus.Subscribe(Funcs{OnTalking: func(bool) { order = append(order, "second") }})

	bus.TalkingStateChanged(true)
	require.Equal(t, []string{"first", "second"}, order)
}

func TestBusUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus()
	rec := &recorder{}
	unsubscribe := bus.Subscribe(rec)

	bus.EmotionDetected(emotion.Happy)
	unsubscribe()
	unsubscribe()
	bus.TalkingStateChanged(false)

	require.Equal(t, []string{"emotion:happy"}, rec.log)
	require.Equal(t, 0, bus.Len())
}

func TestBusObserverMayUnsubscribeDuringDispatch(t *testing.T) {
	bus := NewBus()
	rec := &recorder{}

	var unsubscribe func()
	unsubscribe = bus.Subscribe(Funcs{OnEmotion: func(emotion.Label) { unsubscribe() }})
	bus.Subscribe(rec)

	bus.EmotionDetected(emotion.Sad)
	bus.EmotionDetected(emotion.Neutral)

	require.Equal(t, []string{"emotion:sad", "emotion:neutral"}, rec.log)
	require.Equal(t, 1, bus.Len())
}

func TestBusIgnoresNilObserverAndNilFuncs(t *testing.T) {
	bus := NewBus()
	bus.Subscribe(nil)()
	bus.Subscribe(Funcs{})

	require.NotPanics(t, func() {
		bus.EmotionDetected(emotion.Thinking)
		bus.TalkingStateChanged(true)
	})
	require.Equal(t, 1, bus.Len())
}
