package rig

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rbright/fala/internal/emotion"
	"github.com/stretchr/testify/require"
)

type fakeToken struct {
	err  error
	done chan struct{}
}

func newFakeToken(err error) *fakeToken {
	done := make(chan struct{})
	close(done)
	return &fakeToken{err: err, done: done}
}

func (f *fakeToken) Wait() bool                     { return true }
func (f *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (f *fakeToken) Done() <-chan struct{}          { return f.done }
func (f *fakeToken) Error() error                   { return f.err }

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (f *fakePublisher) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, published{topic: topic, qos: qos, retained: retained, payload: payload.([]byte)})
	return newFakeToken(f.err)
}

func TestMQTTSinkPublishesRetainedState(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewMQTTSink(pub, "fala/rig", nil)

	sink.SetTalking(true)
	sink.SetEmotion(emotion.Sad)

	require.Len(t, pub.msgs, 2)
	last := pub.msgs[1]
	require.Equal(t, "fala/rig", last.topic)
	require.Equal(t, byte(1), last.qos)
	require.True(t, last.retained)

	var state State
	require.NoError(t, json.Unmarshal(last.payload, &state))
	require.True(t, state.Talking)
	require.Equal(t, emotion.Sad, state.Emotion)
	require.Equal(t, sink.State().Seq, state.Seq)
}

func TestMQTTSinkToleratesPublishErrors(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker gone")}
	sink := NewMQTTSink(pub, "fala/rig", nil)

	require.NotPanics(t, func() { sink.SetTalkVariant(1) })
	require.Equal(t, 1, sink.State().Variant)
}

func TestDialMQTTFailsWithoutBroker(t *testing.T) {
	_, err := DialMQTT(MQTTConfig{Broker: "tcp://127.0.0.1:1", ClientID: "fala-test", Topic: "fala/rig"}, nil)
	require.ErrorContains(t, err, "connect mqtt broker")
}
