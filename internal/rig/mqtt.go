package rig

import (
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/rbright/fala/internal/emotion"
)

const mqttPublishTimeout = 5 * time.Second

// Publisher is the part of mqtt.Client the sink needs.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTConfig selects the broker and topic for rig state.
type MQTTConfig struct {
	Broker   string
	ClientID string
	Topic    string
}

// DialMQTT connects a paho client with auto-reconnect.
func DialMQTT(cfg MQTTConfig, logger *slog.Logger) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectTimeout(5 * time.Second)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		if logger != nil {
			logger.Warn("rig mqtt connection lost", "broker", cfg.Broker, "error", err)
		}
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect mqtt broker %s: %w", cfg.Broker, token.Error())
	}
	return client, nil
}

// MQTTSink publishes the full rig state, retained, on every update so late
// subscribers see the current pose.
type MQTTSink struct {
	tracker
	client Publisher
	topic  string
	logger *slog.Logger
}

// NewMQTTSink wraps a connected publisher.
func NewMQTTSink(client Publisher, topic string, logger *slog.Logger) *MQTTSink {
	return &MQTTSink{tracker: newTracker(), client: client, topic: topic, logger: logger}
}

func (m *MQTTSink) SetTalking(talking bool) {
	m.publish(m.apply(func(s *State) { s.Talking = talking }))
}

func (m *MQTTSink) SetEmotion(label emotion.Label) {
	m.publish(m.apply(func(s *State) { s.Emotion = label }))
}

func (m *MQTTSink) SetTalkVariant(variant int) {
	m.publish(m.apply(func(s *State) { s.Variant = variant }))
}

// State returns the last pose.
func (m *MQTTSink) State() State { return m.current() }

// publish never waits on the broker from the caller's goroutine.
func (m *MQTTSink) publish(s State) {
	token := m.client.Publish(m.topic, 1, true, s.Marshal())
	go func() {
		if !token.WaitTimeout(mqttPublishTimeout) {
			m.logWarn("rig mqtt publish timed out", "topic", m.topic, "seq", s.Seq)
			return
		}
		if err := token.Error(); err != nil {
			m.logWarn("rig mqtt publish failed", "topic", m.topic, "seq", s.Seq, "error", err)
		}
	}()
}

func (m *MQTTSink) logWarn(msg string, args ...any) {
	if m.logger == nil {
		return
	}
	m.logger.Warn(msg, args...)
}
