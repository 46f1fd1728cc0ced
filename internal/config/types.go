// Package config resolves, parses, validates, and defaults fala configuration.
package config

import "time"

// Config is the fully materialized runtime configuration.
type Config struct {
	Inference InferenceConfig
	Audio     AudioConfig
	Turn      TurnConfig
	Animation AnimationConfig
	Rig       RigConfig
	Indicator IndicatorConfig
	Metrics   MetricsConfig
	Health    HealthConfig
	Log       LogConfig
	Debug     DebugConfig
}

// InferenceConfig addresses the remote conversation service.
type InferenceConfig struct {
	BaseURL        string
	APIKey         string
	APIKeyFile     string
	InitializePath string
	InteractPath   string
	EmotionHeader  string
	UploadField    string
	UploadFilename string
	InitTimeoutMS  int
	TurnTimeoutMS  int
}

// AudioConfig controls capture source selection and format.
type AudioConfig struct {
	Input             string
	Fallback          string
	Channels          int
	SampleRate        int
	MaxDurationSec    int
	BufferDurationSec int
}

// MaxFrames is the longest segment kept from one recording.
func (a AudioConfig) MaxFrames() int {
	return a.MaxDurationSec * a.SampleRate
}

// TurnConfig controls the pacing and audio of one conversational turn.
type TurnConfig struct {
	ThinkingDelayMS      int
	SilenceMaxDurationMS int
	SilenceMaxFrames     int
	ThinkingFile         string
	FallbackFile         string
}

func (t TurnConfig) ThinkingDelay() time.Duration {
	return time.Duration(t.ThinkingDelayMS) * time.Millisecond
}

func (t TurnConfig) SilenceMaxDuration() time.Duration {
	return time.Duration(t.SilenceMaxDurationMS) * time.Millisecond
}

// AnimationConfig bounds the rig timers, in milliseconds.
type AnimationConfig struct {
	TalkCycleMinMS int
	TalkCycleMaxMS int
	IdleCycleMinMS int
	IdleCycleMaxMS int
	EmotionDecayMS int
}

// RigConfig selects where animation updates go.
type RigConfig struct {
	Backend         string
	WebSocketListen string
	WebSocketPath   string
	MQTTBroker      string
	MQTTTopic       string
	MQTTClientID    string
}

// IndicatorConfig controls desktop notices and audio cues.
type IndicatorConfig struct {
	Enable         bool
	SoundEnable    bool
	DesktopAppName string
	ErrorTimeoutMS int
}

// MetricsConfig enables the Prometheus listener when Listen is set.
type MetricsConfig struct {
	Listen string
}

// HealthConfig enables the gRPC health service when GRPCListen is set.
type HealthConfig struct {
	GRPCListen string
}

// LogConfig sets the runtime log level.
type LogConfig struct {
	Level string
}

// DebugConfig controls optional debug artifact output.
type DebugConfig struct {
	EnableAudioDump bool
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}
