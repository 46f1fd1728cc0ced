package config

// Rig backends.
const (
	RigBackendLog       = "log"
	RigBackendWebSocket = "websocket"
	RigBackendMQTT      = "mqtt"
)

// APIKeyVariable is the key read from inference.api_key_file.
const APIKeyVariable = "FALA_API_KEY"

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	return Config{
		Inference: InferenceConfig{
			BaseURL:        "http://127.0.0.1:5000",
			InitializePath: "/initialize",
			InteractPath:   "/interact",
			EmotionHeader:  "X-Musicalia-Emotion-Codes",
			UploadField:    "file",
			UploadFilename: "audio.wav",
			InitTimeoutMS:  60000,
			TurnTimeoutMS:  120000,
		},
		Audio: AudioConfig{
			Input:             "default",
			Fallback:          "default",
			Channels:          1,
			SampleRate:        16000,
			MaxDurationSec:    30,
			BufferDurationSec: 31,
		},
		Turn: TurnConfig{
			ThinkingDelayMS:      350,
			SilenceMaxDurationMS: 100,
			SilenceMaxFrames:     1600,
		},
		Animation: AnimationConfig{
			TalkCycleMinMS: 1500,
			TalkCycleMaxMS: 4000,
			IdleCycleMinMS: 4000,
			IdleCycleMaxMS: 9000,
			EmotionDecayMS: 6000,
		},
		Rig: RigConfig{
			Backend:         RigBackendLog,
			WebSocketListen: "127.0.0.1:8765",
			WebSocketPath:   "/rig",
			MQTTBroker:      "tcp://127.0.0.1:1883",
			MQTTTopic:       "fala/rig",
			MQTTClientID:    "fala",
		},
		Indicator: IndicatorConfig{
			Enable:         true,
			SoundEnable:    true,
			DesktopAppName: "fala",
			ErrorTimeoutMS: 1600,
		},
		Log: LogConfig{Level: "info"},
	}
}
