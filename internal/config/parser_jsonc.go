package config

import "strings"

type jsoncConfig struct {
	Inference *jsoncInference `json:"inference"`
	Audio     *jsoncAudio     `json:"audio"`
	Turn      *jsoncTurn      `json:"turn"`
	Animation *jsoncAnimation `json:"animation"`
	Rig       *jsoncRig       `json:"rig"`
	Indicator *jsoncIndicator `json:"indicator"`
	Metrics   *jsoncMetrics   `json:"metrics"`
	Health    *jsoncHealth    `json:"health"`
	Log       *jsoncLog       `json:"log"`
	Debug     *jsoncDebug     `json:"debug"`
}

type jsoncInference struct {
	BaseURL        *string `json:"base_url"`
	APIKey         *string `json:"api_key"`
	APIKeyFile     *string `json:"api_key_file"`
	InitializePath *string `json:"initialize_path"`
	InteractPath   *string `json:"interact_path"`
	EmotionHeader  *string `json:"emotion_header"`
	UploadField    *string `json:"upload_field"`
	UploadFilename *string `json:"upload_filename"`
	InitTimeoutMS  *int    `json:"init_timeout_ms"`
	TurnTimeoutMS  *int    `json:"turn_timeout_ms"`
}

type jsoncAudio struct {
	Input             *string `json:"input"`
	Fallback          *string `json:"fallback"`
	Channels          *int    `json:"channels"`
	SampleRate        *int    `json:"sample_rate"`
	MaxDurationSec    *int    `json:"max_duration_sec"`
	BufferDurationSec *int    `json:"buffer_duration_sec"`
}

type jsoncTurn struct {
	ThinkingDelayMS      *int    `json:"thinking_delay_ms"`
	SilenceMaxDurationMS *int    `json:"silence_max_duration_ms"`
	SilenceMaxFrames     *int    `json:"silence_max_frames"`
	ThinkingFile         *string `json:"thinking_file"`
	FallbackFile         *string `json:"fallback_file"`
}

type jsoncAnimation struct {
	TalkCycleMinMS *int `json:"talk_cycle_min_ms"`
	TalkCycleMaxMS *int `json:"talk_cycle_max_ms"`
	IdleCycleMinMS *int `json:"idle_cycle_min_ms"`
	IdleCycleMaxMS *int `json:"idle_cycle_max_ms"`
	EmotionDecayMS *int `json:"emotion_decay_ms"`
}

type jsoncRig struct {
	Backend         *string `json:"backend"`
	WebSocketListen *string `json:"websocket_listen"`
	WebSocketPath   *string `json:"websocket_path"`
	MQTTBroker      *string `json:"mqtt_broker"`
	MQTTTopic       *string `json:"mqtt_topic"`
	MQTTClientID    *string `json:"mqtt_client_id"`
}

type jsoncIndicator struct {
	Enable         *bool   `json:"enable"`
	SoundEnable    *bool   `json:"sound_enable"`
	DesktopAppName *string `json:"desktop_app_name"`
	ErrorTimeoutMS *int    `json:"error_timeout_ms"`
}

type jsoncMetrics struct {
	Listen *string `json:"listen"`
}

type jsoncHealth struct {
	GRPCListen *string `json:"grpc_listen"`
}

type jsoncLog struct {
	Level *string `json:"level"`
}

type jsoncDebug struct {
	AudioDump *bool `json:"audio_dump"`
}

func parseJSONC(content string, base Config) (Config, []Warning, error) {
	var payload jsoncConfig
	if err := decodeJSONC(content, &payload); err != nil {
		return Config{}, nil, err
	}

	cfg := base
	payload.applyTo(&cfg)

	warnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, warnings, nil
}

// set copies *src into dst when the field was present in the document.
func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

// setTrimmed is set for strings, trimming surrounding whitespace.
func setTrimmed(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}

func (payload jsoncConfig) applyTo(cfg *Config) {
	if in := payload.Inference; in != nil {
		setTrimmed(&cfg.Inference.BaseURL, in.BaseURL)
		setTrimmed(&cfg.Inference.APIKey, in.APIKey)
		setTrimmed(&cfg.Inference.APIKeyFile, in.APIKeyFile)
		setTrimmed(&cfg.Inference.InitializePath, in.InitializePath)
		setTrimmed(&cfg.Inference.InteractPath, in.InteractPath)
		setTrimmed(&cfg.Inference.EmotionHeader, in.EmotionHeader)
		setTrimmed(&cfg.Inference.UploadField, in.UploadField)
		setTrimmed(&cfg.Inference.UploadFilename, in.UploadFilename)
		set(&cfg.Inference.InitTimeoutMS, in.InitTimeoutMS)
		set(&cfg.Inference.TurnTimeoutMS, in.TurnTimeoutMS)
	}

	if a := payload.Audio; a != nil {
		set(&cfg.Audio.Input, a.Input)
		set(&cfg.Audio.Fallback, a.Fallback)
		set(&cfg.Audio.Channels, a.Channels)
		set(&cfg.Audio.SampleRate, a.SampleRate)
		set(&cfg.Audio.MaxDurationSec, a.MaxDurationSec)
		set(&cfg.Audio.BufferDurationSec, a.BufferDurationSec)
		// The ring must outlast the longest recording unless sized explicitly.
		if a.MaxDurationSec != nil && a.BufferDurationSec == nil {
			cfg.Audio.BufferDurationSec = cfg.Audio.MaxDurationSec + 1
		}
	}

	if tc := payload.Turn; tc != nil {
		set(&cfg.Turn.ThinkingDelayMS, tc.ThinkingDelayMS)
		set(&cfg.Turn.SilenceMaxDurationMS, tc.SilenceMaxDurationMS)
		set(&cfg.Turn.SilenceMaxFrames, tc.SilenceMaxFrames)
		setTrimmed(&cfg.Turn.ThinkingFile, tc.ThinkingFile)
		setTrimmed(&cfg.Turn.FallbackFile, tc.FallbackFile)
	}

	if an := payload.Animation; an != nil {
		set(&cfg.Animation.TalkCycleMinMS, an.TalkCycleMinMS)
		set(&cfg.Animation.TalkCycleMaxMS, an.TalkCycleMaxMS)
		set(&cfg.Animation.IdleCycleMinMS, an.IdleCycleMinMS)
		set(&cfg.Animation.IdleCycleMaxMS, an.IdleCycleMaxMS)
		set(&cfg.Animation.EmotionDecayMS, an.EmotionDecayMS)
	}

	if r := payload.Rig; r != nil {
		if r.Backend != nil {
			cfg.Rig.Backend = strings.ToLower(strings.TrimSpace(*r.Backend))
		}
		setTrimmed(&cfg.Rig.WebSocketListen, r.WebSocketListen)
		setTrimmed(&cfg.Rig.WebSocketPath, r.WebSocketPath)
		setTrimmed(&cfg.Rig.MQTTBroker, r.MQTTBroker)
		setTrimmed(&cfg.Rig.MQTTTopic, r.MQTTTopic)
		setTrimmed(&cfg.Rig.MQTTClientID, r.MQTTClientID)
	}

	if ind := payload.Indicator; ind != nil {
		set(&cfg.Indicator.Enable, ind.Enable)
		set(&cfg.Indicator.SoundEnable, ind.SoundEnable)
		setTrimmed(&cfg.Indicator.DesktopAppName, ind.DesktopAppName)
		set(&cfg.Indicator.ErrorTimeoutMS, ind.ErrorTimeoutMS)
	}

	if payload.Metrics != nil {
		setTrimmed(&cfg.Metrics.Listen, payload.Metrics.Listen)
	}
	if payload.Health != nil {
		setTrimmed(&cfg.Health.GRPCListen, payload.Health.GRPCListen)
	}
	if payload.Log != nil && payload.Log.Level != nil {
		cfg.Log.Level = strings.ToLower(strings.TrimSpace(*payload.Log.Level))
	}
	if payload.Debug != nil {
		set(&cfg.Debug.EnableAudioDump, payload.Debug.AudioDump)
	}
}
