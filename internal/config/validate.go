package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if err := validateInference(cfg.Inference); err != nil {
		return nil, err
	}

	switch {
	case cfg.Audio.Channels != 1 && cfg.Audio.Channels != 2:
		return nil, fmt.Errorf("audio.channels must be 1 or 2")
	case cfg.Audio.SampleRate < 8000 || cfg.Audio.SampleRate > 192000:
		return nil, fmt.Errorf("audio.sample_rate must be between 8000 and 192000")
	case cfg.Audio.MaxDurationSec <= 0:
		return nil, fmt.Errorf("audio.max_duration_sec must be > 0")
	case cfg.Audio.BufferDurationSec < cfg.Audio.MaxDurationSec:
		return nil, fmt.Errorf("audio.buffer_duration_sec must be >= audio.max_duration_sec")
	}
	if cfg.Audio.BufferDurationSec == cfg.Audio.MaxDurationSec {
		warnings = append(warnings, Warning{Message: "audio.buffer_duration_sec equals audio.max_duration_sec; a maximum-length recording may lose its first frames"})
	}

	if cfg.Turn.ThinkingDelayMS < 0 {
		return nil, fmt.Errorf("turn.thinking_delay_ms must be >= 0")
	}
	if cfg.Turn.SilenceMaxDurationMS < 0 || cfg.Turn.SilenceMaxFrames < 0 {
		return nil, fmt.Errorf("turn.silence_max_duration_ms and turn.silence_max_frames must be >= 0")
	}

	a := cfg.Animation
	if a.TalkCycleMinMS <= 0 || a.IdleCycleMinMS <= 0 || a.EmotionDecayMS <= 0 {
		return nil, fmt.Errorf("animation durations must be > 0")
	}
	if a.TalkCycleMaxMS < a.TalkCycleMinMS {
		return nil, fmt.Errorf("animation.talk_cycle_max_ms must be >= animation.talk_cycle_min_ms")
	}
	if a.IdleCycleMaxMS < a.IdleCycleMinMS {
		return nil, fmt.Errorf("animation.idle_cycle_max_ms must be >= animation.idle_cycle_min_ms")
	}

	if err := validateRig(cfg.Rig); err != nil {
		return nil, err
	}

	if cfg.Indicator.ErrorTimeoutMS < 0 {
		return nil, fmt.Errorf("indicator.error_timeout_ms must be >= 0")
	}
	if cfg.Indicator.Enable && cfg.Indicator.DesktopAppName == "" {
		return nil, fmt.Errorf("indicator.desktop_app_name must not be empty when indicator.enable=true")
	}

	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("log.level must be one of: debug, info, warn, error")
	}

	return warnings, nil
}

func validateInference(in InferenceConfig) error {
	if strings.TrimSpace(in.BaseURL) == "" {
		return fmt.Errorf("inference.base_url must not be empty")
	}
	raw := in.BaseURL
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return fmt.Errorf("inference.base_url %q is not a valid URL", in.BaseURL)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("inference.base_url must use http or https")
	}

	for name, path := range map[string]string{
		"inference.initialize_path": in.InitializePath,
		"inference.interact_path":   in.InteractPath,
	} {
		if !strings.HasPrefix(path, "/") {
			return fmt.Errorf("%s must start with '/'", name)
		}
	}
	if in.EmotionHeader == "" || in.UploadField == "" || in.UploadFilename == "" {
		return fmt.Errorf("inference.emotion_header, upload_field and upload_filename must not be empty")
	}
	if in.InitTimeoutMS <= 0 || in.TurnTimeoutMS <= 0 {
		return fmt.Errorf("inference timeouts must be > 0")
	}
	return nil
}

func validateRig(r RigConfig) error {
	switch r.Backend {
	case RigBackendLog:
	case RigBackendWebSocket:
		if r.WebSocketListen == "" {
			return fmt.Errorf("rig.websocket_listen must not be empty when rig.backend=websocket")
		}
		if !strings.HasPrefix(r.WebSocketPath, "/") {
			return fmt.Errorf("rig.websocket_path must start with '/'")
		}
	case RigBackendMQTT:
		if r.MQTTBroker == "" || r.MQTTTopic == "" || r.MQTTClientID == "" {
			return fmt.Errorf("rig.mqtt_broker, mqtt_topic and mqtt_client_id must not be empty when rig.backend=mqtt")
		}
	default:
		return fmt.Errorf("rig.backend must be one of: log, websocket, mqtt")
	}
	return nil
}
