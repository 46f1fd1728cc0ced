package config

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStripJSONCBlanksCommentsAndTrailingCommas(t *testing.T) {
	input := `{
  // line comment
  "items": ["one", /* block */ "two",
  ],
  "nested": {"enabled": true, /* trailing */ },
}`

	clean, err := stripJSONC(input)
	require.NoError(t, err)
	require.Len(t, clean, len(input))
	require.NotContains(t, clean, "//")
	require.NotContains(t, clean, "/*")

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(clean), &payload))
	require.Equal(t, []any{"one", "two"}, payload["items"])
	require.Equal(t, map[string]any{"enabled": true}, payload["nested"])
}

func TestStripJSONCLeavesStringsAlone(t *testing.T) {
	clean, err := stripJSONC(`{"value":"a // b /* c */ d, ]\"",}`)
	require.NoError(t, err)
	require.Contains(t, clean, `"a // b /* c */ d, ]\""`)
}

func TestStripJSONCUnterminatedBlockComment(t *testing.T) {
	_, err := stripJSONC("{\n  /* open")
	require.ErrorContains(t, err, "line 2 column 3: unterminated block comment")
}

func TestDecodeJSONCRejectsTrailingValue(t *testing.T) {
	var payload map[string]int
	err := decodeJSONC("{\"one\":1}\n{\"two\":2}", &payload)
	require.ErrorContains(t, err, "multiple JSON values")
	require.ErrorContains(t, err, "line 2")
}

func TestPosition(t *testing.T) {
	content := "line1\nline2\nline3"
	for _, tc := range []struct {
		offset    int64
		line, col int
	}{
		{offset: 0, line: 1, col: 1},
		{offset: 1, line: 1, col: 1},
		{offset: 8, line: 2, col: 2},
		{offset: 999, line: 3, col: 5},
	} {
		line, col := position(content, tc.offset)
		require.Equal(t, tc.line, line, "offset %d", tc.offset)
		require.Equal(t, tc.col, col, "offset %d", tc.offset)
	}
}

func TestParseJSONCOverlaysOnlyPresentFields(t *testing.T) {
	cfg, _, err := parseJSONC(`{
  // service lives on another box
  "inference": {
    "base_url": " http://10.0.0.5:5000 ",
    "api_key": "abc",
  },
  "audio": {"channels": 2, "max_duration_sec": 20},
  "turn": {"thinking_file": " ~/clips/hmm.mp3 "},
  "animation": {"emotion_decay_ms": 3000},
  "rig": {"backend": " WebSocket "},
  "log": {"level": "DEBUG"},
  "debug": {"audio_dump": true},
}`, Default())
	require.NoError(t, err)

	def := Default()
	require.Equal(t, "http://10.0.0.5:5000", cfg.Inference.BaseURL)
	require.Equal(t, "abc", cfg.Inference.APIKey)
	require.Equal(t, def.Inference.InteractPath, cfg.Inference.InteractPath)
	require.Equal(t, 2, cfg.Audio.Channels)
	require.Equal(t, 20, cfg.Audio.MaxDurationSec)
	require.Equal(t, 21, cfg.Audio.BufferDurationSec)
	require.Equal(t, def.Audio.SampleRate, cfg.Audio.SampleRate)
	require.Equal(t, "~/clips/hmm.mp3", cfg.Turn.ThinkingFile)
	require.Equal(t, 3000, cfg.Animation.EmotionDecayMS)
	require.Equal(t, def.Animation.TalkCycleMinMS, cfg.Animation.TalkCycleMinMS)
	require.Equal(t, RigBackendWebSocket, cfg.Rig.Backend)
	require.Equal(t, "debug", cfg.Log.Level)
	require.True(t, cfg.Debug.EnableAudioDump)
}

func TestParseJSONCExplicitBufferDurationWins(t *testing.T) {
	cfg, _, err := parseJSONC(`{"audio": {"max_duration_sec": 10, "buffer_duration_sec": 40}}`, Default())
	require.NoError(t, err)
	require.Equal(t, 40, cfg.Audio.BufferDurationSec)
}

func TestParseJSONCRejectsUnknownFields(t *testing.T) {
	_, _, err := parseJSONC(`{"inference": {"api_token": "x"}}`, Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown field")
}

func TestParseJSONCRejectsMultipleTopLevelValues(t *testing.T) {
	_, _, err := parseJSONC(`{"log":{"level":"info"}}{"log":{"level":"debug"}}`, Default())
	require.ErrorContains(t, err, "multiple JSON values")
}

func TestParseJSONCTypeErrorIncludesLocation(t *testing.T) {
	_, _, err := parseJSONC(`{
  "inference": {"turn_timeout_ms": "soon"}
}`, Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "line 2")
	require.Contains(t, err.Error(), "column")
}

func TestParseJSONCValidatesResult(t *testing.T) {
	_, _, err := parseJSONC(`{"rig": {"backend": "dmx"}}`, Default())
	require.ErrorContains(t, err, "rig.backend")
}
