package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hajimehoshi/go-mp3"
)

// Clip is decoded interleaved 16-bit PCM ready for playback.
type Clip struct {
	Samples    []int16
	Channels   int
	SampleRate int
}

// Frames returns the number of sample frames in the clip.
func (c Clip) Frames() int {
	if c.Channels <= 0 {
		return 0
	}
	return len(c.Samples) / c.Channels
}

// Duration returns the playback length.
func (c Clip) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(c.Frames()) * time.Second / time.Duration(c.SampleRate)
}

// Negligible reports whether the clip is too short to be worth playing: both its
// duration and its frame count must fall under the given limits.
func (c Clip) Negligible(maxDuration time.Duration, maxFrames int) bool {
	return c.Duration() < maxDuration && c.Frames() < maxFrames
}

// DecodeMP3 decodes an MPEG audio stream. go-mp3 always yields 16-bit stereo.
func DecodeMP3(data []byte) (Clip, error) {
	if len(data) == 0 {
		return Clip{}, errors.New("empty mp3 stream")
	}
	decoder, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return Clip{}, fmt.Errorf("open mp3 stream: %w", err)
	}

	pcm, err := io.ReadAll(decoder)
	if err != nil {
		return Clip{}, fmt.Errorf("decode mp3 stream: %w", err)
	}

	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return newClip(samples, 2, decoder.SampleRate())
}

// DecodeClip sniffs the container and decodes WAV or MP3 bytes.
func DecodeClip(data []byte) (Clip, error) {
	if len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE" {
		return DecodeWAV(data)
	}
	return DecodeMP3(data)
}

// LoadClip reads and decodes a WAV or MP3 file.
func LoadClip(path string) (Clip, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Clip{}, fmt.Errorf("read clip %q: %w", path, err)
	}

	var clip Clip
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		clip, err = DecodeWAV(data)
	case ".mp3":
		clip, err = DecodeMP3(data)
	default:
		clip, err = DecodeClip(data)
	}
	if err != nil {
		return Clip{}, fmt.Errorf("decode clip %q: %w", path, err)
	}
	return clip, nil
}

func newClip(samples []int16, channels int, sampleRate int) (Clip, error) {
	if channels < 1 || channels > 2 {
		return Clip{}, fmt.Errorf("unsupported channel count %d", channels)
	}
	if sampleRate <= 0 {
		return Clip{}, fmt.Errorf("invalid sample rate %d", sampleRate)
	}
	// Drop a trailing partial frame.
	samples = samples[:len(samples)-len(samples)%channels]
	return Clip{Samples: samples, Channels: channels, SampleRate: sampleRate}, nil
}
