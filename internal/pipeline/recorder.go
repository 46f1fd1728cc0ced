// Package pipeline drives one recording window from capture device to encoded WAV.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rbright/fala/internal/audio"
	"github.com/rbright/fala/internal/config"
	"github.com/rbright/fala/internal/logging"
)

// ErrNotRecording is returned by Finish when no recording window is open.
var ErrNotRecording = errors.New("recorder is not recording")

// Device is a live capture stream writing into a ring.
type Device interface {
	Source() audio.Source
	Ring() *audio.Ring
	Mark() audio.Mark
	FramesCaptured() int64
	Stop() error
}

// Opener starts a capture device.
type Opener func(ctx context.Context) (Device, error)

// PulseOpener selects a Pulse source per the audio config and starts capture on it.
func PulseOpener(cfg config.AudioConfig, logger *slog.Logger) Opener {
	return func(ctx context.Context) (Device, error) {
		selection, err := audio.SelectSource(ctx, cfg.Input, cfg.Fallback)
		if err != nil {
			return nil, err
		}
		if selection.Warning != "" && logger != nil {
			logger.Warn(selection.Warning, "source", selection.Source.ID)
		}
		capture, err := audio.StartCapture(ctx, selection.Source, audio.Format{
			Channels:       cfg.Channels,
			SampleRate:     cfg.SampleRate,
			BufferDuration: cfg.BufferDurationSec,
		})
		if err != nil {
			return nil, err
		}
		return capture, nil
	}
}

// Result describes one finished recording window.
type Result struct {
	WAV            []byte
	Frames         int
	Channels       int
	SampleRate     int
	DurationMillis int64
	FramesCaptured int64
	Start          int
	End            int
	Wrapped        bool
	Source         string
}

// Recorder owns at most one open recording window.
type Recorder struct {
	cfg    config.Config
	open   Opener
	logger *slog.Logger

	mu     sync.Mutex
	device Device
	start  audio.Mark
}

// NewRecorder constructs a recorder over open.
func NewRecorder(cfg config.Config, open Opener, logger *slog.Logger) *Recorder {
	return &Recorder{cfg: cfg, open: open, logger: logger}
}

// Begin starts capture and records the start cursor.
func (r *Recorder) Begin(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.device != nil {
		return fmt.Errorf("recorder already started")
	}
	if r.open == nil {
		return fmt.Errorf("%w: no capture device configured", audio.ErrCapture)
	}

	device, err := r.open(ctx)
	if err != nil {
		if errors.Is(err, audio.ErrCapture) {
			return err
		}
		return fmt.Errorf("%w: %v", audio.ErrCapture, err)
	}
	r.device = device
	r.start = device.Mark()
	return nil
}

// Recording reports whether a window is open.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.device != nil
}

// Finish snapshots the ring against the start cursor, stops capture, and returns
// the extracted segment encoded as WAV. The window is closed even on error.
func (r *Recorder) Finish(_ context.Context) (Result, error) {
	r.mu.Lock()
	device := r.device
	start := r.start
	r.device = nil
	r.mu.Unlock()

	if device == nil {
		return Result{}, ErrNotRecording
	}

	snap := device.Ring().Snapshot(start)
	_ = device.Stop()

	result := Result{
		Channels:       snap.Channels,
		SampleRate:     snap.SampleRate,
		FramesCaptured: device.FramesCaptured(),
		Start:          snap.Start,
		End:            snap.End,
		Wrapped:        snap.End < snap.Start,
		Source:         device.Source().Label(),
	}

	segment, err := audio.Extract(snap, r.cfg.Audio.MaxFrames())
	if err != nil {
		return result, err
	}
	result.Frames = segment.Frames
	result.DurationMillis = segment.DurationMillis()

	wav, err := audio.EncodeWAV(segment)
	if err != nil {
		return result, err
	}
	result.WAV = wav
	r.writeDebugAudio(wav)
	return result, nil
}

// Abort stops capture without producing audio.
func (r *Recorder) Abort() {
	r.mu.Lock()
	device := r.device
	r.device = nil
	r.mu.Unlock()

	if device != nil {
		_ = device.Stop()
	}
}

// logWarn emits warning-level logs when logger is configured.
func (r *Recorder) logWarn(message string, err error) {
	if r.logger == nil {
		return
	}
	r.logger.Warn(message, "error", err.Error())
}

// createDebugFile creates timestamped debug artifacts under the fala state dir.
func createDebugFile(prefix string, extension string) (*os.File, error) {
	stateDir, err := logging.StateDir()
	if err != nil {
		return nil, fmt.Errorf("resolve state dir: %w", err)
	}
	debugDir := filepath.Join(stateDir, "debug")
	if err := os.MkdirAll(debugDir, 0o700); err != nil {
		return nil, fmt.Errorf("create debug dir: %w", err)
	}

	timestamp := time.Now().Format("20060102-150405.000")
	path := filepath.Join(debugDir, fmt.Sprintf("%s-%s.%s", prefix, timestamp, extension))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open debug file %q: %w", path, err)
	}
	return file, nil
}

// writeDebugAudio writes the encoded turn audio when debug.audio_dump is enabled.
func (r *Recorder) writeDebugAudio(wav []byte) {
	if !r.cfg.Debug.EnableAudioDump || len(wav) == 0 {
		return
	}

	file, err := createDebugFile("turn", "wav")
	if err != nil {
		r.logWarn("unable to create debug audio dump", err)
		return
	}
	defer file.Close()

	if _, err := file.Write(wav); err != nil {
		r.logWarn("unable to write debug audio dump", err)
	}
}
