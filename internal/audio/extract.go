package audio

import (
	"errors"
	"fmt"
)

// ErrEmptyCapture reports a recording window that produced no frames.
var ErrEmptyCapture = errors.New("empty capture")

// Segment is linear interleaved PCM cut from a ring snapshot.
type Segment struct {
	Samples    []float32
	Frames     int
	Channels   int
	SampleRate int
}

// DurationMillis returns the segment length in milliseconds.
func (s Segment) DurationMillis() int64 {
	if s.SampleRate <= 0 {
		return 0
	}
	return int64(s.Frames) * 1000 / int64(s.SampleRate)
}

// Extract cuts the frames written between snap.Start and snap.End, keeping only the
// latest maxFrames when the window is longer. A non-positive maxFrames keeps everything.
func Extract(snap Snapshot, maxFrames int) (Segment, error) {
	if err := validateSnapshot(snap); err != nil {
		return Segment{}, err
	}

	capacity := snap.CapacityFrames
	ch := snap.Channels
	start, end := snap.Start, snap.End

	var frames int
	wrapped := false
	switch {
	case start == end:
		if snap.Advanced == 0 {
			return Segment{}, ErrEmptyCapture
		}
		// The writer lapped the buffer and landed on the same cursor; every frame is
		// part of the window, oldest first at end.
		frames = capacity
		wrapped = true
	case end > start:
		frames = end - start
	default:
		frames = (capacity - start) + end
		wrapped = true
	}
	if frames <= 0 {
		return Segment{}, ErrEmptyCapture
	}

	kept := frames
	if maxFrames > 0 && kept > maxFrames {
		kept = maxFrames
	}

	out := make([]float32, kept*ch)
	if !wrapped {
		from := end - kept
		copy(out, snap.Samples[from*ch:end*ch])
	} else {
		joined := make([]float32, 0, frames*ch)
		joined = append(joined, snap.Samples[start*ch:capacity*ch]...)
		joined = append(joined, snap.Samples[:end*ch]...)
		if len(joined) >= len(out) {
			copy(out, joined[len(joined)-len(out):])
		} else {
			// Short concatenation: leading frames stay silent so the latest audio
			// remains at the end.
			copy(out[len(out)-len(joined):], joined)
		}
	}

	return Segment{
		Samples:    out,
		Frames:     kept,
		Channels:   ch,
		SampleRate: snap.SampleRate,
	}, nil
}

func validateSnapshot(snap Snapshot) error {
	if snap.CapacityFrames <= 0 {
		return fmt.Errorf("snapshot capacity must be > 0 (got %d)", snap.CapacityFrames)
	}
	if snap.Channels <= 0 {
		return fmt.Errorf("snapshot channels must be > 0 (got %d)", snap.Channels)
	}
	if snap.Start < 0 || snap.Start >= snap.CapacityFrames {
		return fmt.Errorf("snapshot start cursor %d out of range [0,%d)", snap.Start, snap.CapacityFrames)
	}
	if snap.End < 0 || snap.End >= snap.CapacityFrames {
		return fmt.Errorf("snapshot end cursor %d out of range [0,%d)", snap.End, snap.CapacityFrames)
	}
	if len(snap.Samples) < snap.CapacityFrames*snap.Channels {
		return fmt.Errorf("snapshot holds %d samples, want %d", len(snap.Samples), snap.CapacityFrames*snap.Channels)
	}
	return nil
}
