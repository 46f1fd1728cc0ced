package audio

import (
	"fmt"
	"sync"
)

// Ring is a fixed-capacity interleaved float sample store whose write cursor wraps to
// frame 0 when it reaches capacity. One writer (the capture stream) and any number of
// readers may use it concurrently.
type Ring struct {
	capacity   int
	channels   int
	sampleRate int

	mu      sync.Mutex
	samples []float32
	cursor  int
	written uint64
}

// Mark records the write cursor and the running frame total at one instant.
type Mark struct {
	Cursor  int
	Written uint64
}

// Snapshot is an immutable copy of the ring plus a (start, end) cursor pair.
type Snapshot struct {
	CapacityFrames int
	Channels       int
	SampleRate     int
	Start          int
	End            int
	// Advanced is the number of frames the writer produced between Start and End.
	Advanced uint64
	Samples  []float32
}

// NewRing allocates a ring holding capacityFrames frames of channels samples each.
func NewRing(capacityFrames int, channels int, sampleRate int) (*Ring, error) {
	if capacityFrames <= 0 {
		return nil, fmt.Errorf("ring capacity must be > 0 (got %d)", capacityFrames)
	}
	if channels < 1 || channels > 2 {
		return nil, fmt.Errorf("ring channels must be 1 or 2 (got %d)", channels)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("ring sample rate must be > 0 (got %d)", sampleRate)
	}
	return &Ring{
		capacity:   capacityFrames,
		channels:   channels,
		sampleRate: sampleRate,
		samples:    make([]float32, capacityFrames*channels),
	}, nil
}

func (r *Ring) CapacityFrames() int { return r.capacity }
func (r *Ring) Channels() int       { return r.channels }
func (r *Ring) SampleRate() int     { return r.sampleRate }

// Write appends interleaved samples, overwriting the oldest frames once full.
// A trailing partial frame is dropped.
func (r *Ring) Write(interleaved []float32) int {
	frames := len(interleaved) / r.channels
	if frames == 0 {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	src := interleaved[:frames*r.channels]
	// Only the latest capacity frames can survive a single oversized write.
	if frames > r.capacity {
		skip := frames - r.capacity
		src = src[skip*r.channels:]
		r.cursor = (r.cursor + skip) % r.capacity
		r.written += uint64(skip)
	}

	for len(src) > 0 {
		room := (r.capacity - r.cursor) * r.channels
		n := copy(r.samples[r.cursor*r.channels:r.cursor*r.channels+min(room, len(src))], src)
		src = src[n:]
		r.cursor = (r.cursor + n/r.channels) % r.capacity
		r.written += uint64(n / r.channels)
	}
	return frames
}

// Mark returns the live write position.
func (r *Ring) Mark() Mark {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Mark{Cursor: r.cursor, Written: r.written}
}

// Snapshot copies the buffer and pairs it with start and the live cursor, taken
// atomically. Extraction from the result never observes later writes.
func (r *Ring) Snapshot(start Mark) Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	samples := make([]float32, len(r.samples))
	copy(samples, r.samples)

	var advanced uint64
	if r.written >= start.Written {
		advanced = r.written - start.Written
	}
	return Snapshot{
		CapacityFrames: r.capacity,
		Channels:       r.channels,
		SampleRate:     r.sampleRate,
		Start:          start.Cursor,
		End:            r.cursor,
		Advanced:       advanced,
		Samples:        samples,
	}
}
