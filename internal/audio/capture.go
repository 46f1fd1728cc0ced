package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
)

// ErrCapture reports an unavailable or unusable capture device.
var ErrCapture = errors.New("capture device error")

// 20ms of mono s16 at 16kHz; scaled by format in fragmentBytes.
const fragmentMillis = 20

// Format is the capture stream shape plus ring length.
type Format struct {
	Channels       int
	SampleRate     int
	BufferDuration int // seconds
}

// Capture runs one Pulse record stream that continuously writes into a Ring.
type Capture struct {
	source Source
	ring   *Ring

	client *pulse.Client
	stream *pulse.RecordStream

	mu      sync.Mutex
	pending []byte
	stopped bool
	scratch []float32

	frames atomic.Int64
}

// StartCapture opens the selected source and starts writing s16 frames into a new
// ring sized for format.BufferDuration seconds.
func StartCapture(ctx context.Context, source Source, format Format) (*Capture, error) {
	ring, err := NewRing(format.BufferDuration*format.SampleRate, format.Channels, format.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCapture, err)
	}

	client, err := connect()
	if err != nil {
		return nil, err
	}

	src, err := client.SourceByID(source.ID)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: resolve source %q: %v", ErrCapture, source.ID, err)
	}

	capture := &Capture{source: source, ring: ring, client: client}

	layout := pulse.RecordMono
	if format.Channels == 2 {
		layout = pulse.RecordStereo
	}
	stream, err := client.NewRecord(
		pulse.NewWriter(writerFunc(capture.onPCM), pulseproto.FormatInt16LE),
		pulse.RecordSource(src),
		layout,
		pulse.RecordSampleRate(format.SampleRate),
		pulse.RecordBufferFragmentSize(fragmentBytes(format)),
		pulse.RecordMediaName("fala conversation"),
	)
	if err != nil {
		capture.Close()
		return nil, fmt.Errorf("%w: create pulse record stream: %v", ErrCapture, err)
	}

	capture.stream = stream
	stream.Start()

	go func() {
		<-ctx.Done()
		_ = capture.Stop()
	}()

	return capture, nil
}

func fragmentBytes(format Format) uint32 {
	return uint32(format.SampleRate * fragmentMillis / 1000 * format.Channels * 2)
}

// Source returns the capture source for logging and diagnostics.
func (c *Capture) Source() Source {
	return c.source
}

// Ring exposes the live buffer.
func (c *Capture) Ring() *Ring {
	return c.ring
}

// Mark returns the live write cursor.
func (c *Capture) Mark() Mark {
	return c.ring.Mark()
}

// FramesCaptured reports total frames accepted from Pulse.
func (c *Capture) FramesCaptured() int64 {
	return c.frames.Load()
}

// Stop halts the stream. It is safe to call more than once.
func (c *Capture) Stop() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	c.mu.Unlock()

	if c.stream != nil {
		c.stream.Stop()
		c.stream.Close()
	}
	if c.client != nil {
		c.client.Close()
	}
	return nil
}

// Close is an alias for Stop.
func (c *Capture) Close() {
	_ = c.Stop()
}

// onPCM converts s16le bytes to floats and appends whole frames to the ring. Bytes of
// an incomplete frame are held until the next callback.
func (c *Capture) onPCM(buffer []byte) (int, error) {
	if len(buffer) == 0 {
		return 0, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return 0, io.EOF
	}

	frameBytes := c.ring.Channels() * 2
	data := buffer
	if len(c.pending) > 0 {
		data = append(c.pending, buffer...)
		c.pending = nil
	}
	whole := len(data) - len(data)%frameBytes
	if rest := data[whole:]; len(rest) > 0 {
		c.pending = append([]byte(nil), rest...)
	}

	n := whole / 2
	if cap(c.scratch) < n {
		c.scratch = make([]float32, n)
	}
	samples := c.scratch[:n]
	for i := range samples {
		samples[i] = float32(int16(binary.LittleEndian.Uint16(data[i*2:]))) / 32768
	}
	frames := c.ring.Write(samples)
	c.frames.Add(int64(frames))

	return len(buffer), nil
}

// writerFunc adapts a function to io.Writer for pulse.NewWriter.
type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(b []byte) (int, error) {
	return f(b)
}
