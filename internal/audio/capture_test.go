package audio

import (
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func pcmBytes(samples ...int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

func TestCaptureOnPCMWritesFramesIntoRing(t *testing.T) {
	ring, err := NewRing(8, 1, 16000)
	require.NoError(t, err)
	capture := &Capture{ring: ring}

	start := capture.Mark()
	input := pcmBytes(16384, -16384, 0, 32767)
	n, err := capture.onPCM(input)
	require.NoError(t, err)
	require.Equal(t, len(input), n)
	require.Equal(t, int64(4), capture.FramesCaptured())

	seg, err := Extract(ring.Snapshot(start), 0)
	require.NoError(t, err)
	require.Equal(t, 4, seg.Frames)
	require.InDelta(t, 0.5, seg.Samples[0], 1e-6)
	require.InDelta(t, -0.5, seg.Samples[1], 1e-6)
	require.InDelta(t, 0, seg.Samples[2], 1e-6)
}

func TestCaptureOnPCMHoldsPartialFrames(t *testing.T) {
	ring, err := NewRing(8, 2, 16000)
	require.NoError(t, err)
	capture := &Capture{ring: ring}

	frame := pcmBytes(100, 200, 300, 400)
	_, err = capture.onPCM(frame[:3])
	require.NoError(t, err)
	require.Equal(t, int64(0), capture.FramesCaptured())

	_, err = capture.onPCM(frame[3:])
	require.NoError(t, err)
	require.Equal(t, int64(2), capture.FramesCaptured())
	require.Equal(t, 2, ring.Mark().Cursor)
}

func TestCaptureOnPCMReturnsEOFWhenStopped(t *testing.T) {
	ring, err := NewRing(8, 1, 16000)
	require.NoError(t, err)
	capture := &Capture{ring: ring, source: Source{ID: "mic-1"}}
	require.Equal(t, "mic-1", capture.Source().ID)

	capture.Close()
	require.NoError(t, capture.Stop())

	n, err := capture.onPCM(pcmBytes(1, 2))
	require.Equal(t, 0, n)
	require.ErrorIs(t, err, io.EOF)
	require.Equal(t, int64(0), capture.FramesCaptured())
}

func TestFragmentBytesScalesWithFormat(t *testing.T) {
	require.Equal(t, uint32(640), fragmentBytes(Format{Channels: 1, SampleRate: 16000}))
	require.Equal(t, uint32(3840), fragmentBytes(Format{Channels: 2, SampleRate: 48000}))
}

func TestWriterFuncDelegatesWrite(t *testing.T) {
	called := false
	writer := writerFunc(func(b []byte) (int, error) {
		called = true
		require.Equal(t, []byte{1, 2, 3}, b)
		return len(b), nil
	})

	n, err := writer.Write([]byte{1, 2, 3})
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.True(t, called)
}
