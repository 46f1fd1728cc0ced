package audio

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// rampSnapshot returns a mono snapshot whose sample at frame i equals i.
func rampSnapshot(capacity int, start int, end int, advanced uint64) Snapshot {
	samples := make([]float32, capacity)
	for i := range samples {
		samples[i] = float32(i)
	}
	return Snapshot{
		CapacityFrames: capacity,
		Channels:       1,
		SampleRate:     16000,
		Start:          start,
		End:            end,
		Advanced:       advanced,
		Samples:        samples,
	}
}

func TestExtractNonWrapped(t *testing.T) {
	seg, err := Extract(rampSnapshot(1000, 100, 400, 300), 0)
	require.NoError(t, err)
	require.Equal(t, 300, seg.Frames)
	require.Len(t, seg.Samples, 300)
	require.Equal(t, float32(100), seg.Samples[0])
	require.Equal(t, float32(399), seg.Samples[299])
}

func TestExtractNonWrappedTrimKeepsTail(t *testing.T) {
	seg, err := Extract(rampSnapshot(1000, 100, 900, 800), 500)
	require.NoError(t, err)
	require.Equal(t, 500, seg.Frames)
	require.Equal(t, float32(400), seg.Samples[0])
	require.Equal(t, float32(899), seg.Samples[499])
}

func TestExtractWrappedTrimKeepsTailOfConcatenation(t *testing.T) {
	seg, err := Extract(rampSnapshot(1000, 100, 50, 950), 500)
	require.NoError(t, err)
	require.Equal(t, 500, seg.Frames)
	require.Len(t, seg.Samples, 500)

	// 950 frames: 100..999 then 0..49; the last 500 start at frame 550.
	require.Equal(t, float32(550), seg.Samples[0])
	require.Equal(t, float32(999), seg.Samples[449])
	require.Equal(t, float32(0), seg.Samples[450])
	require.Equal(t, float32(49), seg.Samples[499])
}

func TestExtractWrappedWithoutTrim(t *testing.T) {
	seg, err := Extract(rampSnapshot(10, 7, 3, 6), 0)
	require.NoError(t, err)
	require.Equal(t, 6, seg.Frames)
	require.Equal(t, []float32{7, 8, 9, 0, 1, 2}, seg.Samples)
}

func TestExtractEqualCursorsWithoutAdvanceIsEmpty(t *testing.T) {
	_, err := Extract(rampSnapshot(1000, 250, 250, 0), 500)
	require.ErrorIs(t, err, ErrEmptyCapture)
}

func TestExtractEqualCursorsAfterFullLapTakesWholeBuffer(t *testing.T) {
	seg, err := Extract(rampSnapshot(10, 4, 4, 10), 0)
	require.NoError(t, err)
	require.Equal(t, 10, seg.Frames)
	require.Equal(t, []float32{4, 5, 6, 7, 8, 9, 0, 1, 2, 3}, seg.Samples)
}

func TestExtractStereoKeepsFrameAlignment(t *testing.T) {
	snap := Snapshot{
		CapacityFrames: 4,
		Channels:       2,
		SampleRate:     8000,
		Start:          3,
		End:            2,
		Advanced:       3,
		Samples:        []float32{0, 0.5, 1, 1.5, 2, 2.5, 3, 3.5},
	}
	seg, err := Extract(snap, 2)
	require.NoError(t, err)
	require.Equal(t, 2, seg.Frames)
	require.Equal(t, 2, seg.Channels)
	require.Equal(t, []float32{0, 0.5, 1, 1.5}, seg.Samples)
}

func TestExtractRejectsInvalidSnapshots(t *testing.T) {
	cases := map[string]Snapshot{
		"zero capacity":      {CapacityFrames: 0, Channels: 1},
		"zero channels":      {CapacityFrames: 4, Channels: 0, Samples: make([]float32, 4)},
		"start out of range": {CapacityFrames: 4, Channels: 1, Start: 4, Samples: make([]float32, 4)},
		"end out of range":   {CapacityFrames: 4, Channels: 1, End: -1, Samples: make([]float32, 4)},
		"short samples":      {CapacityFrames: 4, Channels: 2, Start: 0, End: 1, Samples: make([]float32, 4)},
	}
	for name, snap := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Extract(snap, 0)
			require.Error(t, err)
			require.NotErrorIs(t, err, ErrEmptyCapture)
		})
	}
}

func TestSegmentDurationMillis(t *testing.T) {
	require.Equal(t, int64(500), Segment{Frames: 8000, SampleRate: 16000}.DurationMillis())
	require.Equal(t, int64(0), Segment{Frames: 8000}.DurationMillis())
}
