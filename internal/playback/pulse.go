package playback

import (
	"errors"
	"fmt"
	"io"

	"github.com/jfreymuth/pulse"

	"github.com/rbright/fala/internal/audio"
)

// PulseOutput plays clips on the default Pulse sink, one client per clip.
func PulseOutput(mediaName string) Output {
	return func(clip audio.Clip, fill func([]int16) (int, error)) error {
		client, err := pulse.NewClient(
			pulse.ClientApplicationName(audio.ClientName),
			pulse.ClientApplicationIconName("audio-speakers"),
		)
		if err != nil {
			return fmt.Errorf("connect pulse server: %w", err)
		}
		defer client.Close()

		reader := pulse.Int16Reader(func(buf []int16) (int, error) {
			n, err := fill(buf)
			if errors.Is(err, io.EOF) {
				return n, pulse.EndOfData
			}
			return n, err
		})

		layout := pulse.PlaybackMono
		if clip.Channels == 2 {
			layout = pulse.PlaybackStereo
		}
		stream, err := client.NewPlayback(
			reader,
			layout,
			pulse.PlaybackSampleRate(clip.SampleRate),
			pulse.PlaybackLatency(0.05),
			pulse.PlaybackMediaName(mediaName),
		)
		if err != nil {
			return fmt.Errorf("create pulse playback stream: %w", err)
		}
		defer stream.Close()

		stream.Start()
		stream.Drain()
		if err := stream.Error(); err != nil {
			return fmt.Errorf("play %s: %w", mediaName, err)
		}
		return nil
	}
}
