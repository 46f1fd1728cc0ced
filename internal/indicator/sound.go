package indicator

import (
	"io"
	"math"
	"time"

	"github.com/rbright/fala/internal/audio"
	"github.com/rbright/fala/internal/playback"
)

type cueKind int

const (
	cueStart cueKind = iota + 1
	cueStop
	cueError
)

const (
	cueSampleRate = 16000
	cueGain       = 0.18
	cueGap        = 22 * time.Millisecond
	cueFade       = 5 * time.Millisecond
)

// note is one sine segment of a cue.
type note struct {
	hz  float64
	dur time.Duration
}

// cues are rendered once; rising for start, a single low note for stop, falling
// for errors.
var cues = map[cueKind]audio.Clip{
	cueStart: renderCue(note{880, 70 * time.Millisecond}, note{1175, 70 * time.Millisecond}),
	cueStop:  renderCue(note{620, 120 * time.Millisecond}),
	cueError: renderCue(note{480, 75 * time.Millisecond}, note{360, 90 * time.Millisecond}),
}

// PulseCueOutput plays cues on the default Pulse sink.
func PulseCueOutput() playback.Output {
	return playback.PulseOutput("fala indicator cue")
}

// emitCue blocks until out has consumed the whole cue.
func emitCue(out playback.Output, kind cueKind) error {
	clip, ok := cues[kind]
	if !ok || clip.Frames() == 0 {
		return nil
	}

	rest := clip.Samples
	return out(clip, func(buf []int16) (int, error) {
		if len(rest) == 0 {
			return 0, io.EOF
		}
		n := copy(buf, rest)
		rest = rest[n:]
		return n, nil
	})
}

func renderCue(notes ...note) audio.Clip {
	gap := frames(cueGap)
	var pcm []int16
	for i, n := range notes {
		if i > 0 {
			pcm = append(pcm, make([]int16, gap)...)
		}
		pcm = append(pcm, sine(n, cueGain)...)
	}
	return audio.Clip{Samples: pcm, Channels: 1, SampleRate: cueSampleRate}
}

// sine renders n at gain with raised-cosine fades so segments start and end at zero.
func sine(n note, gain float64) []int16 {
	count := frames(n.dur)
	if count <= 0 || n.hz <= 0 || gain <= 0 {
		return nil
	}

	fade := max(min(frames(cueFade), count/10), 1)
	pcm := make([]int16, count)
	for i := range pcm {
		env := 1.0
		if edge := min(i, count-1-i); edge < fade {
			env = 0.5 - 0.5*math.Cos(math.Pi*float64(edge)/float64(fade))
		}
		phase := 2 * math.Pi * n.hz * float64(i) / cueSampleRate
		pcm[i] = int16(math.Round(math.Sin(phase) * gain * env * math.MaxInt16))
	}
	return pcm
}

func frames(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Round(d.Seconds() * cueSampleRate))
}
