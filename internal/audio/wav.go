package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

const (
	wavHeaderSize    = 44
	wavBitsPerSample = 16
	wavFormatPCM     = 1
)

// ErrEncoding reports a segment that cannot be encoded.
var ErrEncoding = errors.New("wav encoding failed")

// EncodeWAV renders seg as a canonical 16-bit PCM WAV container.
func EncodeWAV(seg Segment) ([]byte, error) {
	if len(seg.Samples) == 0 || seg.Frames <= 0 {
		return nil, fmt.Errorf("%w: empty segment", ErrEncoding)
	}
	if seg.Channels <= 0 || seg.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: invalid format %d ch @ %d Hz", ErrEncoding, seg.Channels, seg.SampleRate)
	}

	pcm := make([]byte, len(seg.Samples)*2)
	for i, sample := range seg.Samples {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(floatToPCM16(sample)))
	}

	var buf bytes.Buffer
	buf.Grow(wavHeaderSize + len(pcm))
	if err := writePCM16WAV(&buf, pcm, seg.SampleRate, seg.Channels); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	return buf.Bytes(), nil
}

// floatToPCM16 maps [-1,1] floats to int16 with rounding; out-of-range input clamps.
func floatToPCM16(sample float32) int16 {
	v := float64(sample) * 32767
	if math.IsNaN(v) {
		return 0
	}
	v = math.Max(-32768, math.Min(32767, v))
	return int16(math.Round(v))
}

// writePCM16WAV writes raw little-endian PCM bytes behind a 44-byte WAV header.
func writePCM16WAV(w io.Writer, pcm []byte, sampleRate int, channels int) error {
	byteRate := sampleRate * channels * (wavBitsPerSample / 8)
	blockAlign := channels * (wavBitsPerSample / 8)

	header := make([]byte, wavHeaderSize)
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], uint32(36+len(pcm)))
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], wavFormatPCM)
	binary.LittleEndian.PutUint16(header[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(header[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(header[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(header[34:36], wavBitsPerSample)
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], uint32(len(pcm)))

	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err := w.Write(pcm)
	return err
}

// DecodeWAV reads a 16-bit PCM WAV file into a Clip. Chunks other than fmt and
// data are skipped.
func DecodeWAV(data []byte) (Clip, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return Clip{}, errors.New("not a RIFF/WAVE stream")
	}

	var (
		channels   int
		sampleRate int
		haveFormat bool
	)
	offset := 12
	for offset+8 <= len(data) {
		id := string(data[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + 8
		if size < 0 || body+size > len(data) {
			size = len(data) - body
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return Clip{}, fmt.Errorf("fmt chunk too short (%d bytes)", size)
			}
			format := binary.LittleEndian.Uint16(data[body : body+2])
			bits := binary.LittleEndian.Uint16(data[body+14 : body+16])
			if format != wavFormatPCM || bits != wavBitsPerSample {
				return Clip{}, fmt.Errorf("unsupported wav format %d/%d-bit", format, bits)
			}
			channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			haveFormat = true
		case "data":
			if !haveFormat {
				return Clip{}, errors.New("data chunk before fmt chunk")
			}
			samples := make([]int16, size/2)
			for i := range samples {
				samples[i] = int16(binary.LittleEndian.Uint16(data[body+i*2:]))
			}
			return newClip(samples, channels, sampleRate)
		}

		offset = body + size + size%2
	}
	return Clip{}, errors.New("wav stream has no data chunk")
}
