package samplestore

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/hajimehoshi/ebiten/v2/audio/mp3"
	"github.com/hajimehoshi/ebiten/v2/audio/vorbis"
	"github.com/hajimehoshi/ebiten/v2/audio/wav"

	"github.com/cbegin/noteblock-go/internal/sampler"
)

// DecodeError reports sample bytes that are not a usable audio stream.
type DecodeError struct {
	Format string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Format == "" {
		return fmt.Sprintf("decode sample: %v", e.Err)
	}
	return fmt.Sprintf("decode %s sample: %v", e.Format, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

var (
	errEmpty    = errors.New("empty input")
	errUnknown  = errors.New("unrecognized audio container")
	errNoFrames = errors.New("stream contains no audio frames")
)

// Sniff names the container format of data: "wav", "vorbis", "mp3" or "".
func Sniff(data []byte) string {
	switch {
	case len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE":
		return "wav"
	case len(data) >= 4 && string(data[0:4]) == "OggS":
		return "vorbis"
	case len(data) >= 3 && string(data[0:3]) == "ID3":
		return "mp3"
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return "mp3"
	}
	return ""
}

type f32Stream interface {
	io.Reader
	SampleRate() int
}

// Decode converts WAV, Ogg Vorbis or MP3 bytes into a stereo clip at sampleRate.
func Decode(data []byte, sampleRate int) (*sampler.Clip, error) {
	if len(data) == 0 {
		return nil, &DecodeError{Err: errEmpty}
	}
	format := Sniff(data)
	src := bytes.NewReader(data)
	var (
		stream f32Stream
		err    error
	)
	switch format {
	case "wav":
		stream, err = wav.DecodeF32(src)
	case "vorbis":
		stream, err = vorbis.DecodeF32(src)
	case "mp3":
		stream, err = mp3.DecodeF32(src)
	default:
		return nil, &DecodeError{Err: errUnknown}
	}
	if err != nil {
		return nil, &DecodeError{Format: format, Err: err}
	}
	raw, err := io.ReadAll(stream)
	if err != nil {
		return nil, &DecodeError{Format: format, Err: err}
	}
	// F32 streams are always stereo float32 little-endian.
	n := len(raw) / 4
	n -= n % 2
	if n == 0 {
		return nil, &DecodeError{Format: format, Err: errNoFrames}
	}
	pcm := make([]float32, n)
	for i := range pcm {
		pcm[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	clip := &sampler.Clip{SampleRate: stream.SampleRate(), Data: pcm}
	return Resample(clip, sampleRate), nil
}

// Resample converts a clip to the target rate by linear interpolation.
func Resample(c *sampler.Clip, sampleRate int) *sampler.Clip {
	if sampleRate <= 0 || c.SampleRate == sampleRate || c.SampleRate <= 0 {
		return c
	}
	frames := c.Frames()
	ratio := float64(c.SampleRate) / float64(sampleRate)
	outFrames := int(float64(frames) / ratio)
	if outFrames < 1 {
		outFrames = 1
	}
	out := make([]float32, outFrames*2)
	for f := 0; f < outFrames; f++ {
		pos := float64(f) * ratio
		i := int(pos)
		frac := float32(pos - float64(i))
		j := i + 1
		if j >= frames {
			j = frames - 1
		}
		if i >= frames {
			i = frames - 1
		}
		out[f*2] = c.Data[i*2] + (c.Data[j*2]-c.Data[i*2])*frac
		out[f*2+1] = c.Data[i*2+1] + (c.Data[j*2+1]-c.Data[i*2+1])*frac
	}
	return &sampler.Clip{SampleRate: sampleRate, Data: out}
}
