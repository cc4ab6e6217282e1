// Package wavfile writes RIFF/WAVE files from interleaved float32 samples.
package wavfile

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// Format selects the sample encoding of the data chunk.
type Format int

const (
	PCM16 Format = iota
	Float32
)

func (f Format) String() string {
	if f == Float32 {
		return "float32"
	}
	return "pcm16"
}

// ParseFormat accepts "pcm16" and "float32" (case-insensitive); empty means PCM16.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "pcm16", "pcm", "s16":
		return PCM16, nil
	case "float32", "f32", "float":
		return Float32, nil
	}
	return PCM16, fmt.Errorf("unknown wav format %q", s)
}

func (f Format) bytesPerSample() int {
	if f == Float32 {
		return 4
	}
	return 2
}

func (f Format) tag() uint16 {
	if f == Float32 {
		return 3 // WAVE_FORMAT_IEEE_FLOAT
	}
	return 1
}

// Encode returns a complete WAV file for interleaved samples.
func Encode(samples []float32, sampleRate, channels int, format Format) []byte {
	bps := format.bytesPerSample()
	dataSize := len(samples) * bps
	out := make([]byte, 44+dataSize)
	copy(out[0:], "RIFF")
	binary.LittleEndian.PutUint32(out[4:], uint32(36+dataSize))
	copy(out[8:], "WAVE")
	copy(out[12:], "fmt ")
	binary.LittleEndian.PutUint32(out[16:], 16)
	binary.LittleEndian.PutUint16(out[20:], format.tag())
	binary.LittleEndian.PutUint16(out[22:], uint16(channels))
	binary.LittleEndian.PutUint32(out[24:], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:], uint32(sampleRate*channels*bps))
	binary.LittleEndian.PutUint16(out[32:], uint16(channels*bps))
	binary.LittleEndian.PutUint16(out[34:], uint16(bps*8))
	copy(out[36:], "data")
	binary.LittleEndian.PutUint32(out[40:], uint32(dataSize))
	body := out[44:]
	for i, s := range samples {
		switch format {
		case Float32:
			binary.LittleEndian.PutUint32(body[i*4:], math.Float32bits(s))
		default:
			binary.LittleEndian.PutUint16(body[i*2:], uint16(toPCM16(s)))
		}
	}
	return out
}

func toPCM16(s float32) int16 {
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	return int16(math.Round(float64(s) * 32767))
}

// FileName derives the download name for an exported recording.
func FileName(project string) string {
	project = strings.TrimSpace(project)
	if project == "" {
		project = "noteblock"
	}
	var b strings.Builder
	for _, r := range project {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ' || r == '.':
			b.WriteByte('-')
		}
	}
	if b.Len() == 0 {
		b.WriteString("noteblock")
	}
	return b.String() + "-export.wav"
}
