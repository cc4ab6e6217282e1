// Package audio streams engine output to the system audio device.
package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	ebitaudio "github.com/hajimehoshi/ebiten/v2/audio"
)

// SampleSource fills interleaved stereo float32 buffers.
type SampleSource interface {
	Process(dst []float32)
}

// StreamReader adapts a SampleSource to the f32le byte stream ebiten expects.
type StreamReader struct {
	mu     sync.Mutex
	source SampleSource
	buf    []float32
	closed bool
}

func NewStreamReader(source SampleSource) *StreamReader {
	return &StreamReader{source: source}
}

func (r *StreamReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, io.EOF
	}
	frames := len(p) / 8
	if frames == 0 {
		return 0, nil
	}
	need := frames * 2
	if cap(r.buf) < need {
		r.buf = make([]float32, need)
	}
	r.buf = r.buf[:need]
	r.source.Process(r.buf)
	out := p[:0]
	for _, s := range r.buf {
		out = binary.LittleEndian.AppendUint32(out, math.Float32bits(s))
	}
	return len(out), nil
}

func (r *StreamReader) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

// Backend plays a SampleSource on the shared ebiten audio context.
type Backend struct {
	player *ebitaudio.Player
	reader *StreamReader
}

// shared holds the one ebiten audio context a process may create.
var shared struct {
	once sync.Once
	ctx  *ebitaudio.Context
	rate int
}

// SharedContext returns the process-wide audio context, creating it at
// sampleRate on first use. A context created elsewhere in the process is
// adopted as is.
func SharedContext(sampleRate int) (*ebitaudio.Context, error) {
	shared.once.Do(func() {
		shared.ctx = ebitaudio.CurrentContext()
		if shared.ctx == nil {
			shared.ctx = ebitaudio.NewContext(sampleRate)
		}
		shared.rate = shared.ctx.SampleRate()
	})
	if shared.rate != sampleRate {
		return nil, fmt.Errorf("audio: device runs at %d Hz, engine wants %d Hz", shared.rate, sampleRate)
	}
	return shared.ctx, nil
}

func NewBackend(sampleRate int, source SampleSource) (*Backend, error) {
	ctx, err := SharedContext(sampleRate)
	if err != nil {
		return nil, err
	}
	reader := NewStreamReader(source)
	pl, err := ctx.NewPlayerF32(reader)
	if err != nil {
		return nil, err
	}
	// Small buffer keeps seek and rebuild latency low.
	pl.SetBufferSize(60 * time.Millisecond)
	return &Backend{player: pl, reader: reader}, nil
}

func (b *Backend) Play()           { b.player.Play() }
func (b *Backend) Pause()          { b.player.Pause() }
func (b *Backend) IsPlaying() bool { return b.player.IsPlaying() }

// Position returns what the listener hears right now.
func (b *Backend) Position() time.Duration {
	return b.player.Position()
}

func (b *Backend) Close() error {
	b.player.Pause()
	if err := b.player.Close(); err != nil {
		return err
	}
	return b.reader.Close()
}
