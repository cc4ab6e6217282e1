package instrument

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/cbegin/noteblock-go/internal/sampler"
	"github.com/cbegin/noteblock-go/internal/samplestore"
	"github.com/cbegin/noteblock-go/internal/synth"
	"github.com/cbegin/noteblock-go/internal/wavfile"
)

// ErrNoSource is returned when no source can supply a preset's sample.
var ErrNoSource = errors.New("no sample source for preset")

// Source supplies the encoded sample bytes of a preset.
type Source interface {
	Open(ctx context.Context, p Preset) ([]byte, error)
}

// FSSource reads preset samples by SampleRef from a file system, typically
// os.DirFS of an asset directory.
type FSSource struct {
	FS fs.FS
}

func (s FSSource) Open(ctx context.Context, p Preset) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.FS == nil {
		return nil, ErrNoSource
	}
	return fs.ReadFile(s.FS, p.SampleRef)
}

// SynthSource renders a built-in one-shot at the preset's base pitch.
type SynthSource struct {
	SampleRate int
	Seconds    float64
}

func (s SynthSource) Open(ctx context.Context, p Preset) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rate := s.SampleRate
	if rate <= 0 {
		rate = 44100
	}
	pcm := synth.Render(p.Synth, p.BaseNote(), rate, s.Seconds)
	return wavfile.Encode(pcm, rate, 2, wavfile.PCM16), nil
}

// Chain tries each source in order and returns the first success.
type Chain []Source

func (c Chain) Open(ctx context.Context, p Preset) ([]byte, error) {
	var errs []error
	for _, src := range c {
		data, err := src.Open(ctx, p)
		if err == nil {
			return data, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil, ErrNoSource
	}
	return nil, fmt.Errorf("%w %q: %w", ErrNoSource, p.ID, errors.Join(errs...))
}

// Library decodes preset samples on demand and keeps the decoded clips.
// Concurrent loads of the same preset share one decode.
type Library struct {
	src        Source
	sampleRate int
	group      singleflight.Group

	mu    sync.Mutex
	clips map[string]*sampler.Clip
}

// NewLibrary creates a library decoding to sampleRate. A nil src falls back
// to the built-in synthesized samples.
func NewLibrary(src Source, sampleRate int) *Library {
	if src == nil {
		src = SynthSource{SampleRate: sampleRate}
	}
	return &Library{src: src, sampleRate: sampleRate, clips: map[string]*sampler.Clip{}}
}

// Clip returns the decoded sample of preset id.
func (l *Library) Clip(ctx context.Context, id string) (*sampler.Clip, error) {
	p, ok := PresetByID(id)
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrNoSource, id)
	}
	l.mu.Lock()
	if c, ok := l.clips[id]; ok {
		l.mu.Unlock()
		return c, nil
	}
	l.mu.Unlock()

	v, err, _ := l.group.Do(id, func() (any, error) {
		data, err := l.src.Open(ctx, p)
		if err != nil {
			return nil, err
		}
		clip, err := samplestore.Decode(data, l.sampleRate)
		if err != nil {
			return nil, err
		}
		l.mu.Lock()
		l.clips[id] = clip
		l.mu.Unlock()
		return clip, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*sampler.Clip), nil
}

// Cached reports how many presets have been decoded.
func (l *Library) Cached() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clips)
}
