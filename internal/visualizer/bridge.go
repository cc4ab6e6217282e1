package visualizer

import (
	"image/draw"
	"io"
	"math"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Source is the live output the bridge observes. The engine satisfies it.
type Source interface {
	AddTap(fn func([]float32)) (remove func())
}

// Bridge connects an audio tap to a canvas. It never controls playback.
type Bridge struct {
	mu         sync.Mutex
	sampleRate int
	opts       Options
	analyzer   *Analyzer
	bands      []Band
	canvas     draw.Image
	remove     func()
	angle      float64
	last       time.Time
	now        func() time.Time
	logger     *log.Logger
}

type BridgeOption func(*Bridge)

func WithLogger(l *log.Logger) BridgeOption {
	return func(b *Bridge) {
		if l != nil {
			b.logger = l
		}
	}
}

func WithFFTSize(n int) BridgeOption {
	return func(b *Bridge) { b.analyzer = NewAnalyzer(b.sampleRate, n) }
}

func withClock(now func() time.Time) BridgeOption {
	return func(b *Bridge) { b.now = now }
}

func NewBridge(sampleRate int, opts Options, options ...BridgeOption) *Bridge {
	b := &Bridge{
		sampleRate: sampleRate,
		opts:       opts.Normalize(),
		now:        time.Now,
		logger:     log.New(io.Discard),
	}
	for _, o := range options {
		o(b)
	}
	if b.analyzer == nil {
		b.analyzer = NewAnalyzer(sampleRate, DefaultFFTSize)
	}
	b.bands = layoutBands(b.opts.Mode, sampleRate)
	return b
}

// Attach binds the bridge to a canvas and an output tap. It returns false
// without side effects when there is no audio graph yet, so callers can
// retry once one exists. A second successful call is a no-op.
func (b *Bridge) Attach(canvas draw.Image, src Source) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.remove != nil {
		return true
	}
	if canvas == nil || src == nil {
		b.logger.Debug("visualizer attach deferred", "canvas", canvas != nil, "source", src != nil)
		return false
	}
	b.canvas = canvas
	b.remove = src.AddTap(b.analyzer.Write)
	b.last = b.now()
	b.logger.Debug("visualizer attached", "bands", len(b.bands))
	return true
}

func (b *Bridge) Attached() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.remove != nil
}

// ApplyOptions reconfigures rendering in place; the tap stays attached.
func (b *Bridge) ApplyOptions(o Options) {
	o = o.Normalize()
	b.mu.Lock()
	defer b.mu.Unlock()
	if o.Mode.bandsPerOctave() != b.opts.Mode.bandsPerOctave() {
		b.bands = layoutBands(o.Mode, b.sampleRate)
	}
	if !o.Radial {
		b.angle = 0
	}
	b.opts = o
}

func (b *Bridge) ApplyPreset(name string) error {
	p, ok := PresetByName(name)
	if !ok {
		return ErrUnknownPreset
	}
	b.ApplyOptions(p.Options)
	return nil
}

func (b *Bridge) Options() Options {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opts
}

// Bands returns a copy of the current band levels.
func (b *Bridge) Bands() []Band {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Band, len(b.bands))
	copy(out, b.bands)
	return out
}

// Frame analyses the latest output and redraws the canvas. It reports
// false when nothing is attached.
func (b *Bridge) Frame() bool {
	spectrum := b.analyzer.Spectrum()
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.remove == nil {
		return false
	}
	now := b.now()
	dt := now.Sub(b.last).Seconds()
	b.last = now
	if b.opts.Radial && b.opts.SpinSpeed != 0 {
		b.angle = math.Mod(b.angle+b.opts.SpinSpeed*2*math.Pi/60*dt, 2*math.Pi)
	}
	updateBands(b.bands, spectrum, b.analyzer.BinHz(), b.opts.Smoothing)
	renderer{opts: b.opts, angle: b.angle}.draw(b.canvas, b.bands)
	return true
}

// Detach removes the tap and forgets the canvas.
func (b *Bridge) Detach() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.remove != nil {
		b.remove()
		b.remove = nil
	}
	b.canvas = nil
	b.analyzer.Reset()
	for i := range b.bands {
		b.bands[i].Level, b.bands[i].Peak = 0, 0
	}
}
