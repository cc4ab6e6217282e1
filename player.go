// Package noteblock plays MIDI scores through per-track samplers, drives a
// live spectrum visualizer from the output, and exports recordings.
package noteblock

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	intaudio "github.com/cbegin/noteblock-go/internal/audio"
	"github.com/cbegin/noteblock-go/internal/engine"
	"github.com/cbegin/noteblock-go/internal/instrument"
	"github.com/cbegin/noteblock-go/internal/pitch"
	"github.com/cbegin/noteblock-go/internal/samplestore"
	"github.com/cbegin/noteblock-go/internal/score"
	"github.com/cbegin/noteblock-go/internal/visualizer"
	"github.com/cbegin/noteblock-go/internal/wavfile"
)

// DefaultProjectName names exports when no project is configured.
const DefaultProjectName = "noteblock"

const positionInterval = 16 * time.Millisecond

type PlayerOption func(*playerConfig)

type playerConfig struct {
	loopPlayback     bool
	sampleTap        func([]float32)
	logger           *log.Logger
	assets           fs.FS
	positionListener func(position, duration float64)
	exportMargin     time.Duration
	exportFormat     wavfile.Format
	project          string
}

func defaultPlayerConfig() playerConfig {
	return playerConfig{
		logger:  log.New(io.Discard),
		project: DefaultProjectName,
	}
}

func WithLoopPlayback(enabled bool) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.loopPlayback = enabled
	}
}

// WithSampleTap installs a callback invoked with each generated stereo buffer.
// The callback runs on the audio thread; keep work brief and non-blocking.
func WithSampleTap(tap func([]float32)) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.sampleTap = tap
	}
}

func WithLogger(l *log.Logger) PlayerOption {
	return func(cfg *playerConfig) {
		if l != nil {
			cfg.logger = l
		}
	}
}

// WithAssetFS serves preset samples from fsys (instruments/<id>.ogg). Presets
// missing from it fall back to the built-in synthesized samples.
func WithAssetFS(fsys fs.FS) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.assets = fsys
	}
}

// WithPositionListener receives the transport position about 60 times a
// second while the player is open.
func WithPositionListener(fn func(position, duration float64)) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.positionListener = fn
	}
}

func WithExportMargin(d time.Duration) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.exportMargin = d
	}
}

func WithExportFormat(f wavfile.Format) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.exportFormat = f
	}
}

func WithProjectName(name string) PlayerOption {
	return func(cfg *playerConfig) {
		if name != "" {
			cfg.project = name
		}
	}
}

type Player struct {
	mu         sync.Mutex
	sampleRate int
	cfg        playerConfig
	engine     *engine.Engine
	store      *samplestore.Store
	audio      *intaudio.Backend
	removeTap  func()
	stopTicker chan struct{}
	tickerDone chan struct{}
	closed     bool
}

func NewPlayer(sampleRate int, opts ...PlayerOption) (*Player, error) {
	if sampleRate <= 0 {
		return nil, errors.New("sampleRate must be positive")
	}
	cfg := defaultPlayerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	var src instrument.Source = instrument.SynthSource{SampleRate: sampleRate}
	if cfg.assets != nil {
		src = instrument.Chain{instrument.FSSource{FS: cfg.assets}, src}
	}
	handles := samplestore.NewHandles()
	store := samplestore.New(sampleRate, handles, cfg.logger)
	eng, err := engine.New(sampleRate, engine.Options{
		Library:      instrument.NewLibrary(src, sampleRate),
		Global:       store,
		Handles:      handles,
		Logger:       cfg.logger,
		ExportMargin: cfg.exportMargin,
		ExportFormat: cfg.exportFormat,
	})
	if err != nil {
		return nil, err
	}
	eng.SetLoop(cfg.loopPlayback)
	p := &Player{
		sampleRate: sampleRate,
		cfg:        cfg,
		engine:     eng,
		store:      store,
	}
	if cfg.sampleTap != nil {
		p.removeTap = eng.AddTap(cfg.sampleTap)
	}
	if cfg.positionListener != nil {
		p.stopTicker = make(chan struct{})
		p.tickerDone = make(chan struct{})
		go p.trackPosition(cfg.positionListener)
	}
	return p, nil
}

func (p *Player) trackPosition(fn func(position, duration float64)) {
	defer close(p.tickerDone)
	t := time.NewTicker(positionInterval)
	defer t.Stop()
	for {
		select {
		case <-p.stopTicker:
			return
		case <-t.C:
			fn(p.engine.Position(), p.engine.Duration())
		}
	}
}

func (p *Player) SampleRate() int { return p.sampleRate }

// LoadSample decodes the global sample. basePitch is a note name such as
// "F#4"; empty means pitch.DefaultBase. Tracks using the global sample are
// rebuilt against it.
func (p *Player) LoadSample(ctx context.Context, data []byte, basePitch string) error {
	base, err := parseBase(basePitch)
	if err != nil {
		return err
	}
	if err := p.store.Load(ctx, data, base); err != nil {
		return err
	}
	return p.engine.Refresh(ctx)
}

// ReloadSample re-decodes the global sample at a new base pitch.
func (p *Player) ReloadSample(ctx context.Context, basePitch string) error {
	base, err := parseBase(basePitch)
	if err != nil {
		return err
	}
	if err := p.store.ReloadAtPitch(ctx, base); err != nil {
		return err
	}
	return p.engine.Refresh(ctx)
}

// SampleLoaded reports whether a global sample is ready.
func (p *Player) SampleLoaded() bool { return p.store.Ready() }

func parseBase(name string) (int, error) {
	if name == "" {
		name = pitch.DefaultBase
	}
	return pitch.Parse(name)
}

// LoadMIDI parses an SMF file and replaces the current score with default
// assignments. On error the previous score stays loaded.
func (p *Player) LoadMIDI(ctx context.Context, data []byte) (*score.Score, error) {
	sc, err := score.Parse(data)
	if err != nil {
		return nil, err
	}
	if err := p.engine.LoadScore(ctx, sc, instrument.DefaultAssignments(sc)); err != nil {
		return nil, err
	}
	p.cfg.logger.Info("score loaded", "tracks", len(sc.Tracks), "notes", sc.NoteCount(), "seconds", sc.Duration)
	return sc, nil
}

func (p *Player) Score() *score.Score { return p.engine.Score() }
func (p *Player) Assignments() []instrument.Assignment { return p.engine.Assignments() }
func (p *Player) Unresolved() []engine.Unresolved { return p.engine.Unresolved() }

func (p *Player) ApplyAssignments(ctx context.Context, list []instrument.Assignment) error {
	return p.engine.ApplyAssignments(ctx, list)
}

func (p *Player) PatchTrack(ctx context.Context, trackIndex int, patch instrument.Patch) error {
	return p.engine.PatchTrack(ctx, trackIndex, patch)
}

// RegisterCustomSample decodes a per-track sample and returns the reference
// for Assignment.CustomSampleRef.
func (p *Player) RegisterCustomSample(ctx context.Context, data []byte, basePitch string) (string, error) {
	base, err := parseBase(basePitch)
	if err != nil {
		return "", err
	}
	return p.engine.RegisterCustomSample(ctx, data, base)
}

func (p *Player) ReleaseCustomSample(ctx context.Context, ref string) error {
	return p.engine.ReleaseCustomSample(ctx, ref)
}

// Play starts or resumes playback, opening the audio device on first use.
func (p *Player) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return engine.ErrClosed
	}
	if err := p.engine.Play(); err != nil {
		return err
	}
	if p.audio == nil {
		backend, err := intaudio.NewBackend(p.sampleRate, p.engine)
		if err != nil {
			p.engine.Pause()
			return err
		}
		p.audio = backend
	}
	p.audio.Play()
	return nil
}

func (p *Player) Pause() { p.engine.Pause() }

// Stop halts playback and rewinds to the start.
func (p *Player) Stop() { p.engine.Stop() }

// Seek moves the transport and returns the clamped position in seconds.
func (p *Player) Seek(seconds float64) float64 { return p.engine.Seek(seconds) }

func (p *Player) ToggleLoop() bool { return p.engine.ToggleLoop() }
func (p *Player) SetLoop(on bool) { p.engine.SetLoop(on) }
func (p *Player) Loop() bool { return p.engine.Loop() }
func (p *Player) Position() float64 { return p.engine.Position() }
func (p *Player) Duration() float64 { return p.engine.Duration() }
func (p *Player) State() engine.State { return p.engine.State() }
func (p *Player) IsExporting() bool { return p.engine.IsExporting() }

// Export renders the whole score offline and returns a WAV recording named
// after the project.
func (p *Player) Export(ctx context.Context) (engine.Recording, error) {
	p.cfg.logger.Info("export started", "project", p.cfg.project, "seconds", p.engine.Duration())
	rec, err := p.engine.Export(ctx, p.cfg.project)
	if err != nil {
		p.cfg.logger.Error("export failed", "err", err)
		return rec, err
	}
	p.cfg.logger.Info("export finished", "file", rec.Name, "bytes", len(rec.Data))
	return rec, nil
}

// Watch returns a channel that receives playback events:
//   - EventNote: a note fired (track, note index, pitch, velocity set)
//   - EventLoopCompleted: the score wrapped while looping
//   - EventPlaybackEnded: the score reached its end without looping
//
// The channel is buffered (cap 8); receive in a goroutine to avoid dropping events.
// Only the most recent Watch() channel receives events.
func (p *Player) Watch() <-chan engine.Event { return p.engine.Watch() }

// AddTap observes every rendered buffer. The returned func removes the tap.
func (p *Player) AddTap(fn func([]float32)) (remove func()) { return p.engine.AddTap(fn) }

// Output is the live audio graph for the visualizer. It is nil until Play
// has opened the audio device.
func (p *Player) Output() visualizer.Source {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.audio == nil {
		return nil
	}
	return p.engine
}

// SetMasterVolume sets the master bus gain. 1.0 is unity.
func (p *Player) SetMasterVolume(volume float64) {
	p.engine.Master().SetVolume(float32(volume))
}

func (p *Player) MasterVolume() float64 {
	return float64(p.engine.Master().Volume())
}

// SetReverb sets the master reverb wet level, 0 disables it.
func (p *Player) SetReverb(wet float64) {
	p.engine.Master().SetReverb(float32(wet))
}

// SetEQBand sets the linear gain of master EQ band 0-4, split at
// effects.Crossovers. 1.0 is flat; gains are clamped to [0, 4].
func (p *Player) SetEQBand(band int, gain float32) {
	p.engine.Master().EQ().SetGain(band, gain)
}

func (p *Player) EQBand(band int) float32 {
	return p.engine.Master().EQ().Gain(band)
}

// PlaybackPosition returns what the listener actually hears right now, in
// seconds of device output. Returns 0 before Play.
func (p *Player) PlaybackPosition() float64 {
	p.mu.Lock()
	a := p.audio
	p.mu.Unlock()
	if a == nil {
		return 0
	}
	return a.Position().Seconds()
}

// Close tears the player down: position tracking, then the engine, then the
// sample store handles, then the audio device.
func (p *Player) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	a := p.audio
	p.audio = nil
	p.mu.Unlock()

	if p.stopTicker != nil {
		close(p.stopTicker)
		<-p.tickerDone
	}
	if p.removeTap != nil {
		p.removeTap()
	}
	p.engine.Close()
	p.store.Release()
	if a != nil {
		return a.Close()
	}
	return nil
}
