// Package engine compiles scores into sample-accurate trigger schedules and
// renders them through shared, reference-counted sampler instances.
package engine

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/cbegin/noteblock-go/internal/effects"
	"github.com/cbegin/noteblock-go/internal/instrument"
	"github.com/cbegin/noteblock-go/internal/sampler"
	"github.com/cbegin/noteblock-go/internal/samplestore"
	"github.com/cbegin/noteblock-go/internal/score"
	"github.com/cbegin/noteblock-go/internal/wavfile"
)

// State is the engine's playback state.
type State int

const (
	Idle State = iota
	Loaded
	Playing
	Paused
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loaded:
		return "loaded"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	}
	return "unknown"
}

const (
	DefaultExportMargin = time.Second
	DefaultExportGrace  = 2 * time.Second
)

// Options configures an Engine. Zero values select defaults.
type Options struct {
	Library      *instrument.Library
	Global       *samplestore.Store
	Handles      *samplestore.Handles
	Logger       *log.Logger
	Sampler      sampler.Params
	ExportMargin time.Duration
	ExportGrace  time.Duration
	ExportFormat wavfile.Format
}

type customSample struct {
	handle    *samplestore.Handle
	clip      *sampler.Clip
	basePitch int
}

// Engine is the playback engine. All methods are safe for concurrent use.
// Process is meant to be driven by a single audio goroutine.
type Engine struct {
	sampleRate int
	library    *instrument.Library
	global     *samplestore.Store
	handles    *samplestore.Handles
	logger     *log.Logger
	margin     time.Duration
	grace      time.Duration
	format     wavfile.Format
	master     *effects.Master

	rebuildMu sync.Mutex // serializes schedule rebuilds and exports

	mu          sync.Mutex
	transport   Transport
	score       *score.Score
	assignments []instrument.Assignment
	schedule    *Schedule
	cursor      int
	cache       *samplerCache
	custom      map[string]customSample
	taps        map[int]func([]float32)
	tapList     []func([]float32)
	nextTap     int
	pending     []Event
	closed      bool

	exporting       atomic.Bool
	exportBlockHook func()

	eventMu sync.Mutex
	eventCh chan Event
}

// New creates an engine rendering at sampleRate.
func New(sampleRate int, opts Options) (*Engine, error) {
	if sampleRate <= 0 {
		return nil, errors.New("sampleRate must be positive")
	}
	if opts.Library == nil {
		opts.Library = instrument.NewLibrary(nil, sampleRate)
	}
	if opts.Handles == nil {
		if opts.Global != nil {
			opts.Handles = opts.Global.Handles()
		} else {
			opts.Handles = samplestore.NewHandles()
		}
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	if opts.Sampler.Polyphony == 0 {
		opts.Sampler = sampler.DefaultParams()
	}
	if opts.ExportMargin <= 0 {
		opts.ExportMargin = DefaultExportMargin
	}
	if opts.ExportGrace <= 0 {
		opts.ExportGrace = DefaultExportGrace
	}
	return &Engine{
		sampleRate: sampleRate,
		library:    opts.Library,
		global:     opts.Global,
		handles:    opts.Handles,
		logger:     opts.Logger,
		margin:     opts.ExportMargin,
		grace:      opts.ExportGrace,
		format:     opts.ExportFormat,
		master:     effects.NewMaster(sampleRate),
		transport:  newTransport(sampleRate),
		cache:      newSamplerCache(sampleRate, opts.Sampler),
		custom:     map[string]customSample{},
		taps:       map[int]func([]float32){},
	}, nil
}

func (e *Engine) SampleRate() int { return e.sampleRate }

// Master returns the output bus.
func (e *Engine) Master() *effects.Master { return e.master }

// LoadScore installs a score, replacing any previous one. A nil assignment
// list selects the defaults. The transport is left stopped at 0.
func (e *Engine) LoadScore(ctx context.Context, sc *score.Score, list []instrument.Assignment) error {
	if sc == nil {
		return errors.New("nil score")
	}
	if list == nil {
		list = instrument.DefaultAssignments(sc)
	}
	if err := instrument.Validate(sc, list); err != nil {
		return err
	}
	e.rebuildMu.Lock()
	defer e.rebuildMu.Unlock()
	if e.isClosed() {
		return ErrClosed
	}
	res, err := e.resolve(ctx, sc, list)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.retractLocked()
	e.score = sc
	e.assignments = cloneAssignments(list)
	e.schedule = compile(sc, e.assignments, res, e.sampleRate, e.cache.acquire)
	e.transport.Reset(sc.Duration, sc.TempoBPM)
	e.cursor = 0
	sched := e.schedule
	e.mu.Unlock()

	e.logUnresolved(sched)
	e.logger.Debug("score loaded", "tracks", len(sc.Tracks), "triggers", sched.Len(), "samplers", sched.Samplers(), "duration", sc.Duration)
	return nil
}

// ApplyAssignments recompiles the schedule with a new assignment list,
// keeping transport position and run state.
func (e *Engine) ApplyAssignments(ctx context.Context, list []instrument.Assignment) error {
	e.rebuildMu.Lock()
	defer e.rebuildMu.Unlock()
	return e.rebuild(ctx, list)
}

// PatchTrack changes one track's assignment and recompiles.
func (e *Engine) PatchTrack(ctx context.Context, trackIndex int, p instrument.Patch) error {
	e.rebuildMu.Lock()
	defer e.rebuildMu.Unlock()
	e.mu.Lock()
	current := e.assignments
	e.mu.Unlock()
	next, err := instrument.ApplyPatch(current, trackIndex, p)
	if err != nil {
		return err
	}
	return e.rebuild(ctx, next)
}

// Refresh recompiles with the current assignments, picking up a changed
// global sample.
func (e *Engine) Refresh(ctx context.Context) error {
	e.rebuildMu.Lock()
	defer e.rebuildMu.Unlock()
	e.mu.Lock()
	current := e.assignments
	loaded := e.score != nil
	e.mu.Unlock()
	if !loaded {
		return nil
	}
	return e.rebuild(ctx, current)
}

// rebuild requires rebuildMu.
func (e *Engine) rebuild(ctx context.Context, list []instrument.Assignment) error {
	e.mu.Lock()
	sc, closed := e.score, e.closed
	e.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if sc == nil {
		return ErrNoScore
	}
	if err := instrument.Validate(sc, list); err != nil {
		return err
	}
	res, err := e.resolve(ctx, sc, list)
	if err != nil {
		return err
	}

	// Holding mu keeps the audio goroutine out of Process for the swap.
	e.mu.Lock()
	next := compile(sc, list, res, e.sampleRate, e.cache.acquire)
	old := e.schedule
	e.schedule = next
	e.assignments = cloneAssignments(list)
	e.cursor = next.firstAtOrAfter(e.transport.position)
	if old != nil {
		for _, k := range old.keys {
			e.cache.release(k)
		}
	}
	samplers := e.cache.len()
	e.mu.Unlock()

	e.logUnresolved(next)
	e.logger.Debug("schedule rebuilt", "triggers", next.Len(), "samplers", samplers)
	return nil
}

// retractLocked drops the current schedule and every instance it holds.
func (e *Engine) retractLocked() {
	old := e.schedule
	e.schedule = nil
	e.cursor = 0
	if old == nil {
		return
	}
	for _, k := range old.keys {
		e.cache.release(k)
	}
}

// RegisterCustomSample decodes a per-track sample and returns the reference
// to put in Assignment.CustomSampleRef.
func (e *Engine) RegisterCustomSample(ctx context.Context, data []byte, basePitch int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	clip, err := samplestore.Decode(data, e.sampleRate)
	if err != nil {
		return "", err
	}
	h := e.handles.Acquire()
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		h.Release()
		return "", ErrClosed
	}
	e.custom[h.ID()] = customSample{handle: h, clip: clip, basePitch: basePitch}
	return h.ID(), nil
}

// ReleaseCustomSample revokes a custom sample. Tracks still using it fall
// silent after the rebuild that follows.
func (e *Engine) ReleaseCustomSample(ctx context.Context, ref string) error {
	e.mu.Lock()
	cs, ok := e.custom[ref]
	delete(e.custom, ref)
	e.mu.Unlock()
	if !ok {
		return ErrUnknownSample
	}
	cs.handle.Release()
	return e.Refresh(ctx)
}

// Play starts or resumes the transport.
func (e *Engine) Play() error {
	if e.exporting.Load() {
		return ErrExportInProgress
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	if e.score == nil {
		return ErrNoScore
	}
	if e.transport.Paused() {
		e.transport.Resume()
	} else {
		e.transport.Start()
	}
	return nil
}

// Pause freezes the transport and silences sounding voices. It is a no-op
// unless playing.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.transport.Running() {
		return
	}
	e.transport.Pause()
	e.cache.silence()
}

// Stop halts playback and rewinds to 0.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.transport.Stop()
	e.cursor = 0
	e.cache.silence()
}

// Seek moves to seconds, clamped to the score. Notes starting before the new
// position are not fired; the run state is unchanged.
func (e *Engine) Seek(seconds float64) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.score == nil {
		return 0
	}
	pos := e.transport.Seek(e.transport.Frames(seconds))
	if e.schedule != nil {
		e.cursor = e.schedule.firstAtOrAfter(pos)
	}
	e.cache.silence()
	return e.transport.Seconds(pos)
}

// ToggleLoop flips whole-score looping and returns the new setting.
func (e *Engine) ToggleLoop() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.transport.loop = !e.transport.loop
	return e.transport.loop
}

func (e *Engine) SetLoop(on bool) {
	e.mu.Lock()
	e.transport.loop = on
	e.mu.Unlock()
}

func (e *Engine) Loop() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.transport.loop
}

// Position returns the transport position in seconds.
func (e *Engine) Position() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.transport.PositionSeconds()
}

// Duration returns the score length in seconds, 0 when idle.
func (e *Engine) Duration() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.score == nil {
		return 0
	}
	return e.transport.DurationSeconds()
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stateLocked()
}

func (e *Engine) stateLocked() State {
	switch {
	case e.score == nil:
		return Idle
	case e.transport.Running():
		return Playing
	case e.transport.Paused():
		return Paused
	}
	return Loaded
}

func (e *Engine) Score() *score.Score {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.score
}

// Assignments returns a copy of the current assignment list.
func (e *Engine) Assignments() []instrument.Assignment {
	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneAssignments(e.assignments)
}

// Schedule returns the compiled schedule. It must not be modified.
func (e *Engine) Schedule() *Schedule {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.schedule
}

// Unresolved lists tracks that compiled silent.
func (e *Engine) Unresolved() []Unresolved {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.schedule == nil {
		return nil
	}
	return append([]Unresolved(nil), e.schedule.Unresolved...)
}

// SamplerCount returns the number of live sampler instances.
func (e *Engine) SamplerCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cache.len()
}

func (e *Engine) ActiveVoices() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cache.activeVoices()
}

// AddTap registers a callback receiving every rendered buffer after the
// master bus. It runs on the audio goroutine. The returned func removes it.
func (e *Engine) AddTap(fn func([]float32)) (remove func()) {
	e.mu.Lock()
	id := e.nextTap
	e.nextTap++
	e.taps[id] = fn
	e.rebuildTapsLocked()
	e.mu.Unlock()
	return func() {
		e.mu.Lock()
		delete(e.taps, id)
		e.rebuildTapsLocked()
		e.mu.Unlock()
	}
}

func (e *Engine) rebuildTapsLocked() {
	list := make([]func([]float32), 0, len(e.taps))
	for i := 0; i < e.nextTap; i++ {
		if fn, ok := e.taps[i]; ok {
			list = append(list, fn)
		}
	}
	e.tapList = list
}

// Process renders interleaved stereo audio into dst and advances the transport.
func (e *Engine) Process(dst []float32) {
	clear(dst)
	e.mu.Lock()
	if !e.closed {
		e.advanceLocked(dst)
		e.master.Process(dst)
	}
	taps := e.tapList
	var events []Event
	if len(e.pending) > 0 {
		events = e.pending
		e.pending = nil
	}
	e.mu.Unlock()

	for _, ev := range events {
		e.sendEvent(ev)
	}
	for _, tap := range taps {
		tap(dst)
	}
}

func (e *Engine) advanceLocked(dst []float32) {
	frames := len(dst) / 2
	off := 0
	t := &e.transport
	for off < frames && t.Running() && e.schedule != nil {
		trig := e.schedule.Triggers
		for e.cursor < len(trig) && trig[e.cursor].Frame <= t.position {
			e.fireLocked(trig[e.cursor])
			e.cursor++
		}
		if t.position >= t.duration {
			if t.loop {
				t.position = 0
				e.cursor = 0
				e.pending = append(e.pending, Event{Kind: EventLoopCompleted})
				continue
			}
			t.Stop()
			e.cursor = 0
			e.pending = append(e.pending, Event{Kind: EventPlaybackEnded})
			break
		}
		n := int64(frames - off)
		if e.cursor < len(trig) {
			if d := trig[e.cursor].Frame - t.position; d < n {
				n = d
			}
		}
		if d := t.duration - t.position; d < n {
			n = d
		}
		end := off + int(n)
		e.cache.render(dst[off*2 : end*2])
		off = end
		t.position += n
	}
	if off < frames {
		// release tails keep ringing after a stop
		e.cache.render(dst[off*2:])
	}
}

func (e *Engine) fireLocked(tr Trigger) {
	if tr.inst.Trigger(tr.Pitch, tr.Velocity, tr.HoldFrames) < 0 {
		return
	}
	e.pending = append(e.pending, Event{Kind: EventNote, TrackIndex: tr.TrackIndex, NoteIndex: tr.NoteIndex, Pitch: tr.Pitch, Velocity: tr.Velocity})
}

// Close stops playback, clears the schedule, disposes every sampler and
// revokes custom sample handles, in that order.
func (e *Engine) Close() {
	e.rebuildMu.Lock()
	defer e.rebuildMu.Unlock()
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	e.transport.Stop()
	e.schedule = nil
	e.cursor = 0
	e.cache.disposeAll()
	for ref, cs := range e.custom {
		cs.handle.Release()
		delete(e.custom, ref)
	}
	e.taps = map[int]func([]float32){}
	e.tapList = nil
}

func (e *Engine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

func (e *Engine) globalSample() (samplestore.Sample, bool) {
	if e.global == nil {
		return samplestore.Sample{}, false
	}
	return e.global.Snapshot()
}

func (e *Engine) logUnresolved(s *Schedule) {
	for _, u := range s.Unresolved {
		e.logger.Warn("track has no playable sample", "track", u.TrackIndex, "instrument", u.InstrumentID, "reason", u.Reason)
	}
}

func cloneAssignments(list []instrument.Assignment) []instrument.Assignment {
	if list == nil {
		return nil
	}
	out := make([]instrument.Assignment, len(list))
	copy(out, list)
	return out
}
