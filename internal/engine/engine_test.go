package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cbegin/noteblock-go/internal/instrument"
	"github.com/cbegin/noteblock-go/internal/sampler"
	"github.com/cbegin/noteblock-go/internal/samplestore"
	"github.com/cbegin/noteblock-go/internal/score"
	"github.com/cbegin/noteblock-go/internal/score/scoretest"
	"github.com/cbegin/noteblock-go/internal/synth"
	"github.com/cbegin/noteblock-go/internal/wavfile"
)

const testRate = 8000

// twoTrackScore has a 10-note track and a 5-note track, 2.5s long at 120 BPM.
func twoTrackScore(t testing.TB) *score.Score {
	t.Helper()
	var a, b scoretest.Track
	a.Name = "Melody"
	for i := 0; i < 10; i++ {
		a.Notes = append(a.Notes, scoretest.Note{Key: uint8(60 + i), Beat: float64(i) * 0.5, Beats: 0.5})
	}
	b.Name = "Bass"
	for i := 0; i < 5; i++ {
		b.Notes = append(b.Notes, scoretest.Note{Key: uint8(40 + i), Beat: float64(i), Beats: 1, Channel: 1})
	}
	sc, err := score.Parse(scoretest.Encode(scoretest.File{
		Tempos: []scoretest.TempoChange{{BPM: 120}},
		Tracks: []scoretest.Track{a, b},
	}))
	require.NoError(t, err)
	require.Len(t, sc.Tracks, 2)
	return sc
}

func newTestEngine(t testing.TB, opts Options) *Engine {
	t.Helper()
	if opts.Library == nil {
		opts.Library = instrument.NewLibrary(instrument.SynthSource{SampleRate: testRate, Seconds: 0.3}, testRate)
	}
	e, err := New(testRate, opts)
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e
}

func loadedEngine(t testing.TB) (*Engine, *score.Score) {
	t.Helper()
	e := newTestEngine(t, Options{})
	sc := twoTrackScore(t)
	require.NoError(t, e.LoadScore(context.Background(), sc, nil))
	return e, sc
}

type triggerKey struct {
	Frame      int64
	TrackIndex int
	NoteIndex  int
	Pitch      int
	Velocity   float64
	Key        sampler.Key
}

func triggerSet(s *Schedule) []triggerKey {
	out := make([]triggerKey, 0, s.Len())
	for _, tr := range s.Triggers {
		out = append(out, triggerKey{tr.Frame, tr.TrackIndex, tr.NoteIndex, tr.Pitch, tr.Velocity, tr.Key})
	}
	return out
}

func processSeconds(e *Engine, seconds float64, block int) {
	buf := make([]float32, block*2)
	frames := int(seconds * testRate)
	for done := 0; done < frames; done += block {
		e.Process(buf)
	}
}

// runCollecting processes audio while draining the event channel.
func runCollecting(e *Engine, events <-chan Event, seconds float64, block int) []Event {
	var out []Event
	buf := make([]float32, block*2)
	frames := int(seconds * testRate)
	for done := 0; done < frames; done += block {
		e.Process(buf)
		for len(events) > 0 {
			out = append(out, <-events)
		}
	}
	return out
}

func hasEvent(evs []Event, kind EventKind) bool {
	for _, ev := range evs {
		if ev.Kind == kind {
			return true
		}
	}
	return false
}

func TestNewRejectsBadRate(t *testing.T) {
	_, err := New(0, Options{})
	assert.Error(t, err)
}

func TestStateTransitions(t *testing.T) {
	e := newTestEngine(t, Options{})
	assert.Equal(t, Idle, e.State())
	assert.ErrorIs(t, e.Play(), ErrNoScore)

	require.NoError(t, e.LoadScore(context.Background(), twoTrackScore(t), nil))
	assert.Equal(t, Loaded, e.State())
	require.NoError(t, e.Play())
	assert.Equal(t, Playing, e.State())
	e.Pause()
	assert.Equal(t, Paused, e.State())
	require.NoError(t, e.Play())
	assert.Equal(t, Playing, e.State())
	e.Stop()
	assert.Equal(t, Loaded, e.State())
	assert.Zero(t, e.Position())
}

// Scenario A and P1/P5.
func TestDefaultScheduleSharesOneSampler(t *testing.T) {
	e, sc := loadedEngine(t)
	s := e.Schedule()
	assert.Equal(t, sc.NoteCount(), s.Len())
	assert.Equal(t, 15, s.Len())
	assert.Equal(t, 1, s.Samplers())
	assert.Equal(t, 1, e.SamplerCount())
	assert.Empty(t, e.Unresolved())
}

// Scenario B and P2.
func TestMuteRemovesOnlyThatTrack(t *testing.T) {
	e, sc := loadedEngine(t)
	ctx := context.Background()
	before := triggerSet(e.Schedule())
	bass := sc.Tracks[1].Index

	muted := true
	require.NoError(t, e.PatchTrack(ctx, bass, instrument.Patch{Muted: &muted}))
	s := e.Schedule()
	assert.Equal(t, 10, s.Len())
	assert.Empty(t, s.ForTrack(bass))
	var complement []triggerKey
	for _, tk := range before {
		if tk.TrackIndex != bass {
			complement = append(complement, tk)
		}
	}
	assert.Equal(t, complement, triggerSet(s))

	muted = false
	require.NoError(t, e.PatchTrack(ctx, bass, instrument.Patch{Muted: &muted}))
	assert.Equal(t, before, triggerSet(e.Schedule()))
}

// Scenario C and P3.
func TestPitchOffsetTransposesOneTrack(t *testing.T) {
	e, sc := loadedEngine(t)
	melody := sc.Tracks[0]
	off := 12
	require.NoError(t, e.PatchTrack(context.Background(), melody.Index, instrument.Patch{PitchOffset: &off}))
	s := e.Schedule()
	for _, tr := range s.ForTrack(melody.Index) {
		assert.Equal(t, melody.Notes[tr.NoteIndex].Pitch+12, tr.Pitch)
	}
	bass := sc.Tracks[1]
	for _, tr := range s.ForTrack(bass.Index) {
		assert.Equal(t, bass.Notes[tr.NoteIndex].Pitch, tr.Pitch)
	}
	assert.Equal(t, 1, e.SamplerCount(), "offset changes must not create samplers")
}

func TestPitchOffsetClampsAndMarksTriggers(t *testing.T) {
	e, sc := loadedEngine(t)
	melody := sc.Tracks[0]
	off := 100
	require.NoError(t, e.PatchTrack(context.Background(), melody.Index, instrument.Patch{PitchOffset: &off}))
	trigs := e.Schedule().ForTrack(melody.Index)
	require.NotEmpty(t, trigs)
	for _, tr := range trigs {
		assert.Equal(t, 127, tr.Pitch)
		assert.True(t, tr.Clamped, "note %d", tr.NoteIndex)
	}
	for _, tr := range e.Schedule().ForTrack(sc.Tracks[1].Index) {
		assert.False(t, tr.Clamped)
	}

	off = -50
	require.NoError(t, e.PatchTrack(context.Background(), melody.Index, instrument.Patch{PitchOffset: &off}))
	for _, tr := range e.Schedule().ForTrack(melody.Index) {
		assert.Equal(t, melody.Notes[tr.NoteIndex].Pitch-50, tr.Pitch)
		assert.False(t, tr.Clamped)
	}
}

func TestVolumeScalesVelocity(t *testing.T) {
	e, sc := loadedEngine(t)
	tr := sc.Tracks[0]
	vol := 50
	require.NoError(t, e.PatchTrack(context.Background(), tr.Index, instrument.Patch{Volume: &vol}))
	for _, trig := range e.Schedule().ForTrack(tr.Index) {
		assert.InDelta(t, tr.Notes[trig.NoteIndex].Velocity*0.5, trig.Velocity, 1e-9)
	}
}

func TestSamplerCacheByKey(t *testing.T) {
	e, _ := loadedEngine(t)
	ctx := context.Background()
	list := e.Assignments()
	list[1].BasePitchOverride = "C4"
	require.NoError(t, e.ApplyAssignments(ctx, list))
	assert.Equal(t, 2, e.SamplerCount(), "different base pitch means a new sampler")

	list[1].BasePitchOverride = ""
	list[1].InstrumentID = "bell"
	list[0].InstrumentID = "bell"
	require.NoError(t, e.ApplyAssignments(ctx, list))
	assert.Equal(t, 1, e.SamplerCount(), "unused samplers are disposed")
	for _, tr := range e.Schedule().Triggers {
		assert.Equal(t, "preset:bell", tr.Key.Source)
	}
}

func TestRebuildReusesPersistingSampler(t *testing.T) {
	e, _ := loadedEngine(t)
	first := e.Schedule().Triggers[0].inst
	list := e.Assignments()
	list[1].PitchOffset = -5
	require.NoError(t, e.ApplyAssignments(context.Background(), list))
	again := e.Schedule().Triggers[0].inst
	assert.Same(t, first, again)
	assert.False(t, first.Disposed())

	list[0].InstrumentID = "pling"
	list[1].InstrumentID = "pling"
	require.NoError(t, e.ApplyAssignments(context.Background(), list))
	assert.True(t, first.Disposed())
}

func TestUnavailableSamplesLeaveTracksSilent(t *testing.T) {
	store := samplestore.New(testRate, nil, nil)
	e := newTestEngine(t, Options{Global: store})
	sc := twoTrackScore(t)
	list := instrument.DefaultAssignments(sc)
	list[0].InstrumentID = instrument.GlobalSampleID
	list[1].InstrumentID = instrument.CustomSampleID
	require.NoError(t, e.LoadScore(context.Background(), sc, list))

	assert.Zero(t, e.Schedule().Len())
	un := e.Unresolved()
	require.Len(t, un, 2)
	assert.Equal(t, "global sample not loaded", un[0].Reason)
	assert.Equal(t, "custom sample not provided", un[1].Reason)
	require.NoError(t, e.Play(), "silence is acceptable")

	pcm := synth.Render(synth.Pluck, 66, testRate, 0.2)
	require.NoError(t, store.Load(context.Background(), wavfile.Encode(pcm, testRate, 2, wavfile.PCM16), 66))
	require.NoError(t, e.Refresh(context.Background()))
	assert.Equal(t, 10, e.Schedule().Len())
	assert.Len(t, e.Unresolved(), 1)
	assert.Equal(t, "global:", e.Schedule().Triggers[0].Key.Source[:7])
}

func TestCustomSampleLifecycle(t *testing.T) {
	handles := samplestore.NewHandles()
	e := newTestEngine(t, Options{Handles: handles})
	sc := twoTrackScore(t)
	require.NoError(t, e.LoadScore(context.Background(), sc, nil))

	pcm := synth.Render(synth.Bell, 72, testRate, 0.2)
	ref, err := e.RegisterCustomSample(context.Background(), wavfile.Encode(pcm, testRate, 2, wavfile.PCM16), 72)
	require.NoError(t, err)
	assert.Equal(t, 1, handles.Live())

	custom := instrument.CustomSampleID
	require.NoError(t, e.PatchTrack(context.Background(), sc.Tracks[1].Index, instrument.Patch{InstrumentID: &custom, CustomSampleRef: &ref}))
	assert.Equal(t, 15, e.Schedule().Len())
	assert.Equal(t, 2, e.SamplerCount())

	require.NoError(t, e.ReleaseCustomSample(context.Background(), ref))
	assert.Equal(t, 0, handles.Live())
	assert.Equal(t, 10, e.Schedule().Len())
	assert.ErrorIs(t, e.ReleaseCustomSample(context.Background(), ref), ErrUnknownSample)

	_, err = e.RegisterCustomSample(context.Background(), []byte("nope"), 60)
	var dErr *samplestore.DecodeError
	assert.ErrorAs(t, err, &dErr)
}

// P6.
func TestApplyAssignmentsPreservesPosition(t *testing.T) {
	e, _ := loadedEngine(t)
	require.NoError(t, e.Play())
	processSeconds(e, 1.0, 256)
	p := e.Position()
	require.Greater(t, p, 0.9)

	list := e.Assignments()
	list[0].InstrumentID = "flute"
	require.NoError(t, e.ApplyAssignments(context.Background(), list))
	assert.Equal(t, Playing, e.State())
	assert.InDelta(t, p, e.Position(), 1.0/testRate)

	e.Pause()
	require.NoError(t, e.ApplyAssignments(context.Background(), e.Assignments()))
	assert.Equal(t, Paused, e.State())
	assert.InDelta(t, p, e.Position(), 1.0/testRate)
}

func TestRebuildDoesNotRefireAtSeam(t *testing.T) {
	e, _ := loadedEngine(t)
	events := e.Watch()
	require.NoError(t, e.Play())
	fired := map[[2]int]int{}
	drain := func() {
		for {
			select {
			case ev := <-events:
				if ev.Kind == EventNote {
					fired[[2]int{ev.TrackIndex, ev.NoteIndex}]++
				}
			default:
				return
			}
		}
	}
	buf := make([]float32, 64*2)
	for i := 0; i < int(testRate*1.2)/64; i++ {
		e.Process(buf)
		drain()
		if i%20 == 0 {
			require.NoError(t, e.ApplyAssignments(context.Background(), e.Assignments()))
		}
	}
	for k, n := range fired {
		assert.Equal(t, 1, n, "note %v fired %d times", k, n)
	}
}

// P4.
func TestSeekDoesNotFireRetroactively(t *testing.T) {
	e, _ := loadedEngine(t)
	events := e.Watch()
	target := 1.1
	assert.InDelta(t, target, e.Seek(target), 1e-3)
	pos := e.Position()
	e.Seek(target)
	assert.Equal(t, pos, e.Position())

	require.NoError(t, e.Play())
	s := e.Schedule()
	startFrame := int64(target * testRate)
	want := len(s.Triggers) - s.firstAtOrAfter(startFrame)

	buf := make([]float32, 32*2)
	got := 0
	for e.State() == Playing {
		e.Process(buf)
	drain:
		for {
			select {
			case ev := <-events:
				if ev.Kind != EventNote {
					continue
				}
				got++
				for _, tr := range s.Triggers {
					if tr.TrackIndex == ev.TrackIndex && tr.NoteIndex == ev.NoteIndex {
						assert.GreaterOrEqual(t, tr.Frame, startFrame)
					}
				}
			default:
				break drain
			}
		}
	}
	assert.Equal(t, want, got)
}

func TestSeekClamps(t *testing.T) {
	e, _ := loadedEngine(t)
	assert.Zero(t, e.Seek(-3))
	assert.InDelta(t, e.Duration(), e.Seek(1e6), 1e-9)
	require.NoError(t, e.Play())
	e.Seek(1)
	assert.Equal(t, Playing, e.State(), "seek keeps the run state")
}

func TestPlaybackEndsAndRewinds(t *testing.T) {
	e, _ := loadedEngine(t)
	events := e.Watch()
	require.NoError(t, e.Play())
	evs := runCollecting(e, events, e.Duration()+0.1, 64)
	assert.Equal(t, Loaded, e.State())
	assert.Zero(t, e.Position())
	assert.True(t, hasEvent(evs, EventPlaybackEnded))
}

// Scenario E.
func TestLoopWrapsToStart(t *testing.T) {
	e, _ := loadedEngine(t)
	events := e.Watch()
	assert.True(t, e.ToggleLoop())
	require.NoError(t, e.Play())
	evs := runCollecting(e, events, e.Duration()+0.05, 64)
	assert.Equal(t, Playing, e.State())
	assert.Less(t, e.Position(), 0.1)
	assert.True(t, hasEvent(evs, EventLoopCompleted))
	assert.False(t, hasEvent(evs, EventPlaybackEnded))
	assert.False(t, e.ToggleLoop())
}

func TestLoadScoreRetractsPreviousSchedule(t *testing.T) {
	e, _ := loadedEngine(t)
	first := e.Schedule().Triggers[0].inst
	require.NoError(t, e.Play())
	processSeconds(e, 0.5, 256)

	sc, err := score.Parse(scoretest.Simple(100, 70, 72))
	require.NoError(t, err)
	require.NoError(t, e.LoadScore(context.Background(), sc, nil))
	assert.True(t, first.Disposed())
	assert.Equal(t, Loaded, e.State())
	assert.Zero(t, e.Position())
	assert.Equal(t, 2, e.Schedule().Len())
}

func TestLoadScoreRejectsBadAssignments(t *testing.T) {
	e := newTestEngine(t, Options{})
	sc := twoTrackScore(t)
	list := instrument.DefaultAssignments(sc)
	err := e.LoadScore(context.Background(), sc, append(list, list[0]))
	assert.ErrorIs(t, err, instrument.ErrDuplicateTrack)
	assert.Equal(t, Idle, e.State())
}

func TestApplyAssignmentsWithoutScore(t *testing.T) {
	e := newTestEngine(t, Options{})
	assert.ErrorIs(t, e.ApplyAssignments(context.Background(), nil), ErrNoScore)
}

func TestConcurrentRebuildsSettleOnOneResult(t *testing.T) {
	e, _ := loadedEngine(t)
	ctx := context.Background()
	done := make(chan error, 6)
	for _, id := range []string{"bell", "bass", "flute", "bit", "hat", "banjo"} {
		list := e.Assignments()
		for i := range list {
			list[i].InstrumentID = id
		}
		go func() { done <- e.ApplyAssignments(ctx, list) }()
	}
	for i := 0; i < 6; i++ {
		require.NoError(t, <-done)
	}
	final := e.Assignments()[0].InstrumentID
	assert.Equal(t, 1, e.SamplerCount())
	for _, tr := range e.Schedule().Triggers {
		assert.Equal(t, "preset:"+final, tr.Key.Source)
	}
}

func TestTapsSeeMasterOutput(t *testing.T) {
	e, _ := loadedEngine(t)
	var calls int
	var peak float32
	remove := e.AddTap(func(buf []float32) {
		calls++
		for _, s := range buf {
			if s > peak {
				peak = s
			}
		}
	})
	require.NoError(t, e.Play())
	processSeconds(e, 0.3, 256)
	assert.Positive(t, calls)
	assert.Positive(t, peak)

	remove()
	before := calls
	processSeconds(e, 0.1, 256)
	assert.Equal(t, before, calls)
}

func TestCloseReleasesEverything(t *testing.T) {
	handles := samplestore.NewHandles()
	e := newTestEngine(t, Options{Handles: handles})
	require.NoError(t, e.LoadScore(context.Background(), twoTrackScore(t), nil))
	pcm := synth.Render(synth.Bit, 60, testRate, 0.1)
	_, err := e.RegisterCustomSample(context.Background(), wavfile.Encode(pcm, testRate, 2, wavfile.PCM16), 60)
	require.NoError(t, err)
	inst := e.Schedule().Triggers[0].inst

	e.Close()
	assert.True(t, inst.Disposed())
	assert.Zero(t, handles.Live())
	assert.Zero(t, e.SamplerCount())
	assert.ErrorIs(t, e.Play(), ErrClosed)
	e.Close()
}

func BenchmarkEngineProcess(b *testing.B) {
	e, _ := loadedEngine(b)
	e.SetLoop(true)
	if err := e.Play(); err != nil {
		b.Fatalf("play: %v", err)
	}
	buf := make([]float32, 512*2)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		e.Process(buf)
	}
}

func chordScore(t testing.TB, notes int) *score.Score {
	t.Helper()
	var tr scoretest.Track
	for i := 0; i < notes; i++ {
		tr.Notes = append(tr.Notes, scoretest.Note{Key: uint8(48 + i), Beats: 0.05})
	}
	sc, err := score.Parse(scoretest.Encode(scoretest.File{
		Tempos: []scoretest.TempoChange{{BPM: 120}},
		Tracks: []scoretest.Track{tr},
	}))
	require.NoError(t, err)
	return sc
}

func drainEvents(events <-chan Event) []Event {
	var out []Event
	for len(events) > 0 {
		out = append(out, <-events)
	}
	return out
}

func TestEndEventSurvivesDenseChord(t *testing.T) {
	e := newTestEngine(t, Options{})
	require.NoError(t, e.LoadScore(context.Background(), chordScore(t, 20), nil))
	events := e.Watch()
	require.NoError(t, e.Play())

	// The whole chord and the end of the score fall into one buffer that
	// nobody reads until afterwards.
	e.Process(make([]float32, 2048*2))
	assert.Equal(t, Loaded, e.State())

	evs := drainEvents(events)
	assert.LessOrEqual(t, len(evs), eventBuffer)
	assert.True(t, hasEvent(evs, EventNote))
	require.True(t, hasEvent(evs, EventPlaybackEnded), "got %d events", len(evs))
	assert.Equal(t, EventPlaybackEnded, evs[len(evs)-1].Kind)
}

func TestLatestLoopEventKeptWhenReaderStalls(t *testing.T) {
	e := newTestEngine(t, Options{})
	require.NoError(t, e.LoadScore(context.Background(), chordScore(t, 20), nil))
	events := e.Watch()
	e.SetLoop(true)
	require.NoError(t, e.Play())

	// Many loops of a 200-frame score without reading the channel.
	processSeconds(e, 2, 512)
	evs := drainEvents(events)
	require.NotEmpty(t, evs)
	assert.LessOrEqual(t, len(evs), eventBuffer)
	assert.Equal(t, EventLoopCompleted, evs[len(evs)-1].Kind)
}
