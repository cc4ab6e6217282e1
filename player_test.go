package noteblock

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cbegin/noteblock-go/internal/engine"
	"github.com/cbegin/noteblock-go/internal/instrument"
	"github.com/cbegin/noteblock-go/internal/pitch"
	"github.com/cbegin/noteblock-go/internal/score"
	"github.com/cbegin/noteblock-go/internal/score/scoretest"
	"github.com/cbegin/noteblock-go/internal/wavfile"
)

const testRate = 8000

func sineWAV(seconds float64) []byte {
	n := int(testRate * seconds)
	pcm := make([]float32, n*2)
	for i := 0; i < n; i++ {
		v := float32(0.5 * math.Sin(2*math.Pi*440*float64(i)/testRate))
		pcm[i*2], pcm[i*2+1] = v, v
	}
	return wavfile.Encode(pcm, testRate, 2, wavfile.PCM16)
}

func newTestPlayer(t *testing.T, opts ...PlayerOption) *Player {
	t.Helper()
	pl, err := NewPlayer(testRate, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pl.Close() })
	return pl
}

func TestNewPlayerRejectsBadRate(t *testing.T) {
	_, err := NewPlayer(0)
	require.Error(t, err)
}

func TestPlayerMasterVolumeRuntimeAPI(t *testing.T) {
	pl := newTestPlayer(t)
	if got := pl.MasterVolume(); got != 1 {
		t.Fatalf("default master volume = %v, want 1", got)
	}
	pl.SetMasterVolume(0.5)
	if got := pl.MasterVolume(); got != 0.5 {
		t.Fatalf("master volume = %v, want 0.5", got)
	}
	pl.SetMasterVolume(-2)
	if got := pl.MasterVolume(); got != 0 {
		t.Fatalf("master volume should clamp to 0, got %v", got)
	}
	pl.SetEQBand(2, 1.5)
	if got := pl.EQBand(2); got != 1.5 {
		t.Fatalf("eq band 2 = %v, want 1.5", got)
	}
}

func TestPlayerLoadMIDI(t *testing.T) {
	pl := newTestPlayer(t)
	assert.Equal(t, engine.Idle, pl.State())

	sc, err := pl.LoadMIDI(context.Background(), scoretest.Simple(120, 60, 62, 64))
	require.NoError(t, err)
	require.Len(t, sc.Tracks, 1)
	assert.Equal(t, 3, sc.NoteCount())
	assert.Equal(t, engine.Loaded, pl.State())
	assert.InDelta(t, 1.5, pl.Duration(), 1e-3)

	as := pl.Assignments()
	require.Len(t, as, 1)
	assert.Equal(t, instrument.DefaultInstrumentID, as[0].InstrumentID)
	assert.Empty(t, pl.Unresolved())
}

func TestPlayerMalformedMIDIKeepsScore(t *testing.T) {
	pl := newTestPlayer(t)
	ctx := context.Background()
	first, err := pl.LoadMIDI(ctx, scoretest.Simple(120, 60))
	require.NoError(t, err)

	_, err = pl.LoadMIDI(ctx, []byte("not a midi file"))
	var malformed *score.MalformedMidiError
	require.True(t, errors.As(err, &malformed), "got %v", err)
	assert.Same(t, first, pl.Score())
}

func TestPlayerGlobalSample(t *testing.T) {
	pl := newTestPlayer(t)
	ctx := context.Background()
	_, err := pl.LoadMIDI(ctx, scoretest.Simple(120, 60, 64))
	require.NoError(t, err)

	list := pl.Assignments()
	list[0].InstrumentID = instrument.GlobalSampleID
	require.NoError(t, pl.ApplyAssignments(ctx, list))
	require.Len(t, pl.Unresolved(), 1, "global sample not loaded yet")

	require.ErrorIs(t, pl.LoadSample(ctx, sineWAV(0.2), "H9"), pitch.ErrInvalidName)
	require.NoError(t, pl.LoadSample(ctx, sineWAV(0.2), "A4"))
	assert.True(t, pl.SampleLoaded())
	assert.Empty(t, pl.Unresolved(), "tracks pick up the loaded sample")

	require.NoError(t, pl.ReloadSample(ctx, "C5"))
	assert.Empty(t, pl.Unresolved())
}

func TestPlayerCustomSample(t *testing.T) {
	pl := newTestPlayer(t)
	ctx := context.Background()
	_, err := pl.LoadMIDI(ctx, scoretest.Simple(120, 60))
	require.NoError(t, err)

	ref, err := pl.RegisterCustomSample(ctx, sineWAV(0.1), "")
	require.NoError(t, err)
	custom := instrument.CustomSampleID
	require.NoError(t, pl.PatchTrack(ctx, 0, instrument.Patch{InstrumentID: &custom}))
	list := pl.Assignments()
	list[0].CustomSampleRef = ref
	require.NoError(t, pl.ApplyAssignments(ctx, list))
	assert.Empty(t, pl.Unresolved())

	require.NoError(t, pl.ReleaseCustomSample(ctx, ref))
	assert.Len(t, pl.Unresolved(), 1)
}

func TestPlayerTransportWithoutDevice(t *testing.T) {
	pl := newTestPlayer(t)
	_, err := pl.LoadMIDI(context.Background(), scoretest.Simple(120, 60, 62, 64))
	require.NoError(t, err)

	assert.False(t, pl.Loop())
	assert.True(t, pl.ToggleLoop())
	assert.InDelta(t, 1.0, pl.Seek(1.0), 1e-3)
	assert.InDelta(t, 1.5, pl.Seek(99), 1e-3)
	pl.Stop()
	assert.Equal(t, 0.0, pl.Position())
	assert.Nil(t, pl.Output(), "no audio graph before Play")
	assert.Equal(t, 0.0, pl.PlaybackPosition())
}

func TestPlayerExportRestoresPosition(t *testing.T) {
	pl := newTestPlayer(t, WithProjectName("demo"))
	ctx := context.Background()
	_, err := pl.LoadMIDI(ctx, scoretest.Simple(120, 60, 62, 64))
	require.NoError(t, err)
	pl.Seek(0.5)

	rec, err := pl.Export(ctx)
	require.NoError(t, err)
	assert.Equal(t, "demo-export.wav", rec.Name)
	assert.InDelta(t, 2.5, rec.Seconds, 1e-3)
	assert.Equal(t, "RIFF", string(rec.Data[:4]))
	assert.InDelta(t, 0.5, pl.Position(), 1e-3)
	assert.Equal(t, engine.Loaded, pl.State())
	assert.False(t, pl.IsExporting())
}

func TestPlayerExportWithoutScore(t *testing.T) {
	pl := newTestPlayer(t)
	_, err := pl.Export(context.Background())
	require.ErrorIs(t, err, engine.ErrNoScore)
}

func TestPlayerPositionListenerStopsOnClose(t *testing.T) {
	ticks := make(chan float64, 64)
	pl, err := NewPlayer(testRate, WithPositionListener(func(pos, dur float64) {
		select {
		case ticks <- dur:
		default:
		}
	}))
	require.NoError(t, err)
	_, err = pl.LoadMIDI(context.Background(), scoretest.Simple(120, 60, 62))
	require.NoError(t, err)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case dur := <-ticks:
			if dur > 0.9 {
				goto loaded
			}
		case <-deadline:
			t.Fatal("position listener never reported the loaded score")
		}
	}
loaded:
	require.NoError(t, pl.Close())
	require.NoError(t, pl.Close(), "close is idempotent")
	for len(ticks) > 0 {
		<-ticks
	}
	time.Sleep(5 * positionInterval)
	assert.Empty(t, ticks, "no ticks after Close")
	assert.Equal(t, 0, pl.store.Handles().Live())
	require.ErrorIs(t, pl.Play(), engine.ErrClosed)
}

func TestPlayerSampleTapRemovedOnClose(t *testing.T) {
	var calls int
	pl, err := NewPlayer(testRate, WithSampleTap(func([]float32) { calls++ }))
	require.NoError(t, err)
	buf := make([]float32, 64)
	pl.engine.Process(buf)
	assert.Equal(t, 1, calls)
	require.NoError(t, pl.Close())
}
