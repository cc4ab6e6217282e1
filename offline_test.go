package noteblock

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cbegin/noteblock-go/internal/instrument"
	"github.com/cbegin/noteblock-go/internal/score"
	"github.com/cbegin/noteblock-go/internal/score/scoretest"
	"github.com/cbegin/noteblock-go/internal/wavfile"
)

func TestRenderExportsScore(t *testing.T) {
	rec, err := Render(context.Background(), RenderRequest{
		MIDI:       scoretest.Simple(120, 60, 64, 67),
		SampleRate: testRate,
		Project:    "song",
	})
	require.NoError(t, err)
	assert.Equal(t, "song-export.wav", rec.Name)
	assert.Equal(t, testRate, rec.SampleRate)
	assert.Equal(t, wavfile.PCM16, rec.Format)

	data := rec.Data
	require.Greater(t, len(data), 44)
	assert.Equal(t, "WAVE", string(data[8:12]))
	assert.Equal(t, uint32(testRate), binary.LittleEndian.Uint32(data[24:]))
	frames := int(binary.LittleEndian.Uint32(data[40:])) / 4
	assert.Equal(t, int(2.5*testRate), frames)

	var loud bool
	for i := 44; i+1 < len(data); i += 2 {
		if v := int16(binary.LittleEndian.Uint16(data[i:])); v > 1000 || v < -1000 {
			loud = true
			break
		}
	}
	assert.True(t, loud, "rendered notes are audible")
}

func TestRenderWithGlobalSample(t *testing.T) {
	rec, err := Render(context.Background(), RenderRequest{
		MIDI:      scoretest.Simple(120, 60),
		Sample:    sineWAV(0.3),
		BasePitch: "C4",
		Assignments: []instrument.Assignment{
			{TrackIndex: 0, InstrumentID: instrument.GlobalSampleID, Volume: 100},
		},
		SampleRate: testRate,
		Format:     wavfile.Float32,
		Reverb:     0.3,
	})
	require.NoError(t, err)
	assert.Equal(t, DefaultProjectName+"-export.wav", rec.Name)
	assert.Equal(t, wavfile.Float32, rec.Format)
}

func TestRenderMalformedMIDI(t *testing.T) {
	_, err := Render(context.Background(), RenderRequest{MIDI: []byte("MThd"), SampleRate: testRate})
	var malformed *score.MalformedMidiError
	require.True(t, errors.As(err, &malformed), "got %v", err)
}

func TestRenderBadAssignments(t *testing.T) {
	_, err := Render(context.Background(), RenderRequest{
		MIDI:        scoretest.Simple(120, 60),
		Assignments: []instrument.Assignment{{TrackIndex: 5, InstrumentID: "harp", Volume: 100}},
		SampleRate:  testRate,
	})
	require.ErrorIs(t, err, instrument.ErrUnknownTrack)
}
