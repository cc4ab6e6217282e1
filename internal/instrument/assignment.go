package instrument

import (
	"errors"
	"fmt"

	"github.com/cbegin/noteblock-go/internal/score"
)

var (
	ErrUnknownTrack   = errors.New("unknown track")
	ErrDuplicateTrack = errors.New("duplicate track assignment")
	ErrMissingTrack   = errors.New("track has no assignment")
)

// Assignment is the instrument configuration of one exposed track.
//
// PitchOffset transposes every note of the track by that many semitones.
// Results outside the MIDI range are clamped to 0 or 127, so a large offset
// no longer preserves intervals; the compiled triggers mark those notes as
// Clamped.
type Assignment struct {
	TrackIndex        int    `json:"trackIndex"`
	InstrumentID      string `json:"instrumentId"`
	CustomSampleRef   string `json:"customSampleRef,omitempty"`
	BasePitchOverride string `json:"basePitchOverride,omitempty"`
	PitchOffset       int    `json:"pitchOffset"`
	Volume            int    `json:"volume"`
	Muted             bool   `json:"muted"`
}

// Patch carries the fields to change on one assignment. Nil fields are left alone.
type Patch struct {
	InstrumentID      *string `json:"instrumentId,omitempty"`
	CustomSampleRef   *string `json:"customSampleRef,omitempty"`
	BasePitchOverride *string `json:"basePitchOverride,omitempty"`
	PitchOffset       *int    `json:"pitchOffset,omitempty"`
	Volume            *int    `json:"volume,omitempty"`
	Muted             *bool   `json:"muted,omitempty"`
}

// DefaultAssignments returns one default record per exposed track.
func DefaultAssignments(sc *score.Score) []Assignment {
	if sc == nil {
		return nil
	}
	out := make([]Assignment, 0, len(sc.Tracks))
	for _, tr := range sc.Tracks {
		out = append(out, Assignment{
			TrackIndex:   tr.Index,
			InstrumentID: DefaultInstrumentID,
			Volume:       100,
		})
	}
	return out
}

// ApplyPatch returns a copy of list with the assignment for trackIndex
// patched. The input slice is not modified.
func ApplyPatch(list []Assignment, trackIndex int, p Patch) ([]Assignment, error) {
	out := make([]Assignment, len(list))
	copy(out, list)
	for i := range out {
		if out[i].TrackIndex != trackIndex {
			continue
		}
		a := &out[i]
		if p.InstrumentID != nil {
			a.InstrumentID = *p.InstrumentID
		}
		if p.CustomSampleRef != nil {
			a.CustomSampleRef = *p.CustomSampleRef
		}
		if p.BasePitchOverride != nil {
			a.BasePitchOverride = *p.BasePitchOverride
		}
		if p.PitchOffset != nil {
			a.PitchOffset = *p.PitchOffset
		}
		if p.Volume != nil {
			a.Volume = clampVolume(*p.Volume)
		}
		if p.Muted != nil {
			a.Muted = *p.Muted
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownTrack, trackIndex)
}

// Validate checks that list holds exactly one assignment per exposed track.
func Validate(sc *score.Score, list []Assignment) error {
	seen := make(map[int]bool, len(list))
	for _, a := range list {
		if seen[a.TrackIndex] {
			return fmt.Errorf("%w: %d", ErrDuplicateTrack, a.TrackIndex)
		}
		seen[a.TrackIndex] = true
		if sc != nil {
			if _, ok := sc.Track(a.TrackIndex); !ok {
				return fmt.Errorf("%w: %d", ErrUnknownTrack, a.TrackIndex)
			}
		}
	}
	if sc != nil {
		for _, tr := range sc.Tracks {
			if !seen[tr.Index] {
				return fmt.Errorf("%w: %d", ErrMissingTrack, tr.Index)
			}
		}
	}
	return nil
}

func clampVolume(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
