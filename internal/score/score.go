// Package score loads Standard MIDI Files into a playable, time-resolved score.
package score

import (
	"strconv"

	"github.com/cbegin/noteblock-go/internal/pitch"
)

// DefaultTempo is used when a file declares no tempo.
const DefaultTempo = 120.0

// NoteEvent is a single note with times in seconds from the start of the score.
type NoteEvent struct {
	Pitch    int
	Start    float64
	Duration float64
	Velocity float64 // 0..1
	Channel  int
}

// End is the time the note is released.
func (n NoteEvent) End() float64 { return n.Start + n.Duration }

// Name is the scientific pitch name of the note.
func (n NoteEvent) Name() string { return pitch.Name(n.Pitch) }

// Track is a MIDI track with at least one note.
type Track struct {
	Index   int // position of the track chunk in the source file
	Name    string
	Channel int
	Notes   []NoteEvent // sorted by Start
}

// NoteCount returns the number of notes in the track.
func (t Track) NoteCount() int { return len(t.Notes) }

// Score is a parsed MIDI file. Tracks without notes are not exposed.
type Score struct {
	TempoBPM     float64
	Duration     float64
	Tracks       []Track
	SourceTracks int
}

// Track returns the exposed track with the given source index.
func (s *Score) Track(index int) (Track, bool) {
	for _, t := range s.Tracks {
		if t.Index == index {
			return t, true
		}
	}
	return Track{}, false
}

// NoteCount returns the total number of notes across all tracks.
func (s *Score) NoteCount() int {
	n := 0
	for _, t := range s.Tracks {
		n += len(t.Notes)
	}
	return n
}

func defaultTrackName(index int) string {
	return "Track " + strconv.Itoa(index+1)
}
