// Package scoretest builds Standard MIDI Files in code for tests.
package scoretest

import "github.com/cbegin/noteblock-go/internal/score"

// PPQ is the resolution of generated files.
const PPQ = score.SheetPPQ

type (
	Note        = score.SheetNote
	Track       = score.SheetTrack
	TempoChange = score.SheetTempo
	File        = score.Sheet
)

// Encode renders f as SMF bytes. It panics if the writer fails.
func Encode(f File) []byte {
	data, err := score.Encode(f)
	if err != nil {
		panic(err)
	}
	return data
}

// Simple returns a one-track file at the given tempo with notes of one beat each.
func Simple(bpm float64, keys ...uint8) []byte {
	tr := Track{Name: "Lead"}
	for i, k := range keys {
		tr.Notes = append(tr.Notes, Note{Key: k, Beat: float64(i), Beats: 1})
	}
	return Encode(File{Tempos: []TempoChange{{BPM: bpm}}, Tracks: []Track{tr}})
}
