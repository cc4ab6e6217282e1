// Package instrument holds the note-block instrument catalog and per-track
// instrument assignments.
package instrument

import (
	"github.com/cbegin/noteblock-go/internal/pitch"
	"github.com/cbegin/noteblock-go/internal/synth"
)

const (
	// GlobalSampleID assigns the user-uploaded sample held by the sample store.
	GlobalSampleID = "global"
	// CustomSampleID assigns a per-track sample registered with the engine.
	CustomSampleID = "custom"
	// DefaultInstrumentID is assigned to every track of a freshly loaded score.
	DefaultInstrumentID = "harp"
)

// Preset is a compiled-in instrument.
type Preset struct {
	ID          string     `json:"id"`
	DisplayName string     `json:"name"`
	SampleRef   string     `json:"sample"`
	BasePitch   string     `json:"basePitch"`
	Synth       synth.Kind `json:"-"`
}

// BaseNote returns the preset's base pitch as a MIDI note.
func (p Preset) BaseNote() int {
	return pitch.MustParse(p.BasePitch)
}

func preset(id, name, base string, kind synth.Kind) Preset {
	return Preset{ID: id, DisplayName: name, SampleRef: "instruments/" + id + ".ogg", BasePitch: base, Synth: kind}
}

var catalog = []Preset{
	preset("harp", "Harp", "F#4", synth.Pluck),
	preset("harp2", "Harp 2", "F#4", synth.Pluck),
	preset("bass", "Bass", "F#2", synth.Bass),
	preset("bell", "Bell", "F#6", synth.Bell),
	preset("icechime", "Chime", "F#6", synth.Bell),
	preset("flute", "Flute", "F#5", synth.Flute),
	preset("guitar", "Guitar", "F#3", synth.Pluck),
	preset("xylobone", "Xylophone", "F#6", synth.Mallet),
	preset("iron_xylophone", "Iron Xylophone", "F#4", synth.Mallet),
	preset("cow_bell", "Cow Bell", "F#5", synth.CowBell),
	preset("didgeridoo", "Didgeridoo", "F#2", synth.Drone),
	preset("bit", "Bit", "F#4", synth.Bit),
	preset("banjo", "Banjo", "F#4", synth.Pluck),
	preset("pling", "Pling", "F#4", synth.Pling),
	preset("snare", "Snare", "D4", synth.Snare),
	preset("hat", "Hat", "D4", synth.Hat),
	preset("bd", "Bass Drum", "D4", synth.Kick),
	preset("bassattack", "Bass Attack", "D4", synth.Bass),
}

// Presets returns the catalog in display order.
func Presets() []Preset {
	out := make([]Preset, len(catalog))
	copy(out, catalog)
	return out
}

// PresetByID looks up a preset.
func PresetByID(id string) (Preset, bool) {
	for _, p := range catalog {
		if p.ID == id {
			return p, true
		}
	}
	return Preset{}, false
}
