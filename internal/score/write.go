package score

import (
	"bytes"
	"sort"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

// SheetPPQ is the resolution of encoded sheets.
const SheetPPQ = 960

// SheetNote is placed in beats (quarter notes).
type SheetNote struct {
	Key      uint8
	Beat     float64
	Beats    float64
	Velocity uint8 // 0 means 100
	Channel  uint8
}

type SheetTrack struct {
	Name  string
	Notes []SheetNote
}

// SheetTempo sets a tempo at a beat position.
type SheetTempo struct {
	Beat float64
	BPM  float64
}

// Sheet describes a format 1 MIDI file to be written. The first track of the
// file holds the tempo map and carries no notes.
type Sheet struct {
	Tempos []SheetTempo
	Tracks []SheetTrack
}

type timedMsg struct {
	tick uint32
	off  bool
	msg  []byte
}

// Encode renders s as Standard MIDI File bytes.
func Encode(s Sheet) ([]byte, error) {
	sm := smf.New()
	sm.TimeFormat = smf.MetricTicks(SheetPPQ)

	var conductor []timedMsg
	for _, tc := range s.Tempos {
		conductor = append(conductor, timedMsg{tick: beatTicks(tc.Beat), msg: smf.MetaTempo(tc.BPM)})
	}
	if err := sm.Add(sheetTrack(conductor, 0)); err != nil {
		return nil, err
	}

	for _, tr := range s.Tracks {
		var evs []timedMsg
		if tr.Name != "" {
			evs = append(evs, timedMsg{msg: smf.MetaTrackSequenceName(tr.Name)})
		}
		var end uint32
		for _, n := range tr.Notes {
			vel := n.Velocity
			if vel == 0 {
				vel = 100
			}
			on, off := beatTicks(n.Beat), beatTicks(n.Beat+n.Beats)
			evs = append(evs,
				timedMsg{tick: on, msg: midi.NoteOn(n.Channel, n.Key, vel)},
				timedMsg{tick: off, off: true, msg: midi.NoteOff(n.Channel, n.Key)},
			)
			end = max(end, off)
		}
		if err := sm.Add(sheetTrack(evs, end)); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if _, err := sm.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// sheetTrack orders events by tick, note-offs first, and closes the track at end.
func sheetTrack(evs []timedMsg, end uint32) smf.Track {
	sort.SliceStable(evs, func(i, j int) bool {
		if evs[i].tick != evs[j].tick {
			return evs[i].tick < evs[j].tick
		}
		return evs[i].off && !evs[j].off
	})
	var tr smf.Track
	var last uint32
	for _, ev := range evs {
		tr.Add(ev.tick-last, ev.msg)
		last = ev.tick
	}
	var tail uint32
	if end > last {
		tail = end - last
	}
	tr.Close(tail)
	return tr
}

func beatTicks(beat float64) uint32 {
	return uint32(beat*SheetPPQ + 0.5)
}
