package score

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"gitlab.com/gomidi/midi/v2/smf"
)

// MalformedMidiError reports input that is not a usable Standard MIDI File.
type MalformedMidiError struct {
	Err error
}

func (e *MalformedMidiError) Error() string {
	return fmt.Sprintf("malformed midi: %v", e.Err)
}

func (e *MalformedMidiError) Unwrap() error { return e.Err }

var (
	errEmpty     = errors.New("empty input")
	errSMPTE     = errors.New("SMPTE time division is not supported")
	errNoHeader  = errors.New("missing MThd header")
	errTruncated = errors.New("truncated file")
)

// checkChunks walks the chunk headers so a file cut short fails as a whole
// instead of yielding the tracks that happened to survive.
func checkChunks(data []byte) error {
	const chunkHeader = 8
	if len(data) < chunkHeader+6 || string(data[:4]) != "MThd" {
		return errNoHeader
	}
	declared := int(binary.BigEndian.Uint16(data[chunkHeader+2:]))
	tracks := 0
	for off := 0; len(data)-off >= chunkHeader; {
		id := string(data[off : off+4])
		size := int64(binary.BigEndian.Uint32(data[off+4:]))
		body := off + chunkHeader
		if size > int64(len(data)-body) {
			return fmt.Errorf("%w: %s chunk at byte %d needs %d bytes, %d left", errTruncated, id, off, size, len(data)-body)
		}
		if id == "MTrk" {
			tracks++
		}
		off = body + int(size)
	}
	if tracks < declared {
		return fmt.Errorf("%w: %d of %d tracks present", errTruncated, tracks, declared)
	}
	return nil
}

type tempoChange struct {
	tick int64
	bpm  float64
}

// tempoMap converts absolute ticks to seconds across tempo changes.
type tempoMap struct {
	ppq     float64
	changes []tempoChange
	at      []float64 // seconds elapsed at each change
	first   float64   // first declared tempo
}

func newTempoMap(ppq uint16, changes []tempoChange) *tempoMap {
	sort.SliceStable(changes, func(i, j int) bool { return changes[i].tick < changes[j].tick })
	m := &tempoMap{ppq: float64(ppq), first: DefaultTempo}
	if len(changes) > 0 {
		m.first = changes[0].bpm
	}
	if len(changes) == 0 || changes[0].tick > 0 {
		m.changes = append(m.changes, tempoChange{tick: 0, bpm: DefaultTempo})
	}
	m.changes = append(m.changes, changes...)
	m.at = make([]float64, len(m.changes))
	for i := 1; i < len(m.changes); i++ {
		prev := m.changes[i-1]
		m.at[i] = m.at[i-1] + m.span(m.changes[i].tick-prev.tick, prev.bpm)
	}
	return m
}

func (m *tempoMap) span(ticks int64, bpm float64) float64 {
	return float64(ticks) / m.ppq * 60 / bpm
}

func (m *tempoMap) seconds(tick int64) float64 {
	i := sort.Search(len(m.changes), func(i int) bool { return m.changes[i].tick > tick }) - 1
	if i < 0 {
		i = 0
	}
	c := m.changes[i]
	return m.at[i] + m.span(tick-c.tick, c.bpm)
}

type noteKey struct {
	channel uint8
	key     uint8
}

type openNote struct {
	tick     int64
	velocity uint8
}

// Parse decodes a Standard MIDI File. It never returns a partial score.
func Parse(data []byte) (*Score, error) {
	if len(data) == 0 {
		return nil, &MalformedMidiError{Err: errEmpty}
	}
	if err := checkChunks(data); err != nil {
		return nil, &MalformedMidiError{Err: err}
	}
	sm, err := smf.ReadFrom(bytes.NewReader(data))
	if err != nil {
		return nil, &MalformedMidiError{Err: err}
	}
	ticks, ok := sm.TimeFormat.(smf.MetricTicks)
	if !ok {
		return nil, &MalformedMidiError{Err: errSMPTE}
	}
	if ticks == 0 {
		return nil, &MalformedMidiError{Err: errors.New("zero ticks per quarter note")}
	}

	var changes []tempoChange
	for _, tr := range sm.Tracks {
		var abs int64
		for _, ev := range tr {
			abs += int64(ev.Delta)
			var bpm float64
			if ev.Message.GetMetaTempo(&bpm) && bpm > 0 {
				changes = append(changes, tempoChange{tick: abs, bpm: bpm})
			}
		}
	}
	tm := newTempoMap(uint16(ticks), changes)

	out := &Score{
		TempoBPM:     tm.first,
		SourceTracks: len(sm.Tracks),
	}
	var lastTrackEnd float64
	for idx, tr := range sm.Tracks {
		track, end := buildTrack(idx, tr, tm)
		if end > lastTrackEnd {
			lastTrackEnd = end
		}
		if track.NoteCount() == 0 {
			continue
		}
		for _, n := range track.Notes {
			if n.End() > out.Duration {
				out.Duration = n.End()
			}
		}
		out.Tracks = append(out.Tracks, track)
	}
	if len(out.Tracks) == 0 {
		out.Duration = lastTrackEnd
	}
	return out, nil
}

func buildTrack(index int, tr smf.Track, tm *tempoMap) (Track, float64) {
	track := Track{Index: index, Name: defaultTrackName(index)}
	open := map[noteKey][]openNote{}
	named := false
	var abs int64
	for _, ev := range tr {
		abs += int64(ev.Delta)
		msg := ev.Message
		var ch, key, vel uint8
		var text string
		switch {
		case msg.GetNoteStart(&ch, &key, &vel):
			k := noteKey{ch, key}
			open[k] = append(open[k], openNote{tick: abs, velocity: vel})
		case msg.GetNoteEnd(&ch, &key):
			k := noteKey{ch, key}
			q := open[k]
			if len(q) == 0 {
				continue
			}
			track.addNote(tm, ch, key, q[0], abs)
			open[k] = q[1:]
		case !named && msg.GetMetaTrackName(&text) && text != "":
			track.Name = text
			named = true
		}
	}
	// Notes still sounding at the end of the track are closed there.
	for k, q := range open {
		for _, on := range q {
			track.addNote(tm, k.channel, k.key, on, abs)
		}
	}
	sort.SliceStable(track.Notes, func(i, j int) bool {
		a, b := track.Notes[i], track.Notes[j]
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		if a.Pitch != b.Pitch {
			return a.Pitch < b.Pitch
		}
		return a.Channel < b.Channel
	})
	if len(track.Notes) > 0 {
		track.Channel = track.Notes[0].Channel
	}
	return track, tm.seconds(abs)
}

func (t *Track) addNote(tm *tempoMap, ch, key uint8, on openNote, offTick int64) {
	start := tm.seconds(on.tick)
	t.Notes = append(t.Notes, NoteEvent{
		Pitch:    int(key),
		Start:    start,
		Duration: tm.seconds(offTick) - start,
		Velocity: float64(on.velocity) / 127,
		Channel:  int(ch),
	})
}
