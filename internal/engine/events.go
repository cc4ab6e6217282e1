package engine

// EventKind identifies engine events delivered through Watch.
type EventKind int

const (
	EventLoopCompleted EventKind = iota
	EventPlaybackEnded
	EventNote
)

func (k EventKind) String() string {
	switch k {
	case EventLoopCompleted:
		return "loop-completed"
	case EventPlaybackEnded:
		return "playback-ended"
	case EventNote:
		return "note"
	}
	return "unknown"
}

// Event is a playback event. Track, note and pitch are set for EventNote.
type Event struct {
	Kind       EventKind
	TrackIndex int
	NoteIndex  int
	Pitch      int
	Velocity   float64
}

const (
	eventBuffer = 16
	// Note events stop queueing at noteBacklog so loop and end events
	// always find room.
	noteBacklog = 12
)

// lifecycle reports whether the event changes the transport.
func (k EventKind) lifecycle() bool { return k != EventNote }

// Watch returns a channel receiving playback events. The channel is buffered
// and note events are dropped when the reader falls behind. Loop and end
// events are never dropped in favour of notes; if the buffer is full of
// unread events the oldest one is discarded to make room. Only the most
// recent Watch channel receives events.
func (e *Engine) Watch() <-chan Event {
	ch := make(chan Event, eventBuffer)
	e.eventMu.Lock()
	e.eventCh = ch
	e.eventMu.Unlock()
	return ch
}

// sendEvent never blocks the audio thread.
func (e *Engine) sendEvent(ev Event) {
	e.eventMu.Lock()
	defer e.eventMu.Unlock()
	ch := e.eventCh
	if ch == nil {
		return
	}
	if !ev.Kind.lifecycle() {
		if len(ch) >= noteBacklog {
			return
		}
		select {
		case ch <- ev:
		default:
		}
		return
	}
	for {
		select {
		case ch <- ev:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
