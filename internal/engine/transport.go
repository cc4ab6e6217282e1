package engine

// transportState is the clock's run state.
type transportState int

const (
	transportStopped transportState = iota
	transportRunning
	transportPaused
)

// Transport is the playback clock. Positions are in frames at the engine
// sample rate. The engine owns the only instance and guards it with its lock.
type Transport struct {
	sampleRate int
	state      transportState
	position   int64
	duration   int64
	tempo      float64
	loop       bool
}

func newTransport(sampleRate int) Transport {
	return Transport{sampleRate: sampleRate}
}

// Reset stops the clock at 0 with a new length.
func (t *Transport) Reset(durationSec, tempo float64) {
	t.state = transportStopped
	t.position = 0
	t.duration = t.Frames(durationSec)
	if t.duration < 1 {
		t.duration = 1
	}
	t.tempo = tempo
}

func (t *Transport) Start()  { t.state = transportRunning }
func (t *Transport) Pause()  { t.state = transportPaused }
func (t *Transport) Resume() { t.state = transportRunning }

// Stop halts the clock and rewinds to 0.
func (t *Transport) Stop() {
	t.state = transportStopped
	t.position = 0
}

// Seek moves the clock, clamped to [0, duration]. The run state is kept.
func (t *Transport) Seek(frame int64) int64 {
	if frame < 0 {
		frame = 0
	}
	if frame > t.duration {
		frame = t.duration
	}
	t.position = frame
	return frame
}

func (t *Transport) Running() bool { return t.state == transportRunning }
func (t *Transport) Paused() bool  { return t.state == transportPaused }

func (t *Transport) Frames(sec float64) int64 {
	return int64(sec*float64(t.sampleRate) + 0.5)
}

func (t *Transport) Seconds(frame int64) float64 {
	return float64(frame) / float64(t.sampleRate)
}

func (t *Transport) PositionSeconds() float64 { return t.Seconds(t.position) }
func (t *Transport) DurationSeconds() float64 { return t.Seconds(t.duration) }
