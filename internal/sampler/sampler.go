// Package sampler plays a decoded sample clip polyphonically at arbitrary pitches.
package sampler

import (
	"math"
	"sync/atomic"

	"github.com/cbegin/noteblock-go/internal/pitch"
)

const maxVoices = 64

// Clip is decoded stereo audio, interleaved L/R.
type Clip struct {
	SampleRate int
	Data       []float32
}

// Frames returns the number of stereo frames in the clip.
func (c *Clip) Frames() int {
	if c == nil {
		return 0
	}
	return len(c.Data) / 2
}

// Seconds returns the clip length in seconds.
func (c *Clip) Seconds() float64 {
	if c == nil || c.SampleRate <= 0 {
		return 0
	}
	return float64(c.Frames()) / float64(c.SampleRate)
}

// Key identifies a sampler by sample source and base pitch. Tracks sharing a
// key share one Instance.
type Key struct {
	Source    string
	BasePitch int
}

// Params controls voice allocation and the amplitude envelope.
type Params struct {
	Polyphony  int
	AttackSec  float64
	ReleaseSec float64
	Gain       float64
}

// DefaultParams returns the settings used for note-block instruments.
func DefaultParams() Params {
	return Params{
		Polyphony:  32,
		AttackSec:  0.002,
		ReleaseSec: 0.1,
		Gain:       0.8,
	}
}

type envState int

const (
	envAttack envState = iota
	envHold
	envRelease
	envOff
)

type voice struct {
	active   bool
	id       int
	pos      float64 // fractional frame index into the clip
	step     float64
	velocity float64
	env      float64
	state    envState
	hold     int // frames left before release
}

// Instance is a polyphonic player for one clip. It is not safe for
// concurrent use; the owner serializes Trigger and Render.
type Instance struct {
	key        Key
	clip       *Clip
	sampleRate float64
	params     Params
	voices     []voice
	nextID     int
	gain       atomic.Uint64
	disposed   atomic.Bool
}

// NewInstance creates a sampler with default parameters.
func NewInstance(key Key, clip *Clip, sampleRate int) *Instance {
	return NewInstanceWithParams(key, clip, sampleRate, DefaultParams())
}

func NewInstanceWithParams(key Key, clip *Clip, sampleRate int, params Params) *Instance {
	if params.Polyphony <= 0 {
		params.Polyphony = DefaultParams().Polyphony
	}
	if params.Polyphony > maxVoices {
		params.Polyphony = maxVoices
	}
	in := &Instance{
		key:        key,
		clip:       clip,
		sampleRate: float64(sampleRate),
		params:     params,
		voices:     make([]voice, params.Polyphony),
	}
	in.SetGain(params.Gain)
	return in
}

func (in *Instance) Key() Key    { return in.key }
func (in *Instance) Clip() *Clip { return in.clip }

// Fork returns a new instance over the same clip with no sounding voices.
// Offline rendering uses forks so live voices are left untouched.
func (in *Instance) Fork() *Instance {
	f := NewInstanceWithParams(in.key, in.clip, int(in.sampleRate), in.params)
	f.SetGain(in.Gain())
	return f
}

// SetGain sets the instance output gain atomically.
func (in *Instance) SetGain(g float64) {
	if g < 0 {
		g = 0
	}
	in.gain.Store(math.Float64bits(g))
}

func (in *Instance) Gain() float64 {
	return math.Float64frombits(in.gain.Load())
}

// Trigger starts a voice playing the clip transposed from the key's base pitch
// to note. The voice is released after holdFrames. It returns the voice id, or
// -1 if the instance has been disposed or has nothing to play.
func (in *Instance) Trigger(note int, velocity float64, holdFrames int) int {
	if in.disposed.Load() || in.clip.Frames() == 0 {
		return -1
	}
	slot := in.stealVoice()
	id := in.nextID
	in.nextID++
	step := pitch.Ratio(note, in.key.BasePitch)
	if in.clip.SampleRate > 0 && in.sampleRate > 0 {
		step *= float64(in.clip.SampleRate) / in.sampleRate
	}
	if holdFrames < 1 {
		holdFrames = 1
	}
	in.voices[slot] = voice{
		active:   true,
		id:       id,
		step:     step,
		velocity: clamp(velocity, 0, 1),
		state:    envAttack,
		hold:     holdFrames,
	}
	return id
}

// Render mixes all sounding voices into dst (interleaved stereo), adding to
// what is already there.
func (in *Instance) Render(dst []float32) {
	if in.disposed.Load() {
		return
	}
	data := in.clip.Data
	last := in.clip.Frames() - 1
	if last < 0 {
		return
	}
	gain := in.Gain()
	frames := len(dst) / 2
	for i := range in.voices {
		v := &in.voices[i]
		if !v.active {
			continue
		}
		for f := 0; f < frames; f++ {
			env := in.advanceEnv(v)
			if !v.active {
				break
			}
			idx := int(v.pos)
			if idx >= last {
				v.active = false
				break
			}
			frac := float32(v.pos - float64(idx))
			a := idx * 2
			l := data[a] + (data[a+2]-data[a])*frac
			r := data[a+1] + (data[a+3]-data[a+1])*frac
			amp := float32(env * v.velocity * gain)
			dst[f*2] += l * amp
			dst[f*2+1] += r * amp
			v.pos += v.step
		}
	}
}

// ActiveVoices returns the number of voices still sounding.
func (in *Instance) ActiveVoices() int {
	n := 0
	for i := range in.voices {
		if in.voices[i].active {
			n++
		}
	}
	return n
}

// Silence stops every voice immediately.
func (in *Instance) Silence() {
	for i := range in.voices {
		in.voices[i] = voice{}
	}
}

// Dispose releases the instance. Further triggers are ignored.
func (in *Instance) Dispose() {
	if in.disposed.Swap(true) {
		return
	}
	in.Silence()
}

func (in *Instance) Disposed() bool { return in.disposed.Load() }

func (in *Instance) stealVoice() int {
	for i := range in.voices {
		if !in.voices[i].active {
			return i
		}
	}
	oldest := 0
	for i := 1; i < len(in.voices); i++ {
		if in.voices[i].id < in.voices[oldest].id {
			oldest = i
		}
	}
	return oldest
}

func (in *Instance) advanceEnv(v *voice) float64 {
	switch v.state {
	case envAttack:
		step := 1.0
		if in.params.AttackSec > 0 {
			step = 1.0 / (in.params.AttackSec * in.sampleRate)
		}
		v.env += step
		if v.env >= 1 {
			v.env = 1
			v.state = envHold
		}
		in.countHold(v)
	case envHold:
		in.countHold(v)
	case envRelease:
		step := 1.0
		if in.params.ReleaseSec > 0 {
			step = 1.0 / (in.params.ReleaseSec * in.sampleRate)
		}
		v.env -= step
		if v.env <= 0 {
			v.env = 0
			v.state = envOff
			v.active = false
		}
	case envOff:
		v.active = false
		v.env = 0
	}
	return v.env
}

func (in *Instance) countHold(v *voice) {
	v.hold--
	if v.hold <= 0 {
		v.state = envRelease
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
