// Package synth renders short one-shot instrument samples used when no
// recorded asset is available for a preset.
package synth

import (
	"math"

	"github.com/cbegin/noteblock-go/internal/pitch"
)

const twoPi = math.Pi * 2

// Kind selects the one-shot recipe.
type Kind int

const (
	Pluck Kind = iota
	Bell
	Bass
	Bit
	Flute
	Snare
	Hat
	Kick
	Pling
	Mallet
	Drone
	CowBell
)

var kindNames = map[Kind]string{
	Pluck: "pluck", Bell: "bell", Bass: "bass", Bit: "bit", Flute: "flute",
	Snare: "snare", Hat: "hat", Kick: "kick", Pling: "pling", Mallet: "mallet",
	Drone: "drone", CowBell: "cowbell",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// DefaultSeconds is long enough for the slowest decay.
const DefaultSeconds = 1.5

type osc struct {
	sampleRate float64
	phase      float64
	mod        float64
	lfsr       uint16
	lp         float64
	dcIn       float64
	dcOut      float64
}

// Render produces an interleaved stereo one-shot of kind at MIDI note.
func Render(kind Kind, note, sampleRate int, seconds float64) []float32 {
	if seconds <= 0 {
		seconds = DefaultSeconds
	}
	frames := int(float64(sampleRate) * seconds)
	o := &osc{sampleRate: float64(sampleRate), lfsr: seedLFSR(note)}
	freq := pitch.Freq(note)
	mono := make([]float64, frames)
	var peak float64
	for i := range mono {
		t := float64(i) / o.sampleRate
		v := o.dcBlock(o.sample(kind, freq, t))
		mono[i] = v
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}
	norm := 0.0
	if peak > 0 {
		norm = 0.8 / peak
	}
	out := make([]float32, frames*2)
	for i, v := range mono {
		s := float32(v * norm)
		out[i*2], out[i*2+1] = s, s
	}
	return out
}

func (o *osc) sample(kind Kind, freq, t float64) float64 {
	dt := freq / o.sampleRate
	switch kind {
	case Pluck:
		o.advance(dt)
		s := math.Sin(twoPi*o.phase) + 0.5*math.Sin(2*twoPi*o.phase)*math.Exp(-t*6) + 0.25*math.Sin(3*twoPi*o.phase)*math.Exp(-t*10)
		return s * decay(t, 0.002, 3.5)
	case Bell:
		o.advance(dt)
		o.mod += 3.5 * dt
		o.mod -= math.Floor(o.mod)
		idx := 2.5 * math.Exp(-t*3)
		return math.Sin(twoPi*o.phase+idx*math.Sin(twoPi*o.mod)) * decay(t, 0.001, 1.6)
	case Bass:
		o.advance(dt)
		tri := 2*math.Abs(2*o.phase-1) - 1
		return (tri + 0.6*math.Sin(twoPi*o.phase)) * decay(t, 0.004, 3)
	case Bit:
		o.advance(dt)
		out := -1.0
		if o.phase < 0.5 {
			out = 1
		}
		out += polyBLEP(o.phase, dt)
		out -= polyBLEP(math.Mod(o.phase+0.5, 1), dt)
		return out * gate(t, 0.002, 0.35, 0.1)
	case Flute:
		vib := 1 + 0.004*math.Sin(twoPi*5*t)
		o.advance(dt * vib)
		breath := o.noise() * 0.05
		return (math.Sin(twoPi*o.phase) + 0.15*math.Sin(2*twoPi*o.phase) + breath) * gate(t, 0.06, 0.6, 0.2)
	case Snare:
		o.advance(180 / o.sampleRate)
		body := math.Sin(twoPi*o.phase) * math.Exp(-t*30)
		return (o.noise()*0.8 + body*0.5) * decay(t, 0.001, 18)
	case Hat:
		n := o.noise()
		o.lp += 0.4 * (n - o.lp)
		return (n - o.lp) * decay(t, 0.0005, 40)
	case Kick:
		f := 50 + 120*math.Exp(-t*25)
		o.advance(f / o.sampleRate)
		return math.Sin(twoPi*o.phase) * decay(t, 0.001, 9)
	case Pling:
		o.advance(dt)
		o.mod += 2 * dt
		o.mod -= math.Floor(o.mod)
		return math.Sin(twoPi*o.phase+1.2*math.Sin(twoPi*o.mod)) * decay(t, 0.001, 2.2)
	case Mallet:
		o.advance(dt)
		s := math.Sin(twoPi*o.phase) + 0.4*math.Sin(3.97*twoPi*o.phase)*math.Exp(-t*20)
		return s * decay(t, 0.001, 7)
	case Drone:
		o.advance(dt)
		saw := 2*o.phase - 1 - polyBLEP(o.phase, dt)
		o.lp += 0.08 * (saw - o.lp)
		return o.lp * gate(t, 0.03, 0.9, 0.3)
	case CowBell:
		o.advance(dt)
		o.mod += 1.48 * dt
		o.mod -= math.Floor(o.mod)
		a := sign(o.phase - 0.5)
		b := sign(o.mod - 0.5)
		return (a + b) * 0.5 * decay(t, 0.001, 9)
	}
	return 0
}

func (o *osc) advance(dt float64) {
	o.phase += dt
	o.phase -= math.Floor(o.phase)
}

func (o *osc) noise() float64 {
	bit := (o.lfsr ^ (o.lfsr >> 1)) & 1
	o.lfsr = (o.lfsr >> 1) | (bit << 15)
	if o.lfsr&1 == 1 {
		return 1
	}
	return -1
}

func (o *osc) dcBlock(x float64) float64 {
	const r = 0.995
	y := x - o.dcIn + r*o.dcOut
	o.dcIn = x
	o.dcOut = y
	return y
}

// decay is a linear attack followed by exponential decay at rate per second.
func decay(t, attack, rate float64) float64 {
	if t < attack {
		return t / attack
	}
	return math.Exp(-(t - attack) * rate)
}

// gate holds full level until hold seconds, then fades over release.
func gate(t, attack, hold, release float64) float64 {
	switch {
	case t < attack:
		return t / attack
	case t < hold:
		return 1
	case t < hold+release:
		return 1 - (t-hold)/release
	}
	return 0
}

// polyBLEP reduces aliasing at waveform discontinuities.
func polyBLEP(t, dt float64) float64 {
	if t < dt {
		t /= dt
		return t + t - t*t - 1
	}
	if t > 1-dt {
		t = (t - 1) / dt
		return t*t + t + t + 1
	}
	return 0
}

func seedLFSR(note int) uint16 {
	s := uint16(0xACE1) ^ uint16((note&0x7f)<<1)
	if s == 0 {
		return 0xACE1
	}
	return s
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}
