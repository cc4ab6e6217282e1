package effects

import (
	"math"
	"sync/atomic"
)

// NumBands is the number of equalizer bands.
const NumBands = 5

// MaxBandGain caps a band's linear gain (about +12dB).
const MaxBandGain = 4

// Crossovers are the split points between adjacent bands, in Hz.
var Crossovers = [NumBands - 1]float64{200, 800, 2500, 8000}

// Equalizer splits the signal with cascaded one-pole lowpass crossovers and
// sums the bands back with individual gains. At unity the bands sum to the
// input exactly. Gains may be changed from any goroutine.
type Equalizer struct {
	gain  [NumBands]atomic.Uint32 // float32 bits
	coef  [NumBands - 1]float32
	state [2][NumBands - 1]float32
}

func NewEqualizer(sampleRate int) *Equalizer {
	eq := &Equalizer{}
	for i, hz := range Crossovers {
		// one-pole coefficient for cutoff hz
		eq.coef[i] = float32(1 - math.Exp(-2*math.Pi*hz/float64(sampleRate)))
	}
	for b := range eq.gain {
		eq.gain[b].Store(math.Float32bits(1))
	}
	return eq
}

// SetGain sets band b's linear gain, clamped to [0, MaxBandGain].
// Out-of-range bands are ignored.
func (eq *Equalizer) SetGain(b int, g float32) {
	if b < 0 || b >= NumBands {
		return
	}
	if g != g { // NaN
		g = 1
	}
	eq.gain[b].Store(math.Float32bits(clamp(g, 0, MaxBandGain)))
}

// Gain returns band b's gain, or 1 for an unknown band.
func (eq *Equalizer) Gain(b int) float32 {
	if b < 0 || b >= NumBands {
		return 1
	}
	return math.Float32frombits(eq.gain[b].Load())
}

// Flat reports whether every band is at unity.
func (eq *Equalizer) Flat() bool {
	for b := range eq.gain {
		if eq.Gain(b) != 1 {
			return false
		}
	}
	return true
}

func (eq *Equalizer) Process(l, r float32) (float32, float32) {
	return eq.channel(0, l), eq.channel(1, r)
}

func (eq *Equalizer) channel(ch int, x float32) float32 {
	st := &eq.state[ch]
	var out float32
	rest := x
	for i := range st {
		st[i] += eq.coef[i] * (rest - st[i])
		out += st[i] * eq.Gain(i)
		rest -= st[i]
	}
	return out + rest*eq.Gain(NumBands-1)
}

func (eq *Equalizer) Reset() {
	eq.state = [2][NumBands - 1]float32{}
}
