package effects

import (
	"math"
	"sync/atomic"
)

// Master is the output bus: volume, 5-band EQ, optional reverb and a
// peak limiter. Volume and EQ gains may be changed from any goroutine.
type Master struct {
	sampleRate int
	volume     atomic.Uint32
	reverbWet  atomic.Uint32
	eq         *Equalizer
	reverb     *Reverb
	limiter    *Limiter
	chain      *Chain
}

// NewMaster creates a unity-gain bus with reverb disabled.
func NewMaster(sampleRate int) *Master {
	m := &Master{
		sampleRate: sampleRate,
		eq:         NewEqualizer(sampleRate),
		reverb:     NewReverb(sampleRate, 0.6, 0.7, 0),
		limiter:    NewLimiter(sampleRate, -3, 20, 1, 80),
	}
	m.chain = NewChain(m.eq, m.reverb, m.limiter)
	m.SetVolume(1)
	return m
}

// Clone returns a bus with the same settings and fresh filter state.
func (m *Master) Clone() *Master {
	c := NewMaster(m.sampleRate)
	c.SetVolume(m.Volume())
	c.SetReverb(m.ReverbWet())
	for b := 0; b < NumBands; b++ {
		c.eq.SetGain(b, m.eq.Gain(b))
	}
	return c
}

func (m *Master) SetVolume(v float32) {
	if v < 0 {
		v = 0
	}
	m.volume.Store(math.Float32bits(v))
}

func (m *Master) Volume() float32 { return math.Float32frombits(m.volume.Load()) }

// SetReverb sets the reverb wet mix, 0 disables it.
func (m *Master) SetReverb(wet float32) {
	m.reverbWet.Store(math.Float32bits(clamp(wet, 0, 1)))
}

func (m *Master) ReverbWet() float32 { return math.Float32frombits(m.reverbWet.Load()) }

func (m *Master) EQ() *Equalizer { return m.eq }

// Process runs the bus over interleaved stereo samples in place.
func (m *Master) Process(buf []float32) {
	vol := m.Volume()
	m.reverb.wet = m.ReverbWet()
	for i := 0; i+1 < len(buf); i += 2 {
		l, r := m.chain.Process(buf[i]*vol, buf[i+1]*vol)
		buf[i], buf[i+1] = clamp(l, -1, 1), clamp(r, -1, 1)
	}
}

func (m *Master) Reset() { m.chain.Reset() }
