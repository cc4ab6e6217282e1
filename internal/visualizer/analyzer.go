package visualizer

import (
	"math"
	"math/cmplx"
	"sync"

	"github.com/mjibson/go-dsp/fft"
)

const (
	DefaultFFTSize = 2048
	minDecibels    = -80.0
	maxDecibels    = 0.0
)

// Analyzer keeps the most recent mono window of the output and turns it
// into a normalized magnitude spectrum on demand.
type Analyzer struct {
	mu         sync.Mutex
	sampleRate int
	size       int
	ring       []float64
	pos        int
	window     []float64
	frame      []float64
}

func NewAnalyzer(sampleRate, size int) *Analyzer {
	if size < 32 {
		size = DefaultFFTSize
	}
	win := make([]float64, size)
	for i := range win {
		win[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(size-1))
	}
	return &Analyzer{
		sampleRate: sampleRate,
		size:       size,
		ring:       make([]float64, size),
		window:     win,
		frame:      make([]float64, size),
	}
}

// Write appends interleaved stereo samples, mixed down to mono.
func (a *Analyzer) Write(stereo []float32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := 0; i+1 < len(stereo); i += 2 {
		a.ring[a.pos] = 0.5 * float64(stereo[i]+stereo[i+1])
		a.pos = (a.pos + 1) % a.size
	}
}

func (a *Analyzer) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	clear(a.ring)
	a.pos = 0
}

// Size is the FFT length.
func (a *Analyzer) Size() int { return a.size }

// BinHz is the frequency spacing of the spectrum bins.
func (a *Analyzer) BinHz() float64 {
	return float64(a.sampleRate) / float64(a.size)
}

// Spectrum returns size/2+1 levels in [0,1], mapped linearly from the
// decibel range [-80, 0] where 0 dB is a full scale sine.
func (a *Analyzer) Spectrum() []float64 {
	a.mu.Lock()
	for i := 0; i < a.size; i++ {
		a.frame[i] = a.ring[(a.pos+i)%a.size] * a.window[i]
	}
	a.mu.Unlock()

	bins := fft.FFTReal(a.frame)
	out := make([]float64, a.size/2+1)
	// Hann coherent gain is 0.5.
	scale := 4 / float64(a.size)
	for i := range out {
		mag := cmplx.Abs(bins[i]) * scale
		if mag <= 0 {
			continue
		}
		db := 20 * math.Log10(mag)
		out[i] = math.Max(0, math.Min(1, (db-minDecibels)/(maxDecibels-minDecibels)))
	}
	return out
}
