package visualizer

import "math"

const (
	minFrequency  = 20.0
	maxFrequency  = 20000.0
	discreteBands = 96
	peakHold      = 30
	peakFall      = 0.02
)

// Band is one bar of the display.
type Band struct {
	Lo, Hi, Center float64
	Level          float64
	Peak           float64
	hold           int
}

func layoutBands(mode Mode, sampleRate int) []Band {
	hi := math.Min(maxFrequency, float64(sampleRate)/2)
	if hi <= minFrequency {
		hi = minFrequency * 2
	}
	octaves := math.Log2(hi / minFrequency)
	n := discreteBands
	if per := mode.bandsPerOctave(); per > 0 {
		n = int(math.Ceil(octaves * float64(per)))
	}
	if n < 1 {
		n = 1
	}
	bands := make([]Band, n)
	step := octaves / float64(n)
	for i := range bands {
		lo := minFrequency * math.Pow(2, step*float64(i))
		up := minFrequency * math.Pow(2, step*float64(i+1))
		bands[i] = Band{Lo: lo, Hi: up, Center: math.Sqrt(lo * up)}
	}
	return bands
}

// updateBands folds a spectrum into the bands, applying temporal smoothing
// and peak hold with a linear fall.
func updateBands(bands []Band, spectrum []float64, binHz, smoothing float64) {
	if len(spectrum) == 0 || binHz <= 0 {
		return
	}
	last := len(spectrum) - 1
	for i := range bands {
		b := &bands[i]
		lo := int(math.Ceil(b.Lo / binHz))
		hi := int(math.Floor(b.Hi / binHz))
		var v float64
		if lo <= hi && lo <= last {
			for k := lo; k <= hi && k <= last; k++ {
				v = math.Max(v, spectrum[k])
			}
		} else {
			// Band narrower than a bin: interpolate at its centre.
			pos := b.Center / binHz
			k := int(pos)
			if k >= last {
				v = spectrum[last]
			} else {
				f := pos - float64(k)
				v = spectrum[k]*(1-f) + spectrum[k+1]*f
			}
		}
		b.Level = smoothing*b.Level + (1-smoothing)*v
		switch {
		case b.Level >= b.Peak:
			b.Peak = b.Level
			b.hold = peakHold
		case b.hold > 0:
			b.hold--
		default:
			b.Peak = math.Max(b.Level, b.Peak-peakFall)
		}
	}
}
