package effects

import "math"

// Limiter is a feed-forward peak compressor with a linked stereo detector,
// so both channels always receive the same gain.
type Limiter struct {
	thresholdDB float64
	slope       float64 // 1 - 1/ratio
	attack      float64
	release     float64
	env         float64
}

// NewLimiter builds a limiter. Ratios below 1 are treated as 1.
func NewLimiter(sampleRate int, thresholdDB, ratio, attackMs, releaseMs float64) *Limiter {
	if ratio < 1 {
		ratio = 1
	}
	return &Limiter{
		thresholdDB: thresholdDB,
		slope:       1 - 1/ratio,
		attack:      smoothing(sampleRate, attackMs),
		release:     smoothing(sampleRate, releaseMs),
	}
}

func smoothing(sampleRate int, ms float64) float64 {
	if ms <= 0 {
		return 1
	}
	return 1 - math.Exp(-1000/(ms*float64(sampleRate)))
}

func (lm *Limiter) Process(l, r float32) (float32, float32) {
	peak := math.Max(math.Abs(float64(l)), math.Abs(float64(r)))
	k := lm.release
	if peak > lm.env {
		k = lm.attack
	}
	lm.env += k * (peak - lm.env)
	g := float32(lm.gain())
	return l * g, r * g
}

// gain is the linear gain for the current envelope.
func (lm *Limiter) gain() float64 {
	if lm.env <= 0 {
		return 1
	}
	over := 20*math.Log10(lm.env) - lm.thresholdDB
	if over <= 0 {
		return 1
	}
	return math.Pow(10, -over*lm.slope/20)
}

func (lm *Limiter) Reset() { lm.env = 0 }
