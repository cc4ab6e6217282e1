package effects

// Reverb is a small stereo room: parallel damped feedback combs into serial
// allpass diffusers, with the right channel's delay lines slightly longer
// than the left's for width. The wet mix is read by Master on each buffer.
type Reverb struct {
	left, right room
	wet         float32
}

type room struct {
	combs [4]comb
	diff  [2]delayLine
}

type delayLine struct {
	buf []float32
	i   int
}

type comb struct {
	delayLine
	feedback float32
	damp     float32
	lp       float32
}

// Tunings in samples at 44.1kHz; scaled to the actual rate.
var (
	combTuning    = [4]int{1116, 1277, 1422, 1557}
	diffuseTuning = [2]int{556, 341}
)

const stereoSpread = 23

// NewReverb builds a reverb. size scales the delay lengths (0..1), decay sets
// comb feedback (0..1) and wet the initial mix.
func NewReverb(sampleRate int, size, decay, wet float32) *Reverb {
	size = clamp(size, 0.1, 1)
	scale := float32(sampleRate) / 44100 * size
	fb := 0.7 + 0.28*clamp(decay, 0, 1)
	build := func(spread int) room {
		var rm room
		for i, n := range combTuning {
			rm.combs[i] = comb{delayLine: newDelayLine(int(float32(n+spread) * scale)), feedback: fb, damp: 0.25}
		}
		for i, n := range diffuseTuning {
			rm.diff[i] = newDelayLine(int(float32(n+spread) * scale))
		}
		return rm
	}
	return &Reverb{left: build(0), right: build(stereoSpread), wet: clamp(wet, 0, 1)}
}

func newDelayLine(n int) delayLine {
	return delayLine{buf: make([]float32, max(n, 1))}
}

func (r *Reverb) Process(l, rr float32) (float32, float32) {
	if r.wet == 0 {
		return l, rr
	}
	in := (l + rr) * 0.015 // input gain keeps the comb sum in range
	wl, wr := r.left.process(in), r.right.process(in)
	dry := 1 - r.wet
	return l*dry + wl*r.wet, rr*dry + wr*r.wet
}

func (r *Reverb) Reset() {
	r.left.reset()
	r.right.reset()
}

func (rm *room) process(in float32) float32 {
	var out float32
	for i := range rm.combs {
		out += rm.combs[i].process(in)
	}
	for i := range rm.diff {
		out = rm.diff[i].allpass(out)
	}
	return out
}

func (rm *room) reset() {
	for i := range rm.combs {
		rm.combs[i].clear()
		rm.combs[i].lp = 0
	}
	for i := range rm.diff {
		rm.diff[i].clear()
	}
}

func (c *comb) process(in float32) float32 {
	out := c.buf[c.i]
	c.lp = out*(1-c.damp) + c.lp*c.damp
	c.buf[c.i] = in + c.lp*c.feedback
	c.step()
	return out
}

func (d *delayLine) allpass(in float32) float32 {
	held := d.buf[d.i]
	d.buf[d.i] = in + held*0.5
	d.step()
	return held - in
}

func (d *delayLine) step() {
	if d.i++; d.i == len(d.buf) {
		d.i = 0
	}
}

func (d *delayLine) clear() {
	clear(d.buf)
	d.i = 0
}
