package visualizer

import (
	"image"
	"image/color"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeClampsEveryField(t *testing.T) {
	o := Options{
		Mode:      9,
		Gradient:  "neon",
		SpinSpeed: 12,
		Radius:    0,
		LineWidth: -1,
		Mirror:    7,
		Smoothing: 2,
	}.Normalize()
	assert.Equal(t, Mode(8), o.Mode)
	assert.Equal(t, GradientClassic, o.Gradient)
	assert.Equal(t, 5.0, o.SpinSpeed)
	assert.Equal(t, 0.1, o.Radius)
	assert.Equal(t, 0.0, o.LineWidth)
	assert.Equal(t, 1, o.Mirror)
	assert.Equal(t, 0.95, o.Smoothing)

	assert.Equal(t, ModeArea, Options{Mode: 42}.Normalize().Mode)
	assert.Equal(t, Mode(0), Options{Mode: -3}.Normalize().Mode)
	assert.Equal(t, -1, Options{Mirror: -4}.Normalize().Mirror)
	assert.Equal(t, defaultSmoothing, Options{Smoothing: math.NaN()}.Normalize().Smoothing)
}

func TestPresetsAreNormalized(t *testing.T) {
	ps := Presets()
	require.Len(t, ps, 8)
	seen := map[string]bool{}
	for _, p := range ps {
		assert.False(t, seen[p.Name], "duplicate preset %q", p.Name)
		seen[p.Name] = true
		assert.Equal(t, p.Options, p.Options.Normalize(), p.Name)
	}
	p, ok := PresetByName("Neon Area")
	require.True(t, ok)
	assert.Equal(t, ModeArea, p.Options.Mode)
	assert.Equal(t, 2.0, p.Options.LineWidth)

	ps[0].Name = "changed"
	assert.Equal(t, "Radial Rainbow", Presets()[0].Name)
}

func sine(freq float64, rate, frames int) []float32 {
	out := make([]float32, frames*2)
	for i := 0; i < frames; i++ {
		v := float32(math.Sin(2 * math.Pi * freq * float64(i) / float64(rate)))
		out[2*i], out[2*i+1] = v, v
	}
	return out
}

func TestAnalyzerFindsTone(t *testing.T) {
	a := NewAnalyzer(8000, 1024)
	a.Write(sine(1000, 8000, 1024))
	bins := a.Spectrum()
	require.Len(t, bins, 513)

	best := 0
	for i, v := range bins {
		if v > bins[best] {
			best = i
		}
	}
	assert.Equal(t, 128, best)
	assert.InDelta(t, 1.0, bins[best], 0.05)
	assert.Less(t, bins[300], 0.2)
}

func TestAnalyzerSilence(t *testing.T) {
	a := NewAnalyzer(8000, 256)
	a.Write(sine(1000, 8000, 256))
	a.Reset()
	for i, v := range a.Spectrum() {
		if v != 0 {
			t.Fatalf("bin %d = %v after reset", i, v)
		}
	}
}

func TestLayoutBands(t *testing.T) {
	cases := []struct {
		mode Mode
		rate int
		want int
	}{
		{8, 48000, 10},
		{3, 48000, 80},
		{ModeDiscrete, 48000, discreteBands},
		{ModeArea, 44100, discreteBands},
		{8, 8000, 8},
	}
	for _, tc := range cases {
		bands := layoutBands(tc.mode, tc.rate)
		if len(bands) != tc.want {
			t.Fatalf("mode %d @%d: %d bands, want %d", tc.mode, tc.rate, len(bands), tc.want)
		}
		for i := 1; i < len(bands); i++ {
			if bands[i].Lo <= bands[i-1].Lo {
				t.Fatalf("bands not ascending at %d", i)
			}
		}
	}
}

func TestUpdateBandsSmoothingAndPeaks(t *testing.T) {
	bands := layoutBands(8, 8000)
	full := make([]float64, 513)
	for i := range full {
		full[i] = 1
	}
	binHz := 8000.0 / 1024
	updateBands(bands, full, binHz, 0)
	for _, b := range bands {
		require.Equal(t, 1.0, b.Level)
		require.Equal(t, 1.0, b.Peak)
	}

	silent := make([]float64, 513)
	updateBands(bands, silent, binHz, 0.5)
	assert.Equal(t, 0.5, bands[0].Level)
	assert.Equal(t, 1.0, bands[0].Peak, "peak holds")

	for i := 0; i < peakHold+5; i++ {
		updateBands(bands, silent, binHz, 0)
	}
	assert.Equal(t, 0.0, bands[0].Level)
	assert.InDelta(t, 1-6*peakFall, bands[0].Peak, 1e-9)
}

func levels(n int, v float64) []Band {
	b := layoutBands(8, 8000)[:n]
	for i := range b {
		b[i].Level = v
	}
	return b
}

func isBackground(c color.Color) bool {
	r, g, b, _ := c.RGBA()
	return r == 0 && g == 0 && b == 0
}

func TestRenderLinear(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 64, 32))
	renderer{opts: DefaultOptions()}.draw(img, levels(8, 1))
	assert.False(t, isBackground(img.At(2, 31)), "bar bottom lit")
	assert.False(t, isBackground(img.At(2, 0)), "full bar reaches top")
	assert.True(t, isBackground(img.At(7, 31)), "gap between bars")

	opts := DefaultOptions()
	opts.ShowPeaks = false
	renderer{opts: opts}.draw(img, levels(8, 0))
	for y := 0; y < 32; y++ {
		for x := 0; x < 64; x++ {
			if !isBackground(img.At(x, y)) {
				t.Fatalf("pixel %d,%d lit on silence", x, y)
			}
		}
	}
}

func TestRenderMirrorAndLumi(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 64, 32))
	bands := levels(8, 0)
	bands[0].Level = 1

	opts := DefaultOptions()
	opts.ShowPeaks = false
	opts.Mirror = 1
	renderer{opts: opts}.draw(img, bands)
	assert.False(t, isBackground(img.At(1, 20)), "low band on the left")
	assert.False(t, isBackground(img.At(62, 20)), "mirrored on the right")
	assert.True(t, isBackground(img.At(31, 20)))

	opts.Mirror = 0
	opts.LumiBars = true
	renderer{opts: opts}.draw(img, bands)
	assert.False(t, isBackground(img.At(1, 0)))
	assert.True(t, isBackground(img.At(20, 0)), "silent lumi bar is dark")
}

func TestRenderRadial(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	opts := DefaultOptions()
	opts.Radial = true
	opts.ShowPeaks = false
	renderer{opts: opts}.draw(img, levels(8, 1))
	assert.True(t, isBackground(img.At(32, 32)), "centre stays empty")
	assert.False(t, isBackground(img.At(52, 32)))

	opts.RadialInvert = true
	renderer{opts: opts}.draw(img, levels(8, 1))
	assert.False(t, isBackground(img.At(32+5, 32)))
	assert.True(t, isBackground(img.At(32+20, 32)))
}

type fakeSource struct {
	taps    []func([]float32)
	removed int
}

func (s *fakeSource) AddTap(fn func([]float32)) func() {
	s.taps = append(s.taps, fn)
	return func() { s.removed++ }
}

func TestBridgeDefersWithoutSource(t *testing.T) {
	b := NewBridge(8000, DefaultOptions())
	img := image.NewRGBA(image.Rect(0, 0, 32, 16))
	assert.False(t, b.Attach(img, nil))
	assert.False(t, b.Frame())

	src := &fakeSource{}
	assert.True(t, b.Attach(img, src))
	assert.True(t, b.Attach(img, src), "second attach is a no-op")
	assert.Len(t, src.taps, 1)
}

func TestBridgeObservesTapAndReconfigures(t *testing.T) {
	clock := time.Unix(0, 0)
	b := NewBridge(8000, DefaultOptions(), WithFFTSize(1024), withClock(func() time.Time { return clock }))
	img := image.NewRGBA(image.Rect(0, 0, 64, 32))
	src := &fakeSource{}
	require.True(t, b.Attach(img, src))

	src.taps[0](sine(1000, 8000, 1024))
	require.True(t, b.Frame())
	var loud bool
	for _, band := range b.Bands() {
		if band.Lo <= 1000 && 1000 < band.Hi {
			loud = band.Level > 0.2
		}
	}
	assert.True(t, loud, "band containing the tone rises")

	require.NoError(t, b.ApplyPreset("Radial Rainbow"))
	assert.True(t, b.Options().Radial)
	assert.Len(t, src.taps, 1, "options do not re-attach")
	clock = clock.Add(time.Second)
	require.True(t, b.Frame())
	assert.InDelta(t, 2*math.Pi/60, b.angle, 1e-9)

	assert.ErrorIs(t, b.ApplyPreset("nope"), ErrUnknownPreset)

	b.Detach()
	assert.Equal(t, 1, src.removed)
	assert.False(t, b.Attached())
	assert.False(t, b.Frame())
}
