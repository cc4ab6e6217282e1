// Package visualizer renders a live spectrum of the engine output.
package visualizer

import (
	"errors"
	"math"
)

var ErrUnknownPreset = errors.New("visualizer: unknown preset")

// Mode selects the band layout. 0 is discrete log-spaced bins, 1-8 are
// octave fractions from 1/24 down to full octaves, 10 is an area graph.
type Mode int

const (
	ModeDiscrete Mode = 0
	ModeArea     Mode = 10
)

// bandsPerOctave returns 0 for the discrete layouts.
func (m Mode) bandsPerOctave() int {
	switch m {
	case 1:
		return 24
	case 2:
		return 12
	case 3:
		return 8
	case 4:
		return 6
	case 5:
		return 4
	case 6:
		return 3
	case 7:
		return 2
	case 8:
		return 1
	}
	return 0
}

type Gradient string

const (
	GradientClassic   Gradient = "classic"
	GradientOrangeRed Gradient = "orangered"
	GradientPrism     Gradient = "prism"
	GradientRainbow   Gradient = "rainbow"
	GradientSteelBlue Gradient = "steelblue"
)

func Gradients() []Gradient {
	return []Gradient{GradientClassic, GradientOrangeRed, GradientPrism, GradientRainbow, GradientSteelBlue}
}

// Options is the full rendering configuration. Zero values are valid
// except where Normalize substitutes a default.
type Options struct {
	Mode         Mode     `json:"mode"`
	Gradient     Gradient `json:"gradient"`
	Radial       bool     `json:"radial"`
	RadialInvert bool     `json:"radialInvert"`
	LEDBars      bool     `json:"ledBars"`
	LumiBars     bool     `json:"lumiBars"`
	OutlineBars  bool     `json:"outlineBars"`
	RoundBars    bool     `json:"roundBars"`
	ShowPeaks    bool     `json:"showPeaks"`
	SpinSpeed    float64  `json:"spinSpeed"` // revolutions per minute, radial only
	Radius       float64  `json:"radius"`    // inner radius as a fraction of the half extent
	LineWidth    float64  `json:"lineWidth"` // area outline, mode 10 only
	Mirror       int      `json:"mirror"`
	Smoothing    float64  `json:"smoothing"`
}

const defaultSmoothing = 0.7

func DefaultOptions() Options {
	return Options{
		Mode:      3,
		Gradient:  GradientClassic,
		ShowPeaks: true,
		Radius:    0.3,
		Smoothing: defaultSmoothing,
	}
}

// Normalize clamps every field into its domain.
func (o Options) Normalize() Options {
	switch {
	case o.Mode < 0:
		o.Mode = 0
	case o.Mode == 9:
		o.Mode = 8
	case o.Mode > ModeArea:
		o.Mode = ModeArea
	}
	if !validGradient(o.Gradient) {
		o.Gradient = GradientClassic
	}
	o.SpinSpeed = clampFinite(o.SpinSpeed, -5, 5, 0)
	o.Radius = clampFinite(o.Radius, 0.1, 1, 0.3)
	o.LineWidth = clampFinite(o.LineWidth, 0, 5, 0)
	switch {
	case o.Mirror < 0:
		o.Mirror = -1
	case o.Mirror > 0:
		o.Mirror = 1
	}
	o.Smoothing = clampFinite(o.Smoothing, 0, 0.95, defaultSmoothing)
	return o
}

func validGradient(g Gradient) bool {
	for _, v := range Gradients() {
		if v == g {
			return true
		}
	}
	return false
}

func clampFinite(v, lo, hi, fallback float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fallback
	}
	return math.Max(lo, math.Min(hi, v))
}

type Preset struct {
	Name    string  `json:"name"`
	Options Options `json:"options"`
}

func presetOptions(mut func(*Options)) Options {
	o := DefaultOptions()
	o.ShowPeaks = false
	mut(&o)
	return o
}

var presets = []Preset{
	{"Radial Rainbow", presetOptions(func(o *Options) {
		o.Radial, o.Mode, o.Gradient, o.SpinSpeed, o.ShowPeaks = true, 3, GradientRainbow, 1, true
	})},
	{"LED Radial", presetOptions(func(o *Options) {
		o.Radial, o.Mode, o.LEDBars, o.SpinSpeed, o.ShowPeaks = true, 3, true, 2, true
	})},
	{"Neon Area", presetOptions(func(o *Options) {
		o.Mode, o.Gradient, o.LineWidth = ModeArea, GradientPrism, 2
	})},
	{"Lumi Bars", presetOptions(func(o *Options) {
		o.Mode, o.Gradient, o.LumiBars, o.RoundBars = 5, GradientRainbow, true, true
	})},
	{"Mirror Bars", presetOptions(func(o *Options) {
		o.Mode, o.Gradient, o.RoundBars, o.Mirror, o.ShowPeaks = 6, GradientOrangeRed, true, 1, true
	})},
	{"Radial Invert", presetOptions(func(o *Options) {
		o.Radial, o.RadialInvert, o.Mode, o.Gradient, o.SpinSpeed, o.ShowPeaks = true, true, 4, GradientSteelBlue, -1, true
	})},
	{"Outline Radial", presetOptions(func(o *Options) {
		o.Radial, o.Mode, o.Gradient, o.OutlineBars, o.SpinSpeed, o.Radius = true, 5, GradientPrism, true, 1, 0.25
	})},
	{"Area Radial", presetOptions(func(o *Options) {
		o.Radial, o.Mode, o.Gradient, o.LineWidth, o.SpinSpeed, o.Radius = true, ModeArea, GradientRainbow, 2.5, 1, 0.2
	})},
}

// Presets returns the bundled presets in display order.
func Presets() []Preset {
	out := make([]Preset, len(presets))
	copy(out, presets)
	return out
}

func PresetByName(name string) (Preset, bool) {
	for _, p := range presets {
		if p.Name == name {
			return p, true
		}
	}
	return Preset{}, false
}
