package visualizer

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"golang.org/x/image/colornames"
)

var gradientStops = map[Gradient][]color.RGBA{
	GradientClassic:   {colornames.Green, colornames.Yellow, colornames.Red},
	GradientOrangeRed: {colornames.Orangered, colornames.Orange, colornames.Gold},
	GradientPrism: {
		colornames.Red, colornames.Orange, colornames.Yellow,
		colornames.Lime, colornames.Deepskyblue, colornames.Blueviolet,
	},
	GradientRainbow: {
		colornames.Darkviolet, colornames.Blue, colornames.Cyan,
		colornames.Lime, colornames.Yellow, colornames.Red,
	},
	GradientSteelBlue: {colornames.Midnightblue, colornames.Steelblue, colornames.Lightsteelblue},
}

var background = colornames.Black

// colorAt samples a gradient at t in [0,1], bottom to top.
func colorAt(g Gradient, t float64) color.RGBA {
	stops, ok := gradientStops[g]
	if !ok {
		stops = gradientStops[GradientClassic]
	}
	t = math.Max(0, math.Min(1, t))
	pos := t * float64(len(stops)-1)
	i := int(pos)
	if i >= len(stops)-1 {
		return stops[len(stops)-1]
	}
	f := pos - float64(i)
	a, b := stops[i], stops[i+1]
	lerp := func(x, y uint8) uint8 { return uint8(float64(x) + (float64(y)-float64(x))*f + 0.5) }
	return color.RGBA{lerp(a.R, b.R), lerp(a.G, b.G), lerp(a.B, b.B), 255}
}

func scale(c color.RGBA, k float64) color.RGBA {
	k = math.Max(0, math.Min(1, k))
	return color.RGBA{uint8(float64(c.R) * k), uint8(float64(c.G) * k), uint8(float64(c.B) * k), 255}
}

const (
	ledSegments = 24
	barGap      = 1
)

// renderer draws bands into a canvas. angle is the radial rotation in radians.
type renderer struct {
	opts  Options
	angle float64
}

func (r renderer) draw(dst draw.Image, bands []Band) {
	bounds := dst.Bounds()
	draw.Draw(dst, bounds, image.NewUniform(background), image.Point{}, draw.Src)
	if len(bands) == 0 || bounds.Empty() {
		return
	}
	if r.opts.Radial {
		r.drawRadial(dst, bands)
		return
	}
	r.drawLinear(dst, bands)
}

// bandAt maps a horizontal fraction to a band, honouring Mirror.
func (r renderer) bandAt(u float64, n int) (int, float64) {
	switch r.opts.Mirror {
	case -1:
		if u < 0.5 {
			u = 1 - 2*u
		} else {
			u = 2*u - 1
		}
	case 1:
		if u < 0.5 {
			u = 2 * u
		} else {
			u = 2 - 2*u
		}
	}
	pos := u * float64(n)
	i := int(pos)
	if i >= n {
		i = n - 1
	}
	return i, pos - float64(i)
}

func levelAt(bands []Band, i int, frac float64, area bool) float64 {
	if !area || i+1 >= len(bands) {
		return bands[i].Level
	}
	return bands[i].Level*(1-frac) + bands[i+1].Level*frac
}

func (r renderer) drawLinear(dst draw.Image, bands []Band) {
	b := dst.Bounds()
	w, h := b.Dx(), b.Dy()
	area := r.opts.Mode == ModeArea
	n := len(bands)
	barW := float64(w) / float64(n)
	if r.opts.Mirror != 0 {
		barW /= 2
	}
	for x := 0; x < w; x++ {
		u := (float64(x) + 0.5) / float64(w)
		i, frac := r.bandAt(u, n)
		if !area && barW >= 3 {
			// Leave a gap on the right edge of each bar.
			edge := frac * barW
			if edge > barW-barGap {
				continue
			}
		}
		level := levelAt(bands, i, frac, area)
		top := int(math.Round(level * float64(h)))
		peak := int(math.Round(bands[i].Peak * float64(h)))
		for y := 0; y < h; y++ {
			height := h - y // distance from the bottom edge
			c, ok := r.pixel(height, top, peak, h, level, frac, barW, area)
			if ok {
				dst.Set(b.Min.X+x, b.Min.Y+y, c)
			}
		}
	}
}

// pixel decides the colour at a given height (1..span) inside one bar column.
func (r renderer) pixel(height, top, peak, span int, level, frac, barW float64, area bool) (color.RGBA, bool) {
	if height > span {
		return color.RGBA{}, false
	}
	t := float64(height) / float64(span)
	if r.opts.ShowPeaks && !area && peak > 0 && height == peak {
		return colornames.White, true
	}
	if r.opts.LumiBars && !area {
		return scale(colorAt(r.opts.Gradient, t), level), true
	}
	if height > top {
		return color.RGBA{}, false
	}
	if area && r.opts.LineWidth > 0 && float64(top-height) < r.opts.LineWidth {
		return colorAt(r.opts.Gradient, 1), true
	}
	if r.opts.LEDBars && !area {
		seg := float64(span) / ledSegments
		if math.Mod(float64(height), seg) < 1 {
			return color.RGBA{}, false
		}
	}
	if r.opts.RoundBars && !area && barW >= 3 {
		rad := barW / 2
		dy := float64(height) - (float64(top) - rad)
		if dy > 0 {
			dx := frac*barW - rad
			if dx*dx+dy*dy > rad*rad {
				return color.RGBA{}, false
			}
		}
	}
	if r.opts.OutlineBars && !area {
		edge := frac * barW
		if height != top && edge >= 1 && edge < barW-barGap-1 {
			return color.RGBA{}, false
		}
	}
	return colorAt(r.opts.Gradient, t), true
}

func (r renderer) drawRadial(dst draw.Image, bands []Band) {
	b := dst.Bounds()
	cx := float64(b.Min.X) + float64(b.Dx())/2
	cy := float64(b.Min.Y) + float64(b.Dy())/2
	half := math.Min(float64(b.Dx()), float64(b.Dy())) / 2
	inner := r.opts.Radius * half
	outer := half - inner
	if r.opts.RadialInvert {
		outer = inner
	}
	area := r.opts.Mode == ModeArea
	n := len(bands)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			dx, dy := float64(x)+0.5-cx, float64(y)+0.5-cy
			d := math.Hypot(dx, dy)
			theta := math.Atan2(dy, dx) - r.angle
			u := math.Mod(theta/(2*math.Pi)+1.25, 1)
			i, frac := r.bandAt(u, n)
			level := levelAt(bands, i, frac, area)
			// Length along the bar, measured from the inner circle.
			along := d - inner
			if r.opts.RadialInvert {
				along = inner - d
			}
			if along < 0 || outer <= 0 {
				continue
			}
			height := int(along) + 1
			span := int(math.Ceil(outer))
			top := int(math.Round(level * outer))
			peak := int(math.Round(bands[i].Peak * outer))
			barW := 2 * math.Pi * inner / float64(n)
			if c, ok := r.pixel(height, top, peak, span, level, frac, barW, area); ok {
				dst.Set(x, y, c)
			}
		}
	}
}
