package main

import (
	"image"
	"image/color"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/vector"
)

var (
	faceColor   = color.RGBA{192, 192, 192, 255}
	shadowColor = color.RGBA{128, 128, 128, 255}
	lightColor  = color.RGBA{255, 255, 255, 255}
	darkColor   = color.RGBA{64, 64, 64, 255}
	wellColor   = color.RGBA{24, 24, 32, 255}
	accentColor = color.RGBA{0, 0, 128, 255}
	litColor    = color.RGBA{255, 200, 40, 255}
	mutedColor  = color.RGBA{96, 32, 32, 255}
)

type bevelStyle int

const (
	raised bevelStyle = iota
	sunken
)

func fillRect(dst *ebiten.Image, r image.Rectangle, c color.Color) {
	if r.Empty() {
		return
	}
	vector.DrawFilledRect(dst, float32(r.Min.X), float32(r.Min.Y), float32(r.Dx()), float32(r.Dy()), c, false)
}

// bevel draws a two-pixel 3D edge around r.
func bevel(dst *ebiten.Image, r image.Rectangle, style bevelStyle) {
	outerLit, outerShade := color.Color(lightColor), color.Color(darkColor)
	innerLit, innerShade := color.Color(faceColor), color.Color(shadowColor)
	if style == sunken {
		outerLit, outerShade = shadowColor, lightColor
		innerLit, innerShade = darkColor, faceColor
	}
	edge := func(in int, lit, shade color.Color) {
		x0, y0, x1, y1 := r.Min.X+in, r.Min.Y+in, r.Max.X-in, r.Max.Y-in
		fillRect(dst, image.Rect(x0, y0, x1-1, y0+1), lit)
		fillRect(dst, image.Rect(x0, y0+1, x0+1, y1-1), lit)
		fillRect(dst, image.Rect(x0, y1-1, x1, y1), shade)
		fillRect(dst, image.Rect(x1-1, y0, x1, y1-1), shade)
	}
	edge(0, outerLit, outerShade)
	edge(1, innerLit, innerShade)
}

func panel(dst *ebiten.Image, r image.Rectangle, fill color.Color, style bevelStyle) {
	fillRect(dst, r, fill)
	bevel(dst, r, style)
}

// knob is the raised handle of a slider.
func knob(dst *ebiten.Image, r image.Rectangle) {
	panel(dst, r, faceColor, raised)
}

// hslider draws a horizontal groove filled to frac with a knob on top.
func hslider(dst *ebiten.Image, groove image.Rectangle, frac float64) {
	fillRect(dst, groove, darkColor)
	fill := int(float64(groove.Dx()) * clamp(frac, 0, 1))
	if fill > 1 {
		fillRect(dst, image.Rect(groove.Min.X+1, groove.Min.Y+1, groove.Min.X+fill, groove.Max.Y-1), accentColor)
	}
	x := groove.Min.X + fill
	knob(dst, image.Rect(x-5, groove.Min.Y-4, x+5, groove.Max.Y+4))
}

// vslider draws a vertical groove with a centre line and a knob at frac (1 = top).
func vslider(dst *ebiten.Image, column image.Rectangle, frac float64) {
	mid := column.Min.X + column.Dx()/2
	fillRect(dst, image.Rect(mid-2, column.Min.Y, mid+2, column.Max.Y), darkColor)
	centre := column.Min.Y + column.Dy()/2
	fillRect(dst, image.Rect(column.Min.X, centre, column.Max.X, centre+1), shadowColor)
	y := column.Max.Y - int(clamp(frac, 0, 1)*float64(column.Dy())) - 4
	knob(dst, image.Rect(column.Min.X+2, y, column.Max.X-2, y+8))
}

// sliderFrac maps a cursor coordinate onto [0, 1] across [lo, hi).
func sliderFrac(v, lo, hi int) float64 {
	if hi <= lo {
		return 0
	}
	return clamp(float64(v-lo)/float64(hi-lo), 0, 1)
}

const (
	glyphW    = 7
	glyphH    = 14
	textScale = 2
	charW     = glyphW * textScale
	lineH     = glyphH * textScale
)

// textCache renders debug-font strings once and draws them scaled with a
// drop shadow.
type textCache struct {
	images map[string]*ebiten.Image
}

const textCacheLimit = 3000

func newTextCache() *textCache {
	return &textCache{images: make(map[string]*ebiten.Image, 1024)}
}

func (tc *textCache) image(s string) *ebiten.Image {
	if img, ok := tc.images[s]; ok {
		return img
	}
	if len(tc.images) >= textCacheLimit {
		clear(tc.images)
	}
	img := ebiten.NewImage(max(1, len([]rune(s))*glyphW), glyphH)
	ebitenutil.DebugPrintAt(img, s, 0, 0)
	tc.images[s] = img
	return img
}

func (tc *textCache) draw(dst *ebiten.Image, s string, x, y int) {
	if s == "" {
		return
	}
	img := tc.image(s)
	for _, pass := range [2]struct {
		dx    int
		black bool
	}{{2, true}, {0, false}} {
		op := &ebiten.DrawImageOptions{}
		op.GeoM.Scale(textScale, textScale)
		op.GeoM.Translate(float64(x+pass.dx), float64(y+pass.dx))
		if pass.black {
			op.ColorScale.Scale(0, 0, 0, 1)
		}
		dst.DrawImage(img, op)
	}
}

// centered draws s in the middle of r.
func (tc *textCache) centered(dst *ebiten.Image, s string, r image.Rectangle) {
	w := len([]rune(s)) * charW
	tc.draw(dst, s, r.Min.X+(r.Dx()-w)/2, r.Min.Y+(r.Dy()-lineH)/2)
}

func button(dst *ebiten.Image, tc *textCache, r image.Rectangle, label string) {
	panel(dst, r, faceColor, raised)
	tc.centered(dst, label, r)
}

func fitEnd(s string, n int) string {
	r := []rune(s)
	switch {
	case len(r) <= n:
		return s
	case n <= 3:
		return string(r[:max(0, n)])
	}
	return string(r[:n-3]) + "..."
}

func fitMiddle(s string, n int) string {
	r := []rune(s)
	if len(r) <= n || n <= 7 {
		return fitEnd(s, n)
	}
	head := (n - 3) / 2
	tail := n - 3 - head
	return string(r[:head]) + "..." + string(r[len(r)-tail:])
}

func clamp(v, lo, hi float64) float64 {
	return max(lo, min(hi, v))
}

func contains(r image.Rectangle, x, y int) bool {
	return image.Pt(x, y).In(r)
}
