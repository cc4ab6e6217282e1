package main

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"

	"github.com/cbegin/noteblock-go/internal/engine"
	"github.com/cbegin/noteblock-go/internal/pitch"
	"github.com/cbegin/noteblock-go/internal/visualizer"
)

var eqLabels = [5]string{"Lo", "LoM", "Mid", "HiM", "Hi"}

type layout struct {
	files, eq, tracks, viz           image.Rectangle
	play, loop, preset, base, export image.Rectangle
	volume, seek, status             image.Rectangle
}

func (l layout) fileRowsTop() int  { return l.files.Min.Y + 12 + 2*lineH }
func (l layout) trackRowsTop() int { return l.tracks.Min.Y + 12 + lineH }

func (l layout) volumeGroove() image.Rectangle {
	mid := l.volume.Min.Y + l.volume.Dy()/2
	return image.Rect(l.volume.Min.X+130, mid-4, l.volume.Max.X-16, mid+4)
}

func (a *app) layout() layout {
	const (
		pad     = 20
		gap     = 12
		rowH    = 44
		statusH = 40
		seekH   = 24
		sideW   = 280
		eqH     = 120
	)
	var l layout
	l.status = image.Rect(pad, a.h-pad-statusH, a.w-pad, a.h-pad)
	l.seek = image.Rect(pad, l.status.Min.Y-8-seekH, a.w-pad, l.status.Min.Y-8)
	controls := l.seek.Min.Y - 8 - rowH
	bottom := controls - gap

	l.eq = image.Rect(pad, bottom-eqH, pad+sideW, bottom)
	l.files = image.Rect(pad, pad, pad+sideW, l.eq.Min.Y-8)

	right := l.files.Max.X + gap
	vizH := min(320, max(160, (bottom-pad)/2))
	l.viz = image.Rect(right, bottom-vizH, a.w-pad, bottom)
	l.tracks = image.Rect(right, pad, a.w-pad, l.viz.Min.Y-gap)

	x := pad
	for _, b := range []struct {
		r *image.Rectangle
		w int
	}{{&l.play, 110}, {&l.loop, 110}, {&l.preset, 200}, {&l.base, 130}, {&l.export, 120}} {
		*b.r = image.Rect(x, controls, x+b.w, controls+rowH)
		x += b.w + gap
	}
	l.volume = image.Rect(x, controls, max(x+120, a.w-pad), controls+rowH)
	return l
}

func (a *app) Draw(screen *ebiten.Image) {
	screen.Fill(faceColor)
	l := a.layout()

	a.drawFiles(screen, l)
	a.drawEQ(screen, l.eq)
	a.drawTracks(screen, l)
	a.drawViz(screen, l.viz)

	playLabel := "Play"
	if a.player.State() == engine.Playing {
		playLabel = "Pause"
	}
	loopLabel := "Loop off"
	if a.player.Loop() {
		loopLabel = "Loop on"
	}
	exportLabel := "Export"
	if a.exporting.Load() {
		exportLabel = "..."
	}
	button(screen, a.text, l.play, playLabel)
	button(screen, a.text, l.loop, loopLabel)
	button(screen, a.text, l.preset, "Viz: "+fitEnd(visualizer.Presets()[a.preset].Name, 10))
	button(screen, a.text, l.base, "Base "+pitch.BaseNotes()[a.base])
	button(screen, a.text, l.export, exportLabel)

	panel(screen, l.volume, faceColor, raised)
	a.text.draw(screen, fmt.Sprintf("Vol %d%%", int(math.Round(a.volume*100))), l.volume.Min.X+8, l.volume.Min.Y+8)
	if g := l.volumeGroove(); g.Dx() >= 20 {
		hslider(screen, g, a.volume)
	}

	a.drawSeek(screen, l.seek)

	panel(screen, l.status, wellColor, sunken)
	msg := "Status: " + a.status
	if a.failed {
		msg = "Error: " + a.status
	}
	a.text.draw(screen, fitEnd(msg, max(8, (l.status.Dx()-16)/charW)), l.status.Min.X+8, l.status.Min.Y+6)
}

func (a *app) drawFiles(screen *ebiten.Image, l layout) {
	r := l.files
	panel(screen, r, wellColor, sunken)
	cols := max(8, (r.Dx()-16)/charW)
	a.text.draw(screen, "Files", r.Min.X+8, r.Min.Y+8)
	a.text.draw(screen, fitMiddle(a.files.dir, cols), r.Min.X+8, r.Min.Y+8+lineH)

	rows := max(1, (r.Max.Y-l.fileRowsTop()-6)/lineH)
	for i, e := range a.files.visible(rows) {
		y := l.fileRowsTop() + i*lineH
		if !e.dir && (samePath(e.path, a.midiPath) || samePath(e.path, a.samplePath)) {
			fillRect(screen, image.Rect(r.Min.X+6, y-2, r.Max.X-6, y+lineH), accentColor)
		}
		a.text.draw(screen, fitEnd(e.label(), cols-1), r.Min.X+10, y)
	}
}

func (a *app) drawEQ(screen *ebiten.Image, r image.Rectangle) {
	panel(screen, r, faceColor, raised)
	bandW := (r.Dx() - 16) / 5
	if bandW < 10 {
		return
	}
	for b := range eqLabels {
		x := r.Min.X + 8 + b*bandW
		vslider(screen, image.Rect(x, r.Min.Y+4, x+bandW-4, r.Max.Y-8), a.eq[b]/2)
	}
}

func (a *app) drawTracks(screen *ebiten.Image, l layout) {
	r := l.tracks
	panel(screen, r, wellColor, sunken)
	a.text.draw(screen, "Tracks", r.Min.X+8, r.Min.Y+8)
	sc := a.player.Score()
	if sc == nil {
		a.text.draw(screen, "Open a MIDI file.", r.Min.X+8, l.trackRowsTop())
		return
	}
	list := a.player.Assignments()
	rows := max(1, (r.Max.Y-l.trackRowsTop()-6)/lineH)
	a.tracks = min(a.tracks, max(0, len(list)-rows))
	nameCols := max(8, (r.Dx()-colName-8)/charW)

	for row := 0; row < rows && a.tracks+row < len(list); row++ {
		as := list[a.tracks+row]
		tr, ok := sc.Track(as.TrackIndex)
		if !ok {
			continue
		}
		y := l.trackRowsTop() + row*lineH
		x := r.Min.X
		if at, ok := a.flashed[as.TrackIndex]; ok && a.frame-at < flashFrames {
			fillRect(screen, image.Rect(x+colFlash, y+4, x+colFlash+10, y+lineH-6), litColor)
		}
		a.text.draw(screen, fitEnd(as.InstrumentID, (colDown-colInst)/charW), x+colInst, y)
		a.text.draw(screen, "-", x+colDown+8, y)
		a.text.draw(screen, "+", x+colUp+8, y)
		if as.Muted {
			fillRect(screen, image.Rect(x+colMute, y, x+colName-4, y+lineH-2), mutedColor)
		}
		a.text.draw(screen, "M", x+colMute+16, y)
		label := fmt.Sprintf("%s (%d) %+d", tr.Name, tr.NoteCount(), as.PitchOffset)
		a.text.draw(screen, fitEnd(label, nameCols), x+colName, y)
	}
}

func (a *app) drawViz(screen *ebiten.Image, r image.Rectangle) {
	panel(screen, r, color.Black, sunken)
	inner := r.Inset(8)
	if inner.Empty() {
		return
	}
	if a.canvas == nil || a.canvas.Bounds().Size() != inner.Size() {
		// A resized canvas needs a fresh attach on the next update.
		a.bridge.Detach()
		a.canvas = image.NewRGBA(image.Rectangle{Max: inner.Size()})
		a.vizImg = ebiten.NewImage(inner.Dx(), inner.Dy())
		return
	}
	if !a.bridge.Frame() {
		a.text.draw(screen, "Press Play to start the visualizer", inner.Min.X+8, inner.Min.Y+8)
		return
	}
	a.vizImg.WritePixels(a.canvas.Pix)
	op := &ebiten.DrawImageOptions{}
	op.GeoM.Translate(float64(inner.Min.X), float64(inner.Min.Y))
	screen.DrawImage(a.vizImg, op)
}

func (a *app) drawSeek(screen *ebiten.Image, r image.Rectangle) {
	panel(screen, r, wellColor, sunken)
	dur := math.Float64frombits(a.duration.Load())
	if dur <= 0 {
		return
	}
	frac := math.Float64frombits(a.position.Load()) / dur
	if a.drag == dragSeek {
		x, _ := ebiten.CursorPosition()
		frac = sliderFrac(x, r.Min.X, r.Max.X)
	}
	frac = clamp(frac, 0, 1)
	inner := r.Inset(2)
	fillRect(screen, image.Rect(inner.Min.X, inner.Min.Y, inner.Min.X+int(float64(inner.Dx())*frac), inner.Max.Y), accentColor)
	label := clock(frac*dur) + " / " + clock(dur)
	ebitenutil.DebugPrintAt(screen, label, r.Max.X-8-len(label)*glyphW, r.Min.Y+5)
}
