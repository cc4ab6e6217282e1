// Command noteblock_ui is a desktop player: browse for a MIDI file and an
// optional instrument sample, assign instruments per track, watch the
// spectrum and export the mix to WAV.
package main

import (
	"context"
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/joho/godotenv"

	"github.com/cbegin/noteblock-go"
	"github.com/cbegin/noteblock-go/internal/config"
	"github.com/cbegin/noteblock-go/internal/engine"
	"github.com/cbegin/noteblock-go/internal/instrument"
	"github.com/cbegin/noteblock-go/internal/pitch"
	"github.com/cbegin/noteblock-go/internal/visualizer"
	"github.com/cbegin/noteblock-go/internal/wavfile"
)

const (
	startW, startH = 1100, 720
	minW, minH     = 980, 680
	flashFrames    = 8
)

type drag int

const (
	dragNone drag = iota
	dragVolume
	dragSeek
	dragEQ
)

type app struct {
	logger *log.Logger
	player *noteblock.Player
	events <-chan engine.Event
	bridge *visualizer.Bridge
	canvas *image.RGBA
	vizImg *ebiten.Image
	text   *textCache
	files  browser

	// written by the position listener goroutine
	position atomic.Uint64
	duration atomic.Uint64

	preset  int
	base    int
	volume  float64
	eq      [5]float64
	drag    drag
	eqBand  int
	tracks  int // first visible track row
	flashed map[int]int

	midiPath   string
	samplePath string

	status    string
	failed    bool
	exporting atomic.Bool
	exported  chan error
	lastFile  string

	frame int
	w, h  int
}

func newApp(cfg *config.Config, logger *log.Logger, initial string) (*app, error) {
	a := &app{
		logger:   logger,
		volume:   1,
		eq:       [5]float64{1, 1, 1, 1, 1},
		flashed:  map[int]int{},
		exported: make(chan error, 1),
		text:     newTextCache(),
		status:   "Ready",
		w:        startW,
		h:        startH,
	}
	a.base = max(0, slicesIndex(pitch.BaseNotes(), pitch.DefaultBase))

	format, err := wavfile.ParseFormat(cfg.ExportFormat)
	if err != nil {
		return nil, err
	}
	opts := []noteblock.PlayerOption{
		noteblock.WithLoopPlayback(false),
		noteblock.WithLogger(logger),
		noteblock.WithProjectName(cfg.ProjectName),
		noteblock.WithExportFormat(format),
		noteblock.WithExportMargin(cfg.ExportMargin),
		noteblock.WithPositionListener(func(pos, dur float64) {
			a.position.Store(math.Float64bits(pos))
			a.duration.Store(math.Float64bits(dur))
		}),
	}
	if cfg.AssetDir != "" {
		opts = append(opts, noteblock.WithAssetFS(os.DirFS(cfg.AssetDir)))
	}
	pl, err := noteblock.NewPlayer(cfg.SampleRate, opts...)
	if err != nil {
		return nil, err
	}
	a.player = pl
	a.events = pl.Watch()
	a.bridge = visualizer.NewBridge(cfg.SampleRate, visualizer.Presets()[0].Options, visualizer.WithLogger(logger))

	dir, err := os.Getwd()
	if err != nil {
		a.close()
		return nil, err
	}
	if initial != "" {
		dir = filepath.Dir(initial)
		a.open(initial)
	}
	if err := a.files.chdir(dir); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func slicesIndex(list []string, v string) int {
	for i, s := range list {
		if s == v {
			return i
		}
	}
	return -1
}

func (a *app) Update() error {
	a.frame++
	a.drainEvents()
	// Attach is a no-op until Play has created the audio graph.
	if a.canvas != nil && !a.bridge.Attached() {
		a.bridge.Attach(a.canvas, a.player.Output())
	}
	select {
	case err := <-a.exported:
		if err != nil {
			a.fail(err)
		} else {
			a.info(fmt.Sprintf("Exported %s", a.lastFile))
		}
	default:
	}
	a.keyboard()
	a.mouse()
	return nil
}

func (a *app) Layout(outsideW, outsideH int) (int, int) {
	a.w, a.h = max(outsideW, minW), max(outsideH, minH)
	return a.w, a.h
}

func (a *app) close() {
	a.bridge.Detach()
	if err := a.player.Close(); err != nil {
		a.logger.Error("close player", "err", err)
	}
}

func (a *app) drainEvents() {
	for {
		select {
		case ev, ok := <-a.events:
			if !ok {
				return
			}
			switch ev.Kind {
			case engine.EventNote:
				a.flashed[ev.TrackIndex] = a.frame
			case engine.EventLoopCompleted:
				a.info("Looped")
			case engine.EventPlaybackEnded:
				if !a.failed {
					a.info("Finished")
				}
			}
		default:
			return
		}
	}
}

func (a *app) keyboard() {
	switch {
	case inpututil.IsKeyJustPressed(ebiten.KeySpace):
		a.playPause()
	case inpututil.IsKeyJustPressed(ebiten.KeyL):
		a.player.ToggleLoop()
	case inpututil.IsKeyJustPressed(ebiten.KeyV):
		a.nextPreset()
	case inpututil.IsKeyJustPressed(ebiten.KeyHome):
		a.player.Seek(0)
	case inpututil.IsKeyJustPressed(ebiten.KeyE):
		a.export()
	}
}

func (a *app) mouse() {
	x, y := ebiten.CursorPosition()
	l := a.layout()

	if inpututil.IsMouseButtonJustPressed(ebiten.MouseButtonLeft) {
		a.press(x, y, l)
	}
	if inpututil.IsMouseButtonJustReleased(ebiten.MouseButtonLeft) && a.drag == dragSeek {
		a.seekTo(sliderFrac(x, l.seek.Min.X, l.seek.Max.X))
	}
	if !ebiten.IsMouseButtonPressed(ebiten.MouseButtonLeft) {
		a.drag = dragNone
	}
	switch a.drag {
	case dragVolume:
		a.volume = sliderFrac(x, l.volumeGroove().Min.X, l.volumeGroove().Max.X)
		a.player.SetMasterVolume(a.volume)
	case dragEQ:
		a.setEQ(a.eqBand, (1-sliderFrac(y, l.eq.Min.Y+4, l.eq.Max.Y-8))*2)
	}

	if _, wy := ebiten.Wheel(); wy != 0 {
		step := -int(wy * 2)
		switch {
		case contains(l.files, x, y):
			a.files.scrollBy(step)
		case contains(l.tracks, x, y):
			a.tracks = max(0, a.tracks+step)
		}
	}
}

func (a *app) press(x, y int, l layout) {
	switch {
	case contains(l.play, x, y):
		a.playPause()
	case contains(l.loop, x, y):
		a.player.ToggleLoop()
	case contains(l.preset, x, y):
		a.nextPreset()
	case contains(l.base, x, y):
		a.nextBase(ebiten.IsKeyPressed(ebiten.KeyShift))
	case contains(l.export, x, y):
		a.export()
	case contains(l.volume, x, y):
		a.drag = dragVolume
	case contains(l.seek, x, y):
		a.drag = dragSeek
	case contains(l.eq, x, y):
		if b := (x - l.eq.Min.X - 8) / max(1, (l.eq.Dx()-16)/5); b >= 0 && b < 5 {
			a.drag, a.eqBand = dragEQ, b
		}
	case contains(l.files, x, y):
		a.clickFile((y - l.fileRowsTop()) / lineH)
	case contains(l.tracks, x, y):
		a.clickTrack(x-l.tracks.Min.X, (y-l.trackRowsTop())/lineH)
	}
}

func (a *app) clickFile(row int) {
	e, ok := a.files.at(row)
	if !ok {
		return
	}
	if !e.dir {
		a.open(e.path)
		return
	}
	if err := a.files.chdir(e.path); err != nil {
		a.fail(err)
		return
	}
	a.info("Directory " + e.path)
}

// open loads a MIDI score or, for audio files, the global sample.
func (a *app) open(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		a.fail(err)
		return
	}
	ctx := context.Background()
	if isMIDI(path) {
		sc, err := a.player.LoadMIDI(ctx, data)
		if err != nil {
			a.fail(err)
			return
		}
		a.midiPath, a.tracks = path, 0
		clear(a.flashed)
		if a.player.SampleLoaded() {
			a.assignAll(instrument.GlobalSampleID)
		}
		a.info(fmt.Sprintf("%s: %d tracks, %.1fs", filepath.Base(path), len(sc.Tracks), sc.Duration))
		return
	}
	note := pitch.BaseNotes()[a.base]
	if err := a.player.LoadSample(ctx, data, note); err != nil {
		a.fail(err)
		return
	}
	a.samplePath = path
	a.assignAll(instrument.GlobalSampleID)
	a.info(fmt.Sprintf("Sample %s at %s", filepath.Base(path), note))
}

func (a *app) assignAll(id string) {
	list := a.player.Assignments()
	if len(list) == 0 {
		return
	}
	for i := range list {
		list[i].InstrumentID = id
	}
	if err := a.player.ApplyAssignments(context.Background(), list); err != nil {
		a.fail(err)
	}
}

// Track row columns, in pixels from the panel edge.
const (
	colFlash = 8
	colInst  = 24
	colDown  = colInst + 150
	colUp    = colDown + 34
	colMute  = colUp + 34
	colName  = colMute + 60
)

func (a *app) clickTrack(x, row int) {
	list := a.player.Assignments()
	i := a.tracks + row
	if row < 0 || i >= len(list) {
		return
	}
	cur := list[i]
	var p instrument.Patch
	switch {
	case x >= colInst && x < colDown:
		id := nextInstrument(cur.InstrumentID, a.player.SampleLoaded())
		p.InstrumentID = &id
	case x >= colDown && x < colUp:
		v := cur.PitchOffset - 1
		p.PitchOffset = &v
	case x >= colUp && x < colMute:
		v := cur.PitchOffset + 1
		p.PitchOffset = &v
	case x >= colMute && x < colName:
		v := !cur.Muted
		p.Muted = &v
	default:
		return
	}
	if err := a.player.PatchTrack(context.Background(), cur.TrackIndex, p); err != nil {
		a.fail(err)
		return
	}
	for _, u := range a.player.Unresolved() {
		if u.TrackIndex == cur.TrackIndex {
			a.fail(fmt.Errorf("track %d is silent: %s", u.TrackIndex, u.Reason))
			return
		}
	}
	a.info(fmt.Sprintf("Track %d updated", cur.TrackIndex))
}

func nextInstrument(current string, withGlobal bool) string {
	var ids []string
	if withGlobal {
		ids = append(ids, instrument.GlobalSampleID)
	}
	for _, p := range instrument.Presets() {
		ids = append(ids, p.ID)
	}
	i := slicesIndex(ids, current)
	return ids[(i+1)%len(ids)]
}

func (a *app) playPause() {
	if a.player.Score() == nil {
		a.fail(engine.ErrNoScore)
		return
	}
	if a.player.State() == engine.Playing {
		a.player.Pause()
		a.info("Paused")
		return
	}
	if err := a.player.Play(); err != nil {
		a.fail(err)
		return
	}
	a.info("Playing")
}

func (a *app) seekTo(frac float64) {
	if dur := a.player.Duration(); dur > 0 {
		a.info("Seek " + clock(a.player.Seek(frac*dur)))
	}
}

func (a *app) setEQ(band int, gain float64) {
	a.eq[band] = gain
	a.player.SetEQBand(band, float32(gain))
	a.info(fmt.Sprintf("EQ %s %.1f", eqLabels[band], gain))
}

func (a *app) nextPreset() {
	all := visualizer.Presets()
	a.preset = (a.preset + 1) % len(all)
	if err := a.bridge.ApplyPreset(all[a.preset].Name); err != nil {
		a.fail(err)
		return
	}
	a.info("Visualizer " + all[a.preset].Name)
}

func (a *app) nextBase(back bool) {
	notes := pitch.BaseNotes()
	step := 1
	if back {
		step = len(notes) - 1
	}
	a.base = (a.base + step) % len(notes)
	if !a.player.SampleLoaded() {
		a.info("Base pitch " + notes[a.base])
		return
	}
	if err := a.player.ReloadSample(context.Background(), notes[a.base]); err != nil {
		a.fail(err)
		return
	}
	a.info("Sample base pitch " + notes[a.base])
}

// export renders off the UI goroutine and reports on a.exported.
func (a *app) export() {
	if a.player.Score() == nil {
		a.fail(engine.ErrNoScore)
		return
	}
	if !a.exporting.CompareAndSwap(false, true) {
		return
	}
	a.info("Exporting...")
	dir := a.files.dir
	go func() {
		defer a.exporting.Store(false)
		rec, err := a.player.Export(context.Background())
		if err == nil {
			a.lastFile = filepath.Join(dir, rec.Name)
			err = os.WriteFile(a.lastFile, rec.Data, 0o644)
			a.logger.Info("exported", "file", a.lastFile, "seconds", rec.Seconds, "format", rec.Format)
		}
		a.exported <- err
	}()
}

func (a *app) info(msg string) { a.status, a.failed = msg, false }

func (a *app) fail(err error) {
	a.logger.Warn(err)
	a.status, a.failed = err.Error(), true
}

func clock(sec float64) string {
	s := int(math.Round(sec))
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := log.NewWithOptions(os.Stderr, log.Options{
		Level:           cfg.Level(),
		ReportTimestamp: true,
		Prefix:          "noteblock_ui",
	})

	var initial string
	if len(os.Args) > 1 {
		p, err := filepath.Abs(os.Args[1])
		if err != nil {
			logger.Fatal("resolve path", "arg", os.Args[1], "err", err)
		}
		initial = p
	}
	a, err := newApp(cfg, logger, initial)
	if err != nil {
		logger.Fatal(err)
	}
	defer a.close()

	ebiten.SetWindowSize(startW, startH)
	ebiten.SetWindowSizeLimits(minW, minH, -1, -1)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetWindowTitle(noteblock.DefaultProjectName)
	if err := ebiten.RunGame(a); err != nil {
		a.close()
		logger.Fatal(err)
	}
}
