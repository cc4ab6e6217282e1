package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"

	"github.com/cbegin/noteblock-go"
	"github.com/cbegin/noteblock-go/internal/config"
	"github.com/cbegin/noteblock-go/internal/engine"
	"github.com/cbegin/noteblock-go/internal/instrument"
	"github.com/cbegin/noteblock-go/internal/score"
	"github.com/cbegin/noteblock-go/internal/wavfile"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := log.NewWithOptions(os.Stderr, log.Options{
		Level:           cfg.Level(),
		ReportTimestamp: true,
		Prefix:          "play_noteblock",
	})

	var (
		sampleRate = flag.Int("sample-rate", cfg.SampleRate, "output sample rate")
		midiPath   = flag.String("file", "", "path to a MIDI file (default: a short built-in phrase)")
		samplePath = flag.String("sample", "", "path to a WAV/OGG/MP3 sample used as the global instrument")
		basePitch  = flag.String("base-pitch", "F#4", "note name the sample was recorded at")
		instr      = flag.String("instrument", "", "instrument id for every track (default: global sample if -sample, else harp)")
		loop       = flag.Bool("loop", false, "loop playback; use with -loops to count then stop")
		loops      = flag.Int("loops", 3, "when -loop, stop after N loops (0 = loop forever)")
		volume     = flag.Float64("volume", 1.0, "master volume scalar")
		reverb     = flag.Float64("reverb", 0, "master reverb wet level 0..1")
		exportPath = flag.String("export", "", "render to this WAV path (or directory) instead of playing")
		format     = flag.String("format", cfg.ExportFormat, "export format: pcm16|float32")
		project    = flag.String("project", cfg.ProjectName, "project name used for export file names")
		assets     = flag.String("assets", cfg.AssetDir, "asset directory containing instruments/<id>.ogg")
		list       = flag.Bool("list", false, "list instrument presets and exit")
	)
	flag.Parse()

	if *list {
		for _, p := range instrument.Presets() {
			fmt.Printf("%-10s %-14s %s\n", p.ID, p.DisplayName, p.BasePitch)
		}
		return
	}
	if err := run(logger, options{
		sampleRate: *sampleRate,
		midiPath:   *midiPath,
		samplePath: *samplePath,
		basePitch:  *basePitch,
		instrument: *instr,
		loop:       *loop,
		loops:      *loops,
		volume:     *volume,
		reverb:     *reverb,
		exportPath: *exportPath,
		format:     *format,
		project:    *project,
		assets:     *assets,
		margin:     cfg.ExportMargin,
	}); err != nil {
		logger.Fatal(err)
	}
}

type options struct {
	sampleRate int
	midiPath   string
	samplePath string
	basePitch  string
	instrument string
	loop       bool
	loops      int
	volume     float64
	reverb     float64
	exportPath string
	format     string
	project    string
	assets     string
	margin     time.Duration
}

func run(logger *log.Logger, o options) error {
	ctx := context.Background()
	midi, err := resolveMIDIInput(o.midiPath)
	if err != nil {
		return err
	}
	wavFormat, err := wavfile.ParseFormat(o.format)
	if err != nil {
		return err
	}
	playerOpts := []noteblock.PlayerOption{
		noteblock.WithLogger(logger),
		noteblock.WithLoopPlayback(o.loop),
		noteblock.WithProjectName(o.project),
		noteblock.WithExportFormat(wavFormat),
		noteblock.WithExportMargin(o.margin),
	}
	if o.assets != "" {
		playerOpts = append(playerOpts, noteblock.WithAssetFS(os.DirFS(o.assets)))
	}
	pl, err := noteblock.NewPlayer(o.sampleRate, playerOpts...)
	if err != nil {
		return err
	}
	defer pl.Close()
	pl.SetMasterVolume(o.volume)
	pl.SetReverb(o.reverb)

	if o.samplePath != "" {
		data, err := os.ReadFile(o.samplePath)
		if err != nil {
			return err
		}
		if err := pl.LoadSample(ctx, data, o.basePitch); err != nil {
			return fmt.Errorf("load sample %s: %w", o.samplePath, err)
		}
	}
	sc, err := pl.LoadMIDI(ctx, midi)
	if err != nil {
		return err
	}
	id := o.instrument
	if id == "" && o.samplePath != "" {
		id = instrument.GlobalSampleID
	}
	if id != "" {
		list := pl.Assignments()
		for i := range list {
			list[i].InstrumentID = id
		}
		if err := pl.ApplyAssignments(ctx, list); err != nil {
			return err
		}
	}
	for _, tr := range sc.Tracks {
		logger.Info("track", "index", tr.Index, "name", tr.Name, "notes", tr.NoteCount())
	}
	for _, u := range pl.Unresolved() {
		logger.Warn("track silent", "index", u.TrackIndex, "instrument", u.InstrumentID, "reason", u.Reason)
	}

	if o.exportPath != "" {
		return export(ctx, pl, o.exportPath)
	}
	return play(pl, o)
}

func export(ctx context.Context, pl *noteblock.Player, path string) error {
	rec, err := pl.Export(ctx)
	if err != nil {
		return err
	}
	if st, err := os.Stat(path); (err == nil && st.IsDir()) || strings.HasSuffix(path, string(os.PathSeparator)) {
		path = filepath.Join(path, rec.Name)
	}
	if err := os.WriteFile(path, rec.Data, 0o644); err != nil {
		return err
	}
	fmt.Printf("wrote %s (%.2fs, %s)\n", path, rec.Seconds, rec.Format)
	return nil
}

func play(pl *noteblock.Player, o options) error {
	ch := pl.Watch()
	if err := pl.Play(); err != nil {
		return err
	}
	// The transport is polled as well so a missed event cannot hang the CLI.
	poll := time.NewTicker(250 * time.Millisecond)
	defer poll.Stop()
	loopCount := 0
	for {
		select {
		case event, ok := <-ch:
			if !ok {
				return errors.New("event channel closed")
			}
			switch event.Kind {
			case engine.EventPlaybackEnded:
				return finished()
			case engine.EventLoopCompleted:
				loopCount++
				fmt.Printf("loop %d completed\n", loopCount)
				if o.loop && o.loops > 0 && loopCount >= o.loops {
					pl.Stop()
					return nil
				}
			}
		case <-poll.C:
			if pl.State() != engine.Playing {
				return finished()
			}
		}
	}
}

func finished() error {
	fmt.Println("playback completed")
	// Let release tails drain before closing the device.
	time.Sleep(300 * time.Millisecond)
	return nil
}

func resolveMIDIInput(path string) ([]byte, error) {
	if strings.TrimSpace(path) != "" {
		return os.ReadFile(path)
	}
	return score.Encode(score.Sheet{
		Tempos: []score.SheetTempo{{Beat: 0, BPM: 132}},
		Tracks: []score.SheetTrack{
			{Name: "Melody", Notes: demoNotes([]uint8{64, 67, 71, 74, 77, 81}, 0, 0.5)},
			{Name: "Bass", Notes: demoNotes([]uint8{40, 43, 47}, 1, 1)},
		},
	})
}

func demoNotes(keys []uint8, channel uint8, beats float64) []score.SheetNote {
	out := make([]score.SheetNote, 0, len(keys))
	for i, k := range keys {
		out = append(out, score.SheetNote{Key: k, Beat: float64(i) * beats, Beats: beats, Channel: channel})
	}
	return out
}
