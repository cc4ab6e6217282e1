package noteblock

import (
	"context"
	"io/fs"
	"time"

	"github.com/charmbracelet/log"

	"github.com/cbegin/noteblock-go/internal/engine"
	"github.com/cbegin/noteblock-go/internal/instrument"
	"github.com/cbegin/noteblock-go/internal/wavfile"
)

// DefaultSampleRate is used by Render when the request leaves it unset.
const DefaultSampleRate = 44100

// RenderRequest describes a one-shot offline render.
type RenderRequest struct {
	MIDI        []byte
	Sample      []byte // optional global sample
	BasePitch   string // base of Sample, default pitch.DefaultBase
	Assignments []instrument.Assignment
	Project     string
	SampleRate  int
	Format      wavfile.Format
	Reverb      float64
	Margin      time.Duration // trailing capture, default 1s
	Assets      fs.FS
	Logger      *log.Logger
}

// Render loads a score, applies the requested assignments and exports it
// without opening an audio device.
func Render(ctx context.Context, req RenderRequest) (engine.Recording, error) {
	rate := req.SampleRate
	if rate <= 0 {
		rate = DefaultSampleRate
	}
	p, err := NewPlayer(rate,
		WithLogger(req.Logger),
		WithAssetFS(req.Assets),
		WithProjectName(req.Project),
		WithExportFormat(req.Format),
		WithExportMargin(req.Margin),
	)
	if err != nil {
		return engine.Recording{}, err
	}
	defer p.Close()

	if len(req.Sample) > 0 {
		if err := p.LoadSample(ctx, req.Sample, req.BasePitch); err != nil {
			return engine.Recording{}, err
		}
	}
	if _, err := p.LoadMIDI(ctx, req.MIDI); err != nil {
		return engine.Recording{}, err
	}
	if req.Assignments != nil {
		if err := p.ApplyAssignments(ctx, req.Assignments); err != nil {
			return engine.Recording{}, err
		}
	}
	p.SetReverb(req.Reverb)
	return p.Export(ctx)
}
