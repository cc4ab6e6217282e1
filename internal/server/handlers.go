package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cbegin/noteblock-go"
	"github.com/cbegin/noteblock-go/internal/engine"
	"github.com/cbegin/noteblock-go/internal/instrument"
	"github.com/cbegin/noteblock-go/internal/pitch"
	"github.com/cbegin/noteblock-go/internal/samplestore"
	"github.com/cbegin/noteblock-go/internal/score"
	"github.com/cbegin/noteblock-go/internal/visualizer"
)

var (
	errMissingField = errors.New("missing form field")
	errTooLarge     = errors.New("upload too large")
	errBadRequest   = errors.New("bad request")
)

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"version": s.opts.Version,
	})
}

func (s *Server) instruments(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"instruments":      instrument.Presets(),
		"default":          instrument.DefaultInstrumentID,
		"defaultBasePitch": pitch.DefaultBase,
		"baseNotes":        pitch.BaseNotes(),
	})
}

func (s *Server) visualizerPresets(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"presets":   visualizer.Presets(),
		"gradients": visualizer.Gradients(),
	})
}

type trackJSON struct {
	Index   int    `json:"index"`
	Name    string `json:"name"`
	Channel int    `json:"channel"`
	Notes   int    `json:"notes"`
}

func (s *Server) inspectScore(c *gin.Context) {
	data, err := s.formFile(c, "midi")
	if err != nil {
		s.fail(c, err)
		return
	}
	sc, err := score.Parse(data)
	if err != nil {
		s.fail(c, err)
		return
	}
	tracks := make([]trackJSON, 0, len(sc.Tracks))
	for _, tr := range sc.Tracks {
		tracks = append(tracks, trackJSON{Index: tr.Index, Name: tr.Name, Channel: tr.Channel, Notes: tr.NoteCount()})
	}
	c.JSON(http.StatusOK, gin.H{
		"tempoBpm":     sc.TempoBPM,
		"duration":     sc.Duration,
		"notes":        sc.NoteCount(),
		"sourceTracks": sc.SourceTracks,
		"tracks":       tracks,
		"assignments":  instrument.DefaultAssignments(sc),
	})
}

func (s *Server) export(c *gin.Context) {
	if !s.exports.TryAcquire(1) {
		s.fail(c, engine.ErrConcurrentExport)
		return
	}
	defer s.exports.Release(1)

	req := noteblock.RenderRequest{
		SampleRate: s.opts.SampleRate,
		Format:     s.opts.Format,
		Assets:     s.opts.Assets,
		Logger:     s.logger,
		Margin:     s.opts.ExportMargin,
		Project:    c.PostForm("project"),
		BasePitch:  c.PostForm("base_pitch"),
	}
	var err error
	if req.MIDI, err = s.formFile(c, "midi"); err != nil {
		s.fail(c, err)
		return
	}
	if req.Sample, err = s.formFile(c, "sample"); err != nil && !errors.Is(err, errMissingField) {
		s.fail(c, err)
		return
	}
	if raw := c.PostForm("assignments"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.Assignments); err != nil {
			s.fail(c, fmt.Errorf("%w: assignments: %v", errBadRequest, err))
			return
		}
	}

	rec, err := s.render(c.Request.Context(), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", rec.Name))
	c.Header("X-Export-Seconds", fmt.Sprintf("%.3f", rec.Seconds))
	c.Data(http.StatusOK, "audio/wav", rec.Data)
}

func (s *Server) formFile(c *gin.Context, field string) ([]byte, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, fmt.Errorf("%w %q", errMissingField, field)
		}
		return nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if fh.Size > s.opts.MaxUpload {
		return nil, fmt.Errorf("%w: %s is %d bytes", errTooLarge, field, fh.Size)
	}
	return readPart(fh, s.opts.MaxUpload)
}

func readPart(fh *multipart.FileHeader, limit int64) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, limit))
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var (
		malformed *score.MalformedMidiError
		decode    *samplestore.DecodeError
		timeout   *engine.ExportTimeoutError
	)
	switch {
	case errors.Is(err, errMissingField), errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, errTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &malformed), errors.As(err, &decode),
		errors.Is(err, pitch.ErrInvalidName),
		errors.Is(err, instrument.ErrUnknownTrack),
		errors.Is(err, instrument.ErrDuplicateTrack),
		errors.Is(err, instrument.ErrMissingTrack):
		return http.StatusUnprocessableEntity
	case errors.Is(err, engine.ErrConcurrentExport), errors.Is(err, engine.ErrExportInProgress):
		return http.StatusConflict
	case errors.As(err, &timeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return 499
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(c *gin.Context, err error) {
	status := statusFor(err)
	_ = c.Error(err)
	if status >= http.StatusInternalServerError {
		captureError(c, err)
	}
	c.AbortWithStatusJSON(status, gin.H{
		"error":      err.Error(),
		"request_id": c.GetString(requestIDKey),
	})
}
