// Package server exposes score inspection and offline export over HTTP.
package server

import (
	"context"
	"io"
	"io/fs"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/semaphore"

	"github.com/cbegin/noteblock-go"
	"github.com/cbegin/noteblock-go/internal/engine"
	"github.com/cbegin/noteblock-go/internal/wavfile"
)

// Options configures the router.
type Options struct {
	Logger       *log.Logger
	Version      string
	SampleRate   int
	Assets       fs.FS
	Format       wavfile.Format
	MaxUpload    int64
	MaxExports   int64 // concurrent exports, further requests get 409
	Sentry       bool
	ExportMargin time.Duration
}

type Server struct {
	opts    Options
	logger  *log.Logger
	exports *semaphore.Weighted
	render  func(context.Context, noteblock.RenderRequest) (engine.Recording, error)
}

func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	if opts.SampleRate <= 0 {
		opts.SampleRate = noteblock.DefaultSampleRate
	}
	if opts.MaxUpload <= 0 {
		opts.MaxUpload = 32 << 20
	}
	if opts.MaxExports <= 0 {
		opts.MaxExports = 2
	}
	return &Server{
		opts:    opts,
		logger:  opts.Logger,
		exports: semaphore.NewWeighted(opts.MaxExports),
		render:  noteblock.Render,
	}
}

// Router builds the gin engine with middleware and routes.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.MaxMultipartMemory = s.opts.MaxUpload

	// Recovery must run first.
	router.Use(RecoverWithSentry(s.logger))
	if s.opts.Sentry {
		router.Use(SentryMiddleware())
	}
	router.Use(RequestTracking(s.logger))

	router.GET("/health", s.health)

	v1 := router.Group("/v1")
	{
		v1.GET("/instruments", s.instruments)
		v1.GET("/visualizer/presets", s.visualizerPresets)
		v1.POST("/score", s.inspectScore)
		v1.POST("/export", s.export)
	}
	return router
}
