package main

import (
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/cbegin/noteblock-go/internal/config"
	"github.com/cbegin/noteblock-go/internal/server"
	"github.com/cbegin/noteblock-go/internal/wavfile"
)

const sentryFlushTimeout = 2 * time.Second

// releaseVersion is set via ldflags during build.
var releaseVersion = "dev"

func main() {
	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true, Prefix: "noteblock_server"})
	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file found, using environment variables")
	}
	cfg := config.Load()
	logger.SetLevel(cfg.Level())
	if cfg.IsProduction() {
		logger.SetFormatter(log.JSONFormatter)
		gin.SetMode(gin.ReleaseMode)
	}

	sentryOn := false
	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.SentryDSN,
			Environment: cfg.Environment,
			Release:     "noteblock-server@" + releaseVersion,
			Debug:       !cfg.IsProduction(),
		}); err != nil {
			logger.Error("failed to initialize sentry", "err", err)
		} else {
			sentryOn = true
			logger.Info("sentry initialized", "environment", cfg.Environment, "release", releaseVersion)
			defer sentry.Flush(sentryFlushTimeout)
		}
	}

	format, err := wavfile.ParseFormat(cfg.ExportFormat)
	if err != nil {
		logger.Fatal("bad NOTEBLOCK_EXPORT_FORMAT", "err", err)
	}
	opts := server.Options{
		Logger:       logger,
		Version:      releaseVersion,
		SampleRate:   cfg.SampleRate,
		Format:       format,
		MaxUpload:    cfg.MaxUpload,
		Sentry:       sentryOn,
		ExportMargin: cfg.ExportMargin,
	}
	if cfg.AssetDir != "" {
		opts.Assets = os.DirFS(cfg.AssetDir)
	}
	router := server.New(opts).Router()

	logger.Info("starting server", "port", cfg.Port, "sample_rate", cfg.SampleRate)
	if err := router.Run(":" + cfg.Port); err != nil {
		sentry.CaptureException(err)
		logger.Fatal("server stopped", "err", err)
	}
}
