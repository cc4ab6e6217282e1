// Package config reads process configuration from the environment.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
)

// Config holds settings shared by the commands. Flags override it.
type Config struct {
	Environment string
	Port        string
	SentryDSN   string
	LogLevel    string

	SampleRate   int
	AssetDir     string // directory holding instruments/<id>.ogg
	ProjectName  string
	ExportMargin time.Duration
	ExportFormat string // "pcm16" or "float32"
	MaxUpload    int64  // bytes per request
}

func Load() *Config {
	return &Config{
		Environment:  getEnv("ENVIRONMENT", "development"),
		Port:         getEnv("PORT", "8080"),
		SentryDSN:    getEnv("SENTRY_DSN", ""),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		SampleRate:   getEnvInt("NOTEBLOCK_SAMPLE_RATE", 44100),
		AssetDir:     getEnv("NOTEBLOCK_ASSET_DIR", ""),
		ProjectName:  getEnv("NOTEBLOCK_PROJECT", "noteblock"),
		ExportMargin: getEnvDuration("NOTEBLOCK_EXPORT_MARGIN", time.Second),
		ExportFormat: getEnv("NOTEBLOCK_EXPORT_FORMAT", "pcm16"),
		MaxUpload:    int64(getEnvInt("NOTEBLOCK_MAX_UPLOAD_MB", 32)) << 20,
	}
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Level maps LogLevel onto a charmbracelet level, defaulting to info.
func (c *Config) Level() log.Level {
	lvl, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return defaultValue
	}
	return v
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil || d < 0 {
		return defaultValue
	}
	return d
}
