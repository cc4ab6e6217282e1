package engine

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNoScore          = errors.New("no score loaded")
	ErrConcurrentExport = errors.New("an export is already in progress")
	ErrExportInProgress = errors.New("playback is unavailable while exporting")
	ErrClosed           = errors.New("engine closed")
	ErrUnknownSample    = errors.New("unknown custom sample")
)

// ExportTimeoutError reports an export whose render did not finish within Limit.
type ExportTimeoutError struct {
	Limit time.Duration
}

func (e *ExportTimeoutError) Error() string {
	return fmt.Sprintf("export did not finish within %s", e.Limit)
}
