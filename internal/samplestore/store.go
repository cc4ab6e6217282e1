// Package samplestore decodes user-supplied samples and tracks their
// temporary resource handles.
package samplestore

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/cbegin/noteblock-go/internal/pitch"
	"github.com/cbegin/noteblock-go/internal/sampler"
)

// ErrNoSample is returned by ReloadAtPitch before any sample was loaded.
var ErrNoSample = errors.New("no sample loaded")

// Sample is a ready, decoded sample.
type Sample struct {
	HandleID  string
	Clip      *sampler.Clip
	BasePitch int
}

// Store holds at most one loaded sample. A failed load leaves the previous
// sample in place.
type Store struct {
	sampleRate int
	handles    *Handles
	logger     *log.Logger

	loadMu sync.Mutex // serializes Load and ReloadAtPitch

	mu      sync.RWMutex
	raw     []byte
	current *Sample
	handle  *Handle
}

// New creates an empty store decoding to sampleRate. A nil handles registry
// gets a private one.
func New(sampleRate int, handles *Handles, logger *log.Logger) *Store {
	if handles == nil {
		handles = NewHandles()
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Store{sampleRate: sampleRate, handles: handles, logger: logger}
}

func (s *Store) Handles() *Handles { return s.handles }

// Load decodes data with the given base pitch (a MIDI note number).
func (s *Store) Load(ctx context.Context, data []byte, basePitch int) error {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	clip, err := Decode(data, s.sampleRate)
	if err != nil {
		s.logger.Warn("sample decode failed", "bytes", len(data), "err", err)
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	raw := make([]byte, len(data))
	copy(raw, data)
	s.install(raw, clip, basePitch)
	return nil
}

// ReloadAtPitch re-decodes the retained bytes under a new base pitch.
func (s *Store) ReloadAtPitch(ctx context.Context, basePitch int) error {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	s.mu.RLock()
	raw := s.raw
	s.mu.RUnlock()
	if raw == nil {
		return ErrNoSample
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	clip, err := Decode(raw, s.sampleRate)
	if err != nil {
		return err
	}
	s.install(raw, clip, basePitch)
	return nil
}

func (s *Store) install(raw []byte, clip *sampler.Clip, basePitch int) {
	h := s.handles.Acquire()
	s.mu.Lock()
	prev := s.handle
	s.raw = raw
	s.handle = h
	s.current = &Sample{HandleID: h.ID(), Clip: clip, BasePitch: basePitch}
	s.mu.Unlock()
	prev.Release()
	s.logger.Debug("sample ready", "handle", h.ID(), "base", pitch.Name(basePitch), "seconds", clip.Seconds())
}

// Snapshot returns the current sample, or false if none is ready.
func (s *Store) Snapshot() (Sample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return Sample{}, false
	}
	return *s.current, true
}

func (s *Store) Ready() bool {
	_, ok := s.Snapshot()
	return ok
}

// Release drops the loaded sample and revokes its handle.
func (s *Store) Release() {
	s.mu.Lock()
	h := s.handle
	s.handle = nil
	s.current = nil
	s.raw = nil
	s.mu.Unlock()
	h.Release()
}
