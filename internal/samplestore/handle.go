package samplestore

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Handle is a temporary resource reference to a decoded sample. It must be
// released explicitly; Release is idempotent.
type Handle struct {
	id       uuid.UUID
	reg      *Handles
	released atomic.Bool
}

func (h *Handle) ID() string { return h.id.String() }

func (h *Handle) Release() {
	if h == nil || h.released.Swap(true) {
		return
	}
	h.reg.drop(h.id)
}

func (h *Handle) Released() bool { return h.released.Load() }

// Handles tracks live sample handles.
type Handles struct {
	mu   sync.Mutex
	live map[uuid.UUID]struct{}
}

func NewHandles() *Handles {
	return &Handles{live: map[uuid.UUID]struct{}{}}
}

// Acquire issues a new handle.
func (r *Handles) Acquire() *Handle {
	h := &Handle{id: uuid.New(), reg: r}
	r.mu.Lock()
	r.live[h.id] = struct{}{}
	r.mu.Unlock()
	return h
}

// Live returns the number of unreleased handles.
func (r *Handles) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}

func (r *Handles) drop(id uuid.UUID) {
	r.mu.Lock()
	delete(r.live, id)
	r.mu.Unlock()
}
