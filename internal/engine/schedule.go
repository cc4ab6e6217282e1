package engine

import (
	"context"
	"fmt"
	"math"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/cbegin/noteblock-go/internal/instrument"
	"github.com/cbegin/noteblock-go/internal/pitch"
	"github.com/cbegin/noteblock-go/internal/sampler"
	"github.com/cbegin/noteblock-go/internal/score"
)

// Trigger is one compiled note.
type Trigger struct {
	Frame      int64
	HoldFrames int
	TrackIndex int
	NoteIndex  int
	Pitch      int
	Velocity   float64
	Key        sampler.Key
	// Clamped is set when the track's pitch offset pushed the note outside
	// 0..127 and Pitch was pinned to the nearest edge.
	Clamped    bool

	inst *sampler.Instance
}

// Unresolved records a track left silent because its sample is unavailable.
type Unresolved struct {
	TrackIndex   int
	InstrumentID string
	Reason       string
}

// Schedule is the compiled, frame-sorted trigger list of a score.
type Schedule struct {
	Triggers   []Trigger
	Unresolved []Unresolved
	keys       []sampler.Key
}

func (s *Schedule) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Triggers)
}

// ForTrack returns the triggers of one track in frame order.
func (s *Schedule) ForTrack(trackIndex int) []Trigger {
	var out []Trigger
	for _, tr := range s.Triggers {
		if tr.TrackIndex == trackIndex {
			out = append(out, tr)
		}
	}
	return out
}

// Samplers returns the number of distinct sampler keys in use.
func (s *Schedule) Samplers() int { return len(s.keys) }

// firstAtOrAfter returns the index of the first trigger at or after frame.
func (s *Schedule) firstAtOrAfter(frame int64) int {
	return sort.Search(len(s.Triggers), func(i int) bool { return s.Triggers[i].Frame >= frame })
}

// binding is a resolved sampler source for one track.
type binding struct {
	key  sampler.Key
	clip *sampler.Clip
}

// resolution is the outcome of resolving every assignment of a score.
type resolution struct {
	bindings   map[int]binding
	unresolved []Unresolved
}

// resolve finds the sampler source of every audible assignment. Preset
// samples load in parallel; a failed load leaves that track unresolved.
func (e *Engine) resolve(ctx context.Context, sc *score.Score, list []instrument.Assignment) (resolution, error) {
	res := resolution{bindings: map[int]binding{}}
	type pending struct {
		a      instrument.Assignment
		preset instrument.Preset
		clip   *sampler.Clip
		err    error
	}
	var presets []*pending

	for _, a := range list {
		tr, ok := sc.Track(a.TrackIndex)
		if a.Muted || !ok || tr.NoteCount() == 0 {
			continue
		}
		switch a.InstrumentID {
		case instrument.GlobalSampleID:
			smp, ready := e.globalSample()
			if !ready {
				res.unresolve(a, "global sample not loaded")
				continue
			}
			e.bind(&res, a, "global:"+smp.HandleID, smp.BasePitch, smp.Clip)
		case instrument.CustomSampleID:
			if a.CustomSampleRef == "" {
				res.unresolve(a, "custom sample not provided")
				continue
			}
			e.mu.Lock()
			cs, ok := e.custom[a.CustomSampleRef]
			e.mu.Unlock()
			if !ok {
				res.unresolve(a, "custom sample not registered")
				continue
			}
			e.bind(&res, a, "custom:"+a.CustomSampleRef, cs.basePitch, cs.clip)
		default:
			p, ok := instrument.PresetByID(a.InstrumentID)
			if !ok {
				res.unresolve(a, "unknown instrument")
				continue
			}
			presets = append(presets, &pending{a: a, preset: p})
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, p := range presets {
		g.Go(func() error {
			p.clip, p.err = e.library.Clip(gctx, p.preset.ID)
			if ctxErr := gctx.Err(); ctxErr != nil && p.err != nil {
				return ctxErr
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return resolution{}, err
	}
	for _, p := range presets {
		if p.err != nil {
			res.unresolve(p.a, fmt.Sprintf("sample unavailable: %v", p.err))
			continue
		}
		e.bind(&res, p.a, "preset:"+p.preset.ID, p.preset.BaseNote(), p.clip)
	}
	return res, nil
}

func (e *Engine) bind(res *resolution, a instrument.Assignment, source string, base int, clip *sampler.Clip) {
	if a.BasePitchOverride != "" {
		n, err := pitch.Parse(a.BasePitchOverride)
		if err != nil {
			res.unresolve(a, err.Error())
			return
		}
		base = n
	}
	res.bindings[a.TrackIndex] = binding{key: sampler.Key{Source: source, BasePitch: base}, clip: clip}
}

func (r *resolution) unresolve(a instrument.Assignment, reason string) {
	r.unresolved = append(r.unresolved, Unresolved{TrackIndex: a.TrackIndex, InstrumentID: a.InstrumentID, Reason: reason})
}

// compile builds the schedule. acquire is called once per distinct key.
func compile(sc *score.Score, list []instrument.Assignment, res resolution, sampleRate int, acquire func(sampler.Key, *sampler.Clip) *sampler.Instance) *Schedule {
	s := &Schedule{Unresolved: res.unresolved}
	insts := map[sampler.Key]*sampler.Instance{}
	rate := float64(sampleRate)
	for _, a := range list {
		b, ok := res.bindings[a.TrackIndex]
		if !ok {
			continue
		}
		tr, _ := sc.Track(a.TrackIndex)
		inst, ok := insts[b.key]
		if !ok {
			inst = acquire(b.key, b.clip)
			insts[b.key] = inst
			s.keys = append(s.keys, b.key)
		}
		for i, n := range tr.Notes {
			vel := clamp(n.Velocity*float64(a.Volume)/100, 0, 1)
			hold := int(math.Round(n.Duration * rate))
			if hold < 1 {
				hold = 1
			}
			p := pitch.Transpose(n.Pitch, a.PitchOffset)
			s.Triggers = append(s.Triggers, Trigger{
				Frame:      int64(math.Round(n.Start * rate)),
				HoldFrames: hold,
				TrackIndex: a.TrackIndex,
				NoteIndex:  i,
				Pitch:      p,
				Velocity:   vel,
				Key:        b.key,
				Clamped:    p != n.Pitch+a.PitchOffset,
				inst:       inst,
			})
		}
	}
	sort.SliceStable(s.Triggers, func(i, j int) bool { return s.Triggers[i].Frame < s.Triggers[j].Frame })
	return s
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
