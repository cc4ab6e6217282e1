package engine

import (
	"context"
	"time"

	"github.com/cbegin/noteblock-go/internal/effects"
	"github.com/cbegin/noteblock-go/internal/sampler"
	"github.com/cbegin/noteblock-go/internal/wavfile"
)

const exportBlockFrames = 1024

// Recording is an exported rendering of the whole score.
type Recording struct {
	Name       string
	Format     wavfile.Format
	SampleRate int
	Seconds    float64
	Data       []byte
}

// Export renders the schedule from 0 to the score duration plus the trailing
// margin and encodes it as WAV. Live playback is paused for the duration and
// the previous position and run state are restored afterwards, on success or
// failure. Only one export may run at a time.
func (e *Engine) Export(ctx context.Context, project string) (Recording, error) {
	if !e.exporting.CompareAndSwap(false, true) {
		return Recording{}, ErrConcurrentExport
	}
	defer e.exporting.Store(false)
	e.rebuildMu.Lock()
	defer e.rebuildMu.Unlock()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return Recording{}, ErrClosed
	}
	if e.score == nil || e.schedule == nil {
		e.mu.Unlock()
		return Recording{}, ErrNoScore
	}
	savedState := e.transport.state
	savedPos := e.transport.position
	if e.transport.Running() {
		e.transport.Pause()
		e.cache.silence()
	}
	job := e.newExportJobLocked()
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		if !e.closed {
			e.transport.Seek(savedPos)
			e.transport.state = savedState
			if e.schedule != nil {
				e.cursor = e.schedule.firstAtOrAfter(savedPos)
			}
		}
		e.mu.Unlock()
	}()

	limit := time.Duration(job.scoreSeconds*float64(time.Second)) + e.margin + e.grace
	e.logger.Info("export started", "seconds", job.seconds, "triggers", len(job.triggers))

	done := make(chan []float32, 1)
	stop := make(chan struct{})
	defer close(stop)
	go func() { done <- job.render(stop) }()

	timer := time.NewTimer(limit)
	defer timer.Stop()
	var pcm []float32
	select {
	case pcm = <-done:
	case <-timer.C:
		e.logger.Error("export timed out", "limit", limit)
		return Recording{}, &ExportTimeoutError{Limit: limit}
	case <-ctx.Done():
		return Recording{}, ctx.Err()
	}

	rec := Recording{
		Name:       wavfile.FileName(project),
		Format:     e.format,
		SampleRate: e.sampleRate,
		Seconds:    job.seconds,
		Data:       wavfile.Encode(pcm, e.sampleRate, 2, e.format),
	}
	e.logger.Info("export finished", "name", rec.Name, "bytes", len(rec.Data))
	return rec, nil
}

// IsExporting reports whether an export is running.
func (e *Engine) IsExporting() bool { return e.exporting.Load() }

// exportJob renders a snapshot of the schedule on forked samplers so live
// instances are never touched.
type exportJob struct {
	triggers     []Trigger
	forks        []*sampler.Instance
	master       *effects.Master
	frames       int64
	seconds      float64
	scoreSeconds float64
	hook         func()
}

func (e *Engine) newExportJobLocked() *exportJob {
	forks := map[*sampler.Instance]*sampler.Instance{}
	job := &exportJob{master: e.master.Clone(), hook: e.exportBlockHook}
	job.triggers = make([]Trigger, len(e.schedule.Triggers))
	for i, tr := range e.schedule.Triggers {
		f, ok := forks[tr.inst]
		if !ok {
			f = tr.inst.Fork()
			forks[tr.inst] = f
			job.forks = append(job.forks, f)
		}
		tr.inst = f
		job.triggers[i] = tr
	}
	job.scoreSeconds = e.score.Duration
	job.seconds = e.score.Duration + e.margin.Seconds()
	job.frames = e.transport.Frames(job.seconds)
	return job
}

// render returns nil if stop closes first.
func (j *exportJob) render(stop <-chan struct{}) []float32 {
	defer func() {
		for _, f := range j.forks {
			f.Dispose()
		}
	}()
	out := make([]float32, j.frames*2)
	cursor := 0
	for pos := int64(0); pos < j.frames; {
		select {
		case <-stop:
			return nil
		default:
		}
		if j.hook != nil {
			j.hook()
		}
		end := min(pos+exportBlockFrames, j.frames)
		for pos < end {
			for cursor < len(j.triggers) && j.triggers[cursor].Frame <= pos {
				tr := j.triggers[cursor]
				tr.inst.Trigger(tr.Pitch, tr.Velocity, tr.HoldFrames)
				cursor++
			}
			n := end - pos
			if cursor < len(j.triggers) {
				if d := j.triggers[cursor].Frame - pos; d < n {
					n = d
				}
			}
			seg := out[pos*2 : (pos+n)*2]
			for _, f := range j.forks {
				f.Render(seg)
			}
			pos += n
		}
	}
	j.master.Process(out)
	return out
}
