package sampler

import (
	"math"
	"testing"
)

func constClip(frames int, v float32) *Clip {
	c := &Clip{SampleRate: 48000, Data: make([]float32, frames*2)}
	for i := range c.Data {
		c.Data[i] = v
	}
	return c
}

func energy(buf []float32) float64 {
	var e float64
	for _, s := range buf {
		e += math.Abs(float64(s))
	}
	return e
}

func TestTriggerProducesAudio(t *testing.T) {
	in := NewInstance(Key{Source: "test", BasePitch: 66}, constClip(4800, 0.5), 48000)
	if id := in.Trigger(66, 1, 2400); id < 0 {
		t.Fatalf("trigger returned %d", id)
	}
	buf := make([]float32, 1024*2)
	in.Render(buf)
	if energy(buf) == 0 {
		t.Fatalf("expected non-zero output")
	}
	if in.ActiveVoices() != 1 {
		t.Fatalf("active voices = %d, want 1", in.ActiveVoices())
	}
}

func TestVoiceEndsAfterHoldAndRelease(t *testing.T) {
	in := NewInstance(Key{Source: "test", BasePitch: 60}, constClip(48000, 0.5), 48000)
	in.Trigger(60, 1, 480)
	// hold 10ms + release 100ms
	buf := make([]float32, 48000/4*2)
	in.Render(buf)
	if n := in.ActiveVoices(); n != 0 {
		t.Fatalf("voice should have finished, %d active", n)
	}
}

func TestOctaveUpPlaysTwiceAsFast(t *testing.T) {
	in := NewInstance(Key{Source: "test", BasePitch: 60}, constClip(1000, 0.5), 48000)
	in.Trigger(72, 1, 1<<20)
	buf := make([]float32, 600*2)
	in.Render(buf)
	if n := in.ActiveVoices(); n != 0 {
		t.Fatalf("1000-frame clip an octave up should end within 600 frames, %d active", n)
	}
}

func TestDisposeIgnoresTriggers(t *testing.T) {
	in := NewInstance(Key{Source: "test", BasePitch: 60}, constClip(4800, 0.5), 48000)
	in.Trigger(60, 1, 100)
	in.Dispose()
	if !in.Disposed() {
		t.Fatalf("expected disposed")
	}
	if id := in.Trigger(60, 1, 100); id != -1 {
		t.Fatalf("trigger after dispose = %d, want -1", id)
	}
	buf := make([]float32, 256)
	in.Render(buf)
	if energy(buf) != 0 {
		t.Fatalf("disposed instance must be silent")
	}
}

func TestForkSharesClipNotVoices(t *testing.T) {
	in := NewInstance(Key{Source: "test", BasePitch: 60}, constClip(4800, 0.5), 48000)
	in.Trigger(60, 1, 4800)
	f := in.Fork()
	if f.Clip() != in.Clip() {
		t.Fatalf("fork should share the clip")
	}
	if f.ActiveVoices() != 0 {
		t.Fatalf("fork should start silent")
	}
}

func TestVoiceStealingKeepsPolyphonyBounded(t *testing.T) {
	params := DefaultParams()
	params.Polyphony = 4
	in := NewInstanceWithParams(Key{Source: "test", BasePitch: 60}, constClip(4800, 0.1), 48000, params)
	for i := 0; i < 10; i++ {
		in.Trigger(60+i, 1, 4800)
	}
	if n := in.ActiveVoices(); n != 4 {
		t.Fatalf("active voices = %d, want 4", n)
	}
}
