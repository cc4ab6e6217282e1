package effects

import (
	"math"
	"testing"
)

func TestReverbProducesTail(t *testing.T) {
	r := NewReverb(44100, 0.5, 0.7, 0.5)
	r.Process(1.0, 1.0)
	var maxL, maxR float32
	for i := 0; i < 10000; i++ {
		l, rr := r.Process(0, 0)
		maxL = max(maxL, abs32(l))
		maxR = max(maxR, abs32(rr))
	}
	if maxL < 0.001 || maxR < 0.001 {
		t.Errorf("expected reverb tail on both channels, got %f %f", maxL, maxR)
	}
	r.Reset()
	if l, rr := r.Process(0, 0); l != 0 || rr != 0 {
		t.Errorf("reset reverb should be silent, got %f %f", l, rr)
	}
}

func TestReverbDryWhenWetZero(t *testing.T) {
	r := NewReverb(44100, 0.5, 0.7, 0)
	if l, rr := r.Process(0.3, -0.2); l != 0.3 || rr != -0.2 {
		t.Fatalf("dry reverb altered signal: %f %f", l, rr)
	}
}

func TestLimiterReducesLoud(t *testing.T) {
	lm := NewLimiter(44100, -10, 4, 1, 50)
	var l, r float32
	for i := 0; i < 1000; i++ {
		l, r = lm.Process(1.0, 0.2)
	}
	if l >= 1.0 {
		t.Errorf("limiter should reduce loud signals, got %f", l)
	}
	// Linked detector: both channels get the same gain.
	if math.Abs(float64(r/l)-0.2) > 1e-4 {
		t.Errorf("channel ratio changed: l=%f r=%f", l, r)
	}
}

func TestLimiterPassesQuiet(t *testing.T) {
	lm := NewLimiter(44100, -3, 20, 1, 80)
	for i := 0; i < 100; i++ {
		if l, _ := lm.Process(0.1, 0.1); l != 0.1 {
			t.Fatalf("quiet signal changed at %d: %f", i, l)
		}
	}
}

func TestEqualizerUnityPassesSignal(t *testing.T) {
	eq := NewEqualizer(44100)
	if !eq.Flat() {
		t.Fatal("new equalizer should be flat")
	}
	for i := 0; i < 1000; i++ {
		eq.Process(0.5, 0.5)
	}
	l, r := eq.Process(0.5, 0.5)
	if math.Abs(float64(l)-0.5) > 0.01 || math.Abs(float64(r)-0.5) > 0.01 {
		t.Errorf("expected ~0.5 at unity, got l=%f r=%f", l, r)
	}
}

func TestEqualizerGainBounds(t *testing.T) {
	eq := NewEqualizer(44100)
	eq.SetGain(0, 0)
	eq.SetGain(1, 10)
	eq.SetGain(2, -1)
	eq.SetGain(7, 0)
	eq.SetGain(3, float32(math.NaN()))
	tests := []struct {
		band int
		want float32
	}{
		{0, 0}, {1, MaxBandGain}, {2, 0}, {3, 1}, {7, 1}, {-1, 1},
	}
	for _, tt := range tests {
		if got := eq.Gain(tt.band); got != tt.want {
			t.Errorf("Gain(%d) = %v, want %v", tt.band, got, tt.want)
		}
	}
	if eq.Flat() {
		t.Error("equalizer with cut bands reported flat")
	}
}

func TestEqualizerLowCutRemovesDC(t *testing.T) {
	eq := NewEqualizer(44100)
	eq.SetGain(0, 0)
	var l float32
	for i := 0; i < 5000; i++ {
		l, _ = eq.Process(0.5, 0.5)
	}
	if abs32(l) > 0.01 {
		t.Errorf("DC should be cut with band 0 at zero, got %f", l)
	}
}

func TestMasterVolumeAndClamp(t *testing.T) {
	m := NewMaster(44100)
	m.SetVolume(0)
	buf := []float32{0.5, -0.5, 0.5, -0.5}
	m.Process(buf)
	for _, s := range buf {
		if s != 0 {
			t.Fatalf("muted master should output silence, got %v", s)
		}
	}

	m = NewMaster(44100)
	m.SetVolume(8)
	buf = make([]float32, 4096)
	for i := range buf {
		buf[i] = 0.9
	}
	m.Process(buf)
	for _, s := range buf {
		if s > 1 || s < -1 {
			t.Fatalf("master output out of range: %v", s)
		}
	}
}

func TestMasterCloneCopiesSettings(t *testing.T) {
	m := NewMaster(44100)
	m.SetVolume(0.4)
	m.SetReverb(0.3)
	m.EQ().SetGain(2, 1.5)
	c := m.Clone()
	if c.Volume() != 0.4 || c.ReverbWet() != 0.3 || c.EQ().Gain(2) != 1.5 {
		t.Fatalf("clone lost settings: vol=%v wet=%v eq=%v", c.Volume(), c.ReverbWet(), c.EQ().Gain(2))
	}
}

func TestChainProcessBuffer(t *testing.T) {
	c := NewChain(NewLimiter(44100, -40, 10, 0.1, 50))
	buf := []float32{1, 1, 1, 1}
	c.ProcessBuffer(buf)
	if c.Len() != 1 {
		t.Fatalf("len = %d", c.Len())
	}
	if buf[2] >= 1 {
		t.Fatalf("chain did not apply limiter: %v", buf)
	}
	var nilChain *Chain
	nilChain.ProcessBuffer(buf)
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
