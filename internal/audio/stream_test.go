package audio

import (
	"encoding/binary"
	"io"
	"math"
	"testing"
)

type rampSource struct{ calls int }

func (s *rampSource) Process(dst []float32) {
	s.calls++
	for i := range dst {
		dst[i] = float32(i) / 10
	}
}

func TestStreamReaderEncodesF32LE(t *testing.T) {
	src := &rampSource{}
	r := NewStreamReader(src)
	p := make([]byte, 8*4+3)
	n, err := r.Read(p)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if n != 32 {
		t.Fatalf("n = %d, want whole frames only", n)
	}
	for i := 0; i < 8; i++ {
		got := math.Float32frombits(binary.LittleEndian.Uint32(p[i*4:]))
		if got != float32(i)/10 {
			t.Fatalf("sample %d = %v", i, got)
		}
	}
}

func TestStreamReaderShortBufferAndClose(t *testing.T) {
	src := &rampSource{}
	r := NewStreamReader(src)
	if n, err := r.Read(make([]byte, 7)); n != 0 || err != nil {
		t.Fatalf("short read = %d, %v", n, err)
	}
	if src.calls != 0 {
		t.Fatalf("source should not be called for partial frames")
	}
	_ = r.Close()
	if _, err := r.Read(make([]byte, 64)); err != io.EOF {
		t.Fatalf("read after close = %v, want EOF", err)
	}
}
