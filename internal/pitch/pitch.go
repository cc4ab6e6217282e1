// Package pitch converts between MIDI note numbers and scientific note names.
package pitch

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidName is returned when a note name cannot be parsed.
var ErrInvalidName = errors.New("invalid note name")

// DefaultBase is the base pitch assumed for user samples when none is given.
const DefaultBase = "F#4"

var sharpNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

var letterOffsets = map[byte]int{'C': 0, 'D': 2, 'E': 4, 'F': 5, 'G': 7, 'A': 9, 'B': 11}

// Name returns the sharp-spelled name of a MIDI note, with middle C (60) as C4.
func Name(note int) string {
	octave := floorDiv(note, 12) - 1
	return sharpNames[note-floorDiv(note, 12)*12] + strconv.Itoa(octave)
}

// Parse converts a note name such as "F#4", "Bb2" or "C-1" into a MIDI note number.
func Parse(name string) (int, error) {
	s := strings.TrimSpace(name)
	if len(s) < 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	base, ok := letterOffsets[upper(s[0])]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	rest := s[1:]
	for len(rest) > 0 && (rest[0] == '#' || rest[0] == 'b') {
		if rest[0] == '#' {
			base++
		} else {
			base--
		}
		rest = rest[1:]
	}
	octave, err := strconv.Atoi(rest)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return (octave+1)*12 + base, nil
}

// MustParse is like Parse but panics on error. Intended for compiled-in tables.
func MustParse(name string) int {
	n, err := Parse(name)
	if err != nil {
		panic(err)
	}
	return n
}

// Transpose shifts a note by semitones, clamped to the MIDI range 0..127.
// A clamped result is not note+semitones.
func Transpose(note, semitones int) int {
	n := note + semitones
	if n < 0 {
		return 0
	}
	if n > 127 {
		return 127
	}
	return n
}

// Ratio is the playback-rate ratio that moves a sample recorded at base to target.
func Ratio(target, base int) float64 {
	return math.Pow(2, float64(target-base)/12)
}

// Freq returns the equal-tempered frequency of a MIDI note (A4 = 440Hz).
func Freq(note int) float64 {
	return 440 * math.Pow(2, float64(note-69)/12)
}

// BaseNotes lists the selectable base pitches for user samples, C2 through B6.
func BaseNotes() []string {
	out := make([]string, 0, 5*12)
	for n := MustParse("C2"); n <= MustParse("B6"); n++ {
		out = append(out, Name(n))
	}
	return out
}

func upper(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - 'a' + 'A'
	}
	return c
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
