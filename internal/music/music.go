// Package music holds the tonal model: piano pitches, major key centers,
// and the movable-Do solfege table everything else is built on.
package music

import (
	"fmt"
	"math"
)

// Pitch is a semitone number on the standard 88-key piano, where 60 is
// middle C and 69 is A4 (440 Hz).
type Pitch int

const (
	// MinPitch and MaxPitch bound the 88 piano keys (A0..C8).
	MinPitch Pitch = 21
	MaxPitch Pitch = 108

	// MiddleC is the anchor for key root offsets.
	MiddleC Pitch = 60

	// A440 is the tuning reference pitch.
	A440 Pitch = 69

	referenceHz = 440.0
)

// All note names in chromatic order
var noteNames = []string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// Valid reports whether p lies on the 88-key piano.
func (p Pitch) Valid() bool {
	return p >= MinPitch && p <= MaxPitch
}

// Class returns the pitch class (0 = C) regardless of octave.
func (p Pitch) Class() int {
	c := int(p) % 12
	if c < 0 {
		c += 12
	}
	return c
}

// Frequency returns the equal-tempered frequency of p in Hz.
func (p Pitch) Frequency() float64 {
	return referenceHz * math.Pow(2, float64(p-A440)/12)
}

// Name returns the scientific note name, e.g. "C4" for middle C.
func (p Pitch) Name() string {
	octave := int(p)/12 - 1
	return fmt.Sprintf("%s%d", noteNames[p.Class()], octave)
}

// PitchForFrequency rounds a frequency in Hz to the nearest semitone.
// The result is not clamped; callers check Valid or the detectable window.
func PitchForFrequency(hz float64) Pitch {
	return Pitch(math.Round(float64(A440) + 12*math.Log2(hz/referenceHz)))
}

// Key is a named major key center.
type Key string

// Keys lists the 12 major keys in circle-of-fifths order.
var Keys = []Key{"C", "G", "D", "A", "E", "B", "F#", "Db", "Ab", "Eb", "Bb", "F"}

// keyOffsets places every key root within a sixth of middle C so cadences
// stay in a comfortable register.
var keyOffsets = map[Key]int{
	"C":  0,
	"Db": 1,
	"D":  2,
	"Eb": 3,
	"E":  4,
	"F":  5,
	"F#": 6,
	"G":  -5,
	"Ab": -4,
	"A":  -3,
	"Bb": -2,
	"B":  -1,
}

// RootPitch returns the root pitch of k anchored near middle C.
// Unknown keys map to the C root.
func RootPitch(k Key) Pitch {
	return MiddleC + Pitch(keyOffsets[k])
}

// Solfege is one entry of the movable-Do syllable table.
type Solfege struct {
	Diatonic bool
	Syllable string
}

// Chromatic movable-Do with flat-based alterations (Ra/Me/Le/Te, sharp Fi).
var solfegeTable = [12]Solfege{
	{true, "Do"},
	{false, "Ra"},
	{true, "Re"},
	{false, "Me"},
	{true, "Mi"},
	{true, "Fa"},
	{false, "Fi"},
	{true, "Sol"},
	{false, "Le"},
	{true, "La"},
	{false, "Te"},
	{true, "Ti"},
}

// SolfegeForDegree maps a relative semitone degree to its syllable.
// Total over all ints; the degree is normalized mod 12.
func SolfegeForDegree(degree int) Solfege {
	d := degree % 12
	if d < 0 {
		d += 12
	}
	return solfegeTable[d]
}

// DegreeOf returns the solfege degree of p relative to root, 0..11.
// The +1200 keeps the difference positive for any pair of piano pitches.
func DegreeOf(p, root Pitch) int {
	return int((p - root + 1200) % 12)
}
