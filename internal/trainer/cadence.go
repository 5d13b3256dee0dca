// Package trainer contains the call-and-response drill engine: the cadence
// scheduler that establishes a key, the drill cycle state machine, the
// target picker, and the live-mode attempt classifier.
package trainer

import (
	"fmt"
	"strings"
	"time"

	"github.com/jaycincotta/emo1/internal/audio"
	"github.com/jaycincotta/emo1/internal/music"
)

// Tempo is a pacing class shared by cadence playback and autoplay pauses.
type Tempo int

const (
	TempoSlow Tempo = iota
	TempoMedium
	TempoFast
)

// ParseTempo maps a config string to a Tempo.
func ParseTempo(s string) (Tempo, error) {
	switch strings.ToLower(s) {
	case "slow":
		return TempoSlow, nil
	case "medium", "":
		return TempoMedium, nil
	case "fast":
		return TempoFast, nil
	}
	return 0, fmt.Errorf("unknown tempo %q", s)
}

func (t Tempo) String() string {
	switch t {
	case TempoSlow:
		return "slow"
	case TempoFast:
		return "fast"
	default:
		return "medium"
	}
}

// ChordSeconds returns the seconds allotted to each cadence chord.
func (t Tempo) ChordSeconds() float64 {
	switch t {
	case TempoSlow:
		return 1.0
	case TempoFast:
		return 0.3
	default:
		return 0.6
	}
}

// DrillPause returns the autoplay pause between drills.
func (t Tempo) DrillPause() time.Duration {
	switch t {
	case TempoSlow:
		return 4 * time.Second
	case TempoFast:
		return 1200 * time.Millisecond
	default:
		return 2500 * time.Millisecond
	}
}

const (
	// cadenceLeadSeconds keeps the first chord from being scheduled in
	// the past.
	cadenceLeadSeconds = 0.05

	// noteLeadSeconds offsets a single note so it never races a cadence
	// issued in the same tick.
	noteLeadSeconds = 0.005

	chordDutyCycle = 0.9
)

// Cadence schedules a I-IV-V-I cadence in the given key and returns its
// total duration in seconds so the caller can chain the next action.
func Cadence(tone audio.ToneSource, key music.Key, tempo Tempo) float64 {
	root := music.RootPitch(key)
	chords := [4][3]music.Pitch{
		{root, root + 4, root + 7},
		{root + 5, root + 9, root + 12},
		{root + 7, root + 11, root + 14},
		{root, root + 4, root + 7},
	}

	chordDur := chordDutyCycle * tempo.ChordSeconds()
	gap := (1 - chordDutyCycle) * tempo.ChordSeconds()

	start := tone.Now() + cadenceLeadSeconds
	offset := 0.0
	for _, chord := range chords {
		for _, p := range chord {
			tone.PlayTone(p, start+offset, chordDur)
		}
		offset += chordDur + gap
	}

	// No gap is charged after the final chord.
	return 4*chordDur + 3*gap
}

// PlayNote schedules one target note slightly in the future.
func PlayNote(tone audio.ToneSource, p music.Pitch, durationSeconds float64) {
	tone.PlayTone(p, tone.Now()+noteLeadSeconds, durationSeconds)
}
