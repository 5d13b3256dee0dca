package trainer

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"

	"github.com/jaycincotta/emo1/internal/music"
)

// NoteMode filters which scale degrees are eligible as drill targets.
type NoteMode int

const (
	ModeDiatonic NoteMode = iota
	ModeNonDiatonic
	ModeChromatic
)

// ParseNoteMode maps a config string to a NoteMode.
func ParseNoteMode(s string) (NoteMode, error) {
	switch strings.ToLower(s) {
	case "diatonic", "":
		return ModeDiatonic, nil
	case "nondiatonic", "non-diatonic":
		return ModeNonDiatonic, nil
	case "chromatic":
		return ModeChromatic, nil
	}
	return 0, fmt.Errorf("unknown note mode %q", s)
}

func (m NoteMode) String() string {
	switch m {
	case ModeNonDiatonic:
		return "nondiatonic"
	case ModeChromatic:
		return "chromatic"
	default:
		return "diatonic"
	}
}

// allows reports whether a degree passes the filter.
func (m NoteMode) allows(s music.Solfege) bool {
	switch m {
	case ModeDiatonic:
		return s.Diatonic
	case ModeNonDiatonic:
		return !s.Diatonic
	default:
		return true
	}
}

// ErrNoCandidate means the range and filter admit no pitch, e.g. a
// one-semitone range holding only a chromatic note in diatonic mode.
var ErrNoCandidate = errors.New("no pitch satisfies the target range and filter")

const targetAttempts = 60

// PickTarget draws a random drill target by rejection sampling within
// [low, high], honoring the note-mode filter for the key. The attempt
// budget keeps a hostile range/filter combination from spinning forever.
func PickTarget(rng *rand.Rand, key music.Key, low, high music.Pitch, mode NoteMode) (music.Pitch, error) {
	if low > high {
		low, high = high, low
	}
	if low < music.MinPitch {
		low = music.MinPitch
	}
	if high > music.MaxPitch {
		high = music.MaxPitch
	}

	root := music.RootPitch(key)
	span := int(high-low) + 1
	for i := 0; i < targetAttempts; i++ {
		p := low + music.Pitch(rng.Intn(span))
		if mode.allows(music.SolfegeForDegree(music.DegreeOf(p, root))) {
			return p, nil
		}
	}
	return 0, ErrNoCandidate
}

// PickKey draws a key different from current. The bounded retry loop
// cannot pick the same key unless it is somehow the only one.
func PickKey(rng *rand.Rand, current music.Key) music.Key {
	for i := 0; i < 30; i++ {
		k := music.Keys[rng.Intn(len(music.Keys))]
		if k != current {
			return k
		}
	}
	return current
}
