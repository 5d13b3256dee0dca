package pitch

import (
	"fmt"
	"strings"
	"time"

	"github.com/jaycincotta/emo1/internal/clock"
	"github.com/jaycincotta/emo1/internal/music"
)

// Sensitivity selects how aggressively candidate pitches are filtered
// before promotion to the stabilized value.
type Sensitivity int

const (
	// SensitivityLow is the strictest profile: slow, but near-zero false
	// positives even with speaker bleed.
	SensitivityLow Sensitivity = iota
	SensitivityMedium
	// SensitivityHigh is the most permissive profile for quiet voices or
	// distant microphones.
	SensitivityHigh
	// SensitivityAuto derives thresholds from the measured room noise.
	SensitivityAuto
)

// ParseSensitivity maps a config string to a Sensitivity.
func ParseSensitivity(s string) (Sensitivity, error) {
	switch strings.ToLower(s) {
	case "low":
		return SensitivityLow, nil
	case "medium", "":
		return SensitivityMedium, nil
	case "high":
		return SensitivityHigh, nil
	case "auto":
		return SensitivityAuto, nil
	}
	return 0, fmt.Errorf("unknown sensitivity %q", s)
}

func (s Sensitivity) String() string {
	switch s {
	case SensitivityLow:
		return "low"
	case SensitivityMedium:
		return "medium"
	case SensitivityHigh:
		return "high"
	case SensitivityAuto:
		return "auto"
	}
	return "unknown"
}

// Thresholds is one concrete filter tuning.
type Thresholds struct {
	MinClarity       float64
	AmpThreshold     float64
	StableFrames     int
	StableTime       time.Duration
	MaxJitterSpan    int // semitones across the recent-pitch window
	MaxClaritySpread float64
}

// Thresholds returns the fixed tuning for a manual profile. Auto returns
// the medium profile; callers with an Ambient use its derived values.
func (s Sensitivity) Thresholds() Thresholds {
	switch s {
	case SensitivityLow:
		return Thresholds{
			MinClarity:       0.93,
			AmpThreshold:     0.025,
			StableFrames:     8,
			StableTime:       350 * time.Millisecond,
			MaxJitterSpan:    0,
			MaxClaritySpread: 0.08,
		}
	case SensitivityHigh:
		return Thresholds{
			MinClarity:       0.80,
			AmpThreshold:     0.008,
			StableFrames:     4,
			StableTime:       150 * time.Millisecond,
			MaxJitterSpan:    2,
			MaxClaritySpread: 0.20,
		}
	default:
		return Thresholds{
			MinClarity:       0.88,
			AmpThreshold:     0.015,
			StableFrames:     6,
			StableTime:       250 * time.Millisecond,
			MaxJitterSpan:    1,
			MaxClaritySpread: 0.12,
		}
	}
}

const (
	ambientRMSAlpha     = 0.05
	ambientClarityAlpha = 0.10
)

// Ambient tracks exponential moving averages of room noise level and the
// clarity the estimator reports on non-pitched sound. Auto mode derives
// its thresholds from these.
type Ambient struct {
	rms     float64
	clarity float64
	primed  bool
}

// ObserveRMS feeds one sub-threshold (silent) frame's energy into the
// noise average.
func (a *Ambient) ObserveRMS(rms float64) {
	if !a.primed {
		a.rms = rms
		a.clarity = 0.3
		a.primed = true
		return
	}
	a.rms += ambientRMSAlpha * (rms - a.rms)
}

// ObserveClarity feeds the clarity of a rejected (low-clarity) estimate
// into the ambient clarity average.
func (a *Ambient) ObserveClarity(clarity float64) {
	if !a.primed {
		return
	}
	a.clarity += ambientClarityAlpha * (clarity - a.clarity)
}

// RMS returns the current ambient noise estimate.
func (a *Ambient) RMS() float64 { return a.rms }

// Thresholds derives a tuning from the ambient state: a quiet room can
// afford a strict clarity floor and a longer confirmation window; a noisy
// room gets permissive, faster settings so the tool stays usable.
func (a *Ambient) Thresholds() Thresholds {
	if !a.primed {
		return SensitivityMedium.Thresholds()
	}

	th := Thresholds{
		MinClarity:   clamp(a.clarity+0.30, 0.78, 0.93),
		AmpThreshold: clamp(a.rms*3, 0.006, 0.04),
	}
	if a.rms < 0.004 {
		th.StableFrames = 6
		th.StableTime = 250 * time.Millisecond
		th.MaxJitterSpan = 1
		th.MaxClaritySpread = 0.10
	} else {
		th.StableFrames = 4
		th.StableTime = 160 * time.Millisecond
		th.MaxJitterSpan = 2
		th.MaxClaritySpread = 0.18
	}
	return th
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

const (
	pitchWindowSize   = 6
	clarityWindowSize = 12
)

// Stabilizer debounces raw pitch candidates into a stabilized value. It is
// not safe for concurrent use; the pipeline owns it.
type Stabilizer struct {
	clk clock.Clock

	recentPitches []music.Pitch
	recentClarity []float64

	candidate       music.Pitch
	candidateFrames int
	stableSince     time.Time

	stable    music.Pitch
	hasStable bool
}

// NewStabilizer creates a stabilizer on the given clock.
func NewStabilizer(clk clock.Clock) *Stabilizer {
	return &Stabilizer{clk: clk}
}

// Stable returns the current stabilized pitch, if any.
func (s *Stabilizer) Stable() (music.Pitch, bool) {
	return s.stable, s.hasStable
}

// Observe feeds one accepted raw candidate. It returns the newly promoted
// stabilized pitch when this frame completed a promotion.
func (s *Stabilizer) Observe(p music.Pitch, clarity float64, th Thresholds) (music.Pitch, bool) {
	now := s.clk.Now()

	s.recentPitches = pushPitch(s.recentPitches, p, pitchWindowSize)
	s.recentClarity = pushFloat(s.recentClarity, clarity, clarityWindowSize)

	if p != s.candidate {
		s.candidate = p
		s.candidateFrames = 1
		s.stableSince = now
		return 0, false
	}
	s.candidateFrames++

	if s.jitterSpan() > th.MaxJitterSpan || s.claritySpread() > th.MaxClaritySpread {
		// Signal is wobbling; restart the confirmation window but keep
		// the candidate so a settling note still converges.
		s.candidateFrames = 1
		s.stableSince = now
		return 0, false
	}

	if s.candidateFrames < th.StableFrames || now.Sub(s.stableSince) < th.StableTime {
		return 0, false
	}
	if s.hasStable && s.stable == p {
		return 0, false
	}

	s.stable = p
	s.hasStable = true
	return p, true
}

// Clear drops the stabilized value and all rolling state, as on idle
// timeout or mode stop.
func (s *Stabilizer) Clear() {
	s.recentPitches = s.recentPitches[:0]
	s.recentClarity = s.recentClarity[:0]
	s.candidate = 0
	s.candidateFrames = 0
	s.stableSince = time.Time{}
	s.stable = 0
	s.hasStable = false
}

func (s *Stabilizer) jitterSpan() int {
	if len(s.recentPitches) == 0 {
		return 0
	}
	lo, hi := s.recentPitches[0], s.recentPitches[0]
	for _, p := range s.recentPitches[1:] {
		if p < lo {
			lo = p
		}
		if p > hi {
			hi = p
		}
	}
	return int(hi - lo)
}

func (s *Stabilizer) claritySpread() float64 {
	if len(s.recentClarity) == 0 {
		return 0
	}
	lo, hi := s.recentClarity[0], s.recentClarity[0]
	for _, c := range s.recentClarity[1:] {
		if c < lo {
			lo = c
		}
		if c > hi {
			hi = c
		}
	}
	return hi - lo
}

func pushPitch(w []music.Pitch, p music.Pitch, max int) []music.Pitch {
	w = append(w, p)
	if len(w) > max {
		w = w[1:]
	}
	return w
}

func pushFloat(w []float64, v float64, max int) []float64 {
	w = append(w, v)
	if len(w) > max {
		w = w[1:]
	}
	return w
}
