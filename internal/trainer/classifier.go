package trainer

import (
	"sync"
	"time"

	"github.com/jaycincotta/emo1/internal/clock"
	"github.com/jaycincotta/emo1/internal/music"
)

// Outcome classifies one sung/played attempt against the hidden target.
type Outcome int

const (
	OutcomeExact Outcome = iota
	OutcomeNear          // same solfege degree, different octave
	OutcomeWrong
)

func (o Outcome) String() string {
	switch o {
	case OutcomeExact:
		return "exact"
	case OutcomeNear:
		return "near"
	default:
		return "wrong"
	}
}

// Classify compares a detected pitch to the target relative to the key
// root. The three outcomes are exhaustive and mutually exclusive.
func Classify(target, detected, root music.Pitch) Outcome {
	if detected == target {
		return OutcomeExact
	}
	if music.DegreeOf(detected, root) == music.DegreeOf(target, root) {
		return OutcomeNear
	}
	return OutcomeWrong
}

// Metrics accumulates session results. Streak counts consecutive exact
// answers only: with strict mode off a near (octave) success still resolves
// the target and counts toward accuracy, but it does not advance the streak.
type Metrics struct {
	Attempts int
	Exact    int
	Near     int
	FirstTry int
	Targets  int
	Streak   int
}

// Result reports one evaluated attempt and what should happen next.
type Result struct {
	Outcome      Outcome
	Syllable     string
	FirstAttempt bool
	Resolved     bool // target answered; reveal and advance
	ReServe      bool // two straight misses; replay the target
	KeyChange    bool // streak target reached; change key
	Metrics      Metrics
}

// Classifier owns live-mode evaluation state. It only ever sees stabilized
// pitches; the pipeline's raw candidates never reach it.
type Classifier struct {
	mu  sync.Mutex
	clk clock.Clock

	strict       bool
	streakTarget int

	root          music.Pitch
	target        music.Pitch
	hasTarget     bool
	suppressUntil time.Time
	firstDone     bool
	resolved      bool
	misses        int // consecutive non-exact evaluations on this target
	lastEval      music.Pitch
	hasLastEval   bool

	metrics Metrics
}

// NewClassifier creates a classifier. streakTarget <= 0 disables the
// automatic key change.
func NewClassifier(clk clock.Clock, strict bool, streakTarget int) *Classifier {
	return &Classifier{clk: clk, strict: strict, streakTarget: streakTarget}
}

// Metrics returns a copy of the session metrics.
func (c *Classifier) Metrics() Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.metrics
}

// Target returns the pending target, if any.
func (c *Classifier) Target() (music.Pitch, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.target, c.hasTarget
}

// SetTarget arms evaluation for a new target. suppressFor ignores mic
// input long enough for speaker bleed from the playback to die out.
func (c *Classifier) SetTarget(target music.Pitch, key music.Key, suppressFor time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.target = target
	c.root = music.RootPitch(key)
	c.hasTarget = true
	c.suppressUntil = c.clk.Now().Add(suppressFor)
	c.firstDone = false
	c.resolved = false
	c.misses = 0
	c.hasLastEval = false
	c.metrics.Targets++
}

// ReArm re-suppresses evaluation for a replayed target without counting a
// new target. A resolved target re-opens: replaying after the reveal means
// the user wants to answer it again.
func (c *Classifier) ReArm(suppressFor time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.suppressUntil = c.clk.Now().Add(suppressFor)
	c.resolved = false
	c.misses = 0
	c.hasLastEval = false
}

// ClearTarget drops the pending target, as on stop or key change.
func (c *Classifier) ClearTarget() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hasTarget = false
	c.resolved = false
	c.misses = 0
	c.hasLastEval = false
}

// Evaluate judges one stabilized detected pitch. ok is false when the
// detection must be ignored: no pending target, evaluation suppressed,
// target already resolved, or the same value re-delivered.
func (c *Classifier) Evaluate(detected music.Pitch) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.hasTarget || c.resolved {
		return Result{}, false
	}
	if c.clk.Now().Before(c.suppressUntil) {
		return Result{}, false
	}
	if c.hasLastEval && c.lastEval == detected {
		// A sustained note keeps re-delivering the same stable value;
		// it is one attempt, not many.
		return Result{}, false
	}
	c.lastEval = detected
	c.hasLastEval = true

	outcome := Classify(c.target, detected, c.root)
	first := !c.firstDone
	c.firstDone = true

	c.metrics.Attempts++
	switch outcome {
	case OutcomeExact:
		c.metrics.Exact++
	case OutcomeNear:
		c.metrics.Near++
	}

	// First attempt may succeed on an octave match unless strict;
	// afterwards only the exact pitch resolves.
	success := outcome == OutcomeExact ||
		(first && !c.strict && outcome == OutcomeNear)

	res := Result{
		Outcome:      outcome,
		Syllable:     music.SolfegeForDegree(music.DegreeOf(c.target, c.root)).Syllable,
		FirstAttempt: first,
	}

	if success {
		c.resolved = true
		c.misses = 0
		res.Resolved = true
		if first {
			c.metrics.FirstTry++
		}
		if outcome == OutcomeExact {
			c.metrics.Streak++
			if c.streakTarget > 0 && c.metrics.Streak >= c.streakTarget {
				res.KeyChange = true
				c.metrics.Streak = 0
			}
		}
	} else {
		c.metrics.Streak = 0
		c.misses++
		if c.misses >= 2 {
			res.ReServe = true
			c.misses = 0
		}
	}

	res.Metrics = c.metrics
	return res, true
}
