package trainer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaycincotta/emo1/internal/clock"
	"github.com/jaycincotta/emo1/internal/music"
)

func TestClassifyOutcomes(t *testing.T) {
	root := music.RootPitch("C") // 60

	// Exact: same pitch.
	assert.Equal(t, OutcomeExact, Classify(64, 64, root))
	// Near: same degree, different octave.
	assert.Equal(t, OutcomeNear, Classify(64, 76, root))
	assert.Equal(t, OutcomeNear, Classify(64, 52, root))
	// Wrong: different degree.
	assert.Equal(t, OutcomeWrong, Classify(64, 65, root))
}

func TestClassifyExhaustiveAndExclusive(t *testing.T) {
	root := music.RootPitch("A")
	for target := music.Pitch(48); target <= 72; target++ {
		for detected := music.Pitch(36); detected <= 84; detected++ {
			o := Classify(target, detected, root)
			sameDegree := music.DegreeOf(detected, root) == music.DegreeOf(target, root)
			switch {
			case detected == target:
				assert.Equal(t, OutcomeExact, o)
			case sameDegree:
				assert.Equal(t, OutcomeNear, o)
			default:
				assert.Equal(t, OutcomeWrong, o)
			}
		}
	}
}

func newArmedClassifier(t *testing.T, fc *clock.Fake, strict bool, streakTarget int, target music.Pitch) *Classifier {
	t.Helper()
	c := NewClassifier(fc, strict, streakTarget)
	c.SetTarget(target, "C", 500*time.Millisecond)
	fc.Advance(time.Second) // past suppression
	return c
}

func TestEvaluateExactFirstAttempt(t *testing.T) {
	fc := clock.NewFake()
	c := newArmedClassifier(t, fc, false, 10, 64)

	res, ok := c.Evaluate(64)
	require.True(t, ok)
	assert.Equal(t, OutcomeExact, res.Outcome)
	assert.Equal(t, "Mi", res.Syllable)
	assert.True(t, res.FirstAttempt)
	assert.True(t, res.Resolved)
	assert.False(t, res.KeyChange)

	m := c.Metrics()
	assert.Equal(t, 1, m.Attempts)
	assert.Equal(t, 1, m.Exact)
	assert.Equal(t, 1, m.FirstTry)
	assert.Equal(t, 1, m.Streak)
}

func TestEvaluateNearOctave(t *testing.T) {
	fc := clock.NewFake()
	c := newArmedClassifier(t, fc, false, 10, 64)

	res, ok := c.Evaluate(76) // E5 against E4
	require.True(t, ok)
	assert.Equal(t, OutcomeNear, res.Outcome)
	assert.True(t, res.Resolved, "strict off: octave match resolves the first attempt")

	m := c.Metrics()
	assert.Equal(t, 1, m.Near)
	assert.Equal(t, 1, m.FirstTry)
	assert.Equal(t, 0, m.Streak, "near success never advances the streak")
}

func TestEvaluateNearStrictMode(t *testing.T) {
	fc := clock.NewFake()
	c := newArmedClassifier(t, fc, true, 10, 64)

	res, ok := c.Evaluate(76)
	require.True(t, ok)
	assert.Equal(t, OutcomeNear, res.Outcome)
	assert.False(t, res.Resolved, "strict on: octave match does not resolve")

	m := c.Metrics()
	assert.Equal(t, 0, m.FirstTry)
	assert.Equal(t, 0, m.Streak)
}

func TestEvaluateWrongResetsStreak(t *testing.T) {
	fc := clock.NewFake()
	c := NewClassifier(fc, false, 10)

	// Build a streak of two.
	for _, target := range []music.Pitch{64, 67} {
		c.SetTarget(target, "C", 0)
		_, ok := c.Evaluate(target)
		require.True(t, ok)
	}
	require.Equal(t, 2, c.Metrics().Streak)

	c.SetTarget(64, "C", 0)
	res, ok := c.Evaluate(65) // F4: "Fa" against "Mi"
	require.True(t, ok)
	assert.Equal(t, OutcomeWrong, res.Outcome)
	assert.False(t, res.Resolved)
	assert.Equal(t, 0, c.Metrics().Streak)
}

func TestEvaluateSecondAttemptOnlyExactResolves(t *testing.T) {
	fc := clock.NewFake()
	c := newArmedClassifier(t, fc, false, 10, 64)

	res, ok := c.Evaluate(65)
	require.True(t, ok)
	require.False(t, res.Resolved)

	// Octave match on a later attempt does not resolve even strict-off.
	res, ok = c.Evaluate(76)
	require.True(t, ok)
	assert.Equal(t, OutcomeNear, res.Outcome)
	assert.False(t, res.Resolved)

	res, ok = c.Evaluate(64)
	require.True(t, ok)
	assert.True(t, res.Resolved)
	assert.False(t, res.FirstAttempt)
	assert.Equal(t, 0, c.Metrics().FirstTry)
}

func TestEvaluateReServeAfterTwoMisses(t *testing.T) {
	fc := clock.NewFake()
	c := newArmedClassifier(t, fc, false, 10, 64)

	res, ok := c.Evaluate(65)
	require.True(t, ok)
	assert.False(t, res.ReServe, "first miss does not re-serve")

	res, ok = c.Evaluate(67)
	require.True(t, ok)
	assert.True(t, res.ReServe, "second straight miss re-serves the target")

	// The counter reset with the re-serve.
	res, ok = c.Evaluate(65)
	require.True(t, ok)
	assert.False(t, res.ReServe)
}

func TestEvaluateSuppression(t *testing.T) {
	fc := clock.NewFake()
	c := NewClassifier(fc, false, 10)
	c.SetTarget(64, "C", 2*time.Second)

	_, ok := c.Evaluate(64)
	assert.False(t, ok, "evaluation suppressed right after playback")

	fc.Advance(3 * time.Second)
	res, ok := c.Evaluate(64)
	require.True(t, ok)
	assert.True(t, res.Resolved)
}

func TestEvaluateIgnoresSustainedValue(t *testing.T) {
	fc := clock.NewFake()
	c := newArmedClassifier(t, fc, false, 10, 64)

	_, ok := c.Evaluate(65)
	require.True(t, ok)
	_, ok = c.Evaluate(65)
	assert.False(t, ok, "same stabilized value is one attempt, not two")

	// A different value evaluates again.
	_, ok = c.Evaluate(67)
	assert.True(t, ok)
}

func TestEvaluateResolvedTargetIgnoresFurtherInput(t *testing.T) {
	fc := clock.NewFake()
	c := newArmedClassifier(t, fc, false, 10, 64)

	_, ok := c.Evaluate(64)
	require.True(t, ok)

	_, ok = c.Evaluate(65)
	assert.False(t, ok)
}

func TestReArmReopensResolvedTarget(t *testing.T) {
	fc := clock.NewFake()
	c := newArmedClassifier(t, fc, false, 10, 64)

	res, ok := c.Evaluate(64)
	require.True(t, ok)
	require.True(t, res.Resolved)

	// Replaying an answered target must accept answers again.
	c.ReArm(500 * time.Millisecond)
	fc.Advance(time.Second)

	res, ok = c.Evaluate(64)
	require.True(t, ok)
	assert.True(t, res.Resolved)
	assert.False(t, res.FirstAttempt)
	assert.Equal(t, 2, c.Metrics().Attempts)
}

func TestEvaluateNoTarget(t *testing.T) {
	fc := clock.NewFake()
	c := NewClassifier(fc, false, 10)

	_, ok := c.Evaluate(64)
	assert.False(t, ok)

	c.SetTarget(64, "C", 0)
	c.ClearTarget()
	_, ok = c.Evaluate(64)
	assert.False(t, ok)
}

func TestStreakTargetTriggersKeyChange(t *testing.T) {
	fc := clock.NewFake()
	c := NewClassifier(fc, false, 3)

	targets := []music.Pitch{60, 62, 64}
	for i, target := range targets {
		c.SetTarget(target, "C", 0)
		res, ok := c.Evaluate(target)
		require.True(t, ok)
		if i < len(targets)-1 {
			assert.False(t, res.KeyChange)
		} else {
			assert.True(t, res.KeyChange, "streak of 3 reached")
			assert.Equal(t, 0, res.Metrics.Streak, "streak resets with the key change")
		}
	}
}

func TestMetricsTargetsCount(t *testing.T) {
	fc := clock.NewFake()
	c := NewClassifier(fc, false, 10)

	c.SetTarget(60, "C", 0)
	c.SetTarget(62, "C", 0)
	assert.Equal(t, 2, c.Metrics().Targets)
}
