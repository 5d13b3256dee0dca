package pitch

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaycincotta/emo1/internal/audio"
	"github.com/jaycincotta/emo1/internal/clock"
	"github.com/jaycincotta/emo1/internal/music"
)

// scriptedCapturer returns whatever frame the test has loaded.
type scriptedCapturer struct {
	frame    []float32
	startErr error
	started  bool
}

func (c *scriptedCapturer) Start() error {
	if c.startErr != nil {
		return c.startErr
	}
	c.started = true
	return nil
}

func (c *scriptedCapturer) Stop() error {
	c.started = false
	return nil
}

func (c *scriptedCapturer) GetBuffer() (*audio.AudioBuffer, error) {
	return &audio.AudioBuffer{Samples: c.frame, SampleRate: 44100}, nil
}

func (c *scriptedCapturer) IsCapturing() bool { return c.started }

func newTestPipeline(t *testing.T, capt *scriptedCapturer, fc *clock.Fake, sens Sensitivity) *Pipeline {
	t.Helper()
	est, err := NewEstimator(2048, 44100, 40, 2500)
	require.NoError(t, err)
	return NewPipeline(capt, est, fc, Options{Sensitivity: sens})
}

// feed pushes n frames through the pipeline, advancing the clock between
// frames like the animation loop would.
func feed(p *Pipeline, capt *scriptedCapturer, fc *clock.Fake, frame []float32, n int, step time.Duration) {
	capt.frame = frame
	for i := 0; i < n; i++ {
		p.step()
		fc.Advance(step)
	}
}

func TestPipelineStabilizesSustainedNote(t *testing.T) {
	capt := &scriptedCapturer{}
	fc := clock.NewFake()
	p := newTestPipeline(t, capt, fc, SensitivityMedium)

	var promotions []music.Pitch
	p.OnStable = func(pt music.Pitch) { promotions = append(promotions, pt) }

	// A4 sung steadily.
	feed(p, capt, fc, sineFrame(440, 0.3, 2048, 44100), 10, 50*time.Millisecond)

	require.Len(t, promotions, 1)
	assert.Equal(t, music.A440, promotions[0])

	snap := p.Snapshot()
	assert.True(t, snap.HasStable)
	assert.Equal(t, music.A440, snap.Stable)
	assert.True(t, snap.HasEffect)
	assert.Equal(t, music.A440, snap.Effective)
}

func TestPipelineSilenceProducesNothing(t *testing.T) {
	capt := &scriptedCapturer{}
	fc := clock.NewFake()
	p := newTestPipeline(t, capt, fc, SensitivityMedium)

	feed(p, capt, fc, make([]float32, 2048), 30, 50*time.Millisecond)

	snap := p.Snapshot()
	assert.False(t, snap.HasRaw)
	assert.False(t, snap.HasStable)
	assert.False(t, snap.HasEffect)
}

func TestPipelineNoiseNeverStabilizes(t *testing.T) {
	capt := &scriptedCapturer{}
	fc := clock.NewFake()
	p := newTestPipeline(t, capt, fc, SensitivityMedium)

	// Loud but aperiodic: fails the clarity gate.
	rng := rand.New(rand.NewSource(7))
	frame := make([]float32, 2048)
	for i := range frame {
		frame[i] = float32(rng.Float64() - 0.5)
	}
	feed(p, capt, fc, frame, 30, 50*time.Millisecond)

	snap := p.Snapshot()
	assert.False(t, snap.HasStable)
}

func TestPipelineRejectsOutOfWindowPitch(t *testing.T) {
	capt := &scriptedCapturer{}
	fc := clock.NewFake()
	p := newTestPipeline(t, capt, fc, SensitivityHigh)

	// 2489 Hz (D#7) passes the frequency bounds but rounds to pitch 99,
	// just above the trusted detectable window.
	feed(p, capt, fc, sineFrame(2489, 0.3, 2048, 44100), 20, 50*time.Millisecond)

	snap := p.Snapshot()
	assert.False(t, snap.HasRaw)
	assert.False(t, snap.HasStable)
}

func TestPipelineRejectsSubsonicRumble(t *testing.T) {
	capt := &scriptedCapturer{}
	fc := clock.NewFake()
	p := newTestPipeline(t, capt, fc, SensitivityHigh)

	// 30 Hz is below the search range; the estimator finds no periodic
	// dip, so clarity stays low and nothing is published.
	feed(p, capt, fc, sineFrame(30, 0.3, 2048, 44100), 20, 50*time.Millisecond)

	snap := p.Snapshot()
	assert.False(t, snap.HasRaw)
	assert.False(t, snap.HasStable)
}

func TestPipelineIdleClear(t *testing.T) {
	capt := &scriptedCapturer{}
	fc := clock.NewFake()
	p := newTestPipeline(t, capt, fc, SensitivityMedium)

	cleared := false
	p.OnClear = func() { cleared = true }

	feed(p, capt, fc, sineFrame(440, 0.3, 2048, 44100), 10, 50*time.Millisecond)
	require.True(t, p.Snapshot().HasStable)

	// Under half the amp gate for well past the idle timeout.
	feed(p, capt, fc, make([]float32, 2048), 40, 50*time.Millisecond)

	snap := p.Snapshot()
	assert.True(t, cleared)
	assert.False(t, snap.HasStable)
	assert.False(t, snap.HasRaw)
	assert.False(t, snap.HasEffect)
}

func TestPipelineIdleClearCountsFromSilenceOnset(t *testing.T) {
	capt := &scriptedCapturer{}
	fc := clock.NewFake()
	p := newTestPipeline(t, capt, fc, SensitivityMedium)

	// Hold the note well past the idle timeout itself.
	feed(p, capt, fc, sineFrame(440, 0.3, 2048, 44100), 60, 50*time.Millisecond)
	require.True(t, p.Snapshot().HasStable)

	// One second of silence is under the 1.4s timeout: still stable.
	feed(p, capt, fc, make([]float32, 2048), 20, 50*time.Millisecond)
	assert.True(t, p.Snapshot().HasStable, "timeout counts from silence onset, not last promotion")

	// Another 0.6s crosses it.
	feed(p, capt, fc, make([]float32, 2048), 12, 50*time.Millisecond)
	assert.False(t, p.Snapshot().HasStable)
}

func TestPipelineProvisionalEffectivePitch(t *testing.T) {
	capt := &scriptedCapturer{}
	fc := clock.NewFake()
	p := newTestPipeline(t, capt, fc, SensitivityLow) // strict: slow to stabilize

	// Three frames is nowhere near Low's 8-frame requirement, but past
	// the 150ms provisional hold.
	feed(p, capt, fc, sineFrame(440, 0.3, 2048, 44100), 4, 80*time.Millisecond)

	snap := p.Snapshot()
	assert.True(t, snap.HasRaw)
	assert.False(t, snap.HasStable)
	assert.True(t, snap.HasEffect, "raw candidate shows provisionally")
	assert.Equal(t, music.A440, snap.Effective)
}

func TestPipelineCaptureFailureIsSticky(t *testing.T) {
	capt := &scriptedCapturer{startErr: audio.ErrCaptureUnavailable}
	fc := clock.NewFake()
	p := newTestPipeline(t, capt, fc, SensitivityMedium)

	err := p.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, audio.ErrCaptureUnavailable)

	snap := p.Snapshot()
	assert.False(t, snap.Listening)
	assert.ErrorIs(t, snap.Err, audio.ErrCaptureUnavailable)
	assert.False(t, snap.HasStable)
}

func TestPipelineRunStopsOnCancel(t *testing.T) {
	capt := &scriptedCapturer{frame: make([]float32, 2048)}
	fc := clock.NewFake()
	p := newTestPipeline(t, capt, fc, SensitivityMedium)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	// Give the loop a moment to start, then cancel.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline did not stop on cancel")
	}
	assert.False(t, p.Snapshot().Listening)
	assert.False(t, capt.IsCapturing())
}
