package audio

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaycincotta/emo1/internal/music"
)

// startForTest marks the synth running without opening a real stream so the
// render callback can be driven by hand.
func startForTest(s *Synth) {
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
}

func renderSeconds(s *Synth, seconds float64) []float32 {
	n := int(seconds * float64(s.sampleRate))
	out := make([]float32, n)
	// Feed in stream-sized blocks like PortAudio would.
	for off := 0; off < n; off += 512 {
		end := off + 512
		if end > n {
			end = n
		}
		s.render(out[off:end])
	}
	return out
}

func peak(samples []float32) float64 {
	p := 0.0
	for _, v := range samples {
		if a := math.Abs(float64(v)); a > p {
			p = a
		}
	}
	return p
}

func TestSynthQueuesWhileUnready(t *testing.T) {
	s := NewSynth(44100)
	s.PlayTone(music.MiddleC, 0, 0.5)
	s.PlayTone(music.A440, 0.1, 0.5)

	assert.False(t, s.Ready())
	assert.Len(t, s.pending, 2)
	assert.Empty(t, s.voices)
}

func TestSynthRendersScheduledTone(t *testing.T) {
	s := NewSynth(44100)
	startForTest(s)

	s.PlayTone(music.A440, 0.1, 0.2)

	out := renderSeconds(s, 0.5)
	sr := 44100

	// Silent before onset.
	assert.Less(t, peak(out[:int(0.09*float64(sr))]), 1e-6)
	// Audible mid-tone.
	mid := out[int(0.15*float64(sr)):int(0.25*float64(sr))]
	assert.Greater(t, peak(mid), 0.1)
	// Silent again after the tone ends.
	assert.Less(t, peak(out[int(0.35*float64(sr)):]), 1e-6)
}

func TestSynthClockAdvances(t *testing.T) {
	s := NewSynth(44100)
	startForTest(s)

	require.Equal(t, 0.0, s.Now())
	renderSeconds(s, 1.0)
	assert.InDelta(t, 1.0, s.Now(), 0.001)
}

func TestSynthPastOnsetStartsImmediately(t *testing.T) {
	s := NewSynth(44100)
	startForTest(s)
	renderSeconds(s, 0.5)

	// Requested in the past; clamps to the current clock.
	s.PlayTone(music.MiddleC, 0.1, 0.3)
	out := renderSeconds(s, 0.1)
	assert.Greater(t, peak(out[len(out)/2:]), 0.05)
}

func TestSynthChordMixesWithoutClipping(t *testing.T) {
	s := NewSynth(44100)
	startForTest(s)

	for _, p := range []music.Pitch{60, 64, 67} {
		s.PlayTone(p, 0, 0.3)
	}
	out := renderSeconds(s, 0.3)
	assert.Greater(t, peak(out), 0.1)
	assert.LessOrEqual(t, peak(out), 0.95)
}

func TestSynthPrunesFinishedVoices(t *testing.T) {
	s := NewSynth(44100)
	startForTest(s)

	s.PlayTone(music.MiddleC, 0, 0.1)
	renderSeconds(s, 0.3)

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Empty(t, s.voices)
}
