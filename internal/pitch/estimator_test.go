package pitch

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sineFrame(freq, amp float64, n, sampleRate int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(amp * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
	}
	return out
}

func newTestEstimator(t *testing.T) *Estimator {
	t.Helper()
	e, err := NewEstimator(2048, 44100, 40, 2500)
	require.NoError(t, err)
	return e
}

func TestEstimatePureSine(t *testing.T) {
	e := newTestEstimator(t)

	for _, freq := range []float64{110, 220, 261.63, 440, 880} {
		est, ok := e.Estimate(sineFrame(freq, 0.5, 2048, 44100))
		require.True(t, ok, "freq %.1f", freq)
		assert.InDelta(t, freq, est.Frequency, freq*0.01, "freq %.1f", freq)
		assert.Greater(t, est.Clarity, 0.9, "freq %.1f", freq)
	}
}

func TestEstimateHarmonicRichTone(t *testing.T) {
	e := newTestEstimator(t)

	// Voice-like: fundamental plus decaying harmonics.
	n, sr := 2048, 44100
	f0 := 196.0
	frame := make([]float32, n)
	for i := range frame {
		ti := float64(i) / float64(sr)
		v := 0.5*math.Sin(2*math.Pi*f0*ti) +
			0.25*math.Sin(2*math.Pi*2*f0*ti) +
			0.12*math.Sin(2*math.Pi*3*f0*ti)
		frame[i] = float32(v)
	}

	est, ok := e.Estimate(frame)
	require.True(t, ok)
	assert.InDelta(t, f0, est.Frequency, f0*0.01)
	assert.Greater(t, est.Clarity, 0.85)
}

func TestEstimateNoiseHasLowClarity(t *testing.T) {
	e := newTestEstimator(t)
	rng := rand.New(rand.NewSource(42))

	frame := make([]float32, 2048)
	for i := range frame {
		frame[i] = float32(rng.Float64()*2 - 1)
	}

	est, ok := e.Estimate(frame)
	require.True(t, ok)
	assert.Less(t, est.Clarity, 0.6)
}

func TestEstimateSilentFrame(t *testing.T) {
	e := newTestEstimator(t)
	_, ok := e.Estimate(make([]float32, 2048))
	assert.False(t, ok)
}

func TestEstimateShortFrame(t *testing.T) {
	e := newTestEstimator(t)
	_, ok := e.Estimate(make([]float32, 128))
	assert.False(t, ok)
}

func TestNewEstimatorRejectsBadConfig(t *testing.T) {
	_, err := NewEstimator(64, 44100, 40, 2500)
	assert.ErrorIs(t, err, ErrEstimatorConfig)

	// A frame too short to resolve the requested low bound still works as
	// long as some range remains, but inverted bounds do not.
	_, err = NewEstimator(2048, 44100, 2500, 40)
	assert.ErrorIs(t, err, ErrEstimatorConfig)
}
