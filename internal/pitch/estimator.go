// Package pitch turns raw microphone frames into a debounced, classified
// detected pitch: a YIN-based fundamental estimator, a stability filter,
// and the per-frame pipeline that drives them.
package pitch

import (
	"errors"
	"fmt"
	"math"

	"github.com/mjibson/go-dsp/fft"
)

// Errors
var (
	ErrEmptyBuffer     = errors.New("empty audio buffer")
	ErrEstimatorConfig = errors.New("invalid estimator configuration")
)

// Allowed aperiodicity before a lag is rejected, per the YIN paper.
const yinDefaultThreshold = 0.15

// Estimate is one fundamental-frequency reading. Clarity is a confidence
// score in [0,1]; low clarity means "probably not a pitched sound".
type Estimate struct {
	Frequency float64
	Clarity   float64
}

// Estimator implements the YIN pitch detection algorithm with the
// difference function computed through an FFT autocorrelation.
type Estimator struct {
	frameSize  int
	sampleRate int
	minTau     int
	maxTau     int
	threshold  float64
}

// NewEstimator builds an estimator for frames of frameSize samples.
// The frequency bounds set the searchable lag range; a range the frame
// cannot resolve is a configuration error.
func NewEstimator(frameSize, sampleRate int, minFreq, maxFreq float64) (*Estimator, error) {
	if frameSize < 256 {
		return nil, fmt.Errorf("%w: frame size %d too small", ErrEstimatorConfig, frameSize)
	}
	maxTau := int(math.Ceil(float64(sampleRate) / minFreq))
	minTau := int(math.Floor(float64(sampleRate) / maxFreq))
	if maxTau > frameSize/2 {
		maxTau = frameSize / 2
	}
	if minTau < 2 {
		minTau = 2
	}
	if maxTau <= minTau {
		minDetectable := float64(sampleRate) / float64(frameSize/2)
		return nil, fmt.Errorf("%w: min detectable frequency is %.1f Hz", ErrEstimatorConfig, minDetectable)
	}
	return &Estimator{
		frameSize:  frameSize,
		sampleRate: sampleRate,
		minTau:     minTau,
		maxTau:     maxTau,
		threshold:  yinDefaultThreshold,
	}, nil
}

// Estimate runs YIN over one frame. ok is false when the frame is unusable
// (too short or silent); otherwise the caller gates on Clarity.
func (e *Estimator) Estimate(samples []float32) (Estimate, bool) {
	if len(samples) < e.frameSize {
		return Estimate{}, false
	}
	x := make([]float64, e.frameSize)
	energy := 0.0
	for i := 0; i < e.frameSize; i++ {
		x[i] = float64(samples[i])
		energy += x[i] * x[i]
	}
	if energy == 0 {
		return Estimate{}, false
	}

	d := e.difference(x)
	cmnd := cumulativeMeanNormalize(d)

	tau := e.absoluteThreshold(cmnd)
	if tau < 0 {
		// Nothing under the threshold; report the best lag anyway with
		// its (low) clarity and let the pipeline reject it.
		tau = e.minTau
		for i := e.minTau; i <= e.maxTau; i++ {
			if cmnd[i] < cmnd[tau] {
				tau = i
			}
		}
	}

	betterTau := parabolicInterpolate(cmnd, tau)
	clarity := 1 - cmnd[tau]
	if clarity < 0 {
		clarity = 0
	}
	return Estimate{
		Frequency: float64(e.sampleRate) / betterTau,
		Clarity:   clarity,
	}, true
}

// difference computes the YIN squared-difference function d(tau) using the
// identity d(tau) = p(0,N-tau) + p(tau,N) - 2*acf(tau), with the
// autocorrelation obtained through go-dsp's FFT.
func (e *Estimator) difference(x []float64) []float64 {
	n := len(x)

	// Zero-padded to 2n so the circular autocorrelation is linear.
	padded := make([]float64, 2*n)
	copy(padded, x)
	spectrum := fft.FFTReal(padded)
	for i, c := range spectrum {
		spectrum[i] = c * complex(real(c), -imag(c))
	}
	corr := fft.IFFT(spectrum)

	// Prefix sums of squared samples for the two power terms.
	prefix := make([]float64, n+1)
	for i := 0; i < n; i++ {
		prefix[i+1] = prefix[i] + x[i]*x[i]
	}

	d := make([]float64, e.maxTau+1)
	for tau := 0; tau <= e.maxTau; tau++ {
		powHead := prefix[n-tau]
		powTail := prefix[n] - prefix[tau]
		d[tau] = powHead + powTail - 2*real(corr[tau])
		if d[tau] < 0 {
			d[tau] = 0
		}
	}
	return d
}

// cumulativeMeanNormalize converts d to the normalized difference d',
// which is 1 at lag 0 and dips below the threshold at the period.
func cumulativeMeanNormalize(d []float64) []float64 {
	out := make([]float64, len(d))
	out[0] = 1
	runningSum := 0.0
	for tau := 1; tau < len(d); tau++ {
		runningSum += d[tau]
		if runningSum == 0 {
			out[tau] = 1
			continue
		}
		out[tau] = d[tau] * float64(tau) / runningSum
	}
	return out
}

// absoluteThreshold finds the first lag under the YIN threshold, then walks
// downhill to the local minimum. Returns -1 when no lag qualifies.
func (e *Estimator) absoluteThreshold(cmnd []float64) int {
	for tau := e.minTau; tau <= e.maxTau; tau++ {
		if cmnd[tau] < e.threshold {
			for tau+1 <= e.maxTau && cmnd[tau+1] < cmnd[tau] {
				tau++
			}
			return tau
		}
	}
	return -1
}

// parabolicInterpolate refines the lag estimate using the two neighbors.
func parabolicInterpolate(cmnd []float64, tau int) float64 {
	if tau <= 0 || tau+1 >= len(cmnd) {
		return float64(tau)
	}
	s0, s1, s2 := cmnd[tau-1], cmnd[tau], cmnd[tau+1]
	denom := 2 * (2*s1 - s2 - s0)
	if denom == 0 {
		return float64(tau)
	}
	return float64(tau) + (s2-s0)/denom
}
