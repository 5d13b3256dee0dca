package pitch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jaycincotta/emo1/internal/audio"
	"github.com/jaycincotta/emo1/internal/clock"
	"github.com/jaycincotta/emo1/internal/music"
)

// Options tunes the detection pipeline. Zero values are replaced by the
// defaults below.
type Options struct {
	FrameInterval time.Duration // analysis cadence, ~one animation frame

	MinClarity   float64 // raw acceptance gate
	AmpThreshold float64 // raw silence gate
	MinFrequency float64 // Hz
	MaxFrequency float64 // Hz

	MinDetectable music.Pitch // estimator trust window (~E1)
	MaxDetectable music.Pitch // (~D7)
	HighPitchGate music.Pitch // relaxed amp gate above this pitch

	IdleClear   time.Duration // silence before the stable value clears
	Provisional time.Duration // raw hold before it shows as effective

	Sensitivity Sensitivity
}

func (o *Options) fillDefaults() {
	if o.FrameInterval == 0 {
		o.FrameInterval = 16 * time.Millisecond
	}
	if o.MinClarity == 0 {
		o.MinClarity = 0.80
	}
	if o.AmpThreshold == 0 {
		o.AmpThreshold = 0.01
	}
	if o.MinFrequency == 0 {
		o.MinFrequency = 40
	}
	if o.MaxFrequency == 0 {
		o.MaxFrequency = 2500
	}
	if o.MinDetectable == 0 {
		o.MinDetectable = 28
	}
	if o.MaxDetectable == 0 {
		o.MaxDetectable = 98
	}
	if o.HighPitchGate == 0 {
		o.HighPitchGate = 84
	}
	if o.IdleClear == 0 {
		o.IdleClear = 1400 * time.Millisecond
	}
	if o.Provisional == 0 {
		o.Provisional = 150 * time.Millisecond
	}
}

// Snapshot is the pipeline state as seen by consumers. Effective is what a
// UI should display; Stable is the only value safe to classify against.
type Snapshot struct {
	Listening bool
	Err       error

	Raw       music.Pitch
	HasRaw    bool
	Stable    music.Pitch
	HasStable bool
	Effective music.Pitch
	HasEffect bool

	RMS     float64
	Clarity float64
}

// Pipeline runs the per-frame detection loop: capture, energy gate,
// estimation, stabilization, idle clearing. All mutation happens on the
// Run goroutine; Snapshot is safe from anywhere.
type Pipeline struct {
	capt audio.Capturer
	est  *Estimator
	stab *Stabilizer
	amb  Ambient
	clk  clock.Clock
	opts Options

	// OnStable is invoked from the Run goroutine each time a new
	// stabilized pitch is promoted. Optional.
	OnStable func(music.Pitch)
	// OnClear is invoked when the stabilized value is dropped after the
	// idle timeout. Optional.
	OnClear func()

	mu           sync.Mutex
	listening    bool
	err          error
	raw          music.Pitch
	hasRaw       bool
	rawSince     time.Time
	lastActivity time.Time
	lastRMS      float64
	lastClarity  float64
}

// NewPipeline wires a capturer and estimator into a detection pipeline.
func NewPipeline(capt audio.Capturer, est *Estimator, clk clock.Clock, opts Options) *Pipeline {
	opts.fillDefaults()
	return &Pipeline{
		capt: capt,
		est:  est,
		stab: NewStabilizer(clk),
		clk:  clk,
		opts: opts,
	}
}

// Run starts capture and processes frames until ctx is cancelled. A capture
// failure is sticky: Run returns it and the snapshot reports it until the
// caller rebuilds the pipeline.
func (p *Pipeline) Run(ctx context.Context) error {
	if err := p.capt.Start(); err != nil {
		err = fmt.Errorf("pitch pipeline: %w", err)
		p.mu.Lock()
		p.err = err
		p.listening = false
		p.mu.Unlock()
		return err
	}
	defer p.capt.Stop()

	p.mu.Lock()
	p.listening = true
	p.lastActivity = p.clk.Now()
	p.mu.Unlock()

	ticker := time.NewTicker(p.opts.FrameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.mu.Lock()
			p.listening = false
			p.mu.Unlock()
			return nil
		case <-ticker.C:
			p.step()
		}
	}
}

// Snapshot returns the current public pipeline state.
func (p *Pipeline) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	stable, hasStable := p.stab.Stable()
	snap := Snapshot{
		Listening: p.listening,
		Err:       p.err,
		Raw:       p.raw,
		HasRaw:    p.hasRaw,
		Stable:    stable,
		HasStable: hasStable,
		RMS:       p.lastRMS,
		Clarity:   p.lastClarity,
	}

	switch {
	case hasStable:
		snap.Effective, snap.HasEffect = stable, true
	case p.hasRaw && p.clk.Now().Sub(p.rawSince) >= p.opts.Provisional:
		// No stable value yet but the raw candidate has persisted long
		// enough to show provisionally. Display only, never classified.
		snap.Effective, snap.HasEffect = p.raw, true
	}
	return snap
}

// thresholds returns the active tuning for this frame.
func (p *Pipeline) thresholds() Thresholds {
	if p.opts.Sensitivity == SensitivityAuto {
		return p.amb.Thresholds()
	}
	return p.opts.Sensitivity.Thresholds()
}

// step processes one analysis frame.
func (p *Pipeline) step() {
	buf, err := p.capt.GetBuffer()
	if err != nil || len(buf.Samples) == 0 {
		return
	}

	now := p.clk.Now()
	rms := buf.RMS()
	th := p.thresholds()

	p.mu.Lock()
	p.lastRMS = rms
	p.mu.Unlock()

	ampGate := p.opts.AmpThreshold
	if th.AmpThreshold > ampGate {
		ampGate = th.AmpThreshold
	}
	p.mu.Lock()
	highRaw := p.hasRaw && p.raw >= p.opts.HighPitchGate
	p.mu.Unlock()
	if highRaw {
		// Quiet microphones under-capture high harmonics; keep tracking
		// an established high note at a lower level.
		ampGate *= 0.6
	}

	if rms < ampGate {
		if p.opts.Sensitivity == SensitivityAuto {
			p.amb.ObserveRMS(rms)
		}
		p.maybeIdleClear(now, rms, ampGate)
		return
	}

	// The idle timeout counts from the moment the signal drops, so every
	// frame above the gate refreshes activity, pitched or not.
	p.mu.Lock()
	p.lastActivity = now
	p.mu.Unlock()

	est, ok := p.est.Estimate(buf.Samples)
	if !ok {
		return
	}

	p.mu.Lock()
	p.lastClarity = est.Clarity
	p.mu.Unlock()

	minClarity := p.opts.MinClarity
	if th.MinClarity > minClarity {
		minClarity = th.MinClarity
	}
	if est.Clarity < minClarity {
		if p.opts.Sensitivity == SensitivityAuto {
			p.amb.ObserveClarity(est.Clarity)
		}
		p.maybeIdleClear(now, rms, ampGate)
		return
	}
	if est.Frequency < p.opts.MinFrequency || est.Frequency > p.opts.MaxFrequency {
		return
	}

	candidate := music.PitchForFrequency(est.Frequency)
	if candidate < p.opts.MinDetectable || candidate > p.opts.MaxDetectable {
		return
	}

	// Raw is published regardless of stabilization so the UI can show
	// immediate feedback.
	p.mu.Lock()
	if !p.hasRaw || p.raw != candidate {
		p.raw = candidate
		p.rawSince = now
	}
	p.hasRaw = true
	p.mu.Unlock()

	if promoted, ok := p.observeStable(candidate, est.Clarity, th); ok {
		p.mu.Lock()
		cb := p.OnStable
		p.mu.Unlock()
		if cb != nil {
			cb(promoted)
		}
	}
}

func (p *Pipeline) observeStable(candidate music.Pitch, clarity float64, th Thresholds) (music.Pitch, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stab.Observe(candidate, clarity, th)
}

// maybeIdleClear drops stale raw/stable values once the signal has been
// near silence past the idle timeout.
func (p *Pipeline) maybeIdleClear(now time.Time, rms, ampGate float64) {
	if rms >= ampGate*0.5 {
		return
	}

	p.mu.Lock()
	_, hasStable := p.stab.Stable()
	if (!hasStable && !p.hasRaw) || now.Sub(p.lastActivity) < p.opts.IdleClear {
		p.mu.Unlock()
		return
	}
	p.stab.Clear()
	p.raw = 0
	p.hasRaw = false
	p.lastActivity = now
	cb := p.OnClear
	p.mu.Unlock()

	if cb != nil {
		cb()
	}
}
