package trainer

import (
	"math/rand"
	"sync"
	"time"

	"github.com/jaycincotta/emo1/internal/audio"
	"github.com/jaycincotta/emo1/internal/clock"
	"github.com/jaycincotta/emo1/internal/music"
)

// LiveConfig tunes a live (sing-back) session.
type LiveConfig struct {
	CadenceTempo    Tempo
	RepeatCadence   bool // cadence between targets, not just on key change
	RandomKeyChance float64
	Low, High       music.Pitch
	Mode            NoteMode
	Strict          bool
	StreakTarget    int

	NoteSeconds   float64
	CadenceBuffer time.Duration
	// SuppressExtra extends evaluation suppression past the end of
	// target playback so speaker bleed cannot self-answer.
	SuppressExtra time.Duration
	// AdvancePause is the reveal time between a resolved target and the
	// next one.
	AdvancePause time.Duration
}

func (c *LiveConfig) fillDefaults() {
	if c.NoteSeconds == 0 {
		c.NoteSeconds = 1.5
	}
	if c.CadenceBuffer == 0 {
		c.CadenceBuffer = 300 * time.Millisecond
	}
	if c.SuppressExtra == 0 {
		c.SuppressExtra = 400 * time.Millisecond
	}
	if c.AdvancePause == 0 {
		c.AdvancePause = 1200 * time.Millisecond
	}
}

// Live runs call-and-response against the microphone: cadence, hidden
// target, then evaluation of stabilized detected pitches until the target
// resolves and the session advances.
type Live struct {
	mu         sync.Mutex
	tone       audio.ToneSource
	clk        clock.Clock
	rng        *rand.Rand
	cfg        LiveConfig
	classifier *Classifier

	key              music.Key
	running          bool
	firstTestDone    bool
	keyChangePending bool
	generation       int
	timer            clock.Timer
	deferred         func()

	// Optional callbacks; run with the session lock held and must not
	// call back into Live.
	OnTarget    func(music.Pitch, music.Key)
	OnResult    func(Result)
	OnKeyChange func(music.Key)
	OnNoTarget  func()
}

// NewLive creates a stopped live session in the given key.
func NewLive(tone audio.ToneSource, clk clock.Clock, rng *rand.Rand, key music.Key, cfg LiveConfig) *Live {
	cfg.fillDefaults()
	return &Live{
		tone:       tone,
		clk:        clk,
		rng:        rng,
		cfg:        cfg,
		classifier: NewClassifier(clk, cfg.Strict, cfg.StreakTarget),
		key:        key,
	}
}

// Metrics returns the session metrics so far.
func (l *Live) Metrics() Metrics { return l.classifier.Metrics() }

// Key returns the current key center.
func (l *Live) Key() music.Key {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.key
}

// Target returns the hidden target, if armed.
func (l *Live) Target() (music.Pitch, bool) { return l.classifier.Target() }

// Start cadences and arms the first target. Requests made while the tone
// source is loading are retained, latest wins.
func (l *Live) Start() {
	if !l.tone.Ready() {
		l.mu.Lock()
		l.deferred = l.Start
		l.mu.Unlock()
		return
	}
	l.mu.Lock()
	l.running = true
	l.beginTest(false, false)
	l.mu.Unlock()
}

// Again replays the cadence and the same target.
func (l *Live) Again() {
	if !l.tone.Ready() {
		l.mu.Lock()
		l.deferred = l.Again
		l.mu.Unlock()
		return
	}
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	_, hasTarget := l.classifier.Target()
	l.beginTest(hasTarget, true)
	l.mu.Unlock()
}

// NewKey moves to a different key and starts a fresh target there.
func (l *Live) NewKey() {
	if !l.tone.Ready() {
		l.mu.Lock()
		l.deferred = l.NewKey
		l.mu.Unlock()
		return
	}
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.changeKeyLocked()
	l.beginTest(false, false)
	l.mu.Unlock()
}

// ToneReady runs the one retained start request, if any.
func (l *Live) ToneReady() {
	l.mu.Lock()
	run := l.deferred
	l.deferred = nil
	l.mu.Unlock()
	if run != nil {
		run()
	}
}

// Stop cancels pending work and disarms evaluation.
func (l *Live) Stop() {
	l.mu.Lock()
	l.running = false
	l.generation++
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	l.deferred = nil
	l.mu.Unlock()
	l.classifier.ClearTarget()
}

// HandleStable feeds one stabilized detected pitch from the detection
// pipeline. Safe to call from the pipeline goroutine.
func (l *Live) HandleStable(p music.Pitch) {
	res, ok := l.classifier.Evaluate(p)
	if !ok {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.running {
		return
	}

	if cb := l.OnResult; cb != nil {
		cb(res)
	}

	switch {
	case res.Resolved:
		l.scheduleAdvance(res.KeyChange)
	case res.ReServe:
		// Two straight misses: play the same target again to refocus.
		l.beginTest(true, l.cfg.RepeatCadence)
	}
}

// changeKeyLocked switches to a different key and drops the target.
func (l *Live) changeKeyLocked() {
	l.key = PickKey(l.rng, l.key)
	l.keyChangePending = true
	l.classifier.ClearTarget()
	if cb := l.OnKeyChange; cb != nil {
		cb(l.key)
	}
}

// scheduleAdvance waits out the reveal pause, then moves to the next
// target, changing key first when the streak or the random roll says so.
func (l *Live) scheduleAdvance(keyChange bool) {
	l.generation++
	gen := l.generation
	if l.timer != nil {
		l.timer.Stop()
	}

	l.timer = l.clk.AfterFunc(l.cfg.AdvancePause, func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if gen != l.generation || !l.running {
			return
		}
		if keyChange || (l.cfg.RandomKeyChance > 0 && l.rng.Float64() < l.cfg.RandomKeyChance) {
			l.changeKeyLocked()
		}
		l.beginTest(false, false)
	})
}

// beginTest runs one cadence-then-target sequence. replay keeps the
// current target; forceCadence plays the cadence regardless of settings.
// Caller holds mu.
func (l *Live) beginTest(replay, forceCadence bool) {
	l.generation++
	gen := l.generation
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}

	needCadence := forceCadence || !l.firstTestDone || l.keyChangePending || l.cfg.RepeatCadence
	if !needCadence {
		l.playTarget(replay)
		return
	}

	total := Cadence(l.tone, l.key, l.cfg.CadenceTempo)
	l.keyChangePending = false
	delay := time.Duration(total*float64(time.Second)) + l.cfg.CadenceBuffer
	l.timer = l.clk.AfterFunc(delay, func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if gen != l.generation || !l.running {
			return
		}
		l.playTarget(replay)
	})
}

// playTarget plays the (new or kept) hidden target and arms evaluation,
// suppressed until playback plus the bleed margin has passed. Caller
// holds mu.
func (l *Live) playTarget(replay bool) {
	target, hasTarget := l.classifier.Target()
	if !replay || !hasTarget {
		var err error
		target, err = PickTarget(l.rng, l.key, l.cfg.Low, l.cfg.High, l.cfg.Mode)
		if err != nil {
			if cb := l.OnNoTarget; cb != nil {
				cb()
			}
			return
		}
		replay = false
	}
	l.firstTestDone = true

	PlayNote(l.tone, target, l.cfg.NoteSeconds)
	suppress := time.Duration(l.cfg.NoteSeconds*float64(time.Second)) + l.cfg.SuppressExtra
	if replay {
		l.classifier.ReArm(suppress)
	} else {
		l.classifier.SetTarget(target, l.key, suppress)
	}

	if cb := l.OnTarget; cb != nil {
		cb(target, l.key)
	}
}
