package trainer

import (
	"math/rand"
	"sync"
	"time"

	"github.com/jaycincotta/emo1/internal/audio"
	"github.com/jaycincotta/emo1/internal/clock"
	"github.com/jaycincotta/emo1/internal/music"
)

// CycleState is the drill state machine position.
type CycleState int

const (
	StateIdle CycleState = iota
	StateCadencing
	StateNotePlaying
	StateWaiting // autoplay pause between drills
)

func (s CycleState) String() string {
	switch s {
	case StateCadencing:
		return "cadencing"
	case StateNotePlaying:
		return "note-playing"
	case StateWaiting:
		return "waiting"
	default:
		return "idle"
	}
}

// CycleConfig tunes one drill cycle instance.
type CycleConfig struct {
	CadenceTempo    Tempo
	AutoTempo       Tempo
	Autoplay        bool
	RepeatCadence   bool
	RandomKeyChance float64 // 0..1, rolled once per completed drill
	Low, High       music.Pitch
	Mode            NoteMode

	// NoteSeconds is the scheduled duration of the target tone;
	// NoteAssumedLen is how long the cycle assumes playback takes before
	// moving on (sample tails ring slightly past the nominal duration).
	NoteSeconds    float64
	NoteAssumedLen time.Duration

	// CadenceBuffer pads the post-cadence delay so the target never
	// overlaps the final chord.
	CadenceBuffer time.Duration
}

func (c *CycleConfig) fillDefaults() {
	if c.NoteSeconds == 0 {
		c.NoteSeconds = 1.5
	}
	if c.NoteAssumedLen == 0 {
		c.NoteAssumedLen = 1550 * time.Millisecond
	}
	if c.CadenceBuffer == 0 {
		c.CadenceBuffer = 300 * time.Millisecond
	}
}

// Cycle is a single-flight drill state machine: at most one cadence/note
// pair is in flight, and every deferred callback checks a generation
// counter so canceled timers are no-ops.
type Cycle struct {
	mu   sync.Mutex
	tone audio.ToneSource
	clk  clock.Clock
	rng  *rand.Rand
	cfg  CycleConfig

	state            CycleState
	key              music.Key
	target           music.Pitch
	hasTarget        bool
	firstTestDone    bool
	keyChangePending bool // next start must re-establish the key
	keyRollQueued    bool // random-key roll succeeded mid-cycle
	generation       int
	timer            clock.Timer
	deferred         func() // one retained start request while tone loads

	// OnTarget fires when a target tone starts playing. OnState fires on
	// every state transition. OnNoTarget fires when target selection
	// exhausts its attempt budget. All optional. Callbacks run with the
	// cycle lock held and must not call back into the Cycle.
	OnTarget    func(music.Pitch, music.Key)
	OnState     func(CycleState)
	OnKeyChange func(music.Key)
	OnNoTarget  func()
}

// NewCycle creates an idle drill cycle in the given key.
func NewCycle(tone audio.ToneSource, clk clock.Clock, rng *rand.Rand, key music.Key, cfg CycleConfig) *Cycle {
	cfg.fillDefaults()
	return &Cycle{
		tone:  tone,
		clk:   clk,
		rng:   rng,
		cfg:   cfg,
		key:   key,
		state: StateIdle,
	}
}

// State returns the current state.
func (c *Cycle) State() CycleState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Key returns the current key center.
func (c *Cycle) Key() music.Key {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.key
}

// Target returns the current drill target, if one is set.
func (c *Cycle) Target() (music.Pitch, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.target, c.hasTarget
}

// Play starts a drill. If the tone source is still loading, the request is
// retained (latest wins) and replayed by ToneReady.
func (c *Cycle) Play() {
	if !c.tone.Ready() {
		c.mu.Lock()
		c.deferred = c.Play
		c.mu.Unlock()
		return
	}
	c.mu.Lock()
	c.begin(false)
	c.mu.Unlock()
}

// Again replays the cadence and the same target, regardless of the
// repeat-cadence setting.
func (c *Cycle) Again() {
	if !c.tone.Ready() {
		c.mu.Lock()
		c.deferred = c.Again
		c.mu.Unlock()
		return
	}
	c.mu.Lock()
	if !c.hasTarget {
		c.begin(false)
	} else {
		c.begin(true)
	}
	c.mu.Unlock()
}

// NewKey switches to a different key and immediately starts a drill there.
func (c *Cycle) NewKey() {
	if !c.tone.Ready() {
		c.mu.Lock()
		c.deferred = c.NewKey
		c.mu.Unlock()
		return
	}
	c.mu.Lock()
	c.changeKeyLocked()
	c.begin(false)
	c.mu.Unlock()
}

// ToneReady runs the one retained start request, if any.
func (c *Cycle) ToneReady() {
	c.mu.Lock()
	run := c.deferred
	c.deferred = nil
	c.mu.Unlock()
	if run != nil {
		run()
	}
}

// Stop cancels all pending work and returns to idle. The target clears.
func (c *Cycle) Stop() {
	c.mu.Lock()
	c.generation++
	c.stopTimerLocked()
	c.hasTarget = false
	c.deferred = nil
	c.setStateLocked(StateIdle)
	c.mu.Unlock()
}

// changeKeyLocked picks a different key and flags the pending change.
func (c *Cycle) changeKeyLocked() {
	next := PickKey(c.rng, c.key)
	c.key = next
	c.keyChangePending = true
	c.hasTarget = false
	if cb := c.OnKeyChange; cb != nil {
		cb(next)
	}
}

// begin launches one cadence-then-note sequence, preempting anything in
// flight. replay keeps the current target and always cadences.
func (c *Cycle) begin(replay bool) {
	c.generation++
	gen := c.generation
	c.stopTimerLocked()

	if c.keyRollQueued {
		c.keyRollQueued = false
		c.changeKeyLocked()
	}

	needCadence := replay || !c.firstTestDone || c.keyChangePending || c.cfg.RepeatCadence
	if !needCadence {
		c.playTarget(gen, replay)
		return
	}

	c.setStateLocked(StateCadencing)
	total := Cadence(c.tone, c.key, c.cfg.CadenceTempo)
	c.keyChangePending = false
	delay := time.Duration(total*float64(time.Second)) + c.cfg.CadenceBuffer
	c.timer = c.clk.AfterFunc(delay, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if gen != c.generation {
			return
		}
		c.playTarget(gen, replay)
	})
}

// playTarget picks (or keeps) the target and schedules its playback and
// the completion callback. Caller holds mu.
func (c *Cycle) playTarget(gen int, replay bool) {
	if !replay || !c.hasTarget {
		target, err := PickTarget(c.rng, c.key, c.cfg.Low, c.cfg.High, c.cfg.Mode)
		if err != nil {
			c.setStateLocked(StateIdle)
			c.hasTarget = false
			if cb := c.OnNoTarget; cb != nil {
				cb()
			}
			return
		}
		c.target = target
		c.hasTarget = true
	}
	c.firstTestDone = true

	PlayNote(c.tone, c.target, c.cfg.NoteSeconds)
	c.setStateLocked(StateNotePlaying)
	if cb := c.OnTarget; cb != nil {
		target, key := c.target, c.key
		cb(target, key)
	}

	c.timer = c.clk.AfterFunc(c.cfg.NoteAssumedLen, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if gen != c.generation {
			return
		}
		c.noteDone(gen)
	})
}

// noteDone runs when the target playback is assumed finished. Caller holds
// mu via the timer wrapper.
func (c *Cycle) noteDone(gen int) {
	if !c.cfg.Autoplay {
		c.setStateLocked(StateIdle)
		return
	}

	// Roll the random key chance now; the change applies on the next
	// cycle rather than mid-note.
	if c.cfg.RandomKeyChance > 0 && c.rng.Float64() < c.cfg.RandomKeyChance {
		c.keyRollQueued = true
	}

	c.setStateLocked(StateWaiting)
	c.timer = c.clk.AfterFunc(c.cfg.AutoTempo.DrillPause(), func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if gen != c.generation {
			return
		}
		c.begin(false)
	})
}

func (c *Cycle) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Cycle) setStateLocked(s CycleState) {
	if c.state == s {
		return
	}
	c.state = s
	if cb := c.OnState; cb != nil {
		cb(s)
	}
}
