package audio

import (
	"math"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/jaycincotta/emo1/internal/music"
)

// ToneSource is the playback side of the trainer: it schedules tone onsets
// against its own audio clock so cadences line up regardless of caller
// timing.
type ToneSource interface {
	// Now returns the current audio-clock time in seconds.
	Now() float64

	// PlayTone schedules a tone onset at an absolute audio-clock time.
	// Requests issued before the source is ready are queued, never dropped.
	PlayTone(pitch music.Pitch, whenSeconds, durationSeconds float64)

	// Ready reports whether the output stream is running.
	Ready() bool
}

const (
	voiceGain     = 0.18
	attackSeconds = 0.01
	releaseFrac   = 0.15 // tail portion of each tone faded out
)

type voice struct {
	freq  float64
	start int64 // sample index of onset
	end   int64
	phase float64
}

type pendingTone struct {
	pitch    music.Pitch
	when     float64
	duration float64
}

// Synth is a sine-voice ToneSource on a PortAudio output stream. It stands
// in for a sampled instrument; the same scheduling contract would drive a
// sampler.
type Synth struct {
	mu         sync.Mutex
	stream     *portaudio.Stream
	sampleRate int
	clock      int64 // samples rendered since Start
	voices     []*voice
	pending    []pendingTone
	started    bool
}

// NewSynth creates a tone source. Start opens the output stream.
func NewSynth(sampleRate int) *Synth {
	return &Synth{sampleRate: sampleRate}
}

// Start opens and starts the output stream, then flushes any tones queued
// while the source was loading.
func (s *Synth) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if err := portaudio.Initialize(); err != nil {
		return err
	}
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(s.sampleRate), 0, s.render)
	if err != nil {
		portaudio.Terminate()
		return err
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return err
	}

	s.mu.Lock()
	s.stream = stream
	s.started = true
	queued := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, t := range queued {
		s.PlayTone(t.pitch, t.when, t.duration)
	}
	return nil
}

// Stop halts playback and releases the stream.
func (s *Synth) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	stream := s.stream
	s.started = false
	s.stream = nil
	s.voices = nil
	s.mu.Unlock()

	if err := stream.Stop(); err != nil {
		return err
	}
	if err := stream.Close(); err != nil {
		return err
	}
	return portaudio.Terminate()
}

// Ready reports whether the output stream is running.
func (s *Synth) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Now returns the audio-clock time in seconds since Start.
func (s *Synth) Now() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return float64(s.clock) / float64(s.sampleRate)
}

// PlayTone schedules a sine tone at an absolute audio-clock time. Onsets in
// the past start immediately.
func (s *Synth) PlayTone(pitch music.Pitch, whenSeconds, durationSeconds float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		s.pending = append(s.pending, pendingTone{pitch, whenSeconds, durationSeconds})
		return
	}

	start := int64(whenSeconds * float64(s.sampleRate))
	if start < s.clock {
		start = s.clock
	}
	s.voices = append(s.voices, &voice{
		freq:  pitch.Frequency(),
		start: start,
		end:   start + int64(durationSeconds*float64(s.sampleRate)),
	})
}

// render is the output stream callback.
func (s *Synth) render(out []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	attack := attackSeconds * float64(s.sampleRate)
	for i := range out {
		t := s.clock + int64(i)
		sum := 0.0
		for _, v := range s.voices {
			if t < v.start || t >= v.end {
				continue
			}
			env := 1.0
			if elapsed := float64(t - v.start); elapsed < attack {
				env = elapsed / attack
			}
			length := float64(v.end - v.start)
			if remaining := float64(v.end - t); remaining < length*releaseFrac {
				env = math.Min(env, remaining/(length*releaseFrac))
			}
			sum += math.Sin(v.phase) * voiceGain * env
			v.phase += 2 * math.Pi * v.freq / float64(s.sampleRate)
		}
		if sum > 0.95 {
			sum = 0.95
		} else if sum < -0.95 {
			sum = -0.95
		}
		out[i] = float32(sum)
	}
	s.clock += int64(len(out))

	// Prune finished voices.
	alive := s.voices[:0]
	for _, v := range s.voices {
		if v.end > s.clock {
			alive = append(alive, v)
		}
	}
	s.voices = alive
}
