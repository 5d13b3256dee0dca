package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all runtime tuning, loaded from environment variables.
// The detection thresholds were tuned against real microphone input; they
// are defaults, not constants, so a noisy room can be worked around without
// a rebuild.
type Config struct {
	// Audio I/O
	SampleRate    int
	FrameSize     int     // samples per analysis frame
	Amplification float64 // input gain applied to captured samples

	// Pitch detection
	MinClarity    float64 // estimator confidence floor
	AmpThreshold  float64 // RMS silence gate
	MinFrequency  float64 // Hz, plausible voice/instrument floor
	MaxFrequency  float64 // Hz, plausible ceiling
	MinDetectable int     // lowest trustworthy pitch (~E1)
	MaxDetectable int     // highest trustworthy pitch (~D7)
	HighPitchGate int     // above this pitch the RMS gate relaxes
	IdleClear     time.Duration
	Provisional   time.Duration // raw candidate hold before display

	// Drill behavior
	LowPitch        int    // target range floor
	HighPitch       int    // target range ceiling
	NoteMode        string // diatonic, nondiatonic, chromatic
	CadenceSpeed    string // slow, medium, fast
	AutoSpeed       string // slow, medium, fast
	Autoplay        bool   // keep serving drills; off = one drill per play
	RepeatCadence   bool
	RandomKeyChance float64 // 0..1 per-cycle key change probability
	StreakTarget    int     // exact streak that forces a key change
	Strict          bool    // octave-equivalent answers do not count
	Sensitivity     string  // low, medium, high, auto
}

// Load reads configuration from environment variables with sane defaults.
func Load() Config {
	return Config{
		SampleRate:    envInt("EMO_SAMPLE_RATE", 44100),
		FrameSize:     envInt("EMO_FRAME_SIZE", 2048),
		Amplification: envFloat("EMO_AMPLIFICATION", 1.0),

		MinClarity:    envFloat("EMO_MIN_CLARITY", 0.80),
		AmpThreshold:  envFloat("EMO_AMP_THRESHOLD", 0.01),
		MinFrequency:  envFloat("EMO_MIN_FREQUENCY", 40),
		MaxFrequency:  envFloat("EMO_MAX_FREQUENCY", 2500),
		MinDetectable: envInt("EMO_MIN_DETECTABLE", 28),
		MaxDetectable: envInt("EMO_MAX_DETECTABLE", 98),
		HighPitchGate: envInt("EMO_HIGH_PITCH_GATE", 84),
		IdleClear:     envDuration("EMO_IDLE_CLEAR_MS", 1400*time.Millisecond),
		Provisional:   envDuration("EMO_PROVISIONAL_MS", 150*time.Millisecond),

		LowPitch:        envInt("EMO_LOW_PITCH", 48),
		HighPitch:       envInt("EMO_HIGH_PITCH", 72),
		NoteMode:        envStr("EMO_NOTE_MODE", "diatonic"),
		CadenceSpeed:    envStr("EMO_CADENCE_SPEED", "medium"),
		AutoSpeed:       envStr("EMO_AUTO_SPEED", "medium"),
		Autoplay:        envBool("EMO_AUTOPLAY", true),
		RepeatCadence:   envBool("EMO_REPEAT_CADENCE", false),
		RandomKeyChance: envFloat("EMO_RANDOM_KEY_CHANCE", 0),
		StreakTarget:    envInt("EMO_STREAK_TARGET", 10),
		Strict:          envBool("EMO_STRICT", false),
		Sensitivity:     envStr("EMO_SENSITIVITY", "auto"),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// envDuration reads a millisecond count.
func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Millisecond
		}
	}
	return fallback
}
