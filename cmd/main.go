package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jaycincotta/emo1/internal/audio"
	"github.com/jaycincotta/emo1/internal/clock"
	"github.com/jaycincotta/emo1/internal/config"
	"github.com/jaycincotta/emo1/internal/music"
	"github.com/jaycincotta/emo1/internal/pitch"
	"github.com/jaycincotta/emo1/internal/trainer"
	"github.com/jaycincotta/emo1/internal/ui"
)

var (
	deviceID int
	keyName  string
)

func main() {
	root := &cobra.Command{
		Use:           "emo",
		Short:         "Movable-do ear training in the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().IntVarP(&deviceID, "device", "d", -1,
		"input device ID (-1 = system default, see 'emo devices')")
	root.PersistentFlags().StringVarP(&keyName, "key", "k", "C",
		"starting key center")

	root.AddCommand(
		&cobra.Command{
			Use:   "live",
			Short: "Sing-back training: cadence, hidden note, microphone grading",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runLive(config.Load())
			},
		},
		&cobra.Command{
			Use:   "drill",
			Short: "Playback-only drills: cadence and note, no microphone",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runDrill(config.Load())
			},
		},
		&cobra.Command{
			Use:   "devices",
			Short: "List audio input devices",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runDevices()
			},
		},
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "emo:", err)
		os.Exit(1)
	}
}

func runDevices() error {
	devices, err := audio.Devices()
	if err != nil {
		return err
	}
	for _, d := range devices {
		marker := " "
		if d.Default {
			marker = "*"
		}
		fmt.Printf("%s %3d  %s\n", marker, d.ID, d.Name)
	}
	return nil
}

// setupDebugLog routes the standard logger to a file while the TUI owns the
// terminal. Without EMO_DEBUG, log output is discarded by bubbletea anyway.
func setupDebugLog() func() {
	if os.Getenv("EMO_DEBUG") == "" {
		return func() {}
	}
	f, err := tea.LogToFile("emo-debug.log", "emo")
	if err != nil {
		return func() {}
	}
	return func() { f.Close() }
}

func runDrill(cfg config.Config) error {
	cadenceTempo, err := trainer.ParseTempo(cfg.CadenceSpeed)
	if err != nil {
		return err
	}
	autoTempo, err := trainer.ParseTempo(cfg.AutoSpeed)
	if err != nil {
		return err
	}
	mode, err := trainer.ParseNoteMode(cfg.NoteMode)
	if err != nil {
		return err
	}
	closeLog := setupDebugLog()
	defer closeLog()

	synth := audio.NewSynth(cfg.SampleRate)
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	key := music.Key(keyName)

	cycle := trainer.NewCycle(synth, clock.Real{}, rng, key, trainer.CycleConfig{
		CadenceTempo:    cadenceTempo,
		AutoTempo:       autoTempo,
		Autoplay:        cfg.Autoplay,
		RepeatCadence:   cfg.RepeatCadence,
		RandomKeyChance: cfg.RandomKeyChance,
		Low:             music.Pitch(cfg.LowPitch),
		High:            music.Pitch(cfg.HighPitch),
		Mode:            mode,
	})

	model := ui.NewModel(ui.ModeDrill, key, ui.Controls{
		Play:   cycle.Play,
		Again:  cycle.Again,
		NewKey: cycle.NewKey,
		Stop:   cycle.Stop,
	})
	p := tea.NewProgram(model, tea.WithAltScreen())

	cycle.OnTarget = func(pt music.Pitch, k music.Key) { p.Send(ui.TargetMsg{Pitch: pt, Key: k}) }
	cycle.OnState = func(s trainer.CycleState) { p.Send(ui.StateMsg(s)) }
	cycle.OnKeyChange = func(k music.Key) { p.Send(ui.KeyChangeMsg(k)) }
	cycle.OnNoTarget = func() { p.Send(ui.ErrMsg{Err: trainer.ErrNoCandidate}) }

	go func() {
		if err := synth.Start(); err != nil {
			p.Send(ui.ErrMsg{Err: err})
			return
		}
		cycle.ToneReady()
	}()
	defer synth.Stop()

	_, err = p.Run()
	return err
}

func runLive(cfg config.Config) error {
	cadenceTempo, err := trainer.ParseTempo(cfg.CadenceSpeed)
	if err != nil {
		return err
	}
	mode, err := trainer.ParseNoteMode(cfg.NoteMode)
	if err != nil {
		return err
	}
	sensitivity, err := pitch.ParseSensitivity(cfg.Sensitivity)
	if err != nil {
		return err
	}
	closeLog := setupDebugLog()
	defer closeLog()

	capturer := audio.NewMicCapturer(deviceID, cfg.FrameSize, cfg.SampleRate, 1)
	capturer.SetAmplification(float32(cfg.Amplification))

	estimator, err := pitch.NewEstimator(cfg.FrameSize, cfg.SampleRate, cfg.MinFrequency, cfg.MaxFrequency)
	if err != nil {
		return err
	}

	synth := audio.NewSynth(cfg.SampleRate)
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	key := music.Key(keyName)

	session := trainer.NewLive(synth, clock.Real{}, rng, key, trainer.LiveConfig{
		CadenceTempo:    cadenceTempo,
		RepeatCadence:   cfg.RepeatCadence,
		RandomKeyChance: cfg.RandomKeyChance,
		Low:             music.Pitch(cfg.LowPitch),
		High:            music.Pitch(cfg.HighPitch),
		Mode:            mode,
		Strict:          cfg.Strict,
		StreakTarget:    cfg.StreakTarget,
	})

	pipeline := pitch.NewPipeline(capturer, estimator, clock.Real{}, pitch.Options{
		MinClarity:    cfg.MinClarity,
		AmpThreshold:  cfg.AmpThreshold,
		MinFrequency:  cfg.MinFrequency,
		MaxFrequency:  cfg.MaxFrequency,
		MinDetectable: music.Pitch(cfg.MinDetectable),
		MaxDetectable: music.Pitch(cfg.MaxDetectable),
		HighPitchGate: music.Pitch(cfg.HighPitchGate),
		IdleClear:     cfg.IdleClear,
		Provisional:   cfg.Provisional,
		Sensitivity:   sensitivity,
	})
	pipeline.OnStable = session.HandleStable

	model := ui.NewModel(ui.ModeLive, key, ui.Controls{
		Play:   session.Start,
		Again:  session.Again,
		NewKey: session.NewKey,
		Stop:   session.Stop,
	})
	p := tea.NewProgram(model, tea.WithAltScreen())

	session.OnTarget = func(pt music.Pitch, k music.Key) { p.Send(ui.TargetMsg{Pitch: pt, Key: k}) }
	session.OnResult = func(r trainer.Result) { p.Send(ui.ResultMsg(r)) }
	session.OnKeyChange = func(k music.Key) { p.Send(ui.KeyChangeMsg(k)) }
	session.OnNoTarget = func() { p.Send(ui.ErrMsg{Err: trainer.ErrNoCandidate}) }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := pipeline.Run(ctx); err != nil {
			p.Send(ui.ErrMsg{Err: err})
			return err
		}
		return nil
	})
	g.Go(func() error {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				p.Send(ui.SnapshotMsg(pipeline.Snapshot()))
			}
		}
	})

	go func() {
		if err := synth.Start(); err != nil {
			p.Send(ui.ErrMsg{Err: err})
			return
		}
		session.ToneReady()
	}()
	defer synth.Stop()

	_, runErr := p.Run()
	cancel()
	if err := g.Wait(); err != nil && runErr == nil {
		// Capture failures surface in the UI; report them on exit too.
		runErr = err
	}
	return runErr
}
