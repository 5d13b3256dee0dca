package ui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jaycincotta/emo1/internal/music"
	"github.com/jaycincotta/emo1/internal/pitch"
	"github.com/jaycincotta/emo1/internal/trainer"
)

// How long an answer reveal stays on screen (milliseconds)
const revealHold = 1200

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			PaddingLeft(2).
			PaddingRight(2).
			MarginBottom(1)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#CCCCCC"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))

	keyStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#005F87")).
			Padding(0, 1)

	noteBoxStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#333333")).
			Padding(1, 4).
			MarginBottom(1)

	// Outcome colors
	outcomeColors = map[trainer.Outcome]string{
		trainer.OutcomeExact: "#00AF00", // green
		trainer.OutcomeNear:  "#D7AF00", // amber
		trainer.OutcomeWrong: "#D70000", // red
	}

	meterOn  = lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00"))
	meterOff = lipgloss.NewStyle().Foreground(lipgloss.Color("#333333"))
)

// Mode selects which trainer surface the UI drives.
type Mode int

const (
	ModeLive Mode = iota
	ModeDrill
)

// Controls are the trainer entry points bound to key presses. Any nil
// field disables its key.
type Controls struct {
	Play   func()
	Again  func()
	NewKey func()
	Stop   func()
}

// TickMsg drives periodic redraw and reveal expiry.
type TickMsg time.Time

// SnapshotMsg carries the latest detection pipeline state.
type SnapshotMsg pitch.Snapshot

// TargetMsg announces a target tone starting playback.
type TargetMsg struct {
	Pitch music.Pitch
	Key   music.Key
}

// ResultMsg carries one classified attempt.
type ResultMsg trainer.Result

// KeyChangeMsg announces a key change.
type KeyChangeMsg music.Key

// StateMsg announces a drill state transition.
type StateMsg trainer.CycleState

// ErrMsg carries a fatal engine error for display.
type ErrMsg struct{ Err error }

// Model is the terminal UI state for both live and drill modes.
type Model struct {
	mode     Mode
	controls Controls

	key      music.Key
	state    trainer.CycleState
	snap     pitch.Snapshot
	hasTone  bool
	target   music.Pitch
	resolved bool

	result     *trainer.Result
	resultTime time.Time
	metrics    trainer.Metrics

	err    error
	width  int
	height int
}

// NewModel creates a UI model for the given mode.
func NewModel(mode Mode, key music.Key, controls Controls) Model {
	return Model{mode: mode, key: key, controls: controls}
}

func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func (m Model) Init() tea.Cmd {
	return tick()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if m.controls.Stop != nil {
				m.controls.Stop()
			}
			return m, tea.Quit
		case " ", "enter":
			if m.controls.Play != nil {
				m.controls.Play()
			}
		case "a":
			if m.controls.Again != nil {
				m.controls.Again()
			}
		case "k":
			if m.controls.NewKey != nil {
				m.controls.NewKey()
			}
		case "s":
			if m.controls.Stop != nil {
				m.controls.Stop()
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case TickMsg:
		if m.result != nil && !m.result.Resolved &&
			time.Since(m.resultTime) > revealHold*time.Millisecond {
			m.result = nil
		}
		return m, tick()

	case SnapshotMsg:
		m.snap = pitch.Snapshot(msg)

	case TargetMsg:
		m.target = msg.Pitch
		m.key = msg.Key
		m.hasTone = true
		m.resolved = false
		m.result = nil

	case ResultMsg:
		r := trainer.Result(msg)
		m.result = &r
		m.resultTime = time.Now()
		m.metrics = r.Metrics
		if r.Resolved {
			m.resolved = true
		}

	case KeyChangeMsg:
		m.key = music.Key(msg)
		m.hasTone = false
		m.result = nil

	case StateMsg:
		m.state = trainer.CycleState(msg)

	case ErrMsg:
		m.err = msg.Err
	}

	return m, nil
}

func (m Model) View() string {
	title := "EMO - Ear Training"
	if m.mode == ModeDrill {
		title = "EMO - Drill"
	}
	s := titleStyle.Render(title) + "\n"

	s += keyStyle.Render("Key of "+string(m.key)) + "  "
	s += infoStyle.Render(m.stateLine()) + "\n\n"

	if m.err != nil {
		s += lipgloss.NewStyle().Foreground(lipgloss.Color("#D70000")).
			Render("audio error: "+m.err.Error()) + "\n\n"
	}

	s += m.noteBox() + "\n"

	if m.mode == ModeLive {
		s += m.meter() + "\n"
		s += infoStyle.Render(m.metricsLine()) + "\n"
	}

	s += "\n" + dimStyle.Render(m.helpLine())
	return s
}

// stateLine describes what the engine is doing right now.
func (m Model) stateLine() string {
	if m.mode == ModeDrill {
		return m.state.String()
	}
	switch {
	case !m.hasTone:
		return "press space to start"
	case m.resolved:
		return "answered"
	default:
		return "sing or play the note you heard"
	}
}

// noteBox renders the central feedback panel: the answer reveal in live
// mode, the played note in drill mode, or the detected pitch.
func (m Model) noteBox() string {
	if m.result != nil {
		color := outcomeColors[m.result.Outcome]
		box := noteBoxStyle.Background(lipgloss.Color(color))
		label := m.result.Syllable
		if m.result.Resolved {
			label += "  " + m.target.Name()
		}
		return box.Render(label) + "\n" +
			infoStyle.Render(m.result.Outcome.String())
	}

	if m.mode == ModeDrill && m.hasTone {
		root := music.RootPitch(m.key)
		sol := music.SolfegeForDegree(music.DegreeOf(m.target, root))
		box := noteBoxStyle.Background(lipgloss.Color("#005F87"))
		return box.Render(sol.Syllable + "  " + m.target.Name())
	}

	if m.mode == ModeLive && m.hasTone && !m.resolved {
		box := noteBoxStyle.Background(lipgloss.Color("#444444"))
		heard := "?"
		if m.snap.HasEffect {
			heard = m.snap.Effective.Name()
		}
		return box.Render(heard)
	}

	return infoStyle.Render("Listening for audio...")
}

// meter renders the mic level as a bar scaled to a loud-singing RMS.
func (m Model) meter() string {
	const width = 24
	level := int(m.snap.RMS / 0.12 * width)
	if level > width {
		level = width
	}
	bar := meterOn.Render(strings.Repeat("█", level)) +
		meterOff.Render(strings.Repeat("░", width-level))
	status := "mic"
	if !m.snap.Listening {
		status = "mic off"
	}
	return fmt.Sprintf("%s %s", bar, dimStyle.Render(status))
}

func (m Model) metricsLine() string {
	acc := 0.0
	if m.metrics.Attempts > 0 {
		acc = float64(m.metrics.Exact+m.metrics.Near) / float64(m.metrics.Attempts) * 100
	}
	return fmt.Sprintf("targets %d | attempts %d | first-try %d | streak %d | %.0f%%",
		m.metrics.Targets, m.metrics.Attempts, m.metrics.FirstTry,
		m.metrics.Streak, acc)
}

func (m Model) helpLine() string {
	if m.mode == ModeDrill {
		return "space play | a again | k new key | s stop | q quit"
	}
	return "space start | a again | k new key | s stop | q quit"
}
