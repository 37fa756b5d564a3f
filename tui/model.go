// Package tui is the terminal front end for a recording session.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/bosley/voxlog/journal"
	"github.com/bosley/voxlog/recorder"
	"github.com/charmbracelet/lipgloss"

	tea "github.com/charmbracelet/bubbletea"
)

// Key bindings handled in handleKey.
const (
	KeyStart = "r"
	KeyStop  = "s"
	KeyReset = "x"
	KeySave  = "w"
	KeyQuit  = "q"
)

// Session is the part of the recording pipeline the TUI drives.
type Session interface {
	Start() (string, error)
	Stop() (recorder.Recording, error)
	Reset() error
	Save(ctx context.Context, kind string) (journal.Interaction, error)
}

// SnapshotMsg carries a recorder update.
type SnapshotMsg struct {
	Snapshot recorder.Snapshot
}

// SnapshotsClosedMsg is sent once the recorder stops publishing.
type SnapshotsClosedMsg struct{}

// ActionResultMsg reports the outcome of a start, stop or reset.
type ActionResultMsg struct {
	Action string
	Err    error
}

// SavedMsg reports a finished save. Err may be set alongside a stored
// interaction when the transcript could not be produced.
type SavedMsg struct {
	Interaction journal.Interaction
	Err         error
}

// Model is the root bubbletea model.
type Model struct {
	ctx       context.Context
	session   Session
	snapshots <-chan recorder.Snapshot

	snap   recorder.Snapshot
	saving bool

	// Last saved transcript
	transcript string

	errorMessage string
	notice       string

	width  int
	height int
}

func New(ctx context.Context, sess Session, snapshots <-chan recorder.Snapshot) Model {
	return Model{
		ctx:       ctx,
		session:   sess,
		snapshots: snapshots,
		notice:    "Press r to record",
	}
}

func (m Model) Init() tea.Cmd {
	return waitForSnapshot(m.snapshots)
}

func waitForSnapshot(ch <-chan recorder.Snapshot) tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-ch
		if !ok {
			return SnapshotsClosedMsg{}
		}
		return SnapshotMsg{Snapshot: snap}
	}
}

func actionCmd(action string, fn func() error) tea.Cmd {
	return func() tea.Msg {
		return ActionResultMsg{Action: action, Err: fn()}
	}
}

func saveCmd(ctx context.Context, sess Session) tea.Cmd {
	return func() tea.Msg {
		saved, err := sess.Save(ctx, "")
		return SavedMsg{Interaction: saved, Err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case SnapshotMsg:
		m.snap = msg.Snapshot
		return m, waitForSnapshot(m.snapshots)

	case SnapshotsClosedMsg:
		return m, tea.Quit

	case ActionResultMsg:
		if msg.Err != nil {
			m.errorMessage = msg.Err.Error()
			return m, nil
		}
		m.errorMessage = ""
		switch msg.Action {
		case "start":
			m.notice = "Recording"
			m.transcript = ""
		case "stop":
			m.notice = "Stopped. Press w to save or x to discard"
		case "reset":
			m.notice = "Press r to record"
		}
		return m, nil

	case SavedMsg:
		m.saving = false
		if msg.Interaction.ID == "" {
			if msg.Err != nil {
				m.errorMessage = msg.Err.Error()
			}
			return m, nil
		}
		m.transcript = msg.Interaction.Transcript
		m.notice = "Saved " + msg.Interaction.ID
		m.errorMessage = ""
		if msg.Err != nil {
			m.errorMessage = "saved without transcript: " + msg.Err.Error()
		}
		return m, nil
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case KeyQuit, "Q", "ctrl+c":
		return m, tea.Quit

	case KeyStart:
		return m, actionCmd("start", func() error {
			_, err := m.session.Start()
			return err
		})

	case KeyStop:
		return m, actionCmd("stop", func() error {
			_, err := m.session.Stop()
			return err
		})

	case KeyReset:
		return m, actionCmd("reset", m.session.Reset)

	case KeySave:
		if m.saving {
			return m, nil
		}
		m.saving = true
		m.notice = "Waiting for transcript..."
		return m, saveCmd(m.ctx, m.session)
	}

	return m, nil
}

func (m Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	sections := []string{
		m.renderHeader(),
		m.renderStatusBar(),
		dividerStyle.Render(strings.Repeat("─", m.width)),
		renderWaveform(m.snap.Waveform),
		dividerStyle.Render(strings.Repeat("─", m.width)),
	}

	if m.transcript != "" {
		sections = append(sections, truncateToWidth(m.transcript, m.width))
	}
	if m.errorMessage != "" {
		sections = append(sections, errorStyle.Render("Error: ")+m.errorMessage)
	} else if m.notice != "" {
		sections = append(sections, noticeStyle.Render(m.notice))
	}

	sections = append(sections, m.renderFooter())
	return strings.Join(sections, "\n")
}

func (m Model) renderHeader() string {
	title := titleStyle.Render("VOXLOG")
	if m.snap.File == "" {
		return title
	}
	return title + dimStyle.Render("  "+m.snap.File)
}

func (m Model) renderStatusBar() string {
	var dot string
	switch m.snap.State {
	case recorder.StateRecording:
		dot = recordingDotStyle.Render("● REC")
	case recorder.StateStopped:
		dot = stoppedDotStyle.Render("■ STOPPED")
	default:
		dot = idleDotStyle.Render("○ IDLE")
	}

	status := dot + "  " + formatElapsed(m.snap.Elapsed)
	if m.snap.State == recorder.StateRecording {
		status += "  " + renderLevelMeter(m.snap.Level)
	}
	return status
}

func renderLevelMeter(level float64) string {
	const barLen = 10
	filled := int(level * barLen)
	if filled > barLen {
		filled = barLen
	}

	var bar string
	for i := 0; i < barLen; i++ {
		if i < filled {
			if float64(i)/barLen > 0.6 {
				bar += levelYellowStyle.Render("█")
			} else {
				bar += levelGreenStyle.Render("█")
			}
		} else {
			bar += levelGrayStyle.Render("░")
		}
	}
	return dimStyle.Render("MIC") + " " + bar
}

var waveRunes = []rune(" ▁▂▃▄▅▆▇█")

// renderWaveform draws one column per value, oldest on the left.
func renderWaveform(values []float64) string {
	var b strings.Builder
	top := len(waveRunes) - 1
	for _, v := range values {
		idx := int(v * float64(top))
		if idx < 0 {
			idx = 0
		}
		if idx > top {
			idx = top
		}
		b.WriteRune(waveRunes[idx])
	}
	return levelGreenStyle.Render(b.String())
}

func formatElapsed(seconds int) string {
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

func (m Model) renderFooter() string {
	var parts []string
	switch m.snap.State {
	case recorder.StateIdle:
		parts = append(parts, footerKeyStyle.Render(KeyStart)+footerDescStyle.Render(" Record"))
	case recorder.StateRecording:
		parts = append(parts, footerKeyStyle.Render(KeyStop)+footerDescStyle.Render(" Stop"))
	case recorder.StateStopped:
		parts = append(parts, footerKeyStyle.Render(KeySave)+footerDescStyle.Render(" Save"))
		parts = append(parts, footerKeyStyle.Render(KeyReset)+footerDescStyle.Render(" Discard"))
	}
	parts = append(parts, footerKeyStyle.Render(KeyQuit)+footerDescStyle.Render(" Quit"))
	return strings.Join(parts, "  ")
}

func truncateToWidth(s string, width int) string {
	if lipgloss.Width(s) <= width {
		return s
	}
	runes := []rune(s)
	for len(runes) > 0 && lipgloss.Width(string(runes))+1 > width {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "…"
}
