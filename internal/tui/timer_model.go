package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/balkashynov/tally/internal/capture"
	"github.com/balkashynov/tally/internal/models"
	"github.com/balkashynov/tally/internal/segmenter"
)

// Tracking is the running session the timer screen drives.
type Tracking interface {
	Track() *models.TimeTrack
	Aggregator() *capture.Aggregator
	Segmenter() *segmenter.Segmenter
	Elapsed() time.Duration
	Remaining(ctx context.Context) (*models.Summary, error)
	CaptureNow(ctx context.Context) error
	Screenshots() int
	Notes() <-chan string
	Ended() <-chan struct{}
}

// refreshEvery is how many timer ticks pass between cap refreshes.
const refreshEvery = 30

// TimerModel is the tracking screen. Keys, clicks and focus changes inside
// the terminal are the activity signal of the session.
type TimerModel struct {
	ctx     context.Context
	session Tracking
	task    *models.Task

	width  int
	height int

	keys    trackKeyMap
	help    help.Model
	bar     progress.Model
	shimmer *Shimmer

	elapsed   time.Duration
	ticks     int
	summary   *models.Summary
	summaryAt time.Duration // elapsed time when summary was fetched
	note      string
	frame     int

	stopping bool
	ended    bool
}

type timerTickMsg struct{}

type animationTickMsg struct{}

type summaryMsg struct {
	summary *models.Summary
	err     error
}

type noteMsg string

type endedMsg struct{}

type captureDoneMsg struct{ err error }

// NewTimerModel returns the tracking screen for session. task may be nil
// when only the id is known.
func NewTimerModel(ctx context.Context, session Tracking, task *models.Task, animate bool) TimerModel {
	return TimerModel{
		ctx:     ctx,
		session: session,
		task:    task,
		keys:    newTrackKeyMap(),
		help:    help.New(),
		bar:     progress.New(progress.WithGradient(ColorAccentMain, ColorAccentBright)),
		shimmer: NewShimmer(animate),
		elapsed: session.Elapsed(),
	}
}

func (m TimerModel) Init() tea.Cmd {
	return tea.Batch(
		timerTick(),
		animationTick(),
		m.fetchSummary(),
		waitForNote(m.session.Notes()),
		waitForEnd(m.session.Ended()),
	)
}

func timerTick() tea.Cmd {
	return tea.Tick(time.Second, func(time.Time) tea.Msg { return timerTickMsg{} })
}

func animationTick() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(time.Time) tea.Msg { return animationTickMsg{} })
}

func waitForNote(ch <-chan string) tea.Cmd {
	return func() tea.Msg {
		note, ok := <-ch
		if !ok {
			return nil
		}
		return noteMsg(note)
	}
}

func waitForEnd(ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		<-ch
		return endedMsg{}
	}
}

func (m TimerModel) fetchSummary() tea.Cmd {
	session, ctx := m.session, m.ctx
	return func() tea.Msg {
		summary, err := session.Remaining(ctx)
		return summaryMsg{summary: summary, err: err}
	}
}

// Update handles messages
func (m TimerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case timerTickMsg:
		if m.stopping || m.ended {
			return m, nil
		}
		m.elapsed = m.session.Elapsed()
		m.ticks++
		cmds := []tea.Cmd{timerTick()}
		if m.ticks%refreshEvery == 0 {
			cmds = append(cmds, m.fetchSummary())
		}
		return m, tea.Batch(cmds...)

	case animationTickMsg:
		if m.stopping || m.ended {
			return m, nil
		}
		m.frame = (m.frame + 1) % 4
		m.shimmer.Step(len([]rune(m.headerText())))
		return m, animationTick()

	case summaryMsg:
		if msg.err != nil {
			m.note = "Could not refresh cap: " + msg.err.Error()
			return m, nil
		}
		m.summary = msg.summary
		m.summaryAt = m.session.Elapsed()
		return m, nil

	case noteMsg:
		m.note = string(msg)
		return m, waitForNote(m.session.Notes())

	case endedMsg:
		if m.stopping {
			return m, nil
		}
		m.ended = true
		return m, tea.Quit

	case captureDoneMsg:
		if msg.err != nil {
			m.note = "Screenshot failed: " + msg.err.Error()
		} else {
			m.note = fmt.Sprintf("Screenshot uploaded (%d this session)", m.session.Screenshots())
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.bar.Width = min(60, max(10, msg.Width/2-8))
		m.help.Width = msg.Width
		return m, nil

	case tea.FocusMsg:
		seg, ctx := m.session.Segmenter(), m.ctx
		return m, func() tea.Msg {
			seg.Focus()
			seg.SetVisible(ctx, true)
			return nil
		}

	case tea.BlurMsg:
		seg, ctx := m.session.Segmenter(), m.ctx
		return m, func() tea.Msg {
			seg.Blur(ctx)
			seg.SetVisible(ctx, false)
			return nil
		}

	case tea.MouseMsg:
		m.recordMouse(tea.MouseEvent(msg))
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Stop):
			m.stopping = true
			return m, tea.Quit
		case key.Matches(msg, m.keys.Capture):
			m.note = "Taking screenshot..."
			session, ctx := m.session, m.ctx
			return m, func() tea.Msg { return captureDoneMsg{err: session.CaptureNow(ctx)} }
		case key.Matches(msg, m.keys.Refresh):
			m.session.Aggregator().RecordKey(false)
			return m, m.fetchSummary()
		}
		m.session.Aggregator().RecordKey(false)
		return m, nil
	}

	return m, nil
}

func (m TimerModel) recordMouse(ev tea.MouseEvent) {
	agg := m.session.Aggregator()
	switch {
	case ev.IsWheel():
		agg.RecordScroll()
	case ev.Action == tea.MouseActionPress:
		agg.RecordClick()
	case ev.Action == tea.MouseActionMotion:
		agg.RecordMove()
	}
}

// Stopping reports whether the user asked to stop the timer.
func (m TimerModel) Stopping() bool { return m.stopping }

// Ended reports whether the server ended the timer first.
func (m TimerModel) Ended() bool { return m.ended }

func (m TimerModel) headerText() string {
	return "TRACKING TIME"
}

// capUsage returns the used share of the task's cap and a label, or false
// when the task has no cap or the summary has not arrived.
func (m TimerModel) capUsage() (float64, string, bool) {
	s := m.summary
	if s == nil || s.CapSeconds <= 0 || s.RemainingSeconds == nil {
		return 0, "", false
	}
	sinceFetch := max(0, m.elapsed-m.summaryAt)
	remaining := max(0, time.Duration(*s.RemainingSeconds)*time.Second-sinceFetch)
	capDur := time.Duration(s.CapSeconds) * time.Second
	used := capDur - remaining
	pct := float64(used) / float64(capDur)
	label := fmt.Sprintf("%s left of %s", formatDuration(remaining), formatDuration(capDur))
	if s.Policy == models.ResetPolicyPerWeek {
		label += " this week"
	}
	return min(1, pct), label, true
}

// View renders the timer TUI
func (m TimerModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	helpBar := lipgloss.NewStyle().Align(lipgloss.Center).Width(m.width).Render(m.help.ShortHelpView(m.keys.ShortHelp()))
	contentHeight := m.height - 2

	if m.width < 90 {
		return lipgloss.JoinVertical(lipgloss.Left, m.renderTimerPanel(m.width, contentHeight), helpBar)
	}

	leftWidth := m.width / 2
	rightWidth := m.width - leftWidth - 2
	content := lipgloss.JoinHorizontal(
		lipgloss.Top,
		m.renderTimerPanel(leftWidth, contentHeight),
		"  ",
		m.renderActivityPanel(rightWidth, contentHeight),
	)
	return lipgloss.JoinVertical(lipgloss.Left, content, helpBar)
}

func (m TimerModel) renderTimerPanel(width, height int) string {
	center := lipgloss.NewStyle().Align(lipgloss.Center).Width(width)
	var parts []string

	icons := []string{"⏱", "⏲", "⏱", "⏲"}
	icon := icons[m.frame]
	parts = append(parts, center.Bold(true).Render(fmt.Sprintf("%s  %s  %s", icon, m.shimmer.Render(m.headerText()), icon)))

	track := m.session.Track()
	title := "no task"
	if m.task != nil {
		title = fmt.Sprintf("#%d %s", m.task.ID, m.task.Title)
	} else if track.TaskID != nil {
		title = fmt.Sprintf("#%d", *track.TaskID)
	}
	if len(title) > width-4 && width > 8 {
		title = title[:width-7] + "..."
	}
	parts = append(parts, center.Foreground(lipgloss.Color(ColorPrimaryText)).Bold(true).Render(title))

	var clock []string
	for _, line := range strings.Split(renderBigClock(m.elapsed), "\n") {
		clock = append(clock, center.Render(line))
	}
	parts = append(parts, strings.Join(clock, "\n"))

	if pct, label, ok := m.capUsage(); ok {
		barColor := ColorSecondaryText
		switch {
		case pct >= 1:
			barColor = ColorError
		case pct >= 0.8:
			barColor = ColorWarning
		}
		parts = append(parts,
			center.Render(m.bar.ViewAs(pct)),
			center.Foreground(lipgloss.Color(barColor)).Render(label))
	} else if m.summary != nil {
		parts = append(parts, center.Foreground(lipgloss.Color(ColorDisabledText)).Render("no time cap"))
	}

	started := fmt.Sprintf("Started at %s", track.StartTime.Local().Format("15:04:05"))
	parts = append(parts, center.Foreground(lipgloss.Color(ColorSecondaryText)).Italic(true).Render(started))

	return lipgloss.NewStyle().Width(width).Height(height).Align(lipgloss.Center, lipgloss.Center).
		Render(strings.Join(parts, "\n\n"))
}

func (m TimerModel) renderActivityPanel(width, height int) string {
	label := lipgloss.NewStyle().Foreground(lipgloss.Color(ColorSecondaryText))
	value := lipgloss.NewStyle().Foreground(lipgloss.Color(ColorPrimaryText)).Bold(true)

	agg := m.session.Aggregator()
	cur := agg.CurrentMinuteBucket()
	var keyboard, mouse, moves int
	for _, b := range agg.Snapshot() {
		keyboard += b.Keyboard
		mouse += b.Mouse
		moves += b.Movements
	}

	surface := agg.Surface().Label()
	if surface == "" {
		surface = "-"
	}
	state := "focused"
	if !m.session.Segmenter().Visible() {
		state = "away"
	}

	rows := [][2]string{
		{"Surface", surface},
		{"State", state},
		{"This minute", fmt.Sprintf("%d keys · %d clicks · %d moves", cur.Keyboard, cur.Mouse, cur.Movements)},
		{"Since last shot", fmt.Sprintf("%d keys · %d clicks · %d moves", keyboard, mouse, moves)},
		{"Screenshots", fmt.Sprintf("%d", m.session.Screenshots())},
	}
	if m.task != nil && m.task.DueDate != nil {
		rows = append(rows, [2]string{"Due", m.task.DueDate.Format("Jan 02, 2006")})
	}

	var b strings.Builder
	b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAccentMain)).Bold(true).Render("ACTIVITY"))
	b.WriteString("\n\n")
	for _, r := range rows {
		b.WriteString(label.Render(fmt.Sprintf("%-16s", r[0])))
		b.WriteString(value.Render(r[1]))
		b.WriteString("\n")
	}
	if m.note != "" {
		b.WriteString("\n")
		b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(ColorWarning)).Italic(true).Width(width - 6).Render(m.note))
	}

	return lipgloss.NewStyle().
		Width(width).Height(height).
		Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color(ColorBorder)).
		Padding(1, 2).
		Render(b.String())
}

// bigDigits are 5x5 glyphs for the clock.
var bigDigits = map[rune][5]string{
	'0': {" ███ ", "█   █", "█   █", "█   █", " ███ "},
	'1': {"  █  ", " ██  ", "  █  ", "  █  ", "█████"},
	'2': {" ███ ", "█   █", "   █ ", "  █  ", "█████"},
	'3': {" ███ ", "█   █", "  ██ ", "█   █", " ███ "},
	'4': {"█   █", "█   █", "█████", "    █", "    █"},
	'5': {"█████", "█    ", "████ ", "    █", "████ "},
	'6': {" ███ ", "█    ", "████ ", "█   █", " ███ "},
	'7': {"█████", "    █", "   █ ", "  █  ", " █   "},
	'8': {" ███ ", "█   █", " ███ ", "█   █", " ███ "},
	'9': {" ███ ", "█   █", " ████", "    █", " ███ "},
	':': {"     ", "  █  ", "     ", "  █  ", "     "},
}

func renderBigClock(d time.Duration) string {
	var lines [5]strings.Builder
	for _, r := range clockText(d) {
		glyph := bigDigits[r]
		for i := range lines {
			lines[i].WriteString(glyph[i])
			lines[i].WriteString(" ")
		}
	}

	style := lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAccentBright)).Bold(true)
	out := make([]string, len(lines))
	for i := range lines {
		out[i] = style.Render(lines[i].String())
	}
	return strings.Join(out, "\n")
}

// clockText formats d as MM:SS, or HH:MM:SS from one hour.
func clockText(d time.Duration) string {
	h := int(d.Hours())
	mnt := int(d.Minutes()) % 60
	sec := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, mnt, sec)
	}
	return fmt.Sprintf("%02d:%02d", mnt, sec)
}

func formatDuration(d time.Duration) string {
	switch {
	case d.Hours() >= 1:
		return fmt.Sprintf("%.1fh", d.Hours())
	case d.Minutes() >= 1:
		return fmt.Sprintf("%.0fm", d.Minutes())
	default:
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
}
