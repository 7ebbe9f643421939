package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/balkashynov/tally/internal/models"
	"github.com/balkashynov/tally/internal/parser"
)

// ListModel browses tasks with their cap and due date.
type ListModel struct {
	width  int
	height int
	now    time.Time

	tasks        []models.Task
	selectedTask int
	currentPage  int
	tasksPerPage int

	keys    listKeyMap
	help    help.Model
	shimmer *Shimmer
}

func NewListModel(tasks []models.Task, now time.Time, animate bool) ListModel {
	return ListModel{
		now:          now,
		tasks:        tasks,
		tasksPerPage: 10,
		keys:         newListKeyMap(),
		help:         help.New(),
		shimmer:      NewShimmer(animate),
	}
}

func (m ListModel) Init() tea.Cmd {
	return animationTick()
}

// Update handles messages
func (m ListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case animationTickMsg:
		if len(m.tasks) > 0 {
			m.shimmer.Step(len([]rune(m.tasks[m.selectedTask].Title)))
		}
		return m, animationTick()

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.tasksPerPage = max(3, m.height-12)
		m = m.clampPage()
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Up):
			return m.moveSelection(-1), nil
		case key.Matches(msg, m.keys.Down):
			return m.moveSelection(1), nil
		case key.Matches(msg, m.keys.Prev):
			return m.turnPage(-1), nil
		case key.Matches(msg, m.keys.Next):
			return m.turnPage(1), nil
		}
	}
	return m, nil
}

func (m ListModel) pages() int {
	if len(m.tasks) == 0 {
		return 1
	}
	return (len(m.tasks) + m.tasksPerPage - 1) / m.tasksPerPage
}

// moveSelection moves by delta rows and follows the selection across pages.
func (m ListModel) moveSelection(delta int) ListModel {
	next := m.selectedTask + delta
	if next < 0 || next >= len(m.tasks) {
		return m
	}
	m.selectedTask = next
	m.currentPage = next / m.tasksPerPage
	m.shimmer.Reset()
	return m
}

// turnPage flips by delta pages and keeps the selection on screen.
func (m ListModel) turnPage(delta int) ListModel {
	page := m.currentPage + delta
	if page < 0 || page >= m.pages() {
		return m
	}
	m.currentPage = page
	first := page * m.tasksPerPage
	last := min(first+m.tasksPerPage, len(m.tasks)) - 1
	m.selectedTask = max(first, min(m.selectedTask, last))
	m.shimmer.Reset()
	return m
}

func (m ListModel) clampPage() ListModel {
	if len(m.tasks) == 0 {
		m.currentPage = 0
		return m
	}
	m.currentPage = m.selectedTask / m.tasksPerPage
	return m
}

// Selected returns the highlighted task, or nil for an empty list.
func (m ListModel) Selected() *models.Task {
	if len(m.tasks) == 0 {
		return nil
	}
	return &m.tasks[m.selectedTask]
}

// View renders the TUI
func (m ListModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	leftWidth := m.width * 60 / 100
	rightWidth := m.width - leftWidth - 1
	content := lipgloss.JoinHorizontal(
		lipgloss.Top,
		m.renderTaskTable(leftWidth),
		" ",
		m.renderTaskDetails(rightWidth),
	)
	helpBar := lipgloss.NewStyle().Align(lipgloss.Center).Width(m.width).Render(m.help.ShortHelpView(m.keys.ShortHelp()))
	return lipgloss.JoinVertical(lipgloss.Left, "", content, "", helpBar)
}

func (m ListModel) renderTaskTable(width int) string {
	var b strings.Builder
	b.WriteString(lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorAccentBright)).Render("Tasks"))
	b.WriteString("\n\n")

	if len(m.tasks) == 0 {
		b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(ColorSecondaryText)).Italic(true).Render("No tasks found"))
		return lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color(ColorBorder)).Width(width).Render(b.String())
	}

	const idWidth, statusWidth, capWidth, dueWidth = 5, 12, 9, 10
	titleWidth := max(20, width-4-idWidth-statusWidth-capWidth-dueWidth-8)

	header := fmt.Sprintf("%-*s %-*s %-*s %-*s %-*s",
		idWidth, "ID", titleWidth, "TITLE", statusWidth, "STATUS", capWidth, "CAP", dueWidth, "DUE")
	b.WriteString(lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorAccentBright)).Padding(0, 1).Render(header))
	b.WriteString("\n\n")

	start := m.currentPage * m.tasksPerPage
	end := min(start+m.tasksPerPage, len(m.tasks))
	for i := start; i < end; i++ {
		task := m.tasks[i]
		selected := i == m.selectedTask

		title := truncate(task.Title, titleWidth)
		padded := fmt.Sprintf("%-*s", titleWidth, title)
		if selected {
			padded = m.shimmer.Render(title) + strings.Repeat(" ", titleWidth-len([]rune(title)))
		}

		due, dueColor := dueLabel(task.DueDate, m.now)
		row := fmt.Sprintf("%-*s %s %s %-*s %s",
			idWidth, fmt.Sprintf("#%d", task.ID),
			padded,
			lipgloss.NewStyle().Foreground(lipgloss.Color(statusColor(task.Status))).Width(statusWidth).Render(task.Status),
			capWidth, capLabel(&task),
			lipgloss.NewStyle().Foreground(lipgloss.Color(dueColor)).Width(dueWidth).Render(due),
		)

		if selected {
			b.WriteString(lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color(ColorAccentMain)).Bold(true).Padding(0, 1).Render(row))
		} else {
			b.WriteString(" " + row)
		}
		b.WriteString("\n")
	}

	if m.pages() > 1 {
		info := fmt.Sprintf("Page %d/%d (%d tasks)", m.currentPage+1, m.pages(), len(m.tasks))
		b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(ColorHelpText)).Align(lipgloss.Center).Width(width - 2).MarginTop(1).Render(info))
	}

	return lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color(ColorBorder)).Width(width).Render(b.String())
}

func (m ListModel) renderTaskDetails(width int) string {
	var b strings.Builder
	task := m.Selected()
	if task == nil {
		b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAccentMain)).Bold(true).Align(lipgloss.Center).Width(width).Render("tally"))
	} else {
		b.WriteString(lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorPrimaryText)).Width(width).Render(task.Title))
		b.WriteString("\n\n")

		policy := "lifetime"
		if task.PerWeek() {
			policy = "resets weekly"
		}
		assignee := "unassigned"
		if task.AssignedTo != nil {
			assignee = fmt.Sprintf("user %d", *task.AssignedTo)
		}
		due := parser.FormatDueDate(task.DueDate, m.now)
		if due == "" {
			due = "none"
		}
		rows := [][2]string{
			{"Status", task.Status},
			{"Cap", capLabel(task)},
			{"Policy", policy},
			{"Assignee", assignee},
			{"Due", due},
			{"Created", task.CreatedAt.Format("Jan 02, 2006")},
		}
		label := lipgloss.NewStyle().Foreground(lipgloss.Color(ColorSecondaryText))
		for _, r := range rows {
			b.WriteString(label.Render(fmt.Sprintf("%-10s", r[0])))
			b.WriteString(r[1])
			b.WriteString("\n")
		}
	}
	return lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color(ColorBorder)).Width(width).Render(b.String())
}

func truncate(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	if width <= 3 {
		return string(r[:width])
	}
	return string(r[:width-3]) + "..."
}

func statusColor(status string) string {
	switch status {
	case models.TaskStatusCompleted:
		return ColorSuccess
	case models.TaskStatusInProgress:
		return ColorAccentBright
	default:
		return ColorSecondaryText
	}
}

func capLabel(task *models.Task) string {
	if task.CapSeconds() == 0 {
		return "-"
	}
	label := fmt.Sprintf("%gh", task.EstimatedHours)
	if task.PerWeek() {
		label += "/wk"
	}
	return label
}

// dueLabel renders a due date relative to now in whole calendar days.
func dueLabel(due *time.Time, now time.Time) (string, string) {
	if due == nil {
		return "-", ColorDisabledText
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	days := int(due.Sub(today).Hours() / 24)
	switch {
	case days < 0:
		return "OVERDUE", ColorError
	case days == 0:
		return "TODAY", ColorWarning
	case days == 1:
		return "TOMORROW", ColorWarning
	case days <= 7:
		return fmt.Sprintf("%dd", days), ColorAccentBright
	default:
		return due.Format("02/01"), ColorSecondaryText
	}
}
