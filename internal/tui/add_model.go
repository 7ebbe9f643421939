package tui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/balkashynov/tally/internal/models"
	"github.com/balkashynov/tally/internal/parser"
)

// Step is a field of the add-task wizard.
type Step int

const (
	StepTitle Step = iota
	StepEstimate
	StepPolicy
	StepDueDate
	StepAssignee
	StepSave
)

var stepLabels = []string{"Title", "Estimate", "Reset policy", "Due date", "Assignee", "Save"}

// TaskDraft is the validated result of the wizard.
type TaskDraft struct {
	Title           string
	EstimatedHours  float64
	TimeResetPolicy string
	DueDate         *time.Time
	AssignedTo      *uint
}

// AddTaskModel walks through the fields of a new task one at a time.
type AddTaskModel struct {
	now         time.Time
	currentStep Step
	inputs      []textinput.Model
	width       int
	height      int

	draft         TaskDraft
	validationErr string
	completed     bool
	cancelled     bool
}

// NewAddTaskModel returns the wizard with prefilled values keyed by field
// name (title, estimate, policy, due, assignee).
func NewAddTaskModel(prefilled map[string]string, now time.Time) AddTaskModel {
	placeholders := []string{
		"Enter task title... (required)",
		"Hours, e.g. 2.5 (Enter to skip - no cap)",
		"fixed or per_week (Enter for fixed)",
		"dd/mm/yyyy, today, tomorrow, 3 days, 2 weeks (Enter to skip)",
		"User id (Enter to leave unassigned)",
	}
	keys := []string{"title", "estimate", "policy", "due", "assignee"}

	inputs := make([]textinput.Model, len(placeholders))
	for i := range inputs {
		in := textinput.New()
		in.Width = 60
		in.CharLimit = 200
		in.Placeholder = placeholders[i]
		in.TextStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorPrimaryText))
		in.PlaceholderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorPlaceholder))
		in.Cursor.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAccentBright))
		if v, ok := prefilled[keys[i]]; ok {
			in.SetValue(v)
		}
		inputs[i] = in
	}
	inputs[StepTitle].Focus()

	return AddTaskModel{now: now, inputs: inputs}
}

func (m AddTaskModel) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles messages
func (m AddTaskModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		w := max(30, min(80, m.width*2/3-10))
		for i := range m.inputs {
			m.inputs[i].Width = w
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.cancelled = true
			return m, tea.Quit
		case "enter":
			return m.handleEnter()
		case "shift+tab", "up":
			return m.moveTo(m.currentStep - 1)
		case "tab", "down":
			if err := m.validate(m.currentStep); err != nil {
				m.validationErr = err.Error()
				return m, nil
			}
			return m.moveTo(m.currentStep + 1)
		}
	}

	var cmd tea.Cmd
	if m.currentStep < StepSave {
		m.inputs[m.currentStep], cmd = m.inputs[m.currentStep].Update(msg)
	}
	return m, cmd
}

func (m AddTaskModel) handleEnter() (AddTaskModel, tea.Cmd) {
	if m.currentStep == StepSave {
		for step := StepTitle; step < StepSave; step++ {
			if err := m.validate(step); err != nil {
				m.validationErr = err.Error()
				m, _ = m.moveTo(step)
				return m, nil
			}
		}
		m.completed = true
		return m, tea.Quit
	}
	if err := m.validate(m.currentStep); err != nil {
		m.validationErr = err.Error()
		return m, nil
	}
	return m.moveTo(m.currentStep + 1)
}

func (m AddTaskModel) moveTo(step Step) (AddTaskModel, tea.Cmd) {
	if step < StepTitle || step > StepSave {
		return m, nil
	}
	m.validationErr = ""
	if m.currentStep < StepSave {
		m.inputs[m.currentStep].Blur()
	}
	m.currentStep = step
	if step < StepSave {
		return m, m.inputs[step].Focus()
	}
	return m, nil
}

// validate parses the input of step into the draft.
func (m *AddTaskModel) validate(step Step) error {
	if step >= StepSave {
		return nil
	}
	value := strings.TrimSpace(m.inputs[step].Value())

	switch step {
	case StepTitle:
		if value == "" {
			return fmt.Errorf("Task title is required")
		}
		m.draft.Title = value
	case StepEstimate:
		m.draft.EstimatedHours = 0
		if value == "" {
			return nil
		}
		hours, err := strconv.ParseFloat(strings.TrimSuffix(value, "h"), 64)
		if err != nil || hours < 0 {
			return fmt.Errorf("Estimate must be a non-negative number of hours")
		}
		m.draft.EstimatedHours = hours
	case StepPolicy:
		switch strings.ToLower(value) {
		case "", models.ResetPolicyFixed:
			m.draft.TimeResetPolicy = models.ResetPolicyFixed
		case models.ResetPolicyPerWeek, "weekly", "per-week":
			m.draft.TimeResetPolicy = models.ResetPolicyPerWeek
		default:
			return fmt.Errorf("Reset policy must be fixed or per_week")
		}
	case StepDueDate:
		due, err := parser.ParseDueDate(value, m.now)
		if err != nil {
			return err
		}
		m.draft.DueDate = due
	case StepAssignee:
		m.draft.AssignedTo = nil
		if value == "" {
			return nil
		}
		id, err := strconv.ParseUint(value, 10, 32)
		if err != nil || id == 0 {
			return fmt.Errorf("Assignee must be a user id")
		}
		uid := uint(id)
		m.draft.AssignedTo = &uid
	}
	return nil
}

// Result returns the draft when the user saved, or false when cancelled.
func (m AddTaskModel) Result() (TaskDraft, bool) {
	return m.draft, m.completed && !m.cancelled
}

// View renders the TUI
func (m AddTaskModel) View() string {
	if m.completed || m.cancelled {
		return ""
	}
	if m.width < 85 {
		return lipgloss.NewStyle().Width(max(20, m.width-2)).Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(ColorBorder)).Padding(1).Render(m.renderWizard())
	}

	rightWidth := 44
	leftWidth := m.width - rightWidth - 4
	left := lipgloss.NewStyle().Width(leftWidth).Height(m.height - 2).
		Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color(ColorBorder)).Padding(1).
		Render(m.renderWizard())
	right := lipgloss.NewStyle().Width(rightWidth).Padding(1).Render(m.renderPreview())
	return lipgloss.JoinHorizontal(lipgloss.Top, left, " ", right)
}

func (m AddTaskModel) renderWizard() string {
	var b strings.Builder
	b.WriteString(lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorAccentBright)).Render("Create New Task"))
	b.WriteString("\n\n")

	current := lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAccentBright))
	done := lipgloss.NewStyle().Foreground(lipgloss.Color(ColorSuccess))
	pending := lipgloss.NewStyle().Foreground(lipgloss.Color(ColorSecondaryText))
	for i, label := range stepLabels {
		step := Step(i)
		switch {
		case step == m.currentStep:
			b.WriteString(current.Render("▶ " + label))
		case step < m.currentStep && step < StepSave && strings.TrimSpace(m.inputs[step].Value()) != "":
			b.WriteString(done.Render("✓ " + label))
		default:
			b.WriteString(pending.Render("  " + label))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if m.currentStep < StepSave {
		b.WriteString(stepLabels[m.currentStep] + "\n")
		b.WriteString(m.inputs[m.currentStep].View())
	} else {
		b.WriteString("Press Enter to save, shift+tab to go back")
	}

	if m.validationErr != "" {
		b.WriteString("\n\n")
		b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(ColorError)).Render("✗ " + m.validationErr))
	}

	b.WriteString("\n\n")
	b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(ColorHelpText)).Italic(true).
		Render("enter next · tab/shift+tab move · esc cancel"))
	return b.String()
}

func (m AddTaskModel) renderPreview() string {
	value := func(step Step) string {
		v := strings.TrimSpace(m.inputs[step].Value())
		if v == "" {
			return lipgloss.NewStyle().Foreground(lipgloss.Color(ColorDisabledText)).Render("none")
		}
		return v
	}

	due := value(StepDueDate)
	if parsed, err := parser.ParseDueDate(m.inputs[StepDueDate].Value(), m.now); err == nil && parsed != nil {
		due = parser.FormatDueDate(parsed, m.now)
	}

	title := strings.TrimSpace(m.inputs[StepTitle].Value())
	if title == "" {
		title = "Untitled task"
	}

	var b strings.Builder
	b.WriteString(lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorPrimaryText)).
		Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color(ColorAccentMain)).
		Width(38).Padding(0, 1).Render(title))
	b.WriteString("\n\n")
	rows := [][2]string{
		{"Estimate", value(StepEstimate)},
		{"Policy", value(StepPolicy)},
		{"Due", due},
		{"Assignee", value(StepAssignee)},
	}
	label := lipgloss.NewStyle().Foreground(lipgloss.Color(ColorSecondaryText))
	for _, r := range rows {
		b.WriteString(label.Render(fmt.Sprintf("%-10s", r[0])))
		b.WriteString(r[1])
		b.WriteString("\n")
	}
	return b.String()
}
