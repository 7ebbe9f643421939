package tui

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/balkashynov/tally/internal/capture"
	"github.com/balkashynov/tally/internal/clock"
	"github.com/balkashynov/tally/internal/logging"
	"github.com/balkashynov/tally/internal/models"
	"github.com/balkashynov/tally/internal/segmenter"
)

var t0 = time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

type nopPoster struct{}

func (nopPoster) PostSession(ctx context.Context, c segmenter.SessionCandidate) error { return nil }

type fakeTracking struct {
	clock    *clock.Fake
	track    *models.TimeTrack
	agg      *capture.Aggregator
	seg      *segmenter.Segmenter
	summary  *models.Summary
	captures int
	notes    chan string
	ended    chan struct{}
}

func newFakeTracking() *fakeTracking {
	clk := clock.NewFake(t0)
	agg := capture.NewAggregator(clk, time.UTC)
	seg := segmenter.New(segmenter.DefaultConfig(), clk, agg, nopPoster{}, nil, logging.Discard())
	taskID := uint(3)
	seg.Start(taskID, capture.Surface{AppName: "terminal", WindowTitle: "tally"})
	return &fakeTracking{
		clock: clk,
		track: &models.TimeTrack{ID: 9, TaskID: &taskID, StartTime: t0},
		agg:   agg,
		seg:   seg,
		notes: make(chan string, 1),
		ended: make(chan struct{}),
	}
}

func (f *fakeTracking) Track() *models.TimeTrack            { return f.track }
func (f *fakeTracking) Aggregator() *capture.Aggregator      { return f.agg }
func (f *fakeTracking) Segmenter() *segmenter.Segmenter      { return f.seg }
func (f *fakeTracking) Elapsed() time.Duration               { return f.clock.Now().Sub(t0) }
func (f *fakeTracking) Screenshots() int                     { return f.captures }
func (f *fakeTracking) Notes() <-chan string                 { return f.notes }
func (f *fakeTracking) Ended() <-chan struct{}               { return f.ended }
func (f *fakeTracking) CaptureNow(ctx context.Context) error { f.captures++; return nil }
func (f *fakeTracking) Remaining(ctx context.Context) (*models.Summary, error) {
	return f.summary, nil
}

func update(t *testing.T, m tea.Model, msg tea.Msg) (tea.Model, tea.Cmd) {
	t.Helper()
	return m.Update(msg)
}

func TestTimerModel_InputFeedsAggregator(t *testing.T) {
	f := newFakeTracking()
	var m tea.Model = NewTimerModel(context.Background(), f, nil, false)

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x")})
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("y")})
	m, _ = update(t, m, tea.MouseMsg{Action: tea.MouseActionPress, Button: tea.MouseButtonLeft})
	f.clock.Advance(time.Second)
	m, _ = update(t, m, tea.MouseMsg{Action: tea.MouseActionMotion})
	_, _ = update(t, m, tea.MouseMsg{Action: tea.MouseActionPress, Button: tea.MouseButtonWheelDown})

	b := f.agg.CurrentMinuteBucket()
	if b.Keyboard != 2 || b.Mouse != 1 || b.Movements != 1 {
		t.Errorf("bucket: %+v", b)
	}
}

func TestTimerModel_StopAndCaptureKeys(t *testing.T) {
	f := newFakeTracking()
	var m tea.Model = NewTimerModel(context.Background(), f, nil, false)

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("c")})
	if cmd == nil {
		t.Fatal("capture key should return a command")
	}
	m, _ = update(t, m, cmd())
	if f.captures != 1 {
		t.Errorf("captures: %d", f.captures)
	}
	if !strings.Contains(m.(TimerModel).note, "Screenshot uploaded") {
		t.Errorf("note: %q", m.(TimerModel).note)
	}

	m, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("s")})
	if !m.(TimerModel).Stopping() {
		t.Error("s should stop")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("stop should quit the program")
	}
	if f.agg.CurrentMinuteBucket().Keyboard != 0 {
		t.Error("command keys are not counted as activity")
	}
}

func TestTimerModel_BlurHidesSegmenter(t *testing.T) {
	f := newFakeTracking()
	var m tea.Model = NewTimerModel(context.Background(), f, nil, false)

	m, cmd := update(t, m, tea.BlurMsg{})
	cmd()
	if f.seg.Visible() {
		t.Error("blur should hide the tracking surface")
	}
	_, cmd = update(t, m, tea.FocusMsg{})
	cmd()
	if !f.seg.Visible() {
		t.Error("focus should show the tracking surface")
	}
}

func TestTimerModel_CapUsage(t *testing.T) {
	f := newFakeTracking()
	remaining := 1800
	f.summary = &models.Summary{TaskID: 3, Policy: models.ResetPolicyPerWeek, CapSeconds: 3600, RemainingSeconds: &remaining}
	var m tea.Model = NewTimerModel(context.Background(), f, nil, false)

	m, _ = update(t, m, summaryMsg{summary: f.summary})
	f.clock.Advance(10 * time.Minute)
	m, _ = update(t, m, timerTickMsg{})

	pct, label, ok := m.(TimerModel).capUsage()
	if !ok {
		t.Fatal("cap expected")
	}
	if pct < 0.66 || pct > 0.67 {
		t.Errorf("pct: want ~0.667, got %f", pct)
	}
	if label != "20m left of 1.0h this week" {
		t.Errorf("label: %q", label)
	}
}

func TestTimerModel_EndedQuits(t *testing.T) {
	f := newFakeTracking()
	var m tea.Model = NewTimerModel(context.Background(), f, nil, false)
	m, cmd := update(t, m, endedMsg{})
	if !m.(TimerModel).Ended() {
		t.Error("model should record the server end")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("ended should quit")
	}
}

func TestTimerModel_ViewRenders(t *testing.T) {
	f := newFakeTracking()
	task := &models.Task{ID: 3, Title: "Quarterly report"}
	var m tea.Model = NewTimerModel(context.Background(), f, task, false)
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})
	view := m.View()
	for _, want := range []string{"Quarterly report", "ACTIVITY", "terminal"} {
		if !strings.Contains(view, want) {
			t.Errorf("view should contain %q", want)
		}
	}
}

func TestClockText(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{59 * time.Second, "00:59"},
		{61 * time.Minute, "01:01:00"},
		{10*time.Hour + 5*time.Second, "10:00:05"},
	}
	for _, tt := range tests {
		if got := clockText(tt.d); got != tt.want {
			t.Errorf("clockText(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestListModel_Navigation(t *testing.T) {
	var tasks []models.Task
	for i := 1; i <= 7; i++ {
		tasks = append(tasks, models.Task{ID: uint(i), Title: "task"})
	}
	var m tea.Model = NewListModel(tasks, t0, false)
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 120, Height: 15}) // 3 rows per page

	down := tea.KeyMsg{Type: tea.KeyDown}
	for i := 0; i < 4; i++ {
		m, _ = update(t, m, down)
	}
	lm := m.(ListModel)
	if lm.Selected().ID != 5 || lm.currentPage != 1 {
		t.Errorf("after 4 downs: selected %d page %d", lm.Selected().ID, lm.currentPage)
	}

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRight})
	lm = m.(ListModel)
	if lm.currentPage != 2 || lm.Selected().ID != 7 {
		t.Errorf("next page: selected %d page %d", lm.Selected().ID, lm.currentPage)
	}

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRight})
	if m.(ListModel).currentPage != 2 {
		t.Error("cannot page past the end")
	}
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyLeft})
	lm = m.(ListModel)
	if lm.currentPage != 1 || lm.Selected().ID != 6 {
		t.Errorf("prev page: selected %d page %d", lm.Selected().ID, lm.currentPage)
	}
}

func TestDueLabel(t *testing.T) {
	day := func(offset int) *time.Time {
		d := time.Date(2026, 3, 4+offset, 0, 0, 0, 0, time.UTC)
		return &d
	}
	tests := []struct {
		due  *time.Time
		want string
	}{
		{nil, "-"},
		{day(-1), "OVERDUE"},
		{day(0), "TODAY"},
		{day(1), "TOMORROW"},
		{day(5), "5d"},
		{day(20), "24/03"},
	}
	for _, tt := range tests {
		if got, _ := dueLabel(tt.due, t0); got != tt.want {
			t.Errorf("dueLabel(%v) = %q, want %q", tt.due, got, tt.want)
		}
	}
}

func typeInto(t *testing.T, m tea.Model, s string) tea.Model {
	t.Helper()
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
	return m
}

func TestAddTaskModel_Wizard(t *testing.T) {
	var m tea.Model = NewAddTaskModel(nil, t0)
	enter := tea.KeyMsg{Type: tea.KeyEnter}

	m, _ = update(t, m, enter)
	if m.(AddTaskModel).validationErr == "" {
		t.Fatal("empty title should not validate")
	}

	m = typeInto(t, m, "Write report")
	m, _ = update(t, m, enter)
	m = typeInto(t, m, "abc")
	m, _ = update(t, m, enter)
	if m.(AddTaskModel).currentStep != StepEstimate {
		t.Fatal("bad estimate should keep the wizard on the estimate step")
	}
	am := m.(AddTaskModel)
	am.inputs[StepEstimate].SetValue("2.5")
	m = am
	m, _ = update(t, m, enter)
	m = typeInto(t, m, "weekly")
	m, _ = update(t, m, enter)
	m = typeInto(t, m, "tomorrow")
	m, _ = update(t, m, enter)
	m = typeInto(t, m, "4")
	m, _ = update(t, m, enter)
	m, cmd := update(t, m, enter)

	draft, ok := m.(AddTaskModel).Result()
	if !ok {
		t.Fatalf("wizard should complete, err=%q", m.(AddTaskModel).validationErr)
	}
	if _, quit := cmd().(tea.QuitMsg); !quit {
		t.Error("save should quit")
	}
	if draft.Title != "Write report" || draft.EstimatedHours != 2.5 || draft.TimeResetPolicy != models.ResetPolicyPerWeek {
		t.Errorf("draft: %+v", draft)
	}
	if draft.DueDate == nil || !draft.DueDate.Equal(time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("due: %v", draft.DueDate)
	}
	if draft.AssignedTo == nil || *draft.AssignedTo != 4 {
		t.Errorf("assignee: %v", draft.AssignedTo)
	}
}

func TestAddTaskModel_Cancel(t *testing.T) {
	var m tea.Model = NewAddTaskModel(map[string]string{"title": "x"}, t0)
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if _, ok := m.(AddTaskModel).Result(); ok {
		t.Error("cancelled wizard has no result")
	}
}

func TestShimmer_SweepsAndPauses(t *testing.T) {
	s := NewShimmer(true)
	s.Step(10)
	start := s.center
	for steps := 0; s.paused == 0; steps++ {
		if steps > 2*s.ticks {
			t.Fatal("shimmer should pause after a full pass")
		}
		s.Step(10)
	}
	if s.center <= start {
		t.Error("shimmer should move forward")
	}
	for s.paused > 0 {
		s.Step(10)
	}
	if s.center >= 0 {
		t.Errorf("after the pause the highlight restarts before the text, center=%f", s.center)
	}
	if got := NewShimmer(false).Render(""); got != "" {
		t.Errorf("empty render: %q", got)
	}
}

func TestBlend(t *testing.T) {
	if got := blend(0); got != "#B1B8C7" {
		t.Errorf("blend(0) = %s", got)
	}
	if got := blend(1); got != "#EAE6FF" {
		t.Errorf("blend(1) = %s", got)
	}
}
