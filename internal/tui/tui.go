package tui

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/balkashynov/tally/internal/models"
)

// RunAddTaskTUI runs the add-task wizard and returns the draft, or false
// when the user cancelled.
func RunAddTaskTUI(prefilled map[string]string, now time.Time) (TaskDraft, bool, error) {
	final, err := tea.NewProgram(NewAddTaskModel(prefilled, now), tea.WithAltScreen()).Run()
	if err != nil {
		return TaskDraft{}, false, err
	}
	draft, ok := final.(AddTaskModel).Result()
	return draft, ok, nil
}

// RunListTUI shows tasks until the user quits.
func RunListTUI(tasks []models.Task, now time.Time, animate bool) error {
	_, err := tea.NewProgram(NewListModel(tasks, now, animate), tea.WithAltScreen()).Run()
	return err
}

// TimerResult says how the tracking screen was left.
type TimerResult int

const (
	TimerStopped TimerResult = iota // user asked to stop
	TimerEnded                      // server ended the timer
)

// RunTimerTUI drives session until the user stops it or the server ends
// the timer. Mouse motion and focus reporting are enabled so the terminal
// feeds the activity counters.
func RunTimerTUI(ctx context.Context, session Tracking, task *models.Task, animate bool) (TimerResult, error) {
	p := tea.NewProgram(NewTimerModel(ctx, session, task, animate),
		tea.WithAltScreen(),
		tea.WithMouseAllMotion(),
		tea.WithReportFocus(),
		tea.WithContext(ctx),
	)
	final, err := p.Run()
	if err != nil {
		return TimerStopped, fmt.Errorf("running timer: %w", err)
	}
	if final.(TimerModel).Ended() {
		return TimerEnded, nil
	}
	return TimerStopped, nil
}
