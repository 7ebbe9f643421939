package db

import (
	"time"

	"github.com/jinzhu/now"

	"github.com/balkashynov/tally/internal/config"
	"github.com/balkashynov/tally/internal/models"
)

// Settings carries the accounting thresholds shared by the services.
type Settings struct {
	Location   *time.Location // calendar weeks and days are computed here
	WeekStart  time.Weekday
	StaleAfter time.Duration
	MergeGap   time.Duration
	MinSession time.Duration
}

func DefaultSettings() Settings {
	return SettingsFromConfig(config.DefaultConfig().Accounting)
}

func SettingsFromConfig(cfg config.AccountingConfig) Settings {
	weekStart, _ := cfg.FirstWeekday()
	return Settings{
		Location:   cfg.Location(),
		WeekStart:  weekStart,
		StaleAfter: config.Seconds(cfg.StaleAfterSeconds),
		MergeGap:   config.Seconds(cfg.MergeGapSeconds),
		MinSession: config.Seconds(cfg.MinSessionSeconds),
	}
}

func (s Settings) calendar(t time.Time) *now.Now {
	loc := s.Location
	if loc == nil {
		loc = time.UTC
	}
	cfg := &now.Config{WeekStartDay: s.WeekStart, TimeLocation: loc}
	return cfg.With(t.In(loc))
}

// weekBounds returns the [start, end) calendar week containing t.
func (s Settings) weekBounds(t time.Time) (time.Time, time.Time) {
	start := s.calendar(t).BeginningOfWeek()
	return start.UTC(), start.AddDate(0, 0, 7).UTC()
}

// dayBounds returns the [start, end) calendar day containing t.
func (s Settings) dayBounds(t time.Time) (time.Time, time.Time) {
	start := s.calendar(t).BeginningOfDay()
	return start.UTC(), start.AddDate(0, 0, 1).UTC()
}

// endOfDueDay is the last instant a task with the given due date may be
// started.
func (s Settings) endOfDueDay(due time.Time) time.Time {
	return s.calendar(due).EndOfDay().UTC()
}

// policyWindow returns the window a task's cap applies to at instant at:
// the calendar week for per_week tasks, unbounded otherwise.
func (s Settings) policyWindow(task *models.Task, at time.Time) window {
	if task.PerWeek() {
		from, to := s.weekBounds(at)
		return window{From: &from, To: &to}
	}
	return window{}
}

// window is a half-open [From, To) range; nil bounds are open.
type window struct {
	From *time.Time
	To   *time.Time
}

func (w window) contains(t time.Time) bool {
	if w.From != nil && t.Before(*w.From) {
		return false
	}
	if w.To != nil && !t.Before(*w.To) {
		return false
	}
	return true
}

// stamp normalises a timestamp for storage: UTC, whole seconds. Stored times
// compare lexically in SQLite, so every bound goes through here.
func stamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}
