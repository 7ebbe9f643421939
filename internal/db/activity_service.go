package db

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/balkashynov/tally/internal/models"
)

// Outcome says how a submitted session was reconciled.
type Outcome string

const (
	OutcomeRecorded     Outcome = "recorded"
	OutcomeDeduplicated Outcome = "deduplicated"
	OutcomeMerged       Outcome = "merged"
	OutcomeIgnored      Outcome = "ignored"
)

// Message is the stable response text for the outcome.
func (o Outcome) Message() string {
	switch o {
	case OutcomeDeduplicated:
		return "Activity session deduplicated"
	case OutcomeMerged:
		return "Activity session merged"
	case OutcomeIgnored:
		return "Ignored short session"
	default:
		return "Activity session recorded"
	}
}

// SessionInput is one activity session candidate as posted by a client.
type SessionInput struct {
	UserID          uint
	TaskID          uint
	AppName         string
	WindowTitle     *string
	URL             *string
	Start           time.Time
	End             time.Time
	DurationSeconds int
	KeyboardClicks  int
	MouseClicks     int
}

// RecordResult is the reconciled state after a submission. Session is nil
// for ignored submissions.
type RecordResult struct {
	Outcome Outcome
	Session *models.ActivitySession
}

// ActivityService reconciles posted activity sessions: exact repeats are
// deduplicated, continuing sessions merged, everything else upserted on the
// (user, task, app, start, end) key.
type ActivityService struct {
	db       *gorm.DB
	authz    Authorizer
	settings Settings
	log      *slog.Logger
}

func NewActivityService(db *gorm.DB, authz Authorizer, settings Settings, log *slog.Logger) *ActivityService {
	return &ActivityService{db: db, authz: authz, settings: settings, log: log}
}

// Record validates and reconciles one session candidate.
func (s *ActivityService) Record(ctx context.Context, in SessionInput) (*RecordResult, error) {
	in.AppName = strings.TrimSpace(in.AppName)
	if in.AppName == "" {
		return nil, errInvalid("app_name is required")
	}
	if in.Start.IsZero() || in.End.IsZero() {
		return nil, errInvalid("start_time and end_time are required")
	}
	in.Start, in.End = stamp(in.Start), stamp(in.End)
	if in.End.Before(in.Start) {
		return nil, errInvalid("end_time must not be before start_time")
	}
	if in.KeyboardClicks < 0 || in.MouseClicks < 0 {
		return nil, errInvalid("click counts must not be negative")
	}
	in.WindowTitle = nonEmpty(in.WindowTitle)
	in.URL = nonEmpty(in.URL)

	span := int(in.End.Sub(in.Start).Seconds())
	if in.DurationSeconds <= 0 || in.DurationSeconds > span {
		in.DurationSeconds = span
	}

	task, err := getTask(s.db.WithContext(ctx), in.TaskID)
	if err != nil {
		return nil, err
	}
	if err := authorizeTask(ctx, s.db, s.authz, in.UserID, task); err != nil {
		return nil, err
	}

	if time.Duration(in.DurationSeconds)*time.Second < s.settings.MinSession {
		return &RecordResult{Outcome: OutcomeIgnored}, nil
	}

	var result RecordResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = s.reconcile(tx, task, in)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record activity session: %w", err)
	}

	s.log.Debug("activity session reconciled",
		"outcome", string(result.Outcome),
		"user_id", in.UserID,
		"task_id", in.TaskID,
		"app_name", in.AppName,
		"duration_seconds", in.DurationSeconds,
	)
	return &result, nil
}

func (s *ActivityService) reconcile(tx *gorm.DB, task *models.Task, in SessionInput) (RecordResult, error) {
	// Exact repeat of an earlier submission: only the counts accumulate.
	res := tx.Model(&models.ActivitySession{}).
		Where("user_id = ? AND task_id = ? AND app_name = ? AND start_time = ? AND end_time = ?",
			in.UserID, in.TaskID, in.AppName, in.Start, in.End).
		Updates(map[string]any{
			"keyboard_clicks": gorm.Expr("keyboard_clicks + ?", in.KeyboardClicks),
			"mouse_clicks":    gorm.Expr("mouse_clicks + ?", in.MouseClicks),
		})
	if res.Error != nil {
		return RecordResult{}, res.Error
	}
	if res.RowsAffected > 0 {
		row, err := findByKey(tx, in)
		return RecordResult{Outcome: OutcomeDeduplicated, Session: row}, err
	}

	// Continuation of the most recent session in the same context that did
	// not start after the incoming one. Older segments never fold into a
	// later row.
	var prior models.ActivitySession
	err := tx.Where("user_id = ? AND task_id = ? AND app_name = ? AND start_time <= ?",
		in.UserID, in.TaskID, in.AppName, in.Start).
		Order("end_time DESC").
		First(&prior).Error
	if err != nil && !isNotFound(err) {
		return RecordResult{}, err
	}
	if err == nil && s.continues(&prior, in) {
		updates := map[string]any{
			"keyboard_clicks": gorm.Expr("keyboard_clicks + ?", in.KeyboardClicks),
			"mouse_clicks":    gorm.Expr("mouse_clicks + ?", in.MouseClicks),
		}
		outcome := OutcomeDeduplicated
		if added := extension(&prior, in); added > 0 {
			outcome = OutcomeMerged
			updates["end_time"] = in.End
			updates["duration_seconds"] = gorm.Expr("duration_seconds + ?", added)
		}
		if err := tx.Model(&prior).Updates(updates).Error; err != nil {
			return RecordResult{}, err
		}
		if err := tx.First(&prior, prior.ID).Error; err != nil {
			return RecordResult{}, err
		}
		return RecordResult{Outcome: outcome, Session: &prior}, nil
	}

	// New row. A racing insert of the same key accumulates instead of
	// failing.
	row := models.ActivitySession{
		UserID:          in.UserID,
		TaskID:          in.TaskID,
		ProjectID:       task.ProjectID,
		AppName:         in.AppName,
		WindowTitle:     in.WindowTitle,
		URL:             in.URL,
		StartTime:       in.Start,
		EndTime:         in.End,
		DurationSeconds: in.DurationSeconds,
		KeyboardClicks:  in.KeyboardClicks,
		MouseClicks:     in.MouseClicks,
	}
	err = tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "user_id"}, {Name: "task_id"}, {Name: "app_name"}, {Name: "start_time"}, {Name: "end_time"},
		},
		DoUpdates: clause.Assignments(map[string]any{
			"duration_seconds": gorm.Expr("activity_sessions.duration_seconds + excluded.duration_seconds"),
			"keyboard_clicks":  gorm.Expr("activity_sessions.keyboard_clicks + excluded.keyboard_clicks"),
			"mouse_clicks":     gorm.Expr("activity_sessions.mouse_clicks + excluded.mouse_clicks"),
			"window_title":     gorm.Expr("excluded.window_title"),
			"url":              gorm.Expr("excluded.url"),
			"updated_at":       gorm.Expr("excluded.updated_at"),
		}),
	}).Create(&row).Error
	if err != nil {
		return RecordResult{}, err
	}
	stored, err := findByKey(tx, in)
	return RecordResult{Outcome: OutcomeRecorded, Session: stored}, err
}

// continues reports whether in picks up where prior left off: same window
// title, url or url host, starting no more than MergeGap after prior ended.
func (s *ActivityService) continues(prior *models.ActivitySession, in SessionInput) bool {
	if in.Start.Before(prior.StartTime) || in.Start.Sub(prior.EndTime) > s.settings.MergeGap {
		return false
	}
	if sameString(prior.WindowTitle, in.WindowTitle) || sameString(prior.URL, in.URL) {
		return true
	}
	return sameHost(prior.URL, in.URL)
}

// extension is the duration in adds to prior. A session already inside
// prior's span adds nothing; an overlapping one adds only the part past
// prior's end.
func extension(prior *models.ActivitySession, in SessionInput) int {
	if !in.End.After(prior.EndTime) {
		return 0
	}
	if !in.Start.Before(prior.EndTime) {
		return in.DurationSeconds
	}
	past := int(in.End.Sub(prior.EndTime).Seconds())
	return min(past, in.DurationSeconds)
}

func findByKey(tx *gorm.DB, in SessionInput) (*models.ActivitySession, error) {
	var row models.ActivitySession
	err := tx.Where("user_id = ? AND task_id = ? AND app_name = ? AND start_time = ? AND end_time = ?",
		in.UserID, in.TaskID, in.AppName, in.Start, in.End).First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func nonEmpty(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func sameString(a, b *string) bool {
	return a != nil && b != nil && *a == *b
}

func sameHost(a, b *string) bool {
	if a == nil || b == nil {
		return false
	}
	ha, hb := hostOf(*a), hostOf(*b)
	return ha != "" && ha == hb
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
