package models

import "time"

// ActivitySession is one contiguous block of observed activity on a
// (user, task, application) tuple. (user, task, app, start, end) is the
// idempotency key for retried submissions.
type ActivitySession struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	UserID          uint      `gorm:"not null;uniqueIndex:idx_activity_session_key,priority:1;index:idx_activity_session_lookup,priority:1" json:"user_id"`
	TaskID          uint      `gorm:"not null;uniqueIndex:idx_activity_session_key,priority:2;index:idx_activity_session_lookup,priority:2" json:"task_id"`
	ProjectID       *uint     `json:"project_id"`
	AppName         string    `gorm:"not null;uniqueIndex:idx_activity_session_key,priority:3;index:idx_activity_session_lookup,priority:3" json:"app_name"`
	WindowTitle     *string   `json:"window_title"`
	URL             *string   `json:"url"`
	StartTime       time.Time `gorm:"not null;uniqueIndex:idx_activity_session_key,priority:4" json:"start_time"`
	EndTime         time.Time `gorm:"not null;uniqueIndex:idx_activity_session_key,priority:5;index:idx_activity_session_lookup,priority:4" json:"end_time"`
	DurationSeconds int       `gorm:"not null;default:0" json:"duration_seconds"`
	KeyboardClicks  int       `gorm:"not null;default:0" json:"keyboard_clicks"`
	MouseClicks     int       `gorm:"not null;default:0" json:"mouse_clicks"`
}
