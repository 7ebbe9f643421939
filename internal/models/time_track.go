package models

import "time"

// TimeTrack is one timer run for a user. A nil EndTime means the timer is
// active; at most one active row exists per user.
type TimeTrack struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	UserID          uint       `gorm:"not null;index:idx_time_track_user_end,priority:1" json:"user_id"`
	TaskID          *uint      `gorm:"index" json:"task_id"`
	ProjectID       *uint      `json:"project_id"`
	StartTime       time.Time  `gorm:"not null;index" json:"start_time"`
	EndTime         *time.Time `gorm:"index:idx_time_track_user_end,priority:2" json:"end_time"`
	DurationSeconds int        `gorm:"not null;default:0" json:"duration_seconds"`
	Description     string     `json:"description"`
	Activity        *float64   `json:"activity"` // derived percentage, set on finalize
	LastSeenAt      *time.Time `json:"last_seen_at"`

	Task *Task `gorm:"constraint:OnUpdate:CASCADE,OnDelete:SET NULL;" json:"task,omitempty"`
}

// Active reports whether the timer is still running.
func (t *TimeTrack) Active() bool {
	return t.EndTime == nil
}

// Elapsed returns the in-flight duration of an active timer at now, or the
// stored duration of a finished one.
func (t *TimeTrack) Elapsed(now time.Time) int {
	if t.EndTime != nil {
		return t.DurationSeconds
	}
	d := int(now.Sub(t.StartTime).Seconds())
	if d < 0 {
		return 0
	}
	return d
}
