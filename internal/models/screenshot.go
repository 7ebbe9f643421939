package models

import (
	"time"

	"gorm.io/datatypes"
)

// MinuteActivity is one entry of a screenshot's minute breakdown.
type MinuteActivity struct {
	Minute    string `json:"minute"` // HH:MM
	Keyboard  int    `json:"keyboard"`
	Mouse     int    `json:"mouse"`
	Movements int    `json:"movements"`
	Total     int    `json:"total"`
}

// Screenshot is one captured frame plus the activity observed during the
// interval it represents. Rows are never updated after creation.
type Screenshot struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	UserID             uint                                `gorm:"not null;index:idx_screenshot_user_taken,priority:1" json:"user_id"`
	TaskID             *uint                               `gorm:"index" json:"task_id"`
	FileName           string                              `gorm:"not null" json:"file_name"`
	SizeBytes          int                                 `json:"size_bytes"`
	TakenAt            time.Time                           `gorm:"not null;index:idx_screenshot_user_taken,priority:2" json:"taken_at"`
	KeyboardClicks     int                                 `json:"keyboard_clicks"`
	MouseClicks        int                                 `json:"mouse_clicks"`
	ActivityPercentage float64                             `json:"activity_percentage"`
	ActivityStart      *time.Time                          `json:"activity_start"`
	ActivityEnd        *time.Time                          `json:"activity_end"`
	Minutes            datatypes.JSONSlice[MinuteActivity] `json:"minutes"`

	Task *Task `gorm:"constraint:OnDelete:CASCADE;" json:"-"`
}

// IntervalSeconds is the length of the activity interval, or 0 when the
// screenshot carries no interval.
func (s *Screenshot) IntervalSeconds() int {
	if s.ActivityStart == nil || s.ActivityEnd == nil {
		return 0
	}
	d := int(s.ActivityEnd.Sub(*s.ActivityStart).Seconds())
	if d < 0 {
		return 0
	}
	return d
}
