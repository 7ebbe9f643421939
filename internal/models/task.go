package models

import (
	"time"

	"gorm.io/gorm"
)

// Task statuses
const (
	TaskStatusTodo       = "todo"
	TaskStatusInProgress = "in_progress"
	TaskStatusCompleted  = "completed"
)

// Time reset policies
const (
	ResetPolicyFixed   = "fixed"    // cap applies over the task's whole lifetime
	ResetPolicyPerWeek = "per_week" // cap resets every calendar week
)

// Task is the quota envelope time tracks are accounted against.
type Task struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	ProjectID       *uint      `gorm:"index" json:"project_id"`
	Title           string     `gorm:"not null" json:"title"`
	Status          string     `gorm:"default:todo" json:"status"`
	AssignedTo      *uint      `gorm:"index" json:"assigned_to"`
	CreatedBy       *uint      `json:"created_by"`
	EstimatedHours  float64    `gorm:"default:0" json:"estimated_hours"` // 0 means no cap
	TimeResetPolicy string     `gorm:"default:fixed" json:"time_reset_policy"`
	DueDate         *time.Time `json:"due_date"`

	// Relationships
	ActivitySessions []ActivitySession `gorm:"foreignKey:TaskID;constraint:OnDelete:CASCADE;" json:"-"`
}

// CapSeconds returns the task's time cap, or 0 when uncapped.
func (t *Task) CapSeconds() int {
	if t == nil || t.EstimatedHours <= 0 {
		return 0
	}
	return int(t.EstimatedHours * 3600)
}

// PerWeek reports whether the cap resets every calendar week.
func (t *Task) PerWeek() bool {
	return t != nil && t.TimeResetPolicy == ResetPolicyPerWeek
}
