package models

import "time"

// Period kinds accepted by the remaining-time summary
const (
	PeriodTotal = "total"
	PeriodDay   = "day"
	PeriodWeek  = "week"
	PeriodRange = "range"
)

// Period selects which time tracks count toward TrackedSeconds. From/To are
// only read for PeriodRange.
type Period struct {
	Kind string
	From time.Time
	To   time.Time
}

// Summary is the cap picture of a task for one user.
type Summary struct {
	TaskID           uint       `json:"task_id"`
	Policy           string     `json:"time_reset_policy"`
	Period           string     `json:"period"`
	From             *time.Time `json:"from,omitempty"`
	To               *time.Time `json:"to,omitempty"`
	CapSeconds       int        `json:"cap_seconds"`
	TrackedSeconds   int        `json:"tracked_seconds"`
	ActiveSeconds    int        `json:"active_seconds"`
	RemainingSeconds *int       `json:"remaining_seconds"` // nil when the task has no cap
}
