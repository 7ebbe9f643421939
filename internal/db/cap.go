package db

import (
	"fmt"
	"math"
	"time"

	"gorm.io/gorm"

	"github.com/balkashynov/tally/internal/models"
)

// defaultScreenshotWeight is the weight of a screenshot that carries no
// activity interval.
const defaultScreenshotWeight = 60 * time.Second

// activityMargin widens the screenshot lookup window on both sides of a
// timer.
const activityMargin = time.Minute

// trackedSeconds sums the durations of finished time tracks for (user, task)
// whose start falls inside w, skipping excludeID.
func trackedSeconds(tx *gorm.DB, userID, taskID uint, w window, excludeID uint) (int, error) {
	q := tx.Model(&models.TimeTrack{}).
		Where("user_id = ? AND task_id = ? AND end_time IS NOT NULL", userID, taskID)
	if excludeID != 0 {
		q = q.Where("id <> ?", excludeID)
	}
	if w.From != nil {
		q = q.Where("start_time >= ?", stamp(*w.From))
	}
	if w.To != nil {
		q = q.Where("start_time < ?", stamp(*w.To))
	}

	var total int64
	if err := q.Select("COALESCE(SUM(duration_seconds), 0)").Row().Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to sum tracked time: %w", err)
	}
	return int(total), nil
}

// trimToRemainingCap returns candidate reduced to whatever is left of the
// task's cap for userID, counting every other finished row in the policy
// window of at. Uncapped tasks return candidate unchanged. The result is
// never negative.
func (s Settings) trimToRemainingCap(tx *gorm.DB, task *models.Task, userID uint, candidate int, excludeID uint, at time.Time) (int, error) {
	if candidate < 0 {
		candidate = 0
	}
	capSeconds := task.CapSeconds()
	if capSeconds == 0 {
		return candidate, nil
	}

	tracked, err := trackedSeconds(tx, userID, task.ID, s.policyWindow(task, at), excludeID)
	if err != nil {
		return 0, err
	}
	remaining := capSeconds - tracked
	if remaining < 0 {
		remaining = 0
	}
	if candidate > remaining {
		return remaining, nil
	}
	return candidate, nil
}

// weightedActivity averages the activity percentage of the user's
// screenshots overlapping [from, to], weighting each by the length of its
// activity interval. Returns nil when no screenshot overlaps.
func weightedActivity(tx *gorm.DB, userID uint, taskID *uint, from, to time.Time) (*float64, error) {
	from, to = stamp(from), stamp(to)
	implicitFrom := from.Add(-defaultScreenshotWeight)

	q := tx.Model(&models.Screenshot{}).Where("user_id = ?", userID)
	if taskID != nil {
		q = q.Where("task_id = ?", *taskID)
	}
	q = q.Where(
		tx.Where("activity_start IS NOT NULL AND activity_end IS NOT NULL AND activity_start <= ? AND activity_end >= ?", to, from).
			Or("(activity_start IS NULL OR activity_end IS NULL) AND taken_at >= ? AND taken_at <= ?", implicitFrom, to),
	)

	var shots []models.Screenshot
	if err := q.Find(&shots).Error; err != nil {
		return nil, fmt.Errorf("failed to load screenshots: %w", err)
	}
	return averageActivity(shots), nil
}

func averageActivity(shots []models.Screenshot) *float64 {
	var weighted, total float64
	for i := range shots {
		w := float64(shots[i].IntervalSeconds())
		if w == 0 {
			w = defaultScreenshotWeight.Seconds()
		}
		weighted += shots[i].ActivityPercentage * w
		total += w
	}
	if total == 0 {
		return nil
	}
	avg := math.Round(weighted/total*100) / 100
	return &avg
}

// finalize closes an active time track at end. The duration is trimmed to
// the task's remaining cap, pulling the end time back to match, and the
// activity percentage is derived from screenshots up to activityUntil.
func (s Settings) finalize(tx *gorm.DB, track *models.TimeTrack, end, activityUntil time.Time) error {
	start := track.StartTime
	end = stamp(end)
	if end.Before(start) {
		end = start
	}
	duration := int(end.Sub(start).Seconds())

	if track.TaskID != nil {
		task, err := getTask(tx, *track.TaskID)
		if err != nil {
			return err
		}
		trimmed, err := s.trimToRemainingCap(tx, task, track.UserID, duration, track.ID, start)
		if err != nil {
			return err
		}
		if trimmed < duration {
			duration = trimmed
			end = start.Add(time.Duration(trimmed) * time.Second)
		}
	}

	activity, err := weightedActivity(tx, track.UserID, track.TaskID, start.Add(-activityMargin), activityUntil.Add(activityMargin))
	if err != nil {
		return err
	}

	track.EndTime = &end
	track.DurationSeconds = duration
	track.Activity = activity
	return tx.Model(track).Select("end_time", "duration_seconds", "activity").Updates(track).Error
}
