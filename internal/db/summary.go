package db

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/balkashynov/tally/internal/models"
)

// Remaining reports cap, tracked and remaining seconds of a task for userID.
// TrackedSeconds covers the requested period; RemainingSeconds is measured
// against the cap's own window (lifetime, or the current week for per_week
// tasks) so weekly time is never charged twice. Both include the in-flight
// time of a running timer.
func (s *TimeTrackService) Remaining(ctx context.Context, userID, taskID uint, period models.Period) (*models.Summary, error) {
	if _, err := s.SweepStale(ctx, &userID); err != nil {
		return nil, err
	}
	now := s.now()
	if period.Kind == "" {
		period.Kind = models.PeriodTotal
	}

	w, err := s.periodWindow(period, now)
	if err != nil {
		return nil, err
	}

	var summary *models.Summary
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		task, err := getTask(tx, taskID)
		if err != nil {
			return err
		}

		inFlight := 0
		var active models.TimeTrack
		err = tx.Where("user_id = ? AND task_id = ? AND end_time IS NULL", userID, taskID).First(&active).Error
		switch {
		case err == nil:
			inFlight = active.Elapsed(now)
		case !isNotFound(err):
			return err
		}

		tracked, err := trackedSeconds(tx, userID, taskID, w, 0)
		if err != nil {
			return err
		}
		if inFlight > 0 && w.contains(active.StartTime) {
			tracked += inFlight
		}

		summary = &models.Summary{
			TaskID:         taskID,
			Policy:         task.TimeResetPolicy,
			Period:         period.Kind,
			From:           w.From,
			To:             w.To,
			CapSeconds:     task.CapSeconds(),
			TrackedSeconds: tracked,
			ActiveSeconds:  inFlight,
		}

		if summary.CapSeconds > 0 {
			pw := s.settings.policyWindow(task, now)
			capTracked, err := trackedSeconds(tx, userID, taskID, pw, 0)
			if err != nil {
				return err
			}
			if inFlight > 0 && pw.contains(active.StartTime) {
				capTracked += inFlight
			}
			remaining := summary.CapSeconds - capTracked
			if remaining < 0 {
				remaining = 0
			}
			summary.RemainingSeconds = &remaining
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}

func (s *TimeTrackService) periodWindow(p models.Period, now time.Time) (window, error) {
	switch p.Kind {
	case "", models.PeriodTotal:
		return window{}, nil
	case models.PeriodDay:
		from, to := s.settings.dayBounds(now)
		return window{From: &from, To: &to}, nil
	case models.PeriodWeek:
		from, to := s.settings.weekBounds(now)
		return window{From: &from, To: &to}, nil
	case models.PeriodRange:
		if p.From.IsZero() || p.To.IsZero() {
			return window{}, errInvalid("range period needs both from and to")
		}
		if !p.To.After(p.From) {
			return window{}, errInvalid("range end must be after its start")
		}
		from, to := stamp(p.From), stamp(p.To)
		return window{From: &from, To: &to}, nil
	default:
		return window{}, errInvalid("unknown period %q (use total, day, week or range)", p.Kind)
	}
}
