package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/balkashynov/tally/internal/clock"
	"github.com/balkashynov/tally/internal/models"
)

// StartRequest holds the data needed to start a timer
type StartRequest struct {
	TaskID      *uint
	ProjectID   *uint
	Description string
}

// TimeTrackService enforces per-task time caps over timer runs.
type TimeTrackService struct {
	db       *gorm.DB
	clock    clock.Clock
	settings Settings
	log      *slog.Logger
}

func NewTimeTrackService(db *gorm.DB, clk clock.Clock, settings Settings, log *slog.Logger) *TimeTrackService {
	return &TimeTrackService{db: db, clock: clk, settings: settings, log: log}
}

func (s *TimeTrackService) now() time.Time {
	return stamp(s.clock.Now())
}

// Start starts a new timer for userID. Any other active timer of the user is
// finalized first so cap accounting only ever sums closed intervals.
func (s *TimeTrackService) Start(ctx context.Context, userID uint, req StartRequest) (*models.TimeTrack, error) {
	now := s.now()
	var track models.TimeTrack

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var task *models.Task
		if req.TaskID != nil {
			t, err := getTask(tx, *req.TaskID)
			if err != nil {
				return err
			}
			if t.Status == models.TaskStatusCompleted {
				return errForbidden("Task is already completed")
			}
			if t.DueDate != nil && now.After(s.settings.endOfDueDay(*t.DueDate)) {
				return errPastDue(*t.DueDate)
			}
			task = t
		}

		var active []models.TimeTrack
		if err := tx.Where("user_id = ? AND end_time IS NULL", userID).Find(&active).Error; err != nil {
			return err
		}
		for i := range active {
			if err := s.settings.finalize(tx, &active[i], now, now); err != nil {
				return fmt.Errorf("failed to finalize time track #%d: %w", active[i].ID, err)
			}
			s.log.Info("superseded active time track", "time_track_id", active[i].ID, "user_id", userID, "duration_seconds", active[i].DurationSeconds)
		}

		projectID := req.ProjectID
		if task != nil {
			if capSeconds := task.CapSeconds(); capSeconds > 0 {
				tracked, err := trackedSeconds(tx, userID, task.ID, s.settings.policyWindow(task, now), 0)
				if err != nil {
					return err
				}
				if tracked >= capSeconds {
					return errCapReached(capSeconds, tracked)
				}
			}
			if task.ProjectID != nil {
				projectID = task.ProjectID
			}
		}

		track = models.TimeTrack{
			UserID:      userID,
			TaskID:      req.TaskID,
			ProjectID:   projectID,
			StartTime:   now,
			Description: req.Description,
			LastSeenAt:  &now,
		}
		return tx.Create(&track).Error
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("time track started", "time_track_id", track.ID, "user_id", userID, "task_id", track.TaskID)
	return &track, nil
}

// Stop stops the timer with the given ID. Stopping an already finished timer
// returns it unchanged.
func (s *TimeTrackService) Stop(ctx context.Context, userID, trackID uint) (*models.TimeTrack, error) {
	now := s.now()
	var track models.TimeTrack

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&track, trackID).Error; err != nil {
			if isNotFound(err) {
				return errNotFound(fmt.Sprintf("Time track #%d not found", trackID))
			}
			return err
		}
		if track.UserID != userID {
			return errForbidden("This time track belongs to another user")
		}
		if !track.Active() {
			return nil
		}
		return s.settings.finalize(tx, &track, now, now)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("time track stopped", "time_track_id", track.ID, "user_id", userID, "duration_seconds", track.DurationSeconds)
	return &track, nil
}

// Heartbeat marks the user's active timer as seen now.
func (s *TimeTrackService) Heartbeat(ctx context.Context, userID uint) (*models.TimeTrack, error) {
	now := s.now()
	var track models.TimeTrack

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ? AND end_time IS NULL", userID).Order("start_time DESC").First(&track).Error; err != nil {
			if isNotFound(err) {
				return errNotFound("No active time track")
			}
			return err
		}
		track.LastSeenAt = &now
		return tx.Model(&track).Update("last_seen_at", now).Error
	})
	if err != nil {
		return nil, err
	}
	return &track, nil
}

// Active returns the user's running timer after sweeping stale ones, or nil
// if there is none.
func (s *TimeTrackService) Active(ctx context.Context, userID uint) (*models.TimeTrack, error) {
	if _, err := s.SweepStale(ctx, &userID); err != nil {
		return nil, err
	}

	var track models.TimeTrack
	err := s.db.WithContext(ctx).Where("user_id = ? AND end_time IS NULL", userID).Order("start_time DESC").First(&track).Error
	if err != nil {
		if isNotFound(err) {
			return nil, nil // No active timer is not an error
		}
		return nil, err
	}
	return &track, nil
}

// List returns the user's most recent timers after sweeping stale ones.
func (s *TimeTrackService) List(ctx context.Context, userID uint, limit int) ([]models.TimeTrack, error) {
	if _, err := s.SweepStale(ctx, &userID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	var tracks []models.TimeTrack
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("start_time DESC").
		Limit(limit).
		Find(&tracks).Error
	if err != nil {
		return nil, err
	}
	return tracks, nil
}

// SweepStale finalizes active timers whose owner stopped sending heartbeats.
// A timer is stale once its last-seen marker (its start when never seen) is
// older than the stale threshold; it ends at that marker. A nil userID sweeps
// every user.
func (s *TimeTrackService) SweepStale(ctx context.Context, userID *uint) (int, error) {
	now := s.now()
	swept := 0

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Where("end_time IS NULL")
		if userID != nil {
			q = q.Where("user_id = ?", *userID)
		}
		var active []models.TimeTrack
		if err := q.Find(&active).Error; err != nil {
			return err
		}

		for i := range active {
			t := &active[i]
			marker := t.StartTime
			if t.LastSeenAt != nil {
				marker = *t.LastSeenAt
			}
			if now.Sub(marker) <= s.settings.StaleAfter {
				continue
			}
			end := marker
			if end.Before(t.StartTime) {
				end = now
			}
			if err := s.settings.finalize(tx, t, end, end); err != nil {
				return fmt.Errorf("failed to finalize stale time track #%d: %w", t.ID, err)
			}
			swept++
			s.log.Info("finalized stale time track", "time_track_id", t.ID, "user_id", t.UserID, "last_seen_at", marker, "duration_seconds", t.DurationSeconds)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return swept, nil
}
