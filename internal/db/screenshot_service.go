package db

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"time"

	"gorm.io/gorm"

	"github.com/balkashynov/tally/internal/clock"
	"github.com/balkashynov/tally/internal/models"
)

// BlobStore persists screenshot images.
type BlobStore interface {
	Put(ctx context.Context, ext string, data []byte) (string, error)
	Delete(name string) error
}

// ScreenshotInput is one uploaded capture with its activity snapshot.
type ScreenshotInput struct {
	UserID             uint
	TaskID             *uint
	Image              []byte
	KeyboardClicks     int
	MouseClicks        int
	ActivityPercentage *float64
	ActivityStart      *time.Time
	ActivityEnd        *time.Time
	Minutes            []models.MinuteActivity
}

type ScreenshotService struct {
	db       *gorm.DB
	blobs    BlobStore
	authz    Authorizer
	clock    clock.Clock
	settings Settings
	log      *slog.Logger
}

func NewScreenshotService(db *gorm.DB, blobs BlobStore, authz Authorizer, clk clock.Clock, settings Settings, log *slog.Logger) *ScreenshotService {
	return &ScreenshotService{db: db, blobs: blobs, authz: authz, clock: clk, settings: settings, log: log}
}

// Create stores the image and its activity record. Counts are re-derived
// from the minute breakdown; a missing (empty or all-zero) breakdown is
// backfilled from activity sessions overlapping the interval.
func (s *ScreenshotService) Create(ctx context.Context, in ScreenshotInput) (*models.Screenshot, error) {
	if len(in.Image) == 0 {
		return nil, errInvalid("image is required")
	}
	var ext string
	switch http.DetectContentType(in.Image) {
	case "image/jpeg":
		ext = "jpg"
	case "image/png":
		ext = "png"
	default:
		return nil, errInvalid("image must be a JPEG or PNG")
	}
	if in.KeyboardClicks < 0 || in.MouseClicks < 0 {
		return nil, errInvalid("click counts must not be negative")
	}
	if (in.ActivityStart == nil) != (in.ActivityEnd == nil) {
		return nil, errInvalid("activity_start and activity_end must be given together")
	}
	if in.ActivityStart != nil {
		start, end := stamp(*in.ActivityStart), stamp(*in.ActivityEnd)
		if end.Before(start) {
			return nil, errInvalid("activity_end must not be before activity_start")
		}
		in.ActivityStart, in.ActivityEnd = &start, &end
	}

	if in.TaskID != nil {
		task, err := getTask(s.db.WithContext(ctx), *in.TaskID)
		if err != nil {
			return nil, err
		}
		if err := authorizeTask(ctx, s.db, s.authz, in.UserID, task); err != nil {
			return nil, err
		}
	}

	minutes := normaliseMinutes(in.Minutes)
	keyboard, mouse := in.KeyboardClicks, in.MouseClicks
	if hasActivity(minutes) {
		keyboard, mouse = sumMinutes(minutes)
	} else if in.ActivityStart != nil {
		filled, err := s.backfillMinutes(ctx, in.UserID, in.TaskID, *in.ActivityStart, *in.ActivityEnd)
		if err != nil {
			return nil, err
		}
		if hasActivity(filled) {
			minutes = filled
			keyboard, mouse = sumMinutes(minutes)
		}
	}

	var pct float64
	if in.ActivityPercentage != nil {
		pct = math.Max(0, math.Min(100, *in.ActivityPercentage))
	} else {
		pct = activeMinuteShare(minutes)
	}

	name, err := s.blobs.Put(ctx, ext, in.Image)
	if err != nil {
		return nil, err
	}

	shot := models.Screenshot{
		UserID:             in.UserID,
		TaskID:             in.TaskID,
		FileName:           name,
		SizeBytes:          len(in.Image),
		TakenAt:            stamp(s.clock.Now()),
		KeyboardClicks:     keyboard,
		MouseClicks:        mouse,
		ActivityPercentage: math.Round(pct*100) / 100,
		ActivityStart:      in.ActivityStart,
		ActivityEnd:        in.ActivityEnd,
		Minutes:            minutes,
	}
	if err := s.db.WithContext(ctx).Create(&shot).Error; err != nil {
		if derr := s.blobs.Delete(name); derr != nil {
			s.log.Warn("failed to remove orphaned screenshot file", "file_name", name, "error", derr)
		}
		return nil, fmt.Errorf("failed to save screenshot: %w", err)
	}

	s.log.Info("screenshot stored", "screenshot_id", shot.ID, "user_id", in.UserID, "size_bytes", shot.SizeBytes, "activity_percentage", shot.ActivityPercentage)
	return &shot, nil
}

// backfillMinutes rebuilds a minute breakdown for [from, to) by spreading
// each overlapping activity session's counts over its minutes in proportion
// to the overlap.
// Owned returns the screenshot stored under fileName if userID may view it:
// its owner, or an admin or manager. Anyone else gets not found.
func (s *ScreenshotService) Owned(ctx context.Context, userID uint, fileName string) (*models.Screenshot, error) {
	var shot models.Screenshot
	err := s.db.WithContext(ctx).Where("file_name = ?", fileName).First(&shot).Error
	if err != nil {
		if isNotFound(err) {
			return nil, errNotFound("Screenshot not found")
		}
		return nil, err
	}
	if shot.UserID == userID {
		return &shot, nil
	}
	access, err := s.authz.Authorize(ctx, userID, nil)
	if err != nil {
		return nil, err
	}
	if !access.Privileged {
		return nil, errNotFound("Screenshot not found")
	}
	return &shot, nil
}

func (s *ScreenshotService) backfillMinutes(ctx context.Context, userID uint, taskID *uint, from, to time.Time) ([]models.MinuteActivity, error) {
	if !to.After(from) {
		return nil, nil
	}

	q := s.db.WithContext(ctx).
		Where("user_id = ? AND start_time < ? AND end_time > ?", userID, to, from)
	if taskID != nil {
		q = q.Where("task_id = ?", *taskID)
	}
	var sessions []models.ActivitySession
	if err := q.Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("failed to load activity sessions: %w", err)
	}

	type acc struct {
		label           string
		start, end      time.Time
		keyboard, mouse float64
	}
	var buckets []acc
	loc := s.settings.Location
	if loc == nil {
		loc = time.UTC
	}
	for m := from.Truncate(time.Minute); m.Before(to); m = m.Add(time.Minute) {
		b := acc{label: m.In(loc).Format("15:04"), start: m, end: m.Add(time.Minute)}
		if b.start.Before(from) {
			b.start = from
		}
		if b.end.After(to) {
			b.end = to
		}
		buckets = append(buckets, b)
	}

	for _, sess := range sessions {
		span := sess.EndTime.Sub(sess.StartTime).Seconds()
		if span <= 0 {
			continue
		}
		for i := range buckets {
			overlap := overlapSeconds(sess.StartTime, sess.EndTime, buckets[i].start, buckets[i].end)
			if overlap <= 0 {
				continue
			}
			share := overlap / span
			buckets[i].keyboard += float64(sess.KeyboardClicks) * share
			buckets[i].mouse += float64(sess.MouseClicks) * share
		}
	}

	minutes := make([]models.MinuteActivity, 0, len(buckets))
	for _, b := range buckets {
		m := models.MinuteActivity{
			Minute:   b.label,
			Keyboard: int(math.Round(b.keyboard)),
			Mouse:    int(math.Round(b.mouse)),
		}
		m.Total = m.Keyboard + m.Mouse
		minutes = append(minutes, m)
	}
	return minutes, nil
}

func overlapSeconds(aStart, aEnd, bStart, bEnd time.Time) float64 {
	start := aStart
	if bStart.After(start) {
		start = bStart
	}
	end := aEnd
	if bEnd.Before(end) {
		end = bEnd
	}
	if !end.After(start) {
		return 0
	}
	return end.Sub(start).Seconds()
}

func normaliseMinutes(in []models.MinuteActivity) []models.MinuteActivity {
	out := make([]models.MinuteActivity, 0, len(in))
	for _, m := range in {
		if m.Keyboard < 0 {
			m.Keyboard = 0
		}
		if m.Mouse < 0 {
			m.Mouse = 0
		}
		if m.Movements < 0 {
			m.Movements = 0
		}
		m.Total = m.Keyboard + m.Mouse + m.Movements
		out = append(out, m)
	}
	return out
}

func hasActivity(minutes []models.MinuteActivity) bool {
	for _, m := range minutes {
		if m.Total > 0 {
			return true
		}
	}
	return false
}

func sumMinutes(minutes []models.MinuteActivity) (keyboard, mouse int) {
	for _, m := range minutes {
		keyboard += m.Keyboard
		mouse += m.Mouse
	}
	return keyboard, mouse
}

// activeMinuteShare is the percentage of minutes with any activity.
func activeMinuteShare(minutes []models.MinuteActivity) float64 {
	if len(minutes) == 0 {
		return 0
	}
	active := 0
	for _, m := range minutes {
		if m.Total > 0 {
			active++
		}
	}
	return float64(active) / float64(len(minutes)) * 100
}
