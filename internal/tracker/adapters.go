package tracker

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/balkashynov/tally/internal/client"
	"github.com/balkashynov/tally/internal/models"
	"github.com/balkashynov/tally/internal/screenshot"
	"github.com/balkashynov/tally/internal/segmenter"
)

// API is the slice of the server API a tracking session needs.
// *client.Client implements it.
type API interface {
	Start(ctx context.Context, taskID *uint, description string) (*models.TimeTrack, error)
	Stop(ctx context.Context, trackID uint) (*models.TimeTrack, error)
	Heartbeat(ctx context.Context) (*models.TimeTrack, error)
	Remaining(ctx context.Context, taskID uint, period string) (*models.Summary, error)
	PostSession(ctx context.Context, req client.SessionRequest) (*client.SessionResult, error)
	UploadScreenshot(ctx context.Context, up client.ScreenshotUpload) (*client.ScreenshotResult, error)
}

// sessionPoster posts segmenter output as activity sessions.
type sessionPoster struct {
	api API
}

func (p sessionPoster) PostSession(ctx context.Context, c segmenter.SessionCandidate) error {
	req := client.SessionRequest{
		TaskID:         c.TaskID,
		AppName:        c.Surface.AppName,
		WindowTitle:    optional(c.Surface.WindowTitle),
		URL:            optional(c.Surface.URL),
		StartTime:      c.Start.UTC(),
		EndTime:        c.End.UTC(),
		Duration:       int(c.Duration().Seconds()),
		KeyboardClicks: c.KeyboardClicks,
		MouseClicks:    c.MouseClicks,
	}
	_, err := p.api.PostSession(ctx, req)
	return err
}

// screenshotUploader sends pipeline uploads as multipart screenshots.
type screenshotUploader struct {
	api API
}

func (u screenshotUploader) UploadScreenshot(ctx context.Context, up screenshot.Upload) error {
	taskID := up.TaskID
	start, end := up.ActivityStart.UTC(), up.ActivityEnd.UTC()

	minutes := make([]models.MinuteActivity, 0, len(up.Minutes))
	for _, b := range up.Minutes {
		minutes = append(minutes, models.MinuteActivity{
			Minute:    b.Minute,
			Keyboard:  b.Keyboard,
			Mouse:     b.Mouse,
			Movements: b.Movements,
			Total:     b.Total(),
		})
	}

	_, err := u.api.UploadScreenshot(ctx, client.ScreenshotUpload{
		TaskID:         &taskID,
		Image:          up.Image,
		FileName:       fmt.Sprintf("%s-%s.jpg", up.Kind, uuid.NewString()),
		KeyboardClicks: up.KeyboardClicks,
		MouseClicks:    up.MouseClicks,
		ActivityStart:  &start,
		ActivityEnd:    &end,
		Minutes:        minutes,
	})
	return err
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
