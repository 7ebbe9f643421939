package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/balkashynov/tally/internal/models"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	Status       int        `json:"-"`
	Message      string     `json:"message"`
	LimitHours   *float64   `json:"limit_hours,omitempty"`
	TrackedHours *float64   `json:"tracked_hours,omitempty"`
	DueDate      *time.Time `json:"due_date,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (HTTP %d)", e.Message, e.Status)
}

// CapReached reports whether the server refused because the task's time
// cap is used up.
func (e *APIError) CapReached() bool {
	return e.Status == http.StatusForbidden && e.LimitHours != nil
}

// Client talks to the tally server on behalf of one user.
type Client struct {
	baseURL string
	userID  uint
	http    *http.Client
}

func New(baseURL string, userID uint) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		userID:  userID,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// SessionRequest is one activity session to submit.
type SessionRequest struct {
	TaskID         uint      `json:"task_id"`
	AppName        string    `json:"app_name"`
	WindowTitle    *string   `json:"window_title,omitempty"`
	URL            *string   `json:"url,omitempty"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	Duration       int       `json:"duration"`
	KeyboardClicks int       `json:"keyboard_clicks"`
	MouseClicks    int       `json:"mouse_clicks"`
}

// SessionResult is the server's reconciliation outcome.
type SessionResult struct {
	Created bool                    `json:"-"`
	Message string                  `json:"message"`
	Session *models.ActivitySession `json:"session,omitempty"`
}

func (c *Client) PostSession(ctx context.Context, req SessionRequest) (*SessionResult, error) {
	var out SessionResult
	status, err := c.doJSON(ctx, http.MethodPost, "/activity-sessions", req, &out)
	if err != nil {
		return nil, err
	}
	out.Created = status == http.StatusCreated
	return &out, nil
}

func (c *Client) Start(ctx context.Context, taskID *uint, description string) (*models.TimeTrack, error) {
	body := map[string]any{"task_id": taskID, "description": description}
	var track models.TimeTrack
	if _, err := c.doJSON(ctx, http.MethodPost, "/time-tracks/start", body, &track); err != nil {
		return nil, err
	}
	return &track, nil
}

func (c *Client) Stop(ctx context.Context, trackID uint) (*models.TimeTrack, error) {
	var track models.TimeTrack
	path := fmt.Sprintf("/time-tracks/%d/stop", trackID)
	if _, err := c.doJSON(ctx, http.MethodPost, path, nil, &track); err != nil {
		return nil, err
	}
	return &track, nil
}

func (c *Client) Heartbeat(ctx context.Context) (*models.TimeTrack, error) {
	var track models.TimeTrack
	if _, err := c.doJSON(ctx, http.MethodPost, "/time-tracks/heartbeat", nil, &track); err != nil {
		return nil, err
	}
	return &track, nil
}

// Active returns the running timer, or nil when there is none.
func (c *Client) Active(ctx context.Context) (*models.TimeTrack, error) {
	var out struct {
		TimeTrack *models.TimeTrack `json:"time_track"`
	}
	if _, err := c.doJSON(ctx, http.MethodGet, "/time-tracks/active", nil, &out); err != nil {
		return nil, err
	}
	return out.TimeTrack, nil
}

// Remaining fetches the cap summary of a task for a period expression
// (total, day, week, dd/mm/yyyy..dd/mm/yyyy).
func (c *Client) Remaining(ctx context.Context, taskID uint, period string) (*models.Summary, error) {
	q := url.Values{}
	q.Set("task_id", strconv.FormatUint(uint64(taskID), 10))
	if period != "" {
		q.Set("period", period)
	}
	var summary models.Summary
	if _, err := c.doJSON(ctx, http.MethodGet, "/time-tracks/remaining?"+q.Encode(), nil, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

func (c *Client) List(ctx context.Context, limit int) ([]models.TimeTrack, error) {
	path := "/time-tracks"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out struct {
		TimeTracks []models.TimeTrack `json:"time_tracks"`
	}
	if _, err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.TimeTracks, nil
}

// ScreenshotUpload is one screenshot with its activity record.
type ScreenshotUpload struct {
	TaskID         *uint
	Image          []byte
	FileName       string
	KeyboardClicks int
	MouseClicks    int
	ActivityStart  *time.Time
	ActivityEnd    *time.Time
	Minutes        []models.MinuteActivity
}

// ScreenshotResult is the stored screenshot and where to fetch its image.
type ScreenshotResult struct {
	Screenshot *models.Screenshot `json:"screenshot"`
	URL        string             `json:"url"`
}

func (c *Client) UploadScreenshot(ctx context.Context, up ScreenshotUpload) (*ScreenshotResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	name := up.FileName
	if name == "" {
		name = "screenshot.jpg"
	}
	fw, err := mw.CreateFormFile("image", name)
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(up.Image); err != nil {
		return nil, err
	}

	fields := map[string]string{
		"keyboard_clicks": strconv.Itoa(up.KeyboardClicks),
		"mouse_clicks":    strconv.Itoa(up.MouseClicks),
	}
	if up.TaskID != nil {
		fields["task_id"] = strconv.FormatUint(uint64(*up.TaskID), 10)
	}
	if up.ActivityStart != nil && up.ActivityEnd != nil {
		fields["activity_start"] = up.ActivityStart.UTC().Format(time.RFC3339)
		fields["activity_end"] = up.ActivityEnd.UTC().Format(time.RFC3339)
	}
	if len(up.Minutes) > 0 {
		minutes, err := json.Marshal(up.Minutes)
		if err != nil {
			return nil, fmt.Errorf("encoding minute breakdown: %w", err)
		}
		fields["minutes"] = string(minutes)
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/screenshots", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out ScreenshotResult
	if _, err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("X-User-ID", strconv.FormatUint(uint64(c.userID), 10))
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) (int, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return 0, err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) (int, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(data, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(data))
			if apiErr.Message == "" {
				apiErr.Message = http.StatusText(resp.StatusCode)
			}
		}
		return resp.StatusCode, apiErr
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decoding response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
