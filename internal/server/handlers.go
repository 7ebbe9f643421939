package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/balkashynov/tally/internal/db"
	"github.com/balkashynov/tally/internal/models"
	"github.com/balkashynov/tally/internal/parser"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ActivitySessionRequest is the body of POST /activity-sessions.
type ActivitySessionRequest struct {
	TaskID         uint      `json:"task_id"`
	AppName        string    `json:"app_name"`
	WindowTitle    *string   `json:"window_title"`
	URL            *string   `json:"url"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	Duration       int       `json:"duration"`
	KeyboardClicks int       `json:"keyboard_clicks"`
	MouseClicks    int       `json:"mouse_clicks"`
}

type activitySessionResponse struct {
	Message string                  `json:"message"`
	Session *models.ActivitySession `json:"session,omitempty"`
}

func (s *Server) handleActivitySession(w http.ResponseWriter, r *http.Request, userID uint) {
	var req ActivitySessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.TaskID == 0 {
		writeMessage(w, http.StatusBadRequest, "task_id is required")
		return
	}
	if req.StartTime.IsZero() || req.EndTime.IsZero() {
		writeMessage(w, http.StatusBadRequest, "start_time and end_time are required")
		return
	}

	res, err := s.deps.Activity.Record(r.Context(), db.SessionInput{
		UserID:          userID,
		TaskID:          req.TaskID,
		AppName:         req.AppName,
		WindowTitle:     req.WindowTitle,
		URL:             req.URL,
		Start:           req.StartTime,
		End:             req.EndTime,
		DurationSeconds: req.Duration,
		KeyboardClicks:  req.KeyboardClicks,
		MouseClicks:     req.MouseClicks,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if res.Outcome == db.OutcomeRecorded {
		status = http.StatusCreated
	}
	writeJSON(w, status, activitySessionResponse{Message: res.Outcome.Message(), Session: res.Session})
}

// StartRequest is the body of POST /time-tracks/start.
type StartRequest struct {
	TaskID      *uint  `json:"task_id"`
	ProjectID   *uint  `json:"project_id"`
	Description string `json:"description"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request, userID uint) {
	var req StartRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	track, err := s.deps.Tracks.Start(r.Context(), userID, db.StartRequest{
		TaskID:      req.TaskID,
		ProjectID:   req.ProjectID,
		Description: req.Description,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, track)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request, userID uint) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil || id == 0 {
		writeMessage(w, http.StatusBadRequest, "invalid time track id")
		return
	}
	track, err := s.deps.Tracks.Stop(r.Context(), userID, uint(id))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, track)
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request, userID uint) {
	track, err := s.deps.Tracks.Heartbeat(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, track)
}

type activeResponse struct {
	TimeTrack *models.TimeTrack `json:"time_track"`
}

func (s *Server) handleActive(w http.ResponseWriter, r *http.Request, userID uint) {
	track, err := s.deps.Tracks.Active(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, activeResponse{TimeTrack: track})
}

// handleRemaining accepts period=total|day|week|dd/mm/yyyy[..dd/mm/yyyy] or
// an explicit RFC 3339 from/to pair.
func (s *Server) handleRemaining(w http.ResponseWriter, r *http.Request, userID uint) {
	q := r.URL.Query()
	taskID, err := strconv.ParseUint(q.Get("task_id"), 10, 64)
	if err != nil || taskID == 0 {
		writeMessage(w, http.StatusBadRequest, "task_id query parameter is required")
		return
	}

	var period models.Period
	if q.Get("from") != "" || q.Get("to") != "" {
		from, errFrom := time.Parse(time.RFC3339, q.Get("from"))
		to, errTo := time.Parse(time.RFC3339, q.Get("to"))
		if errFrom != nil || errTo != nil {
			writeMessage(w, http.StatusBadRequest, "from and to must both be RFC 3339 timestamps")
			return
		}
		period = models.Period{Kind: models.PeriodRange, From: from, To: to}
	} else {
		period, err = parser.ParsePeriod(q.Get("period"))
		if err != nil {
			writeMessage(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	summary, err := s.deps.Tracks.Remaining(r.Context(), userID, uint(taskID), period)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

type listResponse struct {
	TimeTracks []models.TimeTrack `json:"time_tracks"`
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request, userID uint) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeMessage(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	tracks, err := s.deps.Tracks.List(r.Context(), userID, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if tracks == nil {
		tracks = []models.TimeTrack{}
	}
	writeJSON(w, http.StatusOK, listResponse{TimeTracks: tracks})
}

type screenshotResponse struct {
	Screenshot *models.Screenshot `json:"screenshot"`
	URL        string             `json:"url"`
}

func (s *Server) handleScreenshotUpload(w http.ResponseWriter, r *http.Request, userID uint) {
	limit := s.cfg.MaxUploadBytes
	if limit <= 0 {
		limit = 5 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeMessage(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		writeMessage(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "image file is required")
		return
	}
	defer file.Close()
	image, err := io.ReadAll(file)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "reading image: "+err.Error())
		return
	}

	in, msg := screenshotInput(r, userID)
	if msg != "" {
		writeMessage(w, http.StatusBadRequest, msg)
		return
	}
	in.Image = image

	shot, err := s.deps.Screenshots.Create(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, screenshotResponse{
		Screenshot: shot,
		URL:        "/screenshots/files/" + shot.FileName,
	})
}

// screenshotInput reads the form fields of an upload. A non-empty message
// means the form is invalid.
func screenshotInput(r *http.Request, userID uint) (db.ScreenshotInput, string) {
	in := db.ScreenshotInput{UserID: userID}
	form := func(key string) string { return strings.TrimSpace(r.FormValue(key)) }

	if v := form("task_id"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return in, "task_id must be an integer"
		}
		taskID := uint(id)
		in.TaskID = &taskID
	}
	for key, dst := range map[string]*int{"keyboard_clicks": &in.KeyboardClicks, "mouse_clicks": &in.MouseClicks} {
		if v := form(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return in, key + " must be an integer"
			}
			*dst = n
		}
	}
	if v := form("activity_percentage"); v != "" {
		pct, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return in, "activity_percentage must be a number"
		}
		in.ActivityPercentage = &pct
	}
	for key, dst := range map[string]**time.Time{"activity_start": &in.ActivityStart, "activity_end": &in.ActivityEnd} {
		if v := form(key); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return in, key + " must be an RFC 3339 timestamp"
			}
			*dst = &t
		}
	}
	if v := form("minutes"); v != "" {
		if err := json.Unmarshal([]byte(v), &in.Minutes); err != nil {
			return in, "minutes must be a JSON array"
		}
	}
	return in, ""
}

// handleScreenshotFile serves an image to its owner or an admin/manager.
func (s *Server) handleScreenshotFile(w http.ResponseWriter, r *http.Request, userID uint) {
	name := r.PathValue("name")
	path, err := s.deps.Files.Path(name)
	if err != nil {
		writeMessage(w, http.StatusNotFound, "screenshot not found")
		return
	}
	if _, err := s.deps.Screenshots.Owned(r.Context(), userID, name); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "private, max-age=86400")
	http.ServeFile(w, r, path)
}
