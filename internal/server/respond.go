package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/balkashynov/tally/internal/db"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Message      string     `json:"message"`
	LimitHours   *float64   `json:"limit_hours,omitempty"`
	TrackedHours *float64   `json:"tracked_hours,omitempty"`
	DueDate      *time.Time `json:"due_date,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Message: msg})
}

// writeError maps accounting outcomes to HTTP statuses. Anything that is not
// a *db.Error is an internal failure and its text is not exposed.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	e, ok := db.AsError(err)
	if !ok {
		s.log.Error("request error", "method", r.Method, "path", r.URL.Path, "error", err)
		writeMessage(w, http.StatusInternalServerError, "internal server error")
		return
	}

	status := http.StatusInternalServerError
	switch e.Code {
	case db.CodeInvalid:
		status = http.StatusUnprocessableEntity
	case db.CodeNotFound:
		status = http.StatusNotFound
	case db.CodeForbidden, db.CodeCapReached:
		status = http.StatusForbidden
	}
	writeJSON(w, status, errorBody{
		Message:      e.Message,
		LimitHours:   e.LimitHours,
		TrackedHours: e.TrackedHours,
		DueDate:      e.DueDate,
	})
}

// decodeJSON reads a JSON body, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}
