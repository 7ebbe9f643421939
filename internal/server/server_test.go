package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/balkashynov/tally/internal/clock"
	"github.com/balkashynov/tally/internal/config"
	"github.com/balkashynov/tally/internal/db"
	"github.com/balkashynov/tally/internal/logging"
	"github.com/balkashynov/tally/internal/models"
	"github.com/balkashynov/tally/internal/storage"
)

var t0 = time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

var jpegBytes = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00, 0x01}

type testEnv struct {
	db     *gorm.DB
	srv    *Server
	http   *httptest.Server
	clock  *clock.Fake
	tasks  *db.TaskService
	tracks *db.TimeTrackService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dir := t.TempDir()
	gdb, err := db.Open(filepath.Join(dir, "tally.db"), db.Options{})
	if err != nil {
		t.Fatalf("db.Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close(gdb) })

	files, err := storage.NewDirStore(filepath.Join(dir, "shots"))
	if err != nil {
		t.Fatal(err)
	}

	clk := clock.NewFake(t0)
	log := logging.Discard()
	settings := db.DefaultSettings()
	authz := db.NewRoleAuthorizer(gdb)

	tracks := db.NewTimeTrackService(gdb, clk, settings, log)
	deps := Deps{
		Activity:    db.NewActivityService(gdb, authz, settings, log),
		Tracks:      tracks,
		Screenshots: db.NewScreenshotService(gdb, files, authz, clk, settings, log),
		Files:       files,
	}
	cfg := config.DefaultConfig().Server
	srv := New(cfg, deps, clk, log)

	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(hs.Close)

	return &testEnv{db: gdb, srv: srv, http: hs, clock: clk, tasks: db.NewTaskService(gdb), tracks: tracks}
}

func (e *testEnv) do(t *testing.T, method, path string, userID uint, body any) (*http.Response, map[string]any) {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.http.URL+path, rdr)
	if err != nil {
		t.Fatal(err)
	}
	if userID != 0 {
		req.Header.Set("X-User-ID", fmt.Sprint(userID))
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func (e *testEnv) seed(t *testing.T, role string, req db.CreateTaskRequest) (*models.User, *models.Task) {
	t.Helper()
	ctx := context.Background()
	u, err := e.tasks.CreateUser(ctx, "user-"+role, role)
	if err != nil {
		t.Fatal(err)
	}
	if req.Title == "" {
		req.Title = "task"
	}
	if req.AssignedTo == nil {
		req.AssignedTo = &u.ID
	}
	task, err := e.tasks.CreateTask(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	return u, task
}

func TestServer_RequiresUserHeader(t *testing.T) {
	e := newTestEnv(t)
	resp, body := e.do(t, http.MethodGet, "/time-tracks/active", 0, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("want 401, got %d", resp.StatusCode)
	}
	if body["message"] == "" {
		t.Error("error body should carry a message")
	}

	resp, _ = e.do(t, http.MethodGet, "/healthz", 0, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz: want 200, got %d", resp.StatusCode)
	}
}

func TestServer_ActivitySessions(t *testing.T) {
	e := newTestEnv(t)
	u, task := e.seed(t, models.RoleMember, db.CreateTaskRequest{})

	session := map[string]any{
		"task_id":         task.ID,
		"app_name":        "browser",
		"url":             "https://example.com/a",
		"start_time":      t0.Format(time.RFC3339),
		"end_time":        t0.Add(time.Minute).Format(time.RFC3339),
		"keyboard_clicks": 3,
		"mouse_clicks":    1,
	}

	resp, body := e.do(t, http.MethodPost, "/activity-sessions", u.ID, session)
	if resp.StatusCode != http.StatusCreated || body["message"] != "Activity session recorded" {
		t.Fatalf("first insert: %d %v", resp.StatusCode, body)
	}

	resp, body = e.do(t, http.MethodPost, "/activity-sessions", u.ID, session)
	if resp.StatusCode != http.StatusOK || body["message"] != "Activity session deduplicated" {
		t.Fatalf("repeat: %d %v", resp.StatusCode, body)
	}
	sess := body["session"].(map[string]any)
	if sess["keyboard_clicks"].(float64) != 6 {
		t.Errorf("keyboard clicks should accumulate, got %v", sess["keyboard_clicks"])
	}

	short := map[string]any{
		"task_id": task.ID, "app_name": "browser",
		"start_time": t0.Add(time.Hour).Format(time.RFC3339),
		"end_time":   t0.Add(time.Hour + 4*time.Second).Format(time.RFC3339),
	}
	resp, body = e.do(t, http.MethodPost, "/activity-sessions", u.ID, short)
	if resp.StatusCode != http.StatusOK || body["message"] != "Ignored short session" {
		t.Errorf("short session: %d %v", resp.StatusCode, body)
	}

	backwards := map[string]any{
		"task_id": task.ID, "app_name": "browser",
		"start_time": t0.Format(time.RFC3339),
		"end_time":   t0.Add(-time.Minute).Format(time.RFC3339),
	}
	resp, _ = e.do(t, http.MethodPost, "/activity-sessions", u.ID, backwards)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("end before start: want 422, got %d", resp.StatusCode)
	}

	resp, _ = e.do(t, http.MethodPost, "/activity-sessions", u.ID, map[string]any{"nope": 1})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown field: want 400, got %d", resp.StatusCode)
	}

	stranger, err := e.tasks.CreateUser(context.Background(), "stranger", models.RoleMember)
	if err != nil {
		t.Fatal(err)
	}
	resp, body = e.do(t, http.MethodPost, "/activity-sessions", stranger.ID, session)
	if resp.StatusCode != http.StatusForbidden || body["message"] != "No active time tracking for this task" {
		t.Errorf("stranger: %d %v", resp.StatusCode, body)
	}
}

func TestServer_TimeTrackLifecycle(t *testing.T) {
	e := newTestEnv(t)
	u, task := e.seed(t, models.RoleMember, db.CreateTaskRequest{EstimatedHours: 1})

	resp, body := e.do(t, http.MethodPost, "/time-tracks/start", u.ID, map[string]any{"task_id": task.ID})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("start: %d %v", resp.StatusCode, body)
	}
	id := uint(body["id"].(float64))

	e.clock.Advance(30 * time.Second)
	resp, _ = e.do(t, http.MethodPost, "/time-tracks/heartbeat", u.ID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("heartbeat: %d", resp.StatusCode)
	}

	resp, body = e.do(t, http.MethodGet, "/time-tracks/active", u.ID, nil)
	if resp.StatusCode != http.StatusOK || body["time_track"] == nil {
		t.Fatalf("active: %d %v", resp.StatusCode, body)
	}

	resp, body = e.do(t, http.MethodGet, fmt.Sprintf("/time-tracks/remaining?task_id=%d&period=week", task.ID), u.ID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("remaining: %d %v", resp.StatusCode, body)
	}
	if body["remaining_seconds"].(float64) != 3570 || body["tracked_seconds"].(float64) != 30 {
		t.Errorf("remaining: %v", body)
	}

	e.clock.Advance(30 * time.Second)
	resp, body = e.do(t, http.MethodPost, fmt.Sprintf("/time-tracks/%d/stop", id), u.ID, nil)
	if resp.StatusCode != http.StatusOK || body["duration_seconds"].(float64) != 60 {
		t.Fatalf("stop: %d %v", resp.StatusCode, body)
	}

	resp, body = e.do(t, http.MethodGet, "/time-tracks/active", u.ID, nil)
	if resp.StatusCode != http.StatusOK || body["time_track"] != nil {
		t.Errorf("no active timer expected: %v", body)
	}

	resp, body = e.do(t, http.MethodGet, "/time-tracks?limit=10", u.ID, nil)
	if resp.StatusCode != http.StatusOK || len(body["time_tracks"].([]any)) != 1 {
		t.Errorf("list: %d %v", resp.StatusCode, body)
	}

	resp, _ = e.do(t, http.MethodPost, "/time-tracks/abc/stop", u.ID, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad id: want 400, got %d", resp.StatusCode)
	}
	resp, _ = e.do(t, http.MethodGet, "/time-tracks/remaining?task_id=1&period=month", u.ID, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad period: want 400, got %d", resp.StatusCode)
	}
}

func TestServer_CapAndDueDateBodies(t *testing.T) {
	e := newTestEnv(t)
	u, capped := e.seed(t, models.RoleMember, db.CreateTaskRequest{EstimatedHours: 0.5})

	resp, body := e.do(t, http.MethodPost, "/time-tracks/start", u.ID, map[string]any{"task_id": capped.ID})
	if resp.StatusCode != http.StatusCreated {
		t.Fatal(body)
	}
	e.clock.Advance(40 * time.Minute)
	resp, body = e.do(t, http.MethodPost, fmt.Sprintf("/time-tracks/%d/stop", uint(body["id"].(float64))), u.ID, nil)
	if resp.StatusCode != http.StatusOK || body["duration_seconds"].(float64) != 1800 {
		t.Fatalf("stop should trim to the cap: %v", body)
	}

	resp, body = e.do(t, http.MethodPost, "/time-tracks/start", u.ID, map[string]any{"task_id": capped.ID})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("want 403, got %d", resp.StatusCode)
	}
	if body["limit_hours"].(float64) != 0.5 || body["tracked_hours"].(float64) != 0.5 {
		t.Errorf("cap body: %v", body)
	}

	due := t0.AddDate(0, 0, -2)
	late, err := e.tasks.CreateTask(context.Background(), db.CreateTaskRequest{Title: "late", AssignedTo: &u.ID, DueDate: &due})
	if err != nil {
		t.Fatal(err)
	}
	resp, body = e.do(t, http.MethodPost, "/time-tracks/start", u.ID, map[string]any{"task_id": late.ID})
	if resp.StatusCode != http.StatusForbidden || body["due_date"] == nil {
		t.Errorf("past due: %d %v", resp.StatusCode, body)
	}
	if _, ok := body["limit_hours"]; ok {
		t.Error("due date rejection should not carry cap fields")
	}
}

func TestServer_ScreenshotUploadAndServe(t *testing.T) {
	e := newTestEnv(t)
	u, task := e.seed(t, models.RoleMember, db.CreateTaskRequest{})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("image", "shot.jpg")
	if err != nil {
		t.Fatal(err)
	}
	fw.Write(jpegBytes)
	fields := map[string]string{
		"task_id":         fmt.Sprint(task.ID),
		"keyboard_clicks": "9",
		"mouse_clicks":    "4",
		"activity_start":  t0.Format(time.RFC3339),
		"activity_end":    t0.Add(2 * time.Minute).Format(time.RFC3339),
		"minutes":         `[{"minute":"10:00","keyboard":5,"mouse":1},{"minute":"10:01","keyboard":0,"mouse":0}]`,
	}
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	mw.Close()

	req, _ := http.NewRequest(http.MethodPost, e.http.URL+"/screenshots", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-User-ID", fmt.Sprint(u.ID))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		data, _ := io.ReadAll(resp.Body)
		t.Fatalf("upload: %d %s", resp.StatusCode, data)
	}

	var out struct {
		Screenshot models.Screenshot `json:"screenshot"`
		URL        string            `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Screenshot.KeyboardClicks != 5 || out.Screenshot.MouseClicks != 1 {
		t.Errorf("counts should follow the breakdown: %+v", out.Screenshot)
	}
	if out.Screenshot.ActivityPercentage != 50 {
		t.Errorf("percentage: want 50, got %v", out.Screenshot.ActivityPercentage)
	}
	if !strings.HasPrefix(out.URL, "/screenshots/files/") {
		t.Fatalf("url: %q", out.URL)
	}

	status, data := e.getFile(t, out.URL, u.ID)
	if status != http.StatusOK || !bytes.Equal(data, jpegBytes) {
		t.Errorf("served file: %d, %d bytes", status, len(data))
	}

	if status, _ := e.getFile(t, "/screenshots/files/..%2Ftally.db", u.ID); status == http.StatusOK {
		t.Error("path traversal must not serve files")
	}
}

func TestServer_ScreenshotFilesAreOwnerOnly(t *testing.T) {
	e := newTestEnv(t)
	owner, task := e.seed(t, models.RoleMember, db.CreateTaskRequest{})
	ctx := context.Background()
	other, err := e.tasks.CreateUser(ctx, "other", models.RoleMember)
	if err != nil {
		t.Fatal(err)
	}
	manager, err := e.tasks.CreateUser(ctx, "boss", models.RoleManager)
	if err != nil {
		t.Fatal(err)
	}

	shot, err := e.srv.deps.Screenshots.Create(ctx, db.ScreenshotInput{UserID: owner.ID, TaskID: &task.ID, Image: jpegBytes})
	if err != nil {
		t.Fatal(err)
	}
	path := "/screenshots/files/" + shot.FileName

	tests := []struct {
		name   string
		userID uint
		want   int
	}{
		{"owner", owner.ID, http.StatusOK},
		{"manager", manager.ID, http.StatusOK},
		{"other member", other.ID, http.StatusNotFound},
		{"anonymous", 0, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if status, _ := e.getFile(t, path, tt.userID); status != tt.want {
				t.Errorf("want %d, got %d", tt.want, status)
			}
		})
	}
}

func (e *testEnv) getFile(t *testing.T, path string, userID uint) (int, []byte) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, e.http.URL+path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if userID != 0 {
		req.Header.Set("X-User-ID", fmt.Sprint(userID))
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, data
}

func TestServer_ServeRunsSweeper(t *testing.T) {
	e := newTestEnv(t)
	u, _ := e.seed(t, models.RoleMember, db.CreateTaskRequest{})

	if _, err := e.tracks.Start(context.Background(), u.ID, db.StartRequest{}); err != nil {
		t.Fatal(err)
	}

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.srv.Serve(ctx, lis) }()

	// the sweeper alone finalizes the timer; nothing else reads it here
	deadline := time.Now().Add(3 * time.Second)
	swept := false
	for time.Now().Before(deadline) && !swept {
		e.clock.Advance(30 * time.Second)
		time.Sleep(20 * time.Millisecond)
		var active int64
		if err := e.db.Model(&models.TimeTrack{}).Where("end_time IS NULL").Count(&active).Error; err != nil {
			t.Fatal(err)
		}
		swept = active == 0
	}

	resp, err := http.Get("http://" + lis.Addr().String() + "/healthz")
	if err != nil {
		t.Fatalf("healthz over Serve: %v", err)
	}
	resp.Body.Close()

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Serve: %v", err)
	}
	if !swept {
		t.Fatal("stale timer should be finalized")
	}
}
