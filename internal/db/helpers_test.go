package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/balkashynov/tally/internal/clock"
	"github.com/balkashynov/tally/internal/logging"
	"github.com/balkashynov/tally/internal/models"
)

// wednesday is a mid-week instant so week windows are easy to reason about.
var wednesday = time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

type fixture struct {
	db     *gorm.DB
	clock  *clock.Fake
	tasks  *TaskService
	tracks *TimeTrackService
	acts   *ActivityService
	shots  *ScreenshotService
	blobs  *memBlobs
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	gdb, err := Open(filepath.Join(t.TempDir(), "test.db"), Options{})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = Close(gdb) })

	clk := clock.NewFake(wednesday)
	settings := DefaultSettings()
	log := logging.Discard()
	authz := NewRoleAuthorizer(gdb)
	blobs := &memBlobs{}

	return &fixture{
		db:     gdb,
		clock:  clk,
		tasks:  NewTaskService(gdb),
		tracks: NewTimeTrackService(gdb, clk, settings, log),
		acts:   NewActivityService(gdb, authz, settings, log),
		shots:  NewScreenshotService(gdb, blobs, authz, clk, settings, log),
		blobs:  blobs,
	}
}

func (f *fixture) user(t *testing.T, name, role string) *models.User {
	t.Helper()
	u, err := f.tasks.CreateUser(context.Background(), name, role)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return u
}

func (f *fixture) task(t *testing.T, req CreateTaskRequest) *models.Task {
	t.Helper()
	if req.Title == "" {
		req.Title = "test task"
	}
	task, err := f.tasks.CreateTask(context.Background(), req)
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	return task
}

// finishedTrack inserts a closed time track directly.
func (f *fixture) finishedTrack(t *testing.T, userID, taskID uint, start time.Time, seconds int) *models.TimeTrack {
	t.Helper()
	start = stamp(start)
	end := start.Add(time.Duration(seconds) * time.Second)
	tr := models.TimeTrack{
		UserID:          userID,
		TaskID:          &taskID,
		StartTime:       start,
		EndTime:         &end,
		DurationSeconds: seconds,
		LastSeenAt:      &end,
	}
	if err := f.db.Create(&tr).Error; err != nil {
		t.Fatalf("insert time track: %v", err)
	}
	return &tr
}

func (f *fixture) countSessions(t *testing.T) int64 {
	t.Helper()
	var n int64
	if err := f.db.Model(&models.ActivitySession{}).Count(&n).Error; err != nil {
		t.Fatal(err)
	}
	return n
}

func wantCode(t *testing.T, err error, code ErrorCode) *Error {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", code)
	}
	e, ok := AsError(err)
	if !ok {
		t.Fatalf("expected *Error with code %s, got %T: %v", code, err, err)
	}
	if e.Code != code {
		t.Fatalf("expected code %s, got %s (%s)", code, e.Code, e.Message)
	}
	return e
}

func ptr[T any](v T) *T { return &v }

type memBlobs struct {
	puts    int
	deleted []string
}

func (m *memBlobs) Put(ctx context.Context, ext string, data []byte) (string, error) {
	m.puts++
	return "shot." + ext, nil
}

func (m *memBlobs) Delete(name string) error {
	m.deleted = append(m.deleted, name)
	return nil
}
