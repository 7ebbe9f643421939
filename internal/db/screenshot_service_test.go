package db

import (
	"context"
	"testing"
	"time"

	"github.com/balkashynov/tally/internal/models"
)

var jpegHeader = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}

func TestScreenshotCreate_BackfillsFromSessions(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, "ana", models.RoleAdmin)
	task := f.task(t, CreateTaskRequest{})
	ctx := context.Background()

	_, err := f.acts.Record(ctx, SessionInput{
		UserID: u.ID, TaskID: task.ID, AppName: "editor",
		Start: wednesday, End: wednesday.Add(2 * time.Minute),
		KeyboardClicks: 120, MouseClicks: 60,
	})
	if err != nil {
		t.Fatal(err)
	}

	from, to := wednesday, wednesday.Add(3*time.Minute)
	shot, err := f.shots.Create(ctx, ScreenshotInput{
		UserID: u.ID, TaskID: &task.ID, Image: jpegHeader,
		ActivityStart: &from, ActivityEnd: &to,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if len(shot.Minutes) != 3 {
		t.Fatalf("want 3 minute buckets, got %d", len(shot.Minutes))
	}
	want := []models.MinuteActivity{
		{Minute: "10:00", Keyboard: 60, Mouse: 30, Total: 90},
		{Minute: "10:01", Keyboard: 60, Mouse: 30, Total: 90},
		{Minute: "10:02"},
	}
	for i, m := range shot.Minutes {
		if m != want[i] {
			t.Errorf("minute %d: want %+v, got %+v", i, want[i], m)
		}
	}
	if shot.KeyboardClicks != 120 || shot.MouseClicks != 60 {
		t.Errorf("counts: want 120/60, got %d/%d", shot.KeyboardClicks, shot.MouseClicks)
	}
	if shot.ActivityPercentage != 66.67 {
		t.Errorf("percentage: want 66.67, got %v", shot.ActivityPercentage)
	}
	if shot.FileName != "shot.jpg" {
		t.Errorf("file name: got %q", shot.FileName)
	}
}

func TestScreenshotCreate_SuppliedMinutesWin(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, "ana", models.RoleAdmin)
	ctx := context.Background()

	shot, err := f.shots.Create(ctx, ScreenshotInput{
		UserID: u.ID, Image: jpegHeader,
		KeyboardClicks: 500, MouseClicks: 500,
		Minutes: []models.MinuteActivity{
			{Minute: "10:00", Keyboard: 3, Mouse: 2, Movements: 5, Total: 999},
			{Minute: "10:01"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if shot.Minutes[0].Total != 10 {
		t.Errorf("total should be recomputed, got %d", shot.Minutes[0].Total)
	}
	if shot.KeyboardClicks != 3 || shot.MouseClicks != 2 {
		t.Errorf("counts should come from minutes, got %d/%d", shot.KeyboardClicks, shot.MouseClicks)
	}
	if shot.ActivityPercentage != 50 {
		t.Errorf("percentage: want 50, got %v", shot.ActivityPercentage)
	}
}

func TestScreenshotCreate_ClampsPercentage(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, "ana", models.RoleAdmin)

	shot, err := f.shots.Create(context.Background(), ScreenshotInput{
		UserID: u.ID, Image: jpegHeader, ActivityPercentage: ptr(150.0),
	})
	if err != nil {
		t.Fatal(err)
	}
	if shot.ActivityPercentage != 100 {
		t.Errorf("want 100, got %v", shot.ActivityPercentage)
	}
}

func TestScreenshotCreate_Rejections(t *testing.T) {
	f := newFixture(t)
	member := f.user(t, "ana", models.RoleMember)
	task := f.task(t, CreateTaskRequest{})
	ctx := context.Background()

	_, err := f.shots.Create(ctx, ScreenshotInput{UserID: member.ID, Image: []byte("not an image")})
	wantCode(t, err, CodeInvalid)

	_, err = f.shots.Create(ctx, ScreenshotInput{UserID: member.ID})
	wantCode(t, err, CodeInvalid)

	from := wednesday
	_, err = f.shots.Create(ctx, ScreenshotInput{UserID: member.ID, Image: jpegHeader, ActivityStart: &from})
	wantCode(t, err, CodeInvalid)

	_, err = f.shots.Create(ctx, ScreenshotInput{UserID: member.ID, TaskID: &task.ID, Image: jpegHeader})
	wantCode(t, err, CodeForbidden)

	if f.blobs.puts != 0 {
		t.Errorf("rejected uploads must not be stored, got %d puts", f.blobs.puts)
	}
}

func TestScreenshotCreate_FailedInsertRemovesFile(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, "ana", models.RoleAdmin)

	if err := f.db.Migrator().DropTable(&models.Screenshot{}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.shots.Create(context.Background(), ScreenshotInput{UserID: u.ID, Image: jpegHeader}); err == nil {
		t.Fatal("expected the insert to fail")
	}
	if f.blobs.puts != 1 || len(f.blobs.deleted) != 1 || f.blobs.deleted[0] != "shot.jpg" {
		t.Errorf("stored file should be removed: puts=%d deleted=%v", f.blobs.puts, f.blobs.deleted)
	}
}

func TestScreenshotOwned(t *testing.T) {
	f := newFixture(t)
	owner := f.user(t, "ana", models.RoleMember)
	other := f.user(t, "bo", models.RoleMember)
	admin := f.user(t, "cy", models.RoleAdmin)
	ctx := context.Background()

	shot, err := f.shots.Create(ctx, ScreenshotInput{UserID: owner.ID, Image: jpegHeader})
	if err != nil {
		t.Fatal(err)
	}

	for _, id := range []uint{owner.ID, admin.ID} {
		if _, err := f.shots.Owned(ctx, id, shot.FileName); err != nil {
			t.Errorf("user #%d should see the screenshot: %v", id, err)
		}
	}
	_, err = f.shots.Owned(ctx, other.ID, shot.FileName)
	wantCode(t, err, CodeNotFound)
	_, err = f.shots.Owned(ctx, owner.ID, "missing.jpg")
	wantCode(t, err, CodeNotFound)
}
