package capture

import (
	"sync"
	"testing"
	"time"

	"github.com/balkashynov/tally/internal/clock"
)

var t0 = time.Date(2026, 3, 4, 10, 15, 0, 0, time.UTC)

func newTestAggregator() (*Aggregator, *clock.Fake) {
	clk := clock.NewFake(t0)
	return NewAggregator(clk, time.UTC), clk
}

func TestAggregator_KeyRepeatIgnored(t *testing.T) {
	a, _ := newTestAggregator()
	a.RecordKey(false)
	a.RecordKey(true)
	a.RecordKey(true)
	a.RecordKey(false)

	b := a.CurrentMinuteBucket()
	if b.Keyboard != 2 {
		t.Errorf("keyboard: want 2, got %d", b.Keyboard)
	}
	if b.Minute != "10:15" {
		t.Errorf("minute label: want 10:15, got %q", b.Minute)
	}
}

func TestAggregator_ClickDebounce(t *testing.T) {
	a, clk := newTestAggregator()
	a.RecordClick()
	clk.Advance(10 * time.Millisecond)
	a.RecordClick() // same physical click
	clk.Advance(39 * time.Millisecond)
	a.RecordClick() // 49ms after the counted one: still debounced
	clk.Advance(60 * time.Millisecond)
	a.RecordClick()

	if got := a.CurrentMinuteBucket().Mouse; got != 2 {
		t.Errorf("mouse: want 2, got %d", got)
	}
}

func TestAggregator_MoveAndScrollThrottle(t *testing.T) {
	a, clk := newTestAggregator()
	for i := 0; i < 10; i++ {
		a.RecordMove()
		a.RecordScroll()
		clk.Advance(50 * time.Millisecond)
	}
	// 500ms of events: samples at 0, 200 and 400ms
	if got := a.CurrentMinuteBucket().Movements; got != 3 {
		t.Errorf("movements: want 3, got %d", got)
	}
}

func TestAggregator_InferredBypassesThrottle(t *testing.T) {
	a, _ := newTestAggregator()
	for i := 0; i < 5; i++ {
		a.RecordInferred(InferredClick)
		a.RecordInferred(InferredMove)
	}
	a.RecordInferred(InferredKey)

	b := a.CurrentMinuteBucket()
	if b.Mouse != 5 || b.Movements != 5 || b.Keyboard != 1 {
		t.Errorf("got %+v", b)
	}
	kb, mouse := a.TakeSessionCounts()
	if kb != 1 || mouse != 5 {
		t.Errorf("session counts: want 1/5, got %d/%d", kb, mouse)
	}
}

func TestAggregator_BucketsInInsertionOrder(t *testing.T) {
	a, clk := newTestAggregator()
	a.SetSurface(Surface{AppName: "editor", WindowTitle: "main.go"})
	a.RecordKey(false)
	clk.Advance(time.Minute)
	a.RecordKey(false)
	a.RecordKey(false)
	clk.Advance(2 * time.Minute)
	a.RecordClick()

	snap := a.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("want 3 buckets, got %d", len(snap))
	}
	wantMinutes := []string{"10:15", "10:16", "10:18"}
	for i, b := range snap {
		if b.Minute != wantMinutes[i] {
			t.Errorf("bucket %d: want %s, got %s", i, wantMinutes[i], b.Minute)
		}
		if b.Surface != "editor: main.go" {
			t.Errorf("bucket %d surface: got %q", i, b.Surface)
		}
	}
	if snap[1].Keyboard != 2 || snap[2].Mouse != 1 {
		t.Errorf("unexpected counts: %+v", snap)
	}
}

func TestAggregator_SnapshotAndReset(t *testing.T) {
	a, _ := newTestAggregator()
	a.RecordKey(false)
	snap := a.SnapshotAndReset()
	if len(snap) != 1 || snap[0].Keyboard != 1 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if got := a.Snapshot(); len(got) != 0 {
		t.Errorf("buckets should be cleared, got %+v", got)
	}
}

func TestAggregator_DiscardKeepsLateEvents(t *testing.T) {
	a, clk := newTestAggregator()
	a.RecordKey(false)
	a.RecordKey(false)
	clk.Advance(time.Minute)
	a.RecordKey(false)

	snap := a.Snapshot()

	// arrives while the upload is in flight
	a.RecordKey(false)

	a.Discard(snap)
	left := a.Snapshot()
	if len(left) != 1 {
		t.Fatalf("want only the current minute left, got %+v", left)
	}
	if left[0].Minute != "10:16" || left[0].Keyboard != 1 {
		t.Errorf("late event should survive discard, got %+v", left[0])
	}
}

func TestAggregator_ConcurrentRecording(t *testing.T) {
	a, _ := newTestAggregator()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				a.RecordKey(false)
			}
		}()
	}
	wg.Wait()
	if got := a.CurrentMinuteBucket().Keyboard; got != 1000 {
		t.Errorf("keyboard: want 1000, got %d", got)
	}
}
