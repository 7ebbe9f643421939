package capture

import (
	"strings"
	"sync"
	"time"

	"github.com/balkashynov/tally/internal/clock"
)

const (
	// ClickDebounce collapses down/up/double-click bursts into one click.
	ClickDebounce = 50 * time.Millisecond
	// MoveThrottle keeps at most one movement sample per window.
	MoveThrottle = 200 * time.Millisecond
)

// Surface identifies where activity is happening.
type Surface struct {
	AppName     string `json:"app_name"`
	WindowTitle string `json:"window_title,omitempty"`
	URL         string `json:"url,omitempty"`
}

// Identity is the key that decides whether two surfaces are the same place.
func (s Surface) Identity() string {
	return strings.Join([]string{s.AppName, s.WindowTitle, s.URL}, "\x00")
}

// Label is a short human-readable name for the surface.
func (s Surface) Label() string {
	switch {
	case s.WindowTitle != "":
		return s.AppName + ": " + s.WindowTitle
	case s.URL != "":
		return s.AppName + ": " + s.URL
	default:
		return s.AppName
	}
}

// IsZero reports whether no surface has been set.
func (s Surface) IsZero() bool {
	return s == Surface{}
}

// MinuteBucket holds the counts observed during one wall-clock minute.
type MinuteBucket struct {
	Minute    string    `json:"minute"` // HH:MM
	Start     time.Time `json:"-"`
	Keyboard  int       `json:"keyboard"`
	Mouse     int       `json:"mouse"`
	Movements int       `json:"movements"`
	Surface   string    `json:"surface,omitempty"`
}

func (b MinuteBucket) Total() int {
	return b.Keyboard + b.Mouse + b.Movements
}

// InferredKind is the kind of activity the external-activity classifier
// reports.
type InferredKind int

const (
	InferredClick InferredKind = iota
	InferredKey
	InferredMove
)

func (k InferredKind) String() string {
	switch k {
	case InferredClick:
		return "click"
	case InferredKey:
		return "key"
	case InferredMove:
		return "move"
	default:
		return "unknown"
	}
}

// Aggregator buckets input events per minute for one tracking session. It
// is safe for concurrent use.
type Aggregator struct {
	mu    sync.Mutex
	clock clock.Clock
	loc   *time.Location

	buckets []*MinuteBucket // insertion order
	surface Surface

	lastClick time.Time
	lastMove  time.Time

	sessionKeyboard int
	sessionMouse    int
}

// NewAggregator returns an empty aggregator. Minute labels are rendered in
// loc (local time when nil).
func NewAggregator(clk clock.Clock, loc *time.Location) *Aggregator {
	if loc == nil {
		loc = time.Local
	}
	return &Aggregator{clock: clk, loc: loc}
}

// RecordKey counts a key press. Auto-repeat events are ignored.
func (a *Aggregator) RecordKey(repeat bool) {
	if repeat {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.bucket(a.clock.Now()).Keyboard++
	a.sessionKeyboard++
}

// RecordClick counts a pointer click, debounced.
func (a *Aggregator) RecordClick() {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := a.clock.Now()
	if !a.lastClick.IsZero() && now.Sub(a.lastClick) < ClickDebounce {
		return
	}
	a.lastClick = now
	a.bucket(now).Mouse++
	a.sessionMouse++
}

// RecordMove counts a pointer movement, throttled.
func (a *Aggregator) RecordMove() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recordMovement(a.clock.Now())
}

// RecordScroll counts a wheel event as movement, sharing the move throttle.
func (a *Aggregator) RecordScroll() {
	a.RecordMove()
}

func (a *Aggregator) recordMovement(now time.Time) {
	if !a.lastMove.IsZero() && now.Sub(a.lastMove) < MoveThrottle {
		return
	}
	a.lastMove = now
	a.bucket(now).Movements++
}

// RecordInferred counts activity reported by the external-activity
// classifier. It bypasses debounce and throttle.
func (a *Aggregator) RecordInferred(kind InferredKind) {
	a.mu.Lock()
	defer a.mu.Unlock()
	b := a.bucket(a.clock.Now())
	switch kind {
	case InferredClick:
		b.Mouse++
		a.sessionMouse++
	case InferredKey:
		b.Keyboard++
		a.sessionKeyboard++
	case InferredMove:
		b.Movements++
	}
}

// SetSurface records the current surface and relabels the active bucket.
func (a *Aggregator) SetSurface(s Surface) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.surface = s
	a.bucket(a.clock.Now()).Surface = s.Label()
}

// Surface returns the current surface.
func (a *Aggregator) Surface() Surface {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.surface
}

// CurrentMinuteBucket returns a copy of the bucket for the current minute.
func (a *Aggregator) CurrentMinuteBucket() MinuteBucket {
	a.mu.Lock()
	defer a.mu.Unlock()
	return *a.bucket(a.clock.Now())
}

// Snapshot returns a copy of all buckets in insertion order.
func (a *Aggregator) Snapshot() []MinuteBucket {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshot()
}

// SnapshotAndReset returns all buckets and clears them.
func (a *Aggregator) SnapshotAndReset() []MinuteBucket {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := a.snapshot()
	a.buckets = nil
	return out
}

// Discard subtracts an uploaded snapshot from the live buckets. Events that
// arrived after the snapshot was taken are kept. Buckets left empty are
// dropped unless they belong to the current minute.
func (a *Aggregator) Discard(snapshot []MinuteBucket) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, s := range snapshot {
		b := a.find(s.Start)
		if b == nil {
			continue
		}
		b.Keyboard = max(0, b.Keyboard-s.Keyboard)
		b.Mouse = max(0, b.Mouse-s.Mouse)
		b.Movements = max(0, b.Movements-s.Movements)
	}

	current := a.minuteOf(a.clock.Now())
	kept := a.buckets[:0]
	for _, b := range a.buckets {
		if b.Total() > 0 || b.Start.Equal(current) {
			kept = append(kept, b)
		}
	}
	a.buckets = kept
}

// TakeSessionCounts returns keyboard and mouse counts since the previous
// call and zeroes them.
func (a *Aggregator) TakeSessionCounts() (keyboard, mouse int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	keyboard, mouse = a.sessionKeyboard, a.sessionMouse
	a.sessionKeyboard, a.sessionMouse = 0, 0
	return keyboard, mouse
}

func (a *Aggregator) snapshot() []MinuteBucket {
	out := make([]MinuteBucket, 0, len(a.buckets))
	for _, b := range a.buckets {
		out = append(out, *b)
	}
	return out
}

func (a *Aggregator) minuteOf(t time.Time) time.Time {
	return t.In(a.loc).Truncate(time.Minute)
}

func (a *Aggregator) find(minute time.Time) *MinuteBucket {
	for _, b := range a.buckets {
		if b.Start.Equal(minute) {
			return b
		}
	}
	return nil
}

// bucket returns the bucket for t, creating it if needed. Caller holds mu.
func (a *Aggregator) bucket(t time.Time) *MinuteBucket {
	minute := a.minuteOf(t)
	// events arrive in time order, so the newest bucket is the usual hit
	if n := len(a.buckets); n > 0 && a.buckets[n-1].Start.Equal(minute) {
		return a.buckets[n-1]
	}
	if b := a.find(minute); b != nil {
		return b
	}
	b := &MinuteBucket{
		Minute:  minute.Format("15:04"),
		Start:   minute,
		Surface: a.surface.Label(),
	}
	a.buckets = append(a.buckets, b)
	return b
}
