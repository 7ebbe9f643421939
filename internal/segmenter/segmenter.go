package segmenter

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/balkashynov/tally/internal/capture"
	"github.com/balkashynov/tally/internal/clock"
)

// External is the surface reported while hidden with no fresh foreground
// broadcast.
var External = capture.Surface{AppName: "External", WindowTitle: "unknown"}

// Config holds the segmenter timings.
type Config struct {
	CheckInterval       time.Duration
	FlushCooldown       time.Duration
	MinSessionDuration  time.Duration
	BroadcastStaleAfter time.Duration
	SampleInterval      time.Duration
}

func DefaultConfig() Config {
	return Config{
		CheckInterval:       5 * time.Second,
		FlushCooldown:       10 * time.Minute,
		MinSessionDuration:  15 * time.Second,
		BroadcastStaleAfter: 5 * time.Second,
		SampleInterval:      700 * time.Millisecond,
	}
}

// SessionCandidate is a finished segment ready to be posted.
type SessionCandidate struct {
	TaskID         uint
	Surface        capture.Surface
	Start          time.Time
	End            time.Time
	KeyboardClicks int
	MouseClicks    int
	Reason         string
}

func (c SessionCandidate) Duration() time.Duration {
	return c.End.Sub(c.Start)
}

// Poster delivers session candidates to the server.
type Poster interface {
	PostSession(ctx context.Context, c SessionCandidate) error
}

// Flush reasons
const (
	ReasonVisibility = "visibility"
	ReasonBlur       = "blur"
	ReasonStop       = "stop"
	ReasonSurface    = "surface"
	ReasonForeground = "foreground"
	ReasonCheck      = "check"
)

// Segmenter cuts a tracking session into activity segments and posts them.
type Segmenter struct {
	cfg    Config
	clock  clock.Clock
	agg    *capture.Aggregator
	poster Poster
	bus    Bus
	log    *slog.Logger
	id     string

	mu         sync.Mutex
	tracking   bool
	taskID     uint
	visible    bool
	focused    bool
	surface    capture.Surface // this segmenter's own surface
	foreground *Message        // latest visible broadcast from another surface
	segSurface capture.Surface // surface the open segment is attributed to
	segStart   time.Time
	lastFlush  time.Time
	flushing   bool
}

// New returns a stopped segmenter. bus may be nil when the client has a
// single surface.
func New(cfg Config, clk clock.Clock, agg *capture.Aggregator, poster Poster, bus Bus, log *slog.Logger) *Segmenter {
	return &Segmenter{
		cfg:    cfg,
		clock:  clk,
		agg:    agg,
		poster: poster,
		bus:    bus,
		log:    log,
		id:     uuid.NewString(),
	}
}

// ID is the surface id used on the bus.
func (s *Segmenter) ID() string { return s.id }

// Start begins tracking taskID on surface. The segmenter starts visible and
// focused.
func (s *Segmenter) Start(taskID uint, surface capture.Surface) {
	s.mu.Lock()
	now := s.clock.Now()
	s.tracking = true
	s.taskID = taskID
	s.visible = true
	s.focused = true
	s.surface = surface
	s.segSurface = surface
	s.segStart = now
	s.lastFlush = now
	s.mu.Unlock()

	s.agg.TakeSessionCounts()
	s.agg.SetSurface(surface)
	s.broadcast(surface, true, now)
	s.log.Debug("segmenter started", "task_id", taskID, "surface", surface.Label())
}

// Stop flushes the open segment and stops tracking.
func (s *Segmenter) Stop(ctx context.Context) {
	s.flush(ctx, ReasonStop, true, func() {
		s.tracking = false
	})
}

// Tracking reports whether a session is running.
func (s *Segmenter) Tracking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracking
}

// Visible reports whether the tracking surface is visible.
func (s *Segmenter) Visible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visible
}

// SetVisible records a visibility transition. Any transition closes the
// open segment.
func (s *Segmenter) SetVisible(ctx context.Context, visible bool) {
	s.mu.Lock()
	changed := s.tracking && s.visible != visible
	s.mu.Unlock()
	if !changed {
		return
	}

	s.flush(ctx, ReasonVisibility, true, func() {
		s.visible = visible
		s.segSurface = s.effectiveSurface(s.clock.Now())
	})

	s.mu.Lock()
	surface := s.surface
	s.mu.Unlock()
	s.broadcast(surface, visible, s.clock.Now())
}

// Blur records focus loss, which closes the open segment.
func (s *Segmenter) Blur(ctx context.Context) {
	s.mu.Lock()
	changed := s.tracking && s.focused
	s.mu.Unlock()
	if !changed {
		return
	}
	s.flush(ctx, ReasonBlur, true, func() {
		s.focused = false
	})
}

// Focus records focus regain.
func (s *Segmenter) Focus() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.focused = true
}

// SurfaceChanged records a new surface. While visible, a different surface
// closes the open segment.
func (s *Segmenter) SurfaceChanged(ctx context.Context, surface capture.Surface) {
	s.mu.Lock()
	tracking := s.tracking
	visible := s.visible
	same := surface.Identity() == s.surface.Identity()
	if !tracking || same {
		s.surface = surface
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	if visible {
		s.flush(ctx, ReasonSurface, true, func() {
			s.surface = surface
			s.segSurface = surface
		})
	} else {
		s.mu.Lock()
		s.surface = surface
		s.mu.Unlock()
	}

	s.agg.SetSurface(surface)
	if visible {
		s.broadcast(surface, true, s.clock.Now())
	}
}

// Check runs the periodic work: renew the broadcast while visible, follow
// the foreground while hidden, and flush once the cooldown has passed.
func (s *Segmenter) Check(ctx context.Context) {
	s.mu.Lock()
	if !s.tracking {
		s.mu.Unlock()
		return
	}
	now := s.clock.Now()
	visible := s.visible
	surface := s.surface
	relabel := !visible && s.effectiveSurface(now).Identity() != s.segSurface.Identity()
	due := now.Sub(s.lastFlush) >= s.cfg.FlushCooldown
	s.mu.Unlock()

	if visible {
		s.broadcast(surface, true, now)
	}
	if relabel {
		s.adoptForeground(ctx)
		return
	}
	if due {
		s.flush(ctx, ReasonCheck, false, nil)
	}
}

// HandleBroadcast processes a message from another segmenter.
func (s *Segmenter) HandleBroadcast(ctx context.Context, msg Message) {
	if msg.Kind != KindActivityUpdate || msg.SurfaceID == s.id {
		return
	}

	s.mu.Lock()
	switch {
	case msg.Visible:
		m := msg
		s.foreground = &m
	case s.foreground != nil && s.foreground.SurfaceID == msg.SurfaceID:
		s.foreground = nil
	}
	relabel := s.tracking && !s.visible &&
		s.effectiveSurface(s.clock.Now()).Identity() != s.segSurface.Identity()
	s.mu.Unlock()

	if relabel {
		s.adoptForeground(ctx)
	}
}

func (s *Segmenter) adoptForeground(ctx context.Context) {
	s.flush(ctx, ReasonForeground, true, func() {
		s.segSurface = s.effectiveSurface(s.clock.Now())
	})
	s.mu.Lock()
	label := s.segSurface
	s.mu.Unlock()
	s.agg.SetSurface(label)
}

// Run drives Check on the configured interval and consumes bus messages
// until ctx is cancelled.
func (s *Segmenter) Run(ctx context.Context) error {
	ticker := s.clock.NewTicker(s.cfg.CheckInterval)
	defer ticker.Stop()

	var msgs <-chan Message
	if s.bus != nil {
		ch, cancel := s.bus.Subscribe()
		defer cancel()
		msgs = ch
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
			s.Check(ctx)
		case msg, ok := <-msgs:
			if !ok {
				msgs = nil
				continue
			}
			s.HandleBroadcast(ctx, msg)
		}
	}
}

// effectiveSurface is the surface activity is attributed to at now. Caller
// holds mu.
func (s *Segmenter) effectiveSurface(now time.Time) capture.Surface {
	if s.visible {
		return s.surface
	}
	if s.foreground != nil && now.Sub(s.foreground.At) <= s.cfg.BroadcastStaleAfter {
		return s.foreground.Surface
	}
	return External
}

// flush closes the open segment and posts it. When force is false the
// flush only happens once the cooldown has passed. mutate runs under the
// lock right after the segment is cut. A flush that finds another one in
// flight is skipped; the open segment carries over to the next flush.
func (s *Segmenter) flush(ctx context.Context, reason string, force bool, mutate func()) {
	s.mu.Lock()
	if !s.tracking || s.flushing {
		if mutate != nil && s.tracking {
			mutate()
		}
		s.mu.Unlock()
		return
	}
	now := s.clock.Now()
	if !force && now.Sub(s.lastFlush) < s.cfg.FlushCooldown {
		s.mu.Unlock()
		return
	}

	keyboard, mouse := s.agg.TakeSessionCounts()
	candidate := SessionCandidate{
		TaskID:         s.taskID,
		Surface:        s.segSurface,
		Start:          s.segStart,
		End:            now,
		KeyboardClicks: keyboard,
		MouseClicks:    mouse,
		Reason:         reason,
	}
	s.segStart = now
	s.lastFlush = now
	if mutate != nil {
		mutate()
	}

	if candidate.Duration() < s.cfg.MinSessionDuration {
		s.mu.Unlock()
		s.log.Debug("discarded short segment", "reason", reason, "duration", candidate.Duration())
		return
	}
	s.flushing = true
	s.mu.Unlock()

	err := s.poster.PostSession(ctx, candidate)

	s.mu.Lock()
	s.flushing = false
	s.mu.Unlock()

	if err != nil {
		s.log.Warn("failed to post activity session", "reason", reason, "error", err)
		return
	}
	s.log.Debug("posted activity session", "reason", reason, "surface", candidate.Surface.Label(), "duration", candidate.Duration())
}

func (s *Segmenter) broadcast(surface capture.Surface, visible bool, at time.Time) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(Message{
		Kind:      KindActivityUpdate,
		SurfaceID: s.id,
		Surface:   surface,
		Visible:   visible,
		At:        at,
	})
}
