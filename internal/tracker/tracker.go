package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/balkashynov/tally/internal/capture"
	"github.com/balkashynov/tally/internal/client"
	"github.com/balkashynov/tally/internal/clock"
	"github.com/balkashynov/tally/internal/config"
	"github.com/balkashynov/tally/internal/models"
	"github.com/balkashynov/tally/internal/screenshot"
	"github.com/balkashynov/tally/internal/segmenter"
)

// Options configures a tracking session.
type Options struct {
	Segmenter   segmenter.Config
	Screenshots screenshot.Config
	// Capture enables screenshots and hidden-surface sampling.
	Capture   bool
	Heartbeat time.Duration
	Surface   capture.Surface
	Location  *time.Location
	Bus       segmenter.Bus
	Acquirer  screenshot.Acquirer
}

// OptionsFromConfig maps the client and screenshot sections of cfg.
func OptionsFromConfig(cfg config.Config) Options {
	seg := segmenter.DefaultConfig()
	seg.CheckInterval = config.Seconds(cfg.Client.CheckIntervalSeconds)
	seg.FlushCooldown = config.Seconds(cfg.Client.FlushCooldownSeconds)
	seg.MinSessionDuration = config.Seconds(cfg.Client.MinSessionSeconds)
	seg.BroadcastStaleAfter = config.Seconds(cfg.Client.BroadcastStaleSeconds)

	shots := screenshot.DefaultConfig()
	shots.FirstDelay = config.Seconds(cfg.Screenshots.FirstDelaySeconds)
	shots.Interval = config.Seconds(cfg.Screenshots.IntervalSeconds)
	shots.AcquireTimeout = config.Seconds(cfg.Screenshots.AcquireTimeoutSeconds)
	shots.Budget = screenshot.Budget{
		MaxBytes:    cfg.Screenshots.MaxBytes,
		MinBytes:    cfg.Screenshots.MinBytes,
		MaxAttempts: cfg.Screenshots.MaxAttempts,
	}

	return Options{
		Segmenter:   seg,
		Screenshots: shots,
		Capture:     cfg.Screenshots.Enabled,
		Heartbeat:   config.Seconds(cfg.Client.HeartbeatSeconds),
		Surface:     capture.Surface{AppName: cfg.Client.AppName, WindowTitle: "tally"},
		Location:    cfg.Accounting.Location(),
		Acquirer:    screenshot.DisplayAcquirer{},
	}
}

// Session is one running timer on the client: the server-side time track
// plus the local capture machinery feeding it.
type Session struct {
	api   API
	clock clock.Clock
	log   *slog.Logger
	opts  Options

	track    *models.TimeTrack
	agg      *capture.Aggregator
	seg      *segmenter.Segmenter
	pipeline *screenshot.Pipeline
	frames   *lazyFrames
	notes    *Notes

	cancel context.CancelFunc
	group  *errgroup.Group
	ended  chan struct{}

	endOnce  sync.Once
	stopOnce sync.Once
	stopped  *models.TimeTrack
	stopErr  error
}

// Begin starts the server timer for taskID and the local tracking loops.
// A rejected start (cap reached, past due) returns the API error and starts
// nothing.
func Begin(ctx context.Context, api API, clk clock.Clock, taskID uint, description string, opts Options, log *slog.Logger) (*Session, error) {
	track, err := api.Start(ctx, &taskID, description)
	if err != nil {
		return nil, err
	}

	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	s := &Session{
		api:   api,
		clock: clk,
		log:   log.With("track_id", track.ID, "task_id", taskID),
		opts:  opts,
		track: track,
		agg:   capture.NewAggregator(clk, loc),
		notes: NewNotes(8),
		ended: make(chan struct{}),
	}
	s.seg = segmenter.New(opts.Segmenter, clk, s.agg, sessionPoster{api: api}, opts.Bus, s.log)
	s.seg.Start(taskID, opts.Surface)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	g, gctx := errgroup.WithContext(runCtx)
	s.group = g

	g.Go(func() error { return s.seg.Run(gctx) })
	g.Go(func() error { return s.heartbeat(gctx) })

	if opts.Capture && opts.Acquirer != nil {
		s.pipeline = screenshot.NewPipeline(opts.Screenshots, clk, opts.Acquirer, s.agg, screenshotUploader{api: api}, s.notes, taskID, s.log)
		g.Go(func() error { return s.pipeline.Run(gctx) })

		s.frames = &lazyFrames{acq: opts.Acquirer}
		sampler := segmenter.NewSampler(s.frames, segmenter.NewFrameDiffClassifier(segmenter.DefaultThresholds()),
			s.agg, s.sampling, clk, opts.Segmenter.SampleInterval, s.log)
		g.Go(func() error { return sampler.Run(gctx) })
	}

	s.log.Info("tracking started", "surface", opts.Surface.Label(), "screenshots", s.pipeline != nil)
	return s, nil
}

// sampling is true while the session runs and the tracking surface is
// hidden, the only time frames need classifying.
func (s *Session) sampling() bool {
	return s.seg.Tracking() && !s.seg.Visible()
}

func (s *Session) heartbeat(ctx context.Context) error {
	ticker := s.clock.NewTicker(s.opts.Heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
			if _, err := s.api.Heartbeat(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				var apiErr *client.APIError
				if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
					s.notes.Notify("Timer was stopped on the server")
					s.end()
					return nil
				}
				s.log.Warn("heartbeat failed", "error", err)
				s.notes.Notify(fmt.Sprintf("Heartbeat failed: %v", err))
			}
		}
	}
}

func (s *Session) end() {
	s.endOnce.Do(func() { close(s.ended) })
}

// Track is the time track as returned by the start call.
func (s *Session) Track() *models.TimeTrack { return s.track }

func (s *Session) TaskID() uint {
	if s.track.TaskID == nil {
		return 0
	}
	return *s.track.TaskID
}

// Aggregator receives the raw input events of the tracking surface.
func (s *Session) Aggregator() *capture.Aggregator { return s.agg }

// Segmenter receives visibility, focus and surface changes.
func (s *Session) Segmenter() *segmenter.Segmenter { return s.seg }

// Notes delivers transient failures worth showing the user.
func (s *Session) Notes() <-chan string { return s.notes.C() }

// Ended is closed when the server no longer has the timer running.
func (s *Session) Ended() <-chan struct{} { return s.ended }

// Elapsed is the running time of the timer at now.
func (s *Session) Elapsed() time.Duration {
	return time.Duration(s.track.Elapsed(s.clock.Now())) * time.Second
}

// Remaining fetches the cap summary of the tracked task.
func (s *Session) Remaining(ctx context.Context) (*models.Summary, error) {
	return s.api.Remaining(ctx, s.TaskID(), models.PeriodTotal)
}

// CaptureNow takes and uploads a screenshot immediately.
func (s *Session) CaptureNow(ctx context.Context) error {
	if s.pipeline == nil {
		return errors.New("screenshots are disabled")
	}
	return s.pipeline.CaptureNow(ctx)
}

// Screenshots is the number of screenshots uploaded so far.
func (s *Session) Screenshots() int {
	if s.pipeline == nil {
		return 0
	}
	return s.pipeline.Captures()
}

// Stop ends the session: a final screenshot from the already granted
// stream, the last activity segment, then the server timer. It is safe to
// call more than once.
func (s *Session) Stop(ctx context.Context) (*models.TimeTrack, error) {
	s.stopOnce.Do(func() {
		if s.pipeline != nil {
			if err := s.pipeline.FinalCapture(ctx); err != nil {
				s.log.Warn("final screenshot failed", "error", err)
			}
		}
		s.seg.Stop(ctx)

		s.cancel()
		if err := s.group.Wait(); err != nil {
			s.log.Warn("tracking loop exited with error", "error", err)
		}
		if s.frames != nil {
			s.frames.Close()
		}

		s.stopped, s.stopErr = s.api.Stop(ctx, s.track.ID)
		s.end()
		if s.stopErr == nil {
			s.log.Info("tracking stopped", "duration_seconds", s.stopped.DurationSeconds, "screenshots", s.Screenshots())
		}
	})
	return s.stopped, s.stopErr
}
