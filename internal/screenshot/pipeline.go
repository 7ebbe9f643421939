package screenshot

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/balkashynov/tally/internal/capture"
	"github.com/balkashynov/tally/internal/clock"
)

// Upload is one screenshot with the activity observed since the previous
// one.
type Upload struct {
	TaskID         uint
	Image          []byte
	Kind           string
	KeyboardClicks int
	MouseClicks    int
	ActivityStart  time.Time
	ActivityEnd    time.Time
	Minutes        []capture.MinuteBucket
}

// Uploader sends a screenshot to the server.
type Uploader interface {
	UploadScreenshot(ctx context.Context, u Upload) error
}

// Notifier surfaces transient failures to the user. It must not block.
type Notifier interface {
	Notify(msg string)
}

// Config holds the capture schedule and limits.
type Config struct {
	FirstDelay     time.Duration
	Interval       time.Duration
	AcquireTimeout time.Duration
	FrameAttempts  int
	RetryBackoff   time.Duration
	Budget         Budget
}

func DefaultConfig() Config {
	return Config{
		FirstDelay:     time.Minute,
		Interval:       10 * time.Minute,
		AcquireTimeout: 3 * time.Second,
		FrameAttempts:  3,
		RetryBackoff:   150 * time.Millisecond,
		Budget:         DefaultBudget(),
	}
}

// Pipeline captures, compresses and uploads screenshots for one tracking
// session.
type Pipeline struct {
	cfg      Config
	clock    clock.Clock
	acquirer Acquirer
	agg      *capture.Aggregator
	uploader Uploader
	notifier Notifier
	log      *slog.Logger
	taskID   uint

	mu       sync.Mutex
	stream   Stream
	since    time.Time // start of the activity interval of the next upload
	stopped  bool
	captures int
}

// NewPipeline returns a pipeline for taskID. The first activity interval
// starts now.
func NewPipeline(cfg Config, clk clock.Clock, acq Acquirer, agg *capture.Aggregator, up Uploader, n Notifier, taskID uint, log *slog.Logger) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		clock:    clk,
		acquirer: acq,
		agg:      agg,
		uploader: up,
		notifier: n,
		log:      log,
		taskID:   taskID,
		since:    clk.Now(),
	}
}

// Run captures after FirstDelay and then every Interval until ctx is
// cancelled or FinalCapture has run.
func (p *Pipeline) Run(ctx context.Context) error {
	first := p.clock.NewTicker(p.cfg.FirstDelay)
	select {
	case <-ctx.Done():
		first.Stop()
		return nil
	case <-first.C():
		first.Stop()
	}
	p.scheduled(ctx)

	ticker := p.clock.NewTicker(p.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
			p.scheduled(ctx)
		}
	}
}

func (p *Pipeline) scheduled(ctx context.Context) {
	if err := p.capture(ctx, true, "scheduled"); err != nil && !errors.Is(err, errStopped) {
		p.log.Warn("scheduled screenshot failed", "error", err)
	}
}

var errStopped = errors.New("pipeline stopped")

// CaptureNow takes a screenshot immediately.
func (p *Pipeline) CaptureNow(ctx context.Context) error {
	return p.capture(ctx, true, "manual")
}

// FinalCapture takes the last screenshot of the session without requesting
// a new capture source, then stops the pipeline.
func (p *Pipeline) FinalCapture(ctx context.Context) error {
	err := p.capture(ctx, false, "final")

	p.mu.Lock()
	p.stopped = true
	stream := p.stream
	p.stream = nil
	p.mu.Unlock()
	if stream != nil {
		_ = stream.Close()
	}
	return err
}

// Captures returns the number of uploaded screenshots.
func (p *Pipeline) Captures() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.captures
}

func (p *Pipeline) capture(ctx context.Context, allowAcquire bool, trigger string) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return errStopped
	}
	since := p.since
	p.mu.Unlock()

	now := p.clock.Now()
	img, kind, reason := p.frame(ctx, allowAcquire, now)

	data, attempts, err := Compress(img, p.cfg.Budget)
	if err != nil {
		p.fail("Screenshot could not be compressed", err)
		return err
	}

	snapshot := p.agg.Snapshot()
	upload := Upload{
		TaskID:        p.taskID,
		Image:         data,
		Kind:          kind,
		ActivityStart: since,
		ActivityEnd:   now,
		Minutes:       snapshot,
	}
	for _, b := range snapshot {
		upload.KeyboardClicks += b.Keyboard
		upload.MouseClicks += b.Mouse
	}

	if err := p.uploader.UploadScreenshot(ctx, upload); err != nil {
		p.fail("Screenshot upload failed", err)
		return err
	}
	p.agg.Discard(snapshot)

	p.mu.Lock()
	p.since = now
	p.captures++
	p.mu.Unlock()

	p.log.Info("screenshot uploaded",
		"trigger", trigger,
		"kind", kind,
		"fallback_reason", reason,
		"size", humanize.Bytes(uint64(len(data))),
		"attempts", attempts,
		"keyboard_clicks", upload.KeyboardClicks,
		"mouse_clicks", upload.MouseClicks,
	)
	return nil
}

// frame returns the best available image: a screen grab, then a surface
// card, then a placeholder. The reason explains a fallback.
func (p *Pipeline) frame(ctx context.Context, allowAcquire bool, now time.Time) (image.Image, string, string) {
	info := CardInfo{TaskID: p.taskID, Surface: p.agg.Surface(), At: now}

	img, err := p.grab(ctx, allowAcquire)
	if err == nil {
		return img, KindScreen, ""
	}
	info.Reason = err.Error()
	p.log.Debug("screen grab unavailable, using fallback", "error", err)

	if !info.Surface.IsZero() {
		return RenderCard(info), KindCard, info.Reason
	}
	return RenderPlaceholder(info), KindPlaceholder, info.Reason
}

func (p *Pipeline) grab(ctx context.Context, allowAcquire bool) (image.Image, error) {
	stream, err := p.source(ctx, allowAcquire)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < max(1, p.cfg.FrameAttempts); attempt++ {
		if attempt > 0 && p.cfg.RetryBackoff > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(p.cfg.RetryBackoff * time.Duration(attempt)):
			}
		}
		img, err := stream.Frame(ctx)
		if err != nil {
			lastErr = err
			continue
		}
		if Degenerate(img) {
			lastErr = errors.New("captured frame is blank")
			continue
		}
		return img, nil
	}

	// the stream is no longer trusted
	p.mu.Lock()
	if p.stream == stream {
		p.stream = nil
	}
	p.mu.Unlock()
	_ = stream.Close()
	return nil, fmt.Errorf("grabbing frame: %w", lastErr)
}

// source reuses the granted stream or acquires a new one.
func (p *Pipeline) source(ctx context.Context, allowAcquire bool) (Stream, error) {
	p.mu.Lock()
	stream := p.stream
	p.mu.Unlock()
	if stream != nil {
		return stream, nil
	}
	if !allowAcquire || p.acquirer == nil {
		return nil, ErrNoSource
	}

	actx, cancel := context.WithTimeout(ctx, p.cfg.AcquireTimeout)
	defer cancel()
	stream, err := p.acquirer.Acquire(actx)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.stream = stream
	p.mu.Unlock()
	return stream, nil
}

func (p *Pipeline) fail(msg string, err error) {
	p.log.Warn(msg, "task_id", p.taskID, "error", err)
	if p.notifier != nil {
		p.notifier.Notify(fmt.Sprintf("%s: %v", msg, err))
	}
}
