package segmenter

import (
	"context"
	"image"
	"log/slog"
	"time"

	"github.com/disintegration/imaging"

	"github.com/balkashynov/tally/internal/capture"
	"github.com/balkashynov/tally/internal/clock"
)

// ExternalActivityClassifier infers input activity happening outside the
// tracking surface from consecutive screen frames. It is a heuristic: it
// sees pixels, not events.
type ExternalActivityClassifier interface {
	Classify(frame image.Image, at time.Time) []capture.InferredKind
}

// Thresholds are calibration defaults for FrameDiffClassifier. Ratios are
// the share of pixels that changed between two downscaled frames.
type Thresholds struct {
	PixelDelta     uint8   // per-pixel luma difference that counts as a change
	TypingMinRatio float64 // below this nothing happened
	TypingMaxRatio float64 // small localised changes: caret and glyphs
	ClickRatio     float64 // large repaint: navigation or dialog after a click

	ClickInterval  time.Duration
	TypingInterval time.Duration
	MoveInterval   time.Duration
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		PixelDelta:     24,
		TypingMinRatio: 0.0005,
		TypingMaxRatio: 0.01,
		ClickRatio:     0.12,
		ClickInterval:  time.Second,
		TypingInterval: 400 * time.Millisecond,
		MoveInterval:   700 * time.Millisecond,
	}
}

const (
	diffWidth  = 320
	diffHeight = 180
)

// FrameDiffClassifier classifies the changed-pixel ratio between consecutive
// frames scaled to 320x180 grayscale.
type FrameDiffClassifier struct {
	th   Thresholds
	prev *image.NRGBA
	last map[capture.InferredKind]time.Time
}

func NewFrameDiffClassifier(th Thresholds) *FrameDiffClassifier {
	return &FrameDiffClassifier{th: th, last: make(map[capture.InferredKind]time.Time)}
}

// Classify compares frame to the previous one. The first frame only primes
// the classifier.
func (c *FrameDiffClassifier) Classify(frame image.Image, at time.Time) []capture.InferredKind {
	cur := imaging.Grayscale(imaging.Resize(frame, diffWidth, diffHeight, imaging.Box))
	prev := c.prev
	c.prev = cur
	if prev == nil {
		return nil
	}

	ratio := changedRatio(prev, cur, c.th.PixelDelta)
	kind, ok := c.kindFor(ratio)
	if !ok {
		return nil
	}
	if last, seen := c.last[kind]; seen && at.Sub(last) < c.interval(kind) {
		return nil
	}
	c.last[kind] = at
	return []capture.InferredKind{kind}
}

func (c *FrameDiffClassifier) kindFor(ratio float64) (capture.InferredKind, bool) {
	switch {
	case ratio < c.th.TypingMinRatio:
		return 0, false
	case ratio < c.th.TypingMaxRatio:
		return capture.InferredKey, true
	case ratio < c.th.ClickRatio:
		return capture.InferredMove, true
	default:
		return capture.InferredClick, true
	}
}

func (c *FrameDiffClassifier) interval(kind capture.InferredKind) time.Duration {
	switch kind {
	case capture.InferredClick:
		return c.th.ClickInterval
	case capture.InferredKey:
		return c.th.TypingInterval
	default:
		return c.th.MoveInterval
	}
}

// changedRatio compares the first channel of two grayscale images of equal
// size.
func changedRatio(a, b *image.NRGBA, delta uint8) float64 {
	n := len(a.Pix)
	if len(b.Pix) < n {
		n = len(b.Pix)
	}
	changed, total := 0, 0
	for i := 0; i+3 < n; i += 4 {
		x, y := a.Pix[i], b.Pix[i]
		d := x - y
		if y > x {
			d = y - x
		}
		if d > delta {
			changed++
		}
		total++
	}
	if total == 0 {
		return 0
	}
	return float64(changed) / float64(total)
}

// FrameSource yields the current screen frame.
type FrameSource interface {
	Frame(ctx context.Context) (image.Image, error)
}

// Sampler feeds frames to a classifier while the tracking surface is hidden
// and records what it infers.
type Sampler struct {
	src      FrameSource
	cls      ExternalActivityClassifier
	agg      *capture.Aggregator
	active   func() bool
	clock    clock.Clock
	interval time.Duration
	log      *slog.Logger
}

// NewSampler returns a sampler that runs while active reports true.
func NewSampler(src FrameSource, cls ExternalActivityClassifier, agg *capture.Aggregator, active func() bool, clk clock.Clock, interval time.Duration, log *slog.Logger) *Sampler {
	return &Sampler{src: src, cls: cls, agg: agg, active: active, clock: clk, interval: interval, log: log}
}

// Sample grabs one frame and records any inferred activity.
func (s *Sampler) Sample(ctx context.Context) {
	if !s.active() {
		return
	}
	frame, err := s.src.Frame(ctx)
	if err != nil {
		s.log.Debug("frame sample failed", "error", err)
		return
	}
	for _, kind := range s.cls.Classify(frame, s.clock.Now()) {
		s.agg.RecordInferred(kind)
	}
}

func (s *Sampler) Run(ctx context.Context) error {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
			s.Sample(ctx)
		}
	}
}
