package segmenter

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"testing"
	"time"

	"github.com/balkashynov/tally/internal/capture"
	"github.com/balkashynov/tally/internal/clock"
	"github.com/balkashynov/tally/internal/logging"
)

func solidFrame(c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, diffWidth, diffHeight))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: c}, image.Point{}, draw.Src)
	return img
}

func frameWithBlock(size int) *image.RGBA {
	img := solidFrame(color.Black)
	r := image.Rect(100, 50, 100+size, 50+size)
	draw.Draw(img, r, &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	return img
}

// These cases pin the calibration defaults; retuning DefaultThresholds
// should update them.
func TestFrameDiffClassifier_CalibrationDefaults(t *testing.T) {
	tests := []struct {
		name string
		next image.Image
		want []capture.InferredKind
	}{
		{"identical frame", solidFrame(color.Black), nil},
		{"typing flicker", frameWithBlock(10), []capture.InferredKind{capture.InferredKey}},
		{"movement drift", frameWithBlock(60), []capture.InferredKind{capture.InferredMove}},
		{"click burst", solidFrame(color.White), []capture.InferredKind{capture.InferredClick}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewFrameDiffClassifier(DefaultThresholds())
			if got := c.Classify(solidFrame(color.Black), t0); got != nil {
				t.Fatalf("first frame should only prime, got %v", got)
			}
			got := c.Classify(tt.next, t0.Add(time.Second))
			if len(got) != len(tt.want) || (len(got) == 1 && got[0] != tt.want[0]) {
				t.Errorf("want %v, got %v", tt.want, got)
			}
		})
	}
}

func TestFrameDiffClassifier_RetriggerInterval(t *testing.T) {
	c := NewFrameDiffClassifier(DefaultThresholds())
	black, block := solidFrame(color.Black), frameWithBlock(10)

	c.Classify(black, t0)
	if got := c.Classify(block, t0.Add(100*time.Millisecond)); len(got) != 1 {
		t.Fatalf("first typing flicker should count, got %v", got)
	}
	if got := c.Classify(black, t0.Add(300*time.Millisecond)); len(got) != 0 {
		t.Errorf("flicker within the re-trigger interval should be ignored, got %v", got)
	}
	if got := c.Classify(block, t0.Add(600*time.Millisecond)); len(got) != 1 {
		t.Errorf("flicker after the re-trigger interval should count, got %v", got)
	}
}

type alternatingSource struct {
	frames []image.Image
	i      int
}

func (s *alternatingSource) Frame(ctx context.Context) (image.Image, error) {
	f := s.frames[s.i%len(s.frames)]
	s.i++
	return f, nil
}

func TestSampler_RecordsOnlyWhileActive(t *testing.T) {
	clk := clock.NewFake(t0)
	agg := capture.NewAggregator(clk, time.UTC)
	src := &alternatingSource{frames: []image.Image{solidFrame(color.Black), solidFrame(color.White)}}
	active := false
	s := NewSampler(src, NewFrameDiffClassifier(DefaultThresholds()), agg, func() bool { return active }, clk, 700*time.Millisecond, logging.Discard())
	ctx := context.Background()

	s.Sample(ctx)
	if src.i != 0 {
		t.Fatal("inactive sampler must not grab frames")
	}

	active = true
	for i := 0; i < 4; i++ {
		s.Sample(ctx)
		clk.Advance(1100 * time.Millisecond)
	}
	// first frame primes, then three full-frame changes past the 1s interval
	if got := agg.CurrentMinuteBucket().Mouse; got != 3 {
		t.Errorf("inferred clicks: want 3, got %d", got)
	}
}
