package screenshot

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/vova616/screenshot"
)

// ErrNoSource is returned when no capture stream is available and a new one
// may not be requested.
var ErrNoSource = errors.New("no capture source available")

// Stream is a granted capture source.
type Stream interface {
	Frame(ctx context.Context) (image.Image, error)
	Close() error
}

// Acquirer requests a capture stream.
type Acquirer interface {
	Acquire(ctx context.Context) (Stream, error)
}

// DisplayAcquirer captures the primary display.
type DisplayAcquirer struct{}

// Acquire checks the display bounds; a display that cannot report them
// cannot be captured either.
func (DisplayAcquirer) Acquire(ctx context.Context) (Stream, error) {
	type result struct {
		rect image.Rectangle
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		rect, err := screenshot.ScreenRect()
		ch <- result{rect, err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("acquiring display: %w", ctx.Err())
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("acquiring display: %w", r.err)
		}
		if r.rect.Empty() {
			return nil, fmt.Errorf("acquiring display: empty screen bounds")
		}
		return &displayStream{rect: r.rect}, nil
	}
}

type displayStream struct {
	mu     sync.Mutex
	rect   image.Rectangle
	closed bool
}

func (s *displayStream) Frame(ctx context.Context) (image.Image, error) {
	s.mu.Lock()
	closed, rect := s.closed, s.rect
	s.mu.Unlock()
	if closed {
		return nil, ErrNoSource
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img, err := screenshot.CaptureRect(rect)
	if err != nil {
		return nil, fmt.Errorf("capturing screen: %w", err)
	}
	return img, nil
}

func (s *displayStream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
