package tracker

import (
	"context"
	"image"
	"sync"

	"github.com/balkashynov/tally/internal/screenshot"
)

// lazyFrames is a frame source that acquires its capture stream on first
// use and re-acquires after a failed frame.
type lazyFrames struct {
	acq screenshot.Acquirer

	mu     sync.Mutex
	stream screenshot.Stream
}

func (f *lazyFrames) Frame(ctx context.Context) (image.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stream == nil {
		stream, err := f.acq.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		f.stream = stream
	}
	img, err := f.stream.Frame(ctx)
	if err != nil {
		_ = f.stream.Close()
		f.stream = nil
		return nil, err
	}
	return img, nil
}

func (f *lazyFrames) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stream != nil {
		_ = f.stream.Close()
		f.stream = nil
	}
}
