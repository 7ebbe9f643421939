package screenshot

import (
	"bytes"
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

var (
	// ErrOverBudget means no attempt fit the byte budget.
	ErrOverBudget = errors.New("screenshot exceeds size budget")
	// ErrTooSmall means the encoded image is too small to be a real frame.
	ErrTooSmall = errors.New("screenshot is implausibly small")
)

// Budget bounds the encoded screenshot.
type Budget struct {
	MaxBytes    int
	MinBytes    int
	MaxAttempts int
}

func DefaultBudget() Budget {
	return Budget{MaxBytes: 100 * 1024, MinBytes: 1024, MaxAttempts: 14}
}

// colorQualities are tried first, in order; later attempts switch to
// downscaled grayscale.
var colorQualities = []int{85, 75, 65, 55, 45, 35, 25}

const (
	grayQuality = 50
	grayScale   = 0.8 // per attempt
)

type encoding struct {
	quality int
	scale   float64
	gray    bool
}

func plan(attempt int) encoding {
	if attempt < len(colorQualities) {
		return encoding{quality: colorQualities[attempt], scale: 1}
	}
	scale := 1.0
	for i := len(colorQualities); i <= attempt; i++ {
		scale *= grayScale
	}
	return encoding{quality: grayQuality, scale: scale, gray: true}
}

// Compress encodes img as JPEG within the budget. It returns the data and
// the number of attempts used.
func Compress(img image.Image, b Budget) ([]byte, int, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, 0, fmt.Errorf("compress: empty image")
	}

	var last int
	for attempt := 0; attempt < b.MaxAttempts; attempt++ {
		data, err := encode(img, plan(attempt))
		if err != nil {
			return nil, attempt + 1, err
		}
		last = len(data)
		if len(data) > b.MaxBytes {
			continue
		}
		if len(data) < b.MinBytes {
			return nil, attempt + 1, fmt.Errorf("%w: %d bytes", ErrTooSmall, len(data))
		}
		return data, attempt + 1, nil
	}
	return nil, b.MaxAttempts, fmt.Errorf("%w: %d bytes after %d attempts", ErrOverBudget, last, b.MaxAttempts)
}

func encode(img image.Image, e encoding) ([]byte, error) {
	src := img
	if e.scale < 1 {
		w := int(float64(img.Bounds().Dx()) * e.scale)
		src = imaging.Resize(src, max(1, w), 0, imaging.Lanczos)
	}
	if e.gray {
		src = imaging.Grayscale(src)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, src, imaging.JPEG, imaging.JPEGQuality(e.quality)); err != nil {
		return nil, fmt.Errorf("encoding jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
