package screenshot

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strings"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/balkashynov/tally/internal/capture"
)

// Frame kinds, in order of preference.
const (
	KindScreen      = "screen"
	KindCard        = "card"
	KindPlaceholder = "placeholder"
)

const (
	fallbackWidth  = 640
	fallbackHeight = 360
)

// Degenerate reports whether a frame looks like a failed capture: an empty
// image, or a centre region that is uniformly black.
func Degenerate(img image.Image) bool {
	if img == nil {
		return true
	}
	b := img.Bounds()
	if b.Dx() < 2 || b.Dy() < 2 {
		return true
	}

	// middle half of each axis
	center := image.Rect(
		b.Min.X+b.Dx()/4, b.Min.Y+b.Dy()/4,
		b.Max.X-b.Dx()/4, b.Max.Y-b.Dy()/4,
	)
	step := max(1, center.Dx()/64)

	var sum, n int
	lo, hi := 255, 0
	for y := center.Min.Y; y < center.Max.Y; y += step {
		for x := center.Min.X; x < center.Max.X; x += step {
			l := int(color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y)
			sum += l
			n++
			lo = min(lo, l)
			hi = max(hi, l)
		}
	}
	if n == 0 {
		return true
	}
	mean := sum / n
	return mean < 8 && hi-lo < 4
}

// CardInfo describes what a fallback frame shows.
type CardInfo struct {
	TaskID  uint
	Surface capture.Surface
	At      time.Time
	Reason  string
}

// RenderCard draws the tracking surface as a synthetic card.
func RenderCard(info CardInfo) image.Image {
	img := canvas(color.RGBA{R: 0x1e, G: 0x29, B: 0x3b, A: 0xff})
	accent := image.Rect(0, 0, fallbackWidth, 8)
	draw.Draw(img, accent, &image.Uniform{C: color.RGBA{R: 0x06, G: 0xb6, B: 0xd4, A: 0xff}}, image.Point{}, draw.Src)

	lines := []string{
		"tally: tracking",
		fmt.Sprintf("task #%d", info.TaskID),
		"surface: " + orDash(info.Surface.AppName),
	}
	if info.Surface.WindowTitle != "" {
		lines = append(lines, "window: "+truncate(info.Surface.WindowTitle, 70))
	}
	if info.Surface.URL != "" {
		lines = append(lines, "url: "+truncate(info.Surface.URL, 70))
	}
	lines = append(lines, "at: "+info.At.Format("2006-01-02 15:04:05"))
	writeLines(img, lines, color.RGBA{R: 0xe2, G: 0xe8, B: 0xf0, A: 0xff})
	return img
}

// RenderPlaceholder draws a plain frame carrying text metadata only.
func RenderPlaceholder(info CardInfo) image.Image {
	img := canvas(color.RGBA{R: 0x40, G: 0x40, B: 0x40, A: 0xff})
	lines := []string{
		"screen capture unavailable",
		fmt.Sprintf("task #%d", info.TaskID),
		"at: " + info.At.Format("2006-01-02 15:04:05"),
	}
	if info.Reason != "" {
		lines = append(lines, "reason: "+truncate(info.Reason, 70))
	}
	writeLines(img, lines, color.White)
	return img
}

func canvas(bg color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, fallbackWidth, fallbackHeight))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: bg}, image.Point{}, draw.Src)
	return img
}

func writeLines(img draw.Image, lines []string, fg color.Color) {
	face := basicfont.Face7x13
	d := &font.Drawer{Dst: img, Src: image.NewUniform(fg), Face: face}
	y := 40
	for _, line := range lines {
		d.Dot = fixed.P(24, y)
		d.DrawString(line)
		y += face.Height + 8
	}
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
