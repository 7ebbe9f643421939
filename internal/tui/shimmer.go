package tui

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Shimmer sweeps a soft highlight across a line of text, one Step per
// animation tick, pausing between passes.
type Shimmer struct {
	enabled    bool
	center     float64
	widthRatio float64
	ticks      int // ticks per pass
	pauseTicks int
	paused     int
	length     int
}

func NewShimmer(enabled bool) *Shimmer {
	return &Shimmer{enabled: enabled, widthRatio: 0.25, ticks: 18, pauseTicks: 5}
}

// Step advances the highlight over text of textLen runes.
func (s *Shimmer) Step(textLen int) {
	if !s.enabled || textLen <= 0 {
		return
	}
	if textLen != s.length {
		s.length = textLen
		s.Reset()
	}
	if s.paused > 0 {
		s.paused--
		if s.paused == 0 {
			s.center = -float64(textLen) * s.widthRatio
		}
		return
	}

	distance := float64(textLen) * (1 + 2*s.widthRatio)
	s.center += distance / float64(s.ticks)
	if s.center >= float64(textLen)*(1+s.widthRatio) {
		s.paused = s.pauseTicks
	}
}

// Reset moves the highlight back before the first rune.
func (s *Shimmer) Reset() {
	s.center = -float64(s.length) * s.widthRatio
	s.paused = 0
}

// Render colours text with the highlight at its current position. A
// disabled shimmer renders the static accent colour.
func (s *Shimmer) Render(text string) string {
	if text == "" {
		return ""
	}
	if !s.enabled {
		return lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAccentBright)).Render(text)
	}

	runes := []rune(text)
	sigma := math.Max(1, s.widthRatio*float64(len(runes))/2)
	var b strings.Builder
	for i, r := range runes {
		dx := float64(i) - s.center
		w := math.Exp(-(dx * dx) / (2 * sigma * sigma))
		b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(blend(w))).Render(string(r)))
	}
	return b.String()
}

// blend mixes the secondary text colour towards a pale violet by w.
func blend(w float64) string {
	w = math.Max(0, math.Min(1, w))
	mix := func(base, hi int) int {
		return int(math.Round(float64(base)*(1-w) + float64(hi)*w))
	}
	return fmt.Sprintf("#%02X%02X%02X", mix(0xB1, 0xEA), mix(0xB8, 0xE6), mix(0xC7, 0xFF))
}
