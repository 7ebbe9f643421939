package parser

import (
	"strings"
	"testing"
	"time"

	"github.com/balkashynov/tally/internal/models"
)

var now = time.Date(2026, 3, 4, 15, 30, 0, 0, time.UTC)

func TestParseDueDate(t *testing.T) {
	tests := []struct {
		input string
		want  time.Time
	}{
		{"15/12/2026", time.Date(2026, 12, 15, 0, 0, 0, 0, time.UTC)},
		{"1/3/2026", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)},
		{"today", time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)},
		{"Tomorrow", time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)},
		{"3 days", time.Date(2026, 3, 7, 0, 0, 0, 0, time.UTC)},
		{"1 day", time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)},
		{"2w", time.Date(2026, 3, 18, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDueDate(tt.input, now)
			if err != nil {
				t.Fatalf("ParseDueDate(%q): %v", tt.input, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("want %v, got %v", tt.want, got)
			}
		})
	}
}

func TestParseDueDate_Invalid(t *testing.T) {
	for _, input := range []string{"31/02/2026", "12/13/2026", "0 days", "soon", "400 days"} {
		if _, err := ParseDueDate(input, now); err == nil {
			t.Errorf("ParseDueDate(%q) should fail", input)
		}
	}

	got, err := ParseDueDate("  ", now)
	if err != nil || got != nil {
		t.Errorf("blank input should mean no due date, got %v, %v", got, err)
	}
}

func TestFormatDueDate(t *testing.T) {
	yesterday := time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)
	if got := FormatDueDate(&yesterday, now); !strings.Contains(got, "OVERDUE") {
		t.Errorf("yesterday: got %q", got)
	}
	today := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)
	if got := FormatDueDate(&today, now); !strings.Contains(got, "Due today") {
		t.Errorf("today: got %q", got)
	}
	if got := FormatDueDate(nil, now); got != "" {
		t.Errorf("nil: got %q", got)
	}
}

func TestParsePeriod(t *testing.T) {
	tests := []struct {
		input string
		want  models.Period
	}{
		{"", models.Period{Kind: models.PeriodTotal}},
		{"total", models.Period{Kind: models.PeriodTotal}},
		{"today", models.Period{Kind: models.PeriodDay}},
		{"WEEK", models.Period{Kind: models.PeriodWeek}},
		{"02/03/2026", models.Period{
			Kind: models.PeriodRange,
			From: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
			To:   time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC),
		}},
		{"02/03/2026..08/03/2026", models.Period{
			Kind: models.PeriodRange,
			From: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
			To:   time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC),
		}},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParsePeriod(tt.input)
			if err != nil {
				t.Fatalf("ParsePeriod(%q): %v", tt.input, err)
			}
			if got.Kind != tt.want.Kind || !got.From.Equal(tt.want.From) || !got.To.Equal(tt.want.To) {
				t.Errorf("want %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestParsePeriod_Invalid(t *testing.T) {
	for _, input := range []string{"month", "08/03/2026..02/03/2026", "02/03/2026..", "x..y"} {
		if _, err := ParsePeriod(input); err == nil {
			t.Errorf("ParsePeriod(%q) should fail", input)
		}
	}
}
