package parser

import (
	"fmt"
	"strings"

	"github.com/balkashynov/tally/internal/models"
)

// ParsePeriod parses a reporting period for the remaining-time summary.
// Supported formats:
// - total (or empty)
// - day, today
// - week
// - dd/mm/yyyy (that single day)
// - dd/mm/yyyy..dd/mm/yyyy (both days inclusive)
func ParsePeriod(input string) (models.Period, error) {
	input = strings.ToLower(strings.TrimSpace(input))

	switch input {
	case "", models.PeriodTotal, "all":
		return models.Period{Kind: models.PeriodTotal}, nil
	case models.PeriodDay, "today":
		return models.Period{Kind: models.PeriodDay}, nil
	case models.PeriodWeek:
		return models.Period{Kind: models.PeriodWeek}, nil
	}

	first, last, isRange := strings.Cut(input, "..")
	from, err := ParseDate(first)
	if err != nil {
		return models.Period{}, fmt.Errorf("invalid period %q: %w", input, err)
	}
	to := from
	if isRange {
		if to, err = ParseDate(last); err != nil {
			return models.Period{}, fmt.Errorf("invalid period %q: %w", input, err)
		}
	}
	if to.Before(from) {
		return models.Period{}, fmt.Errorf("invalid period %q: end date is before start date", input)
	}

	return models.Period{Kind: models.PeriodRange, From: from, To: to.AddDate(0, 0, 1)}, nil
}
