package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	dateRegex     = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})$`)
	relativeRegex = regexp.MustCompile(`^(\d+)\s*(d|day|days|w|week|weeks)$`)
)

// ParseDueDate parses a task due date. Due dates are calendar days, so the
// result is midnight UTC of the target day.
// Supported formats:
// - dd/mm/yyyy (e.g., "15/12/2026")
// - today, tomorrow
// - X days (e.g., "3 days", "1 day", "3d")
// - X weeks (e.g., "2 weeks", "1w")
func ParseDueDate(input string, now time.Time) (*time.Time, error) {
	input = strings.ToLower(strings.TrimSpace(input))
	if input == "" {
		return nil, nil
	}

	switch input {
	case "today":
		d := dateOf(now)
		return &d, nil
	case "tomorrow":
		d := dateOf(now).AddDate(0, 0, 1)
		return &d, nil
	}

	if due, err := ParseDate(input); err == nil {
		return &due, nil
	}

	if due, err := parseRelativeDays(input, now); err == nil {
		return &due, nil
	}

	return nil, fmt.Errorf("invalid due date %q. Use: dd/mm/yyyy, today, tomorrow, X days, or X weeks", input)
}

// ParseDate parses dd/mm/yyyy into midnight UTC of that day.
func ParseDate(input string) (time.Time, error) {
	matches := dateRegex.FindStringSubmatch(strings.TrimSpace(input))
	if len(matches) != 4 {
		return time.Time{}, fmt.Errorf("invalid date %q, expected dd/mm/yyyy", input)
	}

	day, _ := strconv.Atoi(matches[1])
	month, _ := strconv.Atoi(matches[2])
	year, _ := strconv.Atoi(matches[3])

	if month < 1 || month > 12 {
		return time.Time{}, fmt.Errorf("month must be between 1 and 12")
	}
	if year < 2000 || year > 2100 {
		return time.Time{}, fmt.Errorf("year must be between 2000 and 2100")
	}

	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// time.Date normalises 31/02 into March
	if d.Day() != day || d.Month() != time.Month(month) {
		return time.Time{}, fmt.Errorf("invalid date %q", input)
	}
	return d, nil
}

func parseRelativeDays(input string, now time.Time) (time.Time, error) {
	matches := relativeRegex.FindStringSubmatch(input)
	if len(matches) != 3 {
		return time.Time{}, fmt.Errorf("invalid relative date")
	}
	amount, err := strconv.Atoi(matches[1])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid number")
	}

	days := amount
	if strings.HasPrefix(matches[2], "w") {
		days = amount * 7
	}
	if days < 1 || days > 366 {
		return time.Time{}, fmt.Errorf("due date must be between 1 day and 1 year away")
	}
	return dateOf(now).AddDate(0, 0, days), nil
}

func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// FormatDueDate formats a due date for display relative to now
func FormatDueDate(dueDate *time.Time, now time.Time) string {
	if dueDate == nil {
		return ""
	}

	daysDiff := int(dateOf(*dueDate).Sub(dateOf(now)).Hours() / 24)

	// Always show the actual date to avoid confusion
	dateStr := dueDate.Format("02/01/2006")

	switch {
	case daysDiff < 0:
		return fmt.Sprintf("⚠️ OVERDUE (%s)", dateStr)
	case daysDiff == 0:
		return fmt.Sprintf("🔥 Due today (%s)", dateStr)
	case daysDiff == 1:
		return fmt.Sprintf("📅 Due tomorrow (%s)", dateStr)
	case daysDiff <= 7:
		return fmt.Sprintf("📅 Due %s (in %d days)", dateStr, daysDiff)
	default:
		return fmt.Sprintf("📅 Due %s", dateStr)
	}
}
