package service

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ParseDateTime resolves spoken date and time expressions ("tomorrow",
// "next friday", "3pm") against a reference instant. The result is in
// now's location.
func ParseDateTime(dateExpr, timeExpr string, now time.Time) (time.Time, error) {
	day, err := resolveDate(dateExpr, now)
	if err != nil {
		return time.Time{}, err
	}
	hour, minute, err := resolveTime(timeExpr)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, now.Location()), nil
}

func resolveDate(expr string, now time.Time) (time.Time, error) {
	expr = strings.ToLower(strings.TrimSpace(expr))
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	switch expr {
	case "", "today":
		return today, nil
	case "tomorrow":
		return today.AddDate(0, 0, 1), nil
	}

	// "friday" and "next friday" both mean the next occurrence strictly
	// after today, so saying "monday" on a Monday lands a week out.
	dayName := strings.TrimSpace(strings.TrimPrefix(expr, "next "))
	if weekday, ok := weekdayNames[dayName]; ok {
		offset := (int(weekday) - int(today.Weekday()) + 7) % 7
		if offset == 0 {
			offset = 7
		}
		return today.AddDate(0, 0, offset), nil
	}

	if parsed, err := time.ParseInLocation("2006-01-02", expr, now.Location()); err == nil {
		return parsed, nil
	}
	return time.Time{}, fmt.Errorf("unrecognized date expression %q", expr)
}

func resolveTime(expr string) (int, int, error) {
	expr = strings.ToLower(strings.TrimSpace(expr))

	switch expr {
	case "", "morning":
		return 9, 0, nil
	case "afternoon":
		return 14, 0, nil
	case "evening":
		return 17, 0, nil
	}

	meridiem := ""
	switch {
	case strings.HasSuffix(expr, "am"):
		meridiem = "am"
		expr = strings.TrimSpace(strings.TrimSuffix(expr, "am"))
	case strings.HasSuffix(expr, "pm"):
		meridiem = "pm"
		expr = strings.TrimSpace(strings.TrimSuffix(expr, "pm"))
	}

	hourPart := expr
	minutePart := "0"
	if idx := strings.Index(expr, ":"); idx >= 0 {
		hourPart = expr[:idx]
		minutePart = expr[idx+1:]
	}

	hour, err := strconv.Atoi(strings.TrimSpace(hourPart))
	if err != nil {
		return 0, 0, fmt.Errorf("unrecognized time expression %q", expr)
	}
	minute, err := strconv.Atoi(strings.TrimSpace(minutePart))
	if err != nil {
		return 0, 0, fmt.Errorf("unrecognized time expression %q", expr)
	}

	if meridiem != "" {
		if hour < 1 || hour > 12 {
			return 0, 0, fmt.Errorf("hour %d out of range for %s", hour, meridiem)
		}
		if meridiem == "pm" && hour != 12 {
			hour += 12
		}
		if meridiem == "am" && hour == 12 {
			hour = 0
		}
	}

	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("time %02d:%02d out of range", hour, minute)
	}
	return hour, minute, nil
}
