package marketclock

import (
	"fmt"
	"time"
)

// ParseClock parses a "HH:MM" time-of-day string
func ParseClock(s string) (hour, min int, err error) {
	if len(s) != 5 || s[2] != ':' {
		return 0, 0, fmt.Errorf("invalid time of day %q, want HH:MM", s)
	}
	if _, err := fmt.Sscanf(s, "%02d:%02d", &hour, &min); err != nil {
		return 0, 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	if hour < 0 || hour > 23 || min < 0 || min > 59 {
		return 0, 0, fmt.Errorf("time of day %q out of range", s)
	}
	return hour, min, nil
}

// TradeDate formats the trading date for the given instant in exchange time
func TradeDate(now time.Time, loc *time.Location) string {
	return now.In(loc).Format("2006-01-02")
}

// At pins a "HH:MM" clock time onto the date of now in exchange time
func At(now time.Time, clock string, loc *time.Location) (time.Time, error) {
	h, m, err := ParseClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	d := now.In(loc)
	return time.Date(d.Year(), d.Month(), d.Day(), h, m, 0, 0, loc), nil
}

// SessionWindow returns the trading-session bounds for today as epoch
// milliseconds, the unit the charting API expects
func SessionWindow(now time.Time, start, end string, loc *time.Location) (startMs, endMs int64, err error) {
	s, err := At(now, start, loc)
	if err != nil {
		return 0, 0, err
	}
	e, err := At(now, end, loc)
	if err != nil {
		return 0, 0, err
	}
	return s.UnixMilli(), e.UnixMilli(), nil
}
