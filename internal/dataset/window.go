package dataset

import (
	"fmt"
	"strings"
	"time"

	"robustroute/internal/opt"
)

// DayStart is the clock time all window minutes are measured from.
const DayStart = 8 * 60

const minutesPerDay = 24 * 60

// ClockMinutes converts "HH:MM" into minutes after DayStart. Clock times
// before DayStart wrap to the following day.
func ClockMinutes(s string) (float64, error) {
	m, err := clockOffset(s)
	if err != nil {
		return 0, err
	}
	return float64(wrapDay(m)), nil
}

func clockOffset(s string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("parse clock %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute() - DayStart, nil
}

func wrapDay(m int) int {
	if m < 0 {
		m += minutesPerDay
	}
	return m
}

// ParseWindow parses "HH:MM-HH:MM". Empty or malformed input yields ok=false,
// which callers treat as an unconstrained stop. A window that opens before
// DayStart and closes after it keeps a negative start instead of wrapping.
func ParseWindow(s string) (*opt.Window, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	parts := strings.Split(s, "-")
	if len(parts) != 2 {
		return nil, false
	}
	start, err := clockOffset(parts[0])
	if err != nil {
		return nil, false
	}
	end, err := clockOffset(parts[1])
	if err != nil {
		return nil, false
	}
	if start >= 0 || end < 0 {
		start = wrapDay(start)
	}
	return &opt.Window{Start: float64(start), End: float64(wrapDay(end))}, true
}

// FormatWindow renders w back to "HH:MM-HH:MM".
func FormatWindow(w opt.Window) string {
	clock := func(m float64) string {
		total := ((int(m)+DayStart)%minutesPerDay + minutesPerDay) % minutesPerDay
		return fmt.Sprintf("%02d:%02d", total/60, total%60)
	}
	return clock(w.Start) + "-" + clock(w.End)
}
