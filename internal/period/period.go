package period

import (
	"fmt"
	"time"
)

// Period is a fixed schedule window that gates task visibility.
type Period string

const (
	Any       Period = "any"
	Morning   Period = "morning"
	Afternoon Period = "afternoon"
	Evening   Period = "evening"
)

// DateLayout is the format of history keys and pending request dates.
const DateLayout = "2006-01-02"

// Parse validates a period string. The empty string is treated as Any.
func Parse(s string) (Period, error) {
	switch p := Period(s); p {
	case "":
		return Any, nil
	case Any, Morning, Afternoon, Evening:
		return p, nil
	default:
		return "", fmt.Errorf("unknown period %q", s)
	}
}

// Valid reports whether p is one of the four known periods.
func (p Period) Valid() bool {
	switch p {
	case Any, Morning, Afternoon, Evening:
		return true
	}
	return false
}

// For maps wall-clock time to the active period. The 12:00-13:00 lunch gap
// has no active period and returns Any.
func For(t time.Time) Period {
	h := t.Hour()
	switch {
	case h >= 6 && h < 12:
		return Morning
	case h >= 13 && h < 18:
		return Afternoon
	case h >= 18 || h < 6:
		return Evening
	default:
		return Any
	}
}

// IsActive reports whether a task scheduled for timeOfDay is visible at t.
func IsActive(timeOfDay Period, t time.Time) bool {
	if timeOfDay == "" || timeOfDay == Any {
		return true
	}
	return timeOfDay == For(t)
}

// TimeRemaining returns the time left until the current band ends. Evening
// wraps to 06:00 the next day. It returns false during the lunch gap.
func TimeRemaining(t time.Time) (time.Duration, bool) {
	var end time.Time
	switch For(t) {
	case Morning:
		end = clock(t, 0, 12)
	case Afternoon:
		end = clock(t, 0, 18)
	case Evening:
		if t.Hour() < 6 {
			end = clock(t, 0, 6)
		} else {
			end = clock(t, 1, 6)
		}
	default:
		return 0, false
	}
	return end.Sub(t), true
}

// DateKey formats t as a YYYY-MM-DD key in t's location.
func DateKey(t time.Time) string {
	return t.Format(DateLayout)
}

// clock returns hour:00 on t's calendar day plus days, in t's location.
// Boundaries are wall-clock times, so a DST shift changes the delta.
func clock(t time.Time, days, hour int) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day()+days, hour, 0, 0, 0, t.Location())
}
