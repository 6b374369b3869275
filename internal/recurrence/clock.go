package recurrence

import (
	"fmt"
	"strings"
	"time"
)

// TimeOfDay is a wall-clock hour and minute in UTC.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay accepts "HH:MM" and "HH:MM:SS" (seconds are dropped). The
// hour may be one digit; every component must be plain digits.
func ParseTimeOfDay(raw string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) != 2 && len(parts) != 3 {
		return TimeOfDay{}, invalid("preferred_time must be in HH:MM format, got %q", raw)
	}
	h, ok := clockField(parts[0], 1, 23)
	if !ok {
		return TimeOfDay{}, invalid("preferred_time hour out of range in %q", raw)
	}
	m, ok := clockField(parts[1], 2, 59)
	if !ok {
		return TimeOfDay{}, invalid("preferred_time minute out of range in %q", raw)
	}
	if len(parts) == 3 {
		if _, ok := clockField(parts[2], 2, 59); !ok {
			return TimeOfDay{}, invalid("preferred_time second out of range in %q", raw)
		}
	}
	return TimeOfDay{Hour: h, Minute: m}, nil
}

// clockField parses a field of minLen to 2 ASCII digits whose value is at most limit.
func clockField(s string, minLen, limit int) (int, bool) {
	if len(s) < minLen || len(s) > 2 {
		return 0, false
	}
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, n <= limit
}

func (t TimeOfDay) String() string { return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute) }

// on returns t on the calendar day of ref (ref must be UTC).
func (t TimeOfDay) on(ref time.Time) time.Time {
	return time.Date(ref.Year(), ref.Month(), ref.Day(), t.Hour, t.Minute, 0, 0, time.UTC)
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ParseWeekday accepts full English day names in any case, and the
// three-letter abbreviations.
func ParseWeekday(raw string) (time.Weekday, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if d, ok := weekdays[s]; ok {
		return d, nil
	}
	if len(s) == 3 {
		for name, d := range weekdays {
			if strings.HasPrefix(name, s) {
				return d, nil
			}
		}
	}
	return 0, invalid("unknown preferred_day %q", raw)
}

// WeekdayName is the lowercase wire form of d.
func WeekdayName(d time.Weekday) string { return strings.ToLower(d.String()) }
