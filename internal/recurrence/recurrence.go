// Package recurrence models how often a price notification fires and
// computes the next fire time. Everything here is pure and works in UTC.
package recurrence

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// MaxIntervalHours is the longest custom interval (one week).
const MaxIntervalHours = 168

var ErrInvalidRecurrence = errors.New("invalid recurrence")

// Kind is the wire value of a recurrence ("frequency_type").
type Kind string

const (
	KindHourly Kind = "hourly"
	KindDaily  Kind = "daily"
	KindWeekly Kind = "weekly"
	KindCustom Kind = "custom"
)

// Recurrence is one of Hourly, Daily, Weekly or Custom.
type Recurrence interface {
	Kind() Kind
	// Next returns the first fire strictly after now, in UTC.
	Next(now time.Time) time.Time
}

// Hourly fires one hour after the reference time.
type Hourly struct{}

func (Hourly) Kind() Kind { return KindHourly }

func (Hourly) Next(now time.Time) time.Time { return now.UTC().Add(time.Hour) }

// Daily fires every day at At.
type Daily struct {
	At TimeOfDay
}

func (Daily) Kind() Kind { return KindDaily }

func (d Daily) Next(now time.Time) time.Time {
	now = now.UTC()
	next := d.At.on(now)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Weekly fires every week on Day at At.
type Weekly struct {
	Day time.Weekday
	At  TimeOfDay
}

func (Weekly) Kind() Kind { return KindWeekly }

func (w Weekly) Next(now time.Time) time.Time {
	now = now.UTC()
	ahead := (int(w.Day) - int(now.Weekday()) + 7) % 7
	next := w.At.on(now).AddDate(0, 0, ahead)
	if !next.After(now) {
		next = next.AddDate(0, 0, 7)
	}
	return next
}

// Custom fires every Hours hours.
type Custom struct {
	Hours int
}

func (Custom) Kind() Kind { return KindCustom }

func (c Custom) Next(now time.Time) time.Time {
	return now.UTC().Add(time.Duration(c.Hours) * time.Hour)
}

// Spec is the flat field set clients send and the store persists.
type Spec struct {
	FrequencyType string
	IntervalHours *int
	PreferredTime *string
	PreferredDay  *string
}

// FromSpec validates s and returns the matching variant. Fields that do not
// belong to the frequency type are ignored.
func FromSpec(s Spec) (Recurrence, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s.FrequencyType))) {
	case KindHourly:
		return Hourly{}, nil
	case KindCustom:
		if s.IntervalHours == nil {
			return nil, invalid("interval_hours is required for custom frequency")
		}
		h := *s.IntervalHours
		if h <= 0 || h > MaxIntervalHours {
			return nil, invalid("interval_hours must be between 1 and %d, got %d", MaxIntervalHours, h)
		}
		return Custom{Hours: h}, nil
	case KindDaily:
		at, err := requireTime(s.PreferredTime)
		if err != nil {
			return nil, err
		}
		return Daily{At: at}, nil
	case KindWeekly:
		at, err := requireTime(s.PreferredTime)
		if err != nil {
			return nil, err
		}
		if s.PreferredDay == nil || strings.TrimSpace(*s.PreferredDay) == "" {
			return nil, invalid("preferred_day is required for weekly frequency")
		}
		day, err := ParseWeekday(*s.PreferredDay)
		if err != nil {
			return nil, err
		}
		return Weekly{Day: day, At: at}, nil
	case "":
		return nil, invalid("frequency_type is required")
	default:
		return nil, invalid("unknown frequency_type %q", s.FrequencyType)
	}
}

// ToSpec flattens r back into storage fields.
func ToSpec(r Recurrence) Spec {
	switch v := r.(type) {
	case Hourly:
		one := 1
		return Spec{FrequencyType: string(KindHourly), IntervalHours: &one}
	case Custom:
		h := v.Hours
		return Spec{FrequencyType: string(KindCustom), IntervalHours: &h}
	case Daily:
		at := v.At.String()
		return Spec{FrequencyType: string(KindDaily), PreferredTime: &at}
	case Weekly:
		at := v.At.String()
		day := WeekdayName(v.Day)
		return Spec{FrequencyType: string(KindWeekly), PreferredTime: &at, PreferredDay: &day}
	default:
		return Spec{}
	}
}

func requireTime(raw *string) (TimeOfDay, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return TimeOfDay{}, invalid("preferred_time is required for daily and weekly frequency")
	}
	return ParseTimeOfDay(*raw)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRecurrence, fmt.Sprintf(format, args...))
}
