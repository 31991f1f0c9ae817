package booking

import (
	"fmt"
	"sort"
	"time"
)

// TimeOfDay is a clock time expressed as minutes since midnight in the
// provider's local zone.
type TimeOfDay int

// ParseTimeOfDay parses "HH:MM" in 24h format.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("parse time of day %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("time of day %q out of range", s)
	}
	return TimeOfDay(h*60 + m), nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// OpenInterval is a half-open [Open, Close) span within a single day.
type OpenInterval struct {
	Open  TimeOfDay
	Close TimeOfDay
}

// WorkingHoursRule is the recurring weekly availability for one weekday.
// A day may carry zero, one, or several disjoint open intervals.
type WorkingHoursRule struct {
	Weekday   time.Weekday
	Intervals []OpenInterval
}

// DateOverride replaces the recurring rule for one exact date. Closed
// overrides represent holidays and one-off closures.
type DateOverride struct {
	Date      Date
	Closed    bool
	Intervals []OpenInterval
}

// Date is a calendar date with no time or zone attached. Using a plain
// struct instead of a midnight time.Time keeps map keys and equality
// checks unambiguous.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// ParseDate parses "YYYY-MM-DD".
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}, nil
}

// DateOf returns the calendar date of t in t's location.
func DateOf(t time.Time) Date {
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func (d Date) IsZero() bool {
	return d == Date{}
}

// In returns midnight of d in the given location.
func (d Date) In(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// AddDays returns the date n days after d.
func (d Date) AddDays(n int) Date {
	return DateOf(d.In(time.UTC).AddDate(0, 0, n))
}

// Weekday returns the day of week d falls on.
func (d Date) Weekday() time.Weekday {
	return d.In(time.UTC).Weekday()
}

// Calendar holds a provider's recurring working hours and per-date
// overrides, all in the provider's fixed local zone.
type Calendar struct {
	Location  *time.Location
	Rules     []WorkingHoursRule
	Overrides []DateOverride
}

// EffectiveIntervals resolves the open intervals for one date. An override
// for that exact date fully replaces the weekly rule, including replacing
// it with nothing to mark the day closed. The result is sorted and
// overlap-free; overlapping input intervals are merged rather than
// rejected.
func (c Calendar) EffectiveIntervals(date Date) []OpenInterval {
	for _, o := range c.Overrides {
		if o.Date == date {
			if o.Closed {
				return nil
			}
			return normalizeIntervals(o.Intervals)
		}
	}

	weekday := date.Weekday()
	var intervals []OpenInterval
	for _, r := range c.Rules {
		if r.Weekday == weekday {
			intervals = append(intervals, r.Intervals...)
		}
	}
	return normalizeIntervals(intervals)
}

// normalizeIntervals sorts intervals by open time, drops empty ones, and
// merges any that touch or overlap into their union.
func normalizeIntervals(in []OpenInterval) []OpenInterval {
	valid := make([]OpenInterval, 0, len(in))
	for _, iv := range in {
		if iv.Close > iv.Open {
			valid = append(valid, iv)
		}
	}
	if len(valid) == 0 {
		return nil
	}

	sort.Slice(valid, func(i, j int) bool { return valid[i].Open < valid[j].Open })

	merged := []OpenInterval{valid[0]}
	for _, iv := range valid[1:] {
		last := &merged[len(merged)-1]
		if iv.Open <= last.Close {
			if iv.Close > last.Close {
				last.Close = iv.Close
			}
			continue
		}
		merged = append(merged, iv)
	}
	return merged
}
