package booking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustTimeOfDay(t *testing.T, s string) TimeOfDay {
	t.Helper()
	tod, err := ParseTimeOfDay(s)
	require.NoError(t, err)
	return tod
}

func interval(t *testing.T, open, close string) OpenInterval {
	t.Helper()
	return OpenInterval{Open: mustTimeOfDay(t, open), Close: mustTimeOfDay(t, close)}
}

func TestParseTimeOfDay(t *testing.T) {
	tod, err := ParseTimeOfDay("09:30")
	require.NoError(t, err)
	assert.Equal(t, TimeOfDay(9*60+30), tod)
	assert.Equal(t, "09:30", tod.String())

	_, err = ParseTimeOfDay("25:00")
	assert.Error(t, err)

	_, err = ParseTimeOfDay("nonsense")
	assert.Error(t, err)
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2030-06-04")
	require.NoError(t, err)
	assert.Equal(t, Date{Year: 2030, Month: time.June, Day: 4}, d)
	assert.Equal(t, "2030-06-04", d.String())

	_, err = ParseDate("04/06/2030")
	assert.Error(t, err)
}

func TestDateAddDays_CrossesMonth(t *testing.T) {
	d := Date{Year: 2030, Month: time.June, Day: 29}
	assert.Equal(t, Date{Year: 2030, Month: time.July, Day: 1}, d.AddDays(2))
}

func TestEffectiveIntervals_WeeklyRule(t *testing.T) {
	date, err := ParseDate("2030-06-04")
	require.NoError(t, err)

	cal := Calendar{
		Location: time.UTC,
		Rules: []WorkingHoursRule{
			{Weekday: date.Weekday(), Intervals: []OpenInterval{interval(t, "09:00", "17:00")}},
		},
	}

	got := cal.EffectiveIntervals(date)
	require.Len(t, got, 1)
	assert.Equal(t, interval(t, "09:00", "17:00"), got[0])

	// A day with no rule is closed.
	assert.Empty(t, cal.EffectiveIntervals(date.AddDays(1)))
}

func TestEffectiveIntervals_ClosedOverrideBeatsWeeklyRule(t *testing.T) {
	date, err := ParseDate("2030-06-04")
	require.NoError(t, err)

	cal := Calendar{
		Location: time.UTC,
		Rules: []WorkingHoursRule{
			{Weekday: date.Weekday(), Intervals: []OpenInterval{interval(t, "09:00", "17:00")}},
		},
		Overrides: []DateOverride{
			{Date: date, Closed: true},
		},
	}

	assert.Empty(t, cal.EffectiveIntervals(date))

	// The next week's same weekday is unaffected.
	assert.Len(t, cal.EffectiveIntervals(date.AddDays(7)), 1)
}

func TestEffectiveIntervals_ReplacementOverride(t *testing.T) {
	date, err := ParseDate("2030-06-04")
	require.NoError(t, err)

	cal := Calendar{
		Location: time.UTC,
		Rules: []WorkingHoursRule{
			{Weekday: date.Weekday(), Intervals: []OpenInterval{interval(t, "09:00", "17:00")}},
		},
		Overrides: []DateOverride{
			{Date: date, Intervals: []OpenInterval{interval(t, "12:00", "15:00")}},
		},
	}

	got := cal.EffectiveIntervals(date)
	require.Len(t, got, 1)
	assert.Equal(t, interval(t, "12:00", "15:00"), got[0])
}

func TestEffectiveIntervals_MergesOverlaps(t *testing.T) {
	date, err := ParseDate("2030-06-04")
	require.NoError(t, err)

	cal := Calendar{
		Location: time.UTC,
		Rules: []WorkingHoursRule{
			{Weekday: date.Weekday(), Intervals: []OpenInterval{
				interval(t, "13:00", "18:00"),
				interval(t, "09:00", "14:00"),
			}},
		},
	}

	got := cal.EffectiveIntervals(date)
	require.Len(t, got, 1)
	assert.Equal(t, interval(t, "09:00", "18:00"), got[0])
}

func TestEffectiveIntervals_KeepsDisjointIntervalsSorted(t *testing.T) {
	date, err := ParseDate("2030-06-04")
	require.NoError(t, err)

	cal := Calendar{
		Location: time.UTC,
		Rules: []WorkingHoursRule{
			{Weekday: date.Weekday(), Intervals: []OpenInterval{
				interval(t, "14:00", "17:00"),
				interval(t, "09:00", "13:00"),
			}},
		},
	}

	got := cal.EffectiveIntervals(date)
	require.Len(t, got, 2)
	assert.Equal(t, interval(t, "09:00", "13:00"), got[0])
	assert.Equal(t, interval(t, "14:00", "17:00"), got[1])
}

func TestEffectiveIntervals_DropsEmptyIntervals(t *testing.T) {
	date, err := ParseDate("2030-06-04")
	require.NoError(t, err)

	cal := Calendar{
		Location: time.UTC,
		Rules: []WorkingHoursRule{
			{Weekday: date.Weekday(), Intervals: []OpenInterval{
				{Open: mustTimeOfDay(t, "09:00"), Close: mustTimeOfDay(t, "09:00")},
			}},
		},
	}

	assert.Empty(t, cal.EffectiveIntervals(date))
}

func TestIntervalOverlaps_HalfOpen(t *testing.T) {
	day := time.Date(2030, time.June, 4, 0, 0, 0, 0, time.UTC)
	at := func(h, m int) time.Time { return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute) }

	a := Interval{Start: at(9, 0), End: at(9, 30)}
	b := Interval{Start: at(9, 30), End: at(10, 0)}
	c := Interval{Start: at(9, 15), End: at(9, 45)}

	assert.False(t, a.Overlaps(b), "touching intervals must not overlap")
	assert.False(t, b.Overlaps(a))
	assert.True(t, a.Overlaps(c))
	assert.True(t, c.Overlaps(b))
}
