package booking

import "time"

// GenerateSlots enumerates candidate start times for one date. For each
// effective open interval, starts are emitted every step as long as
// start+duration still fits before close. Output is chronological across
// all intervals of the day. Candidates strictly before now are dropped;
// now is always injected by the caller so results are deterministic.
func GenerateSlots(cal Calendar, date Date, duration, step time.Duration, now time.Time) []Slot {
	if duration <= 0 || step <= 0 {
		return nil
	}

	loc := cal.Location
	if loc == nil {
		loc = time.UTC
	}
	midnight := date.In(loc)

	var slots []Slot
	for _, iv := range cal.EffectiveIntervals(date) {
		open := midnight.Add(time.Duration(iv.Open) * time.Minute)
		close := midnight.Add(time.Duration(iv.Close) * time.Minute)

		for start := open; !start.Add(duration).After(close); start = start.Add(step) {
			if start.Before(now) {
				continue
			}
			slots = append(slots, Slot{Start: start, Duration: duration})
		}
	}
	return slots
}

// FilterAvailable drops every candidate slot whose occupied interval,
// buffer included, overlaps the occupied interval of an existing confirmed
// appointment. Cancelled and completed appointments never block a slot.
// The function is pure; the read it runs against may be stale, because the
// booking commit path re-checks under its serialization boundary.
func FilterAvailable(candidates []Slot, existing []Appointment, buffer time.Duration) []Slot {
	free := make([]Slot, 0, len(candidates))
	for _, slot := range candidates {
		occupied := slot.Occupied(buffer)
		conflict := false
		for _, appt := range existing {
			if appt.Status != StatusConfirmed {
				continue
			}
			if occupied.Overlaps(appt.Occupied()) {
				conflict = true
				break
			}
		}
		if !conflict {
			free = append(free, slot)
		}
	}
	return free
}

// findConflict returns the first confirmed appointment whose occupied
// interval overlaps the given one.
func findConflict(occupied Interval, existing []Appointment) *Appointment {
	for i, appt := range existing {
		if appt.Status != StatusConfirmed {
			continue
		}
		if occupied.Overlaps(appt.Occupied()) {
			return &existing[i]
		}
	}
	return nil
}
