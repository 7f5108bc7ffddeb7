package schedule

import (
	"sort"
	"time"
)

// Occupation reason codes seen on the availability feed. A "fully booked"
// code marks the slot occupied even when the occupancy flag is unset; a free
// code marks it bookable even when the flag is set, because the feed keeps
// reporting slots as booked after the underlying appointment was cancelled.
var (
	bookedReasonCodes = map[string]bool{
		"OCUP": true,
		"MARC": true,
	}
	freeReasonCodes = map[string]bool{
		"LIVRE": true,
		"VAGO":  true,
	}
)

func slotOccupied(a Availability) bool {
	if freeReasonCodes[a.ReasonCode] {
		return false
	}
	return a.Occupied || bookedReasonCodes[a.ReasonCode]
}

// NormalizeTimeline fuses the raw availability and appointment feeds for one
// doctor into a single timeline sorted by start time.
//
// The feeds disagree in practice, so reconciliation runs in two passes:
// active appointments first, claiming their nearest slot and marking it
// occupied, then annulled/rescheduled appointments, which may only attach to
// slots no active appointment claimed. A live appointment always wins over a
// cancelled one at the same time.
//
// Records with a missing start time or a negative duration are skipped; a
// bad individual record never fails the whole normalization.
func NormalizeTimeline(avail []Availability, appts []Appointment, rules Rules) []CalendarEntry {
	entries := make([]CalendarEntry, 0, len(avail)+len(appts))

	for _, a := range avail {
		if a.StartTime.IsZero() || a.DurationMinutes < 0 {
			continue
		}
		av := a
		entries = append(entries, CalendarEntry{
			StartTime:       a.StartTime,
			DurationMinutes: a.DurationMinutes,
			Occupied:        slotOccupied(a),
			Availability:    &av,
		})
	}

	// Pass 1: active appointments claim slots.
	for i := range appts {
		ap := appts[i]
		if ap.StartTime.IsZero() || ap.DurationMinutes < 0 || !ap.Status.Active() {
			continue
		}
		if idx := matchEntry(entries, ap, rules.MatchTolerance); idx >= 0 {
			entries[idx].Appointment = &ap
			entries[idx].Occupied = true
			entries[idx].EmptyDueToStatus = false
			continue
		}
		entries = append(entries, CalendarEntry{
			StartTime:       ap.StartTime,
			DurationMinutes: ap.DurationMinutes,
			Occupied:        true,
			Appointment:     &ap,
		})
	}

	// Pass 2: annulled/rescheduled appointments free up unclaimed slots.
	for i := range appts {
		ap := appts[i]
		if ap.StartTime.IsZero() || ap.DurationMinutes < 0 || ap.Status.Active() {
			continue
		}
		if idx := nearestEntry(entries, ap.StartTime, rules.MatchTolerance); idx >= 0 {
			if entries[idx].Appointment != nil {
				continue // an active appointment already owns this time
			}
			entries[idx].Appointment = &ap
			entries[idx].Occupied = false
			entries[idx].EmptyDueToStatus = true
			continue
		}
		entries = append(entries, CalendarEntry{
			StartTime:        ap.StartTime,
			DurationMinutes:  ap.DurationMinutes,
			Occupied:         false,
			EmptyDueToStatus: true,
			Appointment:      &ap,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].StartTime.Before(entries[j].StartTime)
	})

	return entries
}

// matchEntry finds the closest entry within tolerance that does not already
// carry an appointment. Returns -1 when nothing qualifies.
func matchEntry(entries []CalendarEntry, ap Appointment, tolerance time.Duration) int {
	best := -1
	var bestDiff time.Duration
	for i := range entries {
		if entries[i].Appointment != nil {
			continue
		}
		diff := absDuration(entries[i].StartTime.Sub(ap.StartTime))
		if diff > tolerance {
			continue
		}
		if best < 0 || diff < bestDiff {
			best = i
			bestDiff = diff
		}
	}
	return best
}

// nearestEntry finds the closest entry within tolerance regardless of any
// attached appointment.
func nearestEntry(entries []CalendarEntry, start time.Time, tolerance time.Duration) int {
	best := -1
	var bestDiff time.Duration
	for i := range entries {
		diff := absDuration(entries[i].StartTime.Sub(start))
		if diff > tolerance {
			continue
		}
		if best < 0 || diff < bestDiff {
			best = i
			bestDiff = diff
		}
	}
	return best
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
