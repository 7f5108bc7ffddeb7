package schedule

import "time"

// MergeWindows collapses consecutive bookable entries into free windows so a
// user sees one 90-minute gap instead of three 30-minute slots. Occupied
// entries pass through unmerged; bookable entries starting at or after the
// end-of-day hour are dropped entirely (after-hours slots are never offered).
//
// A run never absorbs an entry on a different calendar day, never crosses
// from before lunch to after it, and never extends past the end-of-day hour.
// A gap straddling lunch therefore becomes two offers, not one inflated one.
func MergeWindows(entries []CalendarEntry, rules Rules) []FreeWindow {
	var out []FreeWindow

	i := 0
	for i < len(entries) {
		e := entries[i]

		if !e.Bookable() {
			out = append(out, FreeWindow{
				StartTime:       e.StartTime,
				EndTime:         e.EndTime(),
				DurationMinutes: e.DurationMinutes,
				Occupied:        true,
				Entries:         []CalendarEntry{e},
			})
			i++
			continue
		}

		if e.StartTime.Hour() >= rules.DayEndHour {
			i++
			continue
		}

		w, next := mergeRun(entries, i, rules)
		if w.DurationMinutes > 0 {
			out = append(out, w)
		}
		i = next
	}

	return out
}

// mergeRun builds one free window starting at entries[start] and returns it
// together with the index the outer scan should resume at.
func mergeRun(entries []CalendarEntry, start int, rules Rules) (FreeWindow, int) {
	first := entries[start]
	dayEnd := atHour(first.StartTime, rules.DayEndHour)

	runEntries := []CalendarEntry{first}
	end := capTime(first.EndTime(), dayEnd)

	j := start + 1
	for ; j < len(entries); j++ {
		n := entries[j]

		if !sameDay(first.StartTime, n.StartTime) {
			break
		}
		if !n.Bookable() {
			// The occupied entry's start bounds the window; the outer
			// scan resumes on it so it is still reported.
			end = n.StartTime
			break
		}
		if crossesLunch(first.StartTime, n.StartTime, rules) {
			end = atHour(first.StartTime, rules.LunchStartHour)
			break
		}
		if n.StartTime.Hour() >= rules.DayEndHour {
			end = dayEnd
			break
		}

		runEntries = append(runEntries, n)
		end = capTime(n.EndTime(), dayEnd)
	}

	// Entries absorbed past the computed end (inside the lunch gap) are not
	// part of the offer.
	kept := runEntries[:0]
	for _, e := range runEntries {
		if e.StartTime.Before(end) {
			kept = append(kept, e)
		}
	}

	w := FreeWindow{
		StartTime:       first.StartTime,
		EndTime:         end,
		DurationMinutes: int(end.Sub(first.StartTime) / time.Minute),
		Entries:         kept,
	}
	return w, j
}

// crossesLunch reports whether extending a run that started before lunch up
// to nextStart would jump over the lunch gap.
func crossesLunch(runStart, nextStart time.Time, rules Rules) bool {
	return runStart.Hour() < rules.LunchStartHour && nextStart.Hour() >= rules.LunchEndHour
}

func atHour(day time.Time, hour int) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, hour, 0, 0, 0, day.Location())
}

func capTime(t, max time.Time) time.Time {
	if t.After(max) {
		return max
	}
	return t
}
