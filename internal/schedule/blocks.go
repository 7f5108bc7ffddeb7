package schedule

import "sort"

// BuildBlocks groups a patient's contiguous same-day appointments for the
// queried doctor into conciliated blocks. A patient whose visit consists of
// back-to-back sub-appointments must be relocated as one unit; splitting it
// would leave an orphaned sub-appointment behind.
//
// Appointments with a missing patient id or start time are skipped. Output
// is sorted by start time (then patient id) so identical input always yields
// identical blocks, ids included.
func BuildBlocks(appts []Appointment, doctorCode string, rules Rules) []ConciliatedBlock {
	type groupKey struct {
		patientID string
		day       string
	}

	groups := make(map[groupKey][]Appointment)
	for _, a := range appts {
		if a.DoctorCode != doctorCode {
			continue
		}
		if a.PatientID == "" || a.StartTime.IsZero() {
			continue
		}
		k := groupKey{patientID: a.PatientID, day: a.StartTime.Format("2006-01-02")}
		groups[k] = append(groups[k], a)
	}

	var blocks []ConciliatedBlock
	for _, group := range groups {
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].StartTime.Before(group[j].StartTime)
		})

		current := []Appointment{group[0]}
		runningEnd := group[0].EndTime()

		for _, a := range group[1:] {
			if a.StartTime.Sub(runningEnd) <= rules.ContiguityTolerance {
				current = append(current, a)
				if e := a.EndTime(); e.After(runningEnd) {
					runningEnd = e
				}
				continue
			}
			blocks = append(blocks, closeBlock(current))
			current = []Appointment{a}
			runningEnd = a.EndTime()
		}
		blocks = append(blocks, closeBlock(current))
	}

	sort.SliceStable(blocks, func(i, j int) bool {
		if !blocks[i].StartTime.Equal(blocks[j].StartTime) {
			return blocks[i].StartTime.Before(blocks[j].StartTime)
		}
		return blocks[i].PatientID < blocks[j].PatientID
	})

	return blocks
}

func closeBlock(appts []Appointment) ConciliatedBlock {
	first := appts[0]
	last := appts[len(appts)-1]

	total := 0
	for _, a := range appts {
		total += a.DurationMinutes
	}

	return ConciliatedBlock{
		ID:                   BlockID(first.PatientID, first.StartTime),
		PatientID:            first.PatientID,
		PatientName:          first.PatientName,
		StartTime:            first.StartTime,
		EndTime:              last.EndTime(),
		TotalDurationMinutes: total,
		Appointments:         appts,
	}
}
