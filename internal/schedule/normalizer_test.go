package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(day int, hour, min int) time.Time {
	return time.Date(2026, 9, day, hour, min, 0, 0, time.UTC)
}

func slot(start time.Time, minutes int, occupied bool) Availability {
	return Availability{StartTime: start, DurationMinutes: minutes, Occupied: occupied}
}

func appt(id, patient string, start time.Time, minutes int, status AppointmentStatus) Appointment {
	return Appointment{
		ID:              id,
		PatientID:       patient,
		StartTime:       start,
		DurationMinutes: minutes,
		MedicalActCode:  "1",
		Status:          status,
		DoctorCode:      "1242",
	}
}

func TestNormalizeTimeline_SeedsFromAvailability(t *testing.T) {
	avail := []Availability{
		slot(at(7, 9, 0), 30, false),
		slot(at(7, 9, 30), 30, true),
	}

	entries := NormalizeTimeline(avail, nil, DefaultRules())
	require.Len(t, entries, 2)

	assert.False(t, entries[0].Occupied)
	assert.True(t, entries[1].Occupied)
	for _, e := range entries {
		assert.NotNil(t, e.Availability, "every entry must trace back to a raw record")
	}
}

func TestNormalizeTimeline_ReasonCodesOverrideFlag(t *testing.T) {
	avail := []Availability{
		{StartTime: at(7, 9, 0), DurationMinutes: 30, Occupied: true, ReasonCode: "LIVRE"},
		{StartTime: at(7, 9, 30), DurationMinutes: 30, Occupied: false, ReasonCode: "OCUP"},
	}

	entries := NormalizeTimeline(avail, nil, DefaultRules())
	require.Len(t, entries, 2)
	assert.False(t, entries[0].Occupied, "free reason code marks the slot bookable")
	assert.True(t, entries[1].Occupied, "fully-booked reason code marks the slot occupied")
}

func TestNormalizeTimeline_ActiveAppointmentClaimsNearbySlot(t *testing.T) {
	avail := []Availability{slot(at(7, 9, 0), 30, false)}
	// Start differs by 15 minutes, within the 30-minute feed skew tolerance.
	appts := []Appointment{appt("a1", "p1", at(7, 9, 15), 30, StatusScheduled)}

	entries := NormalizeTimeline(avail, appts, DefaultRules())
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Occupied)
	require.NotNil(t, entries[0].Appointment)
	assert.Equal(t, "a1", entries[0].Appointment.ID)
	assert.NotNil(t, entries[0].Availability)
}

func TestNormalizeTimeline_UnmatchedAppointmentCreatesEntry(t *testing.T) {
	appts := []Appointment{appt("a1", "p1", at(7, 11, 0), 30, StatusScheduled)}

	entries := NormalizeTimeline(nil, appts, DefaultRules())
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Occupied)
	assert.Equal(t, at(7, 11, 0), entries[0].StartTime)
}

func TestNormalizeTimeline_ActiveWinsOverAnnulled(t *testing.T) {
	avail := []Availability{slot(at(7, 9, 0), 30, false)}
	appts := []Appointment{
		appt("cancelled", "p1", at(7, 9, 0), 30, StatusAnnulled),
		appt("live", "p2", at(7, 9, 10), 30, StatusScheduled),
	}

	entries := NormalizeTimeline(avail, appts, DefaultRules())
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Occupied)
	require.NotNil(t, entries[0].Appointment)
	assert.Equal(t, "live", entries[0].Appointment.ID,
		"a live appointment always wins over a cancelled one at the same time")
	assert.False(t, entries[0].EmptyDueToStatus)
}

func TestNormalizeTimeline_AnnulledFreesUnclaimedSlot(t *testing.T) {
	avail := []Availability{slot(at(7, 9, 0), 30, true)}
	appts := []Appointment{appt("cancelled", "p1", at(7, 9, 0), 30, StatusRescheduled)}

	entries := NormalizeTimeline(avail, appts, DefaultRules())
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Occupied)
	assert.True(t, entries[0].EmptyDueToStatus)
	assert.True(t, entries[0].Bookable())
}

func TestNormalizeTimeline_AnnulledWithoutMatchCreatesEmptyEntry(t *testing.T) {
	appts := []Appointment{appt("cancelled", "p1", at(7, 16, 0), 30, StatusAnnulled)}

	entries := NormalizeTimeline(nil, appts, DefaultRules())
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Occupied)
	assert.True(t, entries[0].EmptyDueToStatus)
}

func TestNormalizeTimeline_SkipsMalformedRecords(t *testing.T) {
	avail := []Availability{
		{DurationMinutes: 30}, // no start time
		slot(at(7, 9, 0), 30, false),
	}
	appts := []Appointment{
		{ID: "bad", PatientID: "p1", Status: StatusScheduled}, // no start time
	}

	entries := NormalizeTimeline(avail, appts, DefaultRules())
	require.Len(t, entries, 1)
	assert.Equal(t, at(7, 9, 0), entries[0].StartTime)
}

func TestNormalizeTimeline_SortedByStartTime(t *testing.T) {
	avail := []Availability{
		slot(at(7, 15, 0), 30, false),
		slot(at(7, 9, 0), 30, false),
	}
	appts := []Appointment{appt("a1", "p1", at(7, 11, 0), 30, StatusScheduled)}

	entries := NormalizeTimeline(avail, appts, DefaultRules())
	require.Len(t, entries, 3)
	for i := 1; i < len(entries); i++ {
		assert.False(t, entries[i].StartTime.Before(entries[i-1].StartTime))
	}
}

func TestNormalizeTimeline_OneEntryPerAppointment(t *testing.T) {
	avail := []Availability{
		slot(at(7, 9, 0), 30, false),
		slot(at(7, 9, 30), 30, false),
	}
	appts := []Appointment{appt("a1", "p1", at(7, 9, 15), 30, StatusScheduled)}

	entries := NormalizeTimeline(avail, appts, DefaultRules())
	carriers := 0
	for _, e := range entries {
		if e.Appointment != nil && e.Appointment.ID == "a1" {
			carriers++
		}
	}
	assert.Equal(t, 1, carriers, "an appointment attaches to exactly one entry")
}
