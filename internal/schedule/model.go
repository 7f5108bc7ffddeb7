package schedule

import (
	"fmt"
	"time"
)

type AppointmentStatus string

const (
	StatusScheduled   AppointmentStatus = "scheduled"
	StatusAnnulled    AppointmentStatus = "annulled"
	StatusRescheduled AppointmentStatus = "rescheduled"
	StatusOther       AppointmentStatus = "other"
)

// Active reports whether the appointment still holds its time. Annulled and
// rescheduled appointments no longer do, even when the slot feed disagrees.
func (s AppointmentStatus) Active() bool {
	return s != StatusAnnulled && s != StatusRescheduled
}

// Availability is one raw slot record from the clinic's availability feed.
type Availability struct {
	StartTime       time.Time
	DurationMinutes int
	Occupied        bool
	ReasonCode      string
	BookingID       string
	DoctorCode      string
}

func (a Availability) EndTime() time.Time {
	return a.StartTime.Add(time.Duration(a.DurationMinutes) * time.Minute)
}

// Appointment is a single scheduled visit-unit for one patient with one
// doctor, an immutable snapshot from the appointment feed.
type Appointment struct {
	ID              string
	PatientID       string
	PatientName     string
	StartTime       time.Time
	DurationMinutes int
	ServiceCode     string
	MedicalActCode  string
	Status          AppointmentStatus
	DoctorCode      string
	EpisodeID       string
}

func (a Appointment) EndTime() time.Time {
	return a.StartTime.Add(time.Duration(a.DurationMinutes) * time.Minute)
}

// CalendarEntry is one point in the doctor's day, fused from the availability
// and appointment feeds. Every entry originates from at least one raw record.
type CalendarEntry struct {
	StartTime       time.Time
	DurationMinutes int
	Occupied        bool

	// EmptyDueToStatus marks an entry whose appointment was annulled or
	// rescheduled away, making the time effectively free again.
	EmptyDueToStatus bool

	Appointment  *Appointment
	Availability *Availability
}

func (e CalendarEntry) EndTime() time.Time {
	return e.StartTime.Add(time.Duration(e.DurationMinutes) * time.Minute)
}

// Bookable reports whether this time could take a new appointment.
func (e CalendarEntry) Bookable() bool {
	return !e.Occupied || e.EmptyDueToStatus
}

// FreeWindow is a maximal contiguous run of bookable entries within one
// calendar day, never crossing the lunch or end-of-day boundary. Occupied
// entries pass through the merger as single-entry windows with Occupied set,
// so a full day's timeline can be rendered from one list.
type FreeWindow struct {
	StartTime       time.Time
	EndTime         time.Time
	DurationMinutes int
	Occupied        bool
	Entries         []CalendarEntry
}

func (w FreeWindow) IsMerged() bool {
	return len(w.Entries) > 1
}

// ConciliatedBlock is one or more time-contiguous same-day appointments for
// the same patient, moved as a single unit.
type ConciliatedBlock struct {
	ID                   string
	PatientID            string
	PatientName          string
	StartTime            time.Time
	EndTime              time.Time
	TotalDurationMinutes int
	Appointments         []Appointment
}

// ReplacementCandidate is a block offered as a replacement for a free window,
// enriched with contact details looked up after ranking.
type ReplacementCandidate struct {
	ConciliatedBlock

	Phone1 string
	Phone2 string
	Email  string

	// AnticipationDays is how many whole days earlier the patient would be
	// seen, counted from now to the block's start and rounded up.
	AnticipationDays int
}

// PatientContact is the contact record the patient lookup returns.
type PatientContact struct {
	Name   string
	Phone1 string
	Phone2 string
	Email  string
}

// Rules holds the business constants the engine runs under. Defaults match
// the clinic's policy; tests pin them explicitly.
type Rules struct {
	// MatchTolerance pairs an appointment with an availability slot when
	// their start times differ by at most this much. Absorbs clock skew
	// between the two feeds.
	MatchTolerance time.Duration

	// ContiguityTolerance is the maximum gap between two appointments that
	// still counts as one conciliated block.
	ContiguityTolerance time.Duration

	LunchStartHour int // free windows never extend into this hour
	LunchEndHour   int // first bookable hour after lunch
	DayEndHour     int // slots at or after this hour are never offered

	HorizonDays        int // how far forward the ranker looks
	NoticeBusinessDays int // minimum notice before a patient can be moved
	IdealCount         int // size of the preferred candidate subset
	MaxHourTolerance   int // widest hour-of-day mismatch the ideal search accepts
	SoonestLimit       int // cap for the plain soonest-first strategy

	// MovableActCode restricts ranking to one medical act type. Empty means
	// no restriction.
	MovableActCode string
}

func DefaultRules() Rules {
	return Rules{
		MatchTolerance:      30 * time.Minute,
		ContiguityTolerance: time.Minute,
		LunchStartHour:      13,
		LunchEndHour:        14,
		DayEndHour:          18,
		HorizonDays:         30,
		NoticeBusinessDays:  2,
		IdealCount:          3,
		MaxHourTolerance:    8,
		SoonestLimit:        20,
		MovableActCode:      "1",
	}
}

// BlockID derives the deterministic identifier for a block starting at the
// given time: same patient, day and start always yield the same id.
func BlockID(patientID string, start time.Time) string {
	return fmt.Sprintf("%s-%s", patientID, start.Format("20060102T1504"))
}

func sameDay(a, b time.Time) bool {
	y1, m1, d1 := a.Date()
	y2, m2, d2 := b.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}
