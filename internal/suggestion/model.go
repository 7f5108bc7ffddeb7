package suggestion

import (
	"time"

	"github.com/google/uuid"
)

type Outcome string

const (
	OutcomeProposed Outcome = "proposed"
	OutcomeApplied  Outcome = "applied"
	OutcomePartial  Outcome = "partial"
	OutcomeFailed   Outcome = "failed"
)

// Suggestion is the durable audit record of a proposed or executed move of a
// conciliated block into a free window. It is written whether or not the
// reschedule against the clinic system is actually invoked.
type Suggestion struct {
	ID                   uuid.UUID
	DoctorCode           string
	PatientID            string
	PatientName          string
	BlockID              string
	BlockStart           time.Time
	BlockEnd             time.Time
	TotalDurationMinutes int
	WindowStart          time.Time
	WindowEnd            time.Time
	AnticipationDays     int
	Strategy             string
	Outcome              Outcome
	AppliedCount         int
	CreatedAt            time.Time
}
