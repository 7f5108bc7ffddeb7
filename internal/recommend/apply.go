package recommend

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/AlvaroVCastro/appointmentsv1-sub000/internal/schedule"
	"github.com/AlvaroVCastro/appointmentsv1-sub000/internal/suggestion"
)

// AppliedAppointment records one successfully moved appointment and where it
// landed.
type AppliedAppointment struct {
	AppointmentID string
	NewStart      time.Time
}

// ApplyResult reports a sequential apply run. On partial failure the applied
// prefix is kept so the operator can manually reconcile; nothing is rolled
// back automatically.
type ApplyResult struct {
	SuggestionID        uuid.UUID
	Outcome             suggestion.Outcome
	Applied             []AppliedAppointment
	FailedAppointmentID string
	FailureReason       string
}

// Propose durably records a suggested move without touching the clinic
// system, for audit and history.
func (s *Service) Propose(ctx context.Context, doctorCode string, window schedule.FreeWindow, cand schedule.ReplacementCandidate, strategy string) (uuid.UUID, error) {
	id := uuid.New()
	rec := suggestionRecord(id, doctorCode, window, cand, strategy, suggestion.OutcomeProposed, 0)
	if err := s.deps.Store.Insert(ctx, rec); err != nil {
		return uuid.Nil, fmt.Errorf("record proposal: %w", err)
	}
	return id, nil
}

// Apply moves a conciliated block into the selected free window: each
// appointment is rescheduled in order, every subsequent one offset by the
// previous one's duration. The run stops on the first failure and the
// partial result is returned for diagnostics.
func (s *Service) Apply(ctx context.Context, doctorCode string, window schedule.FreeWindow, cand schedule.ReplacementCandidate) (*ApplyResult, error) {
	id := uuid.New()
	rec := suggestionRecord(id, doctorCode, window, cand, "", suggestion.OutcomeProposed, 0)
	if err := s.deps.Store.Insert(ctx, rec); err != nil {
		return nil, fmt.Errorf("record apply attempt: %w", err)
	}

	result := &ApplyResult{SuggestionID: id}
	target := window.StartTime

	for _, appt := range cand.Appointments {
		if err := s.deps.Applier.RescheduleAppointment(ctx, appt, target); err != nil {
			result.FailedAppointmentID = appt.ID
			result.FailureReason = err.Error()
			if len(result.Applied) == 0 {
				result.Outcome = suggestion.OutcomeFailed
			} else {
				result.Outcome = suggestion.OutcomePartial
			}
			s.deps.Logger.Error().Err(err).
				Str("suggestion_id", id.String()).
				Str("appointment_id", appt.ID).
				Int("applied", len(result.Applied)).
				Msg("reschedule apply stopped")
			s.markOutcome(ctx, id, result.Outcome, len(result.Applied))
			return result, nil
		}
		result.Applied = append(result.Applied, AppliedAppointment{
			AppointmentID: appt.ID,
			NewStart:      target,
		})
		target = target.Add(time.Duration(appt.DurationMinutes) * time.Minute)
	}

	result.Outcome = suggestion.OutcomeApplied
	s.markOutcome(ctx, id, suggestion.OutcomeApplied, len(result.Applied))
	return result, nil
}

func (s *Service) markOutcome(ctx context.Context, id uuid.UUID, outcome suggestion.Outcome, applied int) {
	if err := s.deps.Store.MarkOutcome(ctx, id, outcome, applied); err != nil {
		s.deps.Logger.Error().Err(err).Str("suggestion_id", id.String()).
			Msg("failed to record apply outcome")
	}
}

// History lists past suggestions for one doctor, newest first.
func (s *Service) History(ctx context.Context, doctorCode string, limit, offset int) ([]suggestion.Suggestion, error) {
	out, err := s.deps.Store.ListByDoctor(ctx, doctorCode, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list suggestion history: %w", err)
	}
	return out, nil
}

func suggestionRecord(id uuid.UUID, doctorCode string, window schedule.FreeWindow, cand schedule.ReplacementCandidate, strategy string, outcome suggestion.Outcome, applied int) suggestion.Suggestion {
	return suggestion.Suggestion{
		ID:                   id,
		DoctorCode:           doctorCode,
		PatientID:            cand.PatientID,
		PatientName:          cand.PatientName,
		BlockID:              cand.ID,
		BlockStart:           cand.StartTime,
		BlockEnd:             cand.EndTime,
		TotalDurationMinutes: cand.TotalDurationMinutes,
		WindowStart:          window.StartTime,
		WindowEnd:            window.EndTime,
		AnticipationDays:     cand.AnticipationDays,
		Strategy:             strategy,
		Outcome:              outcome,
		AppliedCount:         applied,
	}
}
