package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/AlvaroVCastro/appointmentsv1-sub000/internal/recommend"
	"github.com/AlvaroVCastro/appointmentsv1-sub000/internal/schedule"
	"github.com/AlvaroVCastro/appointmentsv1-sub000/internal/suggestion"
)

type WindowPayload struct {
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	DurationMinutes int       `json:"duration_minutes"`
}

func (w WindowPayload) toDomain() schedule.FreeWindow {
	duration := w.DurationMinutes
	if duration == 0 && w.EndTime.After(w.StartTime) {
		duration = int(w.EndTime.Sub(w.StartTime) / time.Minute)
	}
	return schedule.FreeWindow{
		StartTime:       w.StartTime,
		EndTime:         w.EndTime,
		DurationMinutes: duration,
	}
}

type TimelineEntryResponse struct {
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	DurationMinutes int       `json:"duration_minutes"`
	Occupied        bool      `json:"occupied"`
	Merged          bool      `json:"merged"`
	SlotCount       int       `json:"slot_count"`
}

func toTimelineResponse(ws []schedule.FreeWindow) []TimelineEntryResponse {
	out := make([]TimelineEntryResponse, 0, len(ws))
	for _, w := range ws {
		out = append(out, TimelineEntryResponse{
			StartTime:       w.StartTime,
			EndTime:         w.EndTime,
			DurationMinutes: w.DurationMinutes,
			Occupied:        w.Occupied,
			Merged:          w.IsMerged(),
			SlotCount:       len(w.Entries),
		})
	}
	return out
}

type AppointmentPayload struct {
	ID              string    `json:"id"`
	StartTime       time.Time `json:"start_time"`
	DurationMinutes int       `json:"duration_minutes"`
	ServiceCode     string    `json:"service_code"`
	MedicalActCode  string    `json:"medical_act_code"`
	EpisodeID       string    `json:"episode_id,omitempty"`
}

type CandidatePayload struct {
	BlockID          string               `json:"block_id"`
	PatientID        string               `json:"patient_id"`
	PatientName      string               `json:"patient_name,omitempty"`
	StartTime        time.Time            `json:"start_time"`
	EndTime          time.Time            `json:"end_time"`
	TotalDuration    int                  `json:"total_duration_minutes"`
	AnticipationDays int                  `json:"anticipation_days"`
	Appointments     []AppointmentPayload `json:"appointments"`
}

func (c CandidatePayload) toDomain(doctorCode string) schedule.ReplacementCandidate {
	appts := make([]schedule.Appointment, 0, len(c.Appointments))
	for _, a := range c.Appointments {
		appts = append(appts, schedule.Appointment{
			ID:              a.ID,
			PatientID:       c.PatientID,
			PatientName:     c.PatientName,
			StartTime:       a.StartTime,
			DurationMinutes: a.DurationMinutes,
			ServiceCode:     a.ServiceCode,
			MedicalActCode:  a.MedicalActCode,
			Status:          schedule.StatusScheduled,
			DoctorCode:      doctorCode,
			EpisodeID:       a.EpisodeID,
		})
	}
	return schedule.ReplacementCandidate{
		ConciliatedBlock: schedule.ConciliatedBlock{
			ID:                   c.BlockID,
			PatientID:            c.PatientID,
			PatientName:          c.PatientName,
			StartTime:            c.StartTime,
			EndTime:              c.EndTime,
			TotalDurationMinutes: c.TotalDuration,
			Appointments:         appts,
		},
		AnticipationDays: c.AnticipationDays,
	}
}

type CandidateResponse struct {
	BlockID          string               `json:"block_id"`
	PatientID        string               `json:"patient_id"`
	PatientName      string               `json:"patient_name,omitempty"`
	StartTime        time.Time            `json:"start_time"`
	EndTime          time.Time            `json:"end_time"`
	TotalDuration    int                  `json:"total_duration_minutes"`
	AnticipationDays int                  `json:"anticipation_days"`
	Phone1           string               `json:"phone1,omitempty"`
	Phone2           string               `json:"phone2,omitempty"`
	Email            string               `json:"email,omitempty"`
	Appointments     []AppointmentPayload `json:"appointments"`
}

func toCandidateResponse(c schedule.ReplacementCandidate) CandidateResponse {
	appts := make([]AppointmentPayload, 0, len(c.Appointments))
	for _, a := range c.Appointments {
		appts = append(appts, AppointmentPayload{
			ID:              a.ID,
			StartTime:       a.StartTime,
			DurationMinutes: a.DurationMinutes,
			ServiceCode:     a.ServiceCode,
			MedicalActCode:  a.MedicalActCode,
			EpisodeID:       a.EpisodeID,
		})
	}
	return CandidateResponse{
		BlockID:          c.ID,
		PatientID:        c.PatientID,
		PatientName:      c.PatientName,
		StartTime:        c.StartTime,
		EndTime:          c.EndTime,
		TotalDuration:    c.TotalDurationMinutes,
		AnticipationDays: c.AnticipationDays,
		Phone1:           c.Phone1,
		Phone2:           c.Phone2,
		Email:            c.Email,
		Appointments:     appts,
	}
}

func toCandidateResponses(cs []schedule.ReplacementCandidate) []CandidateResponse {
	out := make([]CandidateResponse, 0, len(cs))
	for _, c := range cs {
		out = append(out, toCandidateResponse(c))
	}
	return out
}

type RecommendRequest struct {
	SessionID string        `json:"session_id"`
	Window    WindowPayload `json:"window"`
	Strategy  string        `json:"strategy,omitempty"`
}

type RecommendResponse struct {
	Window     WindowPayload       `json:"window"`
	Strategy   string              `json:"strategy"`
	Ideal      []CandidateResponse `json:"ideal"`
	Eligible   []CandidateResponse `json:"eligible"`
	HasMore    bool                `json:"has_more"`
	ComputedAt time.Time           `json:"computed_at"`
}

func toRecommendResponse(rec *recommend.Recommendation) RecommendResponse {
	return RecommendResponse{
		Window: WindowPayload{
			StartTime:       rec.Window.StartTime,
			EndTime:         rec.Window.EndTime,
			DurationMinutes: rec.Window.DurationMinutes,
		},
		Strategy:   rec.Strategy,
		Ideal:      toCandidateResponses(rec.Ideal),
		Eligible:   toCandidateResponses(rec.Eligible),
		HasMore:    rec.HasMore,
		ComputedAt: rec.ComputedAt,
	}
}

type ApplyRequest struct {
	Window    WindowPayload    `json:"window"`
	Candidate CandidatePayload `json:"candidate"`
}

type AppliedAppointmentResponse struct {
	AppointmentID string    `json:"appointment_id"`
	NewStart      time.Time `json:"new_start"`
}

type ApplyResponse struct {
	SuggestionID        uuid.UUID                    `json:"suggestion_id"`
	Outcome             string                       `json:"outcome"`
	Applied             []AppliedAppointmentResponse `json:"applied"`
	FailedAppointmentID string                       `json:"failed_appointment_id,omitempty"`
	FailureReason       string                       `json:"failure_reason,omitempty"`
}

func toApplyResponse(res *recommend.ApplyResult) ApplyResponse {
	applied := make([]AppliedAppointmentResponse, 0, len(res.Applied))
	for _, a := range res.Applied {
		applied = append(applied, AppliedAppointmentResponse{
			AppointmentID: a.AppointmentID,
			NewStart:      a.NewStart,
		})
	}
	return ApplyResponse{
		SuggestionID:        res.SuggestionID,
		Outcome:             string(res.Outcome),
		Applied:             applied,
		FailedAppointmentID: res.FailedAppointmentID,
		FailureReason:       res.FailureReason,
	}
}

type ProposeRequest struct {
	Window    WindowPayload    `json:"window"`
	Candidate CandidatePayload `json:"candidate"`
	Strategy  string           `json:"strategy,omitempty"`
}

type ProposeResponse struct {
	SuggestionID uuid.UUID `json:"suggestion_id"`
}

type SuggestionResponse struct {
	ID               uuid.UUID `json:"id"`
	DoctorCode       string    `json:"doctor_code"`
	PatientID        string    `json:"patient_id"`
	PatientName      string    `json:"patient_name,omitempty"`
	BlockID          string    `json:"block_id"`
	BlockStart       time.Time `json:"block_start"`
	BlockEnd         time.Time `json:"block_end"`
	TotalDuration    int       `json:"total_duration_minutes"`
	WindowStart      time.Time `json:"window_start"`
	WindowEnd        time.Time `json:"window_end"`
	AnticipationDays int       `json:"anticipation_days"`
	Strategy         string    `json:"strategy,omitempty"`
	Outcome          string    `json:"outcome"`
	AppliedCount     int       `json:"applied_count"`
	CreatedAt        time.Time `json:"created_at"`
}

func toSuggestionResponses(ss []suggestion.Suggestion) []SuggestionResponse {
	out := make([]SuggestionResponse, 0, len(ss))
	for _, s := range ss {
		out = append(out, SuggestionResponse{
			ID:               s.ID,
			DoctorCode:       s.DoctorCode,
			PatientID:        s.PatientID,
			PatientName:      s.PatientName,
			BlockID:          s.BlockID,
			BlockStart:       s.BlockStart,
			BlockEnd:         s.BlockEnd,
			TotalDuration:    s.TotalDurationMinutes,
			WindowStart:      s.WindowStart,
			WindowEnd:        s.WindowEnd,
			AnticipationDays: s.AnticipationDays,
			Strategy:         s.Strategy,
			Outcome:          string(s.Outcome),
			AppliedCount:     s.AppliedCount,
			CreatedAt:        s.CreatedAt,
		})
	}
	return out
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
