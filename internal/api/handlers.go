package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/AlvaroVCastro/appointmentsv1-sub000/internal/glintt"
	"github.com/AlvaroVCastro/appointmentsv1-sub000/internal/recommend"
	"github.com/AlvaroVCastro/appointmentsv1-sub000/internal/schedule"
	"github.com/AlvaroVCastro/appointmentsv1-sub000/internal/suggestion"
)

// RecommendationService is what the handlers need from the recommendation
// layer; *recommend.Service satisfies it.
type RecommendationService interface {
	Timeline(ctx context.Context, doctorCode string, from, to time.Time) ([]schedule.FreeWindow, error)
	Recommend(ctx context.Context, sessionID, doctorCode string, window schedule.FreeWindow, strategy string) (*recommend.Recommendation, error)
	Propose(ctx context.Context, doctorCode string, window schedule.FreeWindow, cand schedule.ReplacementCandidate, strategy string) (uuid.UUID, error)
	Apply(ctx context.Context, doctorCode string, window schedule.FreeWindow, cand schedule.ReplacementCandidate) (*recommend.ApplyResult, error)
	History(ctx context.Context, doctorCode string, limit, offset int) ([]suggestion.Suggestion, error)
}

func timelineHandler(svc RecommendationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorCode := chi.URLParam(r, "doctorCode")

		from, err := time.ParseInLocation("2006-01-02", r.URL.Query().Get("start"), time.Local)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_start", "start must be YYYY-MM-DD")
			return
		}
		to, err := time.ParseInLocation("2006-01-02", r.URL.Query().Get("end"), time.Local)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_end", "end must be YYYY-MM-DD")
			return
		}
		to = to.Add(24*time.Hour - time.Second)

		windows, err := svc.Timeline(r.Context(), doctorCode, from, to)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toTimelineResponse(windows))
	}
}

func recommendHandler(svc RecommendationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorCode := chi.URLParam(r, "doctorCode")

		var req RecommendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if req.SessionID == "" {
			writeError(w, http.StatusBadRequest, "missing_session_id", "session_id is required")
			return
		}
		window := req.Window.toDomain()
		if window.StartTime.IsZero() || window.DurationMinutes <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_window", "window needs a start time and a positive duration")
			return
		}

		rec, err := svc.Recommend(r.Context(), req.SessionID, doctorCode, window, req.Strategy)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toRecommendResponse(rec))
	}
}

func proposeHandler(svc RecommendationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorCode := chi.URLParam(r, "doctorCode")

		var req ProposeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if req.Candidate.PatientID == "" {
			writeError(w, http.StatusBadRequest, "invalid_candidate", "candidate needs a patient_id")
			return
		}

		id, err := svc.Propose(r.Context(), doctorCode, req.Window.toDomain(), req.Candidate.toDomain(doctorCode), req.Strategy)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, ProposeResponse{SuggestionID: id})
	}
}

func applyHandler(svc RecommendationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorCode := chi.URLParam(r, "doctorCode")

		var req ApplyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if len(req.Candidate.Appointments) == 0 {
			writeError(w, http.StatusBadRequest, "invalid_candidate", "candidate needs at least one appointment")
			return
		}

		res, err := svc.Apply(r.Context(), doctorCode, req.Window.toDomain(), req.Candidate.toDomain(doctorCode))
		if err != nil {
			handleServiceError(w, err)
			return
		}

		status := http.StatusOK
		if res.Outcome != suggestion.OutcomeApplied {
			// Partial and failed applies carry diagnostics, not an error body.
			status = http.StatusConflict
		}
		writeJSON(w, status, toApplyResponse(res))
	}
}

func historyHandler(svc RecommendationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorCode := chi.URLParam(r, "doctorCode")
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

		list, err := svc.History(r.Context(), doctorCode, limit, offset)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toSuggestionResponses(list))
	}
}

func handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, recommend.ErrSelectionSuperseded):
		writeError(w, http.StatusConflict, "selection_superseded", "a newer selection replaced this one")
	case errors.Is(err, glintt.ErrClinicUnavailable):
		writeError(w, http.StatusBadGateway, "clinic_unavailable", err.Error())
	case errors.Is(err, glintt.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, schedule.ErrUnknownStrategy):
		writeError(w, http.StatusBadRequest, "unknown_strategy", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
