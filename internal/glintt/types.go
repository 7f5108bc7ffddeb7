package glintt

import (
	"strings"
	"time"

	"github.com/AlvaroVCastro/appointmentsv1-sub000/internal/schedule"
)

// Wire shapes for the Glintt HMS APIs. Field names follow the clinic
// system's JSON, not ours.

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

type searchSlotsRequest struct {
	LoadAppointments            bool             `json:"LoadAppointments"`
	FullSearch                  bool             `json:"FullSearch"`
	NumberOfRegisters           int              `json:"NumberOfRegisters"`
	Patient                     *wirePatientRef  `json:"Patient,omitempty"`
	Period                      []string         `json:"Period"`
	DaysOfWeek                  []string         `json:"DaysOfWeek"`
	ExternalMedicalActSlotsList []slotSearchSpec `json:"ExternalMedicalActSlotsList"`
}

type slotSearchSpec struct {
	StartDate           string `json:"StartDate"`
	EndDate             string `json:"EndDate"`
	MedicalActCode      string `json:"MedicalActCode"`
	ServiceCode         string `json:"ServiceCode"`
	RescheduleFlag      bool   `json:"RescheduleFlag"`
	HumanResourceCode   string `json:"HumanResourceCode"`
	FinancialEntityCode string `json:"FinancialEntityCode,omitempty"`
	Origin              string `json:"Origin"`
}

type wirePatientRef struct {
	PatientType string `json:"PatientType"`
	PatientID   string `json:"PatientID"`
}

type searchSlotsResponse struct {
	ExternalSearchSlot []wireSlot        `json:"ExternalSearchSlot"`
	ErrorDetails       *wireErrorDetails `json:"ErrorDetails"`
}

type wireErrorDetails struct {
	Error       bool   `json:"Error"`
	Description string `json:"Description"`
}

type wireSlot struct {
	SlotDateTime      string      `json:"SlotDateTime"`
	Duration          int         `json:"Duration"`
	HumanResourceCode string      `json:"HumanResourceCode"`
	BookingID         string      `json:"BookingID"`
	Occupation        bool        `json:"Occupation"`
	OccupationReason  *wireReason `json:"OccupationReason"`
}

type wireReason struct {
	Code        string `json:"Code"`
	Description string `json:"Description"`
}

type wireAppointment struct {
	ID              string `json:"id"`
	AppointmentHour string `json:"appointmentHour"`
	Duration        int    `json:"duration"`
	ServiceCode     string `json:"serviceCode"`
	MedicalActCode  string `json:"medicalActCode"`
	Status          string `json:"status"`
	DoctorCode      string `json:"doctorCode"`

	PatientIdentifier struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"patientIdentifier"`

	ParentVisit struct {
		ID string `json:"id"`
	} `json:"parentVisit"`
}

type wirePatient struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Contacts struct {
		PhoneNumber1 string `json:"phoneNumber1"`
		PhoneNumber2 string `json:"phoneNumber2"`
		Email        string `json:"email"`
	} `json:"contacts"`
}

type scheduleAppointmentRequest struct {
	ServiceCode       string              `json:"ServiceCode"`
	MedicalActCode    string              `json:"MedicalActCode"`
	HumanResourceCode string              `json:"HumanResourceCode"`
	ScheduleDate      string              `json:"ScheduleDate"`
	Duration          int                 `json:"Duration"`
	Origin            string              `json:"Origin"`
	Patient           wirePatientRef      `json:"Patient"`
	RescheduleFlag    bool                `json:"RescheduleFlag"`
	Episode           wireEpisodeRef      `json:"Episode"`
	FinancialEntity   wireFinancialEntity `json:"FinancialEntity"`
}

type wireEpisodeRef struct {
	EpisodeType string `json:"EpisodeType"`
	EpisodeID   string `json:"EpisodeID"`
}

type wireFinancialEntity struct {
	EntityCode string `json:"EntityCode"`
	EntityCard string `json:"EntityCard"`
	Exemption  string `json:"Exemption"`
}

type scheduleAppointmentResponse struct {
	AppointmentID string `json:"appointmentID"`
	ErrorDetails  string `json:"errorDetails"`
}

// clinic timestamps arrive with or without a zone designator
var clinicTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func parseClinicTime(raw string, loc *time.Location) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range clinicTimeLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func mapStatus(raw string) schedule.AppointmentStatus {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "SCHEDULED", "CONFIRMED":
		return schedule.StatusScheduled
	case "ANNULLED", "CANCELLED", "ANULADA":
		return schedule.StatusAnnulled
	case "RESCHEDULED", "REAGENDADA":
		return schedule.StatusRescheduled
	default:
		return schedule.StatusOther
	}
}

func (s wireSlot) toAvailability(doctorCode string, loc *time.Location) (schedule.Availability, bool) {
	start, ok := parseClinicTime(s.SlotDateTime, loc)
	if !ok || s.Duration < 0 {
		return schedule.Availability{}, false
	}
	reason := ""
	if s.OccupationReason != nil {
		reason = s.OccupationReason.Code
	}
	code := s.HumanResourceCode
	if code == "" {
		code = doctorCode
	}
	return schedule.Availability{
		StartTime:       start,
		DurationMinutes: s.Duration,
		Occupied:        s.Occupation,
		ReasonCode:      reason,
		BookingID:       s.BookingID,
		DoctorCode:      code,
	}, true
}

func (a wireAppointment) toAppointment(loc *time.Location) (schedule.Appointment, bool) {
	start, ok := parseClinicTime(a.AppointmentHour, loc)
	if !ok || a.PatientIdentifier.ID == "" {
		return schedule.Appointment{}, false
	}
	return schedule.Appointment{
		ID:              a.ID,
		PatientID:       a.PatientIdentifier.ID,
		PatientName:     a.PatientIdentifier.Name,
		StartTime:       start,
		DurationMinutes: a.Duration,
		ServiceCode:     a.ServiceCode,
		MedicalActCode:  a.MedicalActCode,
		Status:          mapStatus(a.Status),
		DoctorCode:      a.DoctorCode,
		EpisodeID:       a.ParentVisit.ID,
	}, true
}
