// clinic-sim is a stand-in for the Glintt back office: it serves the token,
// slot-search, appointment, patient-search and schedule endpoints against a
// fake clinic seeded at startup, so the api-server can run end to end with no
// real HMS behind it.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	slotMinutes  = 30
	dayStartHour = 9
	dayEndHour   = 18
	lunchStart   = 13
	lunchEnd     = 14
	horizonDays  = 35
)

type simSlot struct {
	SlotDateTime      string     `json:"SlotDateTime"`
	Duration          int        `json:"Duration"`
	HumanResourceCode string     `json:"HumanResourceCode"`
	BookingID         string     `json:"BookingID"`
	Occupation        bool       `json:"Occupation"`
	OccupationReason  *simReason `json:"OccupationReason"`
}

type simReason struct {
	Code        string `json:"Code"`
	Description string `json:"Description"`
}

type simAppointment struct {
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

type simPatient struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Contacts struct {
		PhoneNumber1 string `json:"phoneNumber1"`
		PhoneNumber2 string `json:"phoneNumber2"`
		Email        string `json:"email"`
	} `json:"contacts"`
}

// world holds the fake clinic. Reschedules mutate it, so everything sits
// behind one mutex; this is a dev tool, not a throughput benchmark.
type world struct {
	mu           sync.Mutex
	slots        map[string][]simSlot // doctorCode -> slot grid
	appointments []simAppointment
	patients     map[string]simPatient
	tokens       map[string]time.Time
	logger       zerolog.Logger
}

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Str("service", "clinic-sim").Logger()

	port := os.Getenv("SIM_PORT")
	if port == "" {
		port = "9090"
	}

	seed := time.Now().UnixNano()
	if raw := os.Getenv("SIM_SEED"); raw != "" {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			seed = n
		}
	}
	gofakeit.Seed(seed)

	w := &world{
		slots:    make(map[string][]simSlot),
		patients: make(map[string]simPatient),
		tokens:   make(map[string]time.Time),
		logger:   logger,
	}
	w.seed()

	r := chi.NewRouter()
	r.Post("/Glintt.GPlatform.APIGateway.CoreWebAPI/token", w.handleToken)
	r.Post("/Glintt.HMS.CoreWebAPI/api/hms/appointment/ExternalSearchSlots", w.auth(w.handleSearchSlots))
	r.Post("/Glintt.HMS.CoreWebAPI/api/hms/appointment/ExternalScheduleAppointment", w.auth(w.handleSchedule))
	r.Get("/Hms.OutPatient.Api/hms/outpatient/Appointment", w.auth(w.handleAppointments))
	r.Get("/Hms.PatientAdministration.Api/hms/patientadministration/Patient/search", w.auth(w.handlePatientSearch))

	srv := &http.Server{Addr: ":" + port, Handler: r, ReadHeaderTimeout: 5 * time.Second}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info().Str("addr", srv.Addr).Int64("seed", seed).Msg("clinic-sim listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server error")
		}
	}()

	<-rootCtx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

// seed builds a month of slot grids for a handful of doctors, books most of
// the morning slots, annuls a few bookings without freeing the slot, and
// gives some patients back-to-back visits so conciliated blocks show up.
func (w *world) seed() {
	doctors := []string{"D101", "D102", "D103"}
	services := []string{"CONS", "EXM"}

	var patientIDs []string
	for i := 0; i < 60; i++ {
		p := simPatient{ID: fmt.Sprintf("P%04d", 1000+i), Name: gofakeit.Name()}
		p.Contacts.PhoneNumber1 = gofakeit.Phone()
		if gofakeit.Bool() {
			p.Contacts.PhoneNumber2 = gofakeit.Phone()
		}
		p.Contacts.Email = gofakeit.Email()
		w.patients[p.ID] = p
		patientIDs = append(patientIDs, p.ID)
	}

	today := time.Now().Truncate(24 * time.Hour)

	for _, doc := range doctors {
		for day := 0; day < horizonDays; day++ {
			date := today.AddDate(0, 0, day)
			if date.Weekday() == time.Saturday || date.Weekday() == time.Sunday {
				continue
			}
			for hour := dayStartHour; hour < dayEndHour; hour++ {
				if hour >= lunchStart && hour < lunchEnd {
					continue
				}
				for min := 0; min < 60; min += slotMinutes {
					start := time.Date(date.Year(), date.Month(), date.Day(), hour, min, 0, 0, time.Local)
					slot := simSlot{
						SlotDateTime:      start.Format("2006-01-02T15:04:05"),
						Duration:          slotMinutes,
						HumanResourceCode: doc,
						BookingID:         uuid.NewString(),
					}

					// roughly 40% of slots carry a booking
					if gofakeit.Number(0, 9) < 4 {
						slot.Occupation = true
						slot.OccupationReason = &simReason{Code: "OCUP", Description: "Ocupado"}

						patient := patientIDs[gofakeit.Number(0, len(patientIDs)-1)]
						status := "SCHEDULED"
						if gofakeit.Number(0, 9) == 0 {
							status = "ANNULLED" // booking annulled, slot still reads occupied
						}
						w.addAppointment(doc, patient, start, slotMinutes, services[0], status, uuid.NewString())
					}
					w.slots[doc] = append(w.slots[doc], slot)
				}
			}

			// a few patients get two contiguous acts under one visit
			if gofakeit.Number(0, 2) == 0 {
				patient := patientIDs[gofakeit.Number(0, len(patientIDs)-1)]
				visit := uuid.NewString()
				start := time.Date(date.Year(), date.Month(), date.Day(), 15, 0, 0, 0, time.Local)
				w.addAppointment(doc, patient, start, slotMinutes, services[0], "SCHEDULED", visit)
				w.addAppointment(doc, patient, start.Add(slotMinutes*time.Minute), slotMinutes, services[1], "SCHEDULED", visit)
			}
		}
	}

	w.logger.Info().
		Int("doctors", len(doctors)).
		Int("patients", len(w.patients)).
		Int("appointments", len(w.appointments)).
		Msg("fake clinic seeded")
}

func (w *world) addAppointment(doc, patient string, start time.Time, duration int, service, status, visit string) {
	a := simAppointment{
		ID:              uuid.NewString(),
		AppointmentHour: start.Format("2006-01-02T15:04:05"),
		Duration:        duration,
		ServiceCode:     service,
		MedicalActCode:  "1",
		Status:          status,
		DoctorCode:      doc,
	}
	a.PatientIdentifier.ID = patient
	a.PatientIdentifier.Name = w.patients[patient].Name
	a.ParentVisit.ID = visit
	w.appointments = append(w.appointments, a)
}

func (w *world) handleToken(rw http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil || r.PostFormValue("client_id") == "" {
		http.Error(rw, "bad token request", http.StatusBadRequest)
		return
	}

	token := uuid.NewString()
	w.mu.Lock()
	w.tokens[token] = time.Now().Add(30 * time.Minute)
	w.mu.Unlock()

	writeJSON(rw, http.StatusOK, map[string]any{
		"access_token": token,
		"expires_in":   1800,
	})
}

func (w *world) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		w.mu.Lock()
		exp, ok := w.tokens[raw]
		w.mu.Unlock()
		if !ok || time.Now().After(exp) {
			http.Error(rw, "invalid token", http.StatusUnauthorized)
			return
		}
		next(rw, r)
	}
}

func (w *world) handleSearchSlots(rw http.ResponseWriter, r *http.Request) {
	var req struct {
		ExternalMedicalActSlotsList []struct {
			StartDate         string `json:"StartDate"`
			EndDate           string `json:"EndDate"`
			HumanResourceCode string `json:"HumanResourceCode"`
		} `json:"ExternalMedicalActSlotsList"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.ExternalMedicalActSlotsList) == 0 {
		http.Error(rw, "bad slot search", http.StatusBadRequest)
		return
	}
	spec := req.ExternalMedicalActSlotsList[0]

	from, err1 := time.ParseInLocation("2006-01-02", spec.StartDate, time.Local)
	to, err2 := time.ParseInLocation("2006-01-02", spec.EndDate, time.Local)
	if err1 != nil || err2 != nil {
		http.Error(rw, "bad date range", http.StatusBadRequest)
		return
	}
	to = to.AddDate(0, 0, 1)

	w.mu.Lock()
	defer w.mu.Unlock()

	var out []simSlot
	for _, s := range w.slots[spec.HumanResourceCode] {
		start, _ := time.ParseInLocation("2006-01-02T15:04:05", s.SlotDateTime, time.Local)
		if !start.Before(from) && start.Before(to) {
			out = append(out, s)
		}
	}

	writeJSON(rw, http.StatusOK, map[string]any{
		"ExternalSearchSlot": out,
		"ErrorDetails":       nil,
	})
}

func (w *world) handleAppointments(rw http.ResponseWriter, r *http.Request) {
	begin, err1 := time.ParseInLocation("2006-01-02T15:04:05", r.URL.Query().Get("beginDate"), time.Local)
	end, err2 := time.ParseInLocation("2006-01-02T15:04:05", r.URL.Query().Get("endDate"), time.Local)
	if err1 != nil || err2 != nil {
		http.Error(rw, "bad date range", http.StatusBadRequest)
		return
	}
	doctor := r.URL.Query().Get("doctorCode")
	skip, _ := strconv.Atoi(r.URL.Query().Get("skip"))
	take, _ := strconv.Atoi(r.URL.Query().Get("take"))
	if take <= 0 {
		take = 100
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	matched := make([]simAppointment, 0)
	for _, a := range w.appointments {
		start, _ := time.ParseInLocation("2006-01-02T15:04:05", a.AppointmentHour, time.Local)
		if start.Before(begin) || start.After(end) {
			continue
		}
		if doctor != "" && a.DoctorCode != doctor {
			continue
		}
		matched = append(matched, a)
	}

	if skip >= len(matched) {
		writeJSON(rw, http.StatusOK, []simAppointment{})
		return
	}
	endIdx := skip + take
	if endIdx > len(matched) {
		endIdx = len(matched)
	}
	writeJSON(rw, http.StatusOK, matched[skip:endIdx])
}

func (w *world) handlePatientSearch(rw http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("patientId")

	w.mu.Lock()
	p, ok := w.patients[id]
	w.mu.Unlock()
	if !ok {
		writeJSON(rw, http.StatusOK, []simPatient{})
		return
	}
	writeJSON(rw, http.StatusOK, []simPatient{p})
}

func (w *world) handleSchedule(rw http.ResponseWriter, r *http.Request) {
	var reqs []struct {
		HumanResourceCode string `json:"HumanResourceCode"`
		ScheduleDate      string `json:"ScheduleDate"`
		Duration          int    `json:"Duration"`
		ServiceCode       string `json:"ServiceCode"`
		RescheduleFlag    bool   `json:"RescheduleFlag"`
		Patient           struct {
			PatientID string `json:"PatientID"`
		} `json:"Patient"`
		Episode struct {
			EpisodeID string `json:"EpisodeID"`
		} `json:"Episode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil || len(reqs) == 0 {
		http.Error(rw, "bad schedule request", http.StatusBadRequest)
		return
	}
	req := reqs[0]

	start, err := time.ParseInLocation("2006-01-02T15:04:05", req.ScheduleDate, time.Local)
	if err != nil {
		writeJSON(rw, http.StatusOK, map[string]string{
			"appointmentID": "",
			"errorDetails":  "invalid schedule date",
		})
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	// occasional denial keeps the partial-apply path honest
	if gofakeit.Number(0, 19) == 0 {
		writeJSON(rw, http.StatusOK, map[string]string{
			"appointmentID": "",
			"errorDetails":  "no vacancy at requested time",
		})
		return
	}

	created := simAppointment{
		ID:              uuid.NewString(),
		AppointmentHour: req.ScheduleDate,
		Duration:        req.Duration,
		ServiceCode:     req.ServiceCode,
		MedicalActCode:  "1",
		Status:          "SCHEDULED",
		DoctorCode:      req.HumanResourceCode,
	}
	created.PatientIdentifier.ID = req.Patient.PatientID
	created.PatientIdentifier.Name = w.patients[req.Patient.PatientID].Name
	created.ParentVisit.ID = req.Episode.EpisodeID
	w.appointments = append(w.appointments, created)

	w.logger.Info().
		Str("doctor", req.HumanResourceCode).
		Str("patient", req.Patient.PatientID).
		Time("start", start).
		Bool("reschedule", req.RescheduleFlag).
		Msg("appointment scheduled")

	writeJSON(rw, http.StatusOK, map[string]string{
		"appointmentID": created.ID,
		"errorDetails":  "",
	})
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}
