package recommend

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/AlvaroVCastro/appointmentsv1-sub000/internal/schedule"
	"github.com/AlvaroVCastro/appointmentsv1-sub000/internal/suggestion"
)

// ErrSelectionSuperseded is returned when a newer selection for the same
// session started while this one was still computing. Last click wins; the
// stale result must never overwrite the latest selection's state.
var ErrSelectionSuperseded = errors.New("selection superseded by a newer one")

// Ports to the external clinic system. The adapters are opaque
// request/response services; the engine never sees their wire format.

type AvailabilityFeed interface {
	SearchAvailability(ctx context.Context, doctorCode string, from, to time.Time) ([]schedule.Availability, error)
}

type AppointmentFeed interface {
	ListAppointments(ctx context.Context, doctorCode string, from, to time.Time) ([]schedule.Appointment, error)
}

type PatientDirectory interface {
	GetPatientContact(ctx context.Context, patientID string) (*schedule.PatientContact, error)
}

type RescheduleApplier interface {
	RescheduleAppointment(ctx context.Context, appt schedule.Appointment, target time.Time) error
}

type Deps struct {
	Availability AvailabilityFeed
	Appointments AppointmentFeed
	Patients     PatientDirectory
	Applier      RescheduleApplier
	Store        suggestion.Repository
	Rules        schedule.Rules

	// LookupWidth bounds the patient-detail fan-out. The clinic system is
	// rate limited; unbounded parallel lookups are a correctness risk, not
	// a performance win.
	LookupWidth int

	Logger zerolog.Logger
	Now    func() time.Time
}

// Service runs the recommendation pipeline against the clinic ports. Each
// run is a pure function of its inputs plus "now"; nothing is cached across
// requests.
type Service struct {
	deps Deps

	mu         sync.Mutex
	selections map[string]uint64
}

func NewService(deps Deps) *Service {
	if deps.LookupWidth <= 0 {
		deps.LookupWidth = 4
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Service{
		deps:       deps,
		selections: make(map[string]uint64),
	}
}

// Timeline fetches both feeds for one doctor concurrently and returns the
// merged day-by-day timeline: free windows plus occupied spans.
func (s *Service) Timeline(ctx context.Context, doctorCode string, from, to time.Time) ([]schedule.FreeWindow, error) {
	var (
		avail []schedule.Availability
		appts []schedule.Appointment
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		avail, err = s.deps.Availability.SearchAvailability(gctx, doctorCode, from, to)
		return err
	})
	g.Go(func() error {
		var err error
		appts, err = s.deps.Appointments.ListAppointments(gctx, doctorCode, from, to)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("fetch doctor timeline: %w", err)
	}

	entries := schedule.NormalizeTimeline(avail, appts, s.deps.Rules)
	return schedule.MergeWindows(entries, s.deps.Rules), nil
}

// Recommendation is the response to one free-window selection.
type Recommendation struct {
	Window     schedule.FreeWindow
	Strategy   string
	Ideal      []schedule.ReplacementCandidate
	Eligible   []schedule.ReplacementCandidate
	HasMore    bool
	ComputedAt time.Time
}

// Recommend computes which scheduled blocks could be advanced into the
// selected free window. A later selection for the same session supersedes
// this one: the stale computation's result is discarded, not returned.
func (s *Service) Recommend(ctx context.Context, sessionID, doctorCode string, window schedule.FreeWindow, strategyName string) (*Recommendation, error) {
	strategy, err := schedule.StrategyByName(strategyName)
	if err != nil {
		return nil, err
	}
	if strategyName == "" {
		strategyName = schedule.StrategyIdeal
	}

	seq := s.beginSelection(sessionID)
	now := s.deps.Now()

	appts, err := s.deps.Appointments.ListAppointments(ctx, doctorCode, now, now.AddDate(0, 0, s.deps.Rules.HorizonDays))
	if err != nil {
		return nil, fmt.Errorf("fetch candidate appointments: %w", err)
	}

	ranking := schedule.RankCandidates(schedule.RankInput{
		Window:       window,
		Appointments: appts,
		DoctorCode:   doctorCode,
		Now:          now,
	}, strategy, s.deps.Rules)

	s.enrichContacts(ctx, &ranking)

	if !s.selectionCurrent(sessionID, seq) {
		return nil, ErrSelectionSuperseded
	}

	return &Recommendation{
		Window:     window,
		Strategy:   strategyName,
		Ideal:      ranking.Ideal,
		Eligible:   ranking.Eligible,
		HasMore:    ranking.HasMore,
		ComputedAt: now,
	}, nil
}

// enrichContacts fills contact details for every distinct patient in the
// eligible set, fanning lookups out with a fixed concurrency ceiling. A
// failed lookup degrades to blank contact fields, never a dropped candidate.
func (s *Service) enrichContacts(ctx context.Context, r *schedule.Ranking) {
	ids := make([]string, 0, len(r.Eligible))
	seen := make(map[string]bool, len(r.Eligible))
	for _, c := range r.Eligible {
		if !seen[c.PatientID] {
			seen[c.PatientID] = true
			ids = append(ids, c.PatientID)
		}
	}
	if len(ids) == 0 {
		return
	}

	var mu sync.Mutex
	contacts := make(map[string]schedule.PatientContact, len(ids))

	g := new(errgroup.Group)
	g.SetLimit(s.deps.LookupWidth)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			contact, err := s.deps.Patients.GetPatientContact(ctx, id)
			if err != nil {
				s.deps.Logger.Warn().Err(err).Str("patient_id", id).
					Msg("patient lookup failed, candidate keeps blank contact fields")
				return nil
			}
			mu.Lock()
			contacts[id] = *contact
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // workers never return errors

	fill := func(cs []schedule.ReplacementCandidate) {
		for i := range cs {
			contact, ok := contacts[cs[i].PatientID]
			if !ok {
				continue
			}
			cs[i].Phone1 = contact.Phone1
			cs[i].Phone2 = contact.Phone2
			cs[i].Email = contact.Email
			if cs[i].PatientName == "" {
				cs[i].PatientName = contact.Name
			}
		}
	}
	fill(r.Eligible)
	fill(r.Ideal)
}

func (s *Service) beginSelection(sessionID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selections[sessionID]++
	return s.selections[sessionID]
}

func (s *Service) selectionCurrent(sessionID string, seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selections[sessionID] == seq
}
