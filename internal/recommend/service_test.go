package recommend

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlvaroVCastro/appointmentsv1-sub000/internal/schedule"
	"github.com/AlvaroVCastro/appointmentsv1-sub000/internal/suggestion"
)

func at(day, hour, min int) time.Time {
	return time.Date(2026, 9, day, hour, min, 0, 0, time.UTC)
}

type stubFeeds struct {
	avail    []schedule.Availability
	appts    []schedule.Appointment
	availErr error
	apptsErr error

	mu        sync.Mutex
	apptCalls int

	// block, when set, makes ListAppointments wait until released.
	block chan struct{}
}

func (f *stubFeeds) SearchAvailability(ctx context.Context, doctorCode string, from, to time.Time) ([]schedule.Availability, error) {
	return f.avail, f.availErr
}

func (f *stubFeeds) ListAppointments(ctx context.Context, doctorCode string, from, to time.Time) ([]schedule.Appointment, error) {
	f.mu.Lock()
	f.apptCalls++
	f.mu.Unlock()
	if f.block != nil {
		<-f.block
	}
	return f.appts, f.apptsErr
}

func (f *stubFeeds) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.apptCalls
}

type stubPatients struct {
	mu       sync.Mutex
	contacts map[string]schedule.PatientContact
	failIDs  map[string]bool
	calls    int
}

func (p *stubPatients) GetPatientContact(ctx context.Context, patientID string) (*schedule.PatientContact, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	if p.failIDs[patientID] {
		return nil, errors.New("lookup timeout")
	}
	c, ok := p.contacts[patientID]
	if !ok {
		return nil, errors.New("not found")
	}
	return &c, nil
}

type stubApplier struct {
	failOn string
	moved  []string
}

func (a *stubApplier) RescheduleAppointment(ctx context.Context, appt schedule.Appointment, target time.Time) error {
	if appt.ID == a.failOn {
		return errors.New("slot taken")
	}
	a.moved = append(a.moved, appt.ID)
	return nil
}

type memStore struct {
	mu       sync.Mutex
	inserted []suggestion.Suggestion
	outcomes map[uuid.UUID]suggestion.Outcome
	applied  map[uuid.UUID]int
}

func newMemStore() *memStore {
	return &memStore{
		outcomes: make(map[uuid.UUID]suggestion.Outcome),
		applied:  make(map[uuid.UUID]int),
	}
}

func (m *memStore) Insert(ctx context.Context, s suggestion.Suggestion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inserted = append(m.inserted, s)
	return nil
}

func (m *memStore) MarkOutcome(ctx context.Context, id uuid.UUID, outcome suggestion.Outcome, appliedCount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes[id] = outcome
	m.applied[id] = appliedCount
	return nil
}

func (m *memStore) ListByDoctor(ctx context.Context, doctorCode string, limit, offset int) ([]suggestion.Suggestion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inserted, nil
}

func newTestService(feeds *stubFeeds, patients *stubPatients, applier *stubApplier, store *memStore) *Service {
	if patients == nil {
		patients = &stubPatients{}
	}
	if applier == nil {
		applier = &stubApplier{}
	}
	if store == nil {
		store = newMemStore()
	}
	return NewService(Deps{
		Availability: feeds,
		Appointments: feeds,
		Patients:     patients,
		Applier:      applier,
		Store:        store,
		Rules:        schedule.DefaultRules(),
		LookupWidth:  2,
		Logger:       zerolog.Nop(),
		Now:          func() time.Time { return at(1, 12, 0) },
	})
}

func testAppt(id, patient string, start time.Time) schedule.Appointment {
	return schedule.Appointment{
		ID:              id,
		PatientID:       patient,
		StartTime:       start,
		DurationMinutes: 30,
		MedicalActCode:  "1",
		Status:          schedule.StatusScheduled,
		DoctorCode:      "1242",
	}
}

// September 2026: the 2nd is a Wednesday.
func testWindow() schedule.FreeWindow {
	return schedule.FreeWindow{
		StartTime:       at(2, 10, 0),
		EndTime:         at(2, 11, 30),
		DurationMinutes: 90,
	}
}

func TestTimeline_MergesBothFeeds(t *testing.T) {
	feeds := &stubFeeds{
		avail: []schedule.Availability{
			{StartTime: at(7, 10, 0), DurationMinutes: 30},
			{StartTime: at(7, 10, 30), DurationMinutes: 30},
		},
		appts: []schedule.Appointment{testAppt("a1", "p1", at(7, 11, 0))},
	}

	svc := newTestService(feeds, nil, nil, nil)
	ws, err := svc.Timeline(context.Background(), "1242", at(7, 0, 0), at(7, 23, 59))
	require.NoError(t, err)
	require.Len(t, ws, 2)
	assert.False(t, ws[0].Occupied)
	assert.Equal(t, 60, ws[0].DurationMinutes)
	assert.True(t, ws[1].Occupied)
}

func TestTimeline_FeedFailurePropagates(t *testing.T) {
	feeds := &stubFeeds{availErr: errors.New("gateway timeout")}

	svc := newTestService(feeds, nil, nil, nil)
	_, err := svc.Timeline(context.Background(), "1242", at(7, 0, 0), at(7, 23, 59))
	require.Error(t, err)
}

func TestRecommend_EnrichesContacts(t *testing.T) {
	feeds := &stubFeeds{appts: []schedule.Appointment{
		testAppt("a1", "p1", at(9, 10, 0)),
		testAppt("a2", "p2", at(9, 11, 0)),
	}}
	patients := &stubPatients{contacts: map[string]schedule.PatientContact{
		"p1": {Name: "Ana", Phone1: "911", Email: "ana@example.pt"},
		"p2": {Name: "Rui", Phone1: "912"},
	}}

	svc := newTestService(feeds, patients, nil, nil)
	rec, err := svc.Recommend(context.Background(), "sess-1", "1242", testWindow(), "")
	require.NoError(t, err)
	require.Len(t, rec.Eligible, 2)

	byPatient := map[string]schedule.ReplacementCandidate{}
	for _, c := range rec.Eligible {
		byPatient[c.PatientID] = c
	}
	assert.Equal(t, "911", byPatient["p1"].Phone1)
	assert.Equal(t, "ana@example.pt", byPatient["p1"].Email)
	assert.Equal(t, "912", byPatient["p2"].Phone1)
	assert.Equal(t, 2, patients.calls, "one lookup per distinct patient")
}

func TestRecommend_FailedLookupDegradesToBlankContact(t *testing.T) {
	feeds := &stubFeeds{appts: []schedule.Appointment{
		testAppt("a1", "p1", at(9, 10, 0)),
		testAppt("a2", "p2", at(9, 11, 0)),
	}}
	patients := &stubPatients{
		contacts: map[string]schedule.PatientContact{"p2": {Phone1: "912"}},
		failIDs:  map[string]bool{"p1": true},
	}

	svc := newTestService(feeds, patients, nil, nil)
	rec, err := svc.Recommend(context.Background(), "sess-1", "1242", testWindow(), "")
	require.NoError(t, err)
	require.Len(t, rec.Eligible, 2, "a failed lookup never drops the candidate")

	for _, c := range rec.Eligible {
		if c.PatientID == "p1" {
			assert.Empty(t, c.Phone1)
			assert.Empty(t, c.Email)
		}
	}
}

func TestRecommend_EmptyResultIsNotAnError(t *testing.T) {
	feeds := &stubFeeds{}

	svc := newTestService(feeds, nil, nil, nil)
	rec, err := svc.Recommend(context.Background(), "sess-1", "1242", testWindow(), "")
	require.NoError(t, err)
	assert.Empty(t, rec.Eligible)
	assert.Empty(t, rec.Ideal)
	assert.False(t, rec.HasMore)
}

func TestRecommend_UnknownStrategyRejected(t *testing.T) {
	svc := newTestService(&stubFeeds{}, nil, nil, nil)
	_, err := svc.Recommend(context.Background(), "sess-1", "1242", testWindow(), "optimal")
	require.Error(t, err)
}

func TestRecommend_LastClickWins(t *testing.T) {
	release := make(chan struct{})
	feeds := &stubFeeds{
		appts: []schedule.Appointment{testAppt("a1", "p1", at(9, 10, 0))},
		block: release,
	}

	svc := newTestService(feeds, nil, nil, nil)

	type outcome struct {
		rec *Recommendation
		err error
	}
	first := make(chan outcome, 1)
	go func() {
		rec, err := svc.Recommend(context.Background(), "sess-1", "1242", testWindow(), "")
		first <- outcome{rec, err}
	}()

	// Wait for the first computation to be in flight, then supersede it.
	require.Eventually(t, func() bool { return feeds.calls() >= 1 }, time.Second, time.Millisecond)
	svc.beginSelection("sess-1")
	close(release)

	got := <-first
	require.ErrorIs(t, got.err, ErrSelectionSuperseded)
	assert.Nil(t, got.rec)
}

func TestApply_SequentialOffsets(t *testing.T) {
	applier := &stubApplier{}
	store := newMemStore()
	svc := newTestService(&stubFeeds{}, nil, applier, store)

	cand := schedule.ReplacementCandidate{
		ConciliatedBlock: schedule.ConciliatedBlock{
			ID:        "p1-20260909T1000",
			PatientID: "p1",
			Appointments: []schedule.Appointment{
				testAppt("a1", "p1", at(9, 10, 0)),
				testAppt("a2", "p1", at(9, 10, 30)),
			},
		},
	}

	res, err := svc.Apply(context.Background(), "1242", testWindow(), cand)
	require.NoError(t, err)
	assert.Equal(t, suggestion.OutcomeApplied, res.Outcome)
	require.Len(t, res.Applied, 2)
	assert.Equal(t, at(2, 10, 0), res.Applied[0].NewStart)
	assert.Equal(t, at(2, 10, 30), res.Applied[1].NewStart,
		"each subsequent appointment is offset by the previous duration")

	require.Len(t, store.inserted, 1)
	assert.Equal(t, suggestion.OutcomeApplied, store.outcomes[res.SuggestionID])
	assert.Equal(t, 2, store.applied[res.SuggestionID])
}

func TestApply_StopsOnFirstFailure(t *testing.T) {
	applier := &stubApplier{failOn: "a2"}
	store := newMemStore()
	svc := newTestService(&stubFeeds{}, nil, applier, store)

	cand := schedule.ReplacementCandidate{
		ConciliatedBlock: schedule.ConciliatedBlock{
			ID:        "p1-20260909T1000",
			PatientID: "p1",
			Appointments: []schedule.Appointment{
				testAppt("a1", "p1", at(9, 10, 0)),
				testAppt("a2", "p1", at(9, 10, 30)),
				testAppt("a3", "p1", at(9, 11, 0)),
			},
		},
	}

	res, err := svc.Apply(context.Background(), "1242", testWindow(), cand)
	require.NoError(t, err, "partial failure is a result, not an error")
	assert.Equal(t, suggestion.OutcomePartial, res.Outcome)
	require.Len(t, res.Applied, 1, "the run stops on the first failure")
	assert.Equal(t, "a2", res.FailedAppointmentID)
	assert.Equal(t, []string{"a1"}, applier.moved)
	assert.Equal(t, suggestion.OutcomePartial, store.outcomes[res.SuggestionID])
}

func TestApply_FirstAppointmentFailure(t *testing.T) {
	applier := &stubApplier{failOn: "a1"}
	store := newMemStore()
	svc := newTestService(&stubFeeds{}, nil, applier, store)

	cand := schedule.ReplacementCandidate{
		ConciliatedBlock: schedule.ConciliatedBlock{
			ID:           "p1-20260909T1000",
			PatientID:    "p1",
			Appointments: []schedule.Appointment{testAppt("a1", "p1", at(9, 10, 0))},
		},
	}

	res, err := svc.Apply(context.Background(), "1242", testWindow(), cand)
	require.NoError(t, err)
	assert.Equal(t, suggestion.OutcomeFailed, res.Outcome)
	assert.Empty(t, res.Applied)
}

func TestPropose_RecordsSuggestion(t *testing.T) {
	store := newMemStore()
	svc := newTestService(&stubFeeds{}, nil, nil, store)

	cand := schedule.ReplacementCandidate{
		ConciliatedBlock: schedule.ConciliatedBlock{
			ID:        "p1-20260909T1000",
			PatientID: "p1",
			StartTime: at(9, 10, 0),
			EndTime:   at(9, 11, 0),
		},
		AnticipationDays: 8,
	}

	id, err := svc.Propose(context.Background(), "1242", testWindow(), cand, schedule.StrategyIdeal)
	require.NoError(t, err)
	require.Len(t, store.inserted, 1)
	assert.Equal(t, id, store.inserted[0].ID)
	assert.Equal(t, suggestion.OutcomeProposed, store.inserted[0].Outcome)
	assert.Equal(t, 8, store.inserted[0].AnticipationDays)
}
