package glintt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/AlvaroVCastro/appointmentsv1-sub000/internal/schedule"
	redisclient "github.com/AlvaroVCastro/appointmentsv1-sub000/internal/redis"
)

const (
	tokenPath         = "/Glintt.GPlatform.APIGateway.CoreWebAPI/token"
	searchSlotsPath   = "/Glintt.HMS.CoreWebAPI/api/hms/appointment/ExternalSearchSlots"
	scheduleApptPath  = "/Glintt.HMS.CoreWebAPI/api/hms/appointment/ExternalScheduleAppointment"
	appointmentsPath  = "/Hms.OutPatient.Api/hms/outpatient/Appointment"
	patientSearchPath = "/Hms.PatientAdministration.Api/hms/patientadministration/Patient/search"

	requestOrigin = "MALO_ADMIN"
	apptPageSize  = 100
)

var (
	ErrClinicUnavailable = errors.New("clinic system unavailable")
	ErrPatientNotFound   = errors.New("patient not found")
	ErrRescheduleDenied  = errors.New("clinic system rejected the reschedule")
)

type Config struct {
	BaseURL             string
	ClientID            string
	ClientSecret        string
	TenantID            string
	FacilityID          string
	Username            string
	FinancialEntityCode string
	ServiceCode         string
	MedicalActCode      string

	// TokenTTL is the cache lifetime used when the token endpoint does not
	// report expires_in.
	TokenTTL time.Duration

	// Location is the clinic's timezone; feed timestamps carry no zone.
	Location *time.Location
}

// Client is the adapter for the Glintt clinic system: availability feed,
// appointment feed, patient lookup and reschedule-apply, all JSON over HTTP
// behind a bearer token.
type Client struct {
	cfg    Config
	http   *http.Client
	tokens redisclient.TokenCache
	logger zerolog.Logger
}

func NewClient(cfg Config, httpClient *http.Client, tokens redisclient.TokenCache, logger zerolog.Logger) *Client {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 30 * time.Minute
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		cfg:    cfg,
		http:   httpClient,
		tokens: tokens,
		logger: logger.With().Str("component", "glintt").Logger(),
	}
}

// token returns a cached bearer token, authenticating against the gateway on
// a cache miss.
func (c *Client) token(ctx context.Context) (string, error) {
	token, err := c.tokens.Get(ctx)
	if err == nil && token != "" {
		return token, nil
	}
	if err != nil && !errors.Is(err, redisclient.ErrTokenNotCached) {
		c.logger.Warn().Err(err).Msg("token cache read failed, re-authenticating")
	}

	form := url.Values{
		"client_id":     {c.cfg.ClientID},
		"client_secret": {c.cfg.ClientSecret},
		"grant_type":    {"password"},
		"TenantID":      {c.cfg.TenantID},
		"FacilityID":    {c.cfg.FacilityID},
		"USERNAME":      {c.cfg.Username},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+tokenPath,
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: authenticate: %v", ErrClinicUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: authenticate: status %d", ErrClinicUnavailable, resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("%w: authenticate: empty token", ErrClinicUnavailable)
	}

	ttl := c.cfg.TokenTTL
	if tr.ExpiresIn > 0 {
		// Expire the cache a minute early so a caller never sends a token
		// that dies mid-request.
		ttl = time.Duration(tr.ExpiresIn)*time.Second - time.Minute
		if ttl <= 0 {
			ttl = time.Duration(tr.ExpiresIn) * time.Second
		}
	}
	if err := c.tokens.Set(ctx, tr.AccessToken, ttl); err != nil {
		c.logger.Warn().Err(err).Msg("token cache write failed")
	}

	return tr.AccessToken, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		rd = bytes.NewReader(data)
	}

	u := c.cfg.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	token, err := c.token(ctx)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrClinicUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrPatientNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s %s: status %d", ErrClinicUnavailable, method, path, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s response: %w", path, err)
		}
	}
	return nil
}

// SearchAvailability fetches the raw slot feed for one doctor over a date
// range. Slots with an unparseable timestamp are skipped, not fatal.
func (c *Client) SearchAvailability(ctx context.Context, doctorCode string, from, to time.Time) ([]schedule.Availability, error) {
	reqBody := searchSlotsRequest{
		LoadAppointments:  true,
		FullSearch:        true,
		NumberOfRegisters: 500,
		Period:            []string{},
		DaysOfWeek:        []string{},
		ExternalMedicalActSlotsList: []slotSearchSpec{{
			StartDate:           from.Format("2006-01-02"),
			EndDate:             to.Format("2006-01-02"),
			MedicalActCode:      c.cfg.MedicalActCode,
			ServiceCode:         c.cfg.ServiceCode,
			HumanResourceCode:   doctorCode,
			FinancialEntityCode: c.cfg.FinancialEntityCode,
			Origin:              requestOrigin,
		}},
	}

	var resp searchSlotsResponse
	if err := c.doJSON(ctx, http.MethodPost, searchSlotsPath, nil, reqBody, &resp); err != nil {
		return nil, fmt.Errorf("search slots: %w", err)
	}
	if resp.ErrorDetails != nil && resp.ErrorDetails.Error {
		return nil, fmt.Errorf("%w: search slots: %s", ErrClinicUnavailable, resp.ErrorDetails.Description)
	}

	slots := make([]schedule.Availability, 0, len(resp.ExternalSearchSlot))
	skipped := 0
	for _, s := range resp.ExternalSearchSlot {
		av, ok := s.toAvailability(doctorCode, c.cfg.Location)
		if !ok {
			skipped++
			continue
		}
		slots = append(slots, av)
	}
	if skipped > 0 {
		c.logger.Warn().Int("skipped", skipped).Msg("availability records with bad timestamps skipped")
	}
	return slots, nil
}

// ListAppointments fetches all appointment records for one doctor over a
// date range, paging through the feed. Malformed records are skipped.
func (c *Client) ListAppointments(ctx context.Context, doctorCode string, from, to time.Time) ([]schedule.Appointment, error) {
	var out []schedule.Appointment
	skipped := 0

	for skip := 0; ; skip += apptPageSize {
		query := url.Values{
			"beginDate": {from.Format("2006-01-02T15:04:05")},
			"endDate":   {to.Format("2006-01-02T15:04:05")},
			"skip":      {strconv.Itoa(skip)},
			"take":      {strconv.Itoa(apptPageSize)},
		}
		if doctorCode != "" {
			query.Set("doctorCode", doctorCode)
		}

		var page []wireAppointment
		if err := c.doJSON(ctx, http.MethodGet, appointmentsPath, query, nil, &page); err != nil {
			return nil, fmt.Errorf("list appointments: %w", err)
		}

		for _, w := range page {
			ap, ok := w.toAppointment(c.cfg.Location)
			if !ok {
				skipped++
				continue
			}
			out = append(out, ap)
		}

		if len(page) < apptPageSize {
			break
		}
	}

	if skipped > 0 {
		c.logger.Warn().Int("skipped", skipped).Msg("malformed appointment records skipped")
	}
	return out, nil
}

// GetPatientContact looks up one patient's contact record.
func (c *Client) GetPatientContact(ctx context.Context, patientID string) (*schedule.PatientContact, error) {
	query := url.Values{
		"patientId": {patientID},
		"skip":      {"0"},
		"take":      {"1"},
	}

	var patients []wirePatient
	if err := c.doJSON(ctx, http.MethodGet, patientSearchPath, query, nil, &patients); err != nil {
		return nil, fmt.Errorf("patient lookup %s: %w", patientID, err)
	}
	if len(patients) == 0 {
		return nil, ErrPatientNotFound
	}

	p := patients[0]
	return &schedule.PatientContact{
		Name:   p.Name,
		Phone1: p.Contacts.PhoneNumber1,
		Phone2: p.Contacts.PhoneNumber2,
		Email:  p.Contacts.Email,
	}, nil
}

// RescheduleAppointment moves one appointment to the target start time. The
// caller applies a block's appointments sequentially and stops on the first
// failure.
func (c *Client) RescheduleAppointment(ctx context.Context, appt schedule.Appointment, target time.Time) error {
	reqBody := []scheduleAppointmentRequest{{
		ServiceCode:       appt.ServiceCode,
		MedicalActCode:    appt.MedicalActCode,
		HumanResourceCode: appt.DoctorCode,
		ScheduleDate:      target.Format("2006-01-02T15:04:05"),
		Duration:          appt.DurationMinutes,
		Origin:            requestOrigin,
		Patient:           wirePatientRef{PatientType: "MC", PatientID: appt.PatientID},
		RescheduleFlag:    true,
		Episode:           wireEpisodeRef{EpisodeType: "Consultas", EpisodeID: appt.EpisodeID},
		FinancialEntity: wireFinancialEntity{
			EntityCode: c.cfg.FinancialEntityCode,
			Exemption:  "S",
		},
	}}

	var resp scheduleAppointmentResponse
	if err := c.doJSON(ctx, http.MethodPost, scheduleApptPath, nil, reqBody, &resp); err != nil {
		return fmt.Errorf("reschedule %s: %w", appt.ID, err)
	}
	if resp.ErrorDetails != "" {
		return fmt.Errorf("%w: appointment %s: %s", ErrRescheduleDenied, appt.ID, resp.ErrorDetails)
	}
	return nil
}
