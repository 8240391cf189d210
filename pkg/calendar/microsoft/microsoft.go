// Package microsoft implements [calendar.Provider] against the Microsoft
// Graph calendar API, authenticated via OAuth2 client-credentials flow
// (§4.4, §6). No repo in the reference pack imports a Graph SDK, so this
// driver is a thin REST client over golang.org/x/oauth2 and net/http.
package microsoft

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/relaycall/voicegateway/pkg/calendar"
)

const graphBaseURL = "https://graph.microsoft.com/v1.0"

var _ calendar.Provider = (*Provider)(nil)

// Provider implements calendar.Provider using the Microsoft Graph API.
type Provider struct {
	httpClient *http.Client
	calendarID string
	timezone   *time.Location
	dayStart   time.Duration
	dayEnd     time.Duration
}

// New constructs a Provider authenticated with an Azure AD app registration's
// client credentials, operating against calendarID (or "primary" for the
// mailbox's default calendar).
func New(ctx context.Context, tenantID, clientID, clientSecret, calendarID string, tz *time.Location, dayStart, dayEnd time.Duration) *Provider {
	cfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", tenantID),
		Scopes:       []string{"https://graph.microsoft.com/.default"},
	}
	if tz == nil {
		tz = time.UTC
	}
	return &Provider{
		httpClient: oauth2.NewClient(ctx, cfg.TokenSource(ctx)),
		calendarID: calendarID,
		timezone:   tz,
		dayStart:   dayStart,
		dayEnd:     dayEnd,
	}
}

type graphEvent struct {
	Subject string          `json:"subject"`
	Start   graphDateTime   `json:"start"`
	End     graphDateTime   `json:"end"`
}

type graphDateTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

type graphEventCreated struct {
	ID      string `json:"id"`
	WebLink string `json:"webLink"`
}

type graphScheduleRequest struct {
	Schedules               []string `json:"schedules"`
	StartTime               graphDateTime `json:"startTime"`
	EndTime                 graphDateTime `json:"endTime"`
	AvailabilityViewInterval int          `json:"availabilityViewInterval"`
}

type graphScheduleResponse struct {
	Value []struct {
		ScheduleItems []struct {
			Start graphDateTime `json:"start"`
			End   graphDateTime `json:"end"`
		} `json:"scheduleItems"`
	} `json:"value"`
}

// FindAvailableSlots implements calendar.Provider.
func (p *Provider) FindAvailableSlots(ctx context.Context, windowStart, windowEnd time.Time, slotMinutes int) ([]calendar.Slot, error) {
	busy, err := p.busyRanges(ctx, windowStart, windowEnd)
	if err != nil {
		return nil, err
	}

	var slots []calendar.Slot
	for day := dayStart(windowStart, p.timezone); day.Before(windowEnd); day = day.AddDate(0, 0, 1) {
		open := day.Add(p.dayStart)
		close := day.Add(p.dayEnd)
		for t := open; !t.Add(time.Duration(slotMinutes) * time.Minute).After(close); t = t.Add(time.Duration(slotMinutes) * time.Minute) {
			end := t.Add(time.Duration(slotMinutes) * time.Minute)
			if t.Before(windowStart) || end.After(windowEnd) {
				continue
			}
			if overlapsAny(t, end, busy) {
				continue
			}
			slots = append(slots, calendar.Slot{Start: t, End: end, Display: formatSlot(t)})
		}
	}
	return slots, nil
}

// FindNextAvailableSlot implements calendar.Provider.
func (p *Provider) FindNextAvailableSlot(ctx context.Context, from time.Time, maxDays int, slotMinutes int) (*calendar.Slot, error) {
	checked := 0
	day := dayStart(from, p.timezone)
	for checked < maxDays {
		if day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
			day = day.AddDate(0, 0, 1)
			continue
		}
		slots, err := p.FindAvailableSlots(ctx, maxTime(from, day.Add(p.dayStart)), day.Add(p.dayEnd), slotMinutes)
		if err != nil {
			return nil, err
		}
		if len(slots) > 0 {
			return &slots[0], nil
		}
		day = day.AddDate(0, 0, 1)
		checked++
	}
	return nil, fmt.Errorf("calendar/microsoft: no available slot found within %d business days", maxDays)
}

// CreateAppointment implements calendar.Provider.
func (p *Provider) CreateAppointment(ctx context.Context, appt calendar.Appointment) (*calendar.CreatedEvent, error) {
	body := graphEvent{
		Subject: appt.Title,
		Start:   graphDateTime{DateTime: appt.Start.Format("2006-01-02T15:04:05"), TimeZone: p.timezone.String()},
		End:     graphDateTime{DateTime: appt.End.Format("2006-01-02T15:04:05"), TimeZone: p.timezone.String()},
	}

	var created graphEventCreated
	if err := p.post(ctx, fmt.Sprintf("/me/calendars/%s/events", p.calendarID), body, &created); err != nil {
		return nil, fmt.Errorf("calendar/microsoft: create event: %w", err)
	}
	return &calendar.CreatedEvent{EventID: created.ID, Link: created.WebLink}, nil
}

func (p *Provider) busyRanges(ctx context.Context, from, to time.Time) ([]timeRange, error) {
	req := graphScheduleRequest{
		Schedules:                []string{p.calendarID},
		StartTime:                graphDateTime{DateTime: from.Format("2006-01-02T15:04:05"), TimeZone: p.timezone.String()},
		EndTime:                  graphDateTime{DateTime: to.Format("2006-01-02T15:04:05"), TimeZone: p.timezone.String()},
		AvailabilityViewInterval: 30,
	}

	var resp graphScheduleResponse
	if err := p.post(ctx, "/me/calendar/getSchedule", req, &resp); err != nil {
		return nil, fmt.Errorf("calendar/microsoft: get schedule: %w", err)
	}

	var ranges []timeRange
	for _, sched := range resp.Value {
		for _, item := range sched.ScheduleItems {
			start, err := time.ParseInLocation("2006-01-02T15:04:05.0000000", item.Start.DateTime, p.timezone)
			if err != nil {
				continue
			}
			end, err := time.ParseInLocation("2006-01-02T15:04:05.0000000", item.End.DateTime, p.timezone)
			if err != nil {
				continue
			}
			ranges = append(ranges, timeRange{start, end})
		}
	}
	return ranges, nil
}

func (p *Provider) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, graphBaseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("graph api: status %d: %s", resp.StatusCode, string(b))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type timeRange struct {
	start, end time.Time
}

func overlapsAny(start, end time.Time, ranges []timeRange) bool {
	for _, r := range ranges {
		if start.Before(r.end) && end.After(r.start) {
			return true
		}
	}
	return false
}

func dayStart(t time.Time, tz *time.Location) time.Time {
	t = t.In(tz)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, tz)
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func formatSlot(t time.Time) string {
	return t.Format("3:04 PM")
}
