// Package google implements [calendar.Provider] against the Google Calendar
// API, authenticated with a service account (§4.4, §6).
package google

import (
	"context"
	"fmt"
	"time"

	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/relaycall/voicegateway/pkg/calendar"
)

var _ calendar.Provider = (*Provider)(nil)

// Provider implements calendar.Provider using the Google Calendar API.
type Provider struct {
	svc        *gcal.Service
	calendarID string
	timezone   *time.Location
	dayStart   time.Duration
	dayEnd     time.Duration
}

// New constructs a Provider authenticated with the service account JSON at
// credentialsJSON, operating against calendarID. dayStart/dayEnd are
// business-hours offsets from local midnight (e.g. 9h and 17h).
func New(ctx context.Context, credentialsJSON []byte, calendarID string, tz *time.Location, dayStart, dayEnd time.Duration) (*Provider, error) {
	svc, err := gcal.NewService(ctx, option.WithCredentialsJSON(credentialsJSON))
	if err != nil {
		return nil, fmt.Errorf("calendar/google: new service: %w", err)
	}
	if tz == nil {
		tz = time.UTC
	}
	return &Provider{svc: svc, calendarID: calendarID, timezone: tz, dayStart: dayStart, dayEnd: dayEnd}, nil
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
		for t := open; t.Add(time.Duration(slotMinutes) * time.Minute).Before(close) || t.Add(time.Duration(slotMinutes)*time.Minute).Equal(close); t = t.Add(time.Duration(slotMinutes) * time.Minute) {
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

// FindNextAvailableSlot implements calendar.Provider, searching forward day
// by day up to maxDays business days.
func (p *Provider) FindNextAvailableSlot(ctx context.Context, from time.Time, maxDays int, slotMinutes int) (*calendar.Slot, error) {
	checked := 0
	day := dayStart(from, p.timezone)
	for checked < maxDays {
		if day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
			day = day.AddDate(0, 0, 1)
			continue
		}
		windowEnd := day.AddDate(0, 0, 1)
		slots, err := p.FindAvailableSlots(ctx, maxTime(from, day.Add(p.dayStart)), day.Add(p.dayEnd), slotMinutes)
		if err != nil {
			return nil, err
		}
		_ = windowEnd
		if len(slots) > 0 {
			return &slots[0], nil
		}
		day = day.AddDate(0, 0, 1)
		checked++
	}
	return nil, fmt.Errorf("calendar/google: no available slot found within %d business days", maxDays)
}

// CreateAppointment implements calendar.Provider.
func (p *Provider) CreateAppointment(ctx context.Context, appt calendar.Appointment) (*calendar.CreatedEvent, error) {
	event := &gcal.Event{
		Summary: appt.Title,
		Start:   &gcal.EventDateTime{DateTime: appt.Start.Format(time.RFC3339), TimeZone: p.timezone.String()},
		End:     &gcal.EventDateTime{DateTime: appt.End.Format(time.RFC3339), TimeZone: p.timezone.String()},
	}

	created, err := p.svc.Events.Insert(p.calendarID, event).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("calendar/google: create event: %w", err)
	}
	return &calendar.CreatedEvent{EventID: created.Id, Link: created.HtmlLink}, nil
}

func (p *Provider) busyRanges(ctx context.Context, from, to time.Time) ([]timeRange, error) {
	req := &gcal.FreeBusyRequest{
		TimeMin: from.Format(time.RFC3339),
		TimeMax: to.Format(time.RFC3339),
		Items:   []*gcal.FreeBusyRequestItem{{Id: p.calendarID}},
	}
	resp, err := p.svc.Freebusy.Query(req).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("calendar/google: freebusy query: %w", err)
	}

	cal, ok := resp.Calendars[p.calendarID]
	if !ok {
		return nil, nil
	}

	ranges := make([]timeRange, 0, len(cal.Busy))
	for _, b := range cal.Busy {
		start, err := time.Parse(time.RFC3339, b.Start)
		if err != nil {
			continue
		}
		end, err := time.Parse(time.RFC3339, b.End)
		if err != nil {
			continue
		}
		ranges = append(ranges, timeRange{start, end})
	}
	return ranges, nil
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
